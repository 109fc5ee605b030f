package main

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/osslab-pku/github-scraper/internal/client"
	"github.com/osslab-pku/github-scraper/internal/github"
	"github.com/osslab-pku/github-scraper/internal/storage"
	"github.com/osslab-pku/github-scraper/internal/types"
)

var (
	serverURL  string
	targetFile string
	workers    int
)

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync issues|pulls|issue|pull|dependents [target...]",
		Short: "Scrape many repositories through a running API server",
		Long: `sync sends one query per target to a github-scraper API server, follows
every listing to its end and writes the results to the configured storage.

Targets are owner/name for lists and dependents, owner/name#number for
single issues and pull requests. They may also be read, one per line,
from --targets.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runSync,
	}
	cmd.Flags().StringVar(&serverURL, "server", "", "API server URL")
	cmd.Flags().StringVar(&authToken, "auth-token", "", "API token")
	cmd.Flags().StringVar(&targetFile, "targets", "", "file with one target per line")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "concurrent queries")
	cmd.Flags().StringVarP(&query, "query", "q", "", "search query for issues and pulls")
	cmd.Flags().StringVar(&depType, "type", "", "dependent type: REPOSITORY or PACKAGE")
	cmd.Flags().StringVar(&packageID, "package-id", "", "package id for dependents")
	return cmd
}

// syncRoutes maps a sync route to its API path and storage listing.
var syncRoutes = map[string]struct {
	path    string
	listing github.Kind
}{
	"issues":     {client.PathIssues, github.KindIssues},
	"pulls":      {client.PathPulls, github.KindPulls},
	"issue":      {client.PathIssue, github.KindTimeline},
	"pull":       {client.PathPull, github.KindTimeline},
	"dependents": {client.PathDependents, github.KindDependents},
}

func runSync(cmd *cobra.Command, args []string) error {
	route, ok := syncRoutes[args[0]]
	if !ok {
		return fmt.Errorf("unknown route %q", args[0])
	}
	targets := args[1:]
	if targetFile != "" {
		fromFile, err := readTargets(targetFile)
		if err != nil {
			return err
		}
		targets = append(targets, fromFile...)
	}
	if len(targets) == 0 {
		return fmt.Errorf("no targets given")
	}

	var queries []client.Params
	var err error
	switch route.listing {
	case github.KindIssues, github.KindPulls:
		queries, err = client.ListQueries(targets, query)
	case github.KindTimeline:
		queries, err = client.ThreadQueries(targets)
	case github.KindDependents:
		queries, err = client.DependentsQueries(targets, depType, packageID)
	}
	if err != nil {
		return err
	}

	e, err := setup()
	if err != nil {
		return err
	}
	if serverURL != "" {
		e.cfg.Client.ServerURL = serverURL
	}
	if authToken != "" {
		e.cfg.Client.AuthToken = authToken
	}
	if workers > 0 {
		e.cfg.Client.Workers = workers
	}
	if maxPages > 0 {
		e.cfg.Client.MaxPages = maxPages
	}

	runID := uuid.NewString()
	logger := e.logger.With("run_id", runID, "route", args[0])
	c := client.New(e.cfg.Client, logger)

	st, err := storage.New(e.cfg, string(route.listing), e.logger)
	if err != nil {
		return fmt.Errorf("create storage: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	var (
		mu     sync.Mutex
		stored int
	)
	start := time.Now()
	logger.Info("sync started", "targets", len(queries), "server", e.cfg.Client.ServerURL)
	runErr := c.GetAll(ctx, route.path, queries, func(results []map[string]any, p client.Params) error {
		items := toItems(results, p, string(route.listing), e.cfg.Client.ServerURL+route.path)
		mu.Lock()
		defer mu.Unlock()
		if err := st.Store(items); err != nil {
			return err
		}
		stored += len(items)
		e.metrics.Stored(len(items))
		return nil
	})
	if err := st.Close(); err != nil && runErr == nil {
		runErr = err
	}

	fmt.Printf("\nSync %s finished in %s\n", runID, time.Since(start).Round(time.Millisecond))
	fmt.Printf("   Targets:   %d\n", len(queries))
	fmt.Printf("   Items:     %d\n", stored)
	fmt.Printf("   Output:    %s (%s)\n", e.cfg.Storage.OutputPath, e.cfg.Storage.Type)
	return runErr
}

// toItems turns API documents back into items for storage.
func toItems(results []map[string]any, p client.Params, listing, source string) []*types.Item {
	items := make([]*types.Item, 0, len(results))
	for _, doc := range results {
		if f, ok := doc["id"].(float64); ok && f == math.Trunc(f) {
			doc["id"] = int(f)
		}
		item := types.NewItem(doc["id"], source)
		item.Fields = doc
		item.Listing = listing
		item.Owner = p["owner"]
		item.Name = p["name"]
		items = append(items, item)
	}
	return items
}

func readTargets(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open targets: %w", err)
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}
