package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/osslab-pku/github-scraper/internal/client"
	"github.com/osslab-pku/github-scraper/internal/github"
	"github.com/osslab-pku/github-scraper/internal/storage"
	"github.com/osslab-pku/github-scraper/internal/types"
	"github.com/osslab-pku/github-scraper/pkg/ghscraper"
)

var (
	query     string
	fromPage  int
	pull      bool
	cursor    string
	depType   string
	packageID string
	estimate  int
	countOnly bool
)

func issuesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "issues owner/name",
		Short: "Scrape a repository's issue list",
		Args:  cobra.ExactArgs(1),
		RunE:  runList(github.KindIssues),
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", `issue search query, e.g. "is:issue is:open"`)
	cmd.Flags().IntVar(&fromPage, "from-page", 1, "first page to scrape")
	return cmd
}

func pullsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pulls owner/name",
		Short: "Scrape a repository's pull request list",
		Args:  cobra.ExactArgs(1),
		RunE:  runList(github.KindPulls),
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", `pull request search query, e.g. "is:pr is:merged"`)
	cmd.Flags().IntVar(&fromPage, "from-page", 1, "first page to scrape")
	return cmd
}

func timelineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timeline owner/name#number",
		Short: "Scrape the timeline of an issue or pull request",
		Args:  cobra.ExactArgs(1),
		RunE:  runTimeline,
	}
	cmd.Flags().BoolVar(&pull, "pull", false, "the number is a pull request")
	cmd.Flags().StringVar(&cursor, "cursor", "", "resume at a next URL printed by an earlier run")
	return cmd
}

func dependentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dependents owner/name",
		Short: "Scrape the repositories or packages depending on a repository",
		Args:  cobra.ExactArgs(1),
		RunE:  runDependents,
	}
	cmd.Flags().StringVar(&depType, "type", "", "dependent type: REPOSITORY or PACKAGE")
	cmd.Flags().StringVar(&packageID, "package-id", "", "package id from the dependents page URL")
	cmd.Flags().StringVar(&cursor, "cursor", "", "resume at a next URL printed by an earlier run")
	return cmd
}

func reposCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repos namespace",
		Short: "List every repository of a user or organization",
		Args:  cobra.ExactArgs(1),
		RunE:  runRepos,
	}
	cmd.Flags().IntVar(&estimate, "estimate", 0, "expected number of repositories, speeds up counting")
	cmd.Flags().BoolVar(&countOnly, "count-only", false, "only count pages and repositories")
	return cmd
}

func newScraper(e *env) (*ghscraper.Scraper, error) {
	return ghscraper.New(
		ghscraper.WithConfig(e.cfg),
		ghscraper.WithLogger(e.logger),
		ghscraper.WithMetrics(e.metrics),
	)
}

func runList(kind github.Kind) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		owner, name, err := client.SplitRepo(args[0])
		if err != nil {
			return err
		}
		e, err := setup()
		if err != nil {
			return err
		}
		s, err := newScraper(e)
		if err != nil {
			return err
		}
		defer s.Close()

		ctx, cancel := signalContext()
		defer cancel()

		q := ghscraper.ListQuery{Owner: owner, Name: name, Query: query, FromPage: fromPage, MaxPages: maxPages}
		start := time.Now()
		var res *ghscraper.Result
		if kind == github.KindPulls {
			res, err = s.Pulls(ctx, q)
		} else {
			res, err = s.Issues(ctx, q)
		}
		if err != nil {
			return err
		}
		return finish(e, string(kind), res, time.Since(start))
	}
}

func runTimeline(cmd *cobra.Command, args []string) error {
	owner, name, number, err := client.SplitThread(args[0])
	if err != nil {
		return err
	}
	e, err := setup()
	if err != nil {
		return err
	}
	s, err := newScraper(e)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := signalContext()
	defer cancel()

	start := time.Now()
	res, err := s.Timeline(ctx, ghscraper.ThreadQuery{
		Owner: owner, Name: name, Number: number, Pull: pull, Cursor: cursor, MaxPages: maxPages,
	})
	if err != nil {
		return err
	}
	return finish(e, string(github.KindTimeline), res, time.Since(start))
}

func runDependents(cmd *cobra.Command, args []string) error {
	owner, name, err := client.SplitRepo(args[0])
	if err != nil {
		return err
	}
	e, err := setup()
	if err != nil {
		return err
	}
	s, err := newScraper(e)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := signalContext()
	defer cancel()

	start := time.Now()
	res, err := s.Dependents(ctx, ghscraper.DependentsQuery{
		Owner: owner, Name: name, Type: depType, PackageID: packageID, Cursor: cursor, MaxPages: maxPages,
	})
	if err != nil {
		return err
	}
	return finish(e, string(github.KindDependents), res, time.Since(start))
}

func runRepos(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	s, err := newScraper(e)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := signalContext()
	defer cancel()

	start := time.Now()
	if countOnly {
		count, err := s.CountRepos(ctx, args[0], estimate)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d repositories on %d pages (%d probes, %s)\n",
			args[0], count.TotalItems, count.TotalPages, e.metrics.Probes.Load(), time.Since(start).Round(time.Millisecond))
		return nil
	}

	items, count, err := s.ListRepos(ctx, args[0], estimate)
	if err != nil {
		return err
	}
	if err := store(e, string(github.KindRepos), items); err != nil {
		return err
	}
	fmt.Printf("\nListed %d repositories of %s in %s\n", len(items), args[0], time.Since(start).Round(time.Millisecond))
	fmt.Printf("   Pages:     %d\n", count.TotalPages)
	fmt.Printf("   Output:    %s\n", e.cfg.Storage.OutputPath)
	return nil
}

// store writes items to the configured storage for listing.
func store(e *env, listing string, items []*types.Item) error {
	st, err := storage.New(e.cfg, listing, e.logger)
	if err != nil {
		return fmt.Errorf("create storage: %w", err)
	}
	if err := st.Store(items); err != nil {
		st.Close()
		return err
	}
	e.metrics.Stored(len(items))
	return st.Close()
}

func finish(e *env, listing string, res *ghscraper.Result, elapsed time.Duration) error {
	if err := store(e, listing, res.Items); err != nil {
		return err
	}

	fmt.Printf("\nScraped %s in %s\n", res.URL, elapsed.Round(time.Millisecond))
	fmt.Printf("   Pages:     %d\n", res.Pages)
	fmt.Printf("   Items:     %d\n", len(res.Items))
	if res.Pagination.Current != nil {
		fmt.Printf("   Current:   %d\n", *res.Pagination.Current)
	}
	if res.Pagination.Total != nil {
		fmt.Printf("   Total:     %d\n", *res.Pagination.Total)
	}
	if res.Pagination.HasNext() {
		fmt.Printf("   Next:      %s\n", res.Pagination.Next)
	}
	fmt.Printf("   Output:    %s (%s)\n", e.cfg.Storage.OutputPath, e.cfg.Storage.Type)
	return nil
}
