package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/osslab-pku/github-scraper/internal/config"
	"github.com/osslab-pku/github-scraper/internal/observability"
)

var (
	cfgFile    string
	verbose    bool
	outputPath string
	outputType string
	backend    string
	maxPages   int
	baseURL    string
	apiBaseURL string
	fetchType  string
	proxies    []string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "github-scraper",
		Short: "Scrape GitHub issue lists, timelines, dependents and repositories",
		Long: `github-scraper collects data GitHub shows on its web pages but not
through its APIs: issue and pull request lists with CI status, issue
timelines with reactions, and the dependents graph.

Scrapes can run directly from the command line, be served as a JSON API
(serve) or be driven against a running API for many repositories (sync).`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&outputPath, "output", "o", "", "output directory")
	rootCmd.PersistentFlags().StringVarP(&outputType, "format", "f", "", "output format: json, jsonl, csv, mongo")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "selector backend: stream, dom")
	rootCmd.PersistentFlags().IntVarP(&maxPages, "max-pages", "m", 0, "maximum pages per crawl")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "GitHub web URL")
	rootCmd.PersistentFlags().StringVar(&apiBaseURL, "api-url", "", "GitHub API URL")
	rootCmd.PersistentFlags().StringVar(&fetchType, "fetcher", "", "page fetcher: http, browser")
	rootCmd.PersistentFlags().StringSliceVar(&proxies, "proxy", nil, "proxy URL (repeatable)")

	rootCmd.AddCommand(issuesCmd())
	rootCmd.AddCommand(pullsCmd())
	rootCmd.AddCommand(timelineCmd())
	rootCmd.AddCommand(dependentsCmd())
	rootCmd.AddCommand(reposCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("github-scraper %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out, err := config.Dump(cfg)
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(out)
			return err
		},
	}
}

// loadConfig reads the config file and environment, then layers the
// command-line flags on top.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	overrides := &config.Config{}
	overrides.Storage.OutputPath = outputPath
	overrides.Storage.Type = strings.ToLower(outputType)
	overrides.Scraper.Backend = backend
	overrides.Scraper.MaxPages = maxPages
	overrides.Scraper.BaseURL = baseURL
	overrides.Scraper.APIBaseURL = apiBaseURL
	overrides.Fetcher.Type = fetchType
	if len(proxies) > 0 {
		overrides.Proxy.Enabled = true
		overrides.Proxy.URLs = proxies
	}
	if verbose {
		overrides.Logging.Level = "debug"
	}
	if err := config.ApplyOverrides(cfg, overrides); err != nil {
		return nil, err
	}

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// setupLogger creates a structured logger from the logging section.
func setupLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Logging.Level)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// env is what every command needs.
type env struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
}

func setup() (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := setupLogger(cfg)
	return &env{cfg: cfg, logger: logger, metrics: observability.NewMetrics(logger)}, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
