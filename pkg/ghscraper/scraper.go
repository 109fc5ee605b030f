// Package ghscraper embeds the GitHub scrapers as a library.
//
// Example usage:
//
//	s, err := ghscraper.New(
//	    ghscraper.WithMaxPages(5),
//	    ghscraper.WithBackend("stream"),
//	)
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	res, err := s.Issues(ctx, ghscraper.ListQuery{Owner: "golang", Name: "go", Query: "is:issue is:open"})
package ghscraper

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/osslab-pku/github-scraper/internal/config"
	"github.com/osslab-pku/github-scraper/internal/crawl"
	"github.com/osslab-pku/github-scraper/internal/fetcher"
	"github.com/osslab-pku/github-scraper/internal/github"
	"github.com/osslab-pku/github-scraper/internal/observability"
	"github.com/osslab-pku/github-scraper/internal/pagecount"
	"github.com/osslab-pku/github-scraper/internal/types"
)

type (
	// ListQuery selects pages of an issue or pull request list.
	ListQuery = github.ListQuery
	// ThreadQuery selects the timeline of one issue or pull request.
	ThreadQuery = github.ThreadQuery
	// DependentsQuery selects the dependents of a repository or package.
	DependentsQuery = github.DependentsQuery
	// Result is the merged output of one crawl.
	Result = github.Result
	// Count is the size of a repository namespace.
	Count = pagecount.Result
	// Item is one scraped record.
	Item = types.Item
	// Fetcher retrieves one page.
	Fetcher = crawl.Fetcher
	// Pager fetches numbered pages of a JSON listing.
	Pager = github.Pager
)

// Scraper runs the listings.
type Scraper struct {
	svc     *github.Service
	fetcher fetcher.Fetcher
	metrics *observability.Metrics
	logger  *slog.Logger
}

type settings struct {
	cfg     *config.Config
	logger  *slog.Logger
	fetcher Fetcher
	pager   Pager
	metrics *observability.Metrics
}

// Option configures a Scraper.
type Option func(*settings)

// WithConfig replaces the default configuration. Options applied after
// it still take effect.
func WithConfig(cfg *config.Config) Option {
	return func(s *settings) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithFetcher replaces the page fetcher built from the configuration.
func WithFetcher(f Fetcher) Option {
	return func(s *settings) { s.fetcher = f }
}

// WithPager replaces the JSON client used for repository pages.
func WithPager(p Pager) Option {
	return func(s *settings) { s.pager = p }
}

// WithMetrics records counters into m.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *settings) { s.metrics = m }
}

// WithBaseURL points the scrapers at another GitHub host.
func WithBaseURL(web, api string) Option {
	return func(s *settings) {
		s.cfg.Scraper.BaseURL = web
		s.cfg.Scraper.APIBaseURL = api
	}
}

// WithBackend selects the selector backend, "stream" or "dom".
func WithBackend(name string) Option {
	return func(s *settings) { s.cfg.Scraper.Backend = name }
}

// WithMaxPages sets the default number of pages per crawl.
func WithMaxPages(n int) Option {
	return func(s *settings) { s.cfg.Scraper.MaxPages = n }
}

// WithRateLimit sets requests per second; zero disables limiting.
func WithRateLimit(rps float64) Option {
	return func(s *settings) { s.cfg.Fetcher.RequestsPerSecond = rps }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.cfg.Fetcher.RequestTimeout = d }
}

// WithUserAgent sets a custom User-Agent.
func WithUserAgent(ua string) Option {
	return func(s *settings) { s.cfg.Fetcher.UserAgents = []string{ua} }
}

// WithProxy enables proxy rotation with the given proxy URLs.
func WithProxy(urls ...string) Option {
	return func(s *settings) {
		s.cfg.Proxy.Enabled = true
		s.cfg.Proxy.URLs = urls
	}
}

// WithBrowser fetches pages with a headless browser.
func WithBrowser() Option {
	return func(s *settings) { s.cfg.Fetcher.Type = "browser" }
}

// WithVerbose enables debug-level logging.
func WithVerbose() Option {
	return func(s *settings) { s.cfg.Logging.Level = "debug" }
}

// New creates a Scraper.
func New(opts ...Option) (*Scraper, error) {
	st := &settings{cfg: config.DefaultConfig()}
	for _, opt := range opts {
		opt(st)
	}
	if err := config.Validate(st.cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if st.logger == nil {
		level := slog.LevelInfo
		if st.cfg.Logging.Level == "debug" {
			level = slog.LevelDebug
		}
		st.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}

	s := &Scraper{metrics: st.metrics, logger: st.logger}

	f := st.fetcher
	if f == nil {
		built, err := fetcher.New(st.cfg, st.metrics, st.logger)
		if err != nil {
			return nil, fmt.Errorf("create fetcher: %w", err)
		}
		s.fetcher = built
		f = built
	}

	pager := st.pager
	if pager == nil {
		pager = fetcher.NewJSONClient(st.cfg, st.metrics, st.logger)
	}

	svc, err := github.NewService(f, pager, st.cfg, st.metrics, st.logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.svc = svc
	return s, nil
}

// Issues crawls an issue list.
func (s *Scraper) Issues(ctx context.Context, q ListQuery) (*Result, error) {
	return s.svc.Issues(ctx, q)
}

// Pulls crawls a pull request list.
func (s *Scraper) Pulls(ctx context.Context, q ListQuery) (*Result, error) {
	return s.svc.Pulls(ctx, q)
}

// Timeline crawls the timeline of an issue or pull request.
func (s *Scraper) Timeline(ctx context.Context, q ThreadQuery) (*Result, error) {
	return s.svc.Timeline(ctx, q)
}

// Dependents crawls the dependents of a repository.
func (s *Scraper) Dependents(ctx context.Context, q DependentsQuery) (*Result, error) {
	return s.svc.Dependents(ctx, q)
}

// CountRepos locates how many repositories namespace owns.
func (s *Scraper) CountRepos(ctx context.Context, namespace string, estimate int) (Count, error) {
	return s.svc.CountRepos(ctx, namespace, estimate)
}

// ListRepos returns every repository of namespace.
func (s *Scraper) ListRepos(ctx context.Context, namespace string, estimate int) ([]*Item, Count, error) {
	return s.svc.ListRepos(ctx, namespace, estimate)
}

// Service exposes the underlying service, for serving it over HTTP.
func (s *Scraper) Service() *github.Service { return s.svc }

// Metrics returns the counters in use, or nil.
func (s *Scraper) Metrics() *observability.Metrics { return s.metrics }

// Close releases the fetcher built by New. A fetcher passed with
// WithFetcher is left to its owner.
func (s *Scraper) Close() error {
	if s.fetcher != nil {
		return s.fetcher.Close()
	}
	return nil
}
