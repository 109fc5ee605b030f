package crawl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/osslab-pku/github-scraper/internal/extract"
	"github.com/osslab-pku/github-scraper/internal/observability"
	"github.com/osslab-pku/github-scraper/internal/transform"
	"github.com/osslab-pku/github-scraper/internal/types"
)

// State is the crawler's position in its fetch/merge cycle.
type State int

const (
	StateFetching State = iota
	StateMerging
	StateDone
)

func (s State) String() string {
	switch s {
	case StateFetching:
		return "fetching"
	case StateMerging:
		return "merging"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Fetcher retrieves one page.
type Fetcher interface {
	Fetch(ctx context.Context, req *types.Request) (*types.Response, error)
}

// Crawler walks a paginated listing one page at a time, following each
// page's next link.
type Crawler struct {
	fetcher  Fetcher
	engine   *extract.Engine
	pipeline *transform.Pipeline
	merge    MergePolicy
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithMetrics records fetch and extraction counters.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Crawler) { c.metrics = m }
}

// New creates a Crawler for one listing.
func New(f Fetcher, e *extract.Engine, p *transform.Pipeline, merge MergePolicy, logger *slog.Logger, opts ...Option) *Crawler {
	c := &Crawler{
		fetcher:  f,
		engine:   e,
		pipeline: p,
		merge:    merge,
		logger:   logger.With("component", "crawler", "listing", p.Listing()),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Crawl fetches startURL and its successors, at most maxPages of them, and
// returns the merged records. Any failure discards the whole crawl.
func (c *Crawler) Crawl(ctx context.Context, startURL string, maxPages int) (*Accumulator, error) {
	if maxPages < 1 {
		maxPages = 1
	}

	acc := NewAccumulator()
	seen := make(visited)
	state := StateFetching
	pageURL := startURL
	var page *transform.Result

	for state != StateDone {
		switch state {
		case StateFetching:
			seen.mark(pageURL)
			var err error
			page, pageURL, err = c.page(ctx, pageURL)
			if err != nil {
				return nil, err
			}
			state = StateMerging

		case StateMerging:
			c.merge(acc, page)
			c.logger.Debug("page merged", "url", pageURL, "page", acc.Pages, "records", acc.Len())

			next := resolve(pageURL, page.Pagination.Next)
			switch {
			case next == "":
				state = StateDone
			case acc.Pages >= maxPages:
				c.logger.Debug("page ceiling reached", "max_pages", maxPages)
				state = StateDone
			case seen.seen(next):
				c.logger.Warn("next page already visited", "url", next)
				state = StateDone
			default:
				pageURL = next
				state = StateFetching
			}
		}
	}

	c.metrics.CrawlDone(acc.Len())
	c.logger.Info("crawl finished", "start", startURL, "pages", acc.Pages, "records", acc.Len())
	return acc, nil
}

// page fetches, extracts and transforms one page. It returns the final URL
// after redirects.
func (c *Crawler) page(ctx context.Context, pageURL string) (*transform.Result, string, error) {
	req, err := types.NewRequest(pageURL)
	if err != nil {
		return nil, pageURL, &types.FetchError{URL: pageURL, Err: err}
	}

	resp, err := c.fetcher.Fetch(ctx, req)
	if err != nil {
		c.metrics.PageFailed()
		var fe *types.FetchError
		if errors.As(err, &fe) {
			return nil, pageURL, err
		}
		return nil, pageURL, &types.FetchError{URL: pageURL, Err: err}
	}
	defer resp.Close()
	c.metrics.PageFetched()

	finalURL := pageURL
	if resp.FinalURL != "" {
		finalURL = resp.FinalURL
	}

	coll, err := c.engine.Parse(ctx, resp.Body)
	if err != nil {
		c.metrics.ExtractFailed()
		var xe *types.ExtractError
		if errors.As(err, &xe) {
			xe.URL = finalURL
			return nil, finalURL, err
		}
		return nil, finalURL, fmt.Errorf("extracting %s: %w", finalURL, err)
	}

	return c.pipeline.Apply(coll, finalURL), finalURL, nil
}

// resolve makes next absolute against the page it was found on. Links
// that are not http(s) end the crawl.
func resolve(base, next string) string {
	if next == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	n, err := url.Parse(next)
	if err != nil {
		return ""
	}
	u := b.ResolveReference(n)
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}
