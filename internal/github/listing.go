// Package github defines the scraped GitHub listings: the rules that pull
// fields out of each page kind, the transforms that shape them, the merge
// policy used across pages, and the URLs the pages live at.
package github

import (
	"fmt"
	"log/slog"

	"github.com/osslab-pku/github-scraper/internal/crawl"
	"github.com/osslab-pku/github-scraper/internal/extract"
	"github.com/osslab-pku/github-scraper/internal/rewriter"
	"github.com/osslab-pku/github-scraper/internal/transform"
	"github.com/osslab-pku/github-scraper/internal/types"
)

// Kind names a listing.
type Kind string

const (
	KindIssues     Kind = "issues"
	KindPulls      Kind = "pulls"
	KindTimeline   Kind = "timeline"
	KindDependents Kind = "dependents"
	KindRepos      Kind = "repos"
)

// Listing bundles everything needed to crawl one kind of HTML page.
type Listing struct {
	Kind     Kind
	Registry *extract.Registry
	Pipeline *transform.Pipeline
	Merge    crawl.MergePolicy
}

// NewCrawler builds a crawler for the listing on the named extraction
// backend ("stream" or "dom").
func (l *Listing) NewCrawler(f crawl.Fetcher, backend string, logger *slog.Logger, opts ...crawl.Option) (*crawl.Crawler, error) {
	factory, err := rewriter.Factory(backend)
	if err != nil {
		return nil, err
	}
	engine, err := extract.NewEngine(l.Registry, factory, logger)
	if err != nil {
		return nil, fmt.Errorf("%s listing: %w", l.Kind, err)
	}
	return crawl.New(f, engine, l.Pipeline, l.Merge, logger, opts...), nil
}

// ForKind returns the HTML listing for kind.
func ForKind(kind Kind, baseURL string, logger *slog.Logger) (*Listing, error) {
	switch kind {
	case KindIssues, KindPulls:
		return IssueList(kind, baseURL, logger), nil
	case KindTimeline:
		return Timeline(baseURL, logger), nil
	case KindDependents:
		return Dependents(logger), nil
	default:
		return nil, fmt.Errorf("no HTML listing for %q", kind)
	}
}

// Annotate stamps the repository the items were scraped from.
func Annotate(items []*types.Item, owner, name string) {
	for _, item := range items {
		item.Owner = owner
		item.Name = name
	}
}
