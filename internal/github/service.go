package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/osslab-pku/github-scraper/internal/config"
	"github.com/osslab-pku/github-scraper/internal/crawl"
	"github.com/osslab-pku/github-scraper/internal/observability"
	"github.com/osslab-pku/github-scraper/internal/pagecount"
	"github.com/osslab-pku/github-scraper/internal/types"
)

// ListQuery selects pages of an issue or pull request list. Cursor, when
// set, resumes at a next-page URL and takes precedence over FromPage.
type ListQuery struct {
	Owner    string
	Name     string
	Query    string
	FromPage int
	Cursor   string
	MaxPages int
}

// ThreadQuery selects the timeline of one issue or pull request. Cursor,
// when set, resumes at a "load more" URL returned by an earlier call.
type ThreadQuery struct {
	Owner    string
	Name     string
	Number   int
	Pull     bool
	Cursor   string
	MaxPages int
}

// DependentsQuery selects the dependents of a repository or package.
type DependentsQuery struct {
	Owner     string
	Name      string
	Type      string
	PackageID string
	Cursor    string
	MaxPages  int
}

// Result is the merged output of one crawl.
type Result struct {
	URL         string
	Items       []*types.Item
	Pagination  types.Pagination
	Global      map[string]any
	Uncollected map[string]any
	Pages       int
}

// Service runs the listings against one fetcher.
type Service struct {
	urls     URLs
	crawlers map[Kind]*crawl.Crawler
	repos    *RepoLister
	maxPages int
	logger   *slog.Logger
}

// NewService builds a crawler for every HTML listing and a lister for the
// JSON repository pages.
func NewService(f crawl.Fetcher, pager Pager, cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) (*Service, error) {
	urls := URLs{Base: cfg.Scraper.BaseURL, API: cfg.Scraper.APIBaseURL}
	s := &Service{
		urls:     urls,
		crawlers: make(map[Kind]*crawl.Crawler),
		maxPages: cfg.Scraper.MaxPages,
		logger:   logger.With("component", "github"),
	}

	for _, kind := range []Kind{KindIssues, KindPulls, KindTimeline, KindDependents} {
		l, err := ForKind(kind, urls.Base, logger)
		if err != nil {
			return nil, err
		}
		c, err := l.NewCrawler(f, cfg.Scraper.Backend, logger, crawl.WithMetrics(metrics))
		if err != nil {
			return nil, err
		}
		s.crawlers[kind] = c
	}

	s.repos = NewRepoLister(pager, pagecount.New(metrics, logger), urls,
		cfg.Scraper.PageSize, cfg.Scraper.RangeConcurrency, logger)
	return s, nil
}

// Issues crawls an issue list.
func (s *Service) Issues(ctx context.Context, q ListQuery) (*Result, error) {
	start, err := s.listStart(q, s.urls.IssueList)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, KindIssues, start, q.MaxPages, q.Owner, q.Name)
}

// Pulls crawls a pull request list.
func (s *Service) Pulls(ctx context.Context, q ListQuery) (*Result, error) {
	start, err := s.listStart(q, s.urls.PullList)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, KindPulls, start, q.MaxPages, q.Owner, q.Name)
}

func (s *Service) listStart(q ListQuery, build func(owner, name, query string, page int) (string, error)) (string, error) {
	if q.Cursor != "" {
		return s.cursor(q.Cursor)
	}
	return build(q.Owner, q.Name, q.Query, q.FromPage)
}

// Timeline crawls the events and comments of an issue or pull request.
// Every item carries the thread number as "id".
func (s *Service) Timeline(ctx context.Context, q ThreadQuery) (*Result, error) {
	var start string
	var err error
	switch {
	case q.Cursor != "":
		start, err = s.cursor(q.Cursor)
	case q.Pull:
		start, err = s.urls.Pull(q.Owner, q.Name, q.Number)
	default:
		start, err = s.urls.Issue(q.Owner, q.Name, q.Number)
	}
	if err != nil {
		return nil, err
	}

	res, err := s.run(ctx, KindTimeline, start, q.MaxPages, q.Owner, q.Name)
	if err != nil {
		return nil, err
	}
	for _, item := range res.Items {
		item.Set("id", q.Number)
	}
	return res, nil
}

// Dependents crawls the dependents list. Every item carries the crawled
// repository as "target".
func (s *Service) Dependents(ctx context.Context, q DependentsQuery) (*Result, error) {
	var start string
	var err error
	if q.Cursor != "" {
		start, err = s.cursor(q.Cursor)
	} else {
		start, err = s.urls.Dependents(q.Owner, q.Name, q.Type, q.PackageID)
	}
	if err != nil {
		return nil, err
	}

	res, err := s.run(ctx, KindDependents, start, q.MaxPages, q.Owner, q.Name)
	if err != nil {
		return nil, err
	}
	for _, item := range res.Items {
		item.Set("target", q.Owner+"/"+q.Name)
	}
	return res, nil
}

// CountRepos locates the number of repositories of namespace.
func (s *Service) CountRepos(ctx context.Context, namespace string, estimate int) (pagecount.Result, error) {
	return s.repos.Count(ctx, namespace, estimate)
}

// ListRepos returns every repository of namespace.
func (s *Service) ListRepos(ctx context.Context, namespace string, estimate int) ([]*types.Item, pagecount.Result, error) {
	return s.repos.List(ctx, namespace, estimate)
}

func (s *Service) run(ctx context.Context, kind Kind, start string, maxPages int, owner, name string) (*Result, error) {
	if maxPages < 1 {
		maxPages = s.maxPages
	}
	acc, err := s.crawlers[kind].Crawl(ctx, start, maxPages)
	if err != nil {
		return nil, err
	}

	items := acc.Items()
	Annotate(items, owner, name)
	return &Result{
		URL:         start,
		Items:       items,
		Pagination:  acc.Pagination,
		Global:      acc.Global,
		Uncollected: acc.Uncollected,
		Pages:       acc.Pages,
	}, nil
}

// cursor accepts a continuation URL only on the configured site.
func (s *Service) cursor(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrInvalidURL, err)
	}
	base, err := url.Parse(s.urls.Base)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrInvalidURL, err)
	}
	if !u.IsAbs() {
		u = base.ResolveReference(u)
	}
	if u.Host != base.Host || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("%w: cursor %q is not on %s", types.ErrInvalidURL, raw, base.Host)
	}
	return u.String(), nil
}
