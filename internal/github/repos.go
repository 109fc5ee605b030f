package github

import (
	"context"
	"log/slog"
	"sync"

	"github.com/osslab-pku/github-scraper/internal/crawl"
	"github.com/osslab-pku/github-scraper/internal/pagecount"
	"github.com/osslab-pku/github-scraper/internal/types"
)

// Pager fetches one numbered page of a JSON array listing.
type Pager interface {
	Page(ctx context.Context, rawURL string, page, perPage int) ([]map[string]any, error)
}

// RepoLister counts and lists the repositories of a namespace through the
// paginated JSON API, which does not advertise its size.
type RepoLister struct {
	pager       Pager
	counter     *pagecount.Counter
	urls        URLs
	pageSize    int
	concurrency int
	logger      *slog.Logger
}

// NewRepoLister creates a RepoLister. pageSize and concurrency fall back to
// pagecount.DefaultPageSize and 1.
func NewRepoLister(pager Pager, counter *pagecount.Counter, urls URLs, pageSize, concurrency int, logger *slog.Logger) *RepoLister {
	if pageSize < 1 {
		pageSize = pagecount.DefaultPageSize
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &RepoLister{
		pager:       pager,
		counter:     counter,
		urls:        urls,
		pageSize:    pageSize,
		concurrency: concurrency,
		logger:      logger.With("component", "repo_lister"),
	}
}

// Count finds the number of pages and repositories in namespace. estimate
// is a rough item count used to pick the first probe; 0 starts at page 1.
func (l *RepoLister) Count(ctx context.Context, namespace string, estimate int) (pagecount.Result, error) {
	rawURL, err := l.urls.Repos(namespace)
	if err != nil {
		return pagecount.Result{}, err
	}
	return l.count(ctx, l.pager, rawURL, estimate)
}

func (l *RepoLister) count(ctx context.Context, pager Pager, rawURL string, estimate int) (pagecount.Result, error) {
	prober := pagecount.ProberFunc(func(ctx context.Context, page int) (int, error) {
		objs, err := pager.Page(ctx, rawURL, page, l.pageSize)
		return len(objs), err
	})
	return l.counter.Count(ctx, prober, l.pageSize, estimate)
}

// List counts the namespace, then fetches every page concurrently. Pages
// already probed while counting are not fetched again. Items are keyed by
// repository id.
func (l *RepoLister) List(ctx context.Context, namespace string, estimate int) ([]*types.Item, pagecount.Result, error) {
	rawURL, err := l.urls.Repos(namespace)
	if err != nil {
		return nil, pagecount.Result{}, err
	}
	cache := &pageCache{pager: l.pager, pages: make(map[int][]map[string]any)}
	res, err := l.count(ctx, cache, rawURL, estimate)
	if err != nil {
		return nil, res, err
	}

	acc, err := crawl.FetchRange(ctx, 1, res.TotalPages, l.concurrency, func(ctx context.Context, page int) ([]*types.Item, error) {
		objs, ok := cache.take(page)
		if !ok {
			var err error
			if objs, err = l.pager.Page(ctx, rawURL, page, l.pageSize); err != nil {
				return nil, err
			}
		}
		items := make([]*types.Item, 0, len(objs))
		for _, obj := range objs {
			items = append(items, repoItem(obj, rawURL, namespace))
		}
		return items, nil
	})
	if err != nil {
		return nil, res, err
	}

	l.logger.Info("repositories listed", "namespace", namespace, "pages", res.TotalPages, "repos", acc.Len())
	return acc.Items(), res, nil
}

// pageCache keeps the pages fetched during one List call.
type pageCache struct {
	pager Pager
	mu    sync.Mutex
	pages map[int][]map[string]any
}

func (c *pageCache) Page(ctx context.Context, rawURL string, page, perPage int) ([]map[string]any, error) {
	objs, err := c.pager.Page(ctx, rawURL, page, perPage)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.pages[page] = objs
	c.mu.Unlock()
	return objs, nil
}

func (c *pageCache) take(page int) ([]map[string]any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	objs, ok := c.pages[page]
	delete(c.pages, page)
	return objs, ok
}

func repoItem(obj map[string]any, sourceURL, namespace string) *types.Item {
	var id any
	if n, ok := obj["id"].(float64); ok {
		id = int(n)
		obj["id"] = id
	}
	item := types.NewItem(id, sourceURL)
	item.Fields = obj
	item.Listing = string(KindRepos)
	item.Owner = namespace
	return item
}
