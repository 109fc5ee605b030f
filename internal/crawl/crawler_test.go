package crawl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osslab-pku/github-scraper/internal/extract"
	"github.com/osslab-pku/github-scraper/internal/rewriter"
	"github.com/osslab-pku/github-scraper/internal/transform"
	"github.com/osslab-pku/github-scraper/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

type fakeFetcher struct {
	mu      sync.Mutex
	pages   map[string]string
	fail    map[string]error
	fetched []string
}

func (f *fakeFetcher) Fetch(_ context.Context, req *types.Request) (*types.Response, error) {
	u := req.URLString()
	f.mu.Lock()
	f.fetched = append(f.fetched, u)
	f.mu.Unlock()

	if err, ok := f.fail[u]; ok {
		return nil, &types.FetchError{URL: u, StatusCode: 502, Err: err, Retryable: true}
	}
	body, ok := f.pages[u]
	if !ok {
		return nil, &types.FetchError{URL: u, StatusCode: 404, Err: types.ErrNotFound}
	}
	return &types.Response{StatusCode: 200, Body: io.NopCloser(strings.NewReader(body)), FinalURL: u}, nil
}

type row struct {
	id    int
	title string
}

func issuePage(current int, next string, rows ...row) string {
	var b strings.Builder
	b.WriteString("<html><body><div class=\"list\">")
	for _, r := range rows {
		fmt.Fprintf(&b, `<div class="row" id="issue_%d"><a class="title">%s</a></div>`, r.id, r.title)
	}
	b.WriteString("</div>")
	fmt.Fprintf(&b, `<em class="current">%d</em>`, current)
	if next != "" {
		fmt.Fprintf(&b, `<a class="next_page" href="%s">Next</a>`, next)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func issueCrawler(t *testing.T, f Fetcher) *Crawler {
	t.Helper()
	reg := extract.NewRegistry(
		extract.KeyRule{Selector: "div.row", Derive: extract.IDFromAttr("id", "issue_")},
		extract.TextRule{Name: "title", Selector: "a.title"},
		extract.AttributeRule{Name: "next", Selector: "a.next_page", Attribute: "href", Key: extract.PaginationKey},
		extract.TextRule{Name: "current", Selector: "em.current", Key: extract.PaginationKey},
	)
	factory, err := rewriter.Factory("stream")
	require.NoError(t, err)
	e, err := extract.NewEngine(reg, factory, testLogger)
	require.NoError(t, err)

	p := transform.New("issues", testLogger).
		Field("title", transform.Text()).
		Field("current", transform.Int()).
		KeyField("id")
	return New(f, e, p, UnionByID, testLogger)
}

const base = "https://github.com/o/n/issues"

func threePages() *fakeFetcher {
	return &fakeFetcher{pages: map[string]string{
		base:             issuePage(1, "/o/n/issues?page=2", row{30, "thirty"}, row{29, "twenty-nine"}),
		base + "?page=2": issuePage(2, "/o/n/issues?page=3", row{29, "moved"}, row{28, "twenty-eight"}),
		base + "?page=3": issuePage(3, "", row{27, "twenty-seven"}),
	}}
}

func ids(items []*types.Item) []any {
	out := make([]any, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestCrawlFollowsNextLinks(t *testing.T) {
	f := threePages()
	acc, err := issueCrawler(t, f).Crawl(context.Background(), base, 10)
	require.NoError(t, err)

	assert.Equal(t, []string{base, base + "?page=2", base + "?page=3"}, f.fetched)
	assert.Equal(t, 3, acc.Pages)
	assert.Equal(t, []any{27, 28, 29, 30}, ids(acc.Items()))

	moved, ok := acc.Get(29)
	require.True(t, ok)
	assert.Equal(t, "moved", moved.GetString("title"), "later page wins on duplicate ids")

	require.NotNil(t, acc.Pagination.Current)
	assert.Equal(t, 3, *acc.Pagination.Current)
	assert.False(t, acc.Pagination.HasNext())
	assert.Equal(t, base+"?page=3", acc.Pagination.URL)
}

func TestCrawlStopsAtMaxPages(t *testing.T) {
	f := threePages()
	acc, err := issueCrawler(t, f).Crawl(context.Background(), base, 2)
	require.NoError(t, err)

	assert.Len(t, f.fetched, 2)
	assert.Equal(t, 2, acc.Pages)
	assert.Equal(t, "/o/n/issues?page=3", acc.Pagination.Next, "ceiling is not an error and keeps the next link")
}

func TestCrawlZeroMaxPagesFetchesOnce(t *testing.T) {
	f := threePages()
	acc, err := issueCrawler(t, f).Crawl(context.Background(), base, 0)
	require.NoError(t, err)
	assert.Len(t, f.fetched, 1)
	assert.Equal(t, 2, acc.Len())
}

func TestCrawlFetchFailureDiscardsEverything(t *testing.T) {
	f := threePages()
	f.fail = map[string]error{base + "?page=2": errors.New("bad gateway")}

	acc, err := issueCrawler(t, f).Crawl(context.Background(), base, 10)
	require.Error(t, err)
	assert.Nil(t, acc)

	var fe *types.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, base+"?page=2", fe.URL)
	assert.Len(t, f.fetched, 2, "no page after the failing one is requested")
}

func TestCrawlExtractFailureCarriesURL(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		base: `<div class="row" id="pr_1"></div>`,
	}}
	_, err := issueCrawler(t, f).Crawl(context.Background(), base, 10)

	var xe *types.ExtractError
	require.True(t, errors.As(err, &xe))
	assert.Equal(t, base, xe.URL)
	assert.ErrorIs(t, err, types.ErrNoIdentity)
}

func TestCrawlNeverRevisits(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		base:             issuePage(1, "/o/n/issues?page=2", row{2, "two"}),
		base + "?page=2": issuePage(2, "/o/n/issues#top", row{1, "one"}),
	}}
	acc, err := issueCrawler(t, f).Crawl(context.Background(), base, 10)
	require.NoError(t, err)
	assert.Len(t, f.fetched, 2)
	assert.Equal(t, 2, acc.Len())
}

func TestCrawlDependentsShiftByCount(t *testing.T) {
	reg := extract.NewRegistry(
		extract.KeyRule{Selector: ".Box-row", Derive: extract.Ordinal()},
		extract.TextRule{Name: "repo", Selector: ".Box-row a.repo"},
		extract.AttributeRule{Name: "next", Selector: ".paginate-container a", Attribute: "href", Key: extract.PaginationKey},
	)
	factory, _ := rewriter.Factory("stream")
	e, err := extract.NewEngine(reg, factory, testLogger)
	require.NoError(t, err)
	p := transform.New("dependents", testLogger).Field("repo", transform.Text())

	dep := "https://github.com/o/n/network/dependents"
	rowsHTML := func(names ...string) string {
		var b strings.Builder
		for _, n := range names {
			fmt.Fprintf(&b, `<div class="Box-row"><a class="repo">%s</a></div>`, n)
		}
		return b.String()
	}
	f := &fakeFetcher{pages: map[string]string{
		dep: rowsHTML("a/1", "a/2", "a/3") + `<div class="paginate-container"><a href="?dependents_after=abc">Next</a></div>`,
		dep + "?dependents_after=abc": rowsHTML("b/1", "b/2"),
	}}

	acc, err := New(f, e, p, ShiftByCount, testLogger).Crawl(context.Background(), dep, 5)
	require.NoError(t, err)

	items := acc.Items()
	require.Equal(t, []any{0, 1, 2, 3, 4}, ids(items))
	assert.Equal(t, "a/3", items[2].GetString("repo"))
	assert.Equal(t, "b/1", items[3].GetString("repo"))
}

func TestCrawlDependentsRowWithoutValues(t *testing.T) {
	reg := extract.NewRegistry(
		extract.KeyRule{Selector: ".Box-row", Derive: extract.Ordinal()},
		extract.TextRule{Name: "repo", Selector: ".Box-row a.repo"},
		extract.AttributeRule{Name: "next", Selector: ".paginate-container a", Attribute: "href", Key: extract.PaginationKey},
	)
	factory, _ := rewriter.Factory("stream")
	e, err := extract.NewEngine(reg, factory, testLogger)
	require.NoError(t, err)
	p := transform.New("dependents", testLogger).Field("repo", transform.Text())

	dep := "https://github.com/o/n/network/dependents"
	f := &fakeFetcher{pages: map[string]string{
		dep: `<div class="Box-row"><a class="repo">a/1</a></div>` +
			`<div class="Box-row"></div>` +
			`<div class="Box-row"><a class="repo">a/3</a></div>` +
			`<div class="paginate-container"><a href="?dependents_after=abc">Next</a></div>`,
		dep + "?dependents_after=abc": `<div class="Box-row"><a class="repo">b/1</a></div>`,
	}}

	acc, err := New(f, e, p, ShiftByCount, testLogger).Crawl(context.Background(), dep, 5)
	require.NoError(t, err)

	items := acc.Items()
	var repos []string
	for _, item := range items {
		repos = append(repos, item.GetString("repo"))
	}
	assert.Equal(t, []string{"a/1", "a/3", "b/1"}, repos)
	assert.Equal(t, []any{0, 1, 2}, ids(items))
}

func TestUnionByIDIsIdempotent(t *testing.T) {
	page := &transform.Result{
		Entities:   []*types.Item{{ID: 1, Fields: map[string]any{"title": "a"}}, {ID: 2, Fields: map[string]any{"title": "b"}}},
		Global:     map[string]any{"open": 2},
		Pagination: types.Pagination{URL: base},
	}

	acc := NewAccumulator()
	UnionByID(acc, page)
	once := acc.Items()
	UnionByID(acc, page)

	assert.Equal(t, once, acc.Items())
	assert.Equal(t, map[string]any{"open": 2}, acc.Global)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "fetching", StateFetching.String())
	assert.Equal(t, "merging", StateMerging.String())
	assert.Equal(t, "done", StateDone.String())
	assert.Equal(t, "unknown", State(9).String())
}
