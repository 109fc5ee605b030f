package ghscraper

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osslab-pku/github-scraper/internal/config"
	"github.com/osslab-pku/github-scraper/internal/observability"
	"github.com/osslab-pku/github-scraper/internal/types"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func fakeGitHub(t *testing.T) *httptest.Server {
	t.Helper()
	page, err := os.ReadFile("../../internal/github/testdata/issues_2.html")
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /octo/widgets/issues", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(page)
	})
	mux.HandleFunc("GET /users/acme/repos", func(w http.ResponseWriter, r *http.Request) {
		n, _ := strconv.Atoi(r.URL.Query().Get("page"))
		perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
		const total = 7
		repos := []map[string]any{}
		for id := (n-1)*perPage + 1; id <= n*perPage && id <= total; id++ {
			repos = append(repos, map[string]any{"id": id, "name": "repo" + strconv.Itoa(id)})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(repos)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newScraper(t *testing.T, srv *httptest.Server, opts ...Option) *Scraper {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Scraper.PageSize = 3
	opts = append([]Option{
		WithConfig(cfg),
		WithLogger(quiet),
		WithBaseURL(srv.URL, srv.URL),
		WithRateLimit(0),
	}, opts...)
	s, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestIssues(t *testing.T) {
	for _, backend := range []string{"stream", "dom"} {
		t.Run(backend, func(t *testing.T) {
			metrics := observability.NewMetrics(quiet)
			s := newScraper(t, fakeGitHub(t), WithBackend(backend), WithMetrics(metrics))

			res, err := s.Issues(context.Background(), ListQuery{Owner: "octo", Name: "widgets"})
			require.NoError(t, err)
			require.Len(t, res.Items, 2)
			assert.Equal(t, 37, res.Items[0].ID)
			assert.Equal(t, 40, res.Items[1].ID)
			assert.Equal(t, "Old bug (reopened)", res.Items[1].Fields["title"])
			assert.Equal(t, "octo", res.Items[1].Owner)
			assert.False(t, res.Pagination.HasNext())
			assert.EqualValues(t, 1, metrics.PagesFetched.Load())
		})
	}
}

func TestRepos(t *testing.T) {
	s := newScraper(t, fakeGitHub(t))

	count, err := s.CountRepos(context.Background(), "acme", 0)
	require.NoError(t, err)
	assert.Equal(t, Count{TotalPages: 3, TotalItems: 7}, count)

	items, count, err := s.ListRepos(context.Background(), "acme", 0)
	require.NoError(t, err)
	assert.Equal(t, 7, count.TotalItems)
	require.Len(t, items, 7)
	assert.Equal(t, 1, items[0].ID)
	assert.Equal(t, "repo7", items[6].Fields["name"])
}

func TestNotFound(t *testing.T) {
	s := newScraper(t, fakeGitHub(t))
	_, err := s.Pulls(context.Background(), ListQuery{Owner: "octo", Name: "missing"})
	assert.ErrorIs(t, err, types.ErrNotFound)
}

type stubFetcher struct{ calls int }

func (f *stubFetcher) Fetch(ctx context.Context, req *types.Request) (*types.Response, error) {
	f.calls++
	return nil, &types.FetchError{URL: req.URLString(), StatusCode: 404, Err: types.ErrNotFound}
}

func TestWithFetcher(t *testing.T) {
	f := &stubFetcher{}
	s := newScraper(t, fakeGitHub(t), WithFetcher(f))

	_, err := s.Timeline(context.Background(), ThreadQuery{Owner: "o", Name: "n", Number: 1})
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.Equal(t, 1, f.calls)
	assert.NoError(t, s.Close())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(WithLogger(quiet), WithBackend("regex"))
	assert.Error(t, err)
}
