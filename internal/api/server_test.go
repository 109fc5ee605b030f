package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osslab-pku/github-scraper/internal/config"
	"github.com/osslab-pku/github-scraper/internal/github"
	"github.com/osslab-pku/github-scraper/internal/observability"
	"github.com/osslab-pku/github-scraper/internal/pagecount"
	"github.com/osslab-pku/github-scraper/internal/types"
)

type fakeScraper struct {
	list       github.ListQuery
	thread     github.ThreadQuery
	dependents github.DependentsQuery
	pulls      bool
	err        error
}

func (f *fakeScraper) page() *github.Result {
	current, total := 2, 5
	return &github.Result{
		URL: "https://github.com/o/n/issues?page=2",
		Items: []*types.Item{
			{ID: 7, Owner: "o", Name: "n", Fields: map[string]any{"id": 7, "title": "seven"}},
		},
		Pagination: types.Pagination{
			Current: &current,
			Total:   &total,
			Next:    "https://github.com/o/n/issues?page=3",
		},
		Global: map[string]any{"openCount": 3},
	}
}

func (f *fakeScraper) Issues(ctx context.Context, q github.ListQuery) (*github.Result, error) {
	f.list = q
	if f.err != nil {
		return nil, f.err
	}
	return f.page(), nil
}

func (f *fakeScraper) Pulls(ctx context.Context, q github.ListQuery) (*github.Result, error) {
	f.pulls = true
	return f.Issues(ctx, q)
}

func (f *fakeScraper) Timeline(ctx context.Context, q github.ThreadQuery) (*github.Result, error) {
	f.thread = q
	if f.err != nil {
		return nil, f.err
	}
	return &github.Result{
		URL:        "https://github.com/o/n/issues/4",
		Items:      []*types.Item{{ID: "IC_1", Fields: map[string]any{"type": "comment"}}},
		Pagination: types.Pagination{Next: "https://github.com/o/n/issues/4/more"},
	}, nil
}

func (f *fakeScraper) Dependents(ctx context.Context, q github.DependentsQuery) (*github.Result, error) {
	f.dependents = q
	if f.err != nil {
		return nil, f.err
	}
	return &github.Result{URL: "https://github.com/o/n/network/dependents"}, nil
}

func (f *fakeScraper) CountRepos(ctx context.Context, namespace string, estimate int) (pagecount.Result, error) {
	if f.err != nil {
		return pagecount.Result{}, f.err
	}
	return pagecount.Result{TotalPages: 3, TotalItems: 250}, nil
}

func (f *fakeScraper) ListRepos(ctx context.Context, namespace string, estimate int) ([]*types.Item, pagecount.Result, error) {
	if f.err != nil {
		return nil, pagecount.Result{}, f.err
	}
	items := []*types.Item{
		{ID: 1, Owner: namespace, Fields: map[string]any{"full_name": namespace + "/a"}},
		{ID: 2, Owner: namespace, Fields: map[string]any{"full_name": namespace + "/b"}},
	}
	return items, pagecount.Result{TotalPages: 1, TotalItems: 2}, nil
}

func newTestServer(t *testing.T, scraper Scraper, token string) (*httptest.Server, *observability.Metrics) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Server.AuthToken = token
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetrics(logger)
	srv := httptest.NewServer(NewServer(cfg, scraper, metrics, logger).Handler())
	t.Cleanup(srv.Close)
	return srv, metrics
}

func get(t *testing.T, srv *httptest.Server, path string, header http.Header) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, srv.URL+path, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	}
	return resp, body
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, &fakeScraper{}, "secret")
	resp, body := get(t, srv, "/api/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	_, err := uuid.Parse(resp.Header.Get("X-Request-ID"))
	assert.NoError(t, err)
}

func TestIssues(t *testing.T) {
	scraper := &fakeScraper{}
	srv, metrics := newTestServer(t, scraper, "")

	resp, body := get(t, srv, "/github/issues?owner=o&name=n&query=is:open&fromPage=2&maxPages=3", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, github.ListQuery{Owner: "o", Name: "n", Query: "is:open", FromPage: 2, MaxPages: 3}, scraper.list)
	assert.False(t, scraper.pulls)
	assert.Equal(t, "https://github.com/o/n/issues?page=2", body["url"])
	assert.EqualValues(t, 2, body["current"])
	assert.EqualValues(t, 5, body["total"])
	assert.Equal(t, "https://github.com/o/n/issues?page=3", body["next"])
	assert.Equal(t, map[string]any{"openCount": float64(3)}, body["global"])

	data := body["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, map[string]any{"id": float64(7), "owner": "o", "name": "n", "title": "seven"}, data[0])

	assert.EqualValues(t, 1, metrics.APIRequests.Load())
}

func TestIssuesCursor(t *testing.T) {
	scraper := &fakeScraper{}
	srv, _ := newTestServer(t, scraper, "")

	next := "https://github.com/o/n/issues?page=3"
	resp, _ := get(t, srv, "/github/issues?owner=o&name=n&cursor="+url.QueryEscape(next), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, next, scraper.list.Cursor)
	assert.Equal(t, 1, scraper.list.FromPage)
}

func TestPullsDefaults(t *testing.T) {
	scraper := &fakeScraper{}
	srv, _ := newTestServer(t, scraper, "")

	resp, _ := get(t, srv, "/github/pulls?owner=o&name=n", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, scraper.pulls)
	assert.Equal(t, 1, scraper.list.FromPage)
	assert.Zero(t, scraper.list.MaxPages)
}

func TestThread(t *testing.T) {
	scraper := &fakeScraper{}
	srv, _ := newTestServer(t, scraper, "")

	resp, body := get(t, srv, "/github/pull?owner=o&name=n&id=4&cursor=https://github.com/o/n/x", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, github.ThreadQuery{
		Owner: "o", Name: "n", Number: 4, Pull: true, Cursor: "https://github.com/o/n/x",
	}, scraper.thread)
	assert.Nil(t, body["current"])
	assert.Equal(t, "https://github.com/o/n/issues/4/more", body["next"])

	resp, _ = get(t, srv, "/github/issue?owner=o&name=n&id=0", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDependents(t *testing.T) {
	scraper := &fakeScraper{}
	srv, _ := newTestServer(t, scraper, "")

	resp, body := get(t, srv, "/github/dependents?owner=o&name=n&type=package&package_id=UGFj", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, github.DependentsQuery{Owner: "o", Name: "n", Type: "package", PackageID: "UGFj"}, scraper.dependents)
	assert.Equal(t, []any{}, body["data"])
}

func TestRepos(t *testing.T) {
	srv, _ := newTestServer(t, &fakeScraper{}, "")

	resp, body := get(t, srv, "/github/repos?namespace=acme&countOnly=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"totalPages": float64(3), "totalItems": float64(250)}, body)

	resp, body = get(t, srv, "/github/repos?namespace=acme", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["data"], 2)
	assert.EqualValues(t, 2, body["total"])
}

func TestBadParameters(t *testing.T) {
	srv, _ := newTestServer(t, &fakeScraper{}, "")

	for _, path := range []string{
		"/github/issues?name=n",
		"/github/issues?owner=o&name=n&fromPage=two",
		"/github/repos",
		"/github/dependents?owner=o",
	} {
		resp, body := get(t, srv, path, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
		assert.NotEmpty(t, body["error"], path)
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&types.FetchError{URL: "u", StatusCode: 404, Err: types.ErrNotFound}, http.StatusNotFound},
		{fmt.Errorf("cursor: %w", types.ErrInvalidURL), http.StatusBadRequest},
		{&types.FetchError{URL: "u", StatusCode: 502}, http.StatusBadGateway},
		{&types.ExtractError{URL: "u", Err: types.ErrNoIdentity}, http.StatusBadGateway},
		{&types.ProbeError{Page: 4, Err: &types.FetchError{URL: "u", StatusCode: 500}}, http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			srv, metrics := newTestServer(t, &fakeScraper{err: tt.err}, "")
			resp, body := get(t, srv, "/github/issues?owner=o&name=n", nil)
			assert.Equal(t, tt.want, resp.StatusCode)
			assert.NotEmpty(t, body["error"])
			if tt.want == http.StatusNotFound {
				assert.Contains(t, body["error"], "not found")
			}
			if tt.want >= 500 {
				assert.EqualValues(t, 1, metrics.API5xx.Load())
			}
		})
	}
}

func TestAuth(t *testing.T) {
	srv, metrics := newTestServer(t, &fakeScraper{}, "secret")

	resp, _ := get(t, srv, "/github/issues?owner=o&name=n", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.EqualValues(t, 1, metrics.API4xx.Load())

	resp, _ = get(t, srv, "/github/issues?owner=o&name=n", http.Header{"Authorization": {"wrong"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = get(t, srv, "/github/issues?owner=o&name=n", http.Header{"Authorization": {"secret"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = get(t, srv, "/github/issues?owner=o&name=n", http.Header{"Authorization": {"Bearer secret"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRequestIDPassThrough(t *testing.T) {
	srv, _ := newTestServer(t, &fakeScraper{}, "")
	id := uuid.NewString()

	resp, _ := get(t, srv, "/api/health", http.Header{"X-Request-Id": {id}})
	assert.Equal(t, id, resp.Header.Get("X-Request-ID"))

	resp, _ = get(t, srv, "/api/health", http.Header{"X-Request-Id": {"not-a-uuid"}})
	assert.NotEqual(t, "not-a-uuid", resp.Header.Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, &fakeScraper{}, "")
	get(t, srv, "/api/health", nil)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(b), "ghscraper_api_requests_total 1")
}
