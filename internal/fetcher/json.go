package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-resty/resty/v2"

	"github.com/osslab-pku/github-scraper/internal/config"
	"github.com/osslab-pku/github-scraper/internal/observability"
	"github.com/osslab-pku/github-scraper/internal/types"
)

// JSONClient fetches numbered pages of a JSON array listing.
type JSONClient struct {
	client  *resty.Client
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewJSONClient creates a client with the fetcher's timeout and headers.
func NewJSONClient(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *JSONClient {
	c := resty.New().
		SetTimeout(cfg.Fetcher.RequestTimeout).
		SetHeader("Accept", "application/vnd.github+json").
		SetHeader("User-Agent", "github-scraper/"+config.Version)
	for k, v := range cfg.Fetcher.Headers {
		c.SetHeader(k, v)
	}
	if cfg.Proxy.Enabled && len(cfg.Proxy.URLs) > 0 {
		c.SetProxy(cfg.Proxy.URLs[0])
	}

	return &JSONClient{
		client:  c,
		metrics: metrics,
		logger:  logger.With("component", "json_client"),
	}
}

// Page returns the objects on one page of the listing at rawURL.
func (c *JSONClient) Page(ctx context.Context, rawURL string, page, perPage int) ([]map[string]any, error) {
	var out []map[string]any
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"page":     strconv.Itoa(page),
			"per_page": strconv.Itoa(perPage),
		}).
		ForceContentType("application/json").
		SetResult(&out).
		Get(rawURL)
	if err != nil {
		c.metrics.PageFailed()
		return nil, &types.FetchError{URL: rawURL, Err: err, Retryable: isRetryableError(err)}
	}
	c.metrics.PageFetched()
	c.metrics.Downloaded(resp.Size())

	if resp.IsError() {
		return nil, jsonStatusError(resp)
	}

	c.logger.Debug("json page fetched", "url", rawURL, "page", page, "items", len(out))
	return out, nil
}

// PageLength reports how many objects a page holds.
func (c *JSONClient) PageLength(ctx context.Context, rawURL string, page, perPage int) (int, error) {
	items, err := c.Page(ctx, rawURL, page, perPage)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

func jsonStatusError(resp *resty.Response) error {
	rawURL := resp.Request.URL
	code := resp.StatusCode()

	switch {
	case code == http.StatusNotFound:
		return &types.FetchError{URL: rawURL, StatusCode: code, Err: types.ErrNotFound}
	case code == http.StatusTooManyRequests || (code == http.StatusForbidden && resp.Header().Get("X-RateLimit-Remaining") == "0"):
		retryAfter := parseRetryAfter(resp.Header().Get("Retry-After"))
		return &types.FetchError{
			URL:        rawURL,
			StatusCode: code,
			Err:        fmt.Errorf("HTTP %d: rate limited (retry after %s)", code, retryAfter),
			Retryable:  true,
			RetryAfter: retryAfter,
		}
	case code >= 500:
		return &types.FetchError{URL: rawURL, StatusCode: code, Err: fmt.Errorf("HTTP %d", code), Retryable: true}
	default:
		return &types.FetchError{URL: rawURL, StatusCode: code, Err: fmt.Errorf("HTTP %d: %s", code, resp.Status())}
	}
}
