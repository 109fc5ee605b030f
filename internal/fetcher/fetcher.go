package fetcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/osslab-pku/github-scraper/internal/config"
	"github.com/osslab-pku/github-scraper/internal/observability"
	"github.com/osslab-pku/github-scraper/internal/types"
)

// Fetcher is the interface for all page fetcher implementations.
type Fetcher interface {
	// Fetch retrieves the page at the request's URL. The response body
	// streams and must be closed by the caller.
	Fetch(ctx context.Context, req *types.Request) (*types.Response, error)

	// Close releases any resources held by the fetcher.
	Close() error

	// Type returns the fetcher type identifier.
	Type() string
}

// New builds the fetcher selected by cfg.Fetcher.Type.
func New(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) (Fetcher, error) {
	switch cfg.Fetcher.Type {
	case "", "http":
		return NewHTTPFetcher(cfg, metrics, logger)
	case "browser":
		var opts []BrowserOption
		if cfg.Proxy.Enabled && len(cfg.Proxy.URLs) > 0 {
			opts = append(opts, WithBrowserProxy(NewProxyManager(&cfg.Proxy, metrics, logger)))
		}
		return NewBrowserFetcher(cfg, metrics, logger, opts...)
	default:
		return nil, fmt.Errorf("unknown fetcher type %q", cfg.Fetcher.Type)
	}
}
