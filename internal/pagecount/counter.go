// Package pagecount finds the size of a paginated collection whose total
// is not advertised, by probing page lengths.
package pagecount

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/osslab-pku/github-scraper/internal/observability"
	"github.com/osslab-pku/github-scraper/internal/types"
)

// DefaultPageSize is the page size of the listings probed by default.
const DefaultPageSize = 100

// Prober reports how many items a page holds, between 0 and the page size.
// Page lengths must not increase with the page number.
type Prober interface {
	PageLength(ctx context.Context, page int) (int, error)
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, page int) (int, error)

// PageLength implements Prober.
func (f ProberFunc) PageLength(ctx context.Context, page int) (int, error) {
	return f(ctx, page)
}

// Result is the located end of a collection.
type Result struct {
	TotalPages int `json:"totalPages"`
	TotalItems int `json:"totalItems"`
}

// Counter runs page-count searches.
type Counter struct {
	metrics *observability.Metrics
	logger  *slog.Logger
}

// New creates a Counter. metrics may be nil.
func New(metrics *observability.Metrics, logger *slog.Logger) *Counter {
	return &Counter{
		metrics: metrics,
		logger:  logger.With("component", "pagecount"),
	}
}

// search holds the state of one Count call.
type search struct {
	c        *Counter
	prober   Prober
	pageSize int
	probed   map[int]int
}

func (s *search) length(ctx context.Context, page int) (int, error) {
	if n, ok := s.probed[page]; ok {
		return n, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.c.metrics.ProbeSent()
	n, err := s.prober.PageLength(ctx, page)
	if err != nil {
		return 0, &types.ProbeError{Page: page, Err: err}
	}
	if n < 0 || n > s.pageSize {
		return 0, &types.ProbeError{Page: page, Err: fmt.Errorf("%w: %d items with page size %d", types.ErrBadProbe, n, s.pageSize)}
	}
	s.c.logger.Debug("probed page", "page", page, "length", n)
	s.probed[page] = n
	return n, nil
}

// Count locates the last page. roughEstimate is a guess at the number of
// items and only affects how many probes are needed. Probes run one at a
// time, and no page is probed twice.
func (c *Counter) Count(ctx context.Context, prober Prober, pageSize, roughEstimate int) (Result, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	s := &search{c: c, prober: prober, pageSize: pageSize, probed: make(map[int]int)}

	probe := 1
	if roughEstimate > 0 {
		probe = (roughEstimate + pageSize - 1) / pageSize
	}

	// Phase 1: double until a page is not full.
	low := 1
	for {
		n, err := s.length(ctx, probe)
		if err != nil {
			return Result{}, err
		}
		if n > 0 && n < pageSize {
			return c.found(probe, (probe-1)*pageSize+n, len(s.probed)), nil
		}
		if n == 0 {
			break
		}
		low = probe + 1
		if probe > math.MaxInt/2 {
			return Result{}, types.ErrProbeOverflow
		}
		probe *= 2
	}
	high := probe

	// Phase 2: binary search between the last full page and the first
	// empty one.
	for low <= high {
		mid := low + (high-low)/2
		n, err := s.length(ctx, mid)
		if err != nil {
			return Result{}, err
		}
		switch {
		case n == pageSize:
			low = mid + 1
		case n == 0:
			high = mid - 1
		default:
			return c.found(mid, (mid-1)*pageSize+n, len(s.probed)), nil
		}
	}

	// The last page is full: high is the last full page.
	return c.found(high, high*pageSize, len(s.probed)), nil
}

func (c *Counter) found(pages, items, probes int) Result {
	c.logger.Info("page count located", "pages", pages, "items", items, "probes", probes)
	return Result{TotalPages: pages, TotalItems: items}
}
