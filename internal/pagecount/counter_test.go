package pagecount

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osslab-pku/github-scraper/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

// collection simulates a listing of size items and records every probe.
type collection struct {
	size     int
	pageSize int
	probes   []int
}

func (c *collection) PageLength(_ context.Context, page int) (int, error) {
	c.probes = append(c.probes, page)
	start := (page - 1) * c.pageSize
	switch {
	case start >= c.size:
		return 0, nil
	case c.size-start >= c.pageSize:
		return c.pageSize, nil
	default:
		return c.size - start, nil
	}
}

func TestCount(t *testing.T) {
	tests := []struct {
		name     string
		size     int
		estimate int
		want     Result
	}{
		{"partial last page", 250, 0, Result{TotalPages: 3, TotalItems: 250}},
		{"partial last page with estimate", 250, 1000, Result{TotalPages: 3, TotalItems: 250}},
		{"exact boundary", 300, 0, Result{TotalPages: 3, TotalItems: 300}},
		{"exact boundary overestimated", 300, 500, Result{TotalPages: 3, TotalItems: 300}},
		{"empty", 0, 0, Result{TotalPages: 0, TotalItems: 0}},
		{"single partial page", 7, 7, Result{TotalPages: 1, TotalItems: 7}},
		{"single full page", 100, 100, Result{TotalPages: 1, TotalItems: 100}},
		{"underestimate", 12345, 300, Result{TotalPages: 124, TotalItems: 12345}},
		{"large exact", 64000, 10, Result{TotalPages: 640, TotalItems: 64000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &collection{size: tt.size, pageSize: 100}
			got, err := New(nil, testLogger).Count(context.Background(), c, 100, tt.estimate)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			seen := make(map[int]bool)
			for _, p := range c.probes {
				assert.False(t, seen[p], "page %d probed twice", p)
				seen[p] = true
			}
		})
	}
}

func TestCountEveryEstimateAgrees(t *testing.T) {
	for size := 0; size <= 1000; size += 37 {
		for _, estimate := range []int{0, 1, 99, 100, 101, size, size * 3, 5000} {
			c := &collection{size: size, pageSize: 100}
			got, err := New(nil, testLogger).Count(context.Background(), c, 100, estimate)
			require.NoError(t, err)
			require.Equal(t, size, got.TotalItems, "size %d estimate %d", size, estimate)
			require.Equal(t, (size+99)/100, got.TotalPages, "size %d estimate %d", size, estimate)
		}
	}
}

func TestCountProbeError(t *testing.T) {
	boom := errors.New("boom")
	p := ProberFunc(func(_ context.Context, page int) (int, error) {
		if page > 1 {
			return 0, boom
		}
		return 100, nil
	})

	_, err := New(nil, testLogger).Count(context.Background(), p, 100, 0)
	assert.ErrorIs(t, err, boom)

	var pe *types.ProbeError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 2, pe.Page)
}

func TestCountRejectsOversizedPage(t *testing.T) {
	p := ProberFunc(func(context.Context, int) (int, error) { return 101, nil })
	_, err := New(nil, testLogger).Count(context.Background(), p, 100, 0)
	assert.ErrorIs(t, err, types.ErrBadProbe)
}

func TestCountStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	p := ProberFunc(func(context.Context, int) (int, error) {
		calls++
		if calls == 3 {
			cancel()
		}
		return 100, nil
	})

	_, err := New(nil, testLogger).Count(ctx, p, 100, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, calls)
}

func TestCountOverflow(t *testing.T) {
	p := ProberFunc(func(context.Context, int) (int, error) { return 10, nil })
	_, err := New(nil, testLogger).Count(context.Background(), p, 10, 0)
	assert.ErrorIs(t, err, types.ErrProbeOverflow)
}
