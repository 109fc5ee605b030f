package crawl

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/osslab-pku/github-scraper/internal/types"
)

// PageFunc fetches the records of one numbered page.
type PageFunc func(ctx context.Context, page int) ([]*types.Item, error)

// FetchRange fetches pages from..to (inclusive) with at most limit in
// flight, then merges them in page order, later pages winning on
// duplicate ids. The first failure cancels the rest.
func FetchRange(ctx context.Context, from, to, limit int, fetch PageFunc) (*Accumulator, error) {
	acc := NewAccumulator()
	if from > to {
		return acc, nil
	}

	results := make([][]*types.Item, to-from+1)
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for p := from; p <= to; p++ {
		g.Go(func() error {
			items, err := fetch(gctx, p)
			if err != nil {
				return fmt.Errorf("page %d: %w", p, err)
			}
			results[p-from] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, items := range results {
		for _, item := range items {
			acc.put(item)
		}
		acc.Pages++
	}
	return acc, nil
}
