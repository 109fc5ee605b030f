package crawl

import (
	"sort"

	"github.com/osslab-pku/github-scraper/internal/transform"
	"github.com/osslab-pku/github-scraper/internal/types"
)

// Accumulator is the merged output of every page of one crawl.
type Accumulator struct {
	items []*types.Item
	index map[any]int

	// Global holds page-wide fields, later pages winning per field.
	Global map[string]any

	// Uncollected holds values seen before any record started.
	Uncollected map[string]any

	// Pagination is the metadata of the most recently merged page.
	Pagination types.Pagination

	// Pages is the number of pages merged.
	Pages int
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		index:       make(map[any]int),
		Global:      make(map[string]any),
		Uncollected: make(map[string]any),
	}
}

// Len returns the number of entity records.
func (a *Accumulator) Len() int { return len(a.items) }

// Items returns the records: integer ids ascending, then the rest in
// merge order.
func (a *Accumulator) Items() []*types.Item {
	out := append([]*types.Item(nil), a.items...)
	sort.SliceStable(out, func(i, j int) bool {
		x, xok := out[i].ID.(int)
		y, yok := out[j].ID.(int)
		if xok && yok {
			return x < y
		}
		return xok && !yok
	})
	return out
}

// Get returns the record with the given id.
func (a *Accumulator) Get(id any) (*types.Item, bool) {
	i, ok := a.index[id]
	if !ok {
		return nil, false
	}
	return a.items[i], true
}

// put adds item, replacing a record with the same id in place.
func (a *Accumulator) put(item *types.Item) {
	if item.ID == nil {
		a.items = append(a.items, item)
		return
	}
	if i, ok := a.index[item.ID]; ok {
		a.items[i] = item
		return
	}
	a.index[item.ID] = len(a.items)
	a.items = append(a.items, item)
}

func (a *Accumulator) mergeBuckets(page *transform.Result) {
	for k, v := range page.Global {
		a.Global[k] = v
	}
	for k, v := range page.Uncollected {
		a.Uncollected[k] = v
	}
	a.Pagination = page.Pagination
	a.Pages++
}

// MergePolicy folds one page into the accumulator.
type MergePolicy func(acc *Accumulator, page *transform.Result)

// UnionByID merges records by their scraped id. A record seen again on a
// later page replaces the earlier one.
func UnionByID(acc *Accumulator, page *transform.Result) {
	for _, item := range page.Entities {
		acc.put(item)
	}
	acc.mergeBuckets(page)
}

// ShiftByCount renumbers page-local ordinal ids to follow the records
// already accumulated, for listings that expose no stable id. Ordinals are
// compacted first, so rows that produced no record leave no gap for a
// later page to collide with.
func ShiftByCount(acc *Accumulator, page *transform.Result) {
	ordinals := make([]*types.Item, 0, len(page.Entities))
	for _, item := range page.Entities {
		if _, ok := item.ID.(int); ok {
			ordinals = append(ordinals, item)
		}
	}
	sort.SliceStable(ordinals, func(i, j int) bool {
		return ordinals[i].ID.(int) < ordinals[j].ID.(int)
	})

	offset := acc.Len()
	for i, item := range ordinals {
		item = item.Clone()
		item.ID = offset + i
		acc.put(item)
	}
	for _, item := range page.Entities {
		if _, ok := item.ID.(int); !ok {
			acc.put(item)
		}
	}
	acc.mergeBuckets(page)
}
