package transform

import (
	"fmt"
	"log/slog"

	"github.com/osslab-pku/github-scraper/internal/extract"
	"github.com/osslab-pku/github-scraper/internal/types"
)

// Func turns the raw values of one field into its final value. Returning
// false leaves the field out of the record.
type Func func(raw []string, key extract.Key) (any, bool)

// Stage processes a whole entity record after its fields are transformed.
// Return nil to drop the record.
type Stage interface {
	// Name returns the stage's identifier.
	Name() string

	// Process transforms an item. Return nil to drop the item.
	Process(item *types.Item) (*types.Item, error)
}

// Result is the transformed output of one page.
type Result struct {
	Entities    []*types.Item
	Global      map[string]any
	Uncollected map[string]any
	Pagination  types.Pagination
}

// Pipeline applies per-field transforms, then record stages, to a
// Collection. A Pipeline is immutable once built and may be shared.
type Pipeline struct {
	listing  string
	fields   map[string]Func
	stages   []Stage
	keyField string
	logger   *slog.Logger
}

// New creates an empty pipeline for a listing kind.
func New(listing string, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		listing: listing,
		fields:  make(map[string]Func),
		logger:  logger.With("component", "transform", "listing", listing),
	}
}

// Field sets the transform for a field name. Fields without one keep their
// raw values.
func (p *Pipeline) Field(name string, fn Func) *Pipeline {
	p.fields[name] = fn
	return p
}

// Use appends a record stage.
func (p *Pipeline) Use(s Stage) *Pipeline {
	p.stages = append(p.stages, s)
	p.logger.Debug("stage added", "name", s.Name(), "position", len(p.stages))
	return p
}

// KeyField copies each entity's key into the named field.
func (p *Pipeline) KeyField(name string) *Pipeline {
	p.keyField = name
	return p
}

// Listing returns the listing kind the pipeline was built for.
func (p *Pipeline) Listing() string { return p.listing }

// Apply transforms a parsed page. pageURL is recorded as provenance.
func (p *Pipeline) Apply(c *extract.Collection, pageURL string) *Result {
	res := &Result{
		Global:      map[string]any{},
		Uncollected: map[string]any{},
		Pagination:  types.Pagination{URL: pageURL},
	}

	for _, key := range c.Keys() {
		rec, _ := c.Record(key)
		item := p.fieldsOf(rec, key, pageURL)

		switch key {
		case extract.PaginationKey:
			res.Pagination = paginationOf(item.Fields, pageURL)
			continue
		case extract.Uncollected:
			res.Uncollected = item.Fields
			continue
		case extract.GlobalKey:
			res.Global = item.Fields
			continue
		}

		if p.keyField != "" {
			item.Set(p.keyField, key.Value())
		}
		if item = p.runStages(item); item != nil {
			res.Entities = append(res.Entities, item)
		}
	}

	return res
}

func (p *Pipeline) fieldsOf(rec *extract.Record, key extract.Key, pageURL string) *types.Item {
	item := types.NewItem(key.Value(), pageURL)
	item.Listing = p.listing

	for _, name := range rec.Fields() {
		raw := rec.Values(name)
		fn, ok := p.fields[name]
		if !ok {
			item.Set(name, raw)
			continue
		}
		if v, ok := p.call(name, fn, raw, key); ok {
			item.Set(name, v)
		}
	}
	return item
}

// call runs fn, treating a panic as an absent value.
func (p *Pipeline) call(name string, fn Func, raw []string, key extract.Key) (v any, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("transform failed", "error", &types.TransformError{
				Field: name,
				Key:   key.String(),
				Err:   fmt.Errorf("panic: %v", r),
			})
			v, ok = nil, false
		}
	}()
	return fn(raw, key)
}

func (p *Pipeline) runStages(item *types.Item) *types.Item {
	current := item
	for _, s := range p.stages {
		result, err := s.Process(current.Clone())
		if err != nil {
			p.logger.Warn("stage failed", "stage", s.Name(), "error", &types.TransformError{
				Field: s.Name(),
				Key:   fmt.Sprint(item.ID),
				Err:   err,
			})
			continue
		}
		if result == nil {
			p.logger.Debug("item dropped", "stage", s.Name(), "id", item.ID)
			return nil
		}
		current = result
	}
	return current
}

func paginationOf(fields map[string]any, pageURL string) types.Pagination {
	pg := types.Pagination{URL: pageURL}
	if next, ok := fields["next"]; ok {
		pg.Next = asString(next)
	}
	if n, ok := asInt(fields["total"]); ok {
		pg.Total = &n
	}
	if n, ok := asInt(fields["current"]); ok {
		pg.Current = &n
	}
	return pg
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []string:
		if len(s) > 0 {
			return s[0]
		}
	}
	return ""
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case string:
		return parseCount(n)
	case []string:
		if len(n) > 0 {
			return parseCount(n[0])
		}
	}
	return 0, false
}
