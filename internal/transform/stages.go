package transform

import (
	"github.com/osslab-pku/github-scraper/internal/types"
)

// CombineFunc builds one field from the other, already transformed, fields
// of a record.
type CombineFunc func(item *types.Item) (any, bool)

type combineStage struct {
	field string
	fn    CombineFunc
}

// Combine sets field to the result of fn, or removes it when fn yields
// nothing.
func Combine(field string, fn CombineFunc) Stage {
	return &combineStage{field: field, fn: fn}
}

func (s *combineStage) Name() string { return "combine_" + s.field }

func (s *combineStage) Process(item *types.Item) (*types.Item, error) {
	if v, ok := s.fn(item); ok {
		item.Set(s.field, v)
	} else {
		item.Delete(s.field)
	}
	return item, nil
}

type dropStage struct {
	fields []string
}

// Drop removes auxiliary fields from the output.
func Drop(fields ...string) Stage {
	return &dropStage{fields: fields}
}

func (s *dropStage) Name() string { return "drop" }

func (s *dropStage) Process(item *types.Item) (*types.Item, error) {
	for _, f := range s.fields {
		item.Delete(f)
	}
	return item, nil
}

type requireStage struct {
	fields []string
}

// Require drops entity records missing any of fields.
func Require(fields ...string) Stage {
	return &requireStage{fields: fields}
}

func (s *requireStage) Name() string { return "require" }

func (s *requireStage) Process(item *types.Item) (*types.Item, error) {
	for _, f := range s.fields {
		if !item.Has(f) {
			return nil, nil
		}
	}
	return item, nil
}

// ZipReactions pairs the label list in labels with the count list in
// counts. Pairs without a count are skipped.
func ZipReactions(labels, counts string) CombineFunc {
	return func(item *types.Item) (any, bool) {
		ls, _ := item.Get(labels)
		cs, _ := item.Get(counts)
		labelList := stringsOf(ls)
		countList := stringsOf(cs)

		var out []types.Reaction
		for i, label := range labelList {
			if i >= len(countList) {
				break
			}
			n, ok := parseCount(countList[i])
			if !ok {
				continue
			}
			out = append(out, types.Reaction{Label: label, Count: n})
		}
		return out, len(out) > 0
	}
}

func stringsOf(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case string:
		return []string{s}
	}
	return nil
}
