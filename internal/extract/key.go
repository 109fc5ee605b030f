package extract

import (
	"sort"
	"strconv"
)

type keyKind uint8

const (
	kindUncollected keyKind = iota
	kindInt
	kindString
)

// Key identifies the record a value is filed under. The zero Key is the
// uncollected bucket: values seen before any KeyRule fired land there.
type Key struct {
	kind keyKind
	num  int
	str  string
}

// Reserved string keys.
var (
	Uncollected   = Key{}
	GlobalKey     = StringKey("global")
	PaginationKey = StringKey("pagination")
)

// IntKey returns a numeric key, as used for scraped ids and ordinals.
func IntKey(n int) Key { return Key{kind: kindInt, num: n} }

// StringKey returns a string key.
func StringKey(s string) Key { return Key{kind: kindString, str: s} }

// IsUncollected reports whether k is the uncollected sentinel.
func (k Key) IsUncollected() bool { return k.kind == kindUncollected }

// IsReserved reports whether k is one of the non-entity buckets.
func (k Key) IsReserved() bool {
	return k == Uncollected || k == GlobalKey || k == PaginationKey
}

// Int returns the numeric value of an integer key.
func (k Key) Int() (int, bool) { return k.num, k.kind == kindInt }

// Value returns the key as an int or string, or nil for Uncollected.
func (k Key) Value() any {
	switch k.kind {
	case kindInt:
		return k.num
	case kindString:
		return k.str
	}
	return nil
}

func (k Key) String() string {
	switch k.kind {
	case kindInt:
		return strconv.Itoa(k.num)
	case kindString:
		return k.str
	}
	return "uncollected"
}

// sortKeys orders integer keys ascending ahead of the remaining keys, which
// keep their relative order.
func sortKeys(keys []Key) {
	sort.SliceStable(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.kind == kindInt && b.kind == kindInt {
			return a.num < b.num
		}
		return a.kind == kindInt && b.kind != kindInt
	})
}
