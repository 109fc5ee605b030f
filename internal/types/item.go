package types

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Item is one scraped entity: an issue, a timeline event, a dependent
// repository or a row of a JSON listing.
type Item struct {
	// ID is the scraped identity (int or string) or the ordinal for
	// listings without one.
	ID any

	// Fields stores the transformed field values.
	Fields map[string]any

	// URL is the page the item was extracted from.
	URL string

	// Listing names the listing kind ("issues", "timeline", ...).
	Listing string

	// Owner and Name identify the repository the item belongs to.
	Owner string
	Name  string

	// Timestamp is when this item was created.
	Timestamp time.Time
}

// NewItem creates a new empty Item from a source URL.
func NewItem(id any, sourceURL string) *Item {
	return &Item{
		ID:        id,
		Fields:    make(map[string]any),
		URL:       sourceURL,
		Timestamp: time.Now(),
	}
}

// Set sets a field value.
func (i *Item) Set(key string, value any) {
	i.Fields[key] = value
}

// Get retrieves a field value.
func (i *Item) Get(key string) (any, bool) {
	v, ok := i.Fields[key]
	return v, ok
}

// GetString retrieves a field value as a string.
func (i *Item) GetString(key string) string {
	v, ok := i.Fields[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// GetInt retrieves a numeric field value as an int.
func (i *Item) GetInt(key string) (int, bool) {
	switch v := i.Fields[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// Has returns true if the field exists.
func (i *Item) Has(key string) bool {
	_, ok := i.Fields[key]
	return ok
}

// Delete removes a field.
func (i *Item) Delete(key string) {
	delete(i.Fields, key)
}

// Keys returns all field names, sorted.
func (i *Item) Keys() []string {
	keys := make([]string, 0, len(i.Fields))
	for k := range i.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Document returns the fields together with the repository coordinates,
// which is the shape stored and served. Scraped owner and name fields take
// precedence over the coordinates.
func (i *Item) Document() map[string]any {
	doc := make(map[string]any, len(i.Fields)+2)
	for k, v := range i.Fields {
		doc[k] = v
	}
	if _, ok := doc["owner"]; !ok && i.Owner != "" {
		doc["owner"] = i.Owner
	}
	if _, ok := doc["name"]; !ok && i.Name != "" {
		doc["name"] = i.Name
	}
	return doc
}

// ToFlatMap returns a flat map suitable for CSV export.
func (i *Item) ToFlatMap() map[string]string {
	flat := make(map[string]string, len(i.Fields)+3)
	flat["_url"] = i.URL
	flat["_listing"] = i.Listing
	flat["_timestamp"] = i.Timestamp.Format(time.RFC3339)

	for k, v := range i.Document() {
		switch val := v.(type) {
		case string:
			flat[k] = val
		case int:
			flat[k] = fmt.Sprint(val)
		case nil:
			flat[k] = ""
		default:
			b, _ := json.Marshal(val)
			flat[k] = string(b)
		}
	}
	return flat
}

// Clone creates a shallow copy of the item with its own field map.
func (i *Item) Clone() *Item {
	clone := *i
	clone.Fields = make(map[string]any, len(i.Fields))
	for k, v := range i.Fields {
		clone.Fields[k] = v
	}
	return &clone
}
