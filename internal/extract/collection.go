package extract

// Record holds the raw values collected for one key, by field name.
type Record struct {
	fields map[string][]string
	order  []string
}

func newRecord() *Record {
	return &Record{fields: make(map[string][]string)}
}

// Values returns the values collected for name in document order.
func (r *Record) Values(name string) []string {
	return r.fields[name]
}

// Has reports whether at least one value was collected for name.
func (r *Record) Has(name string) bool {
	return len(r.fields[name]) > 0
}

// Fields returns the field names in first-seen order.
func (r *Record) Fields() []string {
	return append([]string(nil), r.order...)
}

// Len returns the number of fields.
func (r *Record) Len() int { return len(r.order) }

func (r *Record) add(name, value string) {
	if _, ok := r.fields[name]; !ok {
		r.order = append(r.order, name)
	}
	r.fields[name] = append(r.fields[name], value)
}

// Collection maps keys to records. It is populated by a single parse and
// read-only afterwards.
type Collection struct {
	records map[Key]*Record
	order   []Key
}

// NewCollection returns an empty collection.
func NewCollection() *Collection {
	return &Collection{records: make(map[Key]*Record)}
}

// Add appends value to field name of the record for key.
func (c *Collection) Add(key Key, name, value string) {
	rec, ok := c.records[key]
	if !ok {
		rec = newRecord()
		c.records[key] = rec
		c.order = append(c.order, key)
	}
	rec.add(name, value)
}

// Record returns the record filed under key.
func (c *Collection) Record(key Key) (*Record, bool) {
	rec, ok := c.records[key]
	return rec, ok
}

// Keys returns every key: integer keys ascending first, then the others in
// first-seen order.
func (c *Collection) Keys() []Key {
	keys := append([]Key(nil), c.order...)
	sortKeys(keys)
	return keys
}

// EntityKeys returns the keys of entity records, excluding the uncollected,
// global and pagination buckets.
func (c *Collection) EntityKeys() []Key {
	var keys []Key
	for _, k := range c.Keys() {
		if !k.IsReserved() {
			keys = append(keys, k)
		}
	}
	return keys
}

// Len returns the number of records, reserved buckets included.
func (c *Collection) Len() int { return len(c.order) }
