package symbol

// Table maps (name, kind) to a record for a single unit.
// It is not safe for concurrent use; the registry owns each table.
type Table struct {
	records map[key]Record
}

// NewTable creates an empty table with room for n records
func NewTable(n int) *Table {
	return &Table{records: make(map[key]Record, n)}
}

// Insert adds the record, replacing any record with the same name and kind
func (t *Table) Insert(r Record) {
	t.records[key{r.Name, r.Kind}] = r
}

// Remove deletes the record with the given name and kind, if present
func (t *Table) Remove(name string, kind Kind) {
	delete(t.records, key{name, kind})
}

// Get returns the record with the given name and kind
func (t *Table) Get(name string, kind Kind) (Record, bool) {
	r, ok := t.records[key{name, kind}]
	return r, ok
}

// All returns every record. Order is unspecified.
func (t *Table) All() []Record {
	out := make([]Record, 0, len(t.records))
	for _, r := range t.records {
		out = append(out, r)
	}
	return out
}

// Len returns the number of records
func (t *Table) Len() int {
	return len(t.records)
}
