package store

import (
	"context"
)

// Entry is one cell returned by a scan.
type Entry struct {
	Row       string
	Family    string
	Qualifier string
	Value     []byte
}

// ColumnUpdate is one cell-level change inside a mutation. Delete wins
// over Value when set.
type ColumnUpdate struct {
	Family    string
	Qualifier string
	Value     []byte
	Delete    bool
}

// Mutation is an atomic set of updates to a single row.
type Mutation struct {
	Row     string
	Updates []ColumnUpdate
}

// Put appends a value update to the mutation.
func (m *Mutation) Put(family, qualifier string, value []byte) *Mutation {
	m.Updates = append(m.Updates, ColumnUpdate{Family: family, Qualifier: qualifier, Value: value})
	return m
}

// DeleteCell appends a cell deletion to the mutation.
func (m *Mutation) DeleteCell(family, qualifier string) *Mutation {
	m.Updates = append(m.Updates, ColumnUpdate{Family: family, Qualifier: qualifier, Delete: true})
	return m
}

// NewMutation starts a mutation for the given row.
func NewMutation(row string) *Mutation {
	return &Mutation{Row: row}
}

// ScanOptions bounds a scan. Rows are returned in lexicographic order,
// restricted to [StartRow, EndRow) when set; a row prefix is expressed as
// Prefix. Family restricts results to one column family.
type ScanOptions struct {
	StartRow string
	EndRow   string
	Prefix   string
	Family   string
}

// Iterator walks scan results in order. Callers must Close it.
type Iterator interface {
	Next() bool
	Entry() Entry
	Err() error
	Close() error
}

// Combiner merges a new value into an existing one for a single cell.
// Implementations must be associative and idempotent since the store may
// apply them in any grouping and replay them after crashes.
type Combiner interface {
	Combine(existing, incoming []byte) ([]byte, error)
}

// BatchWriter buffers mutations for a table and applies them atomically
// per flush. A failed flush rejects the whole batch; the caller decides
// whether to rebuild and retry.
type BatchWriter interface {
	Queue(muts ...*Mutation) error
	Flush(ctx context.Context) error
	Close(ctx context.Context) error
}

// Store is the sorted tablet store the replication pipeline runs against:
// ordered row scans with family filtering, single-row atomic mutations,
// and registered per-family combiners resolving concurrent writes.
// Combiner registrations are in-process only and do not survive a
// restart; a nil combiner clears the registration.
type Store interface {
	EnsureTable(ctx context.Context, table string) error
	TableExists(ctx context.Context, table string) (bool, error)
	SetCombiner(table, family string, combiner Combiner) error
	Scan(ctx context.Context, table string, opts ScanOptions) (Iterator, error)
	BatchWriter(table string) (BatchWriter, error)
	Close() error
}
