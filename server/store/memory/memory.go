package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/gear6io/slate/pkg/errors"
	"github.com/gear6io/slate/server/store"
)

// Store is a mutex-guarded in-memory implementation of store.Store.
// It backs unit tests and single-process development deployments; scans
// sort on demand rather than maintaining an index.
type Store struct {
	mu        sync.RWMutex
	tables    map[string]map[cellKey][]byte
	combiners map[combinerKey]store.Combiner
	closed    bool
}

type cellKey struct {
	row       string
	family    string
	qualifier string
}

type combinerKey struct {
	table  string
	family string
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		tables:    make(map[string]map[cellKey][]byte),
		combiners: make(map[combinerKey]store.Combiner),
	}
}

// EnsureTable creates the table if it does not exist.
func (s *Store) EnsureTable(ctx context.Context, table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New(store.ErrStoreClosed, "store is closed", nil)
	}
	if _, ok := s.tables[table]; !ok {
		s.tables[table] = make(map[cellKey][]byte)
	}
	return nil
}

// TableExists reports whether the table has been created.
func (s *Store) TableExists(ctx context.Context, table string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, errors.New(store.ErrStoreClosed, "store is closed", nil)
	}
	_, ok := s.tables[table]
	return ok, nil
}

// SetCombiner registers a per-family merge function applied on write.
// A nil combiner clears the registration, which is what a process
// restart looks like to this store.
func (s *Store) SetCombiner(table, family string, combiner store.Combiner) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New(store.ErrStoreClosed, "store is closed", nil)
	}
	key := combinerKey{table: table, family: family}
	if combiner == nil {
		delete(s.combiners, key)
		return nil
	}
	s.combiners[key] = combiner
	return nil
}

// Scan returns an iterator over matching cells in lexicographic
// (row, family, qualifier) order.
func (s *Store) Scan(ctx context.Context, table string, opts store.ScanOptions) (store.Iterator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errors.New(store.ErrStoreClosed, "store is closed", nil)
	}
	cells, ok := s.tables[table]
	if !ok {
		return nil, errors.New(store.ErrTableNotFound, "table does not exist", nil).AddContext("table", table)
	}

	var entries []store.Entry
	for key, value := range cells {
		if !matches(key, opts) {
			continue
		}
		entries = append(entries, store.Entry{
			Row:       key.row,
			Family:    key.family,
			Qualifier: key.qualifier,
			Value:     append([]byte(nil), value...),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Row != entries[j].Row {
			return entries[i].Row < entries[j].Row
		}
		if entries[i].Family != entries[j].Family {
			return entries[i].Family < entries[j].Family
		}
		return entries[i].Qualifier < entries[j].Qualifier
	})

	return &sliceIterator{entries: entries}, nil
}

func matches(key cellKey, opts store.ScanOptions) bool {
	if opts.Family != "" && key.family != opts.Family {
		return false
	}
	if opts.Prefix != "" && !strings.HasPrefix(key.row, opts.Prefix) {
		return false
	}
	if opts.StartRow != "" && key.row < opts.StartRow {
		return false
	}
	if opts.EndRow != "" && key.row >= opts.EndRow {
		return false
	}
	return true
}

// BatchWriter returns a writer whose flush applies queued mutations
// atomically under the store lock.
func (s *Store) BatchWriter(table string) (store.BatchWriter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errors.New(store.ErrStoreClosed, "store is closed", nil)
	}
	return &batchWriter{store: s, table: table}, nil
}

// Close marks the store closed; subsequent operations fail.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type sliceIterator struct {
	entries []store.Entry
	pos     int
	current store.Entry
}

func (it *sliceIterator) Next() bool {
	if it.pos >= len(it.entries) {
		return false
	}
	it.current = it.entries[it.pos]
	it.pos++
	return true
}

func (it *sliceIterator) Entry() store.Entry { return it.current }
func (it *sliceIterator) Err() error         { return nil }
func (it *sliceIterator) Close() error       { return nil }

type batchWriter struct {
	mu      sync.Mutex
	store   *Store
	table   string
	pending []*store.Mutation
	closed  bool
}

func (w *batchWriter) Queue(muts ...*store.Mutation) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.New(store.ErrWriterClosed, "batch writer is closed", nil)
	}
	w.pending = append(w.pending, muts...)
	return nil
}

func (w *batchWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.New(store.ErrWriterClosed, "batch writer is closed", nil)
	}
	return w.flushLocked(ctx)
}

func (w *batchWriter) flushLocked(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}
	pending := w.pending
	w.pending = nil

	w.store.mu.Lock()
	defer w.store.mu.Unlock()
	if w.store.closed {
		return errors.New(store.ErrStoreClosed, "store is closed", nil)
	}
	cells, ok := w.store.tables[w.table]
	if !ok {
		return errors.New(store.ErrTableNotFound, "table does not exist", nil).AddContext("table", w.table)
	}

	for _, mut := range pending {
		for _, update := range mut.Updates {
			key := cellKey{row: mut.Row, family: update.Family, qualifier: update.Qualifier}
			if update.Delete {
				delete(cells, key)
				continue
			}
			value := update.Value
			if existing, found := cells[key]; found {
				if combiner, has := w.store.combiners[combinerKey{table: w.table, family: update.Family}]; has {
					combined, err := combiner.Combine(existing, value)
					if err != nil {
						return errors.New(store.ErrCombineFailed, "combiner rejected merge", err).
							AddContext("table", w.table).
							AddContext("row", mut.Row)
					}
					value = combined
				}
			}
			cells[key] = append([]byte(nil), value...)
		}
	}
	return nil
}

// Close flushes anything still pending and then rejects further use.
func (w *batchWriter) Close(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	err := w.flushLocked(ctx)
	w.closed = true
	return err
}
