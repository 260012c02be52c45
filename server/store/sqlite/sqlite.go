package sqlite

import (
	"context"
	"database/sql"
	"sync"

	"github.com/gear6io/slate/pkg/errors"
	"github.com/gear6io/slate/server/store"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Package-specific error codes for the sqlite engine
var (
	ErrOpenFailed  = errors.MustNewCode("store.sqlite.open_failed")
	ErrQueryFailed = errors.MustNewCode("store.sqlite.query_failed")
)

const (
	queryTableExists = `SELECT 1 FROM tables WHERE name = ?`
	queryEnsureTable = `INSERT OR IGNORE INTO tables (name) VALUES (?)`
	queryCellValue   = `SELECT value FROM cells WHERE tbl = ? AND row = ? AND family = ? AND qualifier = ?`
	queryUpsertCell  = `INSERT INTO cells (tbl, row, family, qualifier, value) VALUES (?, ?, ?, ?, ?)
	ON CONFLICT (tbl, row, family, qualifier) DO UPDATE SET value = excluded.value`
	queryDeleteCell = `DELETE FROM cells WHERE tbl = ? AND row = ? AND family = ? AND qualifier = ?`
)

// Store is the durable store.Store implementation: database/sql over
// go-sqlite3 on the hot path, bun-managed migrations for schema.
type Store struct {
	db        *sql.DB
	logger    zerolog.Logger
	mu        sync.RWMutex
	combiners map[combinerKey]store.Combiner
	closed    bool
}

type combinerKey struct {
	table  string
	family string
}

// NewStore opens (or creates) the database at dbPath and migrates it to
// the latest schema version.
func NewStore(dbPath string, logger zerolog.Logger) (*Store, error) {
	// WAL lets a flush transaction commit while a scan cursor is still
	// open; the default rollback journal blocks every writer behind an
	// open reader.
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, errors.New(ErrOpenFailed, "failed to open sqlite database", err).AddContext("path", dbPath)
	}

	manager := NewMigrationManager(db, logger)
	if err := manager.MigrateToLatest(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return NewStoreWithDB(db, logger), nil
}

// NewStoreWithDB wraps an already-open handle. The caller owns schema
// management; tests inject sqlmock handles through here.
func NewStoreWithDB(db *sql.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:        db,
		logger:    logger.With().Str("component", "sqlite-store").Logger(),
		combiners: make(map[combinerKey]store.Combiner),
	}
}

// EnsureTable registers the logical table if it is not already present.
func (s *Store) EnsureTable(ctx context.Context, table string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, queryEnsureTable, table); err != nil {
		return errors.New(ErrQueryFailed, "failed to ensure table", err).AddContext("table", table)
	}
	return nil
}

// TableExists reports whether the logical table has been created.
func (s *Store) TableExists(ctx context.Context, table string) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	var one int
	err := s.db.QueryRowContext(ctx, queryTableExists, table).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.New(ErrQueryFailed, "failed to check table existence", err).AddContext("table", table)
	}
	return true, nil
}

// SetCombiner registers an in-process merge function for a family. The
// registration does not persist: every process must re-attach combiners
// before its first merge write. A nil combiner clears the registration.
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

func (s *Store) combinerFor(table, family string) (store.Combiner, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	combiner, ok := s.combiners[combinerKey{table: table, family: family}]
	return combiner, ok
}

// Scan streams matching cells ordered by (row, family, qualifier).
func (s *Store) Scan(ctx context.Context, table string, opts store.ScanOptions) (store.Iterator, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	exists, err := s.TableExists(ctx, table)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errors.New(store.ErrTableNotFound, "table does not exist", nil).AddContext("table", table)
	}

	query := `SELECT row, family, qualifier, value FROM cells WHERE tbl = ?`
	args := []interface{}{table}

	if opts.Family != "" {
		query += ` AND family = ?`
		args = append(args, opts.Family)
	}
	startRow, endRow := opts.StartRow, opts.EndRow
	if opts.Prefix != "" {
		startRow = opts.Prefix
		endRow = prefixEnd(opts.Prefix)
	}
	if startRow != "" {
		query += ` AND row >= ?`
		args = append(args, startRow)
	}
	if endRow != "" {
		query += ` AND row < ?`
		args = append(args, endRow)
	}
	query += ` ORDER BY row, family, qualifier`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.New(store.ErrScanFailed, "scan query failed", err).AddContext("table", table)
	}
	return &rowIterator{rows: rows}, nil
}

// prefixEnd returns the smallest row key greater than every key with the
// given prefix, or "" when the prefix has no upper bound.
func prefixEnd(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xFF {
			b[i]++
			return string(b[:i+1])
		}
	}
	return ""
}

// BatchWriter returns a writer that applies each flush as one transaction.
func (s *Store) BatchWriter(table string) (store.BatchWriter, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return &batchWriter{store: s, table: table}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.New(store.ErrStoreClosed, "store is closed", nil)
	}
	return nil
}

type rowIterator struct {
	rows    *sql.Rows
	current store.Entry
	err     error
}

func (it *rowIterator) Next() bool {
	if it.err != nil || !it.rows.Next() {
		return false
	}
	var entry store.Entry
	if err := it.rows.Scan(&entry.Row, &entry.Family, &entry.Qualifier, &entry.Value); err != nil {
		it.err = errors.New(store.ErrScanFailed, "failed to scan result row", err)
		return false
	}
	it.current = entry
	return true
}

func (it *rowIterator) Entry() store.Entry { return it.current }

func (it *rowIterator) Err() error {
	if it.err != nil {
		return it.err
	}
	if err := it.rows.Err(); err != nil {
		return errors.New(store.ErrScanFailed, "scan interrupted", err)
	}
	return nil
}

func (it *rowIterator) Close() error { return it.rows.Close() }

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

// flushLocked applies the pending batch in a single transaction; the
// batch is consumed whether or not the flush succeeds, matching the
// rejected-batch contract callers retry against.
func (w *batchWriter) flushLocked(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}
	pending := w.pending
	w.pending = nil

	tx, err := w.store.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.New(store.ErrFlushRejected, "failed to begin flush transaction", err).AddContext("table", w.table)
	}

	for _, mut := range pending {
		for _, update := range mut.Updates {
			if update.Delete {
				if _, err := tx.ExecContext(ctx, queryDeleteCell, w.table, mut.Row, update.Family, update.Qualifier); err != nil {
					tx.Rollback()
					return errors.New(store.ErrFlushRejected, "cell delete failed", err).AddContext("row", mut.Row)
				}
				continue
			}

			value := update.Value
			if combiner, ok := w.store.combinerFor(w.table, update.Family); ok {
				var existing []byte
				err := tx.QueryRowContext(ctx, queryCellValue, w.table, mut.Row, update.Family, update.Qualifier).Scan(&existing)
				switch {
				case err == sql.ErrNoRows:
				case err != nil:
					tx.Rollback()
					return errors.New(store.ErrFlushRejected, "existing cell read failed", err).AddContext("row", mut.Row)
				default:
					combined, cerr := combiner.Combine(existing, value)
					if cerr != nil {
						tx.Rollback()
						return errors.New(store.ErrCombineFailed, "combiner rejected merge", cerr).
							AddContext("table", w.table).
							AddContext("row", mut.Row)
					}
					value = combined
				}
			}

			if _, err := tx.ExecContext(ctx, queryUpsertCell, w.table, mut.Row, update.Family, update.Qualifier, value); err != nil {
				tx.Rollback()
				return errors.New(store.ErrFlushRejected, "cell upsert failed", err).AddContext("row", mut.Row)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.New(store.ErrFlushRejected, "flush commit failed", err).AddContext("table", w.table)
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
