package sqlite

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gear6io/slate/pkg/errors"
	"github.com/gear6io/slate/server/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// keepLargest retains the lexically larger value so tests can observe
// combiner application inside the flush transaction.
type keepLargest struct{}

func (keepLargest) Combine(existing, incoming []byte) ([]byte, error) {
	if string(existing) > string(incoming) {
		return existing, nil
	}
	return incoming, nil
}

func scanAll(t *testing.T, s store.Store, table string, opts store.ScanOptions) []store.Entry {
	t.Helper()
	it, err := s.Scan(context.Background(), table, opts)
	require.NoError(t, err)
	defer it.Close()

	var entries []store.Entry
	for it.Next() {
		entries = append(entries, it.Entry())
	}
	require.NoError(t, it.Err())
	return entries
}

func TestStoreWithFileDatabase(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "sqlite_store_test")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	dbPath := filepath.Join(tempDir, "slate.db")
	ctx := context.Background()

	// Create store (this will run migrations automatically)
	s, err := NewStore(dbPath, zerolog.Nop())
	require.NoError(t, err)

	t.Run("EnsureTable", func(t *testing.T) {
		exists, err := s.TableExists(ctx, "repl")
		require.NoError(t, err)
		assert.False(t, exists)

		require.NoError(t, s.EnsureTable(ctx, "repl"))
		require.NoError(t, s.EnsureTable(ctx, "repl"))

		exists, err = s.TableExists(ctx, "repl")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("ScanMissingTable", func(t *testing.T) {
		_, err := s.Scan(ctx, "absent", store.ScanOptions{})
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, store.ErrTableNotFound))
	})

	t.Run("WriteAndScanOrder", func(t *testing.T) {
		bw, err := s.BatchWriter("repl")
		require.NoError(t, err)
		require.NoError(t, bw.Queue(
			store.NewMutation("wal-2").Put("status", "4", []byte("two")),
			store.NewMutation("wal-1").Put("status", "4", []byte("one")),
			store.NewMutation("wal-1").Put("work", "peerA|7|4", []byte("w1")),
		))
		require.NoError(t, bw.Flush(ctx))
		require.NoError(t, bw.Close(ctx))

		entries := scanAll(t, s, "repl", store.ScanOptions{})
		require.Len(t, entries, 3)
		assert.Equal(t, "wal-1", entries[0].Row)
		assert.Equal(t, "status", entries[0].Family)
		assert.Equal(t, "wal-1", entries[1].Row)
		assert.Equal(t, "work", entries[1].Family)
		assert.Equal(t, "wal-2", entries[2].Row)

		// Family filter
		entries = scanAll(t, s, "repl", store.ScanOptions{Family: "work"})
		require.Len(t, entries, 1)
		assert.Equal(t, "peerA|7|4", entries[0].Qualifier)

		// Prefix scan
		entries = scanAll(t, s, "repl", store.ScanOptions{Prefix: "wal-1"})
		assert.Len(t, entries, 2)

		// Row range
		entries = scanAll(t, s, "repl", store.ScanOptions{StartRow: "wal-2", EndRow: "wal-3"})
		require.Len(t, entries, 1)
		assert.Equal(t, "wal-2", entries[0].Row)
	})

	t.Run("CombinerOnOverwrite", func(t *testing.T) {
		require.NoError(t, s.SetCombiner("repl", "status", keepLargest{}))

		bw, err := s.BatchWriter("repl")
		require.NoError(t, err)
		require.NoError(t, bw.Queue(store.NewMutation("wal-1").Put("status", "4", []byte("aaa"))))
		require.NoError(t, bw.Close(ctx))

		entries := scanAll(t, s, "repl", store.ScanOptions{Prefix: "wal-1", Family: "status"})
		require.Len(t, entries, 1)
		// "one" > "aaa", so the combiner kept the existing value
		assert.Equal(t, "one", string(entries[0].Value))
	})

	t.Run("DeleteCell", func(t *testing.T) {
		bw, err := s.BatchWriter("repl")
		require.NoError(t, err)
		require.NoError(t, bw.Queue(store.NewMutation("wal-2").DeleteCell("status", "4")))
		require.NoError(t, bw.Close(ctx))

		entries := scanAll(t, s, "repl", store.ScanOptions{Prefix: "wal-2"})
		assert.Empty(t, entries)
	})

	t.Run("PersistsAcrossReopen", func(t *testing.T) {
		require.NoError(t, s.Close())

		reopened, err := NewStore(dbPath, zerolog.Nop())
		require.NoError(t, err)
		defer reopened.Close()

		exists, err := reopened.TableExists(ctx, "repl")
		require.NoError(t, err)
		assert.True(t, exists)

		entries := scanAll(t, reopened, "repl", store.ScanOptions{Prefix: "wal-1", Family: "status"})
		require.Len(t, entries, 1)
		assert.Equal(t, "one", string(entries[0].Value))
	})
}

func TestFlushRejectionMapsToCode(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	s := NewStoreWithDB(db, zerolog.Nop())

	bw, err := s.BatchWriter("repl")
	require.NoError(t, err)
	require.NoError(t, bw.Queue(store.NewMutation("wal-1").Put("status", "4", []byte("v"))))

	mock.ExpectBegin()
	mock.ExpectExec(queryUpsertCell).
		WithArgs("repl", "wal-1", "status", "4", []byte("v")).
		WillReturnError(io.ErrUnexpectedEOF)
	mock.ExpectRollback()

	err = bw.Flush(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, store.ErrFlushRejected))
	require.NoError(t, mock.ExpectationsWereMet())

	// The rejected batch is consumed; the next flush has nothing to apply
	require.NoError(t, bw.Flush(context.Background()))
}

func TestScanFailureMapsToCode(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	s := NewStoreWithDB(db, zerolog.Nop())

	mock.ExpectQuery(queryTableExists).
		WithArgs("repl").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectQuery(`SELECT row, family, qualifier, value FROM cells WHERE tbl = ? ORDER BY row, family, qualifier`).
		WithArgs("repl").
		WillReturnError(io.ErrUnexpectedEOF)

	_, err = s.Scan(context.Background(), "repl", store.ScanOptions{})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, store.ErrScanFailed))
	require.NoError(t, mock.ExpectationsWereMet())
}

// The replication passes flush while a scan cursor is still open on the
// same table; WAL keeps the writer from blocking behind the reader.
func TestWriteDuringOpenScan(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "sqlite_store_wal_test")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)
	ctx := context.Background()

	s, err := NewStore(filepath.Join(tempDir, "slate.db"), zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.EnsureTable(ctx, "repl"))
	bw, err := s.BatchWriter("repl")
	require.NoError(t, err)
	for _, row := range []string{"wal-1", "wal-2", "wal-3"} {
		require.NoError(t, bw.Queue(store.NewMutation(row).Put("status", "4", []byte("v"))))
	}
	require.NoError(t, bw.Flush(ctx))

	it, err := s.Scan(ctx, "repl", store.ScanOptions{Family: "status"})
	require.NoError(t, err)
	defer it.Close()
	require.True(t, it.Next())

	// Flush with the cursor mid-iteration.
	require.NoError(t, bw.Queue(store.NewMutation("wal-4").Put("status", "4", []byte("v"))))
	require.NoError(t, bw.Flush(ctx))

	for it.Next() {
	}
	require.NoError(t, it.Err())

	entries := scanAll(t, s, "repl", store.ScanOptions{Family: "status"})
	assert.Len(t, entries, 4)
}

func TestPrefixEnd(t *testing.T) {
	assert.Equal(t, "wal.", prefixEnd("wal-"))
	assert.Equal(t, "b", prefixEnd("a"))
	assert.Equal(t, "", prefixEnd("\xff\xff"))
	assert.Equal(t, "a\xff", prefixEnd("a\xfe"))
}
