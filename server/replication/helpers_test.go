package replication

import (
	"context"
	"testing"

	"github.com/gear6io/slate/pkg/errors"
	"github.com/gear6io/slate/server/store"
	"github.com/stretchr/testify/require"
)

func putCell(t *testing.T, ctx context.Context, st store.Store, table, row, family, qualifier string, value []byte) {
	t.Helper()
	writer, err := st.BatchWriter(table)
	require.NoError(t, err)
	defer writer.Close(ctx)
	require.NoError(t, writer.Queue(store.NewMutation(row).Put(family, qualifier, value)))
	require.NoError(t, writer.Flush(ctx))
}

func seedMetadata(t *testing.T, ctx context.Context, st store.Store, file, tableID string, value []byte) {
	t.Helper()
	require.NoError(t, st.EnsureTable(ctx, MetadataTableName))
	putCell(t, ctx, st, MetadataTableName, MetadataRow(file), MetadataFamily, tableID, value)
}

// scanFamily collects every cell in the family; a missing table reads as
// empty.
func scanFamily(t *testing.T, ctx context.Context, st store.Store, table, family string) []store.Entry {
	t.Helper()
	iter, err := st.Scan(ctx, table, store.ScanOptions{Family: family})
	if err != nil {
		if errors.HasCode(err, store.ErrTableNotFound) {
			return nil
		}
		require.NoError(t, err)
	}
	defer iter.Close()

	var entries []store.Entry
	for iter.Next() {
		entries = append(entries, iter.Entry())
	}
	require.NoError(t, iter.Err())
	return entries
}

func getCell(t *testing.T, ctx context.Context, st store.Store, table, row, family, qualifier string) ([]byte, bool) {
	t.Helper()
	for _, entry := range scanFamily(t, ctx, st, table, family) {
		if entry.Row == row && entry.Qualifier == qualifier {
			return entry.Value, true
		}
	}
	return nil, false
}

func decodeCell(t *testing.T, ctx context.Context, st store.Store, table, row, family, qualifier string) Status {
	t.Helper()
	value, ok := getCell(t, ctx, st, table, row, family, qualifier)
	require.True(t, ok, "cell %s/%s/%s not found", row, family, qualifier)
	status, err := UnmarshalStatus(value)
	require.NoError(t, err)
	return status
}
