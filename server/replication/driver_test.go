package replication

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/gear6io/slate/server/coordination/memqueue"
	"github.com/gear6io/slate/server/store/memory"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPipelineEndToEnd walks one file through the whole subsystem: ingest
// reports it, the close is recorded in order, work fans out, the assigner
// dispatches, a worker finishes, and the completion folds back into the
// status record.
func TestPipelineEndToEnd(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	queue := memqueue.NewQueue()
	strategy := NewUnorderedStrategy()

	statusMaker := NewStatusMaker(st, zerolog.Nop())
	workMaker := NewWorkMaker(st, staticTargets(map[string]map[string]string{
		"4": {"peerA": "7"},
	}), zerolog.Nop())
	finisher := NewWorkFinisher(st, zerolog.Nop())
	assigner := NewAssigner(st, queue, strategy, 0, zerolog.Nop())
	driver := NewDriver(statusMaker, workMaker, finisher, assigner, time.Minute, zerolog.Nop())

	// Ingest reports wal-1 for table 4, nothing replicated, nothing to
	// replicate yet.
	seedMetadata(t, ctx, st, "wal-1", "4", mustMarshal(t, Status{}))
	require.NoError(t, driver.RunCycle(ctx))

	forwarded := decodeCell(t, ctx, st, ReplicationTableName, "wal-1", StatusFamily, "4")
	assert.Equal(t, Status{}, forwarded)
	assert.Empty(t, scanFamily(t, ctx, st, ReplicationTableName, OrderFamily))
	assert.Empty(t, scanFamily(t, ctx, st, ReplicationTableName, WorkFamily))
	keys, err := queue.ListKeys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)

	// The segment closes at time 100.
	seedMetadata(t, ctx, st, "wal-1", "4", mustMarshal(t, FileClosedAt(100)))
	require.NoError(t, driver.RunCycle(ctx))

	merged := decodeCell(t, ctx, st, ReplicationTableName, "wal-1", StatusFamily, "4")
	assert.True(t, merged.Closed)
	assert.True(t, merged.RequiresWork())

	_, ok := getCell(t, ctx, st, ReplicationTableName, OrderRow(100, "wal-1"), OrderFamily, "4")
	assert.True(t, ok, "close must produce an order record")
	_, ok = getCell(t, ctx, st, MetadataTableName, MetadataRow("wal-1"), MetadataFamily, "4")
	assert.False(t, ok, "metadata record must be drained")

	workKey := QueueKey("wal-1", Target{Peer: "peerA", RemoteID: "7", SourceTable: "4"})
	assert.Equal(t, "wal-1|peerA|7|4", workKey)

	keys, err = queue.ListKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{workKey}, keys)
	assert.Equal(t, 1, strategy.Size())

	// A remote worker pushes everything, reports the final watermark on
	// the work record, and removes its queue node.
	target := Target{Peer: "peerA", RemoteID: "7", SourceTable: "4"}
	putCell(t, ctx, st, ReplicationTableName, "wal-1", WorkFamily, target.Qualifier(),
		mustMarshal(t, Replicated(math.MaxInt64)))
	require.NoError(t, queue.RemoveWork(ctx, workKey))
	require.NoError(t, driver.RunCycle(ctx))

	assert.Equal(t, 0, strategy.Size(), "completed work drains from bookkeeping")
	keys, err = queue.ListKeys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)

	// The finish pass folded the completion into the status record and
	// retired the work records.
	folded := decodeCell(t, ctx, st, ReplicationTableName, "wal-1", StatusFamily, "4")
	assert.True(t, folded.FullyReplicated())
	assert.True(t, folded.SafeForRemoval())
	assert.Empty(t, scanFamily(t, ctx, st, ReplicationTableName, WorkFamily))

	// Further cycles stay quiet: the status no longer requires work.
	require.NoError(t, driver.RunCycle(ctx))
	assert.Empty(t, scanFamily(t, ctx, st, ReplicationTableName, WorkFamily))
	keys, err = queue.ListKeys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestDriverPropagatesPassFailure(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore() // no metadata table: the status pass is fatal

	statusMaker := NewStatusMaker(st, zerolog.Nop())
	workMaker := NewWorkMaker(st, staticTargets(nil), zerolog.Nop())
	finisher := NewWorkFinisher(st, zerolog.Nop())
	assigner := NewAssigner(st, memqueue.NewQueue(), NewUnorderedStrategy(), 0, zerolog.Nop())
	driver := NewDriver(statusMaker, workMaker, finisher, assigner, time.Minute, zerolog.Nop())

	require.Error(t, driver.RunCycle(ctx))

	err := driver.Run(ctx)
	require.Error(t, err, "a fatal pass must stop the loop")
}

func TestDriverStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	st := memory.NewStore()
	require.NoError(t, st.EnsureTable(ctx, MetadataTableName))

	statusMaker := NewStatusMaker(st, zerolog.Nop())
	workMaker := NewWorkMaker(st, staticTargets(nil), zerolog.Nop())
	finisher := NewWorkFinisher(st, zerolog.Nop())
	assigner := NewAssigner(st, memqueue.NewQueue(), NewUnorderedStrategy(), 0, zerolog.Nop())
	driver := NewDriver(statusMaker, workMaker, finisher, assigner, 10*time.Millisecond, zerolog.Nop())

	done := make(chan error, 1)
	go func() { done <- driver.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("driver did not stop after cancellation")
	}
}
