package replication

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataRow(t *testing.T) {
	row := MetadataRow("files/wal-1")
	assert.Equal(t, "~replfiles/wal-1", row)

	file, ok := FileFromMetadataRow(row)
	require.True(t, ok)
	assert.Equal(t, "files/wal-1", file)

	_, ok = FileFromMetadataRow("files/wal-1")
	assert.False(t, ok)
}

func TestOrderRow(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		row := OrderRow(1_700_000_000_000, "files/wal-1")
		closedTime, file, err := ParseOrderRow(row)
		require.NoError(t, err)
		assert.Equal(t, int64(1_700_000_000_000), closedTime)
		assert.Equal(t, "files/wal-1", file)
	})

	t.Run("SortsByCloseTime", func(t *testing.T) {
		early := OrderRow(999, "files/wal-z")
		late := OrderRow(1_000, "files/wal-a")
		assert.Less(t, early, late)
	})

	t.Run("ZeroTimeSortsFirst", func(t *testing.T) {
		missing := OrderRow(0, "files/wal-1")
		assert.Less(t, missing, OrderRow(1, "files/wal-1"))
	})

	t.Run("Malformed", func(t *testing.T) {
		for _, row := range []string{"", "short", "0000000000000001000files/no-delimiter", "000000000000000100x|file"} {
			_, _, err := ParseOrderRow(row)
			assert.Error(t, err, "row %q", row)
		}
	})
}

func TestTargetQualifier(t *testing.T) {
	target := Target{Peer: "peerA", RemoteID: "9", SourceTable: "4"}
	assert.Equal(t, "peerA|9|4", target.Qualifier())

	parsed, err := ParseTarget("peerA|9|4")
	require.NoError(t, err)
	assert.Equal(t, target, parsed)

	for _, qualifier := range []string{"", "peerA", "peerA|9", "peerA|9|4|extra", "|9|4", "peerA||4"} {
		_, err := ParseTarget(qualifier)
		assert.Error(t, err, "qualifier %q", qualifier)
	}
}

func TestQueueKey(t *testing.T) {
	target := Target{Peer: "peerA", RemoteID: "9", SourceTable: "4"}
	key := QueueKey("files/wal-1", target)
	assert.Equal(t, "files/wal-1|peerA|9|4", key)

	file, parsed, err := ParseQueueKey(key)
	require.NoError(t, err)
	assert.Equal(t, "files/wal-1", file)
	assert.Equal(t, target, parsed)

	for _, bad := range []string{"", "files/wal-1", "files/wal-1|peerA|9", "a|b|c|d|e"} {
		_, _, err := ParseQueueKey(bad)
		assert.Error(t, err, "key %q", bad)
	}
}
