package replication

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gear6io/slate/pkg/errors"
)

// Table and column layout of the replication pipeline.
//
// Metadata table (written by ingest, drained by the StatusMaker):
//
//	row = "~repl" + file, family "repl", qualifier = source table id
//
// Replication table (owned by this subsystem):
//
//	status record: row = file, family "repl-status", qualifier = table id
//	order record:  row = <closedTime %019d>|<file>, family "repl-order"
//	work record:   row = file, family "repl-work", qualifier = target
//
// All values are msgpack-encoded Status.
const (
	MetadataTableName    = "slate.metadata"
	ReplicationTableName = "slate.replication"

	MetadataReplPrefix = "~repl"
	MetadataFamily     = "repl"

	StatusFamily = "repl-status"
	OrderFamily  = "repl-order"
	WorkFamily   = "repl-work"

	fieldSeparator = "|"

	// closedTime is rendered zero-padded to this width so that
	// lexicographic row order equals close-time order.
	orderTimeWidth = 19
)

// MetadataRow builds the metadata-table row key for a file's transient
// status record.
func MetadataRow(file string) string {
	return MetadataReplPrefix + file
}

// FileFromMetadataRow strips the section prefix from a metadata row key.
func FileFromMetadataRow(row string) (string, bool) {
	if !strings.HasPrefix(row, MetadataReplPrefix) {
		return "", false
	}
	return row[len(MetadataReplPrefix):], true
}

// OrderRow builds the order-record row key: close time, zero padded so
// rows sort by time, then the file path.
func OrderRow(closedTime int64, file string) string {
	return fmt.Sprintf("%0*d%s%s", orderTimeWidth, closedTime, fieldSeparator, file)
}

// ParseOrderRow splits an order row back into close time and file.
func ParseOrderRow(row string) (int64, string, error) {
	if len(row) < orderTimeWidth+2 || row[orderTimeWidth:orderTimeWidth+1] != fieldSeparator {
		return 0, "", errors.New(ErrOrderRowMalformed, "order row is not <time>|<file>", nil).
			AddContext("row", row)
	}
	closedTime, err := strconv.ParseInt(row[:orderTimeWidth], 10, 64)
	if err != nil {
		return 0, "", errors.New(ErrOrderRowMalformed, "order row time field is not numeric", err).
			AddContext("row", row)
	}
	return closedTime, row[orderTimeWidth+1:], nil
}

// QueueKey builds the coordination-queue key for one (file, target) unit
// of work. Workers parse it back, and the sequential assigner rebuilds its
// per-peer bookkeeping from recovered keys, so the layout is part of the
// wire contract.
func QueueKey(file string, target Target) string {
	return file + fieldSeparator + target.Qualifier()
}

// ParseQueueKey splits a queue key into its file and target.
func ParseQueueKey(key string) (string, Target, error) {
	parts := strings.Split(key, fieldSeparator)
	if len(parts) != 4 {
		return "", Target{}, errors.New(ErrQueueKeyMalformed, "queue key is not file|peer|remote|table", nil).
			AddContext("key", key)
	}
	target, err := ParseTarget(strings.Join(parts[1:], fieldSeparator))
	if err != nil {
		return "", Target{}, err
	}
	return parts[0], target, nil
}

// exactRow bounds a scan to a single row.
func exactRow(row string) (string, string) {
	return row, row + "\x00"
}
