package coordination

import (
	"context"

	"github.com/gear6io/slate/pkg/errors"
)

// Coordination-specific error codes. Root-absent and node-absent are
// recoverable conditions callers act on; anything else is transport or
// service failure.
var (
	ErrRootAbsent    = errors.MustNewCode("coordination.root_absent")
	ErrNodeAbsent    = errors.MustNewCode("coordination.node_absent")
	ErrUnavailable   = errors.MustNewCode("coordination.unavailable")
	ErrRequestFailed = errors.MustNewCode("coordination.request_failed")
	ErrLockHeld      = errors.MustNewCode("coordination.lock_held")
)

// WorkQueue is the distributed work queue remote replication workers
// consume from. Keys are flat; the queue root is created out-of-band and
// its absence is reported as an ErrRootAbsent-coded error.
type WorkQueue interface {
	// AddWork publishes a work node. Re-adding an existing key is
	// idempotent.
	AddWork(ctx context.Context, key string, payload []byte) error

	// ListKeys returns every outstanding work key.
	ListKeys(ctx context.Context) ([]string, error)

	// Exists probes one key. A missing node is (false, nil), not an
	// error; a missing root is an error.
	Exists(ctx context.Context, key string) (bool, error)

	// RemoveWork deletes a node, the signal a worker sends when it has
	// finished the item.
	RemoveWork(ctx context.Context, key string) error
}
