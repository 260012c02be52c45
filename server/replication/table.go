package replication

import (
	"context"
	"time"

	"github.com/gear6io/slate/pkg/backoff"
	"github.com/gear6io/slate/pkg/errors"
	"github.com/gear6io/slate/server/store"
	"github.com/rs/zerolog"
)

// EnsureReplicationTable creates the replication table if needed and
// attaches the status combiner to the families that take merge writes.
// Creation is retried a few times since it races table bootstrap on a
// fresh store.
func EnsureReplicationTable(ctx context.Context, st store.Store, logger zerolog.Logger) error {
	cfg := backoff.Config{
		MaxAttempts: 5,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		Factor:      2.0,
	}
	err := backoff.Retry(ctx, cfg, logger, func(ctx context.Context) error {
		return st.EnsureTable(ctx, ReplicationTableName)
	})
	if err != nil {
		return errors.New(ErrTableEnsure, "failed to create replication table", err)
	}

	combiner := NewStatusCombiner(logger)
	if err := st.SetCombiner(ReplicationTableName, StatusFamily, combiner); err != nil {
		return errors.New(ErrTableEnsure, "failed to attach status combiner", err)
	}
	if err := st.SetCombiner(ReplicationTableName, WorkFamily, combiner); err != nil {
		return errors.New(ErrTableEnsure, "failed to attach work combiner", err)
	}
	return nil
}
