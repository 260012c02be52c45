package replication

import (
	"context"
	"time"

	"github.com/gear6io/slate/pkg/backoff"
	"github.com/gear6io/slate/pkg/errors"
	"github.com/gear6io/slate/server/coordination"
	"github.com/gear6io/slate/server/store"
	"github.com/rs/zerolog"
)

// Strategy decides which eligible work units get published and owns the
// bookkeeping of keys this process has outstanding on the queue.
type Strategy interface {
	Name() string
	// Prepare runs once per pass before the work scan; the sequential
	// strategy uses it to rebuild file eligibility from order records.
	Prepare(ctx context.Context) error
	ShouldQueue(target Target, file, key string) bool
	MarkQueued(target Target, file, key string)
	// AddExisting seeds bookkeeping from a key recovered off the queue at
	// startup.
	AddExisting(key string)
	Remove(key string)
	Keys() []string
	Size() int
}

// Assigner publishes work records to the coordination queue. One engine
// owns the scan loop; the injected strategy controls dispatch order. The
// only state outside the store and the queue is the strategy's key
// bookkeeping, rebuilt from the queue listing at startup.
type Assigner struct {
	store       store.Store
	queue       coordination.WorkQueue
	strategy    Strategy
	maxQueued   int
	logger      zerolog.Logger
	initialized bool
}

// NewAssigner creates an assigner. maxQueued bounds the keys outstanding
// per process; 0 means unbounded.
func NewAssigner(st store.Store, queue coordination.WorkQueue, strategy Strategy, maxQueued int, logger zerolog.Logger) *Assigner {
	return &Assigner{
		store:     st,
		queue:     queue,
		strategy:  strategy,
		maxQueued: maxQueued,
		logger: logger.With().
			Str("component", "work-assigner").
			Str("strategy", strategy.Name()).
			Logger(),
	}
}

// Run executes one assignment pass: recover bookkeeping on first use,
// give the strategy its pre-scan, publish eligible work, then drop keys
// whose queue nodes are gone.
func (a *Assigner) Run(ctx context.Context) error {
	if !a.initialized {
		if err := a.recoverOutstanding(ctx); err != nil {
			return err
		}
		a.initialized = true
	}

	if err := a.strategy.Prepare(ctx); err != nil {
		return err
	}
	if err := a.createWork(ctx); err != nil {
		return err
	}
	a.cleanup(ctx)
	return nil
}

// recoverOutstanding seeds the strategy with keys already on the queue
// from a previous process. An absent queue root means the coordination
// service has not finished bootstrapping, so wait for it; anything else
// is fatal.
func (a *Assigner) recoverOutstanding(ctx context.Context) error {
	cfg := backoff.Config{
		BaseDelay: 500 * time.Millisecond,
		MaxDelay:  30 * time.Second,
		Factor:    2.0,
	}
	var keys []string
	err := backoff.RetryIf(ctx, cfg, a.logger, func(ctx context.Context) error {
		listed, err := a.queue.ListKeys(ctx)
		if err != nil {
			return err
		}
		keys = listed
		return nil
	}, func(err error) bool {
		return errors.HasCode(err, coordination.ErrRootAbsent)
	})
	if err != nil {
		return errors.New(ErrQueueRecovery, "failed to list outstanding work", err)
	}

	for _, key := range keys {
		a.strategy.AddExisting(key)
	}
	a.logger.Info().Int("recovered", a.strategy.Size()).Msg("Recovered outstanding work from queue")
	return nil
}

func (a *Assigner) createWork(ctx context.Context) error {
	iter, err := a.store.Scan(ctx, ReplicationTableName, store.ScanOptions{Family: WorkFamily})
	if err != nil {
		if errors.HasCode(err, store.ErrTableNotFound) {
			a.logger.Debug().Msg("Replication table not created yet, nothing to assign")
			return nil
		}
		return errors.New(ErrWorkScan, "failed to scan work records", err)
	}
	defer iter.Close()

	var queued int
	for iter.Next() {
		if a.maxQueued > 0 && a.strategy.Size() >= a.maxQueued {
			a.logger.Info().
				Int("max_queued_work", a.maxQueued).
				Msg("Outstanding work at configured maximum, deferring the rest")
			break
		}

		entry := iter.Entry()
		file := entry.Row

		target, err := ParseTarget(entry.Qualifier)
		if err != nil {
			a.logger.Warn().Err(err).Str("file", file).Msg("Malformed work record target, skipping")
			continue
		}
		status, err := UnmarshalStatus(entry.Value)
		if err != nil {
			a.logger.Warn().Err(err).
				Str("file", file).
				Str("target", target.String()).
				Msg("Undecodable work record status, skipping")
			continue
		}
		if !status.RequiresWork() {
			continue
		}

		key := QueueKey(file, target)
		if !a.strategy.ShouldQueue(target, file, key) {
			continue
		}
		if a.queueWork(ctx, key, file, target) {
			queued++
		}
	}
	if err := iter.Err(); err != nil {
		return errors.New(ErrWorkScan, "work record scan failed", err)
	}

	a.logger.Info().
		Int("queued", queued).
		Int("outstanding", a.strategy.Size()).
		Msg("Assignment pass complete")
	return nil
}

// queueWork publishes one key. Bookkeeping is only updated after the
// publish succeeds; a failed publish leaves no trace and the record is
// retried next pass.
func (a *Assigner) queueWork(ctx context.Context, key, file string, target Target) bool {
	if err := a.queue.AddWork(ctx, key, []byte(file)); err != nil {
		a.logger.Warn().Err(err).
			Str("key", key).
			Msg("Failed to publish work, will retry next pass")
		return false
	}
	a.strategy.MarkQueued(target, file, key)
	a.logger.Debug().
		Str("file", file).
		Str("target", target.String()).
		Msg("Work queued")
	return true
}

// cleanup forgets keys whose queue nodes are gone, meaning a worker
// finished them. Probe failures keep the key; a stuck key only clears
// here or by restart.
func (a *Assigner) cleanup(ctx context.Context) {
	var removed int
	for _, key := range a.strategy.Keys() {
		exists, err := a.queue.Exists(ctx, key)
		if err != nil {
			a.logger.Warn().Err(err).Str("key", key).Msg("Failed to probe queued work, keeping key")
			continue
		}
		if exists {
			continue
		}
		a.strategy.Remove(key)
		removed++
		a.logger.Debug().Str("key", key).Msg("Completed work removed from bookkeeping")
	}
	if removed > 0 {
		a.logger.Info().Int("completed", removed).Msg("Cleaned up finished work")
	}
}
