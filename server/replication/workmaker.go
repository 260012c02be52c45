package replication

import (
	"context"

	"github.com/gear6io/slate/pkg/errors"
	"github.com/gear6io/slate/server/store"
	"github.com/rs/zerolog"
)

// TargetsProvider resolves a source table id to its configured replication
// destinations, peer name to remote table identifier. A table with no
// targets returns an empty map.
type TargetsProvider interface {
	Targets(tableID string) map[string]string
}

// TargetsFunc adapts a lookup function to TargetsProvider.
type TargetsFunc func(tableID string) map[string]string

// Targets implements TargetsProvider.
func (f TargetsFunc) Targets(tableID string) map[string]string {
	return f(tableID)
}

// WorkMaker turns durable status records that still require replication
// into per-target work records. Re-running it is harmless: work values go
// through the status combiner, so an existing record absorbs the merge.
type WorkMaker struct {
	store        store.Store
	targets      TargetsProvider
	logger       zerolog.Logger
	tableEnsured bool
}

// NewWorkMaker creates a WorkMaker using the given target configuration.
func NewWorkMaker(st store.Store, targets TargetsProvider, logger zerolog.Logger) *WorkMaker {
	return &WorkMaker{
		store:   st,
		targets: targets,
		logger:  logger.With().Str("component", "work-maker").Logger(),
	}
}

// Run executes one pass over the replication table's status section.
func (w *WorkMaker) Run(ctx context.Context) error {
	// Combiners are in-process registrations: after a restart over a
	// persisted store the table exists but nothing has re-attached them,
	// and a bare put would clobber worker progress in the work records.
	if !w.tableEnsured {
		if err := EnsureReplicationTable(ctx, w.store, w.logger); err != nil {
			return err
		}
		w.tableEnsured = true
	}

	iter, err := w.store.Scan(ctx, ReplicationTableName, store.ScanOptions{Family: StatusFamily})
	if err != nil {
		return errors.New(ErrStatusScan, "failed to scan status records", err)
	}

	// Materialize before writing; the durable engine cannot take writes
	// while a read cursor is open on the same rows.
	var entries []store.Entry
	for iter.Next() {
		entries = append(entries, iter.Entry())
	}
	scanErr := iter.Err()
	iter.Close()
	if scanErr != nil {
		return errors.New(ErrStatusScan, "status record scan failed", scanErr)
	}

	writer, err := w.store.BatchWriter(ReplicationTableName)
	if err != nil {
		return errors.New(ErrStatusScan, "failed to open replication table writer", err)
	}
	defer writer.Close(ctx)

	var created, skipped int
	for _, entry := range entries {
		file := entry.Row
		tableID := entry.Qualifier

		status, err := UnmarshalStatus(entry.Value)
		if err != nil {
			w.logger.Warn().Err(err).
				Str("file", file).
				Str("table_id", tableID).
				Msg("Undecodable status record, skipping")
			skipped++
			continue
		}
		if !status.RequiresWork() {
			continue
		}

		targets := w.targets.Targets(tableID)
		if len(targets) == 0 {
			w.logger.Debug().
				Str("file", file).
				Str("table_id", tableID).
				Msg("No replication targets configured, skipping")
			continue
		}

		// One mutation covers every target so a reader never observes a
		// partial fan-out for the file.
		mut := store.NewMutation(file)
		for peer, remoteID := range targets {
			target := Target{Peer: peer, RemoteID: remoteID, SourceTable: tableID}
			mut.Put(WorkFamily, target.Qualifier(), entry.Value)
		}
		if err := writer.Queue(mut); err != nil {
			w.logger.Warn().Err(err).Str("file", file).Msg("Failed to queue work mutation, file retried next pass")
			continue
		}
		if err := writer.Flush(ctx); err != nil {
			w.logger.Warn().Err(err).Str("file", file).Msg("Failed to write work records, file retried next pass")
			continue
		}
		created += len(targets)
		w.logger.Debug().
			Str("file", file).
			Str("table_id", tableID).
			Int("targets", len(targets)).
			Msg("Work records written")
	}

	w.logger.Info().
		Int("work_records", created).
		Int("skipped", skipped).
		Msg("Work pass complete")
	return nil
}
