package replication

import (
	"context"

	"github.com/gear6io/slate/pkg/errors"
	"github.com/gear6io/slate/server/store"
	"github.com/rs/zerolog"
)

// StatusMaker drains transient status records out of the metadata table
// into the durable replication table. Per record it merge-writes the
// status; for closed files it also records a close-order entry and only
// then deletes the metadata record. An open file keeps its transient
// record so later appends still funnel through it, and is re-forwarded
// each pass. A failure at any step leaves the source record in place
// for the next pass. Exactly one instance runs cluster-wide.
type StatusMaker struct {
	store        store.Store
	logger       zerolog.Logger
	tableEnsured bool
}

// NewStatusMaker creates a StatusMaker over the given store.
func NewStatusMaker(st store.Store, logger zerolog.Logger) *StatusMaker {
	return &StatusMaker{
		store:  st,
		logger: logger.With().Str("component", "status-maker").Logger(),
	}
}

// Run executes one pass over the metadata table's replication section.
// A scan-level failure aborts the pass; per-record failures are logged
// and skipped.
func (m *StatusMaker) Run(ctx context.Context) error {
	iter, err := m.store.Scan(ctx, MetadataTableName, store.ScanOptions{
		Prefix: MetadataReplPrefix,
		Family: MetadataFamily,
	})
	if err != nil {
		return errors.New(ErrSourceScan, "failed to scan metadata replication section", err)
	}

	// Materialize the scan before writing: the pass flushes per record,
	// and the durable engine cannot take writes while a read cursor is
	// open on the same rows.
	var entries []store.Entry
	for iter.Next() {
		entries = append(entries, iter.Entry())
	}
	scanErr := iter.Err()
	iter.Close()
	if scanErr != nil {
		return errors.New(ErrSourceScan, "metadata replication scan failed", scanErr)
	}

	var replWriter, metaWriter store.BatchWriter
	defer func() {
		if replWriter != nil {
			replWriter.Close(ctx)
		}
		if metaWriter != nil {
			metaWriter.Close(ctx)
		}
	}()

	var processed, closed, skipped int
	for _, entry := range entries {
		file, ok := FileFromMetadataRow(entry.Row)
		if !ok {
			m.logger.Warn().Str("row", entry.Row).Msg("Row outside replication section, skipping")
			skipped++
			continue
		}
		tableID := entry.Qualifier

		status, err := UnmarshalStatus(entry.Value)
		if err != nil {
			m.logger.Warn().Err(err).
				Str("file", file).
				Str("table_id", tableID).
				Msg("Undecodable status record, skipping")
			skipped++
			continue
		}

		if !m.tableEnsured {
			if err := EnsureReplicationTable(ctx, m.store, m.logger); err != nil {
				return err
			}
			m.tableEnsured = true
		}
		if replWriter == nil {
			if replWriter, err = m.store.BatchWriter(ReplicationTableName); err != nil {
				return errors.New(ErrSourceScan, "failed to open replication table writer", err)
			}
			if metaWriter, err = m.store.BatchWriter(MetadataTableName); err != nil {
				return errors.New(ErrSourceScan, "failed to open metadata table writer", err)
			}
		}

		m.logger.Debug().
			Str("file", file).
			Str("table_id", tableID).
			Str("status", status.String()).
			Msg("Forwarding status record")

		// The durable copy must exist before the transient one goes away.
		if err := m.writeStatus(ctx, replWriter, file, tableID, entry.Value); err != nil {
			m.logger.Warn().Err(err).Str("file", file).Msg("Failed to write status record, leaving source in place")
			continue
		}

		// The transient record is only drained once the file is closed;
		// an open file still takes appends that report through it.
		if status.Closed {
			if err := m.writeOrder(ctx, replWriter, file, tableID, status, entry.Value); err != nil {
				m.logger.Warn().Err(err).Str("file", file).Msg("Failed to write order record, leaving source in place")
				continue
			}
			if err := m.deleteSource(ctx, metaWriter, entry.Row, tableID); err != nil {
				m.logger.Warn().Err(err).Str("file", file).Msg("Failed to delete metadata record, will reprocess")
				continue
			}
			closed++
		}
		processed++
	}

	m.logger.Info().
		Int("processed", processed).
		Int("closed", closed).
		Int("skipped", skipped).
		Msg("Status pass complete")
	return nil
}

func (m *StatusMaker) writeStatus(ctx context.Context, w store.BatchWriter, file, tableID string, value []byte) error {
	mut := store.NewMutation(file).Put(StatusFamily, tableID, value)
	if err := w.Queue(mut); err != nil {
		return err
	}
	return w.Flush(ctx)
}

func (m *StatusMaker) writeOrder(ctx context.Context, w store.BatchWriter, file, tableID string, status Status, value []byte) error {
	if status.ClosedTime == 0 {
		m.logger.Warn().
			Str("file", file).
			Str("table_id", tableID).
			Msg("Closed status carries no close time, order record will sort first")
	}
	mut := store.NewMutation(OrderRow(status.ClosedTime, file)).Put(OrderFamily, tableID, value)
	if err := w.Queue(mut); err != nil {
		return err
	}
	return w.Flush(ctx)
}

func (m *StatusMaker) deleteSource(ctx context.Context, w store.BatchWriter, row, tableID string) error {
	mut := store.NewMutation(row).DeleteCell(MetadataFamily, tableID)
	if err := w.Queue(mut); err != nil {
		return err
	}
	return w.Flush(ctx)
}
