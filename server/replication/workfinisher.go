package replication

import (
	"context"

	"github.com/gear6io/slate/pkg/errors"
	"github.com/gear6io/slate/server/store"
	"github.com/rs/zerolog"
)

// WorkFinisher retires work records once workers have drained them. When
// every work record of a closed file stops requiring work, the pass folds
// the per-source-table minimum Begin back into the file's status records
// and deletes the work records in the same mutation. The combiner merge
// raises only the status low-water mark, which is what flips the record to
// fully replicated and lets the reaper remove the file.
type WorkFinisher struct {
	store        store.Store
	logger       zerolog.Logger
	tableEnsured bool
}

// NewWorkFinisher creates a WorkFinisher over the replication table.
func NewWorkFinisher(st store.Store, logger zerolog.Logger) *WorkFinisher {
	return &WorkFinisher{
		store:  st,
		logger: logger.With().Str("component", "work-finisher").Logger(),
	}
}

type workRecord struct {
	qualifier string
	table     string
	status    Status
	ok        bool
}

// Run executes one pass over the replication table's work section.
func (f *WorkFinisher) Run(ctx context.Context) error {
	// The fold writes a bare Begin and relies on the status combiner to
	// merge it; combiners are in-process, so re-attach them before the
	// first write of this process or the fold would plain-overwrite the
	// status cell and lose the closed flag.
	if !f.tableEnsured {
		if err := EnsureReplicationTable(ctx, f.store, f.logger); err != nil {
			return err
		}
		f.tableEnsured = true
	}

	iter, err := f.store.Scan(ctx, ReplicationTableName, store.ScanOptions{Family: WorkFamily})
	if err != nil {
		return errors.New(ErrWorkScan, "failed to scan work records", err)
	}

	// Rows for one file are contiguous, but grouping in memory keeps the
	// pass correct regardless of how the store interleaves them.
	files := make(map[string][]workRecord)
	var order []string
	for iter.Next() {
		entry := iter.Entry()
		if _, seen := files[entry.Row]; !seen {
			order = append(order, entry.Row)
		}
		files[entry.Row] = append(files[entry.Row], f.decodeRecord(entry))
	}
	scanErr := iter.Err()
	iter.Close()
	if scanErr != nil {
		return errors.New(ErrWorkScan, "work record scan failed", scanErr)
	}
	if len(files) == 0 {
		f.logger.Debug().Msg("No work records to finish")
		return nil
	}

	writer, err := f.store.BatchWriter(ReplicationTableName)
	if err != nil {
		return errors.New(ErrWorkScan, "failed to open replication table writer", err)
	}
	defer writer.Close(ctx)

	var finished int
	for _, file := range order {
		records := files[file]
		begins, done := foldBegins(records)
		if !done {
			continue
		}

		// Status fold and work deletes ride one mutation so a crash never
		// leaves the fold applied with the work records still present.
		mut := store.NewMutation(file)
		encoded := true
		for table, begin := range begins {
			// Merging a bare Begin raises the low-water mark and leaves
			// End, InfiniteEnd, Closed, and ClosedTime untouched.
			value, err := MarshalStatus(Status{Begin: begin})
			if err != nil {
				f.logger.Warn().Err(err).Str("file", file).Msg("Failed to encode folded status, file kept")
				encoded = false
				break
			}
			mut.Put(StatusFamily, table, value)
		}
		if !encoded {
			continue
		}
		for _, rec := range records {
			mut.DeleteCell(WorkFamily, rec.qualifier)
		}
		if err := writer.Queue(mut); err != nil {
			f.logger.Warn().Err(err).Str("file", file).Msg("Failed to queue finish mutation, file retried next pass")
			continue
		}
		if err := writer.Flush(ctx); err != nil {
			f.logger.Warn().Err(err).Str("file", file).Msg("Failed to retire work records, file retried next pass")
			continue
		}
		finished++
		f.logger.Debug().
			Str("file", file).
			Int("targets", len(records)).
			Msg("Work records retired")
	}

	f.logger.Info().
		Int("files_finished", finished).
		Msg("Finish pass complete")
	return nil
}

func (f *WorkFinisher) decodeRecord(entry store.Entry) workRecord {
	rec := workRecord{qualifier: entry.Qualifier}
	target, err := ParseTarget(entry.Qualifier)
	if err != nil {
		f.logger.Warn().Err(err).
			Str("file", entry.Row).
			Str("qualifier", entry.Qualifier).
			Msg("Malformed work qualifier, file kept")
		return rec
	}
	status, err := UnmarshalStatus(entry.Value)
	if err != nil {
		f.logger.Warn().Err(err).
			Str("file", entry.Row).
			Str("qualifier", entry.Qualifier).
			Msg("Undecodable work record, file kept")
		return rec
	}
	rec.table = target.SourceTable
	rec.status = status
	rec.ok = true
	return rec
}

// foldBegins reports the minimum replicated Begin per source table and
// whether the file is finished at all: every record decodable, closed, and
// no longer requiring work. Open or in-flight files return false.
func foldBegins(records []workRecord) (map[string]int64, bool) {
	begins := make(map[string]int64, 1)
	for _, rec := range records {
		if !rec.ok || !rec.status.Closed || rec.status.RequiresWork() {
			return nil, false
		}
		begin, seen := begins[rec.table]
		if !seen || rec.status.Begin < begin {
			begins[rec.table] = rec.status.Begin
		}
	}
	return begins, true
}
