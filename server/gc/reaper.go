package gc

import (
	"context"
	"sync"
	"time"

	"github.com/gear6io/slate/pkg/errors"
	"github.com/gear6io/slate/server/replication"
	"github.com/gear6io/slate/server/store"
	"github.com/gear6io/slate/server/volume"
	"github.com/rs/zerolog"
)

// Package-specific error codes for the segment reaper
var (
	ErrScanFailed    = errors.MustNewCode("gc.scan_failed")
	ErrCleanupFailed = errors.MustNewCode("gc.cleanup_failed")
)

// Reaper removes segment files the replication pipeline has finished
// with: every status closed and fully replicated, no work record still
// in flight. The object goes first, then the file's replication rows;
// a crash in between re-runs cleanly because removing a missing object
// succeeds.
type Reaper struct {
	store   store.Store
	volume  volume.Manager
	workers int
	logger  zerolog.Logger
}

// candidate is one file cleared for removal, with everything needed to
// clean its rows afterwards.
type candidate struct {
	file           string
	statuses       map[string]replication.Status
	workQualifiers []string
}

// NewReaper creates a reaper deleting through the given volume with a
// bounded worker pool.
func NewReaper(st store.Store, vol volume.Manager, workers int, logger zerolog.Logger) *Reaper {
	if workers <= 0 {
		workers = 1
	}
	return &Reaper{
		store:   st,
		volume:  vol,
		workers: workers,
		logger:  logger.With().Str("component", "segment-reaper").Logger(),
	}
}

// Run executes one reap pass.
func (r *Reaper) Run(ctx context.Context) error {
	candidates, err := r.collectCandidates(ctx)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		r.logger.Debug().Msg("No removable segments")
		return nil
	}

	removed := r.removeSegments(ctx, candidates)
	if err := r.cleanRows(ctx, removed); err != nil {
		return err
	}

	r.logger.Info().
		Int("candidates", len(candidates)).
		Int("removed", len(removed)).
		Msg("Reap pass complete")
	return nil
}

// RunLoop reaps on an interval until the context is cancelled. Failed
// passes are logged and retried on the next tick; every step is
// idempotent.
func (r *Reaper) RunLoop(ctx context.Context, interval time.Duration) {
	r.logger.Info().Dur("interval", interval).Msg("Segment reaper started")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("Segment reaper stopped")
			return
		case <-ticker.C:
			if err := r.Run(ctx); err != nil {
				r.logger.Error().Err(err).Msg("Reap pass failed")
			}
		}
	}
}

// collectCandidates walks the replication table once and keeps files
// whose every status is safe for removal and whose work records are all
// resolved. Anything undecodable disqualifies its file.
func (r *Reaper) collectCandidates(ctx context.Context) ([]candidate, error) {
	statuses := make(map[string]map[string]replication.Status)
	disqualified := make(map[string]bool)

	iter, err := r.store.Scan(ctx, replication.ReplicationTableName, store.ScanOptions{
		Family: replication.StatusFamily,
	})
	if err != nil {
		if errors.HasCode(err, store.ErrTableNotFound) {
			return nil, nil
		}
		return nil, errors.New(ErrScanFailed, "failed to scan status records", err)
	}
	defer iter.Close()

	for iter.Next() {
		entry := iter.Entry()
		status, err := replication.UnmarshalStatus(entry.Value)
		if err != nil {
			r.logger.Warn().Err(err).Str("file", entry.Row).Msg("Undecodable status record, keeping file")
			disqualified[entry.Row] = true
			continue
		}
		if !status.SafeForRemoval() {
			disqualified[entry.Row] = true
			continue
		}
		if statuses[entry.Row] == nil {
			statuses[entry.Row] = make(map[string]replication.Status)
		}
		statuses[entry.Row][entry.Qualifier] = status
	}
	if err := iter.Err(); err != nil {
		return nil, errors.New(ErrScanFailed, "status record scan failed", err)
	}

	work := make(map[string][]string)
	workIter, err := r.store.Scan(ctx, replication.ReplicationTableName, store.ScanOptions{
		Family: replication.WorkFamily,
	})
	if err != nil {
		return nil, errors.New(ErrScanFailed, "failed to scan work records", err)
	}
	defer workIter.Close()

	for workIter.Next() {
		entry := workIter.Entry()
		status, err := replication.UnmarshalStatus(entry.Value)
		if err != nil || status.RequiresWork() {
			disqualified[entry.Row] = true
			continue
		}
		work[entry.Row] = append(work[entry.Row], entry.Qualifier)
	}
	if err := workIter.Err(); err != nil {
		return nil, errors.New(ErrScanFailed, "work record scan failed", err)
	}

	var candidates []candidate
	for file, fileStatuses := range statuses {
		if disqualified[file] {
			continue
		}
		candidates = append(candidates, candidate{
			file:           file,
			statuses:       fileStatuses,
			workQualifiers: work[file],
		})
	}
	return candidates, nil
}

// removeSegments deletes the underlying objects with a bounded pool and
// blocks until every delete settled. Only files whose object is gone get
// their rows cleaned.
func (r *Reaper) removeSegments(ctx context.Context, candidates []candidate) []candidate {
	jobs := make(chan candidate)
	var mu sync.Mutex
	var removed []candidate
	var wg sync.WaitGroup

	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for cand := range jobs {
				if err := r.volume.Remove(ctx, cand.file); err != nil {
					r.logger.Warn().Err(err).Str("file", cand.file).Msg("Failed to remove segment, retried next pass")
					continue
				}
				mu.Lock()
				removed = append(removed, cand)
				mu.Unlock()
			}
		}()
	}

	for _, cand := range candidates {
		jobs <- cand
	}
	close(jobs)
	wg.Wait()
	return removed
}

// cleanRows deletes the status, work, and order rows of removed files.
// Order rows are located by scanning the order section rather than
// reconstructing keys from each status's close time: a file first
// closed without a time has its order row keyed at zero, and a later
// merge can give the status a real close time that no longer matches.
func (r *Reaper) cleanRows(ctx context.Context, removed []candidate) error {
	if len(removed) == 0 {
		return nil
	}

	files := make(map[string]bool, len(removed))
	for _, cand := range removed {
		files[cand.file] = true
	}
	orderCells, err := r.orderCells(ctx, files)
	if err != nil {
		return err
	}

	writer, err := r.store.BatchWriter(replication.ReplicationTableName)
	if err != nil {
		return errors.New(ErrCleanupFailed, "failed to open replication table writer", err)
	}
	defer writer.Close(ctx)

	for _, cand := range removed {
		fileMut := store.NewMutation(cand.file)
		muts := []*store.Mutation{fileMut}
		for tableID := range cand.statuses {
			fileMut.DeleteCell(replication.StatusFamily, tableID)
		}
		for _, cell := range orderCells[cand.file] {
			muts = append(muts, store.NewMutation(cell.row).
				DeleteCell(replication.OrderFamily, cell.qualifier))
		}
		for _, qualifier := range cand.workQualifiers {
			fileMut.DeleteCell(replication.WorkFamily, qualifier)
		}

		if err := writer.Queue(muts...); err != nil {
			r.logger.Warn().Err(err).Str("file", cand.file).Msg("Failed to queue row cleanup, retried next pass")
			continue
		}
		if err := writer.Flush(ctx); err != nil {
			r.logger.Warn().Err(err).Str("file", cand.file).Msg("Failed to clean replication rows, retried next pass")
			continue
		}
		r.logger.Debug().Str("file", cand.file).Msg("Segment reaped")
	}
	return nil
}

type orderCell struct {
	row       string
	qualifier string
}

// orderCells walks the order section once and groups its cells by file,
// for the files being cleaned. Malformed rows are left in place.
func (r *Reaper) orderCells(ctx context.Context, files map[string]bool) (map[string][]orderCell, error) {
	iter, err := r.store.Scan(ctx, replication.ReplicationTableName, store.ScanOptions{
		Family: replication.OrderFamily,
	})
	if err != nil {
		return nil, errors.New(ErrCleanupFailed, "failed to scan order records", err)
	}
	defer iter.Close()

	cells := make(map[string][]orderCell)
	for iter.Next() {
		entry := iter.Entry()
		_, file, err := replication.ParseOrderRow(entry.Row)
		if err != nil {
			r.logger.Warn().Err(err).Str("row", entry.Row).Msg("Malformed order record, keeping row")
			continue
		}
		if !files[file] {
			continue
		}
		cells[file] = append(cells[file], orderCell{row: entry.Row, qualifier: entry.Qualifier})
	}
	if err := iter.Err(); err != nil {
		return nil, errors.New(ErrCleanupFailed, "order record scan failed", err)
	}
	return cells, nil
}
