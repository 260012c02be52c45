package replication

import (
	"context"
	"sync"

	"github.com/gear6io/slate/pkg/errors"
	"github.com/gear6io/slate/server/store"
	"github.com/rs/zerolog"
)

// peerTable keys sequential bookkeeping: one outstanding file per peer
// and source table.
type peerTable struct {
	peer  string
	table string
}

// SequentialStrategy replays files to each (peer, source table) pair in
// close order: at most one key outstanding per pair, and only the
// earliest-closed file still needing work is eligible. Eligibility is
// rebuilt every pass from the order records; outstanding keys are
// rebuilt at startup by parsing recovered queue keys.
type SequentialStrategy struct {
	store  store.Store
	logger zerolog.Logger

	mu       sync.Mutex
	queued   map[peerTable]string
	eligible map[peerTable]string
}

// NewSequentialStrategy creates the strategy over the given store.
func NewSequentialStrategy(st store.Store, logger zerolog.Logger) *SequentialStrategy {
	return &SequentialStrategy{
		store:    st,
		logger:   logger.With().Str("component", "sequential-strategy").Logger(),
		queued:   make(map[peerTable]string),
		eligible: make(map[peerTable]string),
	}
}

// Name implements Strategy.
func (s *SequentialStrategy) Name() string { return "sequential" }

// Prepare implements Strategy: walk order records ascending and record,
// per (peer, source table), the earliest closed file whose work records
// still require replication. Later files stay ineligible until that one
// is resolved.
func (s *SequentialStrategy) Prepare(ctx context.Context) error {
	s.mu.Lock()
	s.eligible = make(map[peerTable]string)
	s.mu.Unlock()

	iter, err := s.store.Scan(ctx, ReplicationTableName, store.ScanOptions{Family: OrderFamily})
	if err != nil {
		if errors.HasCode(err, store.ErrTableNotFound) {
			s.logger.Debug().Msg("Replication table not created yet, no order records")
			return nil
		}
		return errors.New(ErrOrderScan, "failed to scan order records", err)
	}
	defer iter.Close()

	for iter.Next() {
		entry := iter.Entry()
		_, file, err := ParseOrderRow(entry.Row)
		if err != nil {
			s.logger.Warn().Err(err).Str("row", entry.Row).Msg("Malformed order record, skipping")
			continue
		}
		if err := s.markPending(ctx, file, entry.Qualifier); err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		return errors.New(ErrOrderScan, "order record scan failed", err)
	}
	return nil
}

// markPending records file as the eligible candidate for every pair of
// the given source table that still has work on it, unless an earlier
// file already claimed the pair.
func (s *SequentialStrategy) markPending(ctx context.Context, file, tableID string) error {
	start, end := exactRow(file)
	iter, err := s.store.Scan(ctx, ReplicationTableName, store.ScanOptions{
		StartRow: start,
		EndRow:   end,
		Family:   WorkFamily,
	})
	if err != nil {
		return errors.New(ErrOrderScan, "failed to scan work records for ordered file", err).
			AddContext("file", file)
	}
	defer iter.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	for iter.Next() {
		entry := iter.Entry()
		target, err := ParseTarget(entry.Qualifier)
		if err != nil {
			s.logger.Warn().Err(err).Str("file", file).Msg("Malformed work record target, skipping")
			continue
		}
		if target.SourceTable != tableID {
			continue
		}
		status, err := UnmarshalStatus(entry.Value)
		if err != nil {
			s.logger.Warn().Err(err).Str("file", file).Msg("Undecodable work record status, skipping")
			continue
		}
		if !status.RequiresWork() {
			continue
		}
		pair := peerTable{peer: target.Peer, table: target.SourceTable}
		if _, claimed := s.eligible[pair]; !claimed {
			s.eligible[pair] = file
		}
	}
	if err := iter.Err(); err != nil {
		return errors.New(ErrOrderScan, "work record scan for ordered file failed", err).
			AddContext("file", file)
	}
	return nil
}

// ShouldQueue implements Strategy: the pair must be idle and the file
// must be its earliest pending candidate.
func (s *SequentialStrategy) ShouldQueue(target Target, file, key string) bool {
	pair := peerTable{peer: target.Peer, table: target.SourceTable}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.queued[pair]; busy {
		return false
	}
	return s.eligible[pair] == file
}

// MarkQueued implements Strategy.
func (s *SequentialStrategy) MarkQueued(target Target, file, key string) {
	pair := peerTable{peer: target.Peer, table: target.SourceTable}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queued[pair] = key
}

// AddExisting implements Strategy: recovered keys re-seed the per-pair
// map by parsing the key itself.
func (s *SequentialStrategy) AddExisting(key string) {
	_, target, err := ParseQueueKey(key)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Unparseable recovered key, ignoring")
		return
	}
	pair := peerTable{peer: target.Peer, table: target.SourceTable}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queued[pair] = key
}

// Remove implements Strategy. Only the exact outstanding key clears the
// pair; a stale removal must not free a pair that has since requeued.
func (s *SequentialStrategy) Remove(key string) {
	_, target, err := ParseQueueKey(key)
	if err != nil {
		return
	}
	pair := peerTable{peer: target.Peer, table: target.SourceTable}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queued[pair] == key {
		delete(s.queued, pair)
	}
}

// Keys implements Strategy.
func (s *SequentialStrategy) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.queued))
	for _, key := range s.queued {
		keys = append(keys, key)
	}
	return keys
}

// Size implements Strategy.
func (s *SequentialStrategy) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queued)
}
