package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/gear6io/slate/pkg/backoff"
	"github.com/gear6io/slate/pkg/errors"
	"github.com/gear6io/slate/server/replication"
	"github.com/gear6io/slate/server/store"
	"github.com/rs/zerolog"
)

// Package-specific error codes for ingest
var (
	ErrCombinerSetup = errors.MustNewCode("ingest.combiner_setup_failed")
	ErrUpdateFailed  = errors.MustNewCode("ingest.update_failed")
)

// Recorder is the tablet-server side of replication: whenever segment
// files gain unreplicated data, change length, or close, ingest reports
// it here and the recorder writes the transient status records the
// StatusMaker drains. Updates must not be lost, so flushes retry until
// they stick; merge idempotence makes a replayed update harmless.
type Recorder struct {
	store  store.Store
	logger zerolog.Logger

	mu     sync.Mutex
	writer store.BatchWriter
}

// NewRecorder creates a recorder over the given store.
func NewRecorder(st store.Store, logger zerolog.Logger) *Recorder {
	return &Recorder{
		store:  st,
		logger: logger.With().Str("component", "ingest-recorder").Logger(),
	}
}

// EnsureCombiner creates the metadata table if needed and attaches the
// status combiner to its replication family, so concurrent ingest writers
// merge instead of clobbering each other.
func (r *Recorder) EnsureCombiner(ctx context.Context) error {
	if err := r.store.EnsureTable(ctx, replication.MetadataTableName); err != nil {
		return errors.New(ErrCombinerSetup, "failed to ensure metadata table", err)
	}
	combiner := replication.NewStatusCombiner(r.logger)
	if err := r.store.SetCombiner(replication.MetadataTableName, replication.MetadataFamily, combiner); err != nil {
		return errors.New(ErrCombinerSetup, "failed to attach status combiner", err)
	}
	return nil
}

// UpdateFiles merge-writes one status observation for every file on
// behalf of the given source table, retrying until the write is durable.
func (r *Recorder) UpdateFiles(ctx context.Context, tableID string, files []string, status replication.Status) error {
	if len(files) == 0 {
		return nil
	}
	value, err := replication.MarshalStatus(status)
	if err != nil {
		return err
	}

	mutations := make([]*store.Mutation, 0, len(files))
	for _, file := range files {
		mutations = append(mutations,
			store.NewMutation(replication.MetadataRow(file)).
				Put(replication.MetadataFamily, tableID, value))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	writer, err := r.batchWriter()
	if err != nil {
		return err
	}

	// Losing an update here silently strands data on this cluster, so
	// keep trying; replaying a merge after a partial failure is safe.
	err = backoff.Retry(ctx, backoff.Fixed(500*time.Millisecond), r.logger, func(ctx context.Context) error {
		if err := writer.Queue(mutations...); err != nil {
			return err
		}
		return writer.Flush(ctx)
	})
	if err != nil {
		return errors.New(ErrUpdateFailed, "failed to record replication status", err).
			AddContext("table_id", tableID)
	}

	r.logger.Debug().
		Str("table_id", tableID).
		Int("files", len(files)).
		Str("status", status.String()).
		Msg("Replication statuses recorded")
	return nil
}

// Close releases the cached writer.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writer == nil {
		return nil
	}
	err := r.writer.Close(ctx)
	r.writer = nil
	return err
}

func (r *Recorder) batchWriter() (store.BatchWriter, error) {
	if r.writer != nil {
		return r.writer, nil
	}
	writer, err := r.store.BatchWriter(replication.MetadataTableName)
	if err != nil {
		return nil, errors.New(ErrUpdateFailed, "failed to open metadata writer", err)
	}
	r.writer = writer
	return writer, nil
}
