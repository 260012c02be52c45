package replication

import (
	"github.com/gear6io/slate/server/store"
	"github.com/rs/zerolog"
)

// StatusCombiner merges concurrent status writes to the same cell using
// Merge. An undecodable side is dropped with a warning rather than
// poisoning the cell; both sides undecodable is an error.
type StatusCombiner struct {
	logger zerolog.Logger
}

// NewStatusCombiner creates the combiner attached to status and work
// families.
func NewStatusCombiner(logger zerolog.Logger) *StatusCombiner {
	return &StatusCombiner{
		logger: logger.With().Str("component", "status-combiner").Logger(),
	}
}

// Combine implements store.Combiner.
func (c *StatusCombiner) Combine(existing, incoming []byte) ([]byte, error) {
	current, errExisting := UnmarshalStatus(existing)
	next, errIncoming := UnmarshalStatus(incoming)

	switch {
	case errExisting != nil && errIncoming != nil:
		return nil, errExisting
	case errExisting != nil:
		c.logger.Warn().Err(errExisting).Msg("Dropping undecodable stored status during merge")
		return incoming, nil
	case errIncoming != nil:
		c.logger.Warn().Err(errIncoming).Msg("Dropping undecodable incoming status during merge")
		return existing, nil
	}

	return MarshalStatus(Merge(current, next))
}

var _ store.Combiner = (*StatusCombiner)(nil)
