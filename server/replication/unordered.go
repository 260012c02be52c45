package replication

import (
	"context"
	"sync"
)

// UnorderedStrategy dispatches every eligible work unit concurrently,
// deduplicating on the exact queue key.
type UnorderedStrategy struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// NewUnorderedStrategy creates the strategy with empty bookkeeping.
func NewUnorderedStrategy() *UnorderedStrategy {
	return &UnorderedStrategy{keys: make(map[string]struct{})}
}

// Name implements Strategy.
func (s *UnorderedStrategy) Name() string { return "unordered" }

// Prepare implements Strategy; nothing to precompute.
func (s *UnorderedStrategy) Prepare(ctx context.Context) error { return nil }

// ShouldQueue implements Strategy.
func (s *UnorderedStrategy) ShouldQueue(target Target, file, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, tracked := s.keys[key]
	return !tracked
}

// MarkQueued implements Strategy.
func (s *UnorderedStrategy) MarkQueued(target Target, file, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key] = struct{}{}
}

// AddExisting implements Strategy.
func (s *UnorderedStrategy) AddExisting(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key] = struct{}{}
}

// Remove implements Strategy.
func (s *UnorderedStrategy) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
}

// Keys implements Strategy.
func (s *UnorderedStrategy) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.keys))
	for key := range s.keys {
		keys = append(keys, key)
	}
	return keys
}

// Size implements Strategy.
func (s *UnorderedStrategy) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}
