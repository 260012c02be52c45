package memqueue

import (
	"context"
	"sync"

	"github.com/gear6io/slate/pkg/errors"
	"github.com/gear6io/slate/server/coordination"
)

// Queue is an in-process coordination.WorkQueue backing tests,
// single-node deployments, and the embedded dev server.
type Queue struct {
	mu     sync.RWMutex
	rooted bool
	nodes  map[string][]byte
}

// NewQueue returns a queue whose root already exists.
func NewQueue() *Queue {
	return &Queue{
		rooted: true,
		nodes:  make(map[string][]byte),
	}
}

// NewUnrootedQueue returns a queue whose root has not been created yet;
// operations fail with a root-absent code until CreateRoot is called.
// Exercises the assigner's startup retry path.
func NewUnrootedQueue() *Queue {
	return &Queue{
		nodes: make(map[string][]byte),
	}
}

// CreateRoot makes the queue usable.
func (q *Queue) CreateRoot() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rooted = true
}

// AddWork publishes a node under the root.
func (q *Queue) AddWork(ctx context.Context, key string, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.rooted {
		return errors.New(coordination.ErrRootAbsent, "work queue root does not exist", nil)
	}
	q.nodes[key] = append([]byte(nil), payload...)
	return nil
}

// ListKeys returns every outstanding node key.
func (q *Queue) ListKeys(ctx context.Context) ([]string, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if !q.rooted {
		return nil, errors.New(coordination.ErrRootAbsent, "work queue root does not exist", nil)
	}
	keys := make([]string, 0, len(q.nodes))
	for key := range q.nodes {
		keys = append(keys, key)
	}
	return keys, nil
}

// Exists probes a single node.
func (q *Queue) Exists(ctx context.Context, key string) (bool, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if !q.rooted {
		return false, errors.New(coordination.ErrRootAbsent, "work queue root does not exist", nil)
	}
	_, ok := q.nodes[key]
	return ok, nil
}

// RemoveWork deletes a node, as a worker does on completion.
func (q *Queue) RemoveWork(ctx context.Context, key string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.rooted {
		return errors.New(coordination.ErrRootAbsent, "work queue root does not exist", nil)
	}
	if _, ok := q.nodes[key]; !ok {
		return errors.New(coordination.ErrNodeAbsent, "work node does not exist", nil).AddContext("key", key)
	}
	delete(q.nodes, key)
	return nil
}

// Payload returns a node's payload for inspection in tests and tooling.
func (q *Queue) Payload(key string) ([]byte, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	payload, ok := q.nodes[key]
	return payload, ok
}
