// Package fetchgate implements the pending-callback registry described in
// a hash-keyed queue of continuations released, in
// registration order, exactly once content for that hash arrives.
package fetchgate

import (
	"sync"

	"github.com/mezonai/herder/types"
)

// Gate is safe for concurrent use: overlay callbacks, timer fires, and kernel
// callbacks can reach it from different goroutines.
type Gate[V any] struct {
	mu      sync.Mutex
	waiters map[types.Hash][]func(V)
}

func New[V any]() *Gate[V] {
	return &Gate[V]{waiters: make(map[types.Hash][]func(V))}
}

// Await appends continuation to hash's waiter queue.
func (g *Gate[V]) Await(hash types.Hash, continuation func(V)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.waiters[hash] = append(g.waiters[hash], continuation)
}

// Release atomically removes hash's entry and invokes each continuation
// exactly once, in registration order, with value. A no-op if no entry
// exists — this is the normal case, not an error (section 7).
func (g *Gate[V]) Release(hash types.Hash, value V) {
	g.mu.Lock()
	waiters := g.waiters[hash]
	delete(g.waiters, hash)
	g.mu.Unlock()

	for _, cb := range waiters {
		cb(value)
	}
}

// PendingCount reports the number of hashes with at least one waiter.
func (g *Gate[V]) PendingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.waiters)
}
