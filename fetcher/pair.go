package fetcher

import (
	"sync"

	"github.com/mezonai/herder/types"
)

// Pair is a two-generation TxSet fetcher double-buffer: at externalization
// the active fetcher's in-flight requests are cancelled, the role flips,
// and the newly active fetcher is cleared. This bounds memory without
// losing items still being validated against the just-closed slot.
type Pair[V any] struct {
	mu      sync.Mutex
	fetch   [2]*ItemFetcher[V]
	active  int
}

func NewPair[V any](kind string, requester Requester, backoff PeerBackoff) *Pair[V] {
	return &Pair[V]{
		fetch: [2]*ItemFetcher[V]{
			New[V](kind+"-0", requester, backoff),
			New[V](kind+"-1", requester, backoff),
		},
	}
}

// Active returns the fetcher currently receiving new requests.
func (p *Pair[V]) Active() *ItemFetcher[V] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetch[p.active]
}

// Retired returns the fetcher holding the previous generation's in-flight
// state, kept around until the flip that follows the next externalization.
func (p *Pair[V]) Retired() *ItemFetcher[V] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetch[1-p.active]
}

// Flip cancels the active fetcher's outstanding requests, swaps active and
// retired, then clears the newly active (formerly retired) fetcher: both its
// outstanding requests and its cached items are dropped.
func (p *Pair[V]) Flip() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetch[p.active].StopFetchingAll()
	p.active = 1 - p.active
	next := p.fetch[p.active]
	next.Clear()
	next.mu.Lock()
	next.items = make(map[types.Hash]V)
	next.mu.Unlock()
}
