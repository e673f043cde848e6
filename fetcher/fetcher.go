// Package fetcher implements ItemFetcher<K,V>: retrieval of an opaque blob
// identified by a content hash from the overlay, with request
// deduplication and peer-denial backoff.
package fetcher

import (
	"sync"

	"github.com/mezonai/herder/logx"
	"github.com/mezonai/herder/monitoring"
	"github.com/mezonai/herder/types"
	"golang.org/x/sync/singleflight"
)

// Requester asks the overlay to fetch hash from a specific peer, or from
// whichever peer the overlay currently prefers when peer is the zero value.
type Requester interface {
	RequestItem(hash types.Hash, peer types.NodeID)
}

// PeerBackoff is invoked once every known candidate has denied possession
// of a hash; the overlay decides how and when to retry.
type PeerBackoff interface {
	Backoff(hash types.Hash, attempt int)
}

type pending struct {
	candidates map[types.NodeID]struct{}
	asked      map[types.NodeID]struct{}
	attempts   int
}

// ItemFetcher caches resolved items by hash and tracks pending requests for
// unresolved ones. Kind labels the content type for metrics (e.g. "txset",
// "qset"); it carries no behavior.
type ItemFetcher[V any] struct {
	mu       sync.Mutex
	items    map[types.Hash]V
	pendings map[types.Hash]*pending
	sf       singleflight.Group

	kind     string
	requester Requester
	backoff   PeerBackoff
}

func New[V any](kind string, requester Requester, backoff PeerBackoff) *ItemFetcher[V] {
	return &ItemFetcher[V]{
		items:    make(map[types.Hash]V),
		pendings: make(map[types.Hash]*pending),
		kind:     kind,
		requester: requester,
		backoff:   backoff,
	}
}

// FetchItem returns the cached value for hash if present. Otherwise, if
// askNetwork is true, it registers (deduplicating via singleflight) an
// outbound request and returns absent; if askNetwork is false it returns
// absent without emitting any traffic.
func (f *ItemFetcher[V]) FetchItem(hash types.Hash, askNetwork bool) (v V, present bool) {
	f.mu.Lock()
	v, present = f.items[hash]
	if present {
		f.mu.Unlock()
		return v, true
	}
	if _, exists := f.pendings[hash]; !exists {
		f.pendings[hash] = &pending{candidates: map[types.NodeID]struct{}{}, asked: map[types.NodeID]struct{}{}}
	}
	f.mu.Unlock()

	if askNetwork {
		f.sf.Do(f.kind+":"+hash.String(), func() (interface{}, error) {
			f.requester.RequestItem(hash, types.NodeID{})
			return nil, nil
		})
		monitoring.SetPendingFetches(f.kind, f.pendingCount())
	}
	return v, false
}

func (f *ItemFetcher[V]) pendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pendings)
}

// RecvItem stores v by its content hash. It returns true iff at least one
// caller had a pending request for this hash — i.e. someone actually cares.
func (f *ItemFetcher[V]) RecvItem(hash types.Hash, v V) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, wasPending := f.pendings[hash]
	f.items[hash] = v
	delete(f.pendings, hash)
	if wasPending {
		monitoring.IncreaseFetchResolved()
	}
	return wasPending
}

// DoesntHave records a peer's denial for hash: the peer is dropped from the
// candidate set; if other candidates remain, a re-request goes to one of
// them; if none remain, PeerBackoff is invoked.
func (f *ItemFetcher[V]) DoesntHave(hash types.Hash, peer types.NodeID) {
	f.mu.Lock()
	p, ok := f.pendings[hash]
	if !ok {
		f.mu.Unlock()
		return
	}
	delete(p.candidates, peer)
	p.asked[peer] = struct{}{}
	p.attempts++
	remaining := len(p.candidates)
	attempt := p.attempts
	f.mu.Unlock()

	if remaining > 0 {
		for next := range p.candidates {
			f.requester.RequestItem(hash, next)
			return
		}
	}
	if f.backoff != nil {
		f.backoff.Backoff(hash, attempt)
	}
}

// AddCandidate records peer as a node the fetcher may ask for hash, called
// as the overlay learns who might have it.
func (f *ItemFetcher[V]) AddCandidate(hash types.Hash, peer types.NodeID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pendings[hash]
	if !ok {
		p = &pending{candidates: map[types.NodeID]struct{}{}, asked: map[types.NodeID]struct{}{}}
		f.pendings[hash] = p
	}
	if _, asked := p.asked[peer]; !asked {
		p.candidates[peer] = struct{}{}
	}
}

// Clear cancels every outstanding request without surfacing errors.
func (f *ItemFetcher[V]) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pendings = make(map[types.Hash]*pending)
	logx.Debug("FETCHER", f.kind+" cleared pending requests")
}

// StopFetchingAll is Clear's alias using the overlay's own vocabulary; both cancel
// outstanding requests silently.
func (f *ItemFetcher[V]) StopFetchingAll() {
	f.Clear()
}

// Has reports whether hash is already cached, without triggering a fetch.
func (f *ItemFetcher[V]) Has(hash types.Hash) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.items[hash]
	return ok
}
