package statevalidator

import (
	"sync"
	"time"

	"github.com/mezonai/herder/monitoring"
	"github.com/mezonai/herder/types"
)

type deferredEntry struct {
	timer *time.Timer
	cb    func(bool)
}

// deferredRegistry is BallotValidationTimers: an arena of timer handles
// keyed by (FBABallot, NodeId), with bulk operations for the two ways a
// batch of pending acceptances resolves — v-blocking rush (accept all) or
// ledgerClosed (cancel all, nothing fires).
type deferredRegistry struct {
	mu       sync.Mutex
	byBallot map[types.Hash]map[types.NodeID]*deferredEntry
}

func newDeferredRegistry() *deferredRegistry {
	return &deferredRegistry{byBallot: make(map[types.Hash]map[types.NodeID]*deferredEntry)}
}

// register arms a timer for (ballotKey, requester); firing invokes cb(true)
// exactly once unless acceptAll or clearAll intervenes first.
func (r *deferredRegistry) register(clock Clock, ballotKey types.Hash, requester types.NodeID, delay time.Duration, cb func(bool)) {
	r.mu.Lock()
	m, ok := r.byBallot[ballotKey]
	if !ok {
		m = make(map[types.NodeID]*deferredEntry)
		r.byBallot[ballotKey] = m
	}
	entry := &deferredEntry{cb: cb}
	m[requester] = entry
	count := r.countLocked()
	r.mu.Unlock()
	monitoring.SetDeferredTimers(count)

	entry.timer = clock.AfterFunc(delay, func() { r.fire(ballotKey, requester) })
}

func (r *deferredRegistry) fire(ballotKey types.Hash, requester types.NodeID) {
	r.mu.Lock()
	m, ok := r.byBallot[ballotKey]
	if !ok {
		r.mu.Unlock()
		return
	}
	entry, ok := m[requester]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(m, requester)
	if len(m) == 0 {
		delete(r.byBallot, ballotKey)
	}
	count := r.countLocked()
	r.mu.Unlock()
	monitoring.SetDeferredTimers(count)
	entry.cb(true)
}

// requesterSet returns the current set of NodeIds with a pending timer for
// ballotKey, for feeding into the kernel's isVBlocking predicate.
func (r *deferredRegistry) requesterSet(ballotKey types.Hash) map[types.NodeID]struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.byBallot[ballotKey]
	set := make(map[types.NodeID]struct{}, len(m))
	for nodeID := range m {
		set[nodeID] = struct{}{}
	}
	return set
}

// acceptAll cancels every pending timer for ballotKey and invokes each
// callback with true, in no particular order — ordering is only guaranteed
// callbacks within a single content hash's FetchGate, not here.
func (r *deferredRegistry) acceptAll(ballotKey types.Hash) {
	r.mu.Lock()
	m := r.byBallot[ballotKey]
	delete(r.byBallot, ballotKey)
	count := r.countLocked()
	r.mu.Unlock()
	monitoring.SetDeferredTimers(count)

	for _, entry := range m {
		entry.timer.Stop()
		monitoring.IncreaseVBlockingAccepts()
		entry.cb(true)
	}
}

// clearAll cancels every outstanding timer without firing any callback —
// the slot moved, so pending deferred acceptances are moot.
func (r *deferredRegistry) clearAll() {
	r.mu.Lock()
	all := r.byBallot
	r.byBallot = make(map[types.Hash]map[types.NodeID]*deferredEntry)
	r.mu.Unlock()
	monitoring.SetDeferredTimers(0)

	for _, m := range all {
		for _, entry := range m {
			entry.timer.Stop()
		}
	}
}

func (r *deferredRegistry) countLocked() int {
	n := 0
	for _, m := range r.byBallot {
		n += len(m)
	}
	return n
}
