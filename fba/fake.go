package fba

import (
	"crypto/ed25519"
	"sync"

	"github.com/mezonai/herder/ballot"
	"github.com/mezonai/herder/types"
)

// FakeKernel is a minimal, non-Byzantine-tolerant stand-in for the real FBA
// engine. It exists so Herder — and this repository's tests — have a
// concrete Kernel to drive without reimplementing federated voting, which
// this repository places out of scope.
type FakeKernel struct {
	mu sync.Mutex

	localQuorumSet ballot.QuorumSet
	localNodeID    types.NodeID
	secretKey      ed25519.PrivateKey

	received []ballot.Envelope
	prepared map[types.SlotIndex]ballot.BallotValue
	purged   map[types.NodeID]struct{}
	purgedBelow types.SlotIndex
}

func NewFakeKernel(localNodeID types.NodeID, secretKey ed25519.PrivateKey, qs ballot.QuorumSet) *FakeKernel {
	return &FakeKernel{
		localQuorumSet: qs,
		localNodeID:    localNodeID,
		secretKey:      secretKey,
		prepared:       make(map[types.SlotIndex]ballot.BallotValue),
		purged:         make(map[types.NodeID]struct{}),
	}
}

func (k *FakeKernel) ReceiveEnvelope(env ballot.Envelope) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.received = append(k.received, env)
}

func (k *FakeKernel) PrepareValue(slot types.SlotIndex, value ballot.BallotValue, force bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.prepared[slot] = value
}

// IsVBlocking approximates the v-blocking predicate for a single-level
// threshold quorum set: nodeIDs is v-blocking iff every quorum slice
// (any len(validators)-threshold+1-sized subset, roughly) must contain one
// of nodeIDs, i.e. the complement is too small to form a slice on its own.
func (k *FakeKernel) IsVBlocking(nodeIDs map[types.NodeID]struct{}) bool {
	k.mu.Lock()
	qs := k.localQuorumSet
	k.mu.Unlock()

	if len(qs.Validators) == 0 {
		return false
	}
	complementCap := len(qs.Validators) - int(qs.Threshold)
	return len(nodeIDs) > complementCap
}

func (k *FakeKernel) LocalQuorumSet() ballot.QuorumSet { return k.localQuorumSet }
func (k *FakeKernel) LocalNodeID() types.NodeID        { return k.localNodeID }
func (k *FakeKernel) SecretKey() ed25519.PrivateKey    { return k.secretKey }

func (k *FakeKernel) PurgeNode(nodeID types.NodeID) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.purged[nodeID] = struct{}{}
}

func (k *FakeKernel) PurgeSlots(belowSlot types.SlotIndex) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.purgedBelow = belowSlot
}

// ReceivedEnvelopes returns every envelope handed to ReceiveEnvelope, for
// test assertions.
func (k *FakeKernel) ReceivedEnvelopes() []ballot.Envelope {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]ballot.Envelope, len(k.received))
	copy(out, k.received)
	return out
}

// PreparedValue returns what PrepareValue last recorded for slot.
func (k *FakeKernel) PreparedValue(slot types.SlotIndex) (ballot.BallotValue, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	v, ok := k.prepared[slot]
	return v, ok
}

// IsNodePurged reports whether PurgeNode was ever called for nodeID.
func (k *FakeKernel) IsNodePurged(nodeID types.NodeID) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	_, ok := k.purged[nodeID]
	return ok
}

// PurgedBelowSlot returns the argument of the most recent PurgeSlots call.
func (k *FakeKernel) PurgedBelowSlot() types.SlotIndex {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.purgedBelow
}
