// Package fba defines the interface Herder uses to collaborate with the
// underlying Federated Byzantine Agreement engine. The kernel itself —
// nomination, balloting, federated voting — is out of scope for this
// repository; this package only describes the seam.
package fba

import (
	"crypto/ed25519"

	"github.com/mezonai/herder/ballot"
	"github.com/mezonai/herder/types"
)

// Kernel is the set of calls Herder makes into the FBA engine.
type Kernel interface {
	// ReceiveEnvelope hands a peer (or locally-triggered) statement to the
	// kernel's federated voting machinery.
	ReceiveEnvelope(env ballot.Envelope)
	// PrepareValue asks the kernel to nominate/ballot on value for slot,
	// forcing a counter bump when force is true.
	PrepareValue(slot types.SlotIndex, value ballot.BallotValue, force bool)
	// IsVBlocking reports whether nodeIDs intersects every quorum slice of
	// the local quorum set.
	IsVBlocking(nodeIDs map[types.NodeID]struct{}) bool
	LocalQuorumSet() ballot.QuorumSet
	LocalNodeID() types.NodeID
	// SecretKey is nil for watcher nodes.
	SecretKey() ed25519.PrivateKey
	PurgeNode(nodeID types.NodeID)
	PurgeSlots(belowSlot types.SlotIndex)
}

// EnvelopeEmitter is implemented by the Kernel's caller (Herder) so the
// kernel can hand back envelopes it wants broadcast; kept separate from
// Kernel so test doubles can wire it independently.
type EnvelopeEmitter interface {
	EmitEnvelope(env ballot.Envelope)
}
