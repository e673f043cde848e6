// Package types defines the primitive identifiers shared across the Herder:
// node identities, content hashes, and the slot/ballot counters that index
// into the FBA kernel's state.
package types

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	"github.com/mezonai/herder/common"
)

// HashSize is the width of a content hash (SHA-256).
const HashSize = 32

// Hash is a 256-bit content hash identifying an opaque blob (TxSet, FBAQuorumSet).
type Hash [HashSize]byte

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) IsZero() bool {
	return h == Hash{}
}

// NodeID is a validator's public-key identifier.
type NodeID [ed25519.PublicKeySize]byte

func (n NodeID) String() string {
	return common.EncodeBytesToBase58(n[:])
}

func (n NodeID) IsZero() bool {
	return n == NodeID{}
}

func NodeIDFromPublicKey(pub ed25519.PublicKey) NodeID {
	var n NodeID
	copy(n[:], pub)
	return n
}

// NodeIDFromString decodes a base58-encoded NodeID, e.g. from a config file.
func NodeIDFromString(s string) (NodeID, error) {
	decoded, err := common.DecodeBase58ToBytes(s)
	if err != nil {
		return NodeID{}, fmt.Errorf("decode node id: %w", err)
	}
	if len(decoded) != ed25519.PublicKeySize {
		return NodeID{}, fmt.Errorf("node id has wrong size: got %d want %d", len(decoded), ed25519.PublicKeySize)
	}
	var n NodeID
	copy(n[:], decoded)
	return n, nil
}

// SlotIndex identifies a ledger position; it is monotonic and non-negative.
type SlotIndex uint64

// BallotCounter is the FBA balloting round number within a slot.
type BallotCounter uint32

// LedgerHeader is the header of the most recently applied ledger, shared
// by every component that needs to know where the chain currently stands.
type LedgerHeader struct {
	LedgerSeq SlotIndex
	CloseTime uint64
	Hash      Hash
}
