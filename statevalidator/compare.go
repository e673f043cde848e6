package statevalidator

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"

	"github.com/mezonai/herder/ballot"
	"github.com/mezonai/herder/types"
)

// kingDigest is SHA256(slotIndex || counter || nodeID): the smaller this
// digest, the higher priority nodeID's value has for this round.
func kingDigest(slotIndex types.SlotIndex, counter types.BallotCounter, nodeID types.NodeID) types.Hash {
	h := sha256.New()
	var u8 [8]byte
	binary.BigEndian.PutUint64(u8[:], uint64(slotIndex))
	h.Write(u8[:])
	var u4 [4]byte
	binary.BigEndian.PutUint32(u4[:], uint32(counter))
	h.Write(u4[:])
	h.Write(nodeID[:])
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// IsKing reports whether nodeID produces the lexicographically smallest
// kingDigest among candidates for (slotIndex, counter) — the king election
// ValidateBallot uses to decide between immediate and deferred acceptance;
// CompareValues orders by the same digest.
func IsKing(slotIndex types.SlotIndex, counter types.BallotCounter, nodeID types.NodeID, candidates []types.NodeID) bool {
	best := kingDigest(slotIndex, counter, nodeID)
	for _, c := range candidates {
		if c == nodeID {
			continue
		}
		d := kingDigest(slotIndex, counter, c)
		if bytes.Compare(d[:], best[:]) < 0 {
			return false
		}
	}
	return true
}

// CompareValues orders two already-signature-verified ballot values for a
// given (slotIndex, ballotCounter): the round king's value sorts first.
//
// The source this repository is modeled on returns -1 for both orderings
// when the primary keys tie and the values differ — a bug the original
// implementers left in place. Here the tie-break is a genuine strict
// lexicographic comparison over the value's canonical encoding, so
// CompareValues is a proper total preorder.
func CompareValues(slotIndex types.SlotIndex, counter types.BallotCounter, v1, v2 ballot.BallotValue) int {
	d1 := kingDigest(slotIndex, counter, v1.NodeID)
	d2 := kingDigest(slotIndex, counter, v2.NodeID)
	if c := bytes.Compare(d1[:], d2[:]); c != 0 {
		return c
	}
	return bytes.Compare(v1.Value.CanonicalBytes(), v2.Value.CanonicalBytes())
}
