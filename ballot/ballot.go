// Package ballot implements the consensus value payload carried inside FBA
// ballots: canonical encoding, signing, and verification. The encoding is
// deterministic (field-ordered, fixed-width) so that two nodes hashing the
// same logical value always agree, using a fixed-width, domain-separated wire
// assumption without pulling in an XDR codegen toolchain.
package ballot

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/mezonai/herder/types"
)

// domainSep separates ballot-value signatures from any other signed payload
// this node might produce, so a signature can never be replayed cross-purpose.
var domainSep = []byte("herder-ballot-value-v1\x00")

// Value is the proposed content of a slot: the transaction set to apply,
// the close time, and the fee charged for inclusion.
type Value struct {
	TxSetHash types.Hash
	CloseTime uint64
	BaseFee   uint64
}

// BallotValue is the signed consensus payload carried as the opaque "Value"
// in FBA nomination/balloting messages.
type BallotValue struct {
	NodeID    types.NodeID
	Signature [ed25519.SignatureSize]byte
	Value     Value
}

// encodeSignedPart returns the canonical bytes covered by the signature:
// domain separator, proposer, and the value fields in fixed field order.
func encodeSignedPart(nodeID types.NodeID, v Value) []byte {
	buf := make([]byte, 0, len(domainSep)+len(nodeID)+types.HashSize+16)
	buf = append(buf, domainSep...)
	buf = append(buf, nodeID[:]...)
	buf = append(buf, v.TxSetHash[:]...)

	var u8 [8]byte
	binary.BigEndian.PutUint64(u8[:], v.CloseTime)
	buf = append(buf, u8[:]...)
	binary.BigEndian.PutUint64(u8[:], v.BaseFee)
	buf = append(buf, u8[:]...)
	return buf
}

// Sign produces a BallotValue for v, signed by priv. The caller's NodeID
// must correspond to priv's public half.
func Sign(priv ed25519.PrivateKey, nodeID types.NodeID, v Value) BallotValue {
	sig := ed25519.Sign(priv, encodeSignedPart(nodeID, v))
	b := BallotValue{NodeID: nodeID, Value: v}
	copy(b.Signature[:], sig)
	return b
}

// Verify checks that b.Signature is a valid ed25519 signature by b.NodeID
// over b.Value. ValidateValue checks it right after decoding, before any
// other predicate; ValidateBallot only decodes the value and does not call it.
func (b BallotValue) Verify() bool {
	pub := ed25519.PublicKey(b.NodeID[:])
	return ed25519.Verify(pub, encodeSignedPart(b.NodeID, b.Value), b.Signature[:])
}

// Encode serializes b into the opaque bytes carried inside an FBABallot.
// Decode is its inverse; a length mismatch or truncated buffer is reported
// as a decoding failure, never a panic, since the bytes originate from a peer.
func (b BallotValue) Encode() []byte {
	buf := make([]byte, 0, len(b.NodeID)+ed25519.SignatureSize+types.HashSize+16)
	buf = append(buf, b.NodeID[:]...)
	buf = append(buf, b.Signature[:]...)
	buf = append(buf, b.Value.TxSetHash[:]...)
	var u8 [8]byte
	binary.BigEndian.PutUint64(u8[:], b.Value.CloseTime)
	buf = append(buf, u8[:]...)
	binary.BigEndian.PutUint64(u8[:], b.Value.BaseFee)
	buf = append(buf, u8[:]...)
	return buf
}

const encodedLen = len(types.NodeID{}) + ed25519.SignatureSize + types.HashSize + 16

// Decode parses opaque bytes produced by Encode. ok is false on any
// malformed input — callers treat that as a decoding failure (cb(false)),
// never as an error worth crashing over.
func Decode(data []byte) (b BallotValue, ok bool) {
	if len(data) != encodedLen {
		return BallotValue{}, false
	}
	r := bytes.NewReader(data)
	io := func(p []byte) { _, _ = r.Read(p) }
	io(b.NodeID[:])
	io(b.Signature[:])
	io(b.Value.TxSetHash[:])
	var u8 [8]byte
	io(u8[:])
	b.Value.CloseTime = binary.BigEndian.Uint64(u8[:])
	io(u8[:])
	b.Value.BaseFee = binary.BigEndian.Uint64(u8[:])
	return b, true
}

// CanonicalBytes returns v's fields in fixed field order, used as the
// comparator's tie-break when two values hash to the same king digest.
func (v Value) CanonicalBytes() []byte {
	buf := make([]byte, 0, types.HashSize+16)
	buf = append(buf, v.TxSetHash[:]...)
	var u8 [8]byte
	binary.BigEndian.PutUint64(u8[:], v.CloseTime)
	buf = append(buf, u8[:]...)
	binary.BigEndian.PutUint64(u8[:], v.BaseFee)
	buf = append(buf, u8[:]...)
	return buf
}

// FBABallot pairs a round counter with an opaque, already-encoded BallotValue.
type FBABallot struct {
	Counter types.BallotCounter
	Value   []byte
}

// Statement is the part of an FBAEnvelope this package needs to see; the
// remainder of the federated-voting state machine is the FBA kernel's
// business and stays opaque here.
type Statement struct {
	SlotIndex types.SlotIndex
	NodeID    types.NodeID
	Ballot    FBABallot
}

// Envelope wraps a Statement as received from, or destined for, a peer.
type Envelope struct {
	Statement Statement
	Signature []byte
}

// QuorumSet is the local trust configuration: a threshold and an ordered
// list of validator node IDs.
type QuorumSet struct {
	Threshold  uint32
	Validators []types.NodeID
}

// Hash returns the content hash of q's canonical encoding, used to address
// it in the FetchGate and FBAQuorumSet fetcher tables.
func (q QuorumSet) Hash() types.Hash {
	h := sha256.New()
	var u4 [4]byte
	binary.BigEndian.PutUint32(u4[:], q.Threshold)
	h.Write(u4[:])
	for _, v := range q.Validators {
		h.Write(v[:])
	}
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// Contains reports whether nodeID is one of q's validators.
func (q QuorumSet) Contains(nodeID types.NodeID) bool {
	for _, v := range q.Validators {
		if v == nodeID {
			return true
		}
	}
	return false
}

func (q QuorumSet) String() string {
	return fmt.Sprintf("QuorumSet{threshold=%d, validators=%d}", q.Threshold, len(q.Validators))
}
