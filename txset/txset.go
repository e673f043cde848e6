// Package txset defines the opaque transaction set referenced by ballot
// values, and the minimal transaction shape the Herder needs to run its own
// admission/validity policy. Transaction execution itself is out of scope —
// checkValid only asks the ledger gateway for balances, never applies state.
package txset

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"

	"github.com/mezonai/herder/types"
)

// Transaction is the subset of a transaction's shape the Herder must reason
// about: who is paying, what it costs to include, and its content hash.
type Transaction struct {
	Source    types.NodeID
	Nonce     uint64
	Fee       uint64
	Payload   []byte
	Signature []byte
}

// FullHash is the content hash identifying this transaction, independent of
// which TxSet it ends up bundled into.
func (tx *Transaction) FullHash() types.Hash {
	h := sha256.New()
	h.Write(tx.Source[:])
	var u8 [8]byte
	binary.BigEndian.PutUint64(u8[:], tx.Nonce)
	h.Write(u8[:])
	binary.BigEndian.PutUint64(u8[:], tx.Fee)
	h.Write(u8[:])
	h.Write(tx.Payload)
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// LedgerState is the minimal view into account balances checkValid needs.
// The ledger gateway supplies the concrete implementation; Herder never
// mutates it.
type LedgerState interface {
	BalanceOf(nodeID types.NodeID) uint64
}

// CheckValid reports whether tx could legally be applied against state.
// Herder itself only checks that a signature is present and that the
// source's balance covers (numOtherTxsFromSource+1)*currentTxFee; verifying
// the signature and semantic transaction validity is the ledger's business.
func (tx *Transaction) CheckValid(state LedgerState, numOtherTxsFromSource int, currentTxFee uint64) bool {
	if len(tx.Signature) == 0 {
		return false
	}
	required := uint64(numOtherTxsFromSource+1) * currentTxFee
	return state.BalanceOf(tx.Source) >= required
}

// TxSet is the candidate set of transactions proposed for a slot, anchored
// to the ledger it would apply on top of.
type TxSet struct {
	PreviousLedgerHash types.Hash
	Transactions        []*Transaction
}

// ContentHash is the canonical content hash identifying this TxSet: the
// previous ledger hash plus each member's full hash, sorted so that set
// membership — not insertion order — determines identity.
func (ts *TxSet) ContentHash() types.Hash {
	hashes := make([]types.Hash, len(ts.Transactions))
	for i, tx := range ts.Transactions {
		hashes[i] = tx.FullHash()
	}
	sort.Slice(hashes, func(i, j int) bool {
		return string(hashes[i][:]) < string(hashes[j][:])
	})

	h := sha256.New()
	h.Write(ts.PreviousLedgerHash[:])
	for _, hh := range hashes {
		h.Write(hh[:])
	}
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// CheckValid reports whether ts is a legal proposal on top of state: every
// member transaction must be individually valid, and PreviousLedgerHash
// must match the ledger this set is meant to extend.
func (ts *TxSet) CheckValid(state LedgerState, lastClosedHash types.Hash, currentTxFee uint64) bool {
	if ts.PreviousLedgerHash != lastClosedHash {
		return false
	}
	seen := make(map[types.NodeID]int)
	for _, tx := range ts.Transactions {
		if !tx.CheckValid(state, seen[tx.Source], currentTxFee) {
			return false
		}
		seen[tx.Source]++
	}
	return true
}
