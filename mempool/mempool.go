// Package mempool holds candidate transactions across four generations,
// admitting, deduping, and evicting them the way
// describes. Generation 0 is newest; generation 3 is the final holding pool
// and is never shifted further.
package mempool

import (
	"fmt"
	"sync"

	"github.com/mezonai/herder/logx"
	"github.com/mezonai/herder/monitoring"
	"github.com/mezonai/herder/txset"
	"github.com/mezonai/herder/types"
)

const generationCount = 4

// LedgerState is the balance view Mempool.admit checks transactions against.
type LedgerState interface {
	BalanceOf(nodeID types.NodeID) uint64
}

// Mempool is the thread-safe, multi-generation transaction pool owned
// exclusively by the Herder core.
type Mempool struct {
	mu          sync.Mutex
	generations [generationCount][]*txset.Transaction
	state       LedgerState
	currentFee  func() uint64
}

// New creates an empty mempool. state and currentFee are read-only
// collaborators supplied by the ledger gateway.
func New(state LedgerState, currentFee func() uint64) *Mempool {
	return &Mempool{state: state, currentFee: currentFee}
}

func (m *Mempool) indexOf(hash types.Hash) (gen int, idx int) {
	for g, txs := range m.generations {
		for i, tx := range txs {
			if tx.FullHash() == hash {
				return g, i
			}
		}
	}
	return -1, -1
}

// Admit rejects tx if its hash is already present anywhere, fails protocol
// validity, or the proposer can't cover (numOtherTxsFromSource+1)*fee. On
// acceptance tx lands in generation 0.
func (m *Mempool) Admit(tx *txset.Transaction) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	hash := tx.FullHash()
	if g, _ := m.indexOf(hash); g >= 0 {
		return false
	}

	numOther := 0
	for _, gen := range m.generations {
		for _, other := range gen {
			if other.Source == tx.Source {
				numOther++
			}
		}
	}
	if !tx.CheckValid(m.state, numOther, m.currentFee()) {
		return false
	}

	m.generations[0] = append(m.generations[0], tx)
	m.reportSizes()
	return true
}

// Remove deletes txHash from whichever generation holds it; first match wins.
func (m *Mempool) Remove(txHash types.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(txHash)
	m.reportSizes()
}

func (m *Mempool) removeLocked(txHash types.Hash) {
	g, i := m.indexOf(txHash)
	if g < 0 {
		return
	}
	gen := m.generations[g]
	m.generations[g] = append(gen[:i], gen[i+1:]...)
}

// SnapshotAll unions every generation into a TxSet anchored to
// previousLedgerHash.
func (m *Mempool) SnapshotAll(previousLedgerHash types.Hash) *txset.TxSet {
	m.mu.Lock()
	defer m.mu.Unlock()

	ts := &txset.TxSet{PreviousLedgerHash: previousLedgerHash}
	for _, gen := range m.generations {
		ts.Transactions = append(ts.Transactions, gen...)
	}
	return ts
}

// AgeAfterExternalize removes every transaction in externalized from all
// generations, then shifts survivors one generation older: 0->1, 1->2,
// 2->3. Generation 3 keeps accumulating and is never shifted out — this
// bounds size to four generations rather than evicting unboundedly old
// transactions, matching the source's existing (if likely unintended)
// behavior, kept deliberately rather than shifted further.
//
// Generation 1's survivors are rebroadcast before the shift, since they are
// about to lose the most "freshness" a peer would expect from a rebroadcast.
func (m *Mempool) AgeAfterExternalize(externalized *txset.TxSet) (rebroadcast []*txset.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, tx := range externalized.Transactions {
		m.removeLocked(tx.FullHash())
	}

	rebroadcast = append(rebroadcast, m.generations[1]...)

	m.generations[3] = append(m.generations[3], m.generations[2]...)
	m.generations[2] = m.generations[1]
	m.generations[1] = m.generations[0]
	m.generations[0] = nil

	m.reportSizes()
	logx.Info("MEMPOOL", fmt.Sprintf("aged after externalize removed=%d rebroadcast=%d",
		len(externalized.Transactions), len(rebroadcast)))
	return rebroadcast
}

// Size returns the number of pending transactions across all generations.
func (m *Mempool) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, gen := range m.generations {
		n += len(gen)
	}
	return n
}

func (m *Mempool) reportSizes() {
	for g, gen := range m.generations {
		monitoring.SetMempoolGenerationSize(g, len(gen))
	}
}
