package gateway

import (
	"sync"

	"github.com/mezonai/herder/txset"
	"github.com/mezonai/herder/types"
)

// InMemoryLedgerGateway is a LedgerGateway for tests that don't want a
// bbolt file on disk; it implements the same externalize/balance
// semantics as BoltLedgerGateway without persistence.
type InMemoryLedgerGateway struct {
	mu       sync.RWMutex
	header   types.LedgerHeader
	txFee    uint64
	balances map[types.NodeID]uint64
}

func NewInMemoryLedgerGateway(txFee uint64) *InMemoryLedgerGateway {
	return &InMemoryLedgerGateway{txFee: txFee, balances: make(map[types.NodeID]uint64)}
}

func (g *InMemoryLedgerGateway) LastClosedLedgerHeader() types.LedgerHeader {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.header
}

func (g *InMemoryLedgerGateway) TxFee() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.txFee
}

func (g *InMemoryLedgerGateway) BalanceOf(nodeID types.NodeID) uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.balances[nodeID]
}

func (g *InMemoryLedgerGateway) SetBalance(nodeID types.NodeID, balance uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.balances[nodeID] = balance
}

func (g *InMemoryLedgerGateway) ExternalizeValue(ts *txset.TxSet, closeTime uint64) (types.LedgerHeader, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.header = types.LedgerHeader{
		LedgerSeq: g.header.LedgerSeq + 1,
		CloseTime: closeTime,
		Hash:      ts.ContentHash(),
	}
	return g.header, nil
}

func (g *InMemoryLedgerGateway) Close() error { return nil }
