package mempool

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mezonai/herder/txset"
	"github.com/mezonai/herder/types"
)

type fakeState struct {
	balances map[types.NodeID]uint64
}

func (f *fakeState) BalanceOf(nodeID types.NodeID) uint64 { return f.balances[nodeID] }

func nodeID(b byte) types.NodeID {
	var n types.NodeID
	n[0] = b
	return n
}

func tx(source types.NodeID, nonce uint64) *txset.Transaction {
	return &txset.Transaction{Source: source, Nonce: nonce, Signature: []byte{0x1}}
}

func newTestMempool(balance uint64) (*Mempool, types.NodeID) {
	src := nodeID(1)
	state := &fakeState{balances: map[types.NodeID]uint64{src: balance}}
	return New(state, func() uint64 { return 1 }), src
}

func TestAdmitRejectsDuplicate(t *testing.T) {
	mp, src := newTestMempool(100)
	t1 := tx(src, 1)

	assert.True(t, mp.Admit(t1))
	assert.False(t, mp.Admit(t1), "identical hash already present")
	assert.Equal(t, 1, mp.Size())
}

func TestAdmitRejectsInsufficientBalance(t *testing.T) {
	mp, src := newTestMempool(1)
	assert.True(t, mp.Admit(tx(src, 1)))
	assert.False(t, mp.Admit(tx(src, 2)), "second tx from the same source can't afford the cumulative fee")
}

func TestSnapshotAllUnionsGenerations(t *testing.T) {
	mp, src := newTestMempool(100)
	t1, t2 := tx(src, 1), tx(src, 2)
	mp.Admit(t1)
	mp.Admit(t2)

	prevHash := types.Hash{0xAA}
	ts := mp.SnapshotAll(prevHash)
	assert.Equal(t, prevHash, ts.PreviousLedgerHash)
	assert.Len(t, ts.Transactions, 2)
}

func TestAgeAfterExternalizeShiftsAndRebroadcasts(t *testing.T) {
	mp, src := newTestMempool(100)
	t1, t2, t3 := tx(src, 1), tx(src, 2), tx(src, 3)

	mp.generations[0] = []*txset.Transaction{t1, t2}
	mp.generations[1] = []*txset.Transaction{t3}

	externalized := &txset.TxSet{Transactions: []*txset.Transaction{t1}}
	rebroadcast := mp.AgeAfterExternalize(externalized)

	assert.Empty(t, mp.generations[0])
	assert.Equal(t, []*txset.Transaction{t2}, mp.generations[1])
	assert.Equal(t, []*txset.Transaction{t3}, mp.generations[2])
	assert.Empty(t, mp.generations[3])
	assert.Equal(t, []*txset.Transaction{t3}, rebroadcast, "generation 1's survivors are rebroadcast before the shift")
}

func TestAgeAfterExternalizeNeverShiftsGenerationThreeFurther(t *testing.T) {
	mp, src := newTestMempool(100)
	sticky := tx(src, 99)
	mp.generations[3] = []*txset.Transaction{sticky}
	mp.generations[2] = []*txset.Transaction{tx(src, 1)}

	mp.AgeAfterExternalize(&txset.TxSet{})

	assert.Contains(t, mp.generations[3], sticky)
	assert.Len(t, mp.generations[3], 2, "generation 2's contents join generation 3 without evicting its existing members")
}

func TestRemove(t *testing.T) {
	mp, src := newTestMempool(100)
	t1 := tx(src, 1)
	mp.Admit(t1)
	mp.Remove(t1.FullHash())
	assert.Equal(t, 0, mp.Size())
}
