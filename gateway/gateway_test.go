package gateway

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mezonai/herder/ballot"
	"github.com/mezonai/herder/txset"
	"github.com/mezonai/herder/types"
)

func nodeID(b byte) types.NodeID {
	var n types.NodeID
	n[0] = b
	return n
}

func TestInMemoryLedgerGatewayExternalizeAdvancesHeader(t *testing.T) {
	g := NewInMemoryLedgerGateway(10)
	assert.Equal(t, types.SlotIndex(0), g.LastClosedLedgerHeader().LedgerSeq)

	header, err := g.ExternalizeValue(&txset.TxSet{}, 100)
	require.NoError(t, err)
	assert.Equal(t, types.SlotIndex(1), header.LedgerSeq)
	assert.Equal(t, uint64(100), header.CloseTime)
	assert.Equal(t, header, g.LastClosedLedgerHeader())
}

func TestInMemoryLedgerGatewayBalances(t *testing.T) {
	g := NewInMemoryLedgerGateway(1)
	n := nodeID(1)
	assert.Equal(t, uint64(0), g.BalanceOf(n), "an unrecorded account has zero balance, not an error")

	g.SetBalance(n, 500)
	assert.Equal(t, uint64(500), g.BalanceOf(n))
}

func TestBoltLedgerGatewayPersistsAcrossReopen(t *testing.T) {
	path := t.TempDir() + "/herder.db"

	g, err := NewBoltLedgerGateway(path, 5)
	require.NoError(t, err)

	n := nodeID(2)
	require.NoError(t, g.SetBalance(n, 777))
	header, err := g.ExternalizeValue(&txset.TxSet{}, 42)
	require.NoError(t, err)
	require.NoError(t, g.Close())

	reopened, err := NewBoltLedgerGateway(path, 5)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, header, reopened.LastClosedLedgerHeader())
	assert.Equal(t, uint64(777), reopened.BalanceOf(n))
}

func TestBoltLedgerGatewayFreshFileStartsAtGenesis(t *testing.T) {
	path := t.TempDir() + "/fresh.db"
	g, err := NewBoltLedgerGateway(path, 1)
	require.NoError(t, err)
	defer g.Close()

	assert.Equal(t, types.LedgerHeader{}, g.LastClosedLedgerHeader())
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}

func TestInMemoryOverlayRecordsCalls(t *testing.T) {
	o := NewInMemoryOverlay()
	env := ballot.Envelope{Statement: ballot.Statement{SlotIndex: 1}}
	tx := &txset.Transaction{Source: nodeID(1)}
	var hash types.Hash
	hash[0] = 9

	o.BroadcastEnvelope(env)
	o.BroadcastTransaction(tx)
	o.RequestTxSet(hash, nodeID(2))
	o.RequestQuorumSet(hash, nodeID(2))

	assert.Equal(t, []ballot.Envelope{env}, o.Envelopes)
	assert.Equal(t, []*txset.Transaction{tx}, o.Transactions)
	assert.Equal(t, []types.Hash{hash}, o.TxSetAsks)
	assert.Equal(t, []types.Hash{hash}, o.QSetAsks)
}

func TestTxSetRequesterDelegatesToRequestTxSet(t *testing.T) {
	o := NewInMemoryOverlay()
	req := NewTxSetRequester(o)
	var hash types.Hash
	hash[0] = 3

	req.RequestItem(hash, nodeID(7))
	assert.Equal(t, []types.Hash{hash}, o.TxSetAsks)
	assert.Empty(t, o.QSetAsks)
}

func TestQuorumSetRequesterDelegatesToRequestQuorumSet(t *testing.T) {
	o := NewInMemoryOverlay()
	req := NewQuorumSetRequester(o)
	var hash types.Hash
	hash[0] = 4

	req.RequestItem(hash, nodeID(7))
	assert.Equal(t, []types.Hash{hash}, o.QSetAsks)
	assert.Empty(t, o.TxSetAsks)
}
