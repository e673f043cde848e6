package gateway

import (
	"sync"

	"github.com/mezonai/herder/ballot"
	"github.com/mezonai/herder/fetcher"
	"github.com/mezonai/herder/txset"
	"github.com/mezonai/herder/types"
)

// OverlayGateway is Herder's view onto the peer network: broadcasting its
// own statements and transactions, and asking specific (or unspecified)
// peers for content it is missing. The transport and wire encoding
// behind this interface are out of scope.
type OverlayGateway interface {
	BroadcastEnvelope(env ballot.Envelope)
	BroadcastTransaction(tx *txset.Transaction)
	RequestTxSet(hash types.Hash, peer types.NodeID)
	RequestQuorumSet(hash types.Hash, peer types.NodeID)
}

// txSetRequester and qSetRequester adapt OverlayGateway's two distinct
// RequestX methods to the single-shaped fetcher.Requester each
// ItemFetcher needs, so one overlay can back two independently-typed
// fetchers.
type txSetRequester struct{ overlay OverlayGateway }

func (r txSetRequester) RequestItem(hash types.Hash, peer types.NodeID) {
	r.overlay.RequestTxSet(hash, peer)
}

// NewTxSetRequester wraps overlay as the fetcher.Requester for TxSet
// fetches.
func NewTxSetRequester(overlay OverlayGateway) fetcher.Requester {
	return txSetRequester{overlay: overlay}
}

type qSetRequester struct{ overlay OverlayGateway }

func (r qSetRequester) RequestItem(hash types.Hash, peer types.NodeID) {
	r.overlay.RequestQuorumSet(hash, peer)
}

// NewQuorumSetRequester wraps overlay as the fetcher.Requester for
// QuorumSet fetches.
func NewQuorumSetRequester(overlay OverlayGateway) fetcher.Requester {
	return qSetRequester{overlay: overlay}
}

// InMemoryOverlay is an OverlayGateway test double: it records every call
// instead of putting anything on a wire, so tests can assert on what
// Herder tried to broadcast or request.
type InMemoryOverlay struct {
	mu sync.Mutex

	Envelopes    []ballot.Envelope
	Transactions []*txset.Transaction
	TxSetAsks    []types.Hash
	QSetAsks     []types.Hash
}

func NewInMemoryOverlay() *InMemoryOverlay { return &InMemoryOverlay{} }

func (o *InMemoryOverlay) BroadcastEnvelope(env ballot.Envelope) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Envelopes = append(o.Envelopes, env)
}

func (o *InMemoryOverlay) BroadcastTransaction(tx *txset.Transaction) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Transactions = append(o.Transactions, tx)
}

func (o *InMemoryOverlay) RequestTxSet(hash types.Hash, _ types.NodeID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.TxSetAsks = append(o.TxSetAsks, hash)
}

func (o *InMemoryOverlay) RequestQuorumSet(hash types.Hash, _ types.NodeID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.QSetAsks = append(o.QSetAsks, hash)
}
