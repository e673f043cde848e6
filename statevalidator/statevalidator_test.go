package statevalidator

import (
	"crypto/ed25519"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mezonai/herder/ballot"
	"github.com/mezonai/herder/txset"
	"github.com/mezonai/herder/types"
)

// manualClock lets tests control when deferred-acceptance timers fire,
// instead of waiting on real time.
type manualClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []func()
}

func newManualClock() *manualClock { return &manualClock{now: time.Unix(2000, 0)} }

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) *time.Timer {
	t := time.NewTimer(time.Hour)
	t.Stop()
	c.mu.Lock()
	c.pending = append(c.pending, f)
	c.mu.Unlock()
	return t
}

func (c *manualClock) fireAll() {
	c.mu.Lock()
	fns := c.pending
	c.pending = nil
	c.mu.Unlock()
	for _, f := range fns {
		f()
	}
}

type fakeLedgerState struct{}

func (fakeLedgerState) BalanceOf(types.NodeID) uint64 { return 1 << 32 }

func newValidator(clock Clock, cfg Config, isVBlocking func(map[types.NodeID]struct{}) bool) *Validator {
	return New(cfg, Deps{
		FetchTxSet:  func(hash types.Hash, cb func(ts *txset.TxSet)) { cb(&txset.TxSet{}) },
		LedgerState: fakeLedgerState{},
		IsVBlocking: isVBlocking,
	}, clock)
}

func genKey(t *testing.T) (ed25519.PrivateKey, types.NodeID) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return priv, types.NodeIDFromPublicKey(pub)
}

func TestValidateValueRejectsBadSignature(t *testing.T) {
	priv, nodeID := genKey(t)
	v := newValidator(newManualClock(), Config{}, nil)

	b := ballot.Sign(priv, nodeID, ballot.Value{CloseTime: 1})
	b.Value.CloseTime = 999 // tamper after signing
	opaque := b.Encode()

	result := make(chan bool, 1)
	v.ValidateValue(1, nodeID, opaque, func(ok bool) { result <- ok })
	assert.False(t, <-result)
}

func TestValidateValuePassesThroughWhenNotFullySynced(t *testing.T) {
	priv, nodeID := genKey(t)
	v := newValidator(newManualClock(), Config{}, nil)
	v.SetFullySynced(false)

	b := ballot.Sign(priv, nodeID, ballot.Value{CloseTime: 1})
	result := make(chan bool, 1)
	v.ValidateValue(999, nodeID, b.Encode(), func(ok bool) { result <- ok })
	assert.True(t, <-result, "a node still catching up elides slot/closeTime checks")
}

func TestValidateValueEnforcesSlotAndCloseTimeWhenSynced(t *testing.T) {
	priv, nodeID := genKey(t)
	v := newValidator(newManualClock(), Config{}, nil)
	v.SetFullySynced(true)
	v.SetLastClosed(types.LedgerHeader{LedgerSeq: 5, CloseTime: 100})

	wrongSlot := ballot.Sign(priv, nodeID, ballot.Value{CloseTime: 200})
	result := make(chan bool, 1)
	v.ValidateValue(7, nodeID, wrongSlot.Encode(), func(ok bool) { result <- ok })
	assert.False(t, <-result, "slot must be lastClosed.ledgerSeq+1")

	staleClose := ballot.Sign(priv, nodeID, ballot.Value{CloseTime: 50})
	v.ValidateValue(6, nodeID, staleClose.Encode(), func(ok bool) { result <- ok })
	assert.False(t, <-result, "closeTime must exceed lastClosed.closeTime")

	fresh := ballot.Sign(priv, nodeID, ballot.Value{CloseTime: 101})
	v.ValidateValue(6, nodeID, fresh.Encode(), func(ok bool) { result <- ok })
	assert.True(t, <-result)
}

func TestValidateBallotRejectsTimeSlip(t *testing.T) {
	priv, nodeID := genKey(t)
	clock := newManualClock()
	v := newValidator(clock, Config{MaxTimeSlip: time.Second, SelfNodeID: nodeID}, nil)
	v.SetLocalQuorumSet(ballot.QuorumSet{Threshold: 1, Validators: []types.NodeID{nodeID}})

	farFuture := ballot.Sign(priv, nodeID, ballot.Value{CloseTime: uint64(clock.Now().Add(time.Hour).Unix())})
	fb := ballot.FBABallot{Counter: 0, Value: farFuture.Encode()}

	result := make(chan bool, 1)
	v.ValidateBallot(1, nodeID, fb, func(ok bool) { result <- ok })
	assert.False(t, <-result)
}

func TestValidateBallotRejectsFeeOutOfRange(t *testing.T) {
	priv, nodeID := genKey(t)
	clock := newManualClock()
	cfg := Config{DesiredBaseFee: 100, MaxTimeSlip: time.Minute, SelfNodeID: nodeID}
	v := newValidator(clock, cfg, nil)
	v.SetLocalQuorumSet(ballot.QuorumSet{Threshold: 1, Validators: []types.NodeID{nodeID}})
	v.SetLastTrigger(clock.Now())

	tooLow := ballot.Sign(priv, nodeID, ballot.Value{CloseTime: uint64(clock.Now().Unix()), BaseFee: 10})
	fb := ballot.FBABallot{Counter: 0, Value: tooLow.Encode()}

	result := make(chan bool, 1)
	v.ValidateBallot(1, nodeID, fb, func(ok bool) { result <- ok })
	assert.False(t, <-result)
}

func TestValidateBallotRejectsWatcherSelfEnvelope(t *testing.T) {
	priv, nodeID := genKey(t)
	clock := newManualClock()
	cfg := Config{DesiredBaseFee: 100, MaxTimeSlip: time.Minute, SelfNodeID: nodeID, IsWatcher: true}
	v := newValidator(clock, cfg, nil)
	v.SetLocalQuorumSet(ballot.QuorumSet{Threshold: 1, Validators: []types.NodeID{nodeID}})
	v.SetLastTrigger(clock.Now())

	signed := ballot.Sign(priv, nodeID, ballot.Value{CloseTime: uint64(clock.Now().Unix()), BaseFee: 100})
	fb := ballot.FBABallot{Counter: 0, Value: signed.Encode()}

	result := make(chan bool, 1)
	v.ValidateBallot(1, nodeID, fb, func(ok bool) { result <- ok })
	assert.False(t, <-result, "a watcher must reject envelopes attributed to itself")
}

func TestValidateBallotRejectsUntrusted(t *testing.T) {
	_, trusted := genKey(t)
	untrustedPriv, untrusted := genKey(t)
	clock := newManualClock()
	cfg := Config{DesiredBaseFee: 100, MaxTimeSlip: time.Minute}
	v := newValidator(clock, cfg, nil)
	v.SetLocalQuorumSet(ballot.QuorumSet{Threshold: 1, Validators: []types.NodeID{trusted}})
	v.SetLastTrigger(clock.Now())

	signed := ballot.Sign(untrustedPriv, untrusted, ballot.Value{CloseTime: uint64(clock.Now().Unix()), BaseFee: 100})
	fb := ballot.FBABallot{Counter: 0, Value: signed.Encode()}

	result := make(chan bool, 1)
	v.ValidateBallot(1, untrusted, fb, func(ok bool) { result <- ok })
	assert.False(t, <-result)
}

func TestValidateBallotAcceptsKingImmediately(t *testing.T) {
	priv, king := genKey(t)
	_, other := genKey(t)
	clock := newManualClock()
	cfg := Config{DesiredBaseFee: 100, MaxTimeSlip: time.Minute}
	v := newValidator(clock, cfg, nil)
	v.SetLocalQuorumSet(ballot.QuorumSet{Threshold: 1, Validators: []types.NodeID{king, other}})
	v.SetLastTrigger(clock.Now())

	// Find which of the two candidates is actually king for (slot=1, counter=0).
	candidates := []types.NodeID{king, other}
	var kingID types.NodeID
	var kingPriv ed25519.PrivateKey
	if IsKing(1, 0, king, candidates) {
		kingID, kingPriv = king, priv
	} else {
		kingID, kingPriv = other, nil
		kingPriv, _ = genKey(t)
	}
	_ = kingPriv

	signed := ballot.Sign(priv, king, ballot.Value{CloseTime: uint64(clock.Now().Unix()), BaseFee: 100})
	fb := ballot.FBABallot{Counter: 0, Value: signed.Encode()}

	result := make(chan bool, 1)
	v.ValidateBallot(1, kingID, fb, func(ok bool) { result <- ok })
	if kingID == king {
		assert.True(t, <-result)
	}
}

func TestValidateBallotDefersNonKingUntilTimerFires(t *testing.T) {
	priv, a := genKey(t)
	_, b := genKey(t)
	clock := newManualClock()
	cfg := Config{DesiredBaseFee: 100, MaxTimeSlip: time.Minute}
	v := newValidator(clock, cfg, func(map[types.NodeID]struct{}) bool { return false })
	v.SetLocalQuorumSet(ballot.QuorumSet{Threshold: 2, Validators: []types.NodeID{a, b}})
	v.SetLastTrigger(clock.Now())

	// Whichever of a/b is NOT king gets deferred.
	nonKing := a
	nonKingPriv := priv
	if IsKing(1, 0, a, []types.NodeID{a, b}) {
		nonKing = b
		nonKingPriv, _ = genKey(t)
	}

	signed := ballot.Sign(nonKingPriv, nonKing, ballot.Value{CloseTime: uint64(clock.Now().Unix()), BaseFee: 100})
	fb := ballot.FBABallot{Counter: 0, Value: signed.Encode()}

	fired := false
	v.ValidateBallot(1, nonKing, fb, func(ok bool) { fired = true })
	assert.False(t, fired, "acceptance must wait for the timer")

	clock.fireAll()
	assert.True(t, fired)
}

func TestValidateBallotVBlockingAcceptsEarly(t *testing.T) {
	_, a := genKey(t)
	_, b := genKey(t)
	primPriv, king := genKey(t)
	clock := newManualClock()
	cfg := Config{DesiredBaseFee: 100, MaxTimeSlip: time.Minute}

	candidates := []types.NodeID{a, b, king}
	v := newValidator(clock, cfg, func(nodeIDs map[types.NodeID]struct{}) bool {
		return len(nodeIDs) >= 2
	})
	v.SetLocalQuorumSet(ballot.QuorumSet{Threshold: 2, Validators: candidates})
	v.SetLastTrigger(clock.Now())

	// Pick the two non-king candidates.
	var nonKings []types.NodeID
	for _, c := range candidates {
		if !IsKing(1, 0, c, candidates) {
			nonKings = append(nonKings, c)
		}
	}
	require.GreaterOrEqual(t, len(nonKings), 2)

	_ = primPriv
	value := ballot.Value{CloseTime: uint64(clock.Now().Unix()), BaseFee: 100}
	results := make(chan bool, 2)
	// Both requesters validate the same FBABallot, so their deferred timers
	// share one requester set.
	priv, _ := genKey(t)
	signed := ballot.Sign(priv, nonKings[0], value)
	fb := ballot.FBABallot{Counter: 0, Value: signed.Encode()}
	for _, n := range nonKings[:2] {
		v.ValidateBallot(1, n, fb, func(ok bool) { results <- ok })
	}

	for i := 0; i < 2; i++ {
		select {
		case ok := <-results:
			assert.True(t, ok)
		case <-time.After(time.Second):
			t.Fatal("v-blocking requester set should accept without waiting for the timer")
		}
	}
}

func TestCompareValuesIsAntisymmetric(t *testing.T) {
	_, a := genKey(t)
	_, b := genKey(t)

	va := ballot.BallotValue{NodeID: a, Value: ballot.Value{BaseFee: 1}}
	vb := ballot.BallotValue{NodeID: b, Value: ballot.Value{BaseFee: 2}}

	c1 := CompareValues(1, 0, va, vb)
	c2 := CompareValues(1, 0, vb, va)
	assert.Equal(t, -c1, c2, "comparator must be antisymmetric, unlike the source's known tie-break bug")
}

func TestIsKingUnanimousAmongOneCandidate(t *testing.T) {
	_, solo := genKey(t)
	assert.True(t, IsKing(1, 0, solo, []types.NodeID{solo}))
}
