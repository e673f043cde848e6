// Package statevalidator implements the Herder's local policy over what
// values and ballots are acceptable: signature checks,
// synchronization-aware freshness, fee-range and time-slip limits,
// ballot-counter rate limiting, trust, and king-election-gated deferred
// acceptance.
package statevalidator

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/mezonai/herder/ballot"
	"github.com/mezonai/herder/logx"
	"github.com/mezonai/herder/monitoring"
	"github.com/mezonai/herder/txset"
	"github.com/mezonai/herder/types"
	"github.com/mezonai/herder/utils"
)

// Clock is injected so tests control time without real sleeps; any value
// satisfying this shape — including a *scheduler.Scheduler's clock — works.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) *time.Timer
}

// Config holds the tuning constants section 6 enumerates that bear on
// validation policy.
type Config struct {
	DesiredBaseFee uint64
	MaxTimeSlip    time.Duration
	MaxFBATimeout  time.Duration
	SelfNodeID     types.NodeID
	// IsWatcher is true for nodes with no validation key: they observe and
	// validate but must reject envelopes attributed to themselves.
	IsWatcher bool
}

// Deps are the collaborators StatementValidator calls out to but does not
// own: content fetching, ledger state for checkValid, and the FBA
// kernel's v-blocking predicate.
type Deps struct {
	// FetchTxSet resolves hash to a TxSet, invoking cb exactly once — either
	// inline if already cached, or later once the content arrives. The
	// Herder core owns the actual ItemFetcher/FetchGate wiring behind it.
	FetchTxSet func(hash types.Hash, cb func(ts *txset.TxSet))
	// LedgerState answers checkValid's balance queries.
	LedgerState txset.LedgerState
	// IsVBlocking reports whether nodeIDs is v-blocking for the local
	// quorum set, delegating to the FBA kernel.
	IsVBlocking func(nodeIDs map[types.NodeID]struct{}) bool
}

// Validator is the StatementValidator. All mutable fields are refreshed by
// the Herder core as the world changes (ledger closes, sync state shifts);
// Validator itself never advances the clock or the ledger.
type Validator struct {
	mu    sync.Mutex
	cfg   Config
	deps  Deps
	clock Clock

	fullySynced    bool
	lastClosed     types.LedgerHeader
	localQuorumSet ballot.QuorumSet
	lastTrigger    time.Time

	timers *deferredRegistry
}

func New(cfg Config, deps Deps, clock Clock) *Validator {
	return &Validator{
		cfg:    cfg,
		deps:   deps,
		clock:  clock,
		timers: newDeferredRegistry(),
	}
}

// SetLastClosed records the current last-closed-ledger header.
func (v *Validator) SetLastClosed(ledger types.LedgerHeader) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lastClosed = ledger
}

// SetFullySynced flips whether ledgersToWaitToParticipate has reached zero.
func (v *Validator) SetFullySynced(synced bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.fullySynced = synced
}

// SetLocalQuorumSet refreshes the quorum set used for trust and king
// election.
func (v *Validator) SetLocalQuorumSet(qs ballot.QuorumSet) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.localQuorumSet = qs
}

// SetLastTrigger records when triggerNextLedger last fired, the anchor the
// ballot-counter rate limit is measured from.
func (v *Validator) SetLastTrigger(t time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lastTrigger = t
}

// ClearDeferredTimers cancels every outstanding deferred-acceptance timer
// without firing any callback — called on ledgerClosed, since the slot
// moved and pending deferrals are moot.
func (v *Validator) ClearDeferredTimers() {
	v.timers.clearAll()
}

func (v *Validator) snapshot() (fullySynced bool, lastClosed types.LedgerHeader, qs ballot.QuorumSet, lastTrigger time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.fullySynced, v.lastClosed, v.localQuorumSet, v.lastTrigger
}

// ValidateValue implements validateValue: cb(true) iff the opaque value
// decodes, its signature verifies, and — while fully synced — it targets
// the next slot with a fresh close time and a TxSet that checks out.
func (v *Validator) ValidateValue(slotIndex types.SlotIndex, nodeID types.NodeID, opaqueValue []byte, cb func(bool)) {
	b, ok := ballot.Decode(opaqueValue)
	if !ok || b.NodeID != nodeID {
		monitoring.RecordRejected(monitoring.RejectDecodeFailure)
		logx.Debug("STATEVALIDATOR", "validateValue: decode failure")
		cb(false)
		return
	}
	if !b.Verify() {
		monitoring.RecordRejected(monitoring.RejectBadSignature)
		logx.Debug("STATEVALIDATOR", "validateValue: signature invalid")
		cb(false)
		return
	}

	fullySynced, lastClosed, _, _ := v.snapshot()
	if !fullySynced {
		cb(true)
		return
	}

	if slotIndex != lastClosed.LedgerSeq+1 {
		monitoring.RecordRejected(monitoring.RejectSlotMismatch)
		logx.Debug("STATEVALIDATOR", "validateValue: slot mismatch")
		cb(false)
		return
	}
	if b.Value.CloseTime <= lastClosed.CloseTime {
		monitoring.RecordRejected(monitoring.RejectStaleCloseTime)
		logx.Debug("STATEVALIDATOR", "validateValue: stale close time")
		cb(false)
		return
	}

	v.deps.FetchTxSet(b.Value.TxSetHash, func(ts *txset.TxSet) {
		if ts == nil || !ts.CheckValid(v.deps.LedgerState, lastClosed.Hash, v.cfg.DesiredBaseFee) {
			monitoring.RecordRejected(monitoring.RejectInvalidTxSet)
			logx.Debug("STATEVALIDATOR", "validateValue: txset invalid")
			cb(false)
			return
		}
		cb(true)
	})
}

// ValidateBallot implements validateBallot: time-slip, counter-rate,
// fee-range, watcher/self, trust, and — for trusted non-king ballots —
// deferred acceptance.
func (v *Validator) ValidateBallot(slotIndex types.SlotIndex, nodeID types.NodeID, fb ballot.FBABallot, cb func(bool)) {
	b, ok := ballot.Decode(fb.Value)
	if !ok {
		monitoring.RecordRejected(monitoring.RejectDecodeFailure)
		cb(false)
		return
	}

	_, _, qs, lastTrigger := v.snapshot()
	now := v.clock.Now()

	if b.Value.CloseTime > uint64(now.Add(v.cfg.MaxTimeSlip).Unix()) {
		monitoring.RecordRejected(monitoring.RejectTimeSlip)
		logx.Debug("STATEVALIDATOR", "validateBallot: close time too far in the future")
		cb(false)
		return
	}

	if !v.counterRateOK(fb.Counter, now, lastTrigger) {
		monitoring.RecordRejected(monitoring.RejectCounterRate)
		logx.Debug("STATEVALIDATOR", "validateBallot: counter rate limit exceeded")
		cb(false)
		return
	}

	low, high := v.cfg.DesiredBaseFee/2, v.cfg.DesiredBaseFee*2
	if b.Value.BaseFee < low || b.Value.BaseFee > high {
		monitoring.RecordRejected(monitoring.RejectFeeOutOfRange)
		cb(false)
		return
	}

	if v.cfg.IsWatcher && nodeID == v.cfg.SelfNodeID {
		monitoring.RecordRejected(monitoring.RejectSelfEnvelope)
		cb(false)
		return
	}

	trusted := nodeID == v.cfg.SelfNodeID || qs.Contains(nodeID)
	if !trusted {
		monitoring.RecordRejected(monitoring.RejectUntrusted)
		cb(false)
		return
	}

	if IsKing(slotIndex, fb.Counter, nodeID, qs.Validators) {
		cb(true)
		return
	}

	v.deferAccept(fb, nodeID, cb)
}

// counterRateOK checks now+MaxTimeSlip ≥ lastTrigger + Σ_{i<counter} T(i),
// T(i) = min(MaxFBATimeout, 2^i), short-circuiting as soon as the partial
// sum already exceeds the available budget so a huge counter costs O(budget)
// work, not O(counter).
func (v *Validator) counterRateOK(counter types.BallotCounter, now, lastTrigger time.Time) bool {
	budget := utils.SecondsBetween(lastTrigger, now.Add(v.cfg.MaxTimeSlip))
	maxTimeout := v.cfg.MaxFBATimeout.Seconds()

	sum := 0.0
	for i := types.BallotCounter(0); i < counter; i++ {
		term := math.Min(maxTimeout, math.Pow(2, float64(i)))
		sum += term
		if sum > budget {
			return false
		}
	}
	return sum <= budget
}

// deferAccept schedules a timer that accepts fb for requester after
// 2^counter/2 seconds, then immediately checks whether the updated set of
// requesters for fb is now v-blocking; if so every pending timer for fb —
// including the one just armed — fires early.
func (v *Validator) deferAccept(fb ballot.FBABallot, requester types.NodeID, cb func(bool)) {
	key := ballotKey(fb)
	delay := deferredDelay(fb.Counter)
	v.timers.register(v.clock, key, requester, delay, cb)

	requesters := v.timers.requesterSet(key)
	if v.deps.IsVBlocking != nil && v.deps.IsVBlocking(requesters) {
		v.timers.acceptAll(key)
	}
}

func deferredDelay(counter types.BallotCounter) time.Duration {
	exp := counter
	if exp > 30 {
		exp = 30
	}
	seconds := math.Pow(2, float64(exp)) / 2
	return time.Duration(seconds * float64(time.Second))
}

// ballotKey derives the deferredRegistry's index from an FBABallot: its
// counter and opaque value bytes uniquely identify it for this purpose.
func ballotKey(fb ballot.FBABallot) types.Hash {
	h := sha256.New()
	var u4 [4]byte
	binary.BigEndian.PutUint32(u4[:], uint32(fb.Counter))
	h.Write(u4[:])
	h.Write(fb.Value)
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}
