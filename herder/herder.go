// Package herder wires ItemFetcher pairs, the mempool, the statement
// validator, fetch gates, the trigger scheduler, and the FBA kernel into
// the Herder core: the single component this repository wires together.
package herder

import (
	"crypto/ed25519"
	"sync"
	"time"

	"github.com/mezonai/herder/ballot"
	herdererrors "github.com/mezonai/herder/errors"
	"github.com/mezonai/herder/events"
	"github.com/mezonai/herder/fba"
	"github.com/mezonai/herder/fetcher"
	"github.com/mezonai/herder/fetchgate"
	"github.com/mezonai/herder/gateway"
	"github.com/mezonai/herder/logx"
	"github.com/mezonai/herder/mempool"
	"github.com/mezonai/herder/monitoring"
	"github.com/mezonai/herder/scheduler"
	"github.com/mezonai/herder/statevalidator"
	"github.com/mezonai/herder/txset"
	"github.com/mezonai/herder/types"
)

// Config holds the wiring-time knobs the node's configuration exposes.
type Config struct {
	SelfNodeID     types.NodeID
	SecretKey      ed25519.PrivateKey // nil means watcher mode
	LocalQuorumSet ballot.QuorumSet
	DesiredBaseFee uint64

	StartNewNetwork bool

	LedgerValidityBracket       uint64
	NodeExpirationSeconds       int64
	ExpLedgerTimespanSeconds    int64
	MaxTimeSlipSeconds          int64
	MaxFBATimeoutSeconds        int64
	LedgersToWaitToParticipate  int
}

// FutureEnvelope stashes a not-yet-triggerable envelope alongside the
// completion callback the overlay is waiting on.
type FutureEnvelope struct {
	Env  ballot.Envelope
	Done func(bool)
}

// Herder owns the Mempool, scheduler timers, fetchers, gates, the
// synchronization counter, and the last-closed-ledger snapshot
// section 3's ownership note). The FBA kernel owns protocol state; Herder
// is a policy/callback collaborator to it.
type Herder struct {
	mu sync.Mutex

	cfg     Config
	kernel  fba.Kernel
	ledger  gateway.LedgerGateway
	overlay gateway.OverlayGateway
	bus     *events.EventBus

	mempool       *mempool.Mempool
	txSetFetchers *fetcher.Pair[*txset.TxSet]
	qSetFetcher   *fetcher.ItemFetcher[ballot.QuorumSet]
	txSetGate     *fetchgate.Gate[*txset.TxSet]
	qSetGate      *fetchgate.Gate[ballot.QuorumSet]

	scheduler *scheduler.Scheduler
	validator *statevalidator.Validator

	futureEnvelopes map[types.SlotIndex][]FutureEnvelope
	nodeLastAccess  map[types.NodeID]time.Time
	nodeExpiration  time.Duration

	syncCounter int
	fullySynced bool

	currentValue ballot.BallotValue
}

// New wires a Herder from its collaborators. clock is shared by the
// scheduler and the validator so tests can move time deterministically.
func New(cfg Config, kernel fba.Kernel, ledger gateway.LedgerGateway, overlay gateway.OverlayGateway, bus *events.EventBus, clock scheduler.Clock) *Herder {
	h := &Herder{
		cfg:             cfg,
		kernel:          kernel,
		ledger:          ledger,
		overlay:         overlay,
		bus:             bus,
		futureEnvelopes: make(map[types.SlotIndex][]FutureEnvelope),
		nodeLastAccess:  make(map[types.NodeID]time.Time),
		nodeExpiration:  time.Duration(cfg.NodeExpirationSeconds) * time.Second,
		syncCounter:     cfg.LedgersToWaitToParticipate,
		fullySynced:     cfg.LedgersToWaitToParticipate == 0,
	}

	txReq := gateway.NewTxSetRequester(overlay)
	qReq := gateway.NewQuorumSetRequester(overlay)
	h.txSetFetchers = fetcher.NewPair[*txset.TxSet]("txset", txReq, &fetcher.ExponentialBackoff{Base: time.Second, Requester: txReq})
	h.qSetFetcher = fetcher.New[ballot.QuorumSet]("qset", qReq, &fetcher.ExponentialBackoff{Base: time.Second, Requester: qReq})
	h.txSetGate = fetchgate.New[*txset.TxSet]()
	h.qSetGate = fetchgate.New[ballot.QuorumSet]()

	h.mempool = mempool.New(ledger, ledger.TxFee)

	lastClosed := ledger.LastClosedLedgerHeader()
	canPropose := cfg.SecretKey != nil && (lastClosed.LedgerSeq > 0 || cfg.StartNewNetwork)
	h.scheduler = scheduler.New(clock, time.Duration(cfg.ExpLedgerTimespanSeconds)*time.Second, canPropose)
	h.scheduler.OnTrigger = h.triggerNextLedger
	h.scheduler.OnBump = h.onBumpTimer

	h.validator = statevalidator.New(statevalidator.Config{
		DesiredBaseFee: cfg.DesiredBaseFee,
		MaxTimeSlip:    time.Duration(cfg.MaxTimeSlipSeconds) * time.Second,
		MaxFBATimeout:  time.Duration(cfg.MaxFBATimeoutSeconds) * time.Second,
		SelfNodeID:     cfg.SelfNodeID,
		IsWatcher:      cfg.SecretKey == nil,
	}, statevalidator.Deps{
		FetchTxSet:  h.fetchTxSetForValidation,
		LedgerState: ledger,
		IsVBlocking: kernel.IsVBlocking,
	}, clock)
	h.validator.SetLocalQuorumSet(cfg.LocalQuorumSet)
	h.validator.SetFullySynced(h.fullySynced)
	h.validator.SetLastClosed(lastClosed)

	scheduler.ReportSyncCounter(h.syncCounter)
	monitoring.SetLastClosedLedgerSeq(uint64(lastClosed.LedgerSeq))

	h.scheduler.LedgerClosed(lastClosed)
	return h
}

// RecvTransaction admits tx into the mempool.
func (h *Herder) RecvTransaction(tx *txset.Transaction) bool {
	return h.mempool.Admit(tx)
}

// RecvTxSet caches set with the active TxSet fetcher; if anyone was
// waiting for it, its member transactions are best-effort admitted and
// the fetch gate for its hash is released.
func (h *Herder) RecvTxSet(set *txset.TxSet) {
	hash := set.ContentHash()
	wanted := h.txSetFetchers.Active().RecvItem(hash, set)
	if !wanted {
		return
	}
	for _, tx := range set.Transactions {
		h.RecvTransaction(tx)
	}
	h.txSetGate.Release(hash, set)
}

// RecvFBAQuorumSet caches qs with the quorum-set fetcher and releases its
// fetch gate if anyone was waiting.
func (h *Herder) RecvFBAQuorumSet(qs ballot.QuorumSet) {
	hash := qs.Hash()
	wanted := h.qSetFetcher.RecvItem(hash, qs)
	if !wanted {
		return
	}
	h.qSetGate.Release(hash, qs)
}

// DoesntHaveTxSet records peer's denial against both generations, since
// the pending request might have been issued before the last flip.
func (h *Herder) DoesntHaveTxSet(hash types.Hash, peer types.NodeID) {
	h.txSetFetchers.Active().DoesntHave(hash, peer)
	h.txSetFetchers.Retired().DoesntHave(hash, peer)
}

func (h *Herder) DoesntHaveFBAQuorumSet(hash types.Hash, peer types.NodeID) {
	h.qSetFetcher.DoesntHave(hash, peer)
}

// fetchTxSetForValidation is the StatementValidator's FetchTxSet dependency.
func (h *Herder) fetchTxSetForValidation(hash types.Hash, cb func(ts *txset.TxSet)) {
	if ts, ok := h.txSetFetchers.Active().FetchItem(hash, true); ok {
		cb(ts)
		return
	}
	h.txSetGate.Await(hash, cb)
}

// ValidateValue implements the FBA kernel's validateValue callback.
func (h *Herder) ValidateValue(slot types.SlotIndex, nodeID types.NodeID, opaqueValue []byte, cb func(bool)) {
	h.validator.ValidateValue(slot, nodeID, opaqueValue, cb)
}

// ValidateBallot implements the FBA kernel's validateBallot callback.
func (h *Herder) ValidateBallot(slot types.SlotIndex, nodeID types.NodeID, fb ballot.FBABallot, cb func(bool)) {
	h.validator.ValidateBallot(slot, nodeID, fb, cb)
}

// CompareValues implements the FBA kernel's compareValues callback.
func (h *Herder) CompareValues(slot types.SlotIndex, counter types.BallotCounter, v1, v2 ballot.BallotValue) int {
	return statevalidator.CompareValues(slot, counter, v1, v2)
}

// BallotDidHearFromQuorum implements the FBA kernel's callback of the same
// name, forwarding to the scheduler's bump-timer logic.
func (h *Herder) BallotDidHearFromQuorum(slot types.SlotIndex, counter types.BallotCounter) {
	h.mu.Lock()
	synced := h.fullySynced
	h.mu.Unlock()
	h.scheduler.BallotDidHearFromQuorum(synced, slot, counter)
}

// EmitEnvelope implements fba.EnvelopeEmitter: while not fully synced,
// every outbound envelope is suppressed.
func (h *Herder) EmitEnvelope(env ballot.Envelope) {
	h.mu.Lock()
	synced := h.fullySynced
	h.mu.Unlock()
	if !synced {
		return
	}
	h.overlay.BroadcastEnvelope(env)
}

// NodeTouched records that the FBA kernel has heard from nodeID just now.
func (h *Herder) NodeTouched(nodeID types.NodeID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nodeLastAccess[nodeID] = time.Now()
}

// RetrieveQuorumSet implements the FBA kernel's retrieveQuorumSet callback.
func (h *Herder) RetrieveQuorumSet(nodeID types.NodeID, hash types.Hash, cb func(ballot.QuorumSet)) {
	if qs, ok := h.qSetFetcher.FetchItem(hash, true); ok {
		cb(qs)
		return
	}
	h.qSetGate.Await(hash, cb)
}

// RecvFBAEnvelope implements recvFBAEnvelope: drops out-of-bracket
// envelopes while fully synced, stashes envelopes for not-yet-triggered
// future slots, and otherwise forwards immediately to the FBA kernel.
// done, if non-nil, reports whether the envelope was forwarded rather than
// dropped outright; for a stashed envelope it is called with true only when
// its slot triggers and the envelope is replayed.
func (h *Herder) RecvFBAEnvelope(env ballot.Envelope, done func(bool)) {
	slot := env.Statement.SlotIndex

	h.mu.Lock()
	synced := h.fullySynced
	h.mu.Unlock()
	lastClosed := h.scheduler.LastClosedLedger()
	bracket := types.SlotIndex(h.cfg.LedgerValidityBracket)

	if synced {
		low := types.SlotIndex(0)
		if lastClosed.LedgerSeq > bracket {
			low = lastClosed.LedgerSeq - bracket
		}
		high := lastClosed.LedgerSeq + bracket
		if slot < low || slot > high {
			monitoring.RecordRejected(monitoring.RejectOutOfBracket)
			h.bus.Publish(events.NewEnvelopeRejected(uint64(slot), string(herdererrors.ErrCodeOutOfBracket)))
			if done != nil {
				done(false)
			}
			return
		}
	}

	if slot > lastClosed.LedgerSeq+1 {
		h.mu.Lock()
		h.futureEnvelopes[slot] = append(h.futureEnvelopes[slot], FutureEnvelope{Env: env, Done: done})
		h.mu.Unlock()
		return
	}

	h.kernel.ReceiveEnvelope(env)
	h.bus.Publish(events.NewEnvelopeAccepted(uint64(slot), env.Statement.NodeID.String()))
	if done != nil {
		done(true)
	}
}

// LedgerClosed implements ledgerClosed: it updates every component that
// keys off the last-closed ledger and decrements the synchronization
// counter, but only while appSynced — the enclosing application's own
// synchronization state, which this repository does not otherwise model.
func (h *Herder) LedgerClosed(ledger types.LedgerHeader, appSynced bool) {
	h.scheduler.LedgerClosed(ledger)
	h.validator.SetLastClosed(ledger)
	h.validator.ClearDeferredTimers()
	h.validator.SetLastTrigger(h.scheduler.LastTrigger())

	h.mu.Lock()
	if appSynced && h.syncCounter > 0 {
		h.syncCounter--
		if h.syncCounter == 0 {
			h.fullySynced = true
			h.validator.SetFullySynced(true)
		}
	}
	syncCounter := h.syncCounter
	h.mu.Unlock()

	scheduler.ReportSyncCounter(syncCounter)
	monitoring.SetLastClosedLedgerSeq(uint64(ledger.LedgerSeq))
}

// triggerNextLedger is the scheduler's OnTrigger callback: it snapshots
// the mempool, signs a proposal, hands it to the FBA kernel, and replays
// any envelopes that were stashed awaiting this slot.
func (h *Herder) triggerNextLedger(slot types.SlotIndex) {
	lastClosed := h.scheduler.LastClosedLedger()
	proposed := h.mempool.SnapshotAll(lastClosed.Hash)
	h.RecvTxSet(proposed)

	closeTime := lastClosed.CloseTime + 1
	if now := uint64(time.Now().Unix()); now > closeTime {
		closeTime = now
	}
	value := ballot.Value{
		TxSetHash: proposed.ContentHash(),
		CloseTime: closeTime,
		BaseFee:   h.cfg.DesiredBaseFee,
	}
	signed := ballot.Sign(h.cfg.SecretKey, h.cfg.SelfNodeID, value)

	h.mu.Lock()
	h.currentValue = signed
	h.mu.Unlock()

	h.kernel.PrepareValue(slot, signed, false)

	h.mu.Lock()
	pending := h.futureEnvelopes[slot]
	delete(h.futureEnvelopes, slot)
	h.mu.Unlock()

	for _, fe := range pending {
		h.kernel.ReceiveEnvelope(fe.Env)
		h.bus.Publish(events.NewEnvelopeAccepted(uint64(slot), fe.Env.Statement.NodeID.String()))
		if fe.Done != nil {
			fe.Done(true)
		}
	}

	h.bus.Publish(events.NewSlotTriggered(uint64(slot), value.TxSetHash.String()))
}

// onBumpTimer is the scheduler's OnBump callback: force a ballot-counter
// bump on the slot's current value.
func (h *Herder) onBumpTimer(slot types.SlotIndex, counter types.BallotCounter) {
	h.mu.Lock()
	current := h.currentValue
	h.mu.Unlock()
	h.kernel.PrepareValue(slot, current, true)
	h.bus.Publish(events.NewBallotBumped(uint64(slot), uint32(counter)))
}

// ValueExternalized implements valueExternalized: the externalized TxSet
// must already be cached (it was fetched to validate the winning ballot),
// so this only flips the fetcher generation, hands the set to the ledger
// gateway, ages the mempool, evicts idle nodes, and purges stale kernel
// slots.
func (h *Herder) ValueExternalized(slot types.SlotIndex, opaqueValue []byte) {
	b, ok := ballot.Decode(opaqueValue)
	if !ok {
		logx.Error("HERDER", "valueExternalized: decode failure at slot", slot)
		return
	}

	ts, present := h.txSetFetchers.Active().FetchItem(b.Value.TxSetHash, false)
	if !present {
		ts, present = h.txSetFetchers.Retired().FetchItem(b.Value.TxSetHash, false)
	}
	if !present {
		logx.Error("HERDER", "valueExternalized: txset missing at slot", slot)
		return
	}
	h.txSetFetchers.Flip()

	header, err := h.ledger.ExternalizeValue(ts, b.Value.CloseTime)
	if err != nil {
		logx.Error("HERDER", "valueExternalized: ledger externalize failed:", err)
		return
	}

	rebroadcast := h.mempool.AgeAfterExternalize(ts)
	for _, tx := range rebroadcast {
		h.overlay.BroadcastTransaction(tx)
	}

	h.evictIdleNodes()

	bracket := types.SlotIndex(h.cfg.LedgerValidityBracket)
	if slot > bracket {
		h.kernel.PurgeSlots(slot - bracket)
	}

	monitoring.IncreaseSlotsExternalized()
	monitoring.SetLastClosedLedgerSeq(uint64(header.LedgerSeq))
	h.bus.Publish(events.NewSlotExternalized(uint64(slot), b.Value.TxSetHash.String()))
}

func (h *Herder) evictIdleNodes() {
	cutoff := time.Now().Add(-h.nodeExpiration)
	h.mu.Lock()
	defer h.mu.Unlock()
	for nodeID, last := range h.nodeLastAccess {
		if last.Before(cutoff) {
			delete(h.nodeLastAccess, nodeID)
			h.kernel.PurgeNode(nodeID)
		}
	}
}

// Mempool exposes the Herder's mempool for observability/admin endpoints.
func (h *Herder) Mempool() *mempool.Mempool { return h.mempool }

// SchedulerState exposes the trigger scheduler's state for observability.
func (h *Herder) SchedulerState() scheduler.State { return h.scheduler.State() }

// Shutdown cancels all timers and abandons in-flight fetches.
func (h *Herder) Shutdown() {
	h.scheduler.Shutdown()
	h.txSetFetchers.Active().StopFetchingAll()
	h.txSetFetchers.Retired().StopFetchingAll()
	h.qSetFetcher.StopFetchingAll()
}
