// Package scheduler drives the cadence of proposing, timing out, and
// bumping ballots. It owns exactly two timers —
// triggerTimer and bumpTimer — and never touches Herder-owned state
// directly; it calls back into the Herder core instead.
package scheduler

import (
	"math"
	"sync"
	"time"

	"github.com/mezonai/herder/exception"
	"github.com/mezonai/herder/logx"
	"github.com/mezonai/herder/monitoring"
	"github.com/mezonai/herder/types"
)

// State names the scheduler's position in its own small state machine.
type State int

const (
	WaitingForLedgerClose State = iota
	ScheduledTrigger
	InSlot
	AwaitingQuorumBump
)

func (s State) String() string {
	switch s {
	case WaitingForLedgerClose:
		return "WAITING_FOR_LEDGER_CLOSE"
	case ScheduledTrigger:
		return "SCHEDULED_TRIGGER"
	case InSlot:
		return "IN_SLOT"
	case AwaitingQuorumBump:
		return "AWAITING_QUORUM_BUMP"
	default:
		return "UNKNOWN"
	}
}

// Clock is injected so tests can control time; production wiring passes
// time.Now and time.AfterFunc.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) *time.Timer
}

type realClock struct{}

func (realClock) Now() time.Time                                { return time.Now() }
func (realClock) AfterFunc(d time.Duration, f func()) *time.Timer { return time.AfterFunc(d, f) }

// RealClock is the production Clock implementation.
func RealClock() Clock { return realClock{} }

// Scheduler implements the TriggerScheduler state machine. CanPropose is
// false for watcher/non-validating nodes, which never call triggerNextLedger
// and are purely reactive.
type Scheduler struct {
	mu    sync.Mutex
	clock Clock

	state       State
	lastClosed  types.LedgerHeader
	lastTrigger time.Time
	currentSlot types.SlotIndex

	triggerTimer *time.Timer
	bumpTimer    *time.Timer
	bumpEpoch    uint64

	expLedgerTimespan time.Duration
	canPropose        bool

	// OnTrigger fires triggerNextLedger's work: snapshot the mempool,
	// build+sign a value, call prepareValue, replay FutureEnvelopes.
	OnTrigger func(slot types.SlotIndex)
	// OnBump fires prepareValue(slot, value, force=true).
	OnBump func(slot types.SlotIndex, counter types.BallotCounter)
}

func New(clock Clock, expLedgerTimespan time.Duration, canPropose bool) *Scheduler {
	return &Scheduler{
		clock:             clock,
		expLedgerTimespan: expLedgerTimespan,
		canPropose:        canPropose,
		lastTrigger:       clock.Now(),
		state:             WaitingForLedgerClose,
	}
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastClosedLedger returns the most recently observed ledger header.
func (s *Scheduler) LastClosedLedger() types.LedgerHeader {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastClosed
}

// LastTrigger returns when triggerNextLedger last fired, the anchor for
// validateBallot's ballot-counter rate limit.
func (s *Scheduler) LastTrigger() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTrigger
}

// LedgerClosed records the new last-closed ledger, cancels any pending
// trigger and ballot-bump timer, and schedules the next trigger at
// max(0, EXP_LEDGER_TIMESPAN_SECONDS - (now - lastTrigger)).
func (s *Scheduler) LedgerClosed(ledger types.LedgerHeader) {
	s.mu.Lock()
	s.lastClosed = ledger
	s.currentSlot = ledger.LedgerSeq + 1
	s.bumpEpoch++ // invalidates any in-flight bump fire for the old slot
	if s.bumpTimer != nil {
		s.bumpTimer.Stop()
	}
	if s.triggerTimer != nil {
		s.triggerTimer.Stop()
	}

	now := s.clock.Now()
	elapsed := now.Sub(s.lastTrigger)
	delay := s.expLedgerTimespan - elapsed
	if delay < 0 {
		delay = 0
	}
	s.state = ScheduledTrigger
	s.mu.Unlock()

	if !s.canPropose {
		return
	}
	s.triggerTimer = s.clock.AfterFunc(delay, func() {
		exception.SafeGo("scheduler.triggerNextLedger", s.fireTrigger)
	})
}

func (s *Scheduler) fireTrigger() {
	s.mu.Lock()
	s.lastTrigger = s.clock.Now()
	slot := s.currentSlot
	s.state = InSlot
	s.mu.Unlock()

	logx.Debug("SCHEDULER", "triggerNextLedger fired")
	if s.OnTrigger != nil {
		s.OnTrigger(slot)
	}
}

// BallotDidHearFromQuorum (re)arms the bump timer for 2^counter seconds,
// replacing any prior arming, but only while fully synced and slot matches
// the currently running slot.
func (s *Scheduler) BallotDidHearFromQuorum(fullySynced bool, slot types.SlotIndex, counter types.BallotCounter) {
	s.mu.Lock()
	if !fullySynced || slot != s.currentSlot {
		s.mu.Unlock()
		return
	}
	if s.bumpTimer != nil {
		s.bumpTimer.Stop()
	}
	s.bumpEpoch++
	epoch := s.bumpEpoch
	exp := counter
	if exp > 30 {
		exp = 30 // 2^30s already dwarfs any realistic FBA round; avoid overflow
	}
	d := time.Duration(math.Pow(2, float64(exp))) * time.Second
	s.state = AwaitingQuorumBump
	s.mu.Unlock()

	s.bumpTimer = s.clock.AfterFunc(d, func() {
		exception.SafeGo("scheduler.bumpTimer", func() { s.fireBump(epoch, slot, counter) })
	})
}

func (s *Scheduler) fireBump(epoch uint64, slot types.SlotIndex, counter types.BallotCounter) {
	s.mu.Lock()
	stale := epoch != s.bumpEpoch
	s.mu.Unlock()
	if stale {
		// Cancellation already absorbed this firing; no callback fires.
		return
	}
	logx.Debug("SCHEDULER", "bumpTimer fired, forcing ballot bump")
	if s.OnBump != nil {
		s.OnBump(slot, counter)
	}
}

// Shutdown cancels all timers; in-flight fetches are the fetcher's concern.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bumpEpoch++
	if s.triggerTimer != nil {
		s.triggerTimer.Stop()
	}
	if s.bumpTimer != nil {
		s.bumpTimer.Stop()
	}
}

// ReportSyncCounter mirrors ledgersToWaitToParticipate into the metric of
// the same name.
func ReportSyncCounter(n int) {
	monitoring.SetLedgersToWaitToParticipate(n)
}
