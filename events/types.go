package events

import "time"

// EventType is an enum-like string type for Herder events.
type EventType string

const (
	EventEnvelopeAccepted EventType = "EnvelopeAccepted"
	EventEnvelopeRejected EventType = "EnvelopeRejected"
	EventSlotTriggered    EventType = "SlotTriggered"
	EventSlotExternalized EventType = "SlotExternalized"
	EventBallotBumped     EventType = "BallotBumped"
)

// HerderEvent represents any event emitted by the Herder core.
type HerderEvent interface {
	Type() EventType
	Timestamp() time.Time
	Slot() uint64
}

// EnvelopeAccepted fires once a peer envelope has been handed to the FBA kernel.
type EnvelopeAccepted struct {
	slot      uint64
	nodeID    string
	timestamp time.Time
}

func NewEnvelopeAccepted(slot uint64, nodeID string) *EnvelopeAccepted {
	return &EnvelopeAccepted{slot: slot, nodeID: nodeID, timestamp: time.Now()}
}

func (e *EnvelopeAccepted) Type() EventType      { return EventEnvelopeAccepted }
func (e *EnvelopeAccepted) Timestamp() time.Time { return e.timestamp }
func (e *EnvelopeAccepted) Slot() uint64         { return e.slot }
func (e *EnvelopeAccepted) NodeID() string       { return e.nodeID }

// EnvelopeRejected fires when recvFBAEnvelope drops a message without forwarding it.
type EnvelopeRejected struct {
	slot      uint64
	reason    string
	timestamp time.Time
}

func NewEnvelopeRejected(slot uint64, reason string) *EnvelopeRejected {
	return &EnvelopeRejected{slot: slot, reason: reason, timestamp: time.Now()}
}

func (e *EnvelopeRejected) Type() EventType      { return EventEnvelopeRejected }
func (e *EnvelopeRejected) Timestamp() time.Time { return e.timestamp }
func (e *EnvelopeRejected) Slot() uint64         { return e.slot }
func (e *EnvelopeRejected) Reason() string       { return e.reason }

// SlotTriggered fires when the scheduler proposes a value for a new slot.
type SlotTriggered struct {
	slot      uint64
	txSetHash string
	timestamp time.Time
}

func NewSlotTriggered(slot uint64, txSetHash string) *SlotTriggered {
	return &SlotTriggered{slot: slot, txSetHash: txSetHash, timestamp: time.Now()}
}

func (e *SlotTriggered) Type() EventType      { return EventSlotTriggered }
func (e *SlotTriggered) Timestamp() time.Time { return e.timestamp }
func (e *SlotTriggered) Slot() uint64         { return e.slot }
func (e *SlotTriggered) TxSetHash() string    { return e.txSetHash }

// SlotExternalized fires once the FBA kernel has externalized a value for a slot.
type SlotExternalized struct {
	slot      uint64
	txSetHash string
	timestamp time.Time
}

func NewSlotExternalized(slot uint64, txSetHash string) *SlotExternalized {
	return &SlotExternalized{slot: slot, txSetHash: txSetHash, timestamp: time.Now()}
}

func (e *SlotExternalized) Type() EventType      { return EventSlotExternalized }
func (e *SlotExternalized) Timestamp() time.Time { return e.timestamp }
func (e *SlotExternalized) Slot() uint64         { return e.slot }
func (e *SlotExternalized) TxSetHash() string    { return e.txSetHash }

// BallotBumped fires when the scheduler force-bumps the current ballot's counter.
type BallotBumped struct {
	slot      uint64
	counter   uint32
	timestamp time.Time
}

func NewBallotBumped(slot uint64, counter uint32) *BallotBumped {
	return &BallotBumped{slot: slot, counter: counter, timestamp: time.Now()}
}

func (e *BallotBumped) Type() EventType      { return EventBallotBumped }
func (e *BallotBumped) Timestamp() time.Time { return e.timestamp }
func (e *BallotBumped) Slot() uint64         { return e.slot }
func (e *BallotBumped) Counter() uint32      { return e.counter }
