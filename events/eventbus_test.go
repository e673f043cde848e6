package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSubscribePublishDeliversToAllSubscribers(t *testing.T) {
	bus := NewEventBus()
	_, ch1 := bus.Subscribe()
	_, ch2 := bus.Subscribe()
	assert.Equal(t, 2, bus.GetTotalSubscriptions())

	bus.Publish(NewSlotTriggered(1, "hash"))

	for _, ch := range []chan HerderEvent{ch1, ch2} {
		select {
		case e := <-ch:
			assert.Equal(t, EventSlotTriggered, e.Type())
			assert.Equal(t, uint64(1), e.Slot())
		case <-time.After(time.Second):
			t.Fatal("subscriber never received the published event")
		}
	}
}

func TestUnsubscribeRemovesSubscriberAndClosesChannel(t *testing.T) {
	bus := NewEventBus()
	id, ch := bus.Subscribe()

	assert.True(t, bus.Unsubscribe(id))
	assert.False(t, bus.HasSubscriber(id))
	assert.Equal(t, 0, bus.GetTotalSubscriptions())

	_, open := <-ch
	assert.False(t, open, "unsubscribe must close the subscriber's channel")
}

func TestUnsubscribeUnknownIDIsNoop(t *testing.T) {
	bus := NewEventBus()
	assert.False(t, bus.Unsubscribe("nonexistent"))
}

func TestPublishWithNoSubscribersDoesNotBlock(t *testing.T) {
	bus := NewEventBus()
	assert.NotPanics(t, func() { bus.Publish(NewBallotBumped(1, 0)) })
}

func TestEventConstructorsCarryExpectedFields(t *testing.T) {
	accepted := NewEnvelopeAccepted(5, "node-1")
	assert.Equal(t, EventEnvelopeAccepted, accepted.Type())
	assert.Equal(t, "node-1", accepted.NodeID())

	rejected := NewEnvelopeRejected(5, "out_of_bracket")
	assert.Equal(t, EventEnvelopeRejected, rejected.Type())
	assert.Equal(t, "out_of_bracket", rejected.Reason())

	externalized := NewSlotExternalized(5, "txsethash")
	assert.Equal(t, EventSlotExternalized, externalized.Type())
	assert.Equal(t, "txsethash", externalized.TxSetHash())

	bumped := NewBallotBumped(5, 3)
	assert.Equal(t, EventBallotBumped, bumped.Type())
	assert.Equal(t, uint32(3), bumped.Counter())
}
