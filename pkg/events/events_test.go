package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	b.Publish(&Event{Type: EventJobResolved, Metadata: map[string]string{"jobid": "42"}})

	select {
	case evt := <-sub:
		assert.Equal(t, EventJobResolved, evt.Type)
		assert.Equal(t, "42", evt.Metadata["jobid"])
		assert.False(t, evt.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	require.Equal(t, 0, b.SubscriberCount())
	sub := b.Subscribe()
	require.Equal(t, 1, b.SubscriberCount())

	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberCount())

	_, ok := <-sub
	assert.False(t, ok, "channel should be closed after unsubscribe")
}

func TestPublishDoesNotBlockWithoutSubscribers(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish(&Event{Type: EventScrapeSourceDown})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked with no subscribers")
	}
}
