package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesSubscriber(t *testing.T) {
	hub := NewHub()

	sub, backlog, err := hub.Subscribe("auction:1")
	require.NoError(t, err)
	defer sub.Close()
	assert.Empty(t, backlog)

	hub.Publish(NewEvent(TypeBidPlaced, "auction:1", map[string]any{"amount": "100"}))

	select {
	case event := <-sub.Events():
		assert.Equal(t, TypeBidPlaced, event.Type)
		assert.Equal(t, "auction:1", event.Topic)
	case <-time.After(time.Second):
		t.Fatal("expected event delivery")
	}
}

func TestBacklogReplayedToLateSubscriber(t *testing.T) {
	hub := NewHub()

	// Nobody is connected while the events happen.
	hub.Publish(NewEvent(TypeAuctionCreated, "auction:2", nil))
	hub.Publish(NewEvent(TypeBidPlaced, "auction:2", nil))

	sub, backlog, err := hub.Subscribe("auction:2")
	require.NoError(t, err)
	defer sub.Close()

	require.Len(t, backlog, 2)
	assert.Equal(t, TypeAuctionCreated, backlog[0].Type)
	assert.Equal(t, TypeBidPlaced, backlog[1].Type)
}

func TestBacklogSurvivesDisconnect(t *testing.T) {
	hub := NewHub()

	sub, _, err := hub.Subscribe("auction:3")
	require.NoError(t, err)
	hub.Publish(NewEvent(TypeAuctionCreated, "auction:3", nil))
	sub.Close()

	// Published between disconnect and reconnect.
	hub.Publish(NewEvent(TypeAuctionClosed, "auction:3", nil))

	reconnect, backlog, err := hub.Subscribe("auction:3")
	require.NoError(t, err)
	defer reconnect.Close()

	require.Len(t, backlog, 2)
	assert.Equal(t, TypeAuctionCreated, backlog[0].Type)
	assert.Equal(t, TypeAuctionClosed, backlog[1].Type)
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	hub := NewHub()

	sub, _, err := hub.Subscribe("batches")
	require.NoError(t, err)
	defer sub.Close()

	// Overfill the subscriber channel; publishes must complete regardless.
	done := make(chan struct{})
	go func() {
		for i := 0; i < DefaultSubscriberBuffer*3; i++ {
			hub.Publish(NewEvent(TypeBatchCreated, "batches", nil))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestSubscribeValidation(t *testing.T) {
	hub := NewHub()

	_, _, err := hub.Subscribe("  ")
	assert.ErrorIs(t, err, ErrInvalidTopic)

	var nilHub *Hub
	_, _, err = nilHub.Subscribe("auction:1")
	assert.ErrorIs(t, err, ErrHubUnavailable)
}

func TestCloseUnsubscribes(t *testing.T) {
	hub := NewHub()

	sub, _, err := hub.Subscribe("auction:4")
	require.NoError(t, err)
	sub.Close()
	sub.Close() // safe to call twice

	hub.Publish(NewEvent(TypeBidPlaced, "auction:4", nil))
	select {
	case <-sub.Events():
		t.Fatal("closed subscription must not receive events")
	default:
	}
}
