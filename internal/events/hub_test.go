package events

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/strand-chat/strand/internal/chat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestHub(ringSize int) *Hub {
	return NewHub(zap.NewNop(), nil, ringSize)
}

func drain(c *Client) []*chat.Event {
	var out []*chat.Event
	for {
		select {
		case ev := <-c.SendChan:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestPublishAssignsMonotonicSeqPerChannel(t *testing.T) {
	h := newTestHub(0)
	a, b := uuid.New(), uuid.New()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		h.Publish(ctx, a, &chat.Event{Type: chat.EventSent})
	}
	h.Publish(ctx, b, &chat.Event{Type: chat.EventSent})

	assert.Equal(t, uint64(3), h.LastSeq(a))
	assert.Equal(t, uint64(1), h.LastSeq(b), "sequences are independent per channel")
	assert.Equal(t, uint64(0), h.LastSeq(uuid.New()))
}

func TestPublishStampsIdentity(t *testing.T) {
	h := newTestHub(0)
	channelID := uuid.New()

	ev := &chat.Event{Type: chat.EventSent}
	h.Publish(context.Background(), channelID, ev)

	assert.NotEmpty(t, ev.EventID)
	assert.False(t, ev.CreatedAt.IsZero())
	assert.Equal(t, channelID, ev.ChannelID)
	assert.Equal(t, uint64(1), ev.Seq)
}

func TestSubscriberReceivesLiveEvents(t *testing.T) {
	h := newTestHub(0)
	channelID := uuid.New()
	client := h.AddClient(context.Background(), uuid.New())
	require.NotNil(t, client)
	require.True(t, h.Subscribe(client.ID, channelID, 0))

	h.Publish(context.Background(), channelID, &chat.Event{Type: chat.EventSent})
	h.Publish(context.Background(), uuid.New(), &chat.Event{Type: chat.EventSent})

	events := drain(client)
	require.Len(t, events, 1, "only subscribed channels are delivered")
	assert.Equal(t, uint64(1), events[0].Seq)
}

func TestSubscribeReplaysGap(t *testing.T) {
	h := newTestHub(0)
	channelID := uuid.New()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		h.Publish(ctx, channelID, &chat.Event{Type: chat.EventSent})
	}

	client := h.AddClient(ctx, uuid.New())
	require.True(t, h.Subscribe(client.ID, channelID, 2))

	events := drain(client)
	require.Len(t, events, 3, "events after the last seen seq are replayed")
	assert.Equal(t, uint64(3), events[0].Seq)
	assert.Equal(t, uint64(5), events[2].Seq)
}

func TestSubscribeWithZeroSeqSkipsReplay(t *testing.T) {
	h := newTestHub(0)
	channelID := uuid.New()
	ctx := context.Background()

	h.Publish(ctx, channelID, &chat.Event{Type: chat.EventSent})

	client := h.AddClient(ctx, uuid.New())
	require.True(t, h.Subscribe(client.ID, channelID, 0))

	assert.Empty(t, drain(client), "a fresh subscription starts live")
}

func TestReplayRingIsBounded(t *testing.T) {
	h := newTestHub(4)
	channelID := uuid.New()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		h.Publish(ctx, channelID, &chat.Event{Type: chat.EventSent})
	}

	client := h.AddClient(ctx, uuid.New())
	require.True(t, h.Subscribe(client.ID, channelID, 1))

	events := drain(client)
	require.Len(t, events, 4, "only the ring tail is replayable")
	assert.Equal(t, uint64(7), events[0].Seq)
	assert.Equal(t, uint64(10), events[3].Seq)
}

func TestRemoteEventsEnterReplayRing(t *testing.T) {
	h := newTestHub(0)
	channelID := uuid.New()
	ctx := context.Background()

	// Events arriving over the relay carry the sequence assigned by the
	// publishing node and must be resumable here too.
	for seq := uint64(1); seq <= 5; seq++ {
		h.ingestRemote(&chat.Event{Type: chat.EventSent, ChannelID: channelID, Seq: seq})
	}

	assert.Equal(t, uint64(5), h.LastSeq(channelID))

	client := h.AddClient(ctx, uuid.New())
	require.True(t, h.Subscribe(client.ID, channelID, 2))

	events := drain(client)
	require.Len(t, events, 3, "remote events are replayable after reconnect")
	assert.Equal(t, uint64(3), events[0].Seq)
	assert.Equal(t, uint64(5), events[2].Seq)
}

func TestLocalSeqAdvancesPastRemote(t *testing.T) {
	h := newTestHub(0)
	channelID := uuid.New()
	ctx := context.Background()

	h.ingestRemote(&chat.Event{Type: chat.EventSent, ChannelID: channelID, Seq: 7})

	ev := &chat.Event{Type: chat.EventSent}
	h.Publish(ctx, channelID, ev)

	assert.Equal(t, uint64(8), ev.Seq, "local publishes continue after the remote high-water mark")
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	h := newTestHub(0)
	channelID := uuid.New()
	ctx := context.Background()

	client := h.AddClient(ctx, uuid.New())
	require.True(t, h.Subscribe(client.ID, channelID, 0))
	h.Unsubscribe(client.ID, channelID)

	h.Publish(ctx, channelID, &chat.Event{Type: chat.EventSent})

	assert.Empty(t, drain(client))
	assert.False(t, h.ChannelHasSubscribers(channelID))
}

func TestRemoveClientCleansSubscriptions(t *testing.T) {
	h := newTestHub(0)
	channelID := uuid.New()
	ctx := context.Background()

	client := h.AddClient(ctx, uuid.New())
	require.True(t, h.Subscribe(client.ID, channelID, 0))
	h.RemoveClient(client.ID)

	assert.False(t, h.ChannelHasSubscribers(channelID))
	assert.False(t, h.Subscribe(client.ID, channelID, 0), "removed clients cannot resubscribe")

	select {
	case <-client.Context().Done():
	default:
		t.Fatal("client context should be cancelled on removal")
	}
}

func TestShutdownRefusesNewClients(t *testing.T) {
	h := newTestHub(0)
	ctx := context.Background()

	client := h.AddClient(ctx, uuid.New())
	require.NotNil(t, client)
	require.NoError(t, h.Shutdown(ctx))

	assert.Nil(t, h.AddClient(ctx, uuid.New()))
	select {
	case <-client.Context().Done():
	default:
		t.Fatal("existing clients should be cancelled on shutdown")
	}
}
