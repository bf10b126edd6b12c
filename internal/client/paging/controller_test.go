package paging

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/strand-chat/strand/internal/chat"
	"github.com/strand-chat/strand/internal/common/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFetcher serves windows from an in-memory ascending id sequence with the
// same limit+1 exhaustion-flag derivation the server uses.
type fakeFetcher struct {
	channelID uuid.UUID
	ids       []int64
	lastRead  int64
	calls     []pagination.Request
	// respondAs overrides the channel id stamped on responses, simulating a
	// result that arrives after the client switched channels.
	respondAs string
	err       error
}

func newFakeFetcher(channelID uuid.UUID, count int) *fakeFetcher {
	f := &fakeFetcher{channelID: channelID}
	for i := 1; i <= count; i++ {
		f.ids = append(f.ids, int64(i))
	}
	return f
}

func (f *fakeFetcher) FetchPage(ctx context.Context, channelID uuid.UUID, req pagination.Request) (*Page, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}

	var window []int64
	meta := pagination.Meta{ChannelID: channelID.String(), LastReadMessageID: f.lastRead}
	if f.respondAs != "" {
		meta.ChannelID = f.respondAs
	}

	switch {
	case req.TargetMessageID != nil:
		half := req.PageSize / 2
		var past, future []int64
		for _, id := range f.ids {
			if id <= *req.TargetMessageID {
				past = append(past, id)
			} else {
				future = append(future, id)
			}
		}
		if len(past) > half {
			past = past[len(past)-half:]
			meta.CanLoadMorePast = true
		}
		if len(future) > half {
			future = future[:half]
			meta.CanLoadMoreFuture = true
		}
		window = append(past, future...)
	case req.MessageID != nil && req.Direction == pagination.DirectionFuture:
		meta.CanLoadMorePast = true
		for _, id := range f.ids {
			if id > *req.MessageID {
				window = append(window, id)
			}
		}
		if len(window) > req.PageSize {
			window = window[:req.PageSize]
			meta.CanLoadMoreFuture = true
		}
	case req.MessageID != nil:
		meta.CanLoadMoreFuture = true
		for _, id := range f.ids {
			if id < *req.MessageID {
				window = append(window, id)
			}
		}
		if len(window) > req.PageSize {
			window = window[len(window)-req.PageSize:]
			meta.CanLoadMorePast = true
		}
	default:
		window = f.ids
		if len(window) > req.PageSize {
			window = window[len(window)-req.PageSize:]
			meta.CanLoadMorePast = true
		}
	}

	page := &Page{Meta: meta}
	for _, id := range window {
		page.Messages = append(page.Messages, &chat.Message{ID: id, ChannelID: channelID})
	}
	return page, nil
}

// fakeBuffer is a minimal id-deduplicating Buffer.
type fakeBuffer struct {
	msgs map[int64]*chat.Message
}

func newFakeBuffer() *fakeBuffer {
	return &fakeBuffer{msgs: make(map[int64]*chat.Message)}
}

func (b *fakeBuffer) Merge(msgs []*chat.Message) {
	for _, m := range msgs {
		b.msgs[m.ID] = m
	}
}

func (b *fakeBuffer) Len() int { return len(b.msgs) }

func (b *fakeBuffer) DropOutside(keep int) {
	if len(b.msgs) <= keep {
		return
	}
	var ids []int64
	for id := range b.msgs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids[:len(ids)-keep] {
		delete(b.msgs, id)
	}
}

func (b *fakeBuffer) sortedIDs() []int64 {
	var ids []int64
	for id := range b.msgs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

type countingAnchor struct {
	captures int
	restores int
}

func (a *countingAnchor) Capture() { a.captures++ }
func (a *countingAnchor) Restore() { a.restores++ }

func TestLoadInitialNewestPage(t *testing.T) {
	channelID := uuid.New()
	fetcher := newFakeFetcher(channelID, 120)
	buffer := newFakeBuffer()
	c := NewController(channelID, fetcher, buffer, nil, 50)

	require.NoError(t, c.LoadInitial(context.Background(), nil))

	assert.Equal(t, 50, buffer.Len())
	ids := buffer.sortedIDs()
	assert.Equal(t, int64(71), ids[0], "window holds the newest 50 messages")
	assert.Equal(t, int64(120), ids[49])
	assert.True(t, c.CanLoadMorePast())
	assert.False(t, c.CanLoadMoreFuture(), "future side is exhausted on the opening page")
}

func TestLoadInitialSmallChannelExhaustsBothSides(t *testing.T) {
	channelID := uuid.New()
	fetcher := newFakeFetcher(channelID, 10)
	buffer := newFakeBuffer()
	c := NewController(channelID, fetcher, buffer, nil, 50)

	require.NoError(t, c.LoadInitial(context.Background(), nil))

	assert.Equal(t, 10, buffer.Len())
	assert.False(t, c.CanLoadMorePast())
	assert.False(t, c.CanLoadMoreFuture())
}

func TestLoadInitialTargetCentersWindow(t *testing.T) {
	channelID := uuid.New()
	fetcher := newFakeFetcher(channelID, 120)
	buffer := newFakeBuffer()
	c := NewController(channelID, fetcher, buffer, nil, 50)

	target := int64(60)
	require.NoError(t, c.LoadInitial(context.Background(), &target))

	ids := buffer.sortedIDs()
	assert.Equal(t, int64(36), ids[0])
	assert.Equal(t, int64(85), ids[len(ids)-1])
	assert.True(t, c.CanLoadMorePast())
	assert.True(t, c.CanLoadMoreFuture())
}

func TestLoadMorePastExtendsUntilExhausted(t *testing.T) {
	channelID := uuid.New()
	fetcher := newFakeFetcher(channelID, 120)
	buffer := newFakeBuffer()
	c := NewController(channelID, fetcher, buffer, nil, 50)

	ctx := context.Background()
	require.NoError(t, c.LoadInitial(ctx, nil))

	c.lastRequest[pagination.DirectionPast] = time.Time{}
	require.NoError(t, c.LoadMore(ctx, pagination.DirectionPast))

	assert.Equal(t, 100, buffer.Len())
	assert.True(t, c.CanLoadMorePast())

	c.lastRequest[pagination.DirectionPast] = time.Time{}
	require.NoError(t, c.LoadMore(ctx, pagination.DirectionPast))

	assert.Equal(t, 120, buffer.Len())
	assert.False(t, c.CanLoadMorePast(), "channel start reached")

	// Exhausted direction short-circuits without a fetch.
	calls := len(fetcher.calls)
	c.lastRequest[pagination.DirectionPast] = time.Time{}
	require.NoError(t, c.LoadMore(ctx, pagination.DirectionPast))
	assert.Equal(t, calls, len(fetcher.calls))
}

func TestLoadMoreDebounced(t *testing.T) {
	channelID := uuid.New()
	fetcher := newFakeFetcher(channelID, 120)
	c := NewController(channelID, fetcher, newFakeBuffer(), nil, 50)

	ctx := context.Background()
	require.NoError(t, c.LoadInitial(ctx, nil))
	calls := len(fetcher.calls)

	// LoadInitial does not stamp lastRequest; the first LoadMore does.
	c.lastRequest[pagination.DirectionPast] = time.Time{}
	require.NoError(t, c.LoadMore(ctx, pagination.DirectionPast))
	require.Equal(t, calls+1, len(fetcher.calls))

	// A burst inside the debounce window collapses into that one request.
	require.NoError(t, c.LoadMore(ctx, pagination.DirectionPast))
	require.NoError(t, c.LoadMore(ctx, pagination.DirectionPast))
	assert.Equal(t, calls+1, len(fetcher.calls))
}

func TestBufferCapSuppressesUntilPruned(t *testing.T) {
	channelID := uuid.New()
	fetcher := newFakeFetcher(channelID, 500)
	buffer := newFakeBuffer()
	c := NewController(channelID, fetcher, buffer, nil, 100)

	ctx := context.Background()
	require.NoError(t, c.LoadInitial(ctx, nil))
	c.lastRequest[pagination.DirectionPast] = time.Time{}
	require.NoError(t, c.LoadMore(ctx, pagination.DirectionPast))
	require.Equal(t, 200, buffer.Len())

	calls := len(fetcher.calls)
	c.lastRequest[pagination.DirectionPast] = time.Time{}
	require.NoError(t, c.LoadMore(ctx, pagination.DirectionPast))
	assert.Equal(t, calls, len(fetcher.calls), "fetch suppressed at the cap")

	c.Prune()
	c.lastRequest[pagination.DirectionPast] = time.Time{}
	require.NoError(t, c.LoadMore(ctx, pagination.DirectionPast))
	assert.Equal(t, calls+1, len(fetcher.calls), "pruning resumes auto-fetch")
}

func TestStaleChannelResultDiscarded(t *testing.T) {
	channelID := uuid.New()
	fetcher := newFakeFetcher(channelID, 50)
	fetcher.respondAs = uuid.New().String()
	buffer := newFakeBuffer()
	c := NewController(channelID, fetcher, buffer, nil, 50)

	require.NoError(t, c.LoadInitial(context.Background(), nil))

	assert.Equal(t, 0, buffer.Len(), "result for an abandoned channel never touches the buffer")
	assert.False(t, c.CanLoadMorePast())
}

func TestAnchorWrapsPastPrepend(t *testing.T) {
	channelID := uuid.New()
	fetcher := newFakeFetcher(channelID, 120)
	anchor := &countingAnchor{}
	c := NewController(channelID, fetcher, newFakeBuffer(), anchor, 50)

	ctx := context.Background()
	require.NoError(t, c.LoadInitial(ctx, nil))
	assert.Equal(t, 0, anchor.captures, "initial load is not a prepend")

	c.lastRequest[pagination.DirectionPast] = time.Time{}
	require.NoError(t, c.LoadMore(ctx, pagination.DirectionPast))
	assert.Equal(t, 1, anchor.captures)
	assert.Equal(t, 1, anchor.restores)

	// Future loads scroll naturally; no anchoring.
	require.NoError(t, c.JumpTo(ctx, 60))
	c.lastRequest[pagination.DirectionFuture] = time.Time{}
	require.NoError(t, c.LoadMore(ctx, pagination.DirectionFuture))
	assert.Equal(t, 1, anchor.captures, "only past prepends are anchored")
}

func TestLastReadMessageIDIsMonotonic(t *testing.T) {
	channelID := uuid.New()
	fetcher := newFakeFetcher(channelID, 120)
	fetcher.lastRead = 80
	c := NewController(channelID, fetcher, newFakeBuffer(), nil, 50)

	ctx := context.Background()
	require.NoError(t, c.LoadInitial(ctx, nil))
	assert.Equal(t, int64(80), c.LastReadMessageID())

	fetcher.lastRead = 40
	c.lastRequest[pagination.DirectionPast] = time.Time{}
	require.NoError(t, c.LoadMore(ctx, pagination.DirectionPast))
	assert.Equal(t, int64(80), c.LastReadMessageID(), "a stale marker never regresses the value")
}

func TestJumpToResetsWindow(t *testing.T) {
	channelID := uuid.New()
	fetcher := newFakeFetcher(channelID, 120)
	buffer := newFakeBuffer()
	c := NewController(channelID, fetcher, buffer, nil, 50)

	ctx := context.Background()
	require.NoError(t, c.LoadInitial(ctx, nil))
	require.NoError(t, c.JumpTo(ctx, 10))

	last := fetcher.calls[len(fetcher.calls)-1]
	require.NotNil(t, last.TargetMessageID)
	assert.Equal(t, int64(10), *last.TargetMessageID)
	assert.True(t, c.CanLoadMoreFuture(), "jumping backward reopens the future side")
}

func TestDisposedControllerDoesNothing(t *testing.T) {
	channelID := uuid.New()
	fetcher := newFakeFetcher(channelID, 120)
	c := NewController(channelID, fetcher, newFakeBuffer(), nil, 50)
	c.Dispose()

	require.NoError(t, c.LoadInitial(context.Background(), nil))
	require.NoError(t, c.LoadMore(context.Background(), pagination.DirectionPast))

	assert.Empty(t, fetcher.calls)
}
