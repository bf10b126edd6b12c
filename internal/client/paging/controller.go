package paging

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/strand-chat/strand/internal/chat"
	"github.com/strand-chat/strand/internal/common/pagination"
)

// Page is one fetch result from the remote paged-message API.
type Page struct {
	Messages []*chat.Message
	Meta     pagination.Meta
}

type Fetcher interface {
	FetchPage(ctx context.Context, channelID uuid.UUID, req pagination.Request) (*Page, error)
}

// Buffer is the message store the controller feeds, normally the stream
// reconciler.
type Buffer interface {
	Merge(msgs []*chat.Message)
	Len() int
	DropOutside(keep int)
}

// Anchor preserves the viewport position across a prepend: Capture records
// the stable reference before older messages are inserted, Restore re-offsets
// the scroll position after render. A nil anchor is a no-op.
type Anchor interface {
	Capture()
	Restore()
}

const (
	// bufferCap bounds the local buffer; past it, automatic load-more is
	// suppressed until entries are pruned.
	bufferCap = 200

	// debounceWindow collapses a scroll burst into one fetch.
	debounceWindow = 150 * time.Millisecond
)

// Controller drives windowed paging for one channel. Not safe for concurrent
// use; the client event loop owns it, matching the buffer's threading model.
type Controller struct {
	channelID uuid.UUID
	fetcher   Fetcher
	buffer    Buffer
	anchor    Anchor
	pageSize  int

	canLoadMorePast   bool
	canLoadMoreFuture bool
	lastReadMessageID int64

	oldestID int64
	newestID int64

	inFlight    map[pagination.Direction]bool
	lastRequest map[pagination.Direction]time.Time

	disposed bool
}

func NewController(channelID uuid.UUID, fetcher Fetcher, buffer Buffer, anchor Anchor, pageSize int) *Controller {
	return &Controller{
		channelID:   channelID,
		fetcher:     fetcher,
		buffer:      buffer,
		anchor:      anchor,
		pageSize:    pageSize,
		inFlight:    make(map[pagination.Direction]bool),
		lastRequest: make(map[pagination.Direction]time.Time),
	}
}

// Dispose prevents any pending continuation from mutating state after
// teardown.
func (c *Controller) Dispose() {
	c.disposed = true
}

func (c *Controller) CanLoadMorePast() bool   { return c.canLoadMorePast }
func (c *Controller) CanLoadMoreFuture() bool { return c.canLoadMoreFuture }
func (c *Controller) LastReadMessageID() int64 {
	return c.lastReadMessageID
}

// LoadInitial fetches the opening window: the newest page, or one centered
// on the target when jumping to a specific message.
func (c *Controller) LoadInitial(ctx context.Context, targetMessageID *int64) error {
	if c.disposed {
		return nil
	}
	req := pagination.Request{
		PageSize:        c.pageSize,
		TargetMessageID: targetMessageID,
	}
	return c.fetch(ctx, req, "")
}

// LoadMore extends the window from one edge. Calls are debounced and a load
// already in flight for the same direction suppresses the new one; both
// collapse a burst of scroll events into a single request.
func (c *Controller) LoadMore(ctx context.Context, direction pagination.Direction) error {
	if c.disposed {
		return nil
	}
	switch direction {
	case pagination.DirectionPast:
		if !c.canLoadMorePast {
			return nil
		}
	case pagination.DirectionFuture:
		if !c.canLoadMoreFuture {
			return nil
		}
	default:
		return nil
	}

	if c.inFlight[direction] {
		return nil
	}
	if time.Since(c.lastRequest[direction]) < debounceWindow {
		return nil
	}
	if c.buffer.Len() >= bufferCap {
		// The cap suppresses auto-fetch until the buffer is pruned.
		return nil
	}

	var edge int64
	if direction == pagination.DirectionPast {
		edge = c.oldestID
	} else {
		edge = c.newestID
	}
	if edge == 0 {
		return nil
	}

	req := pagination.Request{
		PageSize:  c.pageSize,
		MessageID: &edge,
		Direction: direction,
	}
	return c.fetch(ctx, req, direction)
}

// JumpTo abandons the current window and recenters on the message.
func (c *Controller) JumpTo(ctx context.Context, messageID int64) error {
	if c.disposed {
		return nil
	}
	c.oldestID = 0
	c.newestID = 0
	return c.LoadInitial(ctx, &messageID)
}

// Prune drops the buffer back to half the cap so auto-fetch can resume.
// Pruned regions are reachable again through future loads from the kept edge.
func (c *Controller) Prune() {
	if c.disposed {
		return
	}
	c.buffer.DropOutside(bufferCap / 2)
}

func (c *Controller) fetch(ctx context.Context, req pagination.Request, direction pagination.Direction) error {
	if direction != "" {
		c.inFlight[direction] = true
		c.lastRequest[direction] = time.Now()
	}

	page, err := c.fetcher.FetchPage(ctx, c.channelID, req)

	if direction != "" {
		c.inFlight[direction] = false
	}
	if err != nil {
		return err
	}
	// A fetch that raced channel teardown, or whose result belongs to a
	// since-abandoned channel, must not touch the buffer.
	if c.disposed || page.Meta.ChannelID != c.channelID.String() {
		return nil
	}

	prepending := direction == pagination.DirectionPast
	if prepending && c.anchor != nil {
		c.anchor.Capture()
	}

	c.buffer.Merge(page.Messages)
	c.extendEdges(page.Messages)

	switch direction {
	case pagination.DirectionPast:
		c.canLoadMorePast = page.Meta.CanLoadMorePast
	case pagination.DirectionFuture:
		c.canLoadMoreFuture = page.Meta.CanLoadMoreFuture
	default:
		c.canLoadMorePast = page.Meta.CanLoadMorePast
		c.canLoadMoreFuture = page.Meta.CanLoadMoreFuture
	}
	if page.Meta.LastReadMessageID > c.lastReadMessageID {
		c.lastReadMessageID = page.Meta.LastReadMessageID
	}

	if prepending && c.anchor != nil {
		c.anchor.Restore()
	}
	return nil
}

func (c *Controller) extendEdges(msgs []*chat.Message) {
	for _, msg := range msgs {
		if c.oldestID == 0 || msg.ID < c.oldestID {
			c.oldestID = msg.ID
		}
		if msg.ID > c.newestID {
			c.newestID = msg.ID
		}
	}
}
