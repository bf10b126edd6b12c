package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/strand-chat/strand/internal/chat"
	"github.com/strand-chat/strand/internal/common/errors"
	"github.com/strand-chat/strand/internal/infra/db"
)

// In-memory doubles for the pipeline's store interfaces. Transactions are a
// pass-through; the orchestration under test never inspects the Querier.

type memMessages struct {
	nextID    int64
	msgs      map[int64]*chat.Message
	backfills int
}

func newMemMessages() *memMessages {
	return &memMessages{nextID: 1, msgs: make(map[int64]*chat.Message)}
}

func (m *memMessages) add(msg *chat.Message) *chat.Message {
	if msg.ID == 0 {
		msg.ID = m.nextID
		m.nextID++
	} else if msg.ID >= m.nextID {
		m.nextID = msg.ID + 1
	}
	m.msgs[msg.ID] = msg
	return msg
}

func (m *memMessages) Create(ctx context.Context, q db.Querier, msg *chat.Message) error {
	msg.CreatedAt = time.Now()
	m.add(msg)
	return nil
}

func (m *memMessages) ResolveChain(ctx context.Context, q db.Querier, messageID int64, depthLimit int) ([]chat.ChainEntry, error) {
	var entries []chat.ChainEntry
	id := messageID
	for depth := 1; depth <= depthLimit; depth++ {
		msg, ok := m.msgs[id]
		if !ok {
			break
		}
		entries = append(entries, chat.ChainEntry{
			ID:        msg.ID,
			ReplyToID: msg.ReplyToID,
			ThreadID:  msg.ThreadID,
			AuthorID:  msg.AuthorID,
			ChannelID: msg.ChannelID,
			DeletedAt: msg.DeletedAt,
			Depth:     depth,
		})
		if msg.ReplyToID == nil {
			break
		}
		id = *msg.ReplyToID
	}
	if len(entries) == 0 {
		return nil, errors.NotFound("message not found")
	}
	return entries, nil
}

func (m *memMessages) BackfillThread(ctx context.Context, q db.Querier, threadID uuid.UUID, ids []int64) (int64, error) {
	var n int64
	for _, id := range ids {
		msg, ok := m.msgs[id]
		if !ok || msg.ThreadID != nil {
			continue
		}
		tid := threadID
		msg.ThreadID = &tid
		n++
	}
	m.backfills++
	return n, nil
}

type memThreads struct {
	byID   map[uuid.UUID]*chat.Thread
	byRoot map[int64]*chat.Thread
}

func newMemThreads() *memThreads {
	return &memThreads{
		byID:   make(map[uuid.UUID]*chat.Thread),
		byRoot: make(map[int64]*chat.Thread),
	}
}

func (t *memThreads) add(thread *chat.Thread) *chat.Thread {
	t.byID[thread.ID] = thread
	t.byRoot[thread.RootMessageID] = thread
	return thread
}

func (t *memThreads) GetByID(ctx context.Context, q db.Querier, id uuid.UUID) (*chat.Thread, error) {
	if thread, ok := t.byID[id]; ok {
		return thread, nil
	}
	return nil, errors.NotFound("thread not found")
}

func (t *memThreads) GetOrCreateForRoot(ctx context.Context, q db.Querier, channelID uuid.UUID, rootMessageID int64, rootAuthorID uuid.UUID) (*chat.Thread, error) {
	if thread, ok := t.byRoot[rootMessageID]; ok {
		return thread, nil
	}
	return t.add(&chat.Thread{
		ID:               uuid.New(),
		ChannelID:        channelID,
		RootMessageID:    rootMessageID,
		OriginalAuthorID: rootAuthorID,
		CreatedAt:        time.Now(),
	}), nil
}

type memChannels struct {
	channels map[uuid.UUID]*chat.Channel
	bumps    []time.Time
}

func newMemChannels(chs ...*chat.Channel) *memChannels {
	m := &memChannels{channels: make(map[uuid.UUID]*chat.Channel)}
	for _, ch := range chs {
		m.channels[ch.ID] = ch
	}
	return m
}

func (m *memChannels) GetByID(ctx context.Context, id uuid.UUID) (*chat.Channel, error) {
	if ch, ok := m.channels[id]; ok {
		return ch, nil
	}
	return nil, errors.NotFound("channel not found")
}

func (m *memChannels) BumpLastMessageAt(ctx context.Context, id uuid.UUID, at time.Time) error {
	m.bumps = append(m.bumps, at)
	return nil
}

// fakeCaps answers from fixed membership and staff sets.
type fakeCaps struct {
	members map[uuid.UUID]bool
	staff   map[uuid.UUID]bool
	canDM   bool
}

func (c *fakeCaps) CanPost(ctx context.Context, userID uuid.UUID, channel *chat.Channel) (bool, error) {
	if !c.members[userID] {
		return false, nil
	}
	switch channel.Status {
	case chat.ChannelOpen:
		return true, nil
	case chat.ChannelReadOnly:
		return c.staff[userID], nil
	default:
		return false, nil
	}
}

func (c *fakeCaps) CanDirectMessage(ctx context.Context, userID uuid.UUID) (bool, error) {
	return c.canDM, nil
}

func (c *fakeCaps) IsStaff(ctx context.Context, userID, channelID uuid.UUID) (bool, error) {
	return c.staff[userID], nil
}

type memPublisher struct {
	events []*chat.Event
}

func (p *memPublisher) Publish(ctx context.Context, channelID uuid.UUID, event *chat.Event) {
	p.events = append(p.events, event)
}

type memQueue struct {
	jobs []interface{}
	err  error
}

func (q *memQueue) Enqueue(ctx context.Context, job interface{}) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type memDrafts struct {
	deletes int
}

func (d *memDrafts) Delete(ctx context.Context, channelID, userID uuid.UUID) error {
	d.deletes++
	return nil
}

type memUploads struct {
	owned map[uuid.UUID]chat.Upload
}

func (u *memUploads) ResolveOwned(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]chat.Upload, error) {
	var ups []chat.Upload
	for _, id := range ids {
		up, ok := u.owned[id]
		if !ok || up.UserID != userID {
			return nil, errors.NotFound(fmt.Sprintf("upload %s not found", id))
		}
		ups = append(ups, up)
	}
	return ups, nil
}

func (u *memUploads) Attach(ctx context.Context, q db.Querier, messageID int64, ups []chat.Upload) error {
	return nil
}

type memWebhooks struct {
	recorded []string
}

func (w *memWebhooks) Record(ctx context.Context, q db.Querier, messageID int64, externalID string, payload []byte) error {
	w.recorded = append(w.recorded, externalID)
	return nil
}

type passthroughTx struct{}

func (passthroughTx) InTx(ctx context.Context, fn func(q db.Querier) error) error {
	return fn(nil)
}

type fixedLimiter struct {
	allow bool
}

func (l fixedLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return l.allow, nil
}
