package ingest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/strand-chat/strand/internal/chat"
	"github.com/strand-chat/strand/internal/common/errors"
	"github.com/strand-chat/strand/internal/cook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type pipelineFixture struct {
	pipeline  *Pipeline
	channel   *chat.Channel
	user      uuid.UUID
	staffUser uuid.UUID
	messages  *memMessages
	threads   *memThreads
	channels  *memChannels
	publisher *memPublisher
	queue     *memQueue
	drafts    *memDrafts
	webhooks  *memWebhooks
}

func newPipelineFixture(t *testing.T, status chat.ChannelStatus) *pipelineFixture {
	t.Helper()

	f := &pipelineFixture{
		channel: &chat.Channel{
			ID:     uuid.New(),
			Name:   "general",
			Status: status,
		},
		user:      uuid.New(),
		staffUser: uuid.New(),
		messages:  newMemMessages(),
		threads:   newMemThreads(),
		publisher: &memPublisher{},
		queue:     &memQueue{},
		drafts:    &memDrafts{},
		webhooks:  &memWebhooks{},
	}
	f.channels = newMemChannels(f.channel)

	caps := &fakeCaps{
		members: map[uuid.UUID]bool{f.user: true, f.staffUser: true},
		staff:   map[uuid.UUID]bool{f.staffUser: true},
		canDM:   true,
	}

	f.pipeline = NewPipeline(Options{
		Validator: NewValidator(f.messages, f.threads, caps, MaxLengthRule(1000)),
		Channels:  f.channels,
		Messages:  f.messages,
		Threads:   f.threads,
		Uploads:   &memUploads{},
		Drafts:    f.drafts,
		Webhooks:  f.webhooks,
		Tx:        passthroughTx{},
		Renderer:  cook.NewRenderer(),
		Publisher: f.publisher,
		Queue:     f.queue,
		Limiter:   fixedLimiter{allow: true},
		Logger:    zap.NewNop(),
	})
	return f
}

func (f *pipelineFixture) send(req CreateRequest) Result {
	if req.ChannelID == uuid.Nil {
		req.ChannelID = f.channel.ID
	}
	if req.UserID == uuid.Nil {
		req.UserID = f.user
	}
	return f.pipeline.Create(context.Background(), req)
}

func TestCreatePlainMessageGetsNoThread(t *testing.T) {
	f := newPipelineFixture(t, chat.ChannelOpen)

	result := f.send(CreateRequest{Content: "hello world", StagedID: "abc123"})
	require.True(t, result.OK(), "unexpected error: %v", result.Err)

	assert.Nil(t, result.Message.ThreadID, "message with no reply-to must never get a thread")
	assert.NotZero(t, result.Message.ID)
	assert.NotEmpty(t, result.Message.Cooked)
	assert.Empty(t, f.threads.byID)
}

func TestCreatePublishesSentEventWithStagedID(t *testing.T) {
	f := newPipelineFixture(t, chat.ChannelOpen)

	result := f.send(CreateRequest{Content: "hello", StagedID: "abc123"})
	require.True(t, result.OK())

	require.Len(t, f.publisher.events, 1)
	ev := f.publisher.events[0]
	assert.Equal(t, chat.EventSent, ev.Type)
	assert.Equal(t, "abc123", ev.StagedID)
	assert.Equal(t, result.Message.ID, ev.Message.ID)
}

func TestCreateRunsPostCommitFollowups(t *testing.T) {
	f := newPipelineFixture(t, chat.ChannelOpen)

	result := f.send(CreateRequest{Content: "hello"})
	require.True(t, result.OK())

	assert.Equal(t, 1, f.drafts.deletes, "sent message should clear the draft")
	assert.Len(t, f.queue.jobs, 1, "post-processing job should be enqueued")
	assert.Len(t, f.channels.bumps, 1, "channel last-message-at should be bumped")
}

func TestCreateReplyJoinsExistingThread(t *testing.T) {
	f := newPipelineFixture(t, chat.ChannelOpen)

	thread := f.threads.add(&chat.Thread{ID: uuid.New(), ChannelID: f.channel.ID, RootMessageID: 1})
	root := f.messages.add(&chat.Message{ChannelID: f.channel.ID, AuthorID: f.user, Content: "root", ThreadID: &thread.ID})

	result := f.send(CreateRequest{Content: "reply", ReplyToID: &root.ID})
	require.True(t, result.OK())

	require.NotNil(t, result.Message.ThreadID)
	assert.Equal(t, thread.ID, *result.Message.ThreadID)
	assert.Len(t, f.threads.byID, 1, "no new thread may be created when the chain has one")
}

func TestCreateReplyChainCreatesSingleThread(t *testing.T) {
	f := newPipelineFixture(t, chat.ChannelOpen)

	// Chain of three, none threaded yet.
	root := f.messages.add(&chat.Message{ChannelID: f.channel.ID, AuthorID: f.user, Content: "root"})
	mid := f.messages.add(&chat.Message{ChannelID: f.channel.ID, AuthorID: f.user, Content: "mid", ReplyToID: &root.ID})
	leaf := f.messages.add(&chat.Message{ChannelID: f.channel.ID, AuthorID: f.user, Content: "leaf", ReplyToID: &mid.ID})

	result := f.send(CreateRequest{Content: "reply", ReplyToID: &leaf.ID})
	require.True(t, result.OK())

	require.NotNil(t, result.Message.ThreadID)
	threadID := *result.Message.ThreadID

	assert.Len(t, f.threads.byID, 1, "exactly one thread must be created")
	for _, ancestor := range []*chat.Message{root, mid, leaf} {
		require.NotNil(t, ancestor.ThreadID, "ancestor %d missing thread", ancestor.ID)
		assert.Equal(t, threadID, *ancestor.ThreadID)
	}
	assert.Equal(t, root.ID, f.threads.byID[threadID].RootMessageID)
}

func TestBackfillPreservesInconsistentAncestorThread(t *testing.T) {
	f := newPipelineFixture(t, chat.ChannelOpen)

	rootThread := f.threads.add(&chat.Thread{ID: uuid.New(), ChannelID: f.channel.ID, RootMessageID: 1})
	strayThread := f.threads.add(&chat.Thread{ID: uuid.New(), ChannelID: f.channel.ID, RootMessageID: 99})

	root := f.messages.add(&chat.Message{ChannelID: f.channel.ID, AuthorID: f.user, Content: "root", ThreadID: &rootThread.ID})
	// An inconsistent middle ancestor carrying a different thread.
	mid := f.messages.add(&chat.Message{ChannelID: f.channel.ID, AuthorID: f.user, Content: "mid", ReplyToID: &root.ID, ThreadID: &strayThread.ID})

	result := f.send(CreateRequest{Content: "reply", ReplyToID: &mid.ID})
	require.True(t, result.OK())

	// Nearest-to-root wins for the new message.
	require.NotNil(t, result.Message.ThreadID)
	assert.Equal(t, rootThread.ID, *result.Message.ThreadID)

	// The inconsistency is preserved, never repaired.
	assert.Equal(t, strayThread.ID, *mid.ThreadID)
}

func TestCreateToClosedChannelFails(t *testing.T) {
	f := newPipelineFixture(t, chat.ChannelClosed)

	result := f.send(CreateRequest{Content: "hello"})
	require.False(t, result.OK())
	assert.Equal(t, ReasonClosed, errors.ReasonOf(result.Err))
	assert.Empty(t, f.publisher.events)
}

func TestCreateToReadOnlyChannel(t *testing.T) {
	f := newPipelineFixture(t, chat.ChannelReadOnly)

	result := f.send(CreateRequest{Content: "hello"})
	require.False(t, result.OK())
	assert.Equal(t, ReasonReadOnly, errors.ReasonOf(result.Err))

	// Staff are exempt from the read-only restriction.
	result = f.send(CreateRequest{Content: "hello", UserID: f.staffUser})
	assert.True(t, result.OK(), "staff should post into read-only channels: %v", result.Err)
}

func TestCreateToArchivedChannelFails(t *testing.T) {
	f := newPipelineFixture(t, chat.ChannelArchived)

	result := f.send(CreateRequest{Content: "hello"})
	require.False(t, result.OK())
	assert.Equal(t, ReasonArchived, errors.ReasonOf(result.Err))
}

func TestCreateByNonMemberFails(t *testing.T) {
	f := newPipelineFixture(t, chat.ChannelOpen)

	result := f.send(CreateRequest{Content: "hello", UserID: uuid.New()})
	require.False(t, result.OK())
	assert.Equal(t, ReasonChannelPostingDisallowed, errors.ReasonOf(result.Err))
}

func TestCreateEmptyContentFails(t *testing.T) {
	f := newPipelineFixture(t, chat.ChannelOpen)

	result := f.send(CreateRequest{Content: "   "})
	require.False(t, result.OK())
	assert.Equal(t, ReasonInvalidContent, errors.ReasonOf(result.Err))
}

func TestCreateOverlongContentFails(t *testing.T) {
	f := newPipelineFixture(t, chat.ChannelOpen)

	long := make([]byte, 1001)
	for i := range long {
		long[i] = 'a'
	}
	result := f.send(CreateRequest{Content: string(long)})
	require.False(t, result.OK())
	assert.Equal(t, ReasonInvalidContent, errors.ReasonOf(result.Err))
}

func TestCreateReplyToMissingMessageFails(t *testing.T) {
	f := newPipelineFixture(t, chat.ChannelOpen)

	missing := int64(4242)
	result := f.send(CreateRequest{Content: "reply", ReplyToID: &missing})
	require.False(t, result.OK())
	assert.Equal(t, ReasonOriginalNotFound, errors.ReasonOf(result.Err))
}

func TestCreateReplyToDeletedRootFails(t *testing.T) {
	f := newPipelineFixture(t, chat.ChannelOpen)

	now := time.Now()
	root := f.messages.add(&chat.Message{ChannelID: f.channel.ID, AuthorID: f.user, Content: "root", DeletedAt: &now})
	reply := f.messages.add(&chat.Message{ChannelID: f.channel.ID, AuthorID: f.user, Content: "mid", ReplyToID: &root.ID})

	result := f.send(CreateRequest{Content: "reply", ReplyToID: &reply.ID})
	require.False(t, result.OK())
	assert.Equal(t, ReasonOriginalNotFound, errors.ReasonOf(result.Err))
}

func TestCreateWithForeignThreadFails(t *testing.T) {
	f := newPipelineFixture(t, chat.ChannelOpen)

	foreign := f.threads.add(&chat.Thread{ID: uuid.New(), ChannelID: uuid.New(), RootMessageID: 7})

	result := f.send(CreateRequest{Content: "hello", ThreadID: &foreign.ID})
	require.False(t, result.OK())
	assert.Equal(t, ReasonThreadChannelMismatch, errors.ReasonOf(result.Err))
}

func TestCreateWithMismatchedThreadFails(t *testing.T) {
	f := newPipelineFixture(t, chat.ChannelOpen)

	chainThread := f.threads.add(&chat.Thread{ID: uuid.New(), ChannelID: f.channel.ID, RootMessageID: 1})
	otherThread := f.threads.add(&chat.Thread{ID: uuid.New(), ChannelID: f.channel.ID, RootMessageID: 50})
	root := f.messages.add(&chat.Message{ChannelID: f.channel.ID, AuthorID: f.user, Content: "root", ThreadID: &chainThread.ID})

	result := f.send(CreateRequest{Content: "reply", ReplyToID: &root.ID, ThreadID: &otherThread.ID})
	require.False(t, result.OK())
	assert.Equal(t, ReasonThreadParentMismatch, errors.ReasonOf(result.Err))
}

func TestCreateRateLimited(t *testing.T) {
	f := newPipelineFixture(t, chat.ChannelOpen)
	f.pipeline.limiter = fixedLimiter{allow: false}

	result := f.send(CreateRequest{Content: "hello"})
	require.False(t, result.OK())
	assert.Equal(t, errors.CodeRateLimited, result.Err.(*errors.AppError).Code)
}

func TestPostCommitFailureDoesNotFailTheSend(t *testing.T) {
	f := newPipelineFixture(t, chat.ChannelOpen)
	f.queue.err = fmt.Errorf("redis down")

	result := f.send(CreateRequest{Content: "hello"})
	assert.True(t, result.OK(), "post-commit failures must stay silent: %v", result.Err)
	assert.NotNil(t, result.Message)
}

func TestCreateRecordsWebhookEvent(t *testing.T) {
	f := newPipelineFixture(t, chat.ChannelOpen)

	result := f.send(CreateRequest{
		Content:      "from hook",
		WebhookEvent: &WebhookEvent{ExternalID: "ext-1", Payload: []byte(`{"a":1}`)},
	})
	require.True(t, result.OK())
	assert.Equal(t, []string{"ext-1"}, f.webhooks.recorded)
}

func TestCreateWithExplicitMatchingThread(t *testing.T) {
	f := newPipelineFixture(t, chat.ChannelOpen)

	thread := f.threads.add(&chat.Thread{ID: uuid.New(), ChannelID: f.channel.ID, RootMessageID: 1})
	root := f.messages.add(&chat.Message{ChannelID: f.channel.ID, AuthorID: f.user, Content: "root", ThreadID: &thread.ID})

	result := f.send(CreateRequest{Content: "reply", ReplyToID: &root.ID, ThreadID: &thread.ID})
	require.True(t, result.OK())
	assert.Equal(t, thread.ID, *result.Message.ThreadID)
}
