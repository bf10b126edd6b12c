package ingest

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/strand-chat/strand/internal/chat"
	"github.com/strand-chat/strand/internal/common/errors"
	"github.com/strand-chat/strand/internal/infra/db"
	"go.uber.org/zap"
)

// CreateRequest is the ingestion entrypoint payload.
type CreateRequest struct {
	ChannelID    uuid.UUID
	UserID       uuid.UUID
	Content      string
	ReplyToID    *int64
	ThreadID     *uuid.UUID
	StagedID     string
	WebhookEvent *WebhookEvent
	UploadIDs    []uuid.UUID
}

type WebhookEvent struct {
	ExternalID string
	Payload    []byte
}

// Result carries either the persisted message or the first error
// encountered. The pipeline never raises past its own boundary.
type Result struct {
	Message *chat.Message
	Err     error
}

func (r Result) OK() bool {
	return r.Err == nil
}

// stageContext is the mutable state threaded through the stage table.
type stageContext struct {
	req     CreateRequest
	channel *chat.Channel
	uploads []chat.Upload
	chain   *ChainInfo
	thread  *chat.Thread
	msg     *chat.Message
	tx      db.Querier
}

type stageFn func(ctx context.Context, sc *stageContext) error

type stage struct {
	name string
	fn   stageFn
}

// Pipeline orchestrates message creation: validation, thread resolution,
// transactional persistence, and best-effort post-commit follow-ups.
type Pipeline struct {
	validator  *Validator
	channels   ChannelStore
	messages   MessageStore
	threads    ThreadStore
	uploads    UploadStore
	drafts     DraftStore
	webhooks   WebhookStore
	tx         Transactor
	renderer   Renderer
	publisher  Publisher
	queue      JobQueue
	notifier   Notifier
	domain     DomainEmitter
	limiter    SendLimiter
	metrics    Metrics
	logger     *zap.Logger
	depthLimit int

	uploadsEnabled bool

	pre  []stage
	txn  []stage
	post []stage
}

type Options struct {
	Validator      *Validator
	Channels       ChannelStore
	Messages       MessageStore
	Threads        ThreadStore
	Uploads        UploadStore
	Drafts         DraftStore
	Webhooks       WebhookStore
	Tx             Transactor
	Renderer       Renderer
	Publisher      Publisher
	Queue          JobQueue
	Notifier       Notifier
	Domain         DomainEmitter
	Limiter        SendLimiter
	Metrics        Metrics
	Logger         *zap.Logger
	DepthLimit     int
	UploadsEnabled bool
}

func NewPipeline(opts Options) *Pipeline {
	if opts.DepthLimit <= 0 {
		opts.DepthLimit = 100
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	p := &Pipeline{
		validator:      opts.Validator,
		channels:       opts.Channels,
		messages:       opts.Messages,
		threads:        opts.Threads,
		uploads:        opts.Uploads,
		drafts:         opts.Drafts,
		webhooks:       opts.Webhooks,
		tx:             opts.Tx,
		renderer:       opts.Renderer,
		publisher:      opts.Publisher,
		queue:          opts.Queue,
		notifier:       opts.Notifier,
		domain:         opts.Domain,
		limiter:        opts.Limiter,
		metrics:        opts.Metrics,
		logger:         opts.Logger,
		depthLimit:     opts.DepthLimit,
		uploadsEnabled: opts.UploadsEnabled,
	}

	p.pre = []stage{
		{"rate_limit", p.stageRateLimit},
		{"check_channel", p.stageCheckChannel},
		{"resolve_uploads", p.stageResolveUploads},
		{"validate_content", p.stageValidateContent},
	}
	p.txn = []stage{
		{"validate_chain", p.stageValidateChain},
		{"resolve_thread", p.stageResolveThread},
		{"cook", p.stageCook},
		{"persist", p.stagePersist},
		{"record_webhook_event", p.stageRecordWebhookEvent},
		{"backfill_thread", p.stageBackfillThread},
		{"attach_uploads", p.stageAttachUploads},
	}
	p.post = []stage{
		{"delete_draft", p.stageDeleteDraft},
		{"publish", p.stagePublish},
		{"enqueue_postprocess", p.stageEnqueuePostprocess},
		{"notify_mentions", p.stageNotifyMentions},
		{"bump_channel", p.stageBumpChannel},
		{"emit_domain_event", p.stageEmitDomainEvent},
	}

	return p
}

// Create runs the full ingestion pipeline. Pre-transaction and transactional
// stage failures abort the operation and roll back atomically. Post-commit
// stages are best-effort: a failure there is logged and counted but never
// undoes the persisted message and never reaches the submitting user.
func (p *Pipeline) Create(ctx context.Context, req CreateRequest) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("ingestion panic",
				zap.String("channel_id", req.ChannelID.String()),
				zap.Any("panic", r),
			)
			result = Result{Err: errors.Internal("message creation failed", fmt.Errorf("panic: %v", r))}
		}
	}()

	sc := &stageContext{req: req}

	for _, s := range p.pre {
		if err := s.fn(ctx, sc); err != nil {
			p.countFailure(s.name)
			return Result{Err: p.stageError(s.name, err)}
		}
	}

	err := p.tx.InTx(ctx, func(q db.Querier) error {
		sc.tx = q
		for _, s := range p.txn {
			if err := s.fn(ctx, sc); err != nil {
				p.countFailure(s.name)
				return p.stageError(s.name, err)
			}
		}
		return nil
	})
	sc.tx = nil
	if err != nil {
		return Result{Err: err}
	}

	for _, s := range p.post {
		if err := s.fn(ctx, sc); err != nil {
			p.countFailure(s.name)
			p.logger.Warn("post-commit stage failed",
				zap.String("stage", s.name),
				zap.Int64("message_id", sc.msg.ID),
				zap.Error(err),
			)
		}
	}

	if p.metrics != nil {
		p.metrics.RecordMessageCreated(sc.msg.ThreadID != nil)
	}
	return Result{Message: sc.msg}
}

func (p *Pipeline) countFailure(stage string) {
	if p.metrics != nil {
		p.metrics.RecordPipelineFailure(stage)
	}
}

// stageError keeps typed failures intact and wraps anything else so the
// caller always sees an AppError.
func (p *Pipeline) stageError(name string, err error) error {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return err
	}
	return errors.Internal(fmt.Sprintf("stage %s failed", name), err)
}

func (p *Pipeline) stageRateLimit(ctx context.Context, sc *stageContext) error {
	if p.limiter == nil {
		return nil
	}
	key := fmt.Sprintf("message:%s", sc.req.UserID.String())
	ok, err := p.limiter.Allow(ctx, key)
	if err != nil {
		// Limiter trouble should not block sends.
		p.logger.Warn("rate limiter unavailable", zap.Error(err))
		return nil
	}
	if !ok {
		return errors.RateLimited("sending too fast")
	}
	return nil
}

func (p *Pipeline) stageCheckChannel(ctx context.Context, sc *stageContext) error {
	channel, err := p.channels.GetByID(ctx, sc.req.ChannelID)
	if err != nil {
		return err
	}
	sc.channel = channel
	return p.validator.ValidateChannel(ctx, sc.req.UserID, channel)
}

func (p *Pipeline) stageResolveUploads(ctx context.Context, sc *stageContext) error {
	if !p.uploadsEnabled || len(sc.req.UploadIDs) == 0 {
		return nil
	}
	ups, err := p.uploads.ResolveOwned(ctx, sc.req.UserID, sc.req.UploadIDs)
	if err != nil {
		return err
	}
	sc.uploads = ups
	return nil
}

func (p *Pipeline) stageValidateContent(ctx context.Context, sc *stageContext) error {
	return p.validator.ValidateContent(sc.req.Content, len(sc.uploads))
}

func (p *Pipeline) stageValidateChain(ctx context.Context, sc *stageContext) error {
	chain, err := p.validator.ValidateChain(ctx, sc.tx, sc.channel, sc.req.ReplyToID, sc.req.ThreadID, p.depthLimit)
	if err != nil {
		return err
	}
	sc.chain = chain
	return nil
}

// stageResolveThread determines the message's thread: the explicit one, the
// one the chain already implies, or a fresh thread owned by the chain's
// root. A message with no reply-to and no explicit thread never gets one.
func (p *Pipeline) stageResolveThread(ctx context.Context, sc *stageContext) error {
	switch {
	case sc.req.ThreadID != nil:
		sc.thread = &chat.Thread{ID: *sc.req.ThreadID}
	case sc.chain != nil && sc.chain.ImpliedThread != nil:
		sc.thread = &chat.Thread{ID: *sc.chain.ImpliedThread}
	case sc.chain != nil:
		root := sc.chain.Root()
		thread, err := p.threads.GetOrCreateForRoot(ctx, sc.tx, sc.channel.ID, root.ID, root.AuthorID)
		if err != nil {
			return err
		}
		sc.thread = thread
	}
	return nil
}

func (p *Pipeline) stageCook(ctx context.Context, sc *stageContext) error {
	cooked, err := p.renderer.Cook(sc.req.Content)
	if err != nil {
		return fmt.Errorf("cook content: %w", err)
	}

	msg := &chat.Message{
		ChannelID: sc.channel.ID,
		AuthorID:  sc.req.UserID,
		Content:   sc.req.Content,
		Cooked:    cooked,
		ReplyToID: sc.req.ReplyToID,
	}
	if sc.thread != nil {
		threadID := sc.thread.ID
		msg.ThreadID = &threadID
	}
	sc.msg = msg
	return nil
}

func (p *Pipeline) stagePersist(ctx context.Context, sc *stageContext) error {
	return p.messages.Create(ctx, sc.tx, sc.msg)
}

func (p *Pipeline) stageRecordWebhookEvent(ctx context.Context, sc *stageContext) error {
	if sc.req.WebhookEvent == nil {
		return nil
	}
	return p.webhooks.Record(ctx, sc.tx, sc.msg.ID, sc.req.WebhookEvent.ExternalID, sc.req.WebhookEvent.Payload)
}

func (p *Pipeline) stageBackfillThread(ctx context.Context, sc *stageContext) error {
	if sc.msg.ThreadID == nil || sc.chain == nil {
		return nil
	}
	ids := make([]int64, 0, len(sc.chain.Entries))
	for _, e := range sc.chain.Entries {
		ids = append(ids, e.ID)
	}
	_, err := p.messages.BackfillThread(ctx, sc.tx, *sc.msg.ThreadID, ids)
	return err
}

func (p *Pipeline) stageAttachUploads(ctx context.Context, sc *stageContext) error {
	if len(sc.uploads) == 0 {
		return nil
	}
	if err := p.uploads.Attach(ctx, sc.tx, sc.msg.ID, sc.uploads); err != nil {
		return err
	}
	sc.msg.Uploads = sc.uploads
	return nil
}

func (p *Pipeline) stageDeleteDraft(ctx context.Context, sc *stageContext) error {
	return p.drafts.Delete(ctx, sc.channel.ID, sc.req.UserID)
}

func (p *Pipeline) stagePublish(ctx context.Context, sc *stageContext) error {
	p.publisher.Publish(ctx, sc.channel.ID, &chat.Event{
		Type:      chat.EventSent,
		ChannelID: sc.channel.ID,
		Message:   sc.msg,
		StagedID:  sc.req.StagedID,
	})
	return nil
}

func (p *Pipeline) stageEnqueuePostprocess(ctx context.Context, sc *stageContext) error {
	return p.queue.Enqueue(ctx, map[string]int64{"message_id": sc.msg.ID})
}

func (p *Pipeline) stageNotifyMentions(ctx context.Context, sc *stageContext) error {
	if p.notifier == nil {
		return nil
	}
	p.notifier.MessageCreated(ctx, sc.msg, sc.msg.CreatedAt)
	return nil
}

func (p *Pipeline) stageBumpChannel(ctx context.Context, sc *stageContext) error {
	return p.channels.BumpLastMessageAt(ctx, sc.channel.ID, sc.msg.CreatedAt)
}

func (p *Pipeline) stageEmitDomainEvent(ctx context.Context, sc *stageContext) error {
	if p.domain == nil {
		return nil
	}
	p.domain.Emit(chat.DomainEvent{
		Name:      "chat_message_created",
		Message:   sc.msg,
		Channel:   sc.channel,
		Timestamp: time.Now(),
	})
	return nil
}
