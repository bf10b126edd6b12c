package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/strand-chat/strand/internal/chat"
	"github.com/strand-chat/strand/internal/infra/db"
)

// The pipeline depends on narrow store interfaces so its orchestration is
// testable without a database; the pgx repositories satisfy them.

type ChannelStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*chat.Channel, error)
	BumpLastMessageAt(ctx context.Context, id uuid.UUID, at time.Time) error
}

type MessageStore interface {
	Create(ctx context.Context, q db.Querier, msg *chat.Message) error
	ResolveChain(ctx context.Context, q db.Querier, messageID int64, depthLimit int) ([]chat.ChainEntry, error)
	BackfillThread(ctx context.Context, q db.Querier, threadID uuid.UUID, messageIDs []int64) (int64, error)
}

type ThreadStore interface {
	GetByID(ctx context.Context, q db.Querier, id uuid.UUID) (*chat.Thread, error)
	GetOrCreateForRoot(ctx context.Context, q db.Querier, channelID uuid.UUID, rootMessageID int64, rootAuthorID uuid.UUID) (*chat.Thread, error)
}

type UploadStore interface {
	ResolveOwned(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]chat.Upload, error)
	Attach(ctx context.Context, q db.Querier, messageID int64, ups []chat.Upload) error
}

type DraftStore interface {
	Delete(ctx context.Context, channelID, userID uuid.UUID) error
}

type WebhookStore interface {
	Record(ctx context.Context, q db.Querier, messageID int64, externalID string, payload []byte) error
}

// Transactor wraps the transactional stages in one durable transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(q db.Querier) error) error
}

type Publisher interface {
	Publish(ctx context.Context, channelID uuid.UUID, event *chat.Event)
}

type JobQueue interface {
	Enqueue(ctx context.Context, job interface{}) error
}

// Notifier is the mention/notification subsystem, external to this slice.
type Notifier interface {
	MessageCreated(ctx context.Context, msg *chat.Message, at time.Time)
}

type DomainEmitter interface {
	Emit(event chat.DomainEvent)
}

type SendLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Renderer cooks raw content into its display form.
type Renderer interface {
	Cook(raw string) (string, error)
}

// Metrics receives pipeline outcome counters. Optional.
type Metrics interface {
	RecordMessageCreated(threaded bool)
	RecordPipelineFailure(stage string)
}
