package postprocess

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/strand-chat/strand/internal/chat"
	"github.com/strand-chat/strand/internal/common/errors"
	"github.com/strand-chat/strand/internal/cook"
	"github.com/strand-chat/strand/internal/infra/cache"
	"go.uber.org/zap"
)

// Job is the queue payload: re-render a message's content after commit.
type Job struct {
	MessageID int64 `json:"message_id"`
}

type MessageStore interface {
	GetByID(ctx context.Context, id int64) (*chat.Message, error)
	UpdateCooked(ctx context.Context, id int64, cooked, excerpt string) (int32, error)
}

type Publisher interface {
	Publish(ctx context.Context, channelID uuid.UUID, event *chat.Event)
}

// Metrics receives per-job outcome counters. Optional.
type Metrics interface {
	RecordPostprocessJob(outcome string)
}

const excerptLength = 140

// Worker drains the post-processing queue: it re-cooks message content,
// derives the excerpt and publishes a processed event. Jobs are delivered
// at least once; the update is a field overwrite so redelivery is harmless
// apart from the explicit version bump.
type Worker struct {
	queue     *cache.Queue
	messages  MessageStore
	renderer  *cook.Renderer
	publisher Publisher
	metrics   Metrics
	logger    *zap.Logger
}

func NewWorker(queue *cache.Queue, messages MessageStore, renderer *cook.Renderer, publisher Publisher, logger *zap.Logger) *Worker {
	return &Worker{
		queue:     queue,
		messages:  messages,
		renderer:  renderer,
		publisher: publisher,
		logger:    logger,
	}
}

// SetMetrics attaches counters. Call before Run.
func (w *Worker) SetMetrics(m Metrics) {
	w.metrics = m
}

func (w *Worker) countJob(outcome string) {
	if w.metrics != nil {
		w.metrics.RecordPostprocessJob(outcome)
	}
}

// Run processes jobs until ctx is done. name distinguishes this worker's
// in-flight list in redis.
func (w *Worker) Run(ctx context.Context, name string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var job Job
		ok, err := w.queue.Dequeue(ctx, name, 5*time.Second, &job)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Warn("dequeue failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		if !ok {
			continue
		}

		if err := w.process(ctx, job); err != nil {
			w.countJob("failed")
			w.logger.Error("post-processing failed",
				zap.Int64("message_id", job.MessageID),
				zap.Error(err),
			)
			if err := w.queue.Requeue(ctx, name); err != nil {
				w.logger.Warn("requeue failed", zap.Error(err))
			}
			continue
		}

		w.countJob("processed")
		if err := w.queue.Ack(ctx, name); err != nil {
			w.logger.Warn("ack failed", zap.Error(err))
		}
	}
}

func (w *Worker) process(ctx context.Context, job Job) error {
	msg, err := w.messages.GetByID(ctx, job.MessageID)
	if err != nil {
		if errors.IsNotFound(err) {
			// Deleted before the worker got to it; nothing to enrich.
			return nil
		}
		return err
	}
	if msg.Deleted() {
		return nil
	}

	cooked, err := w.renderer.Cook(msg.Content)
	if err != nil {
		return fmt.Errorf("cook: %w", err)
	}
	excerpt := cook.Excerpt(cooked, excerptLength)

	version, err := w.messages.UpdateCooked(ctx, msg.ID, cooked, excerpt)
	if err != nil {
		return err
	}

	msg.Cooked = cooked
	msg.Excerpt = excerpt
	msg.Version = version

	w.publisher.Publish(ctx, msg.ChannelID, &chat.Event{
		Type:      chat.EventProcessed,
		ChannelID: msg.ChannelID,
		Message:   msg,
	})
	return nil
}
