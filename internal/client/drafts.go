package client

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/strand-chat/strand/internal/chat"
	"go.uber.org/zap"
)

const draftDebounce = 2 * time.Second

// DraftSaver debounces draft persistence: a burst of edits collapses into
// one PUT two seconds after the last keystroke.
type DraftSaver struct {
	client *Client
	logger *zap.Logger

	mu       sync.Mutex
	pending  *chat.Draft
	timer    *time.Timer
	disposed bool
}

func NewDraftSaver(client *Client, logger *zap.Logger) *DraftSaver {
	return &DraftSaver{
		client: client,
		logger: logger,
	}
}

// Update records the latest draft state and (re)arms the debounce timer.
func (d *DraftSaver) Update(channelID uuid.UUID, content string, replyToID *int64, uploadIDs []uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.disposed {
		return
	}

	d.pending = &chat.Draft{
		ChannelID: channelID,
		Content:   content,
		ReplyToID: replyToID,
		UploadIDs: uploadIDs,
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(draftDebounce, d.flush)
}

func (d *DraftSaver) flush() {
	d.mu.Lock()
	if d.disposed || d.pending == nil {
		d.mu.Unlock()
		return
	}
	draft := d.pending
	d.pending = nil
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.client.SaveDraft(ctx, draft.ChannelID, draft); err != nil {
		d.logger.Warn("draft save failed",
			zap.String("channel_id", draft.ChannelID.String()),
			zap.Error(err),
		)
	}
}

// Discard drops the pending draft without saving, used when the message was
// sent.
func (d *DraftSaver) Discard() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = nil
}

// Dispose cancels the pending callback so teardown cannot race a late save.
func (d *DraftSaver) Dispose() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disposed = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = nil
}
