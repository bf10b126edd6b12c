package notify

import (
	"context"
	"time"

	"github.com/strand-chat/strand/internal/chat"
	"github.com/strand-chat/strand/internal/cook"
	"go.uber.org/zap"
)

// Notifier is the boundary to the mention/notification subsystem. The real
// implementation lives in the host application; this one extracts mentions
// and logs them so the pipeline stage is exercised end to end.
type Notifier struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Notifier {
	return &Notifier{logger: logger}
}

func (n *Notifier) MessageCreated(ctx context.Context, msg *chat.Message, at time.Time) {
	mentions := cook.Mentions(msg.Content)
	if len(mentions) == 0 {
		return
	}
	n.logger.Info("message mentions",
		zap.Int64("message_id", msg.ID),
		zap.Strings("handles", mentions),
		zap.Time("at", at),
	)
}
