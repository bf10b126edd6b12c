package messages

import (
	"context"

	"github.com/google/uuid"
	"github.com/strand-chat/strand/internal/chat"
	"github.com/strand-chat/strand/internal/common/pagination"
)

// Window is one page of a channel's messages in ascending id order, plus the
// exhaustion flags the client folds into its pagination state.
type Window struct {
	Messages          []*chat.Message
	CanLoadMorePast   bool
	CanLoadMoreFuture bool
}

// ListWindow serves the paged message API. With no target the newest page is
// returned and the future side is exhausted by definition. With a target the
// window is centered on it; with a message id and direction the window
// extends one edge. Fetches request one extra row to derive the flags
// without a count query.
func (r *Repository) ListWindow(ctx context.Context, channelID uuid.UUID, req pagination.Request) (*Window, error) {
	switch {
	case req.TargetMessageID != nil:
		return r.windowAround(ctx, channelID, *req.TargetMessageID, req.PageSize)
	case req.MessageID != nil && req.Direction == pagination.DirectionFuture:
		return r.windowAfter(ctx, channelID, *req.MessageID, req.PageSize)
	case req.MessageID != nil:
		return r.windowBefore(ctx, channelID, *req.MessageID, req.PageSize)
	default:
		return r.windowLatest(ctx, channelID, req.PageSize)
	}
}

func (r *Repository) windowLatest(ctx context.Context, channelID uuid.UUID, limit int) (*Window, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE channel_id = $1 AND deleted_at IS NULL
		ORDER BY id DESC
		LIMIT $2
	`

	msgs, err := r.queryMessages(ctx, query, channelID, limit+1)
	if err != nil {
		return nil, err
	}

	w := &Window{CanLoadMoreFuture: false}
	if len(msgs) > limit {
		msgs = msgs[:limit]
		w.CanLoadMorePast = true
	}
	reverse(msgs)
	w.Messages = msgs
	return w, nil
}

func (r *Repository) windowBefore(ctx context.Context, channelID uuid.UUID, beforeID int64, limit int) (*Window, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE channel_id = $1 AND id < $2 AND deleted_at IS NULL
		ORDER BY id DESC
		LIMIT $3
	`

	msgs, err := r.queryMessages(ctx, query, channelID, beforeID, limit+1)
	if err != nil {
		return nil, err
	}

	w := &Window{CanLoadMoreFuture: true}
	if len(msgs) > limit {
		msgs = msgs[:limit]
		w.CanLoadMorePast = true
	}
	reverse(msgs)
	w.Messages = msgs
	return w, nil
}

func (r *Repository) windowAfter(ctx context.Context, channelID uuid.UUID, afterID int64, limit int) (*Window, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE channel_id = $1 AND id > $2 AND deleted_at IS NULL
		ORDER BY id ASC
		LIMIT $3
	`

	msgs, err := r.queryMessages(ctx, query, channelID, afterID, limit+1)
	if err != nil {
		return nil, err
	}

	w := &Window{CanLoadMorePast: true}
	if len(msgs) > limit {
		msgs = msgs[:limit]
		w.CanLoadMoreFuture = true
	}
	w.Messages = msgs
	return w, nil
}

func (r *Repository) windowAround(ctx context.Context, channelID uuid.UUID, targetID int64, limit int) (*Window, error) {
	half := limit / 2
	if half < 1 {
		half = 1
	}

	past, err := r.queryMessages(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE channel_id = $1 AND id <= $2 AND deleted_at IS NULL
		ORDER BY id DESC
		LIMIT $3
	`, channelID, targetID, half+1)
	if err != nil {
		return nil, err
	}

	future, err := r.queryMessages(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE channel_id = $1 AND id > $2 AND deleted_at IS NULL
		ORDER BY id ASC
		LIMIT $3
	`, channelID, targetID, half+1)
	if err != nil {
		return nil, err
	}

	w := &Window{}
	if len(past) > half {
		past = past[:half]
		w.CanLoadMorePast = true
	}
	if len(future) > half {
		future = future[:half]
		w.CanLoadMoreFuture = true
	}
	reverse(past)
	w.Messages = append(past, future...)
	return w, nil
}

func (r *Repository) queryMessages(ctx context.Context, query string, args ...any) ([]*chat.Message, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*chat.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

func reverse(msgs []*chat.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
