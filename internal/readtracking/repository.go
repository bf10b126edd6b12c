package readtracking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/strand-chat/strand/internal/infra/db"
)

type Repository struct {
	pool db.Querier
}

func NewRepository(pool db.Querier) *Repository {
	return &Repository{pool: pool}
}

type ReadStatus struct {
	UserID            uuid.UUID
	ChannelID         uuid.UUID
	LastReadMessageID int64
	UpdatedAt         time.Time
}

func (r *Repository) Get(ctx context.Context, userID, channelID uuid.UUID) (*ReadStatus, error) {
	query := `
		SELECT user_id, channel_id, last_read_message_id, updated_at
		FROM channel_read_status
		WHERE user_id = $1 AND channel_id = $2
	`

	status := &ReadStatus{}
	err := r.pool.QueryRow(ctx, query, userID, channelID).Scan(
		&status.UserID,
		&status.ChannelID,
		&status.LastReadMessageID,
		&status.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return &ReadStatus{
			UserID:    userID,
			ChannelID: channelID,
		}, nil
	}

	return status, err
}

// MarkRead advances the user's read position, never moving it backwards.
func (r *Repository) MarkRead(ctx context.Context, userID, channelID uuid.UUID, messageID int64) error {
	query := `
		INSERT INTO channel_read_status (user_id, channel_id, last_read_message_id, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, channel_id) DO UPDATE
		SET last_read_message_id = GREATEST(channel_read_status.last_read_message_id, EXCLUDED.last_read_message_id),
		    updated_at = NOW()
	`
	_, err := r.pool.Exec(ctx, query, userID, channelID, messageID)
	return err
}

func (r *Repository) UnreadCount(ctx context.Context, userID, channelID uuid.UUID) (int32, error) {
	query := `
		SELECT COUNT(*)::int
		FROM messages m
		WHERE m.channel_id = $2
		  AND m.deleted_at IS NULL
		  AND m.id > COALESCE(
		      (SELECT last_read_message_id FROM channel_read_status WHERE user_id = $1 AND channel_id = $2),
		      0
		  )
	`

	var count int32
	err := r.pool.QueryRow(ctx, query, userID, channelID).Scan(&count)
	return count, err
}
