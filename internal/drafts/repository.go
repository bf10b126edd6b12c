package drafts

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/strand-chat/strand/internal/chat"
	"github.com/strand-chat/strand/internal/common/errors"
	"github.com/strand-chat/strand/internal/infra/db"
)

type Repository struct {
	pool db.Querier
}

func NewRepository(pool db.Querier) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Upsert(ctx context.Context, draft *chat.Draft) error {
	query := `
		INSERT INTO drafts (channel_id, user_id, content, reply_to_id, upload_ids, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (channel_id, user_id) DO UPDATE
		SET content = EXCLUDED.content,
		    reply_to_id = EXCLUDED.reply_to_id,
		    upload_ids = EXCLUDED.upload_ids,
		    updated_at = NOW()
	`
	_, err := r.pool.Exec(ctx, query,
		draft.ChannelID,
		draft.UserID,
		draft.Content,
		draft.ReplyToID,
		draft.UploadIDs,
	)
	return err
}

func (r *Repository) Get(ctx context.Context, channelID, userID uuid.UUID) (*chat.Draft, error) {
	query := `
		SELECT channel_id, user_id, content, reply_to_id, upload_ids, updated_at
		FROM drafts
		WHERE channel_id = $1 AND user_id = $2
	`

	draft := &chat.Draft{}
	err := r.pool.QueryRow(ctx, query, channelID, userID).Scan(
		&draft.ChannelID,
		&draft.UserID,
		&draft.Content,
		&draft.ReplyToID,
		&draft.UploadIDs,
		&draft.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("draft not found")
	}
	if err != nil {
		return nil, err
	}

	return draft, nil
}

// Delete removes the user's draft for the channel. Missing drafts are not an
// error; send-side cleanup races autosave.
func (r *Repository) Delete(ctx context.Context, channelID, userID uuid.UUID) error {
	query := `DELETE FROM drafts WHERE channel_id = $1 AND user_id = $2`
	_, err := r.pool.Exec(ctx, query, channelID, userID)
	return err
}
