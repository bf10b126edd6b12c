package threads

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/strand-chat/strand/internal/chat"
	"github.com/strand-chat/strand/internal/common/errors"
	"github.com/strand-chat/strand/internal/infra/db"
)

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

func (r *Repository) GetByID(ctx context.Context, q db.Querier, id uuid.UUID) (*chat.Thread, error) {
	query := `
		SELECT id, channel_id, root_message_id, original_author_id, created_at
		FROM threads
		WHERE id = $1
	`

	t := &chat.Thread{}
	err := q.QueryRow(ctx, query, id).Scan(
		&t.ID,
		&t.ChannelID,
		&t.RootMessageID,
		&t.OriginalAuthorID,
		&t.CreatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("thread not found")
	}
	if err != nil {
		return nil, err
	}

	return t, nil
}

// GetOrCreateForRoot creates the thread owned by the root message, or fetches
// the one a concurrent first reply already committed. The unique constraint
// on root_message_id makes the race converge on a single thread.
func (r *Repository) GetOrCreateForRoot(ctx context.Context, q db.Querier, channelID uuid.UUID, rootMessageID int64, rootAuthorID uuid.UUID) (*chat.Thread, error) {
	insert := `
		INSERT INTO threads (id, channel_id, root_message_id, original_author_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (root_message_id) DO NOTHING
		RETURNING id, channel_id, root_message_id, original_author_id, created_at
	`

	t := &chat.Thread{}
	err := q.QueryRow(ctx, insert, uuid.New(), channelID, rootMessageID, rootAuthorID).Scan(
		&t.ID,
		&t.ChannelID,
		&t.RootMessageID,
		&t.OriginalAuthorID,
		&t.CreatedAt,
	)
	if err == nil {
		return t, nil
	}
	if err != pgx.ErrNoRows {
		return nil, err
	}

	// Lost the insert race; fetch the winner's row.
	fetch := `
		SELECT id, channel_id, root_message_id, original_author_id, created_at
		FROM threads
		WHERE root_message_id = $1
	`
	err = q.QueryRow(ctx, fetch, rootMessageID).Scan(
		&t.ID,
		&t.ChannelID,
		&t.RootMessageID,
		&t.OriginalAuthorID,
		&t.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("thread not found")
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}
