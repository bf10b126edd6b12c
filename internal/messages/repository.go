package messages

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/strand-chat/strand/internal/chat"
	"github.com/strand-chat/strand/internal/common/errors"
	"github.com/strand-chat/strand/internal/infra"
	"github.com/strand-chat/strand/internal/infra/db"
)

type Repository struct {
	pool      db.Querier
	snowflake *infra.SnowflakeGenerator
}

func NewRepository(pool db.Querier, snowflake *infra.SnowflakeGenerator) *Repository {
	return &Repository{
		pool:      pool,
		snowflake: snowflake,
	}
}

const messageColumns = `id, channel_id, author_id, content, cooked, excerpt,
	reply_to_id, thread_id, version, created_at, edited_at, deleted_at`

func scanMessage(row pgx.Row) (*chat.Message, error) {
	msg := &chat.Message{}
	err := row.Scan(
		&msg.ID,
		&msg.ChannelID,
		&msg.AuthorID,
		&msg.Content,
		&msg.Cooked,
		&msg.Excerpt,
		&msg.ReplyToID,
		&msg.ThreadID,
		&msg.Version,
		&msg.CreatedAt,
		&msg.EditedAt,
		&msg.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (r *Repository) Create(ctx context.Context, q db.Querier, msg *chat.Message) error {
	if msg.ID == 0 {
		msg.ID = r.snowflake.Generate()
	}
	msg.CreatedAt = r.snowflake.ExtractTimestamp(msg.ID)

	query := `
		INSERT INTO messages (id, channel_id, author_id, content, cooked, excerpt,
			reply_to_id, thread_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := q.Exec(ctx, query,
		msg.ID,
		msg.ChannelID,
		msg.AuthorID,
		msg.Content,
		msg.Cooked,
		msg.Excerpt,
		msg.ReplyToID,
		msg.ThreadID,
		msg.CreatedAt,
	)

	return err
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*chat.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`

	msg, err := scanMessage(r.pool.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("message not found")
	}
	if err != nil {
		return nil, err
	}

	return msg, nil
}

// ResolveChain walks the reply_to pointers from the given message up to the
// root in a single recursive query, deepest ancestor (the root) last. Depth
// is capped so pathological chains cannot recurse unbounded; a chain deeper
// than the cap resolves against the deepest ancestor reached.
func (r *Repository) ResolveChain(ctx context.Context, q db.Querier, messageID int64, depthLimit int) ([]chat.ChainEntry, error) {
	query := `
		WITH RECURSIVE chain AS (
			SELECT id, reply_to_id, thread_id, author_id, channel_id, deleted_at, 1 AS depth
			FROM messages
			WHERE id = $1
			UNION ALL
			SELECT m.id, m.reply_to_id, m.thread_id, m.author_id, m.channel_id, m.deleted_at, c.depth + 1
			FROM messages m
			JOIN chain c ON m.id = c.reply_to_id
			WHERE c.depth < $2
		)
		SELECT id, reply_to_id, thread_id, author_id, channel_id, deleted_at, depth
		FROM chain
		ORDER BY depth ASC
	`

	rows, err := q.Query(ctx, query, messageID, depthLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []chat.ChainEntry
	for rows.Next() {
		var e chat.ChainEntry
		if err := rows.Scan(
			&e.ID,
			&e.ReplyToID,
			&e.ThreadID,
			&e.AuthorID,
			&e.ChannelID,
			&e.DeletedAt,
			&e.Depth,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(entries) == 0 {
		return nil, errors.NotFound("message not found")
	}

	return entries, nil
}

// BackfillThread assigns the thread to every listed message that does not
// already have one. The condition is part of the statement, so a concurrent
// assignment is never overwritten.
func (r *Repository) BackfillThread(ctx context.Context, q db.Querier, threadID uuid.UUID, messageIDs []int64) (int64, error) {
	if len(messageIDs) == 0 {
		return 0, nil
	}

	query := `
		UPDATE messages
		SET thread_id = $1
		WHERE id = ANY($2) AND thread_id IS NULL
	`

	result, err := q.Exec(ctx, query, threadID, messageIDs)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

func (r *Repository) Update(ctx context.Context, msg *chat.Message) error {
	query := `
		UPDATE messages
		SET content = $2, cooked = $3, excerpt = $4, edited_at = $5
		WHERE id = $1 AND deleted_at IS NULL
	`

	now := time.Now()
	msg.EditedAt = &now

	result, err := r.pool.Exec(ctx, query, msg.ID, msg.Content, msg.Cooked, msg.Excerpt, msg.EditedAt)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return errors.NotFound("message not found")
	}

	return nil
}

// UpdateCooked overwrites the rendered form and bumps the version counter.
// Used by post-processing; idempotent apart from the explicit counter.
func (r *Repository) UpdateCooked(ctx context.Context, id int64, cooked, excerpt string) (int32, error) {
	query := `
		UPDATE messages
		SET cooked = $2, excerpt = $3, version = version + 1
		WHERE id = $1
		RETURNING version
	`

	var version int32
	err := r.pool.QueryRow(ctx, query, id, cooked, excerpt).Scan(&version)
	if err == pgx.ErrNoRows {
		return 0, errors.NotFound("message not found")
	}
	return version, err
}

func (r *Repository) SoftDelete(ctx context.Context, id int64, at time.Time) error {
	query := `
		UPDATE messages
		SET deleted_at = $2
		WHERE id = $1 AND deleted_at IS NULL
	`

	result, err := r.pool.Exec(ctx, query, id, at)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return errors.NotFound("message not found")
	}

	return nil
}

func (r *Repository) SoftDeleteBulk(ctx context.Context, ids []int64, at time.Time) ([]int64, error) {
	query := `
		UPDATE messages
		SET deleted_at = $2
		WHERE id = ANY($1) AND deleted_at IS NULL
		RETURNING id
	`

	rows, err := r.pool.Query(ctx, query, ids, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deleted []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		deleted = append(deleted, id)
	}
	return deleted, rows.Err()
}

func (r *Repository) Restore(ctx context.Context, id int64) (*chat.Message, error) {
	query := `
		UPDATE messages
		SET deleted_at = NULL
		WHERE id = $1 AND deleted_at IS NOT NULL
		RETURNING ` + messageColumns

	msg, err := scanMessage(r.pool.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("message not found or not deleted")
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (r *Repository) AddReaction(ctx context.Context, messageID int64, userID uuid.UUID, emoji string) (*chat.Reaction, error) {
	query := `
		INSERT INTO message_reactions (id, message_id, user_id, emoji)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (message_id, user_id, emoji) DO UPDATE SET emoji = EXCLUDED.emoji
		RETURNING id, message_id, user_id, emoji, created_at
	`

	reaction := &chat.Reaction{}
	err := r.pool.QueryRow(ctx, query, uuid.New(), messageID, userID, emoji).Scan(
		&reaction.ID,
		&reaction.MessageID,
		&reaction.UserID,
		&reaction.Emoji,
		&reaction.CreatedAt,
	)
	return reaction, err
}

func (r *Repository) RemoveReaction(ctx context.Context, messageID int64, userID uuid.UUID, emoji string) error {
	query := `
		DELETE FROM message_reactions
		WHERE message_id = $1 AND user_id = $2 AND emoji = $3
	`

	result, err := r.pool.Exec(ctx, query, messageID, userID, emoji)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return errors.NotFound("reaction not found")
	}
	return nil
}
