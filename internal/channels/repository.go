package channels

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/strand-chat/strand/internal/chat"
	"github.com/strand-chat/strand/internal/common/errors"
)

type Member struct {
	ChannelID uuid.UUID
	UserID    uuid.UUID
	Staff     bool
	JoinedAt  time.Time
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*chat.Channel, error) {
	query := `
		SELECT id, name, status, direct, last_message_at, created_at
		FROM channels
		WHERE id = $1
	`

	ch := &chat.Channel{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&ch.ID,
		&ch.Name,
		&ch.Status,
		&ch.Direct,
		&ch.LastMessageAt,
		&ch.CreatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("channel not found")
	}
	if err != nil {
		return nil, err
	}

	return ch, nil
}

func (r *Repository) Create(ctx context.Context, ch *chat.Channel) error {
	if ch.ID == uuid.Nil {
		ch.ID = uuid.New()
	}
	if ch.Status == "" {
		ch.Status = chat.ChannelOpen
	}

	query := `
		INSERT INTO channels (id, name, status, direct)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`
	return r.pool.QueryRow(ctx, query, ch.ID, ch.Name, ch.Status, ch.Direct).Scan(&ch.CreatedAt)
}

func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status chat.ChannelStatus) error {
	result, err := r.pool.Exec(ctx, `UPDATE channels SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return errors.NotFound("channel not found")
	}
	return nil
}

// BumpLastMessageAt advances the channel's activity timestamp, never moving
// it backwards.
func (r *Repository) BumpLastMessageAt(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE channels
		SET last_message_at = GREATEST(COALESCE(last_message_at, 'epoch'::timestamptz), $2)
		WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query, id, at)
	return err
}

func (r *Repository) GetMember(ctx context.Context, channelID, userID uuid.UUID) (*Member, error) {
	query := `
		SELECT channel_id, user_id, staff, joined_at
		FROM channel_members
		WHERE channel_id = $1 AND user_id = $2
	`

	m := &Member{}
	err := r.pool.QueryRow(ctx, query, channelID, userID).Scan(
		&m.ChannelID,
		&m.UserID,
		&m.Staff,
		&m.JoinedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("not a channel member")
	}
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (r *Repository) AddMember(ctx context.Context, channelID, userID uuid.UUID, staff bool) error {
	query := `
		INSERT INTO channel_members (channel_id, user_id, staff)
		VALUES ($1, $2, $3)
		ON CONFLICT (channel_id, user_id) DO UPDATE SET staff = EXCLUDED.staff
	`
	_, err := r.pool.Exec(ctx, query, channelID, userID, staff)
	return err
}

func (r *Repository) ListMemberIDs(ctx context.Context, channelID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id FROM channel_members WHERE channel_id = $1`, channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
