package uploads

import (
	"context"

	"github.com/google/uuid"
	"github.com/strand-chat/strand/internal/chat"
	"github.com/strand-chat/strand/internal/infra/db"
)

type Repository struct {
	pool db.Querier
}

func NewRepository(pool db.Querier) *Repository {
	return &Repository{pool: pool}
}

// ResolveOwned filters the given upload ids down to uploads owned by the
// user, preserving the caller's ordering. Unknown or foreign ids are
// silently dropped.
func (r *Repository) ResolveOwned(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]chat.Upload, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, user_id, filename, content_type, size, url, created_at
		FROM uploads
		WHERE id = ANY($1) AND user_id = $2
	`

	rows, err := r.pool.Query(ctx, query, ids, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]chat.Upload, len(ids))
	for rows.Next() {
		var u chat.Upload
		if err := rows.Scan(
			&u.ID,
			&u.UserID,
			&u.Filename,
			&u.ContentType,
			&u.Size,
			&u.URL,
			&u.CreatedAt,
		); err != nil {
			return nil, err
		}
		byID[u.ID] = u
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	resolved := make([]chat.Upload, 0, len(byID))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			resolved = append(resolved, u)
		}
	}
	return resolved, nil
}

// Attach links the resolved uploads to a persisted message, keeping the
// submission order.
func (r *Repository) Attach(ctx context.Context, q db.Querier, messageID int64, ups []chat.Upload) error {
	for i, u := range ups {
		_, err := q.Exec(ctx, `
			INSERT INTO message_uploads (message_id, upload_id, position)
			VALUES ($1, $2, $3)
			ON CONFLICT (message_id, upload_id) DO NOTHING
		`, messageID, u.ID, i)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) ListByMessage(ctx context.Context, messageID int64) ([]chat.Upload, error) {
	query := `
		SELECT u.id, u.user_id, u.filename, u.content_type, u.size, u.url, u.created_at
		FROM uploads u
		JOIN message_uploads mu ON mu.upload_id = u.id
		WHERE mu.message_id = $1
		ORDER BY mu.position ASC
	`

	rows, err := r.pool.Query(ctx, query, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ups []chat.Upload
	for rows.Next() {
		var u chat.Upload
		if err := rows.Scan(
			&u.ID,
			&u.UserID,
			&u.Filename,
			&u.ContentType,
			&u.Size,
			&u.URL,
			&u.CreatedAt,
		); err != nil {
			return nil, err
		}
		ups = append(ups, u)
	}
	return ups, rows.Err()
}
