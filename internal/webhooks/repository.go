package webhooks

import (
	"context"

	"github.com/strand-chat/strand/internal/infra/db"
)

// Repository records which inbound webhook event produced a message. The
// webhook dispatch machinery itself lives outside this service.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

func (r *Repository) Record(ctx context.Context, q db.Querier, messageID int64, externalID string, payload []byte) error {
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	_, err := q.Exec(ctx, `
		INSERT INTO webhook_events (message_id, external_id, payload)
		VALUES ($1, $2, $3)
	`, messageID, externalID, payload)
	return err
}
