package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ChannelStatus string

const (
	ChannelOpen     ChannelStatus = "open"
	ChannelReadOnly ChannelStatus = "read_only"
	ChannelClosed   ChannelStatus = "closed"
	ChannelArchived ChannelStatus = "archived"
)

type Channel struct {
	ID            uuid.UUID     `json:"id"`
	Name          string        `json:"name"`
	Status        ChannelStatus `json:"status"`
	Direct        bool          `json:"direct"`
	LastMessageAt *time.Time    `json:"last_message_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

type Message struct {
	ID        int64      `json:"id"`
	ChannelID uuid.UUID  `json:"channel_id"`
	AuthorID  uuid.UUID  `json:"author_id"`
	Content   string     `json:"content"`
	Cooked    string     `json:"cooked"`
	Excerpt   string     `json:"excerpt,omitempty"`
	ReplyToID *int64     `json:"reply_to_id,omitempty"`
	ThreadID  *uuid.UUID `json:"thread_id,omitempty"`
	Version   int32      `json:"version"`
	CreatedAt time.Time  `json:"created_at"`
	EditedAt  *time.Time `json:"edited_at,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	Reactions []Reaction `json:"reactions,omitempty"`
	Uploads   []Upload   `json:"uploads,omitempty"`
}

func (m *Message) Deleted() bool {
	return m.DeletedAt != nil
}

type Thread struct {
	ID               uuid.UUID `json:"id"`
	ChannelID        uuid.UUID `json:"channel_id"`
	RootMessageID    int64     `json:"root_message_id"`
	OriginalAuthorID uuid.UUID `json:"original_author_id"`
	CreatedAt        time.Time `json:"created_at"`
}

type Reaction struct {
	ID        uuid.UUID `json:"id"`
	MessageID int64     `json:"message_id"`
	UserID    uuid.UUID `json:"user_id"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

type Upload struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	URL         string    `json:"url"`
	CreatedAt   time.Time `json:"created_at"`
}

type Draft struct {
	ChannelID uuid.UUID   `json:"channel_id"`
	UserID    uuid.UUID   `json:"user_id"`
	Content   string      `json:"content"`
	ReplyToID *int64      `json:"reply_to_id,omitempty"`
	UploadIDs []uuid.UUID `json:"upload_ids,omitempty"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// ChainEntry is one ancestor in a reply chain, ordered reply-most-recent
// first with the root last.
type ChainEntry struct {
	ID        int64
	ReplyToID *int64
	ThreadID  *uuid.UUID
	AuthorID  uuid.UUID
	ChannelID uuid.UUID
	DeletedAt *time.Time
	Depth     int
}

// Capabilities is the opaque authorization predicate supplied by the host
// application. The validator never looks past these three answers.
type Capabilities interface {
	// CanPost reports whether the user may post into the channel in its
	// current status.
	CanPost(ctx context.Context, userID uuid.UUID, channel *Channel) (bool, error)
	// CanDirectMessage reports whether the user may send direct messages.
	CanDirectMessage(ctx context.Context, userID uuid.UUID) (bool, error)
	// IsStaff reports whether the user holds staff privileges in the channel.
	IsStaff(ctx context.Context, userID uuid.UUID, channelID uuid.UUID) (bool, error)
}
