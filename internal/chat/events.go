package chat

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventSent           EventType = "sent"
	EventProcessed      EventType = "processed"
	EventEdit           EventType = "edit"
	EventRefresh        EventType = "refresh"
	EventDelete         EventType = "delete"
	EventBulkDelete     EventType = "bulk_delete"
	EventRestore        EventType = "restore"
	EventReaction       EventType = "reaction"
	EventMentionWarning EventType = "mention_warning"
	EventSelfFlagged    EventType = "self_flagged"
	EventFlag           EventType = "flag"
)

type ReactionAction string

const (
	ReactionAdd    ReactionAction = "add"
	ReactionRemove ReactionAction = "remove"
)

// Event is the tagged union carried on the channel bus. Type selects which
// optional fields are populated; unused fields are omitted on the wire.
type Event struct {
	Type      EventType `json:"type"`
	EventID   string    `json:"event_id,omitempty"`
	Seq       uint64    `json:"seq,omitempty"`
	ChannelID uuid.UUID `json:"channel_id"`
	CreatedAt time.Time `json:"created_at"`

	// sent, processed, edit, restore
	Message *Message `json:"message,omitempty"`
	// sent: the submitting client's speculative id, echoed for reconciliation
	StagedID string `json:"staged_id,omitempty"`

	// refresh, delete, reaction, moderation signals
	MessageID int64 `json:"message_id,omitempty"`
	// bulk_delete
	MessageIDs []int64 `json:"message_ids,omitempty"`

	// delete, bulk_delete
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	DeletedID uuid.UUID  `json:"deleted_by,omitempty"`

	// reaction
	Reaction *ReactionChange `json:"reaction,omitempty"`

	// mention_warning, self_flagged, flag
	Moderation *ModerationNotice `json:"moderation,omitempty"`
}

type ReactionChange struct {
	Action ReactionAction `json:"action"`
	Emoji  string         `json:"emoji"`
	UserID uuid.UUID      `json:"user_id"`
}

// ModerationNotice is out-of-band metadata attached to a message; it never
// alters message content.
type ModerationNotice struct {
	Kind       EventType `json:"kind"`
	FlaggedBy  uuid.UUID `json:"flagged_by,omitempty"`
	ReviewURL  string    `json:"review_url,omitempty"`
	CannotSee  []string  `json:"cannot_see,omitempty"`
	GroupCount int       `json:"group_count,omitempty"`
}

// DomainEvent is the in-process notification emitted after a successful
// ingestion, observed by subsystems outside the pipeline.
type DomainEvent struct {
	Name      string
	Message   *Message
	Channel   *Channel
	Timestamp time.Time
}
