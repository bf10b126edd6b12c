package pagination

// Direction selects which side of the window a page fetch extends.
type Direction string

const (
	DirectionPast   Direction = "past"
	DirectionFuture Direction = "future"
)

// Request describes a windowed page fetch against a channel's messages.
// TargetMessageID centers the window; MessageID plus Direction extends an
// existing window from one edge.
type Request struct {
	PageSize        int
	TargetMessageID *int64
	MessageID       *int64
	Direction       Direction
}

// Meta is returned alongside every page so the client can maintain its
// exhaustion flags without a second round trip.
type Meta struct {
	ChannelID         string `json:"channel_id"`
	TargetMessageID   *int64 `json:"target_message_id,omitempty"`
	CanLoadMorePast   bool   `json:"can_load_more_past"`
	CanLoadMoreFuture bool   `json:"can_load_more_future"`
	LastReadMessageID int64  `json:"last_read_message_id,omitempty"`
}

func Normalize(pageSize, fallback, max int) int {
	if pageSize <= 0 {
		return fallback
	}
	if pageSize > max {
		return max
	}
	return pageSize
}
