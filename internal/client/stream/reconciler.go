package stream

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/strand-chat/strand/internal/chat"
)

// Entry is one message as the viewer sees it: either a confirmed server
// message or a local staged one awaiting its sent event.
type Entry struct {
	Message  chat.Message
	Staged   bool
	StagedID string
	// Collapsed marks a soft delete still visible to the author or staff.
	Collapsed bool
	Edited    bool
	// SendError holds a send failure for inline retry. Transient
	// distinguishes network trouble from a structured server rejection.
	SendError     string
	SendTransient bool
	Moderation    []chat.ModerationNotice
}

// Viewer is the perspective the reconciler applies events under. Delete
// visibility and reaction echo suppression depend on who is looking.
type Viewer struct {
	UserID  uuid.UUID
	Staff   bool
	Ignored map[uuid.UUID]bool
}

// Reconciler merges inbound channel events into an ordered, id-deduplicated
// message buffer. It is not safe for concurrent use: the client drives all
// mutation from its single event loop, mirroring how fetch results and bus
// events are serialized there.
type Reconciler struct {
	channelID uuid.UUID
	viewer    Viewer

	entries  []*Entry
	byID     map[int64]*Entry
	byStaged map[string]*Entry

	// nearBottom tracks whether the viewport sits close enough to the
	// newest message for auto-append; when it does not, arrivals raise
	// NewMessagesAvailable instead.
	nearBottom           bool
	newMessagesAvailable bool

	disposed bool
}

func NewReconciler(channelID uuid.UUID, viewer Viewer) *Reconciler {
	if viewer.Ignored == nil {
		viewer.Ignored = make(map[uuid.UUID]bool)
	}
	return &Reconciler{
		channelID:  channelID,
		viewer:     viewer,
		byID:       make(map[int64]*Entry),
		byStaged:   make(map[string]*Entry),
		nearBottom: true,
	}
}

// Dispose marks the reconciler dead. Every entrypoint checks the flag so a
// late continuation cannot mutate torn-down state.
func (r *Reconciler) Dispose() {
	r.disposed = true
}

func (r *Reconciler) Disposed() bool {
	return r.disposed
}

func (r *Reconciler) SetNearBottom(near bool) {
	if r.disposed {
		return
	}
	r.nearBottom = near
	if near {
		r.newMessagesAvailable = false
	}
}

func (r *Reconciler) NewMessagesAvailable() bool {
	return r.newMessagesAvailable
}

// Stage inserts a local speculative message at the bottom of the buffer.
func (r *Reconciler) Stage(stagedID, content string) *Entry {
	if r.disposed {
		return nil
	}
	if existing, ok := r.byStaged[stagedID]; ok {
		return existing
	}
	entry := &Entry{
		Message: chat.Message{
			ChannelID: r.channelID,
			AuthorID:  r.viewer.UserID,
			Content:   content,
		},
		Staged:   true,
		StagedID: stagedID,
	}
	r.entries = append(r.entries, entry)
	r.byStaged[stagedID] = entry
	return entry
}

// MarkSendFailed records a send failure on the staged message so the user
// can retry or discard it.
func (r *Reconciler) MarkSendFailed(stagedID, reason string, transient bool) {
	if r.disposed {
		return
	}
	entry, ok := r.byStaged[stagedID]
	if !ok {
		return
	}
	entry.SendError = reason
	entry.SendTransient = transient
}

// DiscardStaged drops a staged message that will not be retried.
func (r *Reconciler) DiscardStaged(stagedID string) {
	if r.disposed {
		return
	}
	entry, ok := r.byStaged[stagedID]
	if !ok {
		return
	}
	delete(r.byStaged, stagedID)
	r.removeEntry(entry)
}

// Apply folds one bus event into the buffer. Events from other channels are
// ignored; the bus delivers at least once, so every branch is a field-level
// overwrite that lands identically on redelivery.
func (r *Reconciler) Apply(event *chat.Event) {
	if r.disposed || event == nil || event.ChannelID != r.channelID {
		return
	}

	switch event.Type {
	case chat.EventSent:
		r.applySent(event)
	case chat.EventProcessed:
		r.applyProcessed(event)
	case chat.EventEdit:
		r.applyEdit(event)
	case chat.EventRefresh:
		r.applyRefresh(event)
	case chat.EventDelete:
		if event.MessageID != 0 {
			r.applyDelete(event.MessageID, event.DeletedAt)
		}
	case chat.EventBulkDelete:
		for _, id := range event.MessageIDs {
			r.applyDelete(id, event.DeletedAt)
		}
	case chat.EventRestore:
		r.applyRestore(event)
	case chat.EventReaction:
		r.applyReaction(event)
	case chat.EventMentionWarning, chat.EventSelfFlagged, chat.EventFlag:
		r.applyModeration(event)
	}
}

// applySent promotes a matching staged message in place, preserving its
// position in the buffer; anything else is an arrival from another client.
func (r *Reconciler) applySent(event *chat.Event) {
	if event.Message == nil {
		return
	}
	msg := event.Message

	if event.StagedID != "" {
		if entry, ok := r.byStaged[event.StagedID]; ok {
			if existing, dup := r.byID[msg.ID]; dup && existing != entry {
				// The sent event was already applied without the staged
				// mapping (page fetch landed first). Collapse to one copy.
				r.removeEntry(entry)
				delete(r.byStaged, event.StagedID)
				return
			}
			entry.Message = *msg
			entry.Staged = false
			entry.SendError = ""
			entry.SendTransient = false
			r.byID[msg.ID] = entry
			delete(r.byStaged, event.StagedID)
			r.propagateThread(msg)
			return
		}
	}

	if existing, ok := r.byID[msg.ID]; ok {
		existing.Message = *msg
		return
	}

	if r.viewer.Ignored[msg.AuthorID] {
		return
	}

	if !r.nearBottom && msg.AuthorID != r.viewer.UserID {
		r.newMessagesAvailable = true
		return
	}

	r.insert(&Entry{Message: *msg})
	r.propagateThread(msg)
}

// propagateThread copies a freshly assigned thread id onto the local reply
// target if that target had none, mirroring the server-side backfill.
func (r *Reconciler) propagateThread(msg *chat.Message) {
	if msg.ThreadID == nil || msg.ReplyToID == nil {
		return
	}
	if target, ok := r.byID[*msg.ReplyToID]; ok && target.Message.ThreadID == nil {
		threadID := *msg.ThreadID
		target.Message.ThreadID = &threadID
	}
}

func (r *Reconciler) applyProcessed(event *chat.Event) {
	if event.Message == nil {
		return
	}
	entry, ok := r.byID[event.Message.ID]
	if !ok {
		return
	}
	entry.Message.Cooked = event.Message.Cooked
	entry.Message.Excerpt = event.Message.Excerpt
	entry.Message.Version = event.Message.Version
}

func (r *Reconciler) applyEdit(event *chat.Event) {
	if event.Message == nil {
		return
	}
	entry, ok := r.byID[event.Message.ID]
	if !ok {
		return
	}
	entry.Message.Content = event.Message.Content
	entry.Message.Cooked = event.Message.Cooked
	entry.Message.Excerpt = event.Message.Excerpt
	entry.Message.Uploads = event.Message.Uploads
	entry.Message.EditedAt = event.Message.EditedAt
	entry.Edited = true
}

// applyRefresh bumps the version counter only. This is the one deliberate
// non-idempotent transition; it exists to force a re-render.
func (r *Reconciler) applyRefresh(event *chat.Event) {
	if entry, ok := r.byID[event.MessageID]; ok {
		entry.Message.Version++
	}
}

// applyDelete splits on perspective: the author and staff keep a collapsed
// tombstone, everyone else loses the message outright.
func (r *Reconciler) applyDelete(messageID int64, deletedAt *time.Time) {
	entry, ok := r.byID[messageID]
	if !ok {
		return
	}
	if r.viewer.Staff || entry.Message.AuthorID == r.viewer.UserID {
		entry.Collapsed = true
		if deletedAt != nil {
			at := *deletedAt
			entry.Message.DeletedAt = &at
		}
		return
	}
	delete(r.byID, messageID)
	r.removeEntry(entry)
}

func (r *Reconciler) applyRestore(event *chat.Event) {
	if event.Message == nil {
		return
	}
	if entry, ok := r.byID[event.Message.ID]; ok {
		entry.Collapsed = false
		entry.Message.DeletedAt = nil
		return
	}
	r.insert(&Entry{Message: *event.Message})
}

func (r *Reconciler) applyReaction(event *chat.Event) {
	if event.Reaction == nil {
		return
	}
	// Self-originated echoes were applied optimistically at click time.
	if event.Reaction.UserID == r.viewer.UserID {
		return
	}
	entry, ok := r.byID[event.MessageID]
	if !ok {
		return
	}

	change := event.Reaction
	switch change.Action {
	case chat.ReactionAdd:
		for _, existing := range entry.Message.Reactions {
			if existing.UserID == change.UserID && existing.Emoji == change.Emoji {
				return
			}
		}
		entry.Message.Reactions = append(entry.Message.Reactions, chat.Reaction{
			MessageID: event.MessageID,
			UserID:    change.UserID,
			Emoji:     change.Emoji,
		})
	case chat.ReactionRemove:
		kept := entry.Message.Reactions[:0]
		for _, existing := range entry.Message.Reactions {
			if existing.UserID == change.UserID && existing.Emoji == change.Emoji {
				continue
			}
			kept = append(kept, existing)
		}
		entry.Message.Reactions = kept
	}
}

// applyModeration attaches out-of-band metadata; message content is never
// touched.
func (r *Reconciler) applyModeration(event *chat.Event) {
	if event.Moderation == nil {
		return
	}
	entry, ok := r.byID[event.MessageID]
	if !ok {
		return
	}
	for _, existing := range entry.Moderation {
		if existing.Kind == event.Moderation.Kind && existing.FlaggedBy == event.Moderation.FlaggedBy {
			return
		}
	}
	entry.Moderation = append(entry.Moderation, *event.Moderation)
}

// Merge folds a fetched page into the buffer, deduplicating by id. Staged
// entries are untouched.
func (r *Reconciler) Merge(msgs []*chat.Message) {
	if r.disposed {
		return
	}
	for _, msg := range msgs {
		if existing, ok := r.byID[msg.ID]; ok {
			existing.Message = *msg
			continue
		}
		r.insert(&Entry{Message: *msg})
	}
}

func (r *Reconciler) insert(entry *Entry) {
	if entry.Message.ID != 0 {
		r.byID[entry.Message.ID] = entry
	}
	r.entries = append(r.entries, entry)
	sort.SliceStable(r.entries, func(i, j int) bool {
		a, b := r.entries[i], r.entries[j]
		// Staged entries sort after everything confirmed.
		if a.Staged != b.Staged {
			return b.Staged
		}
		return a.Message.ID < b.Message.ID
	})
}

func (r *Reconciler) removeEntry(entry *Entry) {
	for i, e := range r.entries {
		if e == entry {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return
		}
	}
}

// Entries returns the buffer in display order.
func (r *Reconciler) Entries() []*Entry {
	return r.entries
}

func (r *Reconciler) Get(messageID int64) (*Entry, bool) {
	entry, ok := r.byID[messageID]
	return entry, ok
}

func (r *Reconciler) Len() int {
	return len(r.entries)
}

// DropOutside prunes confirmed entries beyond the keep window measured from
// the newest edge. Staged entries always survive.
func (r *Reconciler) DropOutside(keep int) {
	if r.disposed || keep <= 0 || len(r.entries) <= keep {
		return
	}
	drop := len(r.entries) - keep
	kept := make([]*Entry, 0, keep)
	for i, entry := range r.entries {
		if i < drop && !entry.Staged {
			delete(r.byID, entry.Message.ID)
			continue
		}
		kept = append(kept, entry)
	}
	r.entries = kept
}
