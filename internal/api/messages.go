package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/strand-chat/strand/internal/chat"
	"github.com/strand-chat/strand/internal/common/errors"
	"github.com/strand-chat/strand/internal/common/pagination"
	"github.com/strand-chat/strand/internal/cook"
	"github.com/strand-chat/strand/internal/ingest"
	"go.uber.org/zap"
)

type createMessageRequest struct {
	Content   string      `json:"content"`
	ReplyToID *int64      `json:"reply_to_id,omitempty"`
	ThreadID  *uuid.UUID  `json:"thread_id,omitempty"`
	StagedID  string      `json:"staged_id,omitempty"`
	UploadIDs []uuid.UUID `json:"upload_ids,omitempty"`
}

// CreateMessage feeds the ingestion pipeline. On success the persisted
// message comes back with the submitter's staged id echoed so the client can
// reconcile its speculative copy.
func (h *Handler) CreateMessage(c *gin.Context) {
	id, ok := h.identity(c)
	if !ok {
		return
	}
	channelID, ok := channelParam(c)
	if !ok {
		return
	}

	var req createMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result := h.pipeline.Create(c.Request.Context(), ingest.CreateRequest{
		ChannelID: channelID,
		UserID:    id.UserID,
		Content:   req.Content,
		ReplyToID: req.ReplyToID,
		ThreadID:  req.ThreadID,
		StagedID:  req.StagedID,
		UploadIDs: req.UploadIDs,
	})
	if !result.OK() {
		respondError(c, result.Err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":   result.Message,
		"staged_id": req.StagedID,
	})
}

// ListMessages serves windowed pages. Without parameters it returns the
// newest page; target_message_id centers the window; message_id plus
// direction extends one edge.
func (h *Handler) ListMessages(c *gin.Context) {
	id, ok := h.identity(c)
	if !ok {
		return
	}
	channelID, ok := channelParam(c)
	if !ok {
		return
	}

	if _, err := h.channels.GetMember(c.Request.Context(), channelID, id.UserID); err != nil {
		respondError(c, errors.Forbidden("not a channel member"))
		return
	}

	req := pagination.Request{
		PageSize: pagination.Normalize(
			queryInt(c, "page_size"),
			h.cfg.Chat.PageSize,
			h.cfg.Chat.MaxPageSize,
		),
		Direction: pagination.Direction(c.Query("direction")),
	}
	if v := c.Query("target_message_id"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid target_message_id"})
			return
		}
		req.TargetMessageID = &n
	}
	if v := c.Query("message_id"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message_id"})
			return
		}
		req.MessageID = &n
	}

	window, err := h.messages.ListWindow(c.Request.Context(), channelID, req)
	if err != nil {
		respondError(c, err)
		return
	}

	meta := pagination.Meta{
		ChannelID:         channelID.String(),
		TargetMessageID:   req.TargetMessageID,
		CanLoadMorePast:   window.CanLoadMorePast,
		CanLoadMoreFuture: window.CanLoadMoreFuture,
	}
	if status, err := h.reads.Get(c.Request.Context(), id.UserID, channelID); err == nil {
		meta.LastReadMessageID = status.LastReadMessageID
	}

	c.JSON(http.StatusOK, gin.H{
		"messages": window.Messages,
		"meta":     meta,
	})
}

func (h *Handler) GetMessage(c *gin.Context) {
	if _, ok := h.identity(c); !ok {
		return
	}
	msgID, ok := messageParam(c)
	if !ok {
		return
	}

	msg, err := h.messages.GetByID(c.Request.Context(), msgID)
	if err != nil {
		respondError(c, err)
		return
	}
	if msg.Deleted() {
		respondError(c, errors.NotFound("message not found"))
		return
	}

	c.JSON(http.StatusOK, msg)
}

type editMessageRequest struct {
	Content string `json:"content"`
}

func (h *Handler) EditMessage(c *gin.Context) {
	id, ok := h.identity(c)
	if !ok {
		return
	}
	msgID, ok := messageParam(c)
	if !ok {
		return
	}

	var req editMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content required"})
		return
	}
	if len(req.Content) > h.cfg.Chat.MaxContentLength {
		respondError(c, errors.Invalid("message too long").WithReason("invalid_message_content"))
		return
	}

	msg, err := h.messages.GetByID(c.Request.Context(), msgID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !h.canModify(c, id.UserID, msg) {
		return
	}

	cooked, err := h.renderer.Cook(req.Content)
	if err != nil {
		respondError(c, errors.Internal("render failed", err))
		return
	}

	msg.Content = req.Content
	msg.Cooked = cooked
	msg.Excerpt = cook.Excerpt(cooked, 140)
	if err := h.messages.Update(c.Request.Context(), msg); err != nil {
		respondError(c, err)
		return
	}

	h.hub.Publish(c.Request.Context(), msg.ChannelID, &chat.Event{
		Type:      chat.EventEdit,
		ChannelID: msg.ChannelID,
		Message:   msg,
	})

	c.JSON(http.StatusOK, msg)
}

func (h *Handler) DeleteMessage(c *gin.Context) {
	id, ok := h.identity(c)
	if !ok {
		return
	}
	msgID, ok := messageParam(c)
	if !ok {
		return
	}

	msg, err := h.messages.GetByID(c.Request.Context(), msgID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !h.canModify(c, id.UserID, msg) {
		return
	}

	now := time.Now()
	if err := h.messages.SoftDelete(c.Request.Context(), msgID, now); err != nil {
		respondError(c, err)
		return
	}

	h.hub.Publish(c.Request.Context(), msg.ChannelID, &chat.Event{
		Type:      chat.EventDelete,
		ChannelID: msg.ChannelID,
		MessageID: msgID,
		DeletedAt: &now,
		DeletedID: id.UserID,
	})

	c.Status(http.StatusNoContent)
}

// RestoreMessage undoes a soft delete. Staff only.
func (h *Handler) RestoreMessage(c *gin.Context) {
	id, ok := h.identity(c)
	if !ok {
		return
	}
	msgID, ok := messageParam(c)
	if !ok {
		return
	}

	if !id.Staff {
		respondError(c, errors.Forbidden("staff only"))
		return
	}

	msg, err := h.messages.Restore(c.Request.Context(), msgID)
	if err != nil {
		respondError(c, err)
		return
	}

	h.hub.Publish(c.Request.Context(), msg.ChannelID, &chat.Event{
		Type:      chat.EventRestore,
		ChannelID: msg.ChannelID,
		Message:   msg,
	})

	c.JSON(http.StatusOK, msg)
}

type reactionRequest struct {
	Emoji string `json:"emoji"`
}

func (h *Handler) AddReaction(c *gin.Context) {
	id, ok := h.identity(c)
	if !ok {
		return
	}
	msgID, ok := messageParam(c)
	if !ok {
		return
	}

	var req reactionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Emoji == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "emoji required"})
		return
	}

	msg, err := h.messages.GetByID(c.Request.Context(), msgID)
	if err != nil {
		respondError(c, err)
		return
	}
	if msg.Deleted() {
		respondError(c, errors.NotFound("message not found"))
		return
	}

	reaction, err := h.messages.AddReaction(c.Request.Context(), msgID, id.UserID, req.Emoji)
	if err != nil {
		respondError(c, err)
		return
	}

	h.hub.Publish(c.Request.Context(), msg.ChannelID, &chat.Event{
		Type:      chat.EventReaction,
		ChannelID: msg.ChannelID,
		MessageID: msgID,
		Reaction: &chat.ReactionChange{
			Action: chat.ReactionAdd,
			Emoji:  req.Emoji,
			UserID: id.UserID,
		},
	})

	c.JSON(http.StatusCreated, reaction)
}

func (h *Handler) RemoveReaction(c *gin.Context) {
	id, ok := h.identity(c)
	if !ok {
		return
	}
	msgID, ok := messageParam(c)
	if !ok {
		return
	}
	emoji := c.Param("emoji")

	msg, err := h.messages.GetByID(c.Request.Context(), msgID)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.messages.RemoveReaction(c.Request.Context(), msgID, id.UserID, emoji); err != nil {
		respondError(c, err)
		return
	}

	h.hub.Publish(c.Request.Context(), msg.ChannelID, &chat.Event{
		Type:      chat.EventReaction,
		ChannelID: msg.ChannelID,
		MessageID: msgID,
		Reaction: &chat.ReactionChange{
			Action: chat.ReactionRemove,
			Emoji:  emoji,
			UserID: id.UserID,
		},
	})

	c.Status(http.StatusNoContent)
}

// canModify allows the author and channel staff; it writes the response on
// denial.
func (h *Handler) canModify(c *gin.Context, userID uuid.UUID, msg *chat.Message) bool {
	if msg.AuthorID == userID {
		return true
	}
	staff, err := h.caps.IsStaff(c.Request.Context(), userID, msg.ChannelID)
	if err != nil {
		h.logger.Warn("staff check failed", zap.Error(err))
		respondError(c, errors.Internal("authorization check failed", err))
		return false
	}
	if !staff {
		respondError(c, errors.Forbidden("not the author"))
		return false
	}
	return true
}

func messageParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string) int {
	v := c.Query(name)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
