package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/strand-chat/strand/internal/chat"
	"github.com/strand-chat/strand/internal/common/errors"
)

type saveDraftRequest struct {
	Content   string      `json:"content"`
	ReplyToID *int64      `json:"reply_to_id,omitempty"`
	UploadIDs []uuid.UUID `json:"upload_ids,omitempty"`
}

// SaveDraft upserts the user's per-channel draft. Clients debounce the calls;
// the server just takes the latest write.
func (h *Handler) SaveDraft(c *gin.Context) {
	id, ok := h.identity(c)
	if !ok {
		return
	}
	channelID, ok := channelParam(c)
	if !ok {
		return
	}

	var req saveDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if len(req.Content) > h.cfg.Chat.MaxContentLength {
		respondError(c, errors.Invalid("draft too long").WithReason("invalid_message_content"))
		return
	}

	draft := &chat.Draft{
		ChannelID: channelID,
		UserID:    id.UserID,
		Content:   req.Content,
		ReplyToID: req.ReplyToID,
		UploadIDs: req.UploadIDs,
	}
	if err := h.drafts.Upsert(c.Request.Context(), draft); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, draft)
}

func (h *Handler) GetDraft(c *gin.Context) {
	id, ok := h.identity(c)
	if !ok {
		return
	}
	channelID, ok := channelParam(c)
	if !ok {
		return
	}

	draft, err := h.drafts.Get(c.Request.Context(), channelID, id.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, draft)
}

func (h *Handler) DeleteDraft(c *gin.Context) {
	id, ok := h.identity(c)
	if !ok {
		return
	}
	channelID, ok := channelParam(c)
	if !ok {
		return
	}

	if err := h.drafts.Delete(c.Request.Context(), channelID, id.UserID); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
