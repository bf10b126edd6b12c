package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type markReadRequest struct {
	MessageID int64 `json:"message_id"`
}

// MarkRead advances the caller's read position in the channel. Positions
// never move backwards; stale acknowledgements are absorbed server-side.
func (h *Handler) MarkRead(c *gin.Context) {
	id, ok := h.identity(c)
	if !ok {
		return
	}
	channelID, ok := channelParam(c)
	if !ok {
		return
	}

	var req markReadRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.MessageID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message_id required"})
		return
	}

	if err := h.reads.MarkRead(c.Request.Context(), id.UserID, channelID, req.MessageID); err != nil {
		respondError(c, err)
		return
	}

	status, err := h.reads.Get(c.Request.Context(), id.UserID, channelID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"channel_id":           channelID,
		"last_read_message_id": status.LastReadMessageID,
	})
}
