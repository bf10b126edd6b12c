package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/strand-chat/strand/internal/channels"
	"github.com/strand-chat/strand/internal/chat"
	"github.com/strand-chat/strand/internal/common/config"
	"github.com/strand-chat/strand/internal/common/errors"
	"github.com/strand-chat/strand/internal/cook"
	"github.com/strand-chat/strand/internal/drafts"
	"github.com/strand-chat/strand/internal/ingest"
	"github.com/strand-chat/strand/internal/messages"
	"github.com/strand-chat/strand/internal/middleware"
	"github.com/strand-chat/strand/internal/readtracking"
	"go.uber.org/zap"
)

type eventPublisher interface {
	Publish(ctx context.Context, channelID uuid.UUID, event *chat.Event)
}

// Handler carries the HTTP surface of the chat API.
type Handler struct {
	pipeline *ingest.Pipeline
	messages *messages.Repository
	channels *channels.Repository
	caps     chat.Capabilities
	drafts   *drafts.Repository
	reads    *readtracking.Repository
	renderer *cook.Renderer
	hub      eventPublisher
	cfg      *config.Config
	logger   *zap.Logger
}

func NewHandler(
	pipeline *ingest.Pipeline,
	msgs *messages.Repository,
	chans *channels.Repository,
	caps chat.Capabilities,
	drafts *drafts.Repository,
	reads *readtracking.Repository,
	renderer *cook.Renderer,
	hub eventPublisher,
	cfg *config.Config,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		pipeline: pipeline,
		messages: msgs,
		channels: chans,
		caps:     caps,
		drafts:   drafts,
		reads:    reads,
		renderer: renderer,
		hub:      hub,
		cfg:      cfg,
		logger:   logger,
	}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.POST("/channels/:channel_id/messages", h.CreateMessage)
	r.GET("/channels/:channel_id/messages", h.ListMessages)
	r.GET("/messages/:id", h.GetMessage)
	r.PUT("/messages/:id", h.EditMessage)
	r.DELETE("/messages/:id", h.DeleteMessage)
	r.POST("/messages/:id/restore", h.RestoreMessage)
	r.POST("/messages/:id/reactions", h.AddReaction)
	r.DELETE("/messages/:id/reactions/:emoji", h.RemoveReaction)
	r.GET("/channels/:channel_id/draft", h.GetDraft)
	r.PUT("/channels/:channel_id/draft", h.SaveDraft)
	r.DELETE("/channels/:channel_id/draft", h.DeleteDraft)
	r.POST("/channels/:channel_id/read", h.MarkRead)
}

func (h *Handler) identity(c *gin.Context) (middleware.Identity, bool) {
	id, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
	}
	return id, ok
}

func respondError(c *gin.Context, err error) {
	body := gin.H{"error": err.Error()}
	if reason := errors.ReasonOf(err); reason != "" {
		body["reason"] = reason
	}
	c.JSON(errors.StatusOf(err), body)
}

func channelParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("channel_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel id"})
		return uuid.Nil, false
	}
	return id, true
}
