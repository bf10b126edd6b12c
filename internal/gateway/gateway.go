package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/strand-chat/strand/internal/channels"
	"github.com/strand-chat/strand/internal/common/errors"
	"github.com/strand-chat/strand/internal/events"
	"github.com/strand-chat/strand/internal/middleware"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxCommandSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// command is what the client sends over the socket.
type command struct {
	Action    string    `json:"action"`
	ChannelID uuid.UUID `json:"channel_id"`
	// LastSeq resumes a subscription: events still buffered past this
	// sequence are replayed before live delivery starts.
	LastSeq uint64 `json:"last_seq,omitempty"`
}

type ack struct {
	Action    string    `json:"action"`
	ChannelID uuid.UUID `json:"channel_id"`
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
	// LastSeq on a subscribe ack is the channel's current sequence, the
	// client's resume point for the next reconnect.
	LastSeq uint64 `json:"last_seq,omitempty"`
}

// Metrics tracks the connected-client gauge. Optional.
type Metrics interface {
	StreamConnected()
	StreamDisconnected()
}

// Gateway upgrades API connections to websockets and bridges them onto the
// event hub.
type Gateway struct {
	hub      *events.Hub
	channels *channels.Repository
	metrics  Metrics
	logger   *zap.Logger
}

func New(hub *events.Hub, channels *channels.Repository, metrics Metrics, logger *zap.Logger) *Gateway {
	return &Gateway{
		hub:      hub,
		channels: channels,
		metrics:  metrics,
		logger:   logger,
	}
}

// Handler is mounted behind the auth middleware; the token rides the query
// string since browsers cannot set websocket headers.
func (g *Gateway) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := middleware.CurrentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			g.logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		// The request context dies when the handler returns; the upgraded
		// connection outlives it.
		client := g.hub.AddClient(context.Background(), id.UserID)
		if client == nil {
			_ = conn.Close()
			return
		}
		if g.metrics != nil {
			g.metrics.StreamConnected()
		}

		go g.writePump(conn, client)
		go g.readPump(conn, client, id.UserID)
	}
}

func (g *Gateway) readPump(conn *websocket.Conn, client *events.Client, userID uuid.UUID) {
	defer func() {
		g.hub.RemoveClient(client.ID)
		_ = conn.Close()
		if g.metrics != nil {
			g.metrics.StreamDisconnected()
		}
	}()

	conn.SetReadLimit(maxCommandSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}

		var cmd command
		if err := json.Unmarshal(payload, &cmd); err != nil {
			g.writeJSON(conn, ack{Action: "error", OK: false, Error: "malformed command"})
			continue
		}

		switch cmd.Action {
		case "subscribe":
			g.handleSubscribe(conn, client, userID, cmd)
		case "unsubscribe":
			g.hub.Unsubscribe(client.ID, cmd.ChannelID)
			g.writeJSON(conn, ack{Action: "unsubscribe", ChannelID: cmd.ChannelID, OK: true})
		default:
			g.writeJSON(conn, ack{Action: cmd.Action, ChannelID: cmd.ChannelID, OK: false, Error: "unknown action"})
		}
	}
}

func (g *Gateway) handleSubscribe(conn *websocket.Conn, client *events.Client, userID uuid.UUID, cmd command) {
	_, err := g.channels.GetMember(client.Context(), cmd.ChannelID, userID)
	if err != nil {
		reason := "not a channel member"
		if !errors.IsNotFound(err) {
			reason = "membership check failed"
			g.logger.Warn("membership lookup failed", zap.Error(err))
		}
		g.writeJSON(conn, ack{Action: "subscribe", ChannelID: cmd.ChannelID, OK: false, Error: reason})
		return
	}

	if !g.hub.Subscribe(client.ID, cmd.ChannelID, cmd.LastSeq) {
		g.writeJSON(conn, ack{Action: "subscribe", ChannelID: cmd.ChannelID, OK: false, Error: "client gone"})
		return
	}

	g.writeJSON(conn, ack{
		Action:    "subscribe",
		ChannelID: cmd.ChannelID,
		OK:        true,
		LastSeq:   g.hub.LastSeq(cmd.ChannelID),
	})
}

func (g *Gateway) writePump(conn *websocket.Conn, client *events.Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case event, ok := <-client.SendChan:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-client.Context().Done():
			return
		}
	}
}

func (g *Gateway) writeJSON(conn *websocket.Conn, v any) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(v); err != nil {
		g.logger.Debug("websocket write failed", zap.Error(err))
	}
}
