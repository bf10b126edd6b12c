package client

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/strand-chat/strand/internal/chat"
	"github.com/strand-chat/strand/internal/retry"
	"go.uber.org/zap"
)

// Subscriber maintains the websocket to the gateway and feeds events to a
// handler on a single goroutine, preserving bus arrival order. On reconnect
// it resubscribes with the last sequence it saw per channel so the server
// replays the gap.
type Subscriber struct {
	wsURL   string
	token   string
	handler func(*chat.Event)
	logger  *zap.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	channels map[uuid.UUID]uint64
}

func NewSubscriber(wsURL, token string, handler func(*chat.Event), logger *zap.Logger) *Subscriber {
	return &Subscriber{
		wsURL:    wsURL,
		token:    token,
		handler:  handler,
		logger:   logger,
		channels: make(map[uuid.UUID]uint64),
	}
}

type wsCommand struct {
	Action    string    `json:"action"`
	ChannelID uuid.UUID `json:"channel_id"`
	LastSeq   uint64    `json:"last_seq,omitempty"`
}

// Subscribe registers interest in a channel. Safe to call before Run; the
// subscription is replayed on every (re)connect.
func (s *Subscriber) Subscribe(channelID uuid.UUID) error {
	s.mu.Lock()
	if _, ok := s.channels[channelID]; !ok {
		s.channels[channelID] = 0
	}
	lastSeq := s.channels[channelID]
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.WriteJSON(wsCommand{Action: "subscribe", ChannelID: channelID, LastSeq: lastSeq})
}

func (s *Subscriber) Unsubscribe(channelID uuid.UUID) error {
	s.mu.Lock()
	delete(s.channels, channelID)
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.WriteJSON(wsCommand{Action: "unsubscribe", ChannelID: channelID})
}

// Run connects and pumps events until ctx is done, reconnecting with
// jittered backoff on failure.
func (s *Subscriber) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		err := retry.WithBackoff(ctx, retry.Config{
			MaxAttempts: 8,
			InitialWait: time.Second,
			MaxWait:     30 * time.Second,
			Multiplier:  2.0,
		}, func() error {
			return s.connect(ctx)
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("gateway connect failed, retrying", zap.Error(err))
			continue
		}

		s.readLoop(ctx)
	}
}

func (s *Subscriber) connect(ctx context.Context) error {
	u, err := url.Parse(s.wsURL)
	if err != nil {
		return err
	}
	q := u.Query()
	q.Set("token", s.token)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conn = conn
	resume := make(map[uuid.UUID]uint64, len(s.channels))
	for id, seq := range s.channels {
		resume[id] = seq
	}
	s.mu.Unlock()

	for id, seq := range resume {
		if err := conn.WriteJSON(wsCommand{Action: "subscribe", ChannelID: id, LastSeq: seq}); err != nil {
			_ = conn.Close()
			return err
		}
	}
	return nil
}

func (s *Subscriber) readLoop(ctx context.Context) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	defer func() {
		_ = conn.Close()
		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		s.mu.Unlock()
	}()

	// The waiter must not outlive this connection, or every reconnect
	// strands one goroutine on ctx.Done.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Debug("gateway read error", zap.Error(err))
			}
			return
		}

		var event chat.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			// Acks and errors share the socket; skip anything that is not
			// an event.
			continue
		}
		if event.Type == "" {
			continue
		}

		s.mu.Lock()
		if seq, ok := s.channels[event.ChannelID]; ok && event.Seq > seq {
			s.channels[event.ChannelID] = event.Seq
		}
		s.mu.Unlock()

		s.handler(&event)
	}
}
