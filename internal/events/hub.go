package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/strand-chat/strand/internal/chat"
	"github.com/strand-chat/strand/internal/infra/cache"
	"go.uber.org/zap"
)

const sendBuffer = 500

// Metrics receives publish/drop counters. Optional.
type Metrics interface {
	RecordEventPublished(eventType string)
	RecordEventDropped()
}

// Hub fans chat events out to per-channel subscribers. Every published
// event gets a per-channel monotonic sequence number and is retained in a
// bounded replay ring so a subscriber reconnecting with its last seen
// sequence gets the gap replayed instead of a hole. With a relay attached
// the sequence comes from a shared redis counter and relayed events are
// recorded into the local ring, so resume stays gap-free across nodes.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*Client
	channels map[uuid.UUID]map[string]bool
	logs     map[uuid.UUID]*channelLog
	logger   *zap.Logger
	relay    *cache.Relay
	metrics  Metrics
	nodeID   string
	ringSize int
	shutdown bool
}

type channelLog struct {
	seq  uint64
	ring []*chat.Event
}

type Client struct {
	ID       string
	UserID   uuid.UUID
	SendChan chan *chat.Event
	subs     map[uuid.UUID]bool
	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
}

func (c *Client) Context() context.Context {
	return c.ctx
}

func NewHub(logger *zap.Logger, relay *cache.Relay, ringSize int) *Hub {
	if ringSize <= 0 {
		ringSize = 256
	}
	return &Hub{
		clients:  make(map[string]*Client),
		channels: make(map[uuid.UUID]map[string]bool),
		logs:     make(map[uuid.UUID]*channelLog),
		logger:   logger,
		relay:    relay,
		nodeID:   uuid.New().String(),
		ringSize: ringSize,
	}
}

// SetMetrics attaches counters. Call before the hub starts serving clients.
func (h *Hub) SetMetrics(m Metrics) {
	h.metrics = m
}

// relayEnvelope wraps events crossing the redis relay so a node can drop
// its own publications when they come back around.
type relayEnvelope struct {
	Origin string     `json:"origin"`
	Event  chat.Event `json:"event"`
}

// StartRelay consumes events published by other nodes until ctx is done.
func (h *Hub) StartRelay(ctx context.Context) {
	if h.relay == nil {
		return
	}
	go func() {
		err := h.relay.Subscribe(ctx, "strand:events:*", func(channel string, payload []byte) {
			var env relayEnvelope
			if err := json.Unmarshal(payload, &env); err != nil {
				h.logger.Warn("malformed relay payload", zap.Error(err))
				return
			}
			if env.Origin == h.nodeID {
				return
			}
			h.ingestRemote(&env.Event)
		})
		if err != nil && ctx.Err() == nil {
			h.logger.Error("event relay stopped", zap.Error(err))
		}
	}()
}

func (h *Hub) AddClient(ctx context.Context, userID uuid.UUID) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.shutdown {
		return nil
	}

	cctx, cancel := context.WithCancel(ctx)
	client := &Client{
		ID:       uuid.New().String(),
		UserID:   userID,
		SendChan: make(chan *chat.Event, sendBuffer),
		subs:     make(map[uuid.UUID]bool),
		ctx:      cctx,
		cancel:   cancel,
	}
	h.clients[client.ID] = client

	h.logger.Debug("client connected",
		zap.String("client_id", client.ID),
		zap.String("user_id", userID.String()),
	)
	return client
}

func (h *Hub) RemoveClient(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[clientID]
	if !ok {
		return
	}

	for channelID := range client.subs {
		if subs, exists := h.channels[channelID]; exists {
			delete(subs, clientID)
			if len(subs) == 0 {
				delete(h.channels, channelID)
			}
		}
	}

	client.cancel()
	close(client.SendChan)
	delete(h.clients, clientID)

	h.logger.Debug("client disconnected", zap.String("client_id", clientID))
}

// Subscribe registers the client for a channel's events. Events newer than
// lastSeq still held in the replay ring are queued to the client before any
// live event, preserving order.
func (h *Hub) Subscribe(clientID string, channelID uuid.UUID, lastSeq uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[clientID]
	if !ok {
		return false
	}

	select {
	case <-client.ctx.Done():
		return false
	default:
	}

	client.mu.Lock()
	client.subs[channelID] = true
	client.mu.Unlock()

	if _, exists := h.channels[channelID]; !exists {
		h.channels[channelID] = make(map[string]bool)
	}
	h.channels[channelID][clientID] = true

	if lastSeq > 0 {
		if log, exists := h.logs[channelID]; exists {
			for _, ev := range log.ring {
				if ev.Seq > lastSeq {
					h.send(client, ev)
				}
			}
		}
	}

	return true
}

func (h *Hub) Unsubscribe(clientID string, channelID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[clientID]
	if !ok {
		return
	}

	client.mu.Lock()
	delete(client.subs, channelID)
	client.mu.Unlock()

	if subs, exists := h.channels[channelID]; exists {
		delete(subs, clientID)
		if len(subs) == 0 {
			delete(h.channels, channelID)
		}
	}
}

// Publish assigns identity and sequence to the event, records it for
// replay, delivers it locally and hands it to the cross-node relay.
func (h *Hub) Publish(ctx context.Context, channelID uuid.UUID, event *chat.Event) {
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	event.ChannelID = channelID

	// A shared counter keeps sequences monotonic across nodes; without a
	// relay (or when redis hiccups) the node-local counter takes over.
	var seq uint64
	if h.relay != nil {
		n, err := h.relay.NextSeq(ctx, "strand:seq:"+channelID.String())
		if err != nil {
			h.logger.Warn("shared sequence unavailable, falling back to local",
				zap.String("channel_id", channelID.String()),
				zap.Error(err),
			)
		} else {
			seq = n
		}
	}

	h.mu.Lock()
	log := h.channelLogLocked(channelID)
	if seq == 0 {
		seq = log.seq + 1
	}
	if seq > log.seq {
		log.seq = seq
	}
	event.Seq = seq
	h.appendLocked(log, event)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.RecordEventPublished(string(event.Type))
	}

	h.deliver(channelID, event)

	if h.relay != nil {
		payload, err := json.Marshal(relayEnvelope{Origin: h.nodeID, Event: *event})
		if err == nil {
			if err := h.relay.Publish(ctx, "strand:events:"+channelID.String(), payload); err != nil {
				h.logger.Warn("relay publish failed",
					zap.String("channel_id", channelID.String()),
					zap.Error(err),
				)
			}
		}
	}
}

func (h *Hub) channelLogLocked(channelID uuid.UUID) *channelLog {
	log, exists := h.logs[channelID]
	if !exists {
		log = &channelLog{}
		h.logs[channelID] = log
	}
	return log
}

func (h *Hub) appendLocked(log *channelLog, event *chat.Event) {
	log.ring = append(log.ring, event)
	if len(log.ring) > h.ringSize {
		log.ring = log.ring[len(log.ring)-h.ringSize:]
	}
}

// ingestRemote records an event published by another node into the local
// replay ring before delivering it, so a reconnecting subscriber can resume
// across events regardless of which node originally published them.
func (h *Hub) ingestRemote(event *chat.Event) {
	h.mu.Lock()
	log := h.channelLogLocked(event.ChannelID)
	if event.Seq > log.seq {
		log.seq = event.Seq
	}
	h.appendLocked(log, event)
	h.mu.Unlock()

	h.deliver(event.ChannelID, event)
}

func (h *Hub) deliver(channelID uuid.UUID, event *chat.Event) {
	h.mu.RLock()
	subs := h.channels[channelID]
	clients := make([]*Client, 0, len(subs))
	for clientID := range subs {
		if client, ok := h.clients[clientID]; ok {
			clients = append(clients, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range clients {
		h.send(client, event)
	}
}

func (h *Hub) send(client *Client, event *chat.Event) {
	select {
	case client.SendChan <- event:
	default:
		if h.metrics != nil {
			h.metrics.RecordEventDropped()
		}
		h.logger.Warn("client channel full, dropping event",
			zap.String("client_id", client.ID),
			zap.String("event_id", event.EventID),
		)
	}
}

// LastSeq reports the channel's current sequence number.
func (h *Hub) LastSeq(channelID uuid.UUID) uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if log, ok := h.logs[channelID]; ok {
		return log.seq
	}
	return 0
}

func (h *Hub) ChannelHasSubscribers(channelID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	subs, ok := h.channels[channelID]
	return ok && len(subs) > 0
}

func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.shutdown = true
	clientsToClose := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clientsToClose = append(clientsToClose, client)
	}
	h.clients = make(map[string]*Client)
	h.channels = make(map[uuid.UUID]map[string]bool)
	h.mu.Unlock()

	for _, client := range clientsToClose {
		client.cancel()
		close(client.SendChan)
	}

	h.logger.Info("event hub shut down", zap.Int("clients", len(clientsToClose)))
	return nil
}
