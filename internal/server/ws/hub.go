// Package ws bridges the Redis signal bus to browser WebSocket clients so
// the frontend receives book updates and trades without polling.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dexlens/dexlens/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	// sendBufferSize is the channel buffer for outgoing messages per session.
	sendBufferSize = 256
)

// busChannels maps the signal bus channels the hub forwards. Every session
// starts subscribed to all of them; clients can narrow the set afterwards.
var busChannels = []string{"prices", "trades"}

func knownChannel(name string) bool {
	for _, ch := range busChannels {
		if ch == name {
			return true
		}
	}
	return false
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin enforcement happens in the CORS middleware upstream.
		return true
	},
}

// Hub fans signal bus messages out to connected WebSocket sessions.
type Hub struct {
	bus       domain.SignalBus
	logger    *slog.Logger
	mode      string
	startedAt time.Time

	feed chan busEvent

	mu       sync.RWMutex
	sessions map[*session]struct{}
}

// busEvent is one message read off the signal bus, tagged with its channel
// so the hub can route it to subscribed sessions only.
type busEvent struct {
	channel string
	data    []byte
}

// NewHub creates a hub over the given signal bus. mode is the process mode
// reported in status envelopes.
func NewHub(bus domain.SignalBus, mode string, logger *slog.Logger) *Hub {
	if mode == "" {
		mode = "unknown"
	}
	return &Hub{
		bus:       bus,
		logger:    logger,
		mode:      mode,
		startedAt: time.Now().UTC(),
		feed:      make(chan busEvent, 256),
		sessions:  make(map[*session]struct{}),
	}
}

// Run forwards bus messages to sessions until ctx is cancelled, then closes
// every remaining session. It should be called in a goroutine.
func (h *Hub) Run(ctx context.Context) error {
	for _, ch := range busChannels {
		go h.pump(ctx, ch)
	}

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		case evt := <-h.feed:
			h.fanOut(evt)
		}
	}
}

// pump subscribes to one bus channel and feeds its messages into the hub.
func (h *Hub) pump(ctx context.Context, channel string) {
	msgs, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		h.logger.Error("ws: bus subscribe failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}
	h.logger.Info("ws: forwarding bus channel", slog.String("channel", channel))

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgs:
			if !ok {
				h.logger.Warn("ws: bus subscription closed", slog.String("channel", channel))
				return
			}
			select {
			case h.feed <- busEvent{channel: channel, data: data}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// fanOut delivers one event to every session subscribed to its channel.
// Sessions with a full send buffer drop the event rather than stall the hub.
func (h *Hub) fanOut(evt busEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.sessions {
		if !s.subscribed(evt.channel) {
			continue
		}
		select {
		case s.send <- evt.data:
		default:
			h.logger.Warn("ws: dropping message for slow client",
				slog.String("session_id", s.id),
				slog.String("channel", evt.channel),
			)
		}
	}
}

func (h *Hub) attach(s *session) {
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	n := len(h.sessions)
	h.mu.Unlock()

	h.logger.Info("ws: client connected",
		slog.String("session_id", s.id),
		slog.Int("total_clients", n),
	)
}

func (h *Hub) detach(s *session) {
	h.mu.Lock()
	_, ok := h.sessions[s]
	if ok {
		delete(h.sessions, s)
		close(s.send)
	}
	n := len(h.sessions)
	h.mu.Unlock()

	if ok {
		h.logger.Info("ws: client disconnected",
			slog.String("session_id", s.id),
			slog.Int("total_clients", n),
		)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.sessions {
		close(s.send)
		delete(h.sessions, s)
	}
}

// HandleWS upgrades an HTTP request to a WebSocket connection and attaches
// the session to the hub.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	s := &session{
		id:     uuid.NewString(),
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		topics: make(map[string]bool, len(busChannels)),
	}
	for _, ch := range busChannels {
		s.topics[ch] = true
	}

	h.attach(s)
	s.queueStatus()

	go s.writeLoop()
	go s.readLoop()
}

// session is one WebSocket connection and its channel subscriptions.
type session struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	topics map[string]bool
}

// controlMsg is the JSON frame a client sends to manage its subscriptions.
type controlMsg struct {
	Action   string   `json:"action"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

func (s *session) subscribed(channel string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.topics[channel]
}

// applyControl updates the subscription set and returns the channels that
// actually changed. Unknown channel names are ignored.
func (s *session) applyControl(msg controlMsg) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed []string
	for _, ch := range msg.Channels {
		if !knownChannel(ch) {
			continue
		}
		switch msg.Action {
		case "subscribe":
			if !s.topics[ch] {
				s.topics[ch] = true
				changed = append(changed, ch)
			}
		case "unsubscribe":
			if s.topics[ch] {
				delete(s.topics, ch)
				changed = append(changed, ch)
			}
		}
	}
	return changed
}

// queueStatus pushes a JSON envelope so clients can mark the connection as
// healthy before any market events flow.
func (s *session) queueStatus() {
	uptime := max(int64(time.Since(s.hub.startedAt).Seconds()), 0)

	s.queueEnvelope("status", map[string]any{
		"mode":           s.hub.mode,
		"connected":      true,
		"uptime_seconds": uptime,
		"channels":       busChannels,
	})
}

func (s *session) queueEnvelope(typ string, payload any) {
	msg, err := json.Marshal(map[string]any{"type": typ, "payload": payload})
	if err != nil {
		return
	}
	select {
	case s.send <- msg:
	default:
	}
}

// readLoop consumes frames from the client, handling subscription control
// messages and pong keepalives, until the connection drops.
func (s *session) readLoop() {
	defer func() {
		s.hub.detach(s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.hub.logger.Warn("ws: unexpected close",
					slog.String("session_id", s.id),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var msg controlMsg
		if err := json.Unmarshal(frame, &msg); err != nil || msg.Action == "" {
			continue
		}
		if changed := s.applyControl(msg); len(changed) > 0 {
			s.queueEnvelope(msg.Action+"d", map[string]any{"channels": changed})
		}
	}
}

// writeLoop pumps queued messages to the connection and sends periodic ping
// frames for keepalive.
func (s *session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
