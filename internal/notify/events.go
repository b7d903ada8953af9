package notify

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Event is a notification fanned out to websocket subscribers
type Event struct {
	Type      string `json:"type"` // completed, waiting
	Dir       string `json:"dir"`
	Message   string `json:"message,omitempty"`
	Timestamp int64  `json:"timestamp"`
	Seq       int64  `json:"seq"`
}

// Broadcaster fans notification events out to websocket clients
type Broadcaster struct {
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
	seq     int64
}

type client struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

// NewBroadcaster creates an event broadcaster
func NewBroadcaster(logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		logger:  logger.With().Str("component", "events").Logger(),
		clients: make(map[string]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// local daemon, subscribers are on the same machine
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleWS upgrades the request and registers the subscriber
func (b *Broadcaster) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	c := &client{id: uuid.NewString(), conn: conn}

	b.mu.Lock()
	b.clients[c.id] = c
	count := len(b.clients)
	b.mu.Unlock()

	b.logger.Info().
		Str("client_id", c.id).
		Int("clients", count).
		Msg("Event subscriber connected")

	// reader goroutine detects disconnects, inbound payloads are ignored
	go func() {
		defer b.drop(c.id)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast sends an event to every connected subscriber
func (b *Broadcaster) Broadcast(eventType, dir, message string) {
	b.mu.Lock()
	b.seq++
	event := Event{
		Type:      eventType,
		Dir:       dir,
		Message:   message,
		Timestamp: time.Now().UnixMilli(),
		Seq:       b.seq,
	}
	clients := make([]*client, 0, len(b.clients))
	for _, c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.Unlock()

	if len(clients) == 0 {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error().Err(err).Msg("Failed to marshal event")
		return
	}

	for _, c := range clients {
		c.mu.Lock()
		err := c.conn.WriteMessage(websocket.TextMessage, data)
		c.mu.Unlock()
		if err != nil {
			b.logger.Warn().
				Err(err).
				Str("client_id", c.id).
				Msg("Dropping unreachable subscriber")
			b.drop(c.id)
		}
	}
}

// ClientCount returns the number of connected subscribers
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Close disconnects all subscribers
func (b *Broadcaster) Close() {
	b.mu.Lock()
	clients := make([]*client, 0, len(b.clients))
	for _, c := range b.clients {
		clients = append(clients, c)
	}
	b.clients = make(map[string]*client)
	b.mu.Unlock()

	for _, c := range clients {
		c.conn.Close()
	}
}

func (b *Broadcaster) drop(id string) {
	b.mu.Lock()
	c, ok := b.clients[id]
	if ok {
		delete(b.clients, id)
	}
	b.mu.Unlock()

	if ok {
		c.conn.Close()
	}
}
