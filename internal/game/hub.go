package game

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"crashfair/internal/logger"
)

const (
	BROADCAST_BUFFER = 256
	CLIENT_BUFFER    = 64
	WRITE_TIMEOUT    = 10 * time.Second
)

type Client struct {
	conn   *websocket.Conn
	userID string
	out    chan []byte
	mu     sync.Mutex
	closed bool
}

// Hub fans snapshots out to every websocket client. Slow consumers lose messages;
// the publisher is never blocked.
type Hub struct {
	clients   map[*Client]bool
	broadcast chan interface{}
	register  chan *Client
	done      chan struct{}
	mu        sync.RWMutex
	log       *logger.Logger
}

func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		clients:   make(map[*Client]bool),
		broadcast: make(chan interface{}, BROADCAST_BUFFER),
		register:  make(chan *Client),
		done:      make(chan struct{}),
		log:       log.With("ws"),
	}
}

// Run owns registration and fan-out until ctx is cancelled. Clients still
// connected at that point are closed.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				client.close()
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Info().Str("user", client.userID).Int("total", total).Msg("[WS] client connected")

		case message := <-h.broadcast:
			data, err := json.Marshal(message)
			if err != nil {
				h.log.Error().Err(err).Msg("[WS] marshal error")
				continue
			}

			h.mu.RLock()
			for client := range h.clients {
				client.enqueue(data)
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) Broadcast(message interface{}) {
	select {
	case h.broadcast <- message:
	default:
		h.log.Warn().Msg("[WS] broadcast channel full, dropping message")
	}
}

// Publish implements Publisher for the game engines.
func (h *Hub) Publish(snap Snapshot) {
	h.Broadcast(WSMessage{Type: snap.Event, Data: snap})
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RegisterClient starts the client's writer and adds it to the fan-out set.
func (h *Hub) RegisterClient(conn *websocket.Conn, userID string) *Client {
	client := &Client{
		conn:   conn,
		userID: userID,
		out:    make(chan []byte, CLIENT_BUFFER),
	}
	go client.writePump(h.log)
	select {
	case h.register <- client:
	case <-h.done:
		client.close()
	}
	return client
}

// UnregisterClient removes the client before returning. Safe to call after Run exited.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client]
	delete(h.clients, client)
	total := len(h.clients)
	h.mu.Unlock()

	client.close()
	if ok {
		h.log.Info().Str("user", client.userID).Int("total", total).Msg("[WS] client disconnected")
	}
}

// Send queues a direct reply to this client only.
func (c *Client) Send(message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	c.enqueue(data)
	return nil
}

func (c *Client) enqueue(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.out <- data:
	default:
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.out)
	}
}

func (c *Client) writePump(log *logger.Logger) {
	for data := range c.out {
		if c.conn == nil {
			continue
		}
		c.conn.SetWriteDeadline(time.Now().Add(WRITE_TIMEOUT))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Warn().Err(err).Str("user", c.userID).Msg("[WS] write error")
		}
	}
}
