package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans commit-applied events out to websocket clients subscribed to a
// flow. It implements Notifier, collapsed down to the single flow_id
// subscription dimension this engine needs.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan CommitApplied

	byFlowID map[string]map[*Client]bool

	logger zerolog.Logger
	mu     sync.RWMutex
}

// NewHub creates a Hub. Call Run in a goroutine before use.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan CommitApplied, 256),
		byFlowID:   make(map[string]map[*Client]bool),
		logger:     logger.With().Str("component", "notify").Logger(),
	}
}

// Run drives the hub's event loop until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		case event := <-h.broadcast:
			h.deliver(event)
		}
	}
}

// Publish implements Notifier.
func (h *Hub) Publish(ctx context.Context, event CommitApplied) {
	select {
	case h.broadcast <- event:
	case <-ctx.Done():
	}
}

// Upgrade promotes an HTTP request to a websocket client subscribed to
// flowID and registers it with the hub.
func (h *Hub) Upgrade(w http.ResponseWriter, r *http.Request, flowID string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	client := &Client{hub: h, conn: conn, send: make(chan CommitApplied, sendBufferSize), flowID: flowID}
	h.register <- client
	go client.writePump()
	go client.readPump()
	return nil
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
	if h.byFlowID[c.flowID] == nil {
		h.byFlowID[c.flowID] = make(map[*Client]bool)
	}
	h.byFlowID[c.flowID][c] = true
	h.logger.Debug().Str("flow_id", c.flowID).Int("clients", len(h.clients)).Msg("client registered")
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	if clients, ok := h.byFlowID[c.flowID]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.byFlowID, c.flowID)
		}
	}
}

func (h *Hub) deliver(event CommitApplied) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.byFlowID[event.FlowID] {
		select {
		case client.send <- event:
		default:
			h.logger.Warn().Str("client_id", client.flowID).Msg("client send buffer full, dropping commit event")
		}
	}
}

// ClientCount reports the number of connected clients, for diagnostics.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Client is one subscriber connection, pinned to a single flow.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan CommitApplied
	flowID string
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case event, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
