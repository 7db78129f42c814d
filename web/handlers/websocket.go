package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket" //nolint:staticcheck // TODO: migrate to github.com/coder/websocket

	"github.com/scrypster/lorewiki/internal/logger"
)

const (
	clientSendBuffer = 64
	writeTimeout     = 10 * time.Second
)

// WebSocketHub fans image job events out to connected browsers.
type WebSocketHub struct {
	clients    map[hubClient]bool
	broadcast  chan interface{}
	register   chan hubClient
	unregister chan hubClient
	mu         sync.RWMutex

	originPatterns []string
	log            *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// hubClient is a connection as seen by the hub.
type hubClient interface {
	sendChannel() chan []byte
	close()
}

type wsClient struct {
	hub  *WebSocketHub
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *wsClient) sendChannel() chan []byte {
	return c.send
}

func (c *wsClient) close() {
	c.once.Do(func() {
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	})
}

// NewWebSocketHub creates a hub accepting browser connections whose Origin
// host matches one of originPatterns (e.g. "localhost:6464").
func NewWebSocketHub(originPatterns []string, log *logger.Logger) *WebSocketHub {
	ctx, cancel := context.WithCancel(context.Background())
	return &WebSocketHub{
		clients:        make(map[hubClient]bool),
		broadcast:      make(chan interface{}, 256),
		register:       make(chan hubClient),
		unregister:     make(chan hubClient),
		originPatterns: originPatterns,
		log:            log,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Run starts the hub's message processing loop. It returns after Stop.
func (h *WebSocketHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("websocket client connected", "clients", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.sendChannel())
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("websocket client disconnected", "clients", count)

		case message := <-h.broadcast:
			data, err := json.Marshal(message)
			if err != nil {
				h.log.Error("websocket message encoding failed", "error", err)
				continue
			}
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.sendChannel() <- data:
				default:
					// Slow consumer.
					close(client.sendChannel())
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()

		case <-h.ctx.Done():
			return
		}
	}
}

// Stop shuts the hub down and disconnects every client.
func (h *WebSocketHub) Stop() {
	h.cancel()

	h.mu.Lock()
	for client := range h.clients {
		close(client.sendChannel())
		client.close()
	}
	h.clients = make(map[hubClient]bool)
	h.mu.Unlock()
}

// ClientCount returns the number of connected clients.
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues message for every client. Messages are dropped when the
// queue is full.
func (h *WebSocketHub) Broadcast(message interface{}) {
	select {
	case h.broadcast <- message:
	default:
		h.log.Warn("websocket broadcast queue full, dropping message")
	}
}

func (h *WebSocketHub) add(c hubClient) bool {
	select {
	case h.register <- c:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *WebSocketHub) remove(c hubClient) {
	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
	}
}

// ServeHTTP upgrades the request and streams events to the client.
func (h *WebSocketHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{hub: h, conn: conn, send: make(chan []byte, clientSendBuffer)}
	if !h.add(client) {
		client.close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// writePump sends queued messages until the hub closes the send channel.
func (c *wsClient) writePump() {
	defer c.close()

	for message := range c.send {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := c.conn.Write(ctx, websocket.MessageText, message)
		cancel()
		if err != nil {
			c.hub.remove(c)
			return
		}
	}
}

// readPump drains client frames to notice disconnects.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.remove(c)
		c.close()
	}()

	for {
		if _, _, err := c.conn.Read(c.hub.ctx); err != nil {
			return
		}
	}
}
