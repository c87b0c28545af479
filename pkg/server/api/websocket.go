package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"

	"github.com/StrathCole/price-engine/pkg/logging"
	"github.com/StrathCole/price-engine/pkg/price"
)

// WebSocketServer streams committed engine events to connected clients. It is a
// price.EventSink and an http.Handler for the upgrade endpoint.
type WebSocketServer struct {
	logger   *logging.Logger
	decimals uint8
	upgrader websocket.Upgrader

	// Client management
	mu      sync.RWMutex
	clients map[*WebSocketClient]bool

	updates chan price.Event
}

var _ price.EventSink = (*WebSocketServer)(nil)

// WebSocketClient represents a connected WebSocket client.
type WebSocketClient struct {
	conn          *websocket.Conn
	send          chan []byte
	server        *WebSocketServer
	subscribedAll bool
	subscribedTo  map[common.Address]bool
	mu            sync.RWMutex
}

// WebSocketMessage represents a client message.
type WebSocketMessage struct {
	Type   string   `json:"type"`   // "subscribe", "unsubscribe", "ping"
	Assets []string `json:"assets"` // Asset addresses; empty or "*" means all
}

// EventMessage is sent to clients for every engine event they subscribe to.
type EventMessage struct {
	Type      string `json:"type"` // "event"
	Event     string `json:"event"`
	Asset     string `json:"asset"`
	Price     string `json:"price,omitempty"`
	Value     string `json:"value,omitempty"`
	Timestamp uint64 `json:"timestamp,omitempty"`
}

// NewWebSocketServer creates a new WebSocket server. decimals renders stored prices.
func NewWebSocketServer(decimals uint8, logger *logging.Logger) *WebSocketServer {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &WebSocketServer{
		logger:   logger,
		decimals: decimals,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				// Allow all origins (configure CORS as needed)
				return true
			},
		},
		clients: make(map[*WebSocketClient]bool),
		updates: make(chan price.Event, 100),
	}
}

// Run broadcasts queued events until ctx is cancelled, then disconnects every client.
func (s *WebSocketServer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			return
		case e := <-s.updates:
			s.broadcast(e)
		}
	}
}

// Emit implements price.EventSink. It never blocks the engine: when the queue is full the
// event is dropped.
func (s *WebSocketServer) Emit(e price.Event) {
	select {
	case s.updates <- e:
	default:
		s.logger.Warn("Update channel full, dropping event", "event", string(e.Type), "asset", e.Asset.Hex())
	}
}

// ClientCount returns the number of connected clients.
func (s *WebSocketServer) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// ServeHTTP upgrades the connection and registers the client.
func (s *WebSocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	client := &WebSocketClient{
		conn:          conn,
		send:          make(chan []byte, 256),
		server:        s,
		subscribedAll: true, // Subscribe to all by default
		subscribedTo:  make(map[common.Address]bool),
	}

	s.registerClient(client)

	// Start client goroutines
	go client.writePump()
	go client.readPump()

	s.logger.Info("New WebSocket client connected", "remote", conn.RemoteAddr().String())
}

// registerClient adds a client to the server.
func (s *WebSocketServer) registerClient(client *WebSocketClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client] = true
}

// unregisterClient removes a client from the server.
func (s *WebSocketServer) unregisterClient(client *WebSocketClient) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[client]; ok {
		delete(s.clients, client)
		close(client.send)
	}
}

func (s *WebSocketServer) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for client := range s.clients {
		delete(s.clients, client)
		close(client.send)
	}
}

// broadcast sends an event to all subscribed clients.
func (s *WebSocketServer) broadcast(e price.Event) {
	message := EventMessage{
		Type:      "event",
		Event:     string(e.Type),
		Asset:     e.Asset.Hex(),
		Timestamp: e.Timestamp,
	}
	if !e.Price.IsNil() {
		message.Price = e.Price.String()
		message.Value = formatValue(e.Price, s.decimals)
	}

	data, err := json.Marshal(message)
	if err != nil {
		s.logger.Error("Failed to marshal event", "error", err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for client := range s.clients {
		if client.shouldReceive(e.Asset) {
			select {
			case client.send <- data:
			default:
				s.logger.Warn("Client send buffer full, skipping update")
			}
		}
	}
}

// writePump sends messages to the WebSocket connection.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Channel closed
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.server.logger.Error("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads messages from the WebSocket connection.
func (c *WebSocketClient) readPump() {
	defer func() {
		c.server.unregisterClient(c)
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.logger.Error("WebSocket error", "error", err)
			}
			break
		}

		c.handleMessage(message)
	}
}

// handleMessage processes client messages.
func (c *WebSocketClient) handleMessage(data []byte) {
	var msg WebSocketMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.server.logger.Warn("Invalid client message", "error", err)
		return
	}

	switch msg.Type {
	case "subscribe":
		c.subscribe(msg.Assets)
		c.reply(map[string]interface{}{"type": "subscribed", "assets": msg.Assets})
	case "unsubscribe":
		c.unsubscribe(msg.Assets)
		c.reply(map[string]interface{}{"type": "unsubscribed", "assets": msg.Assets})
	case "ping":
		c.reply(map[string]string{"type": "pong"})
	default:
		c.server.logger.Warn("Unknown message type", "type", msg.Type)
	}
}

func wildcard(assets []string) bool {
	return len(assets) == 0 || (len(assets) == 1 && strings.TrimSpace(assets[0]) == "*")
}

// subscribe subscribes to specific assets. Invalid addresses are ignored.
func (c *WebSocketClient) subscribe(assets []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if wildcard(assets) {
		c.subscribedAll = true
		c.subscribedTo = make(map[common.Address]bool)
	} else {
		c.subscribedAll = false
		for _, a := range assets {
			if common.IsHexAddress(a) {
				c.subscribedTo[common.HexToAddress(a)] = true
			}
		}
	}

	c.server.logger.Debug("Client subscribed", "assets", assets)
}

// unsubscribe unsubscribes from specific assets.
func (c *WebSocketClient) unsubscribe(assets []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if wildcard(assets) {
		c.subscribedAll = false
		c.subscribedTo = make(map[common.Address]bool)
	} else {
		for _, a := range assets {
			if common.IsHexAddress(a) {
				delete(c.subscribedTo, common.HexToAddress(a))
			}
		}
	}

	c.server.logger.Debug("Client unsubscribed", "assets", assets)
}

// shouldReceive checks if client should receive an event for asset.
func (c *WebSocketClient) shouldReceive(asset common.Address) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscribedAll || c.subscribedTo[asset]
}

// reply queues a control message without blocking. The send channel is only closed
// under the server's write lock, so holding the read lock makes the send safe.
func (c *WebSocketClient) reply(v interface{}) {
	data, _ := json.Marshal(v)

	c.server.mu.RLock()
	defer c.server.mu.RUnlock()
	if !c.server.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}
