package gateway

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/soyeahso/promptsmith/internal/logging"
)

const writeTimeout = 10 * time.Second

// Client is one WebSocket connection. Writes from the read loop and from
// evaluator goroutines are serialized by mu.
type Client struct {
	ConnID      string
	Socket      *websocket.Conn
	RemoteAddr  string
	ConnectedAt time.Time

	mu     sync.Mutex
	closed bool
	log    *logging.Logger
}

// NewClient wraps an upgraded connection.
func NewClient(conn *websocket.Conn, log *logging.Logger) *Client {
	c := &Client{
		ConnID:      uuid.New().String(),
		Socket:      conn,
		ConnectedAt: time.Now(),
	}
	if conn != nil {
		c.RemoteAddr = conn.RemoteAddr().String()
	}
	c.log = log.With("connId", c.ConnID)
	return c
}

// Send writes one envelope. Thread-safe. Returns ErrClientClosed once the
// connection has been closed.
func (c *Client) Send(msgType string, payload any) error {
	env, err := NewEnvelope(msgType, payload)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", msgType, err)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", msgType, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.Socket == nil {
		return ErrClientClosed
	}
	c.Socket.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.Socket.WriteMessage(websocket.TextMessage, data); err != nil {
		c.closed = true
		c.Socket.Close()
		return err
	}
	return nil
}

// ReadEnvelope reads the next message. Malformed JSON is reported as
// ErrBadFrame and leaves the connection usable; any other error means the
// transport is gone.
func (c *Client) ReadEnvelope() (Envelope, error) {
	_, msg, err := c.Socket.ReadMessage()
	if err != nil {
		return Envelope{}, err
	}
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrBadFrame, err)
	}
	return env, nil
}

// Close closes the WebSocket connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.Socket == nil {
		c.closed = true
		return nil
	}
	c.closed = true
	return c.Socket.Close()
}

// Closed reports whether the connection has been closed.
func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// ClientRegistry tracks open connections.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]*Client // connID → Client
	log     *logging.Logger
}

// NewClientRegistry creates an empty client registry.
func NewClientRegistry(log *logging.Logger) *ClientRegistry {
	return &ClientRegistry{
		clients: make(map[string]*Client),
		log:     log,
	}
}

// Add registers a connected client.
func (r *ClientRegistry) Add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.ConnID] = c
	r.log.Info().Str("connId", c.ConnID).Str("remote", c.RemoteAddr).Msg("client connected")
}

// Remove unregisters a client by connection ID.
func (r *ClientRegistry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[connID]; !ok {
		return
	}
	delete(r.clients, connID)
	r.log.Info().Str("connId", connID).Msg("client disconnected")
}

// Get returns a client by connection ID.
func (r *ClientRegistry) Get(connID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[connID]
	return c, ok
}

// Count returns the number of connected clients.
func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// CloseAll closes every connection. Their read loops then exit and clean
// up their sessions.
func (r *ClientRegistry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.clients {
		c.Close()
		delete(r.clients, id)
	}
}
