// Package realtime keeps track of live client connections and fans messages
// out to them.
package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mewayz-notifications/internal/logging"
)

// DefaultMaxConnectionsPerUser caps concurrent sessions for one user.
const DefaultMaxConnectionsPerUser = 10

var (
	ErrTooManyConnections = errors.New("max connections reached for user")
	ErrAlreadyRegistered  = errors.New("connection already registered")
)

// Conn is the write side of a live client session. *websocket.Conn satisfies it.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// controlWriter is implemented by connections that support control frames,
// such as *websocket.Conn.
type controlWriter interface {
	WriteControl(messageType int, data []byte, deadline time.Time) error
}

// ConnectionRecord describes one physical connection.
type ConnectionRecord struct {
	Owner       string    `json:"user_id"`
	ConnectedAt time.Time `json:"connected_at"`
	LastPing    time.Time `json:"last_ping"`
}

type client struct {
	conn    Conn
	writeMu sync.Mutex
	record  ConnectionRecord
}

// write serializes writes to the underlying connection; gorilla connections
// allow a single concurrent writer only.
func (c *client) write(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Registry manages the live connections of every user.
type Registry struct {
	mu      sync.RWMutex
	users   map[string]map[*client]struct{} // userID -> set of connections
	clients map[Conn]*client
	maxConn int
	logger  *logging.Logger
	now     func() time.Time
}

// NewRegistry creates an empty registry. maxPerUser <= 0 selects DefaultMaxConnectionsPerUser.
func NewRegistry(logger *logging.Logger, maxPerUser int) *Registry {
	if maxPerUser <= 0 {
		maxPerUser = DefaultMaxConnectionsPerUser
	}
	return &Registry{
		users:   make(map[string]map[*client]struct{}),
		clients: make(map[Conn]*client),
		maxConn: maxPerUser,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

type ackMessage struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Register adds conn to userID's connection set and sends a
// connection_established acknowledgment on that connection only.
func (r *Registry) Register(conn Conn, userID string) error {
	now := r.now()
	c := &client{conn: conn, record: ConnectionRecord{Owner: userID, ConnectedAt: now, LastPing: now}}

	// Held until the ack is written so no notification overtakes it.
	c.writeMu.Lock()

	r.mu.Lock()
	if _, exists := r.clients[conn]; exists {
		r.mu.Unlock()
		c.writeMu.Unlock()
		return ErrAlreadyRegistered
	}
	if len(r.users[userID]) >= r.maxConn {
		r.mu.Unlock()
		c.writeMu.Unlock()
		r.logger.Warnf("Max connections reached for user %s", userID)
		return fmt.Errorf("%w %s", ErrTooManyConnections, userID)
	}
	if _, exists := r.users[userID]; !exists {
		r.users[userID] = make(map[*client]struct{})
	}
	r.users[userID][c] = struct{}{}
	r.clients[conn] = c
	total := len(r.users[userID])
	r.mu.Unlock()

	ack, err := json.Marshal(ackMessage{
		Type:      "connection_established",
		Message:   "Connected to real-time notifications",
		UserID:    userID,
		Timestamp: now,
	})
	if err == nil {
		err = c.conn.WriteMessage(websocket.TextMessage, ack)
	}
	c.writeMu.Unlock()
	if err != nil {
		r.Unregister(conn)
		return fmt.Errorf("failed to send acknowledgment: %w", err)
	}

	r.logger.Infof("Added WebSocket connection for user %s (total: %d)", userID, total)
	return nil
}

// Unregister removes conn from its owner's set. It reports whether anything
// was removed; calling it for an unknown connection is a no-op.
func (r *Registry) Unregister(conn Conn) bool {
	r.mu.Lock()
	c, ok := r.clients[conn]
	if !ok {
		r.mu.Unlock()
		return false
	}
	owner := c.record.Owner
	delete(r.clients, conn)
	remaining := 0
	if conns, exists := r.users[owner]; exists {
		delete(conns, c)
		remaining = len(conns)
		if remaining == 0 {
			delete(r.users, owner)
		}
	}
	r.mu.Unlock()

	r.logger.Infof("Removed WebSocket connection for user %s (remaining: %d)", owner, remaining)
	return true
}

// Touch refreshes the lastPing timestamp of conn.
func (r *Registry) Touch(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[conn]; ok {
		c.record.LastPing = r.now()
	}
}

// Reply writes payload to a single registered connection, sharing its write lock.
func (r *Registry) Reply(conn Conn, payload []byte) error {
	r.mu.RLock()
	c, ok := r.clients[conn]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("connection not registered")
	}
	return c.write(payload)
}

// Ping sends a control ping on every connection of every user and
// unregisters the ones that fail. It returns the number of live connections.
func (r *Registry) Ping(deadline time.Duration) int {
	live := 0
	for _, c := range r.snapshotAll() {
		ws, ok := c.conn.(controlWriter)
		if !ok {
			live++
			continue
		}
		c.writeMu.Lock()
		err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(deadline))
		c.writeMu.Unlock()
		if err != nil {
			r.logger.Warnf("Ping failed for user %s: %v", c.record.Owner, err)
			r.Unregister(c.conn)
			_ = c.conn.Close()
			continue
		}
		live++
	}
	return live
}

// SendToUser serializes msg once and writes it to every connection of userID.
// It returns the number of connections that accepted the write.
func (r *Registry) SendToUser(userID string, msg any) (int, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("failed to encode message: %w", err)
	}
	return r.SendPayload(userID, payload), nil
}

// SendPayload writes payload to every connection of userID. Connections whose
// write fails are unregistered; the remaining ones still receive the payload.
func (r *Registry) SendPayload(userID string, payload []byte) int {
	clients := r.snapshot(userID)
	if len(clients) == 0 {
		return 0
	}

	sent := 0
	for _, c := range clients {
		if err := c.write(payload); err != nil {
			r.logger.Errorf("Failed to send WebSocket message to user %s: %v", userID, err)
			r.Unregister(c.conn)
			_ = c.conn.Close()
			continue
		}
		sent++
	}
	return sent
}

// BroadcastToAll sends msg to every user that currently has a connection.
// It returns the number of connections reached.
func (r *Registry) BroadcastToAll(msg any) (int, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("failed to encode message: %w", err)
	}
	total := 0
	for _, userID := range r.Users() {
		total += r.SendPayload(userID, payload)
	}
	return total, nil
}

// Users lists user ids with at least one live connection.
func (r *Registry) Users() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.users))
	for id := range r.users {
		out = append(out, id)
	}
	return out
}

func (r *Registry) CountForUser(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID])
}

func (r *Registry) CountTotal() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Connections returns a copy of userID's connection records.
func (r *Registry) Connections(userID string) []ConnectionRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ConnectionRecord, 0, len(r.users[userID]))
	for c := range r.users[userID] {
		out = append(out, c.record)
	}
	return out
}

// snapshot copies userID's client list so writes happen outside the registry
// lock. An empty userID owns no connections.
func (r *Registry) snapshot(userID string) []*client {
	if userID == "" {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*client, 0, len(r.users[userID]))
	for c := range r.users[userID] {
		out = append(out, c)
	}
	return out
}

func (r *Registry) snapshotAll() []*client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}
