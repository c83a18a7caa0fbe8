// Package hub fans run events out to the websocket connections observing
// each run.
package hub

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/xiaot623/gogo/autoqa/internal/protocol"
)

// ErrBufferFull is returned when the send buffer of a connection is full.
var ErrBufferFull = errors.New("send buffer full")

// Connection represents a single websocket connection observing a run.
type Connection struct {
	ID    string
	RunID string
	Conn  *websocket.Conn
	Send  chan []byte
	mu    sync.Mutex

	// first builds the frame queued ahead of every broadcast.
	first func() []byte
}

// Hub manages all websocket connections.
type Hub struct {
	// Connections indexed by connection ID
	connections map[string]*Connection

	// runs maps run id to the set of connection IDs
	runs map[string]map[string]bool

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *runMessage
	done       chan struct{}

	mu sync.RWMutex
}

type runMessage struct {
	RunID string
	Data  []byte
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		connections: make(map[string]*Connection),
		runs:        make(map[string]map[string]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		broadcast:   make(chan *runMessage, 256),
		done:        make(chan struct{}),
	}
}

// Run starts the hub's main loop. It returns when ctx is done; later calls to
// Register, Unregister and Broadcast are dropped.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			if h.runs[conn.RunID] == nil {
				h.runs[conn.RunID] = make(map[string]bool)
			}
			h.runs[conn.RunID][conn.ID] = true
			h.mu.Unlock()
			if conn.first != nil {
				if data := conn.first(); data != nil {
					h.SendToConnection(conn, data)
				}
			}
			log.Printf("Connection registered: %s (run: %s)", conn.ID, conn.RunID)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.connections[conn.ID]; ok {
				delete(h.connections, conn.ID)
				if h.runs[conn.RunID] != nil {
					delete(h.runs[conn.RunID], conn.ID)
					if len(h.runs[conn.RunID]) == 0 {
						delete(h.runs, conn.RunID)
					}
				}
				close(conn.Send)
			}
			h.mu.Unlock()
			log.Printf("Connection unregistered: %s", conn.ID)

		case msg := <-h.broadcast:
			h.mu.RLock()
			for connID := range h.runs[msg.RunID] {
				conn, exists := h.connections[connID]
				if !exists {
					continue
				}
				select {
				case conn.Send <- msg.Data:
				default:
					log.Printf("WARN: connection %s buffer full, closing", connID)
					go h.Unregister(conn)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// NewConnection creates a connection observing runID. It is not registered.
func (h *Hub) NewConnection(ws *websocket.Conn, runID string) *Connection {
	return &Connection{
		ID:    uuid.New().String(),
		RunID: runID,
		Conn:  ws,
		Send:  make(chan []byte, 256),
	}
}

// Register registers a connection with the hub.
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.done:
	}
}

// RegisterWith registers a connection whose first frame is built by first.
// first runs inside the hub loop: no broadcast for the run is delivered
// between it and the registration, so the frame it builds from persisted
// state is never older than a broadcast that follows it.
func (h *Hub) RegisterWith(conn *Connection, first func() []byte) {
	conn.first = first
	h.Register(conn)
}

// Unregister unregisters a connection and closes its send channel.
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Broadcast sends a frame to all connections of a run.
func (h *Hub) Broadcast(runID string, data []byte) {
	select {
	case h.broadcast <- &runMessage{RunID: runID, Data: data}:
	case <-h.done:
	}
}

// Publish encodes an event and broadcasts it to the observers of runID.
func (h *Hub) Publish(runID, typ string, data interface{}) error {
	frame, err := protocol.Encode(typ, data)
	if err != nil {
		return err
	}
	h.Broadcast(runID, frame)
	return nil
}

// SendToConnection sends a frame to a specific connection.
func (h *Hub) SendToConnection(conn *Connection, data []byte) error {
	select {
	case conn.Send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// GetConnectionCount returns the number of active connections.
func (h *Hub) GetConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// HasObservers reports whether a run has any active connections.
func (h *Hub) HasObservers(runID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.runs[runID]) > 0
}

// WriteMessage writes a message to the connection with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// SetWriteDeadline sets the write deadline for the connection.
func (c *Connection) SetWriteDeadline(t time.Time) error {
	return c.Conn.SetWriteDeadline(t)
}

// SetReadDeadline sets the read deadline for the connection.
func (c *Connection) SetReadDeadline(t time.Time) error {
	return c.Conn.SetReadDeadline(t)
}

// Close closes the connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}
