// Package ws serves the per-run websocket event stream.
package ws

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/autoqa/internal/auth"
	"github.com/xiaot623/gogo/autoqa/internal/config"
	"github.com/xiaot623/gogo/autoqa/internal/domain"
	"github.com/xiaot623/gogo/autoqa/internal/hub"
	"github.com/xiaot623/gogo/autoqa/internal/protocol"
)

// RunReader looks up runs. It returns nil, nil for an unknown run.
type RunReader interface {
	GetRun(ctx context.Context, runID string) (*domain.Run, error)
}

// Authorizer decides whether a user may observe a run.
type Authorizer interface {
	AllowRun(ctx context.Context, user string, run *domain.Run) (bool, error)
}

// Server handles websocket connections.
type Server struct {
	cfg      *config.Config
	hub      *hub.Hub
	runs     RunReader
	policy   Authorizer
	upgrader websocket.Upgrader
}

// NewServer creates a new websocket server.
func NewServer(cfg *config.Config, h *hub.Hub, runs RunReader, policy Authorizer) *Server {
	return &Server{
		cfg:    cfg,
		hub:    h,
		runs:   runs,
		policy: policy,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// RegisterRoutes registers the event stream route. mw runs before the upgrade.
func (s *Server) RegisterRoutes(e *echo.Echo, mw ...echo.MiddlewareFunc) {
	e.GET("/ws/test-runs/:id", s.HandleRunStream, mw...)
}

// HandleRunStream upgrades the request and streams the events of one run.
// GET /ws/test-runs/:id
func (s *Server) HandleRunStream(c echo.Context) error {
	runID := c.Param("id")
	ctx := c.Request().Context()

	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("Failed to upgrade WebSocket: %v", err)
		return nil
	}

	run, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		log.Printf("ERROR: failed to get run %s: %v", runID, err)
		s.reject(ws, websocket.CloseInternalServerErr, "Internal error")
		return nil
	}
	if run == nil {
		s.reject(ws, websocket.ClosePolicyViolation, "Test run not found")
		return nil
	}
	if s.policy != nil {
		allowed, err := s.policy.AllowRun(ctx, auth.UserFrom(c), run)
		if err != nil {
			log.Printf("ERROR: policy check for run %s: %v", runID, err)
			s.reject(ws, websocket.CloseInternalServerErr, "Internal error")
			return nil
		}
		if !allowed {
			s.reject(ws, websocket.ClosePolicyViolation, "Access denied")
			return nil
		}
	}

	ws.SetReadLimit(s.cfg.MaxMessageSize)
	conn := s.hub.NewConnection(ws, runID)

	// The status is read again at registration so that a change published
	// since the lookup above is not replaced by an older one.
	s.hub.RegisterWith(conn, func() []byte {
		return s.currentStatus(run)
	})

	go s.writePump(conn)
	go s.readPump(conn)
	return nil
}

// currentStatus encodes the initial status_update of a stream. It falls back
// to the status of run when the store cannot be read.
func (s *Server) currentStatus(run *domain.Run) []byte {
	status := run.Status
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
	defer cancel()
	if latest, err := s.runs.GetRun(ctx, run.ID); err != nil {
		log.Printf("WARN: failed to refresh run %s: %v", run.ID, err)
	} else if latest != nil {
		status = latest.Status
	}

	frame, err := protocol.Encode(protocol.TypeStatusUpdate, domain.StatusUpdate{
		Status:  status,
		Message: "Connected to test run stream",
	})
	if err != nil {
		log.Printf("ERROR: failed to encode initial status: %v", err)
		return nil
	}
	return frame
}

func (s *Server) reject(ws *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.cfg.WriteTimeout))
	ws.Close()
}

// readPump keeps the read side alive; clients send nothing but control frames.
func (s *Server) readPump(conn *hub.Connection) {
	defer func() {
		s.hub.Unregister(conn)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		return nil
	})

	for {
		if _, _, err := conn.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	}
}

// writePump writes queued frames and pings to the connection.
func (s *Server) writePump(conn *hub.Connection) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if !ok {
				// Hub closed the channel
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("Failed to write message: %v", err)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
