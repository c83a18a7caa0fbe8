// Package session keeps a live websocket connection to the event stream of one
// run, reconnecting after failures until it is explicitly disconnected.
package session

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xiaot623/gogo/autoqa/internal/credential"
	"github.com/xiaot623/gogo/autoqa/internal/router"
)

// Defaults
const (
	DefaultReconnectDelay   = 3 * time.Second
	DefaultReadTimeout      = 60 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
	DefaultMaxMessageSize   = 1 << 20
)

// State is the connection state of a session.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Conn is the part of *websocket.Conn used by a session.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPingHandler(h func(appData string) error)
	Close() error
}

// DialFunc opens a connection to the event stream.
type DialFunc func(ctx context.Context, url string, header http.Header) (Conn, error)

// Session owns one logical connection to the event stream of a run.
type Session struct {
	runID  string
	url    string
	router *router.Router

	dial             DialFunc
	credentials      credential.Source
	reconnectDelay   time.Duration
	readTimeout      time.Duration
	handshakeTimeout time.Duration
	writeTimeout     time.Duration
	maxMessageSize   int64
	logger           router.Logger
	onState          func(State)

	mu         sync.Mutex
	state      State
	conn       Conn
	timer      *reconnectTimer
	cancelDial context.CancelFunc
	// gen changes on every Disconnect; callbacks from an older generation are stale.
	gen uint64
}

// Option configures a Session.
type Option func(*Session)

// WithDialer replaces the websocket dialer.
func WithDialer(dial DialFunc) Option {
	return func(s *Session) { s.dial = dial }
}

// WithCredentials attaches a bearer token to the upgrade request.
func WithCredentials(src credential.Source) Option {
	return func(s *Session) { s.credentials = src }
}

// WithReconnectDelay sets the fixed delay before a reconnection attempt.
func WithReconnectDelay(d time.Duration) Option {
	return func(s *Session) { s.reconnectDelay = d }
}

// WithReadTimeout sets how long the connection may stay silent (no frame and
// no ping) before it is treated as closed.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Session) { s.readTimeout = d }
}

// WithHandshakeTimeout bounds a single connection attempt.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(s *Session) { s.handshakeTimeout = d }
}

// WithMaxMessageSize limits the size of an inbound frame.
func WithMaxMessageSize(n int64) Option {
	return func(s *Session) { s.maxMessageSize = n }
}

// WithLogger sets the diagnostics logger of the session and its router.
func WithLogger(l router.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithStateListener registers fn to be called on every state transition.
func WithStateListener(fn func(State)) Option {
	return func(s *Session) { s.onState = fn }
}

// New creates a disconnected session for the event stream of runID on the
// server at baseURL (http, https, ws or wss).
func New(baseURL, runID string, opts ...Option) (*Session, error) {
	streamURL, err := EventStreamURL(baseURL, runID)
	if err != nil {
		return nil, err
	}
	s := &Session{
		runID:            runID,
		url:              streamURL,
		reconnectDelay:   DefaultReconnectDelay,
		readTimeout:      DefaultReadTimeout,
		handshakeTimeout: DefaultHandshakeTimeout,
		writeTimeout:     DefaultWriteTimeout,
		maxMessageSize:   DefaultMaxMessageSize,
		logger:           log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dial == nil {
		s.dial = WebsocketDialer(&websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: s.handshakeTimeout,
		})
	}
	s.router = router.New(s.logger)
	return s, nil
}

// EventStreamURL returns the websocket URL of the event stream of runID.
func EventStreamURL(baseURL, runID string) (string, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid server url: unsupported scheme %q", u.Scheme)
	}
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}
	return u.String() + "/ws/test-runs/" + url.PathEscape(runID), nil
}

// WebsocketDialer adapts a gorilla dialer to a DialFunc.
func WebsocketDialer(d *websocket.Dialer) DialFunc {
	return func(ctx context.Context, u string, header http.Header) (Conn, error) {
		conn, resp, err := d.DialContext(ctx, u, header)
		if err != nil {
			if resp != nil {
				return nil, fmt.Errorf("dial %s: %w (status %d)", u, err, resp.StatusCode)
			}
			return nil, fmt.Errorf("dial %s: %w", u, err)
		}
		return conn, nil
	}
}

// RunID returns the observed run id.
func (s *Session) RunID() string { return s.runID }

// URL returns the event stream URL.
func (s *Session) URL() string { return s.url }

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// AddMessageHandler registers h for every inbound frame, after handlers
// already registered.
func (s *Session) AddMessageHandler(h router.Handler) router.HandlerID {
	return s.router.Add(h)
}

// RemoveMessageHandler unregisters a handler. Frames already being dispatched
// are not affected.
func (s *Session) RemoveMessageHandler(id router.HandlerID) {
	s.router.Remove(id)
}

// Connect starts a connection attempt unless one is in flight or the session
// is already connected. It does not block.
func (s *Session) Connect() {
	s.mu.Lock()
	s.connectLocked()
}

// connectLocked starts an attempt if disconnected. It is called with s.mu
// held and releases it.
func (s *Session) connectLocked() {
	if s.state != Disconnected {
		s.mu.Unlock()
		return
	}
	s.state = Connecting
	ctx, cancel := context.WithTimeout(context.Background(), s.handshakeTimeout)
	s.cancelDial = cancel
	gen := s.gen
	s.mu.Unlock()

	s.notifyState(Connecting)
	go s.run(ctx, cancel, gen)
}

// run dials and then reads until the connection fails.
func (s *Session) run(ctx context.Context, cancel context.CancelFunc, gen uint64) {
	header := http.Header{}
	err := credential.Apply(header, s.credentials)
	var conn Conn
	if err == nil {
		conn, err = s.dial(ctx, s.url, header)
	}
	cancel()

	s.mu.Lock()
	if gen != s.gen {
		// Disconnected while dialing.
		s.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	s.cancelDial = nil
	if err != nil {
		s.state = Disconnected
		s.conn = nil
		s.scheduleReconnectLocked()
		s.mu.Unlock()

		s.logger.Printf("WARN: run %s: connect failed: %v", s.runID, err)
		s.notifyState(Disconnected)
		return
	}
	s.state = Connected
	s.conn = conn
	s.stopTimerLocked()
	s.mu.Unlock()

	s.logger.Printf("Event stream connected: run %s", s.runID)
	s.notifyState(Connected)
	s.readLoop(conn, gen)
}

func (s *Session) readLoop(conn Conn, gen uint64) {
	conn.SetReadLimit(s.maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(s.writeTimeout))
		if err == websocket.ErrCloseSent {
			return nil
		}
		if _, ok := err.(net.Error); ok {
			return nil
		}
		return err
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			// A read error is the close notification; transport errors that
			// precede it are not reported separately.
			s.handleClose(conn, gen, err)
			return
		}
		conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		s.router.Dispatch(data)
	}
}

func (s *Session) handleClose(conn Conn, gen uint64, err error) {
	s.mu.Lock()
	if gen != s.gen || s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.state = Disconnected
	s.conn = nil
	s.scheduleReconnectLocked()
	s.mu.Unlock()

	conn.Close()
	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		s.logger.Printf("WARN: run %s: connection lost: %v", s.runID, err)
	} else {
		s.logger.Printf("Event stream disconnected: run %s", s.runID)
	}
	s.notifyState(Disconnected)
}

// reconnectTimer is the single pending reconnection slot. A firing timer only
// acts while it still occupies the slot.
type reconnectTimer struct {
	t *time.Timer
}

// scheduleReconnectLocked arms the reconnection timer unless one is pending.
// s.mu must be held.
func (s *Session) scheduleReconnectLocked() {
	if s.timer != nil {
		return
	}
	rt := &reconnectTimer{}
	s.timer = rt
	rt.t = time.AfterFunc(s.reconnectDelay, func() {
		s.mu.Lock()
		if s.timer != rt {
			s.mu.Unlock()
			return
		}
		s.timer = nil
		s.connectLocked()
	})
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.t.Stop()
		s.timer = nil
	}
}

// reconnectPending reports whether a reconnection timer is armed.
func (s *Session) reconnectPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// Disconnect cancels any pending reconnection, aborts an attempt in flight and
// closes the live connection. The session stays disconnected until Connect is
// called again. It is safe to call in any state and more than once.
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.gen++
	s.stopTimerLocked()
	if s.cancelDial != nil {
		s.cancelDial()
		s.cancelDial = nil
	}
	conn := s.conn
	s.conn = nil
	prev := s.state
	s.state = Disconnected
	s.mu.Unlock()

	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.writeTimeout))
		conn.Close()
	}
	if prev != Disconnected {
		s.notifyState(Disconnected)
	}
}

func (s *Session) notifyState(state State) {
	if s.onState != nil {
		s.onState(state)
	}
}
