package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/autoqa/internal/auth"
	"github.com/xiaot623/gogo/autoqa/internal/config"
	"github.com/xiaot623/gogo/autoqa/internal/domain"
	"github.com/xiaot623/gogo/autoqa/internal/hub"
	"github.com/xiaot623/gogo/autoqa/internal/policy"
	"github.com/xiaot623/gogo/autoqa/internal/protocol"
	"github.com/xiaot623/gogo/autoqa/internal/testutil"
)

type testServer struct {
	url string
	hub *hub.Hub
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	ctx := context.Background()
	store := testutil.NewTestSQLiteStore(t)
	for _, run := range []*domain.Run{
		{ID: "r1", URL: "https://example.com", Scenario: "s", Status: domain.RunStatusExecutingTests, Owner: "alice", CreatedAt: time.Now()},
		{ID: "r2", URL: "https://example.com", Scenario: "s", Owner: "bob", CreatedAt: time.Now()},
	} {
		require.NoError(t, store.CreateRun(ctx, run))
	}
	engine, err := policy.NewEngine(ctx, policy.DefaultPolicy, nil)
	require.NoError(t, err)

	cfg := &config.Config{
		PingInterval:   time.Second,
		WriteTimeout:   time.Second,
		ReadTimeout:    5 * time.Second,
		MaxMessageSize: 65536,
	}
	h := hub.NewHub()
	hubCtx, cancel := context.WithCancel(ctx)
	t.Cleanup(cancel)
	go h.Run(hubCtx)

	e := echo.New()
	authn := auth.New(map[string]string{"tok-alice": "alice"})
	NewServer(cfg, h, store, engine).RegisterRoutes(e, authn.Middleware())

	ts := httptest.NewServer(e)
	t.Cleanup(ts.Close)
	return testServer{url: "ws" + strings.TrimPrefix(ts.URL, "http"), hub: h}
}

func dial(t *testing.T, url, token string) *websocket.Conn {
	t.Helper()
	header := map[string][]string{}
	if token != "" {
		header["Authorization"] = []string{"Bearer " + token}
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	return conn
}

func TestStreamSendsCurrentStatusThenEvents(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv.url+"/ws/test-runs/r1", "tok-alice")

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	msg, err := protocol.Decode(data)
	require.NoError(t, err)
	update, err := msg.StatusUpdate()
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusExecutingTests, update.Status)

	require.Eventually(t, func() bool { return srv.hub.HasObservers("r1") }, time.Second, 5*time.Millisecond)
	require.NoError(t, srv.hub.Publish("r1", protocol.TypeLog, protocol.NewLogData("step 1", time.Now())))

	_, data, err = conn.ReadMessage()
	require.NoError(t, err)
	msg, err = protocol.Decode(data)
	require.NoError(t, err)
	entry, err := msg.Log("r1")
	require.NoError(t, err)
	assert.Equal(t, "step 1", entry.Text)
}

func TestStreamClosesUnknownRun(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv.url+"/ws/test-runs/missing", "tok-alice")

	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation))
	assert.Contains(t, err.Error(), "Test run not found")
}

func TestStreamClosesForeignRun(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv.url+"/ws/test-runs/r2", "tok-alice")

	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation))
}

func TestStreamRejectsMissingToken(t *testing.T) {
	srv := newTestServer(t)
	_, resp, err := websocket.DefaultDialer.Dial(srv.url+"/ws/test-runs/r1", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 401, resp.StatusCode)
}

// advancingRuns reports a newer status on every lookup after the first.
type advancingRuns struct {
	mu    sync.Mutex
	calls int
}

func (r *advancingRuns) GetRun(_ context.Context, runID string) (*domain.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	status := domain.RunStatusGeneratingPlan
	if r.calls > 1 {
		status = domain.RunStatusExecutingTests
	}
	return &domain.Run{ID: runID, Status: status}, nil
}

func TestStreamInitialStatusIsReadAtRegistration(t *testing.T) {
	cfg := &config.Config{
		PingInterval:   time.Second,
		WriteTimeout:   time.Second,
		ReadTimeout:    5 * time.Second,
		MaxMessageSize: 65536,
	}
	h := hub.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	e := echo.New()
	NewServer(cfg, h, &advancingRuns{}, nil).RegisterRoutes(e)
	ts := httptest.NewServer(e)
	defer ts.Close()

	conn := dial(t, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws/test-runs/r9", "")
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	msg, err := protocol.Decode(data)
	require.NoError(t, err)
	update, err := msg.StatusUpdate()
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusExecutingTests, update.Status)
}
