// Package snapshot provides an HTTP client for the test run REST API, the
// authoritative source of a run's state.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/xiaot623/gogo/autoqa/internal/credential"
	"github.com/xiaot623/gogo/autoqa/internal/domain"
	"github.com/xiaot623/gogo/autoqa/internal/protocol"
	"github.com/xiaot623/gogo/autoqa/internal/reconcile"
)

// Errors returned for the matching response status.
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// Client is an HTTP client for the test run API.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	credentials credential.Source
}

// NewClient creates a new client. src may be nil for anonymous access.
func NewClient(baseURL string, src credential.Source) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		credentials: src,
	}
}

// ErrorResponse represents an error response from the server.
type ErrorResponse struct {
	Error string `json:"error"`
}

// runWire is a run as sent by the server. created_at may lack a zone.
type runWire struct {
	ID        string           `json:"id"`
	URL       string           `json:"url"`
	Scenario  string           `json:"scenario"`
	Status    domain.RunStatus `json:"status"`
	CreatedAt string           `json:"created_at"`
}

func (w runWire) run() domain.Run {
	return domain.Run{
		ID:        w.ID,
		URL:       w.URL,
		Scenario:  w.Scenario,
		Status:    w.Status,
		CreatedAt: protocol.ParseTimestamp(w.CreatedAt),
	}
}

type logWire struct {
	ID        int64  `json:"id"`
	TestRunID string `json:"test_run_id"`
	LogText   string `json:"log_text"`
	Timestamp string `json:"timestamp"`
}

type planWire struct {
	TestRunID   string                  `json:"test_run_id"`
	TestCases   []protocol.TestCaseData `json:"test_cases"`
	GeneratedAt string                  `json:"generated_at"`
}

// CreateRun calls POST /api/test-runs.
func (c *Client) CreateRun(ctx context.Context, req *domain.CreateRunRequest) (*domain.Run, error) {
	var w runWire
	if err := c.do(ctx, http.MethodPost, "/api/test-runs", req, &w); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	run := w.run()
	return &run, nil
}

// ListRuns calls GET /api/test-runs.
func (c *Client) ListRuns(ctx context.Context, skip, limit int) ([]domain.Run, error) {
	q := url.Values{}
	q.Set("skip", strconv.Itoa(skip))
	q.Set("limit", strconv.Itoa(limit))

	var ws []runWire
	if err := c.do(ctx, http.MethodGet, "/api/test-runs?"+q.Encode(), nil, &ws); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	runs := make([]domain.Run, 0, len(ws))
	for _, w := range ws {
		runs = append(runs, w.run())
	}
	return runs, nil
}

// GetRun calls GET /api/test-runs/:id.
func (c *Client) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	var w runWire
	if err := c.do(ctx, http.MethodGet, runPath(runID, ""), nil, &w); err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	run := w.run()
	return &run, nil
}

// GetTestCases calls GET /api/test-runs/:id/cases.
func (c *Client) GetTestCases(ctx context.Context, runID string) ([]domain.TestCase, error) {
	var data []protocol.TestCaseData
	if err := c.do(ctx, http.MethodGet, runPath(runID, "/cases"), nil, &data); err != nil {
		return nil, fmt.Errorf("failed to get test cases: %w", err)
	}
	return protocol.TestCases(data), nil
}

// GetTestLogs calls GET /api/test-runs/:id/logs.
func (c *Client) GetTestLogs(ctx context.Context, runID string) ([]domain.LogEntry, error) {
	var ws []logWire
	if err := c.do(ctx, http.MethodGet, runPath(runID, "/logs"), nil, &ws); err != nil {
		return nil, fmt.Errorf("failed to get test logs: %w", err)
	}
	logs := make([]domain.LogEntry, 0, len(ws))
	for _, w := range ws {
		logs = append(logs, domain.LogEntry{
			ID:        w.ID,
			TestRunID: w.TestRunID,
			Text:      w.LogText,
			Timestamp: protocol.ParseTimestamp(w.Timestamp),
		})
	}
	return logs, nil
}

// GetTestPlan calls GET /api/test-runs/:id/plan.
func (c *Client) GetTestPlan(ctx context.Context, runID string) (*domain.TestPlan, error) {
	var w planWire
	if err := c.do(ctx, http.MethodGet, runPath(runID, "/plan"), nil, &w); err != nil {
		return nil, fmt.Errorf("failed to get test plan: %w", err)
	}
	return &domain.TestPlan{
		TestRunID:   w.TestRunID,
		TestCases:   protocol.TestCases(w.TestCases),
		GeneratedAt: protocol.ParseTimestamp(w.GeneratedAt),
	}, nil
}

// Load reads the run, its test cases and its logs.
func (c *Client) Load(ctx context.Context, runID string) (reconcile.Snapshot, error) {
	run, err := c.GetRun(ctx, runID)
	if err != nil {
		return reconcile.Snapshot{}, err
	}
	cases, err := c.GetTestCases(ctx, runID)
	if err != nil {
		return reconcile.Snapshot{}, err
	}
	logs, err := c.GetTestLogs(ctx, runID)
	if err != nil {
		return reconcile.Snapshot{}, err
	}
	return reconcile.Snapshot{Run: *run, TestCases: cases, Logs: logs}, nil
}

func runPath(runID, suffix string) string {
	return "/api/test-runs/" + url.PathEscape(runID) + suffix
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if err := credential.Apply(httpReq.Header, c.credentials); err != nil {
		return err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		msg := string(respBody)
		var errResp ErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			msg = errResp.Error
		}
		switch resp.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrNotFound, msg)
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
		case http.StatusForbidden:
			return fmt.Errorf("%w: %s", ErrForbidden, msg)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, msg)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
