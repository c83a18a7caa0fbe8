package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/xiaot623/gogo/autoqa/internal/domain"
	"github.com/xiaot623/gogo/autoqa/internal/policy"
	"github.com/xiaot623/gogo/autoqa/internal/protocol"
	"github.com/xiaot623/gogo/autoqa/internal/testutil"
)

type recordingPublisher struct {
	mu     sync.Mutex
	frames []protocol.Message
}

func (p *recordingPublisher) Publish(runID, typ string, data interface{}) error {
	frame, err := protocol.Encode(typ, data)
	if err != nil {
		return err
	}
	msg, err := protocol.Decode(frame)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.frames = append(p.frames, msg)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) messages() []protocol.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]protocol.Message(nil), p.frames...)
}

type staticPlanner struct {
	cases []domain.TestCase
	err   error
}

func (p staticPlanner) Plan(context.Context, *domain.Run) ([]domain.TestCase, error) {
	return p.cases, p.err
}

// passEvenExecutor passes ids ending in an even digit, fails odd ones and
// errors on tc3.
type passEvenExecutor struct{}

func (passEvenExecutor) Execute(_ context.Context, _ *domain.Run, tc domain.TestCase) (domain.TestCase, error) {
	if tc.ID == "tc3" {
		return tc, errors.New("browser crashed")
	}
	actual := "checked"
	tc.ActualResult = &actual
	tc.Status = domain.TestCaseStatusFail
	if (tc.ID[len(tc.ID)-1]-'0')%2 == 0 {
		tc.Status = domain.TestCaseStatusPass
	}
	return tc, nil
}

func newTestService(t *testing.T, planner Planner) (*Service, *recordingPublisher) {
	t.Helper()
	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy, []string{"root"})
	if err != nil {
		t.Fatalf("failed to create policy engine: %v", err)
	}
	pub := &recordingPublisher{}
	svc := New(testutil.NewTestSQLiteStore(t), pub, planner, passEvenExecutor{}, engine)
	t.Cleanup(svc.Close)
	return svc, pub
}

func threeCases() []domain.TestCase {
	return []domain.TestCase{
		{ID: "tc1", Description: "one"},
		{ID: "tc2", Description: "two"},
		{ID: "tc3", Description: "three"},
	}
}

func TestCreateRunExecutesToCompletion(t *testing.T) {
	ctx := context.Background()
	svc, pub := newTestService(t, staticPlanner{cases: threeCases()})

	run, err := svc.CreateRun(ctx, "alice", domain.CreateRunRequest{URL: "https://example.com", Scenario: "check"})
	if err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	if run.Status != domain.RunStatusInProgress || run.Owner != "alice" {
		t.Fatalf("unexpected run: %+v", run)
	}
	svc.Wait()

	stored, err := svc.GetRun(ctx, "alice", run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if stored.Status != domain.RunStatusCompleted {
		t.Fatalf("expected completed, got %s", stored.Status)
	}

	cases, err := svc.GetTestCases(ctx, "alice", run.ID)
	if err != nil {
		t.Fatalf("GetTestCases failed: %v", err)
	}
	want := []domain.TestCaseStatus{domain.TestCaseStatusFail, domain.TestCaseStatusPass, domain.TestCaseStatusError}
	for i, tc := range cases {
		if tc.Status != want[i] {
			t.Fatalf("case %s: expected %s, got %s", tc.ID, want[i], tc.Status)
		}
		if tc.ExecutedAt == nil {
			t.Fatalf("case %s: executed_at not set", tc.ID)
		}
	}
	if cases[2].Notes == nil || *cases[2].Notes != "browser crashed" {
		t.Fatalf("expected executor error in notes, got %+v", cases[2].Notes)
	}

	var statuses []domain.RunStatus
	var last domain.StatusUpdate
	logCount := 0
	for _, msg := range pub.messages() {
		switch msg.Kind {
		case protocol.KindStatusUpdate:
			last, _ = msg.StatusUpdate()
			statuses = append(statuses, last.Status)
		case protocol.KindLog:
			logCount++
		}
	}
	wantStatuses := []domain.RunStatus{domain.RunStatusGeneratingPlan, domain.RunStatusExecutingTests, domain.RunStatusCompleted}
	if len(statuses) != len(wantStatuses) {
		t.Fatalf("unexpected status sequence: %v", statuses)
	}
	for i := range wantStatuses {
		if statuses[i] != wantStatuses[i] {
			t.Fatalf("unexpected status sequence: %v", statuses)
		}
	}
	if last.Summary == nil || last.Summary.Total != 3 || last.Summary.Passed != 1 || last.Summary.Errors != 1 {
		t.Fatalf("unexpected summary: %+v", last.Summary)
	}

	logs, err := svc.GetTestLogs(ctx, "alice", run.ID)
	if err != nil {
		t.Fatalf("GetTestLogs failed: %v", err)
	}
	if len(logs) != logCount || logCount == 0 {
		t.Fatalf("expected %d persisted logs, got %d", logCount, len(logs))
	}
}

func TestRunningUpdateCarriesProgress(t *testing.T) {
	svc, pub := newTestService(t, staticPlanner{cases: threeCases()})
	if _, err := svc.CreateRun(context.Background(), "", domain.CreateRunRequest{URL: "https://example.com", Scenario: "check"}); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	svc.Wait()

	for _, msg := range pub.messages() {
		if msg.Kind != protocol.KindTestCaseUpdate {
			continue
		}
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(msg.Data, &raw); err != nil {
			t.Fatalf("invalid payload: %v", err)
		}
		patch, _ := msg.TestCaseUpdate()
		if *patch.Status == domain.TestCaseStatusRunning {
			if patch.Total != 3 || patch.Current < 1 {
				t.Fatalf("unexpected progress: %+v", patch)
			}
			if _, ok := raw["actual_result"]; ok {
				t.Fatalf("running update must not carry a result: %s", msg.Data)
			}
			return
		}
	}
	t.Fatalf("no running update published")
}

func TestPlanFailureFailsRun(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, staticPlanner{err: errors.New("model unavailable")})

	run, err := svc.CreateRun(ctx, "alice", domain.CreateRunRequest{URL: "https://example.com", Scenario: "check"})
	if err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	svc.Wait()

	stored, _ := svc.GetRun(ctx, "alice", run.ID)
	if stored.Status != domain.RunStatusFailed {
		t.Fatalf("expected failed, got %s", stored.Status)
	}
	if _, err := svc.GetTestPlan(ctx, "alice", run.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing plan, got %v", err)
	}
}

func TestCreateRunValidation(t *testing.T) {
	svc, _ := newTestService(t, staticPlanner{cases: threeCases()})
	for _, req := range []domain.CreateRunRequest{
		{URL: "", Scenario: "check"},
		{URL: "ftp://example.com", Scenario: "check"},
		{URL: "https://example.com", Scenario: "  "},
	} {
		if _, err := svc.CreateRun(context.Background(), "alice", req); err == nil {
			t.Fatalf("expected validation error for %+v", req)
		}
	}
}

func TestAccessControl(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, staticPlanner{cases: threeCases()})

	run, err := svc.CreateRun(ctx, "alice", domain.CreateRunRequest{URL: "https://example.com", Scenario: "check"})
	if err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	svc.Wait()

	if _, err := svc.GetRun(ctx, "bob", run.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := svc.GetTestLogs(ctx, "bob", run.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for logs, got %v", err)
	}
	if _, err := svc.GetRun(ctx, "root", run.ID); err != nil {
		t.Fatalf("admin should read any run: %v", err)
	}
	if _, err := svc.GetRun(ctx, "alice", "run_missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	mine, _ := svc.ListRuns(ctx, "alice", 0, 10)
	theirs, _ := svc.ListRuns(ctx, "bob", 0, 10)
	all, _ := svc.ListRuns(ctx, "root", 0, 10)
	if len(mine) != 1 || len(theirs) != 0 || len(all) != 1 {
		t.Fatalf("unexpected listings: mine=%d theirs=%d all=%d", len(mine), len(theirs), len(all))
	}
}
