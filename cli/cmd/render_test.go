package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/autoqa/internal/cache"
	"github.com/xiaot623/gogo/autoqa/internal/domain"
	"github.com/xiaot623/gogo/autoqa/internal/reconcile"
)

func strPtr(s string) *string { return &s }

func setStatus(c *cache.Cache, runID string, status domain.RunStatus) {
	c.UpdateRun(runID, func(run domain.Run, ok bool) domain.Run {
		run.ID = runID
		run.Status = status
		return run
	})
}

func TestRendererPrintsStatusChangesOnce(t *testing.T) {
	var out bytes.Buffer
	c := cache.New()
	r := newRenderer(&out, c, "run_1")
	defer c.Subscribe(r.OnChange)()

	setStatus(c, "run_1", domain.RunStatusGeneratingPlan)
	setStatus(c, "run_1", domain.RunStatusGeneratingPlan)
	setStatus(c, "run_2", domain.RunStatusCompleted)

	assert.Equal(t, "== status: generating_plan\n", out.String())
	select {
	case <-r.Finished():
		t.Fatal("finished before terminal status")
	default:
	}

	setStatus(c, "run_1", domain.RunStatusCompleted)
	setStatus(c, "run_1", domain.RunStatusFailed)
	select {
	case <-r.Finished():
	case <-time.After(time.Second):
		t.Fatal("finished not closed")
	}
	assert.Contains(t, out.String(), "== status: completed")
}

func TestRendererPrintsTestCaseTransitions(t *testing.T) {
	var out bytes.Buffer
	c := cache.New()
	r := newRenderer(&out, c, "run_1")
	defer c.Subscribe(r.OnChange)()

	c.UpdateTestCases("run_1", func([]domain.TestCase) []domain.TestCase {
		return []domain.TestCase{
			{ID: "TC001", Description: "home page", Status: domain.TestCaseStatusPending},
			{ID: "TC002", Description: "login", Status: domain.TestCaseStatusPending},
		}
	})
	c.UpdateTestCases("run_1", func(cases []domain.TestCase) []domain.TestCase {
		cases[0].Status = domain.TestCaseStatusPass
		cases[0].ActualResult = strPtr("200 OK")
		return cases
	})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "[TC001] PENDING  home page", lines[0])
	assert.Equal(t, "[TC002] PENDING  login", lines[1])
	assert.Equal(t, "[TC001] PASS  home page  -> 200 OK", lines[2])
}

func TestRendererPrintsEachLogOnce(t *testing.T) {
	var out bytes.Buffer
	c := cache.New()
	r := newRenderer(&out, c, "run_1")
	defer c.Subscribe(r.OnChange)()

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c.UpdateLogs("run_1", func(logs []domain.LogEntry) []domain.LogEntry {
		return append(logs, domain.LogEntry{Text: "live one", Timestamp: ts})
	})
	reconcile.Seed(c, "run_1", reconcile.Snapshot{
		Run:  domain.Run{ID: "run_1", Status: domain.RunStatusExecutingTests},
		Logs: []domain.LogEntry{{ID: 1, Text: "stored one", Timestamp: ts}},
	})
	c.UpdateLogs("run_1", func(logs []domain.LogEntry) []domain.LogEntry {
		return append(logs, domain.LogEntry{Text: "live two", Timestamp: ts})
	})

	text := out.String()
	for _, want := range []string{"live one", "stored one", "live two"} {
		assert.Equal(t, 1, strings.Count(text, want), want)
	}
}

func TestRenderRunsTable(t *testing.T) {
	var out bytes.Buffer
	renderRuns(&out, []domain.Run{
		{ID: "run_abc", Status: domain.RunStatusCompleted, URL: "https://example.com"},
	})
	text := out.String()
	assert.Contains(t, text, "STATUS")
	assert.Contains(t, text, "run_abc")
	assert.Contains(t, text, "completed")
}

func TestRenderSnapshot(t *testing.T) {
	var out bytes.Buffer
	renderSnapshot(&out, reconcile.Snapshot{
		Run: domain.Run{ID: "run_abc", Status: domain.RunStatusCompleted, URL: "https://example.com", Scenario: "check home"},
		TestCases: []domain.TestCase{
			{ID: "TC001", Description: "check home", Status: domain.TestCaseStatusPass},
			{ID: "TC002", Description: "check about", Status: domain.TestCaseStatusFail, ActualResult: strPtr("404")},
		},
		Logs: []domain.LogEntry{{ID: 1, Text: "done"}},
	}, true)

	text := out.String()
	assert.Contains(t, text, "Summary:  2 total, 1 passed, 1 failed, 0 errors")
	assert.Contains(t, text, "TC002")
	assert.Contains(t, text, "--:--:--  done")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "a b", truncate("a\nb", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
