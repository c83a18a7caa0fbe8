package domain

import (
	"time"
)

// Run represents one observed execution of a test scenario against a target URL.
type Run struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Scenario  string    `json:"scenario"`
	Status    RunStatus `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	// Owner is the user that created the run. It is never sent to clients.
	Owner string `json:"-"`
}

// TestCase is one sub-check within a run's generated test plan.
type TestCase struct {
	ID             string         `json:"id"`
	Description    string         `json:"description"`
	Steps          []string       `json:"steps"`
	ExpectedResult string         `json:"expected_result"`
	ActualResult   *string        `json:"actual_result,omitempty"`
	Status         TestCaseStatus `json:"status"`
	Notes          *string        `json:"notes,omitempty"`
	ExecutedAt     *time.Time     `json:"executed_at,omitempty"`
}

// LogEntry is one line of execution narration. Entries are ordered by arrival;
// ID is only populated on entries read from a snapshot.
type LogEntry struct {
	ID        int64     `json:"id,omitempty"`
	TestRunID string    `json:"test_run_id"`
	Text      string    `json:"log_text"`
	Timestamp time.Time `json:"timestamp"`
}

// TestPlan is the generated plan of a run.
type TestPlan struct {
	TestRunID   string     `json:"test_run_id"`
	TestCases   []TestCase `json:"test_cases"`
	GeneratedAt time.Time  `json:"generated_at"`
}

// Summary aggregates test case outcomes of a finished run.
type Summary struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
	Errors int `json:"errors"`
}

// Summarize counts outcomes of the given test cases.
func Summarize(cases []TestCase) Summary {
	s := Summary{Total: len(cases)}
	for _, tc := range cases {
		switch tc.Status {
		case TestCaseStatusPass:
			s.Passed++
		case TestCaseStatusFail:
			s.Failed++
		case TestCaseStatusError:
			s.Errors++
		}
	}
	return s
}
