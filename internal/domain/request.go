package domain

import "time"

// CreateRunRequest is the body of POST /api/test-runs.
type CreateRunRequest struct {
	URL      string `json:"url"`
	Scenario string `json:"scenario"`
}

// TestCasePatch is a partial test case update. Nil fields are absent from the
// update and leave the stored value unchanged.
type TestCasePatch struct {
	TCID           string          `json:"tc_id"`
	Description    *string         `json:"description,omitempty"`
	Steps          []string        `json:"steps,omitempty"`
	ExpectedResult *string         `json:"expected_result,omitempty"`
	ActualResult   *string         `json:"actual_result,omitempty"`
	Status         *TestCaseStatus `json:"status,omitempty"`
	Notes          *string         `json:"notes,omitempty"`
	ExecutedAt     *time.Time      `json:"executed_at,omitempty"`

	// Progress counters sent with running updates. Not part of the test case.
	Current int `json:"current,omitempty"`
	Total   int `json:"total,omitempty"`
}

// StatusUpdate is the payload of a status_update event.
type StatusUpdate struct {
	Status  RunStatus `json:"status"`
	Message string    `json:"message,omitempty"`
	Summary *Summary  `json:"summary,omitempty"`
}
