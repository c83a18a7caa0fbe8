// Package domain defines the core domain models for test runs.
package domain

// RunStatus represents the status of a test run.
type RunStatus string

const (
	RunStatusInProgress     RunStatus = "in_progress"
	RunStatusGeneratingPlan RunStatus = "generating_plan"
	RunStatusExecutingTests RunStatus = "executing_tests"
	RunStatusCompleted      RunStatus = "completed"
	RunStatusFailed         RunStatus = "failed"
)

// IsTerminal reports whether no further progress is expected for a run in this status.
// Unknown values are treated as non-terminal.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// TestCaseStatus represents the status of a single test case.
type TestCaseStatus string

const (
	TestCaseStatusPending TestCaseStatus = "PENDING"
	TestCaseStatusRunning TestCaseStatus = "running"
	TestCaseStatusPass    TestCaseStatus = "PASS"
	TestCaseStatusFail    TestCaseStatus = "FAIL"
	TestCaseStatusError   TestCaseStatus = "ERROR"
)

// IsFinished reports whether the test case has an outcome.
func (s TestCaseStatus) IsFinished() bool {
	return s == TestCaseStatusPass || s == TestCaseStatusFail || s == TestCaseStatusError
}

// EventType is the discriminator of a frame on the run event stream.
type EventType string

const (
	EventTypeStatusUpdate   EventType = "status_update"
	EventTypeTestCaseUpdate EventType = "test_case_update"
	EventTypeLog            EventType = "log"
)
