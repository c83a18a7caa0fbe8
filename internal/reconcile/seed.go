package reconcile

import (
	"github.com/xiaot623/gogo/autoqa/internal/cache"
	"github.com/xiaot623/gogo/autoqa/internal/domain"
)

// Snapshot is the authoritative state of a run read over request/response.
type Snapshot struct {
	Run       domain.Run
	TestCases []domain.TestCase
	Logs      []domain.LogEntry
}

// Seed merges a snapshot into the cache. Events may have arrived before the
// snapshot resolved, so:
//   - the run is replaced by the snapshot's run;
//   - snapshot test cases are merged by id over cached ones, and cases known
//     only from events are kept after them;
//   - snapshot logs replace earlier snapshot entries and are placed before
//     entries received live (those without an id); the log never shrinks.
func Seed(c *cache.Cache, runID string, snap Snapshot) {
	c.UpdateRun(runID, func(domain.Run, bool) domain.Run {
		return snap.Run
	})
	c.UpdateTestCases(runID, func(cached []domain.TestCase) []domain.TestCase {
		return seedTestCases(cached, snap.TestCases)
	})
	c.UpdateLogs(runID, func(cached []domain.LogEntry) []domain.LogEntry {
		next := make([]domain.LogEntry, 0, len(snap.Logs)+len(cached))
		next = append(next, snap.Logs...)
		for _, entry := range cached {
			if entry.ID == 0 {
				next = append(next, entry)
			}
		}
		return next
	})
}

func seedTestCases(cached, snapshot []domain.TestCase) []domain.TestCase {
	next := make([]domain.TestCase, 0, len(snapshot)+len(cached))
	seen := make(map[string]bool, len(snapshot))
	for _, tc := range snapshot {
		if cur, ok := findTestCase(cached, tc.ID); ok {
			tc = overlay(cur, tc)
		}
		next = append(next, tc)
		seen[tc.ID] = true
	}
	for _, tc := range cached {
		if !seen[tc.ID] {
			next = append(next, tc)
		}
	}
	return next
}

// overlay returns snap with any field it leaves unset filled from cur. A
// status is kept from cur when it is further along than the snapshot's, since
// the snapshot may have been read before the event that carried it.
func overlay(cur, snap domain.TestCase) domain.TestCase {
	if snap.Description == "" {
		snap.Description = cur.Description
	}
	if snap.Steps == nil {
		snap.Steps = cur.Steps
	}
	if snap.ExpectedResult == "" {
		snap.ExpectedResult = cur.ExpectedResult
	}
	if snap.ActualResult == nil {
		snap.ActualResult = cur.ActualResult
	}
	if progress(cur.Status) > progress(snap.Status) {
		snap.Status = cur.Status
	}
	if snap.Notes == nil {
		snap.Notes = cur.Notes
	}
	if snap.ExecutedAt == nil {
		snap.ExecutedAt = cur.ExecutedAt
	}
	return snap
}

func findTestCase(cases []domain.TestCase, id string) (domain.TestCase, bool) {
	for _, tc := range cases {
		if tc.ID == id {
			return tc, true
		}
	}
	return domain.TestCase{}, false
}

// progress orders test case statuses: pending, running, then an outcome.
func progress(s domain.TestCaseStatus) int {
	switch {
	case s == "":
		return 0
	case s == domain.TestCaseStatusPending:
		return 1
	case s == domain.TestCaseStatusRunning:
		return 2
	case s.IsFinished():
		return 3
	default:
		return 1
	}
}
