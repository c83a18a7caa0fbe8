// Package reconcile merges event stream payloads into cached run state.
//
// The merge functions are pure: they never modify their inputs and return the
// next state. Status, test case and log merges touch disjoint collections.
package reconcile

import (
	"github.com/xiaot623/gogo/autoqa/internal/domain"
)

// MergeStatus replaces the run status. All other run fields are kept.
func MergeStatus(run domain.Run, update domain.StatusUpdate) domain.Run {
	run.Status = update.Status
	return run
}

// MergeTestCase applies a partial update to the case with the patch's id.
// Fields present in the patch overwrite the stored ones and absent fields are
// left as they are. An unseen id appends a new case built from the patch.
func MergeTestCase(cases []domain.TestCase, patch domain.TestCasePatch) []domain.TestCase {
	next := make([]domain.TestCase, len(cases), len(cases)+1)
	copy(next, cases)

	for i := range next {
		if next[i].ID == patch.TCID {
			next[i] = applyPatch(next[i], patch)
			return next
		}
	}
	return append(next, applyPatch(domain.TestCase{ID: patch.TCID}, patch))
}

func applyPatch(tc domain.TestCase, patch domain.TestCasePatch) domain.TestCase {
	if patch.Description != nil {
		tc.Description = *patch.Description
	}
	if patch.Steps != nil {
		tc.Steps = append([]string(nil), patch.Steps...)
	}
	if patch.ExpectedResult != nil {
		tc.ExpectedResult = *patch.ExpectedResult
	}
	if patch.ActualResult != nil {
		v := *patch.ActualResult
		tc.ActualResult = &v
	}
	if patch.Status != nil {
		tc.Status = *patch.Status
	}
	if patch.Notes != nil {
		v := *patch.Notes
		tc.Notes = &v
	}
	if patch.ExecutedAt != nil {
		v := *patch.ExecutedAt
		tc.ExecutedAt = &v
	}
	return tc
}

// AppendLog appends entry at the end of logs. No deduplication or reordering.
func AppendLog(logs []domain.LogEntry, entry domain.LogEntry) []domain.LogEntry {
	next := make([]domain.LogEntry, len(logs), len(logs)+1)
	copy(next, logs)
	return append(next, entry)
}
