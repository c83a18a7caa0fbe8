package service

import (
	"context"
	"fmt"
	"log"

	"github.com/xiaot623/gogo/autoqa/internal/domain"
	"github.com/xiaot623/gogo/autoqa/internal/protocol"
)

// execute drives a run from plan generation to completion. Every step is
// persisted before it is published.
func (s *Service) execute(ctx context.Context, run *domain.Run) {
	runID := run.ID

	s.recordStatus(ctx, runID, domain.StatusUpdate{
		Status:  domain.RunStatusGeneratingPlan,
		Message: "Generating test plan...",
	})
	s.logf(ctx, runID, "Creating test plan for %s", run.URL)

	cases, err := s.planner.Plan(ctx, run)
	if err == nil && len(cases) == 0 {
		err = fmt.Errorf("scenario produced no test cases")
	}
	if err != nil {
		s.logf(ctx, runID, "Error: failed to create test plan: %v", err)
		s.recordStatus(ctx, runID, domain.StatusUpdate{
			Status:  domain.RunStatusFailed,
			Message: "Failed to create test plan",
		})
		return
	}

	plan := &domain.TestPlan{TestRunID: runID, TestCases: cases, GeneratedAt: s.now()}
	if err := s.store.SaveTestPlan(ctx, plan); err != nil {
		log.Printf("ERROR: failed to save test plan: %v", err)
		s.recordStatus(ctx, runID, domain.StatusUpdate{
			Status:  domain.RunStatusFailed,
			Message: "Failed to store test plan",
		})
		return
	}
	s.logf(ctx, runID, "Test plan created with %d test cases", len(plan.TestCases))

	s.recordStatus(ctx, runID, domain.StatusUpdate{
		Status:  domain.RunStatusExecutingTests,
		Message: "Executing test cases...",
	})

	total := len(plan.TestCases)
	results := make([]domain.TestCase, 0, total)
	for i, tc := range plan.TestCases {
		if ctx.Err() != nil {
			s.recordStatus(ctx, runID, domain.StatusUpdate{
				Status:  domain.RunStatusFailed,
				Message: "Test run cancelled",
			})
			return
		}

		s.logf(ctx, runID, "Executing test case %s (%d/%d): %s", tc.ID, i+1, total, tc.Description)
		running := domain.TestCaseStatusRunning
		s.publish(runID, domain.EventTypeTestCaseUpdate, domain.TestCasePatch{
			TCID:    tc.ID,
			Status:  &running,
			Current: i + 1,
			Total:   total,
		})

		result, err := s.executor.Execute(ctx, run, tc)
		if err != nil {
			msg := err.Error()
			result = tc
			result.Status = domain.TestCaseStatusError
			result.Notes = &msg
		}
		result.ID = tc.ID
		if result.Status == "" {
			result.Status = domain.TestCaseStatusError
		}
		if result.ExecutedAt == nil {
			now := s.now()
			result.ExecutedAt = &now
		}
		if err := s.store.UpdateTestCaseResult(ctx, runID, &result); err != nil {
			log.Printf("ERROR: failed to update test case %s: %v", tc.ID, err)
		}
		results = append(results, result)

		s.logf(ctx, runID, "Test case %s completed with status: %s", tc.ID, result.Status)
		status := result.Status
		s.publish(runID, domain.EventTypeTestCaseUpdate, domain.TestCasePatch{
			TCID:         tc.ID,
			Status:       &status,
			ActualResult: result.ActualResult,
			Notes:        result.Notes,
			ExecutedAt:   result.ExecutedAt,
		})
	}

	summary := domain.Summarize(results)
	s.recordStatus(ctx, runID, domain.StatusUpdate{
		Status:  domain.RunStatusCompleted,
		Message: "Test run completed",
		Summary: &summary,
	})
	s.logf(ctx, runID, "Test run completed. %d/%d tests passed.", summary.Passed, summary.Total)
}

// logf persists a log line of a run and publishes it.
func (s *Service) logf(ctx context.Context, runID, format string, args ...interface{}) {
	entry := &domain.LogEntry{
		TestRunID: runID,
		Text:      fmt.Sprintf(format, args...),
		Timestamp: s.now(),
	}
	if err := s.store.CreateTestLog(context.WithoutCancel(ctx), entry); err != nil {
		log.Printf("ERROR: failed to save log for run %s: %v", runID, err)
	}
	s.publish(runID, domain.EventTypeLog, protocol.NewLogData(entry.Text, entry.Timestamp))
}

func (s *Service) publish(runID string, typ domain.EventType, data interface{}) {
	if err := s.publisher.Publish(runID, string(typ), data); err != nil {
		log.Printf("ERROR: failed to publish %s for run %s: %v", typ, runID, err)
	}
}
