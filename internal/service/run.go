package service

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/xiaot623/gogo/autoqa/internal/domain"
)

// CreateRun persists a new run for owner and starts executing it in the
// background.
func (s *Service) CreateRun(ctx context.Context, owner string, req domain.CreateRunRequest) (*domain.Run, error) {
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		return nil, fmt.Errorf("%w: url is required", ErrInvalidRequest)
	}
	if u, err := url.Parse(req.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: url must be an absolute http or https url", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.Scenario) == "" {
		return nil, fmt.Errorf("%w: scenario is required", ErrInvalidRequest)
	}

	run := &domain.Run{
		ID:        "run_" + uuid.New().String()[:8],
		URL:       req.URL,
		Scenario:  req.Scenario,
		Status:    domain.RunStatusInProgress,
		CreatedAt: s.now(),
		Owner:     owner,
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	s.wg.Add(1)
	go func(run domain.Run) {
		defer s.wg.Done()
		s.execute(s.ctx, &run)
	}(*run)

	return run, nil
}

// GetRun returns a run readable by user.
func (s *Service) GetRun(ctx context.Context, user, runID string) (*domain.Run, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if run == nil {
		return nil, ErrNotFound
	}
	if s.policyEngine != nil {
		allowed, err := s.policyEngine.AllowRun(ctx, user, run)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, ErrForbidden
		}
	}
	return run, nil
}

// ListRuns lists the runs of user, newest first. Anonymous users and admins
// see every run.
func (s *Service) ListRuns(ctx context.Context, user string, skip, limit int) ([]domain.Run, error) {
	owner := user
	if s.policyEngine != nil && s.policyEngine.IsAdmin(user) {
		owner = ""
	}
	runs, err := s.store.ListRuns(ctx, owner, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// GetTestCases returns the test cases of a run readable by user.
func (s *Service) GetTestCases(ctx context.Context, user, runID string) ([]domain.TestCase, error) {
	if _, err := s.GetRun(ctx, user, runID); err != nil {
		return nil, err
	}
	cases, err := s.store.GetTestCases(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get test cases: %w", err)
	}
	return cases, nil
}

// GetTestLogs returns the log of a run readable by user.
func (s *Service) GetTestLogs(ctx context.Context, user, runID string) ([]domain.LogEntry, error) {
	if _, err := s.GetRun(ctx, user, runID); err != nil {
		return nil, err
	}
	logs, err := s.store.GetTestLogs(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get test logs: %w", err)
	}
	return logs, nil
}

// GetTestPlan returns the plan of a run readable by user, or ErrNotFound
// while the plan is still being generated.
func (s *Service) GetTestPlan(ctx context.Context, user, runID string) (*domain.TestPlan, error) {
	if _, err := s.GetRun(ctx, user, runID); err != nil {
		return nil, err
	}
	plan, err := s.store.GetTestPlan(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get test plan: %w", err)
	}
	if plan == nil {
		return nil, fmt.Errorf("%w: no test plan yet", ErrNotFound)
	}
	return plan, nil
}

// recordStatus persists and publishes a run status change.
func (s *Service) recordStatus(ctx context.Context, runID string, update domain.StatusUpdate) {
	// Status changes are kept even when the run was cancelled.
	ctx = context.WithoutCancel(ctx)
	if err := s.store.UpdateRunStatus(ctx, runID, update.Status); err != nil {
		log.Printf("ERROR: failed to update run status: %v", err)
	}
	if err := s.publisher.Publish(runID, string(domain.EventTypeStatusUpdate), update); err != nil {
		log.Printf("ERROR: failed to publish status_update: %v", err)
	}
}
