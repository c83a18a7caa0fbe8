// Package repository persists test runs, their plans, test cases and logs.
package repository

import (
	"context"

	"github.com/xiaot623/gogo/autoqa/internal/domain"
)

// Store defines the persistence interface. Getters return nil, nil when the
// row does not exist.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run *domain.Run) error
	GetRun(ctx context.Context, runID string) (*domain.Run, error)
	ListRuns(ctx context.Context, owner string, skip, limit int) ([]domain.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status domain.RunStatus) error

	// Plans and test cases
	SaveTestPlan(ctx context.Context, plan *domain.TestPlan) error
	GetTestPlan(ctx context.Context, runID string) (*domain.TestPlan, error)
	CreateTestCase(ctx context.Context, runID string, position int, tc *domain.TestCase) error
	GetTestCases(ctx context.Context, runID string) ([]domain.TestCase, error)
	UpdateTestCaseResult(ctx context.Context, runID string, tc *domain.TestCase) error

	// Logs
	CreateTestLog(ctx context.Context, entry *domain.LogEntry) error
	GetTestLogs(ctx context.Context, runID string) ([]domain.LogEntry, error)

	Close() error
}
