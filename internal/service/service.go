// Package service runs test scenarios and answers queries about their runs.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/xiaot623/gogo/autoqa/internal/domain"
	"github.com/xiaot623/gogo/autoqa/internal/policy"
	"github.com/xiaot623/gogo/autoqa/internal/repository"
)

// Errors returned by run queries.
var (
	ErrNotFound       = errors.New("test run not found")
	ErrForbidden      = errors.New("access denied")
	ErrInvalidRequest = errors.New("invalid request")
)

// Publisher delivers run events to live observers.
type Publisher interface {
	Publish(runID, typ string, data interface{}) error
}

// Planner derives the test cases of a run from its scenario.
type Planner interface {
	Plan(ctx context.Context, run *domain.Run) ([]domain.TestCase, error)
}

// Executor executes one test case and returns it with its outcome set.
type Executor interface {
	Execute(ctx context.Context, run *domain.Run, tc domain.TestCase) (domain.TestCase, error)
}

type Service struct {
	store        repository.Store
	publisher    Publisher
	planner      Planner
	executor     Executor
	policyEngine *policy.Engine
	now          func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(store repository.Store, publisher Publisher, planner Planner, executor Executor, policyEngine *policy.Engine) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		store:        store,
		publisher:    publisher,
		planner:      planner,
		executor:     executor,
		policyEngine: policyEngine,
		now:          func() time.Time { return time.Now().UTC() },
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Wait blocks until every started run has finished executing.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Close cancels runs still executing and waits for them to stop.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}
