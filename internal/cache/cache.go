// Package cache holds the reconciled state of observed runs.
package cache

import (
	"sync"

	"github.com/xiaot623/gogo/autoqa/internal/domain"
)

// ChangeKind identifies which collection of a run changed.
type ChangeKind int

const (
	ChangeRun ChangeKind = iota + 1
	ChangeTestCases
	ChangeLogs
)

// Change is delivered to subscribers after every mutation.
type Change struct {
	RunID string
	Kind  ChangeKind
}

type entry struct {
	run       domain.Run
	hasRun    bool
	testCases []domain.TestCase
	logs      []domain.LogEntry
}

// Cache holds runs, test cases and logs keyed by run id. Readers get copies;
// writers replace whole collections through the Update* methods.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*entry

	subMu   sync.Mutex
	nextSub int
	subs    []subscriber
}

type subscriber struct {
	id int
	fn func(Change)
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]*entry),
	}
}

func (c *Cache) entryLocked(runID string) *entry {
	e, ok := c.entries[runID]
	if !ok {
		e = &entry{}
		c.entries[runID] = e
	}
	return e
}

// Run returns the cached run, if any.
func (c *Cache) Run(runID string) (domain.Run, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[runID]
	if !ok || !e.hasRun {
		return domain.Run{}, false
	}
	return e.run, true
}

// TestCases returns a copy of the cached test cases in insertion order.
func (c *Cache) TestCases(runID string) []domain.TestCase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[runID]
	if !ok {
		return nil
	}
	return append([]domain.TestCase(nil), e.testCases...)
}

// TestCase returns the cached test case with the given id.
func (c *Cache) TestCase(runID, tcID string) (domain.TestCase, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.entries[runID]; ok {
		for _, tc := range e.testCases {
			if tc.ID == tcID {
				return tc, true
			}
		}
	}
	return domain.TestCase{}, false
}

// Logs returns a copy of the cached log entries in arrival order.
func (c *Cache) Logs(runID string) []domain.LogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[runID]
	if !ok {
		return nil
	}
	return append([]domain.LogEntry(nil), e.logs...)
}

// UpdateRun replaces the run with fn's result. fn receives the current run and
// whether one was cached.
func (c *Cache) UpdateRun(runID string, fn func(run domain.Run, ok bool) domain.Run) {
	c.mu.Lock()
	e := c.entryLocked(runID)
	e.run = fn(e.run, e.hasRun)
	e.hasRun = true
	c.mu.Unlock()

	c.notify(Change{RunID: runID, Kind: ChangeRun})
}

// UpdateTestCases replaces the test case collection with fn's result.
func (c *Cache) UpdateTestCases(runID string, fn func([]domain.TestCase) []domain.TestCase) {
	c.mu.Lock()
	e := c.entryLocked(runID)
	e.testCases = fn(e.testCases)
	c.mu.Unlock()

	c.notify(Change{RunID: runID, Kind: ChangeTestCases})
}

// UpdateLogs replaces the log collection with fn's result. A result shorter
// than the current collection is discarded: the log never shrinks.
func (c *Cache) UpdateLogs(runID string, fn func([]domain.LogEntry) []domain.LogEntry) bool {
	c.mu.Lock()
	e := c.entryLocked(runID)
	next := fn(e.logs)
	if len(next) < len(e.logs) {
		c.mu.Unlock()
		return false
	}
	e.logs = next
	c.mu.Unlock()

	c.notify(Change{RunID: runID, Kind: ChangeLogs})
	return true
}

// Forget drops all state of a run.
func (c *Cache) Forget(runID string) {
	c.mu.Lock()
	delete(c.entries, runID)
	c.mu.Unlock()
}

// Subscribe registers fn to be called after every mutation. The returned
// function removes the subscription.
func (c *Cache) Subscribe(fn func(Change)) func() {
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs = append(c.subs, subscriber{id: id, fn: fn})
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		for i, s := range c.subs {
			if s.id == id {
				c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

func (c *Cache) notify(change Change) {
	c.subMu.Lock()
	subs := append([]subscriber(nil), c.subs...)
	c.subMu.Unlock()

	for _, s := range subs {
		s.fn(change)
	}
}
