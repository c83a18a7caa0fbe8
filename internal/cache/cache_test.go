package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xiaot623/gogo/autoqa/internal/domain"
)

func TestReadsReturnCopies(t *testing.T) {
	c := New()
	c.UpdateTestCases("r1", func([]domain.TestCase) []domain.TestCase {
		return []domain.TestCase{{ID: "tc1", Status: domain.TestCaseStatusPending}}
	})

	cases := c.TestCases("r1")
	cases[0].Status = domain.TestCaseStatusFail

	tc, ok := c.TestCase("r1", "tc1")
	assert.True(t, ok)
	assert.Equal(t, domain.TestCaseStatusPending, tc.Status)
}

func TestUnknownRunIsEmpty(t *testing.T) {
	c := New()
	_, ok := c.Run("nope")
	assert.False(t, ok)
	assert.Nil(t, c.TestCases("nope"))
	assert.Nil(t, c.Logs("nope"))
	_, ok = c.TestCase("nope", "tc1")
	assert.False(t, ok)
}

func TestLogNeverShrinks(t *testing.T) {
	c := New()
	ok := c.UpdateLogs("r1", func(logs []domain.LogEntry) []domain.LogEntry {
		return append(logs, domain.LogEntry{Text: "a"}, domain.LogEntry{Text: "b"})
	})
	assert.True(t, ok)

	ok = c.UpdateLogs("r1", func([]domain.LogEntry) []domain.LogEntry {
		return []domain.LogEntry{{Text: "c"}}
	})
	assert.False(t, ok)
	assert.Len(t, c.Logs("r1"), 2)
}

func TestSubscribersSeeEveryMutation(t *testing.T) {
	c := New()
	var changes []Change
	unsubscribe := c.Subscribe(func(ch Change) { changes = append(changes, ch) })

	c.UpdateRun("r1", func(run domain.Run, ok bool) domain.Run {
		assert.False(t, ok)
		run.ID = "r1"
		return run
	})
	c.UpdateTestCases("r1", func(tcs []domain.TestCase) []domain.TestCase { return tcs })
	c.UpdateLogs("r1", func(logs []domain.LogEntry) []domain.LogEntry {
		return append(logs, domain.LogEntry{Text: "x"})
	})

	assert.Equal(t, []Change{
		{RunID: "r1", Kind: ChangeRun},
		{RunID: "r1", Kind: ChangeTestCases},
		{RunID: "r1", Kind: ChangeLogs},
	}, changes)

	unsubscribe()
	c.UpdateRun("r1", func(run domain.Run, _ bool) domain.Run { return run })
	assert.Len(t, changes, 3)
}

func TestRunsAreIndependent(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for _, id := range []string{"r1", "r2", "r3"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				c.UpdateLogs(id, func(logs []domain.LogEntry) []domain.LogEntry {
					return append(logs, domain.LogEntry{TestRunID: id})
				})
			}
		}(id)
	}
	wg.Wait()

	for _, id := range []string{"r1", "r2", "r3"} {
		assert.Len(t, c.Logs(id), 100)
	}
	c.Forget("r2")
	assert.Nil(t, c.Logs("r2"))
	assert.Len(t, c.Logs("r1"), 100)
}
