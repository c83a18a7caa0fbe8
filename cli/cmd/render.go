package cmd

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/xiaot623/gogo/autoqa/internal/cache"
	"github.com/xiaot623/gogo/autoqa/internal/domain"
)

// renderer prints what changed in the cache for one run.
type renderer struct {
	out   io.Writer
	cache *cache.Cache
	runID string

	mu       sync.Mutex
	status   domain.RunStatus
	cases    map[string]domain.TestCaseStatus
	seenLogs map[int64]bool
	liveLogs int
	finished chan struct{}
	done     bool
}

func newRenderer(out io.Writer, c *cache.Cache, runID string) *renderer {
	return &renderer{
		out:      out,
		cache:    c,
		runID:    runID,
		cases:    make(map[string]domain.TestCaseStatus),
		seenLogs: make(map[int64]bool),
		finished: make(chan struct{}),
	}
}

// Finished is closed once the run reaches a terminal status.
func (r *renderer) Finished() <-chan struct{} {
	return r.finished
}

// OnChange is subscribed to the cache.
func (r *renderer) OnChange(ch cache.Change) {
	if ch.RunID != r.runID {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ch.Kind {
	case cache.ChangeRun:
		run, ok := r.cache.Run(r.runID)
		if !ok || run.Status == r.status {
			return
		}
		r.status = run.Status
		fmt.Fprintf(r.out, "== status: %s\n", run.Status)
		if run.Status.IsTerminal() && !r.done {
			r.done = true
			close(r.finished)
		}

	case cache.ChangeTestCases:
		for _, tc := range r.cache.TestCases(r.runID) {
			if prev, seen := r.cases[tc.ID]; seen && prev == tc.Status {
				continue
			}
			r.cases[tc.ID] = tc.Status
			line := fmt.Sprintf("[%s] %s", tc.ID, displayStatus(tc.Status))
			if tc.Description != "" {
				line += "  " + tc.Description
			}
			if tc.Status.IsFinished() && tc.ActualResult != nil {
				line += "  -> " + *tc.ActualResult
			}
			fmt.Fprintln(r.out, line)
		}

	case cache.ChangeLogs:
		// Snapshot entries carry an id and may be inserted ahead of live
		// entries; live entries only ever append.
		live := 0
		for _, entry := range r.cache.Logs(r.runID) {
			if entry.ID != 0 {
				if r.seenLogs[entry.ID] {
					continue
				}
				r.seenLogs[entry.ID] = true
			} else {
				live++
				if live <= r.liveLogs {
					continue
				}
				r.liveLogs = live
			}
			fmt.Fprintf(r.out, "%s  %s\n", formatTime(entry.Timestamp), entry.Text)
		}
	}
}

func displayStatus(s domain.TestCaseStatus) string {
	if s == "" {
		return "unknown"
	}
	return string(s)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "--:--:--"
	}
	return t.Local().Format("15:04:05")
}
