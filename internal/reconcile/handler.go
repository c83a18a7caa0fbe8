package reconcile

import (
	"log"

	"github.com/xiaot623/gogo/autoqa/internal/cache"
	"github.com/xiaot623/gogo/autoqa/internal/domain"
	"github.com/xiaot623/gogo/autoqa/internal/protocol"
	"github.com/xiaot623/gogo/autoqa/internal/router"
)

// Handler applies status, test case and log frames of one run to a cache.
type Handler struct {
	runID  string
	cache  *cache.Cache
	logger router.Logger
}

var _ router.Handler = (*Handler)(nil)

// NewHandler creates a handler merging frames for runID into c.
func NewHandler(runID string, c *cache.Cache, logger router.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{runID: runID, cache: c, logger: logger}
}

// HandleMessage merges msg into the cache. Frames of unknown kind are ignored.
func (h *Handler) HandleMessage(msg protocol.Message) {
	switch msg.Kind {
	case protocol.KindStatusUpdate:
		update, err := msg.StatusUpdate()
		if err != nil {
			h.logger.Printf("WARN: run %s: %v", h.runID, err)
			return
		}
		h.cache.UpdateRun(h.runID, func(run domain.Run, ok bool) domain.Run {
			if !ok {
				run.ID = h.runID
			}
			return MergeStatus(run, update)
		})

	case protocol.KindTestCaseUpdate:
		patch, err := msg.TestCaseUpdate()
		if err != nil {
			h.logger.Printf("WARN: run %s: %v", h.runID, err)
			return
		}
		h.cache.UpdateTestCases(h.runID, func(cases []domain.TestCase) []domain.TestCase {
			return MergeTestCase(cases, patch)
		})

	case protocol.KindLog:
		entry, err := msg.Log(h.runID)
		if err != nil {
			h.logger.Printf("WARN: run %s: %v", h.runID, err)
			return
		}
		h.cache.UpdateLogs(h.runID, func(logs []domain.LogEntry) []domain.LogEntry {
			return AppendLog(logs, entry)
		})
	}
}
