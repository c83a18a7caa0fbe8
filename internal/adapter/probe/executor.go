package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/xiaot623/gogo/autoqa/internal/domain"
)

// maxBody bounds how much of a page is searched for expected text.
const maxBody = 4 << 20

// Executor runs a test case by fetching the run URL.
type Executor struct {
	httpClient *http.Client
}

// NewExecutor creates an executor whose requests time out after timeout.
func NewExecutor(timeout time.Duration) *Executor {
	return &Executor{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Execute fetches the run URL and checks the status and expected text. A
// request that cannot complete yields ERROR; a failed check yields FAIL.
func (e *Executor) Execute(ctx context.Context, run *domain.Run, tc domain.TestCase) (domain.TestCase, error) {
	executedAt := time.Now().UTC()
	tc.ExecutedAt = &executedAt

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, run.URL, nil)
	if err != nil {
		return tc, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "autoqa-probe/1.0")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return result(tc, domain.TestCaseStatusError, "Request failed", err.Error()), nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return result(tc, domain.TestCaseStatusError, fmt.Sprintf("Status %d", resp.StatusCode), "failed to read body: "+err.Error()), nil
	}

	actual := fmt.Sprintf("Status %d", resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return result(tc, domain.TestCaseStatusFail, actual, "unexpected response status"), nil
	}

	want := ExpectedText(tc.Description)
	if want == "" {
		return result(tc, domain.TestCaseStatusPass, actual, ""), nil
	}
	if strings.Contains(string(body), want) {
		return result(tc, domain.TestCaseStatusPass, fmt.Sprintf("%s, page contains %q", actual, want), ""), nil
	}
	return result(tc, domain.TestCaseStatusFail, fmt.Sprintf("%s, page does not contain %q", actual, want), ""), nil
}

func result(tc domain.TestCase, status domain.TestCaseStatus, actual, notes string) domain.TestCase {
	tc.Status = status
	tc.ActualResult = &actual
	if notes != "" {
		tc.Notes = &notes
	} else {
		tc.Notes = nil
	}
	return tc
}
