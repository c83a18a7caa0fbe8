// Package probe provides a scenario planner and an HTTP probe executor.
package probe

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/xiaot623/gogo/autoqa/internal/domain"
)

var quoted = regexp.MustCompile(`"([^"]+)"`)

// Planner derives one test case per non-empty scenario line. Quoted text in a
// line is the text the page is expected to contain.
type Planner struct{}

// NewPlanner creates a planner.
func NewPlanner() *Planner {
	return &Planner{}
}

// Plan builds the test cases of run.
func (p *Planner) Plan(ctx context.Context, run *domain.Run) ([]domain.TestCase, error) {
	var cases []domain.TestCase
	for _, line := range strings.Split(run.Scenario, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*"))
		if line == "" {
			continue
		}
		tc := domain.TestCase{
			ID:          fmt.Sprintf("TC%03d", len(cases)+1),
			Description: line,
			Steps:       []string{"Open " + run.URL},
			Status:      domain.TestCaseStatusPending,
		}
		if want := ExpectedText(line); want != "" {
			tc.Steps = append(tc.Steps, fmt.Sprintf("Check the page contains %q", want))
			tc.ExpectedResult = fmt.Sprintf("Page loads and contains %q", want)
		} else {
			tc.Steps = append(tc.Steps, "Check the response status")
			tc.ExpectedResult = "Page loads successfully"
		}
		cases = append(cases, tc)
	}
	return cases, nil
}

// ExpectedText returns the first quoted text of a scenario line.
func ExpectedText(line string) string {
	m := quoted.FindStringSubmatch(line)
	if m == nil {
		return ""
	}
	return m[1]
}
