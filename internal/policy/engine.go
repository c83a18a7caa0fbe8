// Package policy decides who may read a test run.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"

	"github.com/xiaot623/gogo/autoqa/internal/domain"
)

// Engine is the OPA policy engine.
type Engine struct {
	query  rego.PreparedEvalQuery
	admins []string
}

// NewEngine creates a policy engine from policy content. admins may read
// every run.
func NewEngine(ctx context.Context, policyContent string, admins []string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.run_access.allow"),
		rego.Module("run_access.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	if admins == nil {
		admins = []string{}
	}
	return &Engine{query: query, admins: admins}, nil
}

// AllowRun reports whether user may read run.
func (e *Engine) AllowRun(ctx context.Context, user string, run *domain.Run) (bool, error) {
	input := map[string]interface{}{
		"user":   user,
		"admins": e.admins,
		"run": map[string]interface{}{
			"id":    run.ID,
			"owner": run.Owner,
		},
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false, nil
	}
	allow, ok := results[0].Expressions[0].Value.(bool)
	return ok && allow, nil
}

// IsAdmin reports whether user may read every run.
func (e *Engine) IsAdmin(user string) bool {
	for _, admin := range e.admins {
		if admin == user {
			return true
		}
	}
	return false
}

// DefaultPolicy lets the owner and admins read a run. Runs without an owner
// were created anonymously and are readable by everyone.
const DefaultPolicy = `
package run_access

import rego.v1

default allow := false

allow if input.run.owner == ""

allow if input.user == input.run.owner

allow if input.user in input.admins
`
