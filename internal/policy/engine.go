package policy

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"sort"

	"github.com/open-policy-agent/opa/v1/rego"
)

//go:embed capabilities.rego
var DefaultPolicy string

const denyQuery = "data.tabletalk.capabilities.deny"

// Engine evaluates the capability policy against program summaries.
type Engine struct {
	query rego.PreparedEvalQuery
}

func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query(denyQuery),
		rego.Module("capabilities.rego", policyContent),
	)
	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare capability policy: %w", err)
	}
	return &Engine{query: query}, nil
}

// LoadPolicy returns the policy at path, or the built-in one when path is empty.
func LoadPolicy(path string) (string, error) {
	if path == "" {
		return DefaultPolicy, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read policy file: %w", err)
	}
	return string(raw), nil
}

// Violations returns the sorted deny messages for input; none means allowed.
func (e *Engine) Violations(ctx context.Context, input Input) ([]string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("evaluate capability policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return nil, nil
	}
	values, ok := results[0].Expressions[0].Value.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected policy result type %T", results[0].Expressions[0].Value)
	}
	violations := make([]string, 0, len(values))
	for _, value := range values {
		violations = append(violations, fmt.Sprint(value))
	}
	sort.Strings(violations)
	return violations, nil
}
