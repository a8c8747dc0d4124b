// Package plan builds the ordered, dependency-annotated tool sequence for a
// query. Construction is deterministic: identical inputs always produce a
// structurally identical plan.
package plan

import (
	"errors"
	"fmt"
)

// Intent labels of the built-in closed enumeration. Manifests may define
// others; the builder's strategy table covers these.
const (
	IntentCostSuperlative = "cost_superlative"
	IntentDataQuery       = "data_query"
	IntentProcedure       = "procedure"
	IntentVisualCheck     = "visual_check"
	IntentVisualContext   = "visual_context"
)

// Kind categorizes a step's tool.
type Kind string

const (
	KindRetrieve  Kind = "retrieve"
	KindTabular   Kind = "tabular"
	KindVision    Kind = "vision"
	KindSummarize Kind = "summarize"
	// KindClarify marks a plan that asks the user instead of calling tools.
	KindClarify Kind = "clarify"
)

// ErrInvalidPlan reports a forward or circular dependency reference. This
// is a programming-logic assertion: a correctly implemented builder never
// produces it.
var ErrInvalidPlan = errors.New("invalid plan construction")

// Step is one tool invocation within a plan.
type Step struct {
	ID   string         `json:"id"`
	Tool string         `json:"tool"`
	Kind Kind           `json:"kind"`
	Args map[string]any `json:"args,omitempty"`
	// DependsOn lists step IDs that must succeed before this step runs.
	// Every referenced ID must appear earlier in the sequence.
	DependsOn []string `json:"depends_on,omitempty"`
}

// Plan is the ordered sequence of steps chosen for one query.
type Plan struct {
	Intent string `json:"intent"`
	Steps  []Step `json:"steps"`
	// Clarifications holds questions for the user on clarification-only
	// plans, and missing-slot hints otherwise.
	Clarifications []string `json:"clarifications,omitempty"`
	// Degraded is set when the plan was built without a usable
	// classification.
	Degraded bool `json:"degraded,omitempty"`
}

// New validates the step sequence and returns the plan. An empty sequence
// is allowed only for clarification fallbacks; callers express that via a
// clarify-kind step rather than zero steps.
func New(intentLabel string, steps []Step) (*Plan, error) {
	if err := validate(steps); err != nil {
		return nil, err
	}
	return &Plan{Intent: intentLabel, Steps: steps}, nil
}

// HasKind reports whether any step has the given kind.
func (p *Plan) HasKind(kind Kind) bool {
	for _, s := range p.Steps {
		if s.Kind == kind {
			return true
		}
	}
	return false
}

// IsClarification reports whether the plan only asks the user a question.
func (p *Plan) IsClarification() bool {
	return len(p.Steps) == 1 && p.Steps[0].Kind == KindClarify
}

func validate(steps []Step) error {
	seen := make(map[string]int, len(steps))
	for i, s := range steps {
		if s.ID == "" {
			return fmt.Errorf("%w: step %d has no id", ErrInvalidPlan, i)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("%w: duplicate step id %s", ErrInvalidPlan, s.ID)
		}
		for _, dep := range s.DependsOn {
			if dep == s.ID {
				return fmt.Errorf("%w: step %s depends on itself", ErrInvalidPlan, s.ID)
			}
			if _, ok := seen[dep]; !ok {
				return fmt.Errorf("%w: step %s references %s which is not an earlier step", ErrInvalidPlan, s.ID, dep)
			}
		}
		seen[s.ID] = i
	}
	return nil
}
