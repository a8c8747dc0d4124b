// Package clarify implements the no-op clarification tool. Its only job
// is to surface the builder's follow-up questions through the normal
// execution record.
package clarify

import (
	"context"
	"fmt"
)

// Output carries the questions back to the caller.
type Output struct {
	Questions []string `json:"questions"`
}

// Tool echoes clarification questions.
type Tool struct{}

// NewTool creates the clarification tool.
func NewTool() *Tool { return &Tool{} }

func (t *Tool) Name() string { return "clarify" }

// Invoke returns the questions from the step args.
func (t *Tool) Invoke(_ context.Context, args map[string]any) (any, error) {
	switch q := args["questions"].(type) {
	case []string:
		return Output{Questions: q}, nil
	case []any:
		out := make([]string, 0, len(q))
		for _, item := range q {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return Output{Questions: out}, nil
	default:
		return nil, fmt.Errorf("clarify: questions are required")
	}
}
