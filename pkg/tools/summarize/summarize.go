// Package summarize implements the answer-composition tool. It collects
// the outputs of upstream plan steps into a grounding context and asks a
// language model for a short natural-language answer. When the model is
// unreachable the tool degrades to returning the raw context so the
// caller still gets the facts.
package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Generator produces a completion for a prompt.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// Output is the summarize tool's result payload.
type Output struct {
	Summary  string `json:"summary"`
	Degraded bool   `json:"degraded,omitempty"`
}

// Tool composes answers from upstream step outputs.
type Tool struct {
	gen    Generator
	logger *zap.Logger
}

// NewTool creates a summarize tool over the given generator.
func NewTool(gen Generator, logger *zap.Logger) *Tool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tool{gen: gen, logger: logger}
}

func (t *Tool) Name() string { return "summarize" }

const composePrompt = `You are answering a question from a park grounds maintenance worker.
Use only the context below; do not invent facts. Answer in two or three
sentences, leading with the direct answer.

Question: %s

Context:
%s`

// Invoke composes the answer. Expected args: query (string), inputs
// (map of upstream step id to output, injected by the executor).
func (t *Tool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	query, _ := args["query"].(string)
	inputs, _ := args["inputs"].(map[string]any)

	grounding := buildContext(inputs)
	if grounding == "" {
		return nil, fmt.Errorf("summarize: no upstream output to compose from")
	}

	answer, err := t.gen.Generate(ctx, fmt.Sprintf(composePrompt, query, grounding))
	if err != nil {
		t.logger.Warn("summarizer unavailable, returning raw context",
			zap.String("generator", t.gen.Name()),
			zap.Error(err),
		)
		return Output{Summary: grounding, Degraded: true}, nil
	}
	return Output{Summary: strings.TrimSpace(answer)}, nil
}

// buildContext renders upstream outputs in step-id order as labeled
// sections.
func buildContext(inputs map[string]any) string {
	if len(inputs) == 0 {
		return ""
	}
	ids := make([]string, 0, len(inputs))
	for id := range inputs {
		ids = append(ids, id)
	}
	// Small fixed set; simple insertion ordering keeps output stable.
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if ids[j] < ids[i] {
				ids[i], ids[j] = ids[j], ids[i]
			}
		}
	}

	var b strings.Builder
	for _, id := range ids {
		section := renderSection(inputs[id])
		if section == "" {
			continue
		}
		fmt.Fprintf(&b, "[%s]\n%s\n\n", id, section)
	}
	return strings.TrimSpace(b.String())
}

func renderSection(v any) string {
	switch vv := v.(type) {
	case nil:
		return ""
	case string:
		return vv
	default:
		data, err := json.MarshalIndent(vv, "", "  ")
		if err != nil {
			return fmt.Sprintf("%v", vv)
		}
		return string(data)
	}
}
