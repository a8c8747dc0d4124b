package summarize

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeGenerator struct {
	reply string
	err   error

	calls      int
	lastPrompt string
}

func (f *fakeGenerator) Name() string { return "fake" }

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.calls++
	f.lastPrompt = prompt
	return f.reply, f.err
}

func TestInvokeComposesFromInputs(t *testing.T) {
	gen := &fakeGenerator{reply: "Cambridge Park cost the most in March."}
	tool := NewTool(gen, nil)

	out, err := tool.Invoke(context.Background(), map[string]any{
		"query": "which park cost the most",
		"inputs": map[string]any{
			"retrieve": "Mowing labor rates are standardized.",
			"tabular":  map[string]any{"park_name": "Cambridge Park", "total": 1840.5},
		},
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	result := out.(Output)
	if result.Summary != "Cambridge Park cost the most in March." {
		t.Errorf("summary = %q", result.Summary)
	}
	if result.Degraded {
		t.Error("Degraded = true on success")
	}
	if !strings.Contains(gen.lastPrompt, "which park cost the most") {
		t.Error("prompt missing the question")
	}
	if !strings.Contains(gen.lastPrompt, "Cambridge Park") {
		t.Error("prompt missing the grounding context")
	}
	// Sections appear in step-id order.
	if strings.Index(gen.lastPrompt, "[retrieve]") > strings.Index(gen.lastPrompt, "[tabular]") {
		t.Error("context sections out of order")
	}
}

func TestInvokeDegradesWhenGeneratorFails(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("connection refused")}
	tool := NewTool(gen, nil)

	out, err := tool.Invoke(context.Background(), map[string]any{
		"query":  "q",
		"inputs": map[string]any{"retrieve": "the raw facts"},
	})
	if err != nil {
		t.Fatalf("Invoke must not fail when the model is down: %v", err)
	}

	result := out.(Output)
	if !result.Degraded {
		t.Error("Degraded = false for unreachable model")
	}
	if !strings.Contains(result.Summary, "the raw facts") {
		t.Errorf("degraded summary = %q, want raw context", result.Summary)
	}
}

func TestInvokeRejectsEmptyInputs(t *testing.T) {
	tool := NewTool(&fakeGenerator{}, nil)
	if _, err := tool.Invoke(context.Background(), map[string]any{"query": "q"}); err == nil {
		t.Error("expected error with no upstream output")
	}
}

func TestBuildContextSkipsNilSections(t *testing.T) {
	got := buildContext(map[string]any{"a": nil, "b": "content"})
	if strings.Contains(got, "[a]") {
		t.Errorf("context contains empty section: %q", got)
	}
	if !strings.Contains(got, "[b]") {
		t.Errorf("context missing populated section: %q", got)
	}
}
