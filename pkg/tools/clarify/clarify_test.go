package clarify

import (
	"context"
	"reflect"
	"testing"
)

func TestInvokeEchoesQuestions(t *testing.T) {
	tool := NewTool()

	out, err := tool.Invoke(context.Background(), map[string]any{
		"questions": []string{"Which month?", "Which park?"},
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got := out.(Output).Questions; !reflect.DeepEqual(got, []string{"Which month?", "Which park?"}) {
		t.Errorf("questions = %v", got)
	}
}

func TestInvokeAcceptsDecodedJSON(t *testing.T) {
	tool := NewTool()

	out, err := tool.Invoke(context.Background(), map[string]any{
		"questions": []any{"Which month?"},
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got := out.(Output).Questions; !reflect.DeepEqual(got, []string{"Which month?"}) {
		t.Errorf("questions = %v", got)
	}
}

func TestInvokeRequiresQuestions(t *testing.T) {
	if _, err := NewTool().Invoke(context.Background(), map[string]any{}); err == nil {
		t.Error("expected error without questions")
	}
}
