package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/parkops/groundsman/pkg/config"
	"github.com/parkops/groundsman/pkg/encoder"
)

func testPipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{
		MinConfidence:      0.45,
		TieEpsilon:         0.02,
		CorroborationFloor: 0.35,
	}
}

func buildTestStore(t *testing.T, enc encoder.Engine, intents map[string]config.IntentDef) *Store {
	t.Helper()
	store, err := NewStore(context.Background(), intents, enc)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func TestClassifyRanksByBestPrototype(t *testing.T) {
	enc := encoder.NewMockEngine(4)
	enc.SetVector("cost proto", []float32{1, 0, 0, 0})
	enc.SetVector("howto proto a", []float32{0, 1, 0, 0})
	enc.SetVector("howto proto b", []float32{0, 0.2, 0.98, 0})
	enc.SetVector("query", []float32{0, 0, 1, 0})

	store := buildTestStore(t, enc, map[string]config.IntentDef{
		"cost_superlative": {Prototypes: []string{"cost proto"}, Priority: 1},
		"procedure":        {Prototypes: []string{"howto proto a", "howto proto b"}, Priority: 3},
	})

	c := NewClassifier(store, enc, testPipelineConfig(), nil)
	result, err := c.Classify(context.Background(), "query")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	if got := result.Top().Label; got != "procedure" {
		t.Errorf("top label = %q, want procedure", got)
	}
	if result.LowConfidence {
		t.Error("expected confident result")
	}
	if len(result.Scores) != 2 {
		t.Fatalf("scores = %d, want 2 (one per intent)", len(result.Scores))
	}
	for i, s := range result.Scores {
		if s.Rank != i+1 {
			t.Errorf("scores[%d].Rank = %d, want %d", i, s.Rank, i+1)
		}
	}
}

func TestClassifyNearTieResolvedByCorroboration(t *testing.T) {
	enc := encoder.NewMockEngine(4)
	// data_query's single prototype edges out either procedure prototype,
	// but both procedure prototypes clear the corroboration floor.
	enc.SetVector("dq proto", []float32{0.995, 0.0998, 0, 0})
	enc.SetVector("proc proto a", []float32{0.99, 0.141, 0, 0})
	enc.SetVector("proc proto b", []float32{0.985, 0.172, 0, 0})
	enc.SetVector("query", []float32{1, 0, 0, 0})

	store := buildTestStore(t, enc, map[string]config.IntentDef{
		"data_query": {Prototypes: []string{"dq proto"}, Priority: 2},
		"procedure":  {Prototypes: []string{"proc proto a", "proc proto b"}, Priority: 3},
	})

	c := NewClassifier(store, enc, testPipelineConfig(), nil)
	result, err := c.Classify(context.Background(), "query")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	if got := result.Top().Label; got != "procedure" {
		t.Errorf("top label = %q, want procedure (more corroborating prototypes)", got)
	}
	if result.Top().Corroborating != 2 {
		t.Errorf("corroborating = %d, want 2", result.Top().Corroborating)
	}
}

func TestClassifyNearTieResolvedByPriority(t *testing.T) {
	enc := encoder.NewMockEngine(4)
	// Both intents have one corroborating prototype at nearly the same
	// similarity, so the fixed priority decides.
	enc.SetVector("low proto", []float32{0.99, 0.141, 0, 0})
	enc.SetVector("high proto", []float32{0.995, 0.0998, 0, 0})
	enc.SetVector("query", []float32{1, 0, 0, 0})

	store := buildTestStore(t, enc, map[string]config.IntentDef{
		"cost_superlative": {Prototypes: []string{"low proto"}, Priority: 1},
		"data_query":       {Prototypes: []string{"high proto"}, Priority: 2},
	})

	c := NewClassifier(store, enc, testPipelineConfig(), nil)
	result, err := c.Classify(context.Background(), "query")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	if got := result.Top().Label; got != "cost_superlative" {
		t.Errorf("top label = %q, want cost_superlative (priority 1)", got)
	}
}

func TestClassifyClearWinnerIgnoresTieBreak(t *testing.T) {
	enc := encoder.NewMockEngine(4)
	enc.SetVector("winner proto", []float32{1, 0, 0, 0})
	enc.SetVector("loser proto a", []float32{0, 1, 0, 0})
	enc.SetVector("loser proto b", []float32{0, 0.9, 0.43, 0})
	enc.SetVector("query", []float32{1, 0, 0, 0})

	store := buildTestStore(t, enc, map[string]config.IntentDef{
		"data_query": {Prototypes: []string{"winner proto"}, Priority: 2},
		"procedure":  {Prototypes: []string{"loser proto a", "loser proto b"}, Priority: 1},
	})

	c := NewClassifier(store, enc, testPipelineConfig(), nil)
	result, err := c.Classify(context.Background(), "query")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	// procedure has the lower priority and more prototypes, but is far
	// outside the epsilon window.
	if got := result.Top().Label; got != "data_query" {
		t.Errorf("top label = %q, want data_query", got)
	}
}

func TestClassifyLowConfidence(t *testing.T) {
	enc := encoder.NewMockEngine(4)
	enc.SetVector("proto", []float32{1, 0, 0, 0})
	enc.SetVector("query", []float32{0.3, 0.954, 0, 0})

	store := buildTestStore(t, enc, map[string]config.IntentDef{
		"procedure": {Prototypes: []string{"proto"}, Priority: 3},
	})

	c := NewClassifier(store, enc, testPipelineConfig(), nil)
	result, err := c.Classify(context.Background(), "query")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	if !result.LowConfidence {
		t.Errorf("LowConfidence = false, want true (similarity %.2f)", result.Top().Similarity)
	}
	if len(result.Scores) == 0 {
		t.Error("scores must still be populated for a low-confidence result")
	}
}

func TestClassifyNegativeSimilarityClampedToZero(t *testing.T) {
	enc := encoder.NewMockEngine(4)
	enc.SetVector("proto", []float32{1, 0, 0, 0})
	enc.SetVector("query", []float32{-1, 0, 0, 0})

	store := buildTestStore(t, enc, map[string]config.IntentDef{
		"procedure": {Prototypes: []string{"proto"}, Priority: 3},
	})

	c := NewClassifier(store, enc, testPipelineConfig(), nil)
	result, err := c.Classify(context.Background(), "query")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	if got := result.Top().Similarity; got != 0 {
		t.Errorf("similarity = %f, want 0 (clamped)", got)
	}
}

func TestClassifyEncoderFailure(t *testing.T) {
	enc := encoder.NewMockEngine(4)
	store := buildTestStore(t, enc, map[string]config.IntentDef{
		"procedure": {Prototypes: []string{"proto"}, Priority: 3},
	})
	enc.Fail(true)

	c := NewClassifier(store, enc, testPipelineConfig(), nil)
	_, err := c.Classify(context.Background(), "query")
	if !errors.Is(err, ErrClassifierUnavailable) {
		t.Errorf("err = %v, want ErrClassifierUnavailable", err)
	}
}

func TestStoreEmbedsPrototypesInOneBatch(t *testing.T) {
	enc := encoder.NewMockEngine(4)
	buildTestStore(t, enc, map[string]config.IntentDef{
		"data_query": {Prototypes: []string{"a", "b"}, Priority: 2},
		"procedure":  {Prototypes: []string{"c"}, Priority: 3},
	})

	if enc.Calls != 1 {
		t.Errorf("encoder calls = %d, want 1", enc.Calls)
	}
}

func TestStoreLookups(t *testing.T) {
	enc := encoder.NewMockEngine(4)
	store := buildTestStore(t, enc, map[string]config.IntentDef{
		"visual_check": {Prototypes: []string{"a"}, Priority: 5, NeedsImage: true},
		"procedure":    {Prototypes: []string{"b", "c"}, Priority: 3},
	})

	if !store.NeedsImage("visual_check") {
		t.Error("visual_check should need an image")
	}
	if store.NeedsImage("procedure") {
		t.Error("procedure should not need an image")
	}
	if got := store.Priority("procedure"); got != 3 {
		t.Errorf("Priority(procedure) = %d, want 3", got)
	}
	if got := len(store.Prototypes("procedure")); got != 2 {
		t.Errorf("Prototypes(procedure) = %d, want 2", got)
	}
	if store.Has("unknown") {
		t.Error("Has(unknown) = true")
	}
	labels := store.Labels()
	if len(labels) != 2 || labels[0] != "procedure" {
		t.Errorf("Labels() = %v, want sorted [procedure visual_check]", labels)
	}
}
