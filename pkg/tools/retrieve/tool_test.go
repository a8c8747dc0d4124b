package retrieve

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

type fakeSearcher struct {
	chunks []Chunk
	err    error

	lastQuery    string
	lastKeywords []string
	lastK        int
}

func (f *fakeSearcher) Search(_ context.Context, query string, keywords []string, k int) ([]Chunk, error) {
	f.lastQuery, f.lastKeywords, f.lastK = query, keywords, k
	return f.chunks, f.err
}

func TestToolInvoke(t *testing.T) {
	searcher := &fakeSearcher{chunks: []Chunk{
		{ID: 1, Source: "mowing_sop.md", Title: "Mowing Procedure", Content: "1. Inspect the mower\n2. Clear the area\n3. Mow in rows"},
	}}
	tool := NewTool(searcher)

	out, err := tool.Invoke(context.Background(), map[string]any{
		"query":    "how do I mow",
		"keywords": []string{"mowing", "safety"},
		"k":        3,
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	result := out.(Output)
	if len(result.Chunks) != 1 {
		t.Fatalf("chunks = %d, want 1", len(result.Chunks))
	}
	if want := []string{"Inspect the mower", "Clear the area", "Mow in rows"}; !reflect.DeepEqual(result.Procedure.Steps, want) {
		t.Errorf("steps = %v, want %v", result.Procedure.Steps, want)
	}
	if searcher.lastK != 3 || searcher.lastQuery != "how do I mow" {
		t.Errorf("search called with query=%q k=%d", searcher.lastQuery, searcher.lastK)
	}
}

func TestToolInvokeRequiresQuery(t *testing.T) {
	tool := NewTool(&fakeSearcher{})
	if _, err := tool.Invoke(context.Background(), map[string]any{"query": "  "}); err == nil {
		t.Error("expected error for empty query")
	}
}

func TestToolInvokePropagatesSearchError(t *testing.T) {
	searcher := &fakeSearcher{err: errors.New("index corrupt")}
	tool := NewTool(searcher)
	if _, err := tool.Invoke(context.Background(), map[string]any{"query": "x"}); err == nil {
		t.Error("expected search error")
	}
}

func TestToolInvokeKeywordsFromJSON(t *testing.T) {
	searcher := &fakeSearcher{}
	tool := NewTool(searcher)

	_, err := tool.Invoke(context.Background(), map[string]any{
		"query":    "x",
		"keywords": []any{"mowing", 42, "cost"},
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if want := []string{"mowing", "cost"}; !reflect.DeepEqual(searcher.lastKeywords, want) {
		t.Errorf("keywords = %v, want %v", searcher.lastKeywords, want)
	}
}

func TestExtractSteps(t *testing.T) {
	chunks := []Chunk{
		{Content: "Intro prose.\n1. Check fuel\n2) Start engine\nStep 3: Engage blades\n- Wear ear protection\nMore prose."},
		{Content: "1. Check fuel\n4. Store equipment"},
	}

	got := ExtractSteps(chunks)
	want := []string{"Check fuel", "Start engine", "Engage blades", "Wear ear protection", "Store equipment"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("steps = %v, want %v (deduplicated, in order)", got, want)
	}
}

func TestExtractStepsNoSteps(t *testing.T) {
	if got := ExtractSteps([]Chunk{{Content: "Just prose with no list."}}); got != nil {
		t.Errorf("steps = %v, want nil", got)
	}
}

func TestExtractProcedure(t *testing.T) {
	chunks := []Chunk{{Content: "1. Inspect the mower deck\n" +
		"Wear goggles and hearing protection at all times.\n" +
		"Refuel with fresh fuel only.\n" +
		"The riding mower and string trimmer live in bay 2.\n" +
		"Place traffic cones around the work area.\n" +
		"Unrelated prose line."}}

	p := ExtractProcedure(chunks)
	if len(p.Steps) != 1 || p.Steps[0] != "Inspect the mower deck" {
		t.Errorf("steps = %v", p.Steps)
	}
	if len(p.Materials) != 1 || p.Materials[0] != "Refuel with fresh fuel only." {
		t.Errorf("materials = %v", p.Materials)
	}
	if len(p.Tools) == 0 {
		t.Errorf("tools = %v, want mower/trimmer line", p.Tools)
	}
	// Both protective-gear and cone lines mention safety terms.
	if len(p.Safety) != 2 {
		t.Errorf("safety = %v, want 2 lines", p.Safety)
	}
	if p.Empty() {
		t.Error("procedure should not be empty")
	}
}

func TestExtractProcedureEmpty(t *testing.T) {
	if p := ExtractProcedure(nil); !p.Empty() {
		t.Errorf("procedure = %+v, want empty", p)
	}
}

func TestSplitChunks(t *testing.T) {
	text := "# Mowing\nBody one.\n\n## Safety\nBody two.\nMore."
	chunks := splitChunks(text)

	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want 2", len(chunks))
	}
	if chunks[0].Title != "Mowing" || chunks[0].Content != "Body one." {
		t.Errorf("chunk 0 = %+v", chunks[0])
	}
	if chunks[1].Title != "Safety" {
		t.Errorf("chunk 1 title = %q, want Safety", chunks[1].Title)
	}
}

func TestSplitChunksNoHeadings(t *testing.T) {
	chunks := splitChunks("plain text document\nsecond line")
	if len(chunks) != 1 || chunks[0].Title != "" {
		t.Errorf("chunks = %+v, want single untitled chunk", chunks)
	}
}

func TestTokenize(t *testing.T) {
	got := tokenize("Mow the Grass, twice-weekly in 2025!")
	want := []string{"mow", "the", "grass", "twice", "weekly", "in", "2025"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("tokenize = %v, want %v", got, want)
	}
}
