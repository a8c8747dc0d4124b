package vision

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"google.golang.org/genai"
)

type fakeGenerator struct {
	resp     *genai.GenerateContentResponse
	err      error
	calls    int
	model    string
	contents []*genai.Content
}

func (f *fakeGenerator) GenerateContent(_ context.Context, model string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.calls++
	f.model = model
	f.contents = contents
	return f.resp, f.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Parts: []*genai.Part{{Text: text}},
			},
		}},
	}
}

func writeTestImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "swing.png")
	if err := os.WriteFile(path, []byte("not a real png"), 0644); err != nil {
		t.Fatalf("write image: %v", err)
	}
	return path
}

func TestInvokeAssessesImage(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse(
		`{"score": 0.62, "labels": ["mowing_lines_visible", "edge_wear"], "notes": "Mowing pattern detected; slight edge wear near boundaries."}`,
	)}
	tool := NewWithGenerator(gen, "gemini-2.0-flash", nil)
	path := writeTestImage(t)

	out, err := tool.Invoke(context.Background(), map[string]any{
		"image_ref":  path,
		"topic_hint": "turf inspection wear condition",
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	assessment, ok := out.(Assessment)
	if !ok {
		t.Fatalf("output type = %T", out)
	}
	if assessment.ImageRef != path {
		t.Errorf("image_ref = %q, want %q", assessment.ImageRef, path)
	}
	if assessment.Score != 0.62 {
		t.Errorf("score = %f, want 0.62", assessment.Score)
	}
	if len(assessment.Labels) != 2 || assessment.Labels[0] != "mowing_lines_visible" {
		t.Errorf("labels = %v", assessment.Labels)
	}
	if !strings.Contains(assessment.Notes, "edge wear") {
		t.Errorf("notes = %q", assessment.Notes)
	}

	if gen.model != "gemini-2.0-flash" {
		t.Errorf("model = %q", gen.model)
	}
	if len(gen.contents) != 1 || len(gen.contents[0].Parts) != 2 {
		t.Fatalf("contents = %+v", gen.contents)
	}
	prompt := gen.contents[0].Parts[0].Text
	if !strings.Contains(prompt, "turf inspection wear condition") {
		t.Errorf("prompt missing topic hint: %q", prompt)
	}
	blob := gen.contents[0].Parts[1].InlineData
	if blob == nil || blob.MIMEType != "image/png" {
		t.Errorf("inline data = %+v", blob)
	}
}

func TestInvokeNonJSONReplyBecomesNotes(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse("The turf looks worn at the edges.")}
	tool := NewWithGenerator(gen, "m", nil)

	out, err := tool.Invoke(context.Background(), map[string]any{"image_ref": writeTestImage(t)})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	assessment := out.(Assessment)
	if assessment.Notes != "The turf looks worn at the edges." {
		t.Errorf("notes = %q", assessment.Notes)
	}
	if assessment.Score != 0 || len(assessment.Labels) != 0 {
		t.Errorf("malformed reply should not fabricate score or labels: %+v", assessment)
	}
}

func TestParseAssessmentClampsScore(t *testing.T) {
	a := parseAssessment(`{"score": 1.7, "labels": [], "notes": "ok"}`)
	if a.Score != 1 {
		t.Errorf("score = %f, want clamped to 1", a.Score)
	}
	a = parseAssessment("```json\n{\"score\": 0.4, \"labels\": [\"rust\"], \"notes\": \"fenced reply\"}\n```")
	if a.Score != 0.4 || a.Notes != "fenced reply" {
		t.Errorf("fenced JSON not parsed: %+v", a)
	}
}

func TestInvokeMissingImageRef(t *testing.T) {
	tool := NewWithGenerator(&fakeGenerator{}, "m", nil)
	if _, err := tool.Invoke(context.Background(), map[string]any{}); err == nil {
		t.Error("expected error for missing image_ref")
	}
}

func TestInvokeUnreadableImage(t *testing.T) {
	tool := NewWithGenerator(&fakeGenerator{}, "m", nil)
	_, err := tool.Invoke(context.Background(), map[string]any{
		"image_ref": filepath.Join(t.TempDir(), "missing.jpg"),
	})
	if err == nil {
		t.Error("expected error for unreadable image")
	}
}

func TestInvokeGeneratorError(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("quota exceeded")}
	tool := NewWithGenerator(gen, "m", nil)

	_, err := tool.Invoke(context.Background(), map[string]any{"image_ref": writeTestImage(t)})
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("err = %v", err)
	}
}

func TestInvokeEmptyResponse(t *testing.T) {
	gen := &fakeGenerator{resp: &genai.GenerateContentResponse{}}
	tool := NewWithGenerator(gen, "m", nil)

	if _, err := tool.Invoke(context.Background(), map[string]any{"image_ref": writeTestImage(t)}); err == nil {
		t.Error("expected error for empty model response")
	}
}

func TestImageMIME(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"field.png", "image/png"},
		{"field.jpg", "image/jpeg"},
		{"field", "image/jpeg"},
	}
	for _, tc := range tests {
		if got := imageMIME(tc.path); got != tc.want {
			t.Errorf("imageMIME(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}
