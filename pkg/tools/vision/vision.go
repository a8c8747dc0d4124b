// Package vision implements the image-assessment tool on the Gemini
// multimodal API.
package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// Assessment is the vision tool's result payload: a condition score in
// [0,1], observation labels, and free-text notes.
type Assessment struct {
	ImageRef string   `json:"image_ref"`
	Score    float64  `json:"score"`
	Labels   []string `json:"labels,omitempty"`
	Notes    string   `json:"notes"`
}

// Generator is the model surface the tool needs; it matches the genai
// client's Models service.
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Tool assesses attached images of park assets and grounds.
type Tool struct {
	gen    Generator
	model  string
	logger *zap.Logger
}

// New creates a vision tool backed by the Gemini API.
func New(apiKey, model string, logger *zap.Logger) (*Tool, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("vision API key is required")
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create vision client: %w", err)
	}
	return NewWithGenerator(client.Models, model, logger), nil
}

// NewWithGenerator wires an explicit generator, used by tests.
func NewWithGenerator(gen Generator, model string, logger *zap.Logger) *Tool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tool{gen: gen, model: model, logger: logger}
}

func (t *Tool) Name() string { return "cv_assess" }

const assessPrompt = `You are inspecting a photo taken at a public park for the grounds
maintenance team. Assess the visible condition of the equipment or
grounds: wear, damage, safety concerns, and whether maintenance looks
needed. Topic hint: %s.
Reply with exactly one JSON object, no other text:
{"score": <condition from 0.0 (failed) to 1.0 (excellent)>,
 "labels": ["short_snake_case_observations"],
 "notes": "one or two factual sentences"}`

// Invoke assesses the referenced image. Expected args: image_ref
// (string, a local file path), topic_hint (string, optional).
func (t *Tool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	ref, _ := args["image_ref"].(string)
	if ref == "" {
		return nil, fmt.Errorf("cv_assess: image_ref is required")
	}
	hint, _ := args["topic_hint"].(string)

	data, err := os.ReadFile(ref)
	if err != nil {
		return nil, fmt.Errorf("cv_assess: read image: %w", err)
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(fmt.Sprintf(assessPrompt, hint)),
			genai.NewPartFromBytes(data, imageMIME(ref)),
		}, genai.RoleUser),
	}

	cfg := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}
	resp, err := t.gen.GenerateContent(ctx, t.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("cv_assess: %w", err)
	}
	text := responseText(resp)
	if text == "" {
		return nil, fmt.Errorf("cv_assess: model returned no content")
	}

	assessment := parseAssessment(text)
	assessment.ImageRef = ref

	t.logger.Debug("image assessed",
		zap.String("image_ref", ref),
		zap.Float64("score", assessment.Score),
	)
	return assessment, nil
}

// parseAssessment decodes the model's JSON reply. A malformed reply is
// not an error; the raw text becomes the notes so the answer still
// carries the observation.
func parseAssessment(text string) Assessment {
	clean := strings.TrimSpace(text)
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")

	var a Assessment
	if err := json.Unmarshal([]byte(strings.TrimSpace(clean)), &a); err != nil || a.Notes == "" {
		return Assessment{Notes: text}
	}
	if a.Score < 0 {
		a.Score = 0
	}
	if a.Score > 1 {
		a.Score = 1
	}
	return a
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	return strings.TrimSpace(b.String())
}

func imageMIME(path string) string {
	if mt := mime.TypeByExtension(filepath.Ext(path)); mt != "" {
		return mt
	}
	return "image/jpeg"
}
