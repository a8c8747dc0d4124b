package retrieve

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Searcher is the index surface the tool needs.
type Searcher interface {
	Search(ctx context.Context, query string, keywords []string, k int) ([]Chunk, error)
}

// Output is the retrieval tool's result payload.
type Output struct {
	Chunks    []Chunk   `json:"chunks"`
	Procedure Procedure `json:"procedure,omitempty"`
}

// Procedure is the structured maintenance content pulled out of the
// retrieved snippets.
type Procedure struct {
	Steps     []string `json:"steps,omitempty"`
	Materials []string `json:"materials,omitempty"`
	Tools     []string `json:"tools,omitempty"`
	Safety    []string `json:"safety,omitempty"`
}

// Empty reports whether nothing structured was extracted.
func (p Procedure) Empty() bool {
	return len(p.Steps) == 0 && len(p.Materials) == 0 && len(p.Tools) == 0 && len(p.Safety) == 0
}

// Tool adapts the index to the plan executor's tool contract.
type Tool struct {
	index Searcher
}

// NewTool wraps a searcher as an executor tool.
func NewTool(index Searcher) *Tool { return &Tool{index: index} }

func (t *Tool) Name() string { return "kb_retrieve" }

// Invoke searches the knowledge base. Expected args: query (string),
// keywords ([]string, optional), k (int, optional).
func (t *Tool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("kb_retrieve: query is required")
	}
	k, _ := args["k"].(int)
	keywords := stringSlice(args["keywords"])

	chunks, err := t.index.Search(ctx, query, keywords, k)
	if err != nil {
		return nil, fmt.Errorf("kb_retrieve: %w", err)
	}
	return Output{Chunks: chunks, Procedure: ExtractProcedure(chunks)}, nil
}

func stringSlice(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

var (
	stepLineRe  = regexp.MustCompile(`(?i)^\s*(?:\d+[.)]|[-*]|step\s+\d+[:.]?)\s+(.+)$`)
	materialsRe = regexp.MustCompile(`(?i)(material|fertilizer|seed|mulch|marking|fuel)`)
	equipmentRe = regexp.MustCompile(`(?i)(mower|edger|trimmer|blower|truck|roller|equipment)`)
	safetyRe    = regexp.MustCompile(`(?i)(safety|ppe|goggles|hearing|lockout|traffic|cone)`)
)

// ExtractSteps pulls procedure step lines out of retrieved chunks so a
// how-to answer can lead with the actual instructions instead of prose.
func ExtractSteps(chunks []Chunk) []string {
	var steps []string
	seen := map[string]struct{}{}
	for _, c := range chunks {
		for _, line := range strings.Split(c.Content, "\n") {
			m := stepLineRe.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			step := strings.TrimSpace(m[1])
			if _, dup := seen[strings.ToLower(step)]; dup || step == "" {
				continue
			}
			seen[strings.ToLower(step)] = struct{}{}
			steps = append(steps, step)
		}
	}
	if len(steps) > 12 {
		steps = steps[:12]
	}
	return steps
}

// ExtractProcedure classifies snippet lines into steps, materials,
// equipment, and safety notes, deduplicated and capped.
func ExtractProcedure(chunks []Chunk) Procedure {
	return Procedure{
		Steps:     ExtractSteps(chunks),
		Materials: pickLines(chunks, materialsRe, 10),
		Tools:     pickLines(chunks, equipmentRe, 10),
		Safety:    pickLines(chunks, safetyRe, 10),
	}
}

func pickLines(chunks []Chunk, re *regexp.Regexp, limit int) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, c := range chunks {
		for _, line := range strings.Split(c.Content, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || !re.MatchString(line) {
				continue
			}
			if _, dup := seen[strings.ToLower(line)]; dup {
				continue
			}
			seen[strings.ToLower(line)] = struct{}{}
			out = append(out, line)
			if len(out) == limit {
				return out
			}
		}
	}
	return out
}
