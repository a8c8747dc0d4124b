package plan

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/parkops/groundsman/pkg/config"
	"github.com/parkops/groundsman/pkg/domain"
	"github.com/parkops/groundsman/pkg/intent"
	"github.com/parkops/groundsman/pkg/slots"
)

// Query is the raw request a plan is built for.
type Query struct {
	Text     string `json:"text"`
	ImageRef string `json:"image_ref,omitempty"`
}

// HasImage reports whether an image is attached.
func (q Query) HasImage() bool { return q.ImageRef != "" }

// Tool registry names used by plan steps.
const (
	ToolRetrieve  = "kb_retrieve"
	ToolTabular   = "sql_template"
	ToolVision    = "cv_assess"
	ToolSummarize = "summarize"
	ToolClarify   = "clarify"
)

// Builder turns classification, slots, and the domain selection into a
// route plan. Stateless apart from configuration; safe for concurrent use.
type Builder struct {
	store    *intent.Store
	manifest *config.Manifest
	logger   *zap.Logger
}

// NewBuilder creates a plan builder.
func NewBuilder(store *intent.Store, m *config.Manifest, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{store: store, manifest: m, logger: logger}
}

// Build constructs the route plan. A nil classification result (classifier
// unavailable) degrades to a retrieval-only plan; a low-confidence result
// becomes a clarification plan; everything else maps the resolved intent to
// its canonical tool sequence with arguments populated from the slots and
// the domain selection.
func (b *Builder) Build(q Query, result *intent.Result, sl slots.Slots, sel domain.Selection) (*Plan, error) {
	if result == nil {
		return b.buildDegraded(q, sel)
	}
	if result.LowConfidence {
		p, err := b.buildClarification(result.Top().Label, sel, sl)
		if err != nil {
			return nil, err
		}
		return p, nil
	}

	label := b.resolveIntent(result.Top().Label, q.HasImage())
	steps := b.steps(label, q, sl, sel)

	p, err := New(label, steps)
	if err != nil {
		return nil, err
	}
	p.Clarifications = b.clarifications(sel, sl)

	// The builder must never emit a vision step without an image, no
	// matter what the classifier guessed.
	if !q.HasImage() && p.HasKind(KindVision) {
		return nil, fmt.Errorf("%w: vision step in plan without image", ErrInvalidPlan)
	}

	b.logger.Debug("built plan",
		zap.String("intent", label),
		zap.Int("steps", len(p.Steps)),
	)
	return p, nil
}

// resolveIntent applies the triple-layer vision verification. Layer one is
// the classifier's label; layer two is image presence; layer three is the
// re-check in Build above. A vision-bearing label without an image falls
// back to the configured text-only intent. An attached image promotes a
// text-only label to its configured vision counterpart.
func (b *Builder) resolveIntent(label string, hasImage bool) string {
	if b.store.NeedsImage(label) && !hasImage {
		fallback := b.manifest.Fallback
		b.logger.Debug("vision intent suppressed",
			zap.String("classified", label),
			zap.String("fallback", fallback),
		)
		return fallback
	}
	if hasImage && !b.store.NeedsImage(label) {
		if promoted, ok := b.manifest.ImagePromotions[label]; ok {
			return promoted
		}
	}
	return label
}

// steps is the strategy table: the canonical ordered tool sequence per
// intent.
func (b *Builder) steps(label string, q Query, sl slots.Slots, sel domain.Selection) []Step {
	switch label {
	case IntentCostSuperlative:
		return []Step{
			b.retrieveStep("retrieve", q, sel, 3),
			b.tabularStep("tabular", sl, sel, "labor_cost_month_top1"),
			b.summarizeStep("summarize", q, "retrieve"),
		}
	case IntentDataQuery:
		return []Step{
			b.tabularStep("tabular", sl, sel, "cost_by_park_month"),
		}
	case IntentProcedure:
		return []Step{
			b.retrieveStep("retrieve", q, sel, 5),
			b.summarizeStep("summarize", q, "retrieve"),
		}
	case IntentVisualCheck:
		return []Step{
			b.visionStep("vision", q, sel),
		}
	case IntentVisualContext:
		return []Step{
			b.retrieveStep("retrieve", q, sel, 3),
			b.visionStep("vision", q, sel),
			b.summarizeStep("summarize", q, "retrieve", "vision"),
		}
	default:
		// Unknown labels get the widest text-only treatment.
		return []Step{
			b.retrieveStep("retrieve", q, sel, 5),
			b.summarizeStep("summarize", q, "retrieve"),
		}
	}
}

func (b *Builder) retrieveStep(id string, q Query, sel domain.Selection, k int) Step {
	return Step{
		ID:   id,
		Tool: ToolRetrieve,
		Kind: KindRetrieve,
		Args: map[string]any{
			"query":    q.Text,
			"keywords": append([]string(nil), sel.Keywords...),
			"k":        k,
		},
	}
}

// tabularStep populates the template parameters from the slots. Missing
// slots widen the call rather than fabricating values: a missing month
// falls back to the breakdown template, a missing range covers all months,
// and a missing year is omitted so the template lifts the year filter.
func (b *Builder) tabularStep(id string, sl slots.Slots, sel domain.Selection, defaultTemplate string) Step {
	tpl := sel.Template
	if tpl == "" {
		tpl = defaultTemplate
	}

	params := map[string]any{}
	if park := sl.Park(); park != "" {
		params["park_name"] = park
	}

	switch tpl {
	case "cost_trend":
		start, end := 1, 12
		if sl.HasRange() {
			start, end = *sl.StartMonth, *sl.EndMonth
		} else if sl.HasMonth() {
			start, end = *sl.Month, *sl.Month
		}
		params["start_month"] = start
		params["end_month"] = end
		if sl.RangeYear != nil {
			params["year"] = *sl.RangeYear
		} else if sl.Year != nil {
			params["year"] = *sl.Year
		}
	case "last_mowing_date":
		// Park is optional; no extra params needed.
	default:
		if sl.HasMonth() {
			params["month"] = *sl.Month
		} else if tpl != "cost_breakdown" {
			// Month is required for single-month templates; widen to the
			// year-wide breakdown instead of inventing one.
			tpl = "cost_breakdown"
		}
		if sl.Year != nil {
			params["year"] = *sl.Year
		}
	}

	return Step{
		ID:   id,
		Tool: ToolTabular,
		Kind: KindTabular,
		Args: map[string]any{
			"template": tpl,
			"params":   params,
		},
	}
}

func (b *Builder) visionStep(id string, q Query, sel domain.Selection) Step {
	return Step{
		ID:   id,
		Tool: ToolVision,
		Kind: KindVision,
		Args: map[string]any{
			"image_ref":  q.ImageRef,
			"topic_hint": sel.Domain + " inspection wear condition",
		},
	}
}

func (b *Builder) summarizeStep(id string, q Query, deps ...string) Step {
	return Step{
		ID:        id,
		Tool:      ToolSummarize,
		Kind:      KindSummarize,
		Args:      map[string]any{"query": q.Text},
		DependsOn: deps,
	}
}

// buildClarification emits a single no-tool step asking the user to
// disambiguate instead of guessing a plan.
func (b *Builder) buildClarification(guess string, sel domain.Selection, sl slots.Slots) (*Plan, error) {
	questions := b.clarifications(sel, sl)
	if len(questions) == 0 {
		questions = []string{"Could you rephrase your question with a bit more detail?"}
	}

	p, err := New(guess, []Step{{
		ID:   "clarify",
		Tool: ToolClarify,
		Kind: KindClarify,
		Args: map[string]any{"questions": questions},
	}})
	if err != nil {
		return nil, err
	}
	p.Clarifications = questions
	return p, nil
}

// buildDegraded covers classifier unavailability: a pure-retrieval plan so
// the caller still gets reference material.
func (b *Builder) buildDegraded(q Query, sel domain.Selection) (*Plan, error) {
	p, err := New(b.manifest.Fallback, []Step{
		b.retrieveStep("retrieve", q, sel, 5),
		b.summarizeStep("summarize", q, "retrieve"),
	})
	if err != nil {
		return nil, err
	}
	p.Degraded = true
	return p, nil
}

// clarifications derives follow-up questions for slots the winning rule's
// template would want but the text did not provide.
func (b *Builder) clarifications(sel domain.Selection, sl slots.Slots) []string {
	var out []string
	switch sel.Template {
	case "cost_trend":
		if !sl.HasRange() {
			out = append(out, "Which time period would you like to see? (e.g., from January to June)")
		}
	case "labor_cost_month_top1", "cost_by_park_month", "cost_breakdown":
		if !sl.HasMonth() {
			out = append(out, "Which month and year would you like to query?")
		}
	case "last_mowing_date":
		if len(sl.Parks) == 0 {
			out = append(out, "Which park would you like to check? (or say 'all parks')")
		}
	}
	if len(sl.Parks) > 1 {
		out = append(out, fmt.Sprintf("Multiple parks match your question (%d); which one did you mean?", len(sl.Parks)))
	}
	return out
}
