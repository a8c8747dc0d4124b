// Package compose renders an execution bundle into the final
// user-facing answer.
package compose

import (
	"fmt"
	"sort"
	"strings"

	"github.com/parkops/groundsman/pkg/executor"
	"github.com/parkops/groundsman/pkg/plan"
	"github.com/parkops/groundsman/pkg/tools/clarify"
	"github.com/parkops/groundsman/pkg/tools/retrieve"
	"github.com/parkops/groundsman/pkg/tools/summarize"
	"github.com/parkops/groundsman/pkg/tools/tabular"
	"github.com/parkops/groundsman/pkg/tools/vision"
)

// Answer is the rendered response.
type Answer struct {
	Text      string   `json:"text"`
	ChartHint string   `json:"chart_hint,omitempty"`
	Degraded  bool     `json:"degraded,omitempty"`
	Failures  []string `json:"failures,omitempty"`
}

// Render turns a plan's execution bundle into the response text. It
// always produces something readable: clarification questions, a model
// summary, raw tool output for partial runs, or a failure notice.
func Render(p *plan.Plan, bundle *executor.Bundle) Answer {
	ans := Answer{Degraded: p.Degraded}
	consumed := consumedBySummary(p, bundle)

	var sections []string
	for _, res := range bundle.Results {
		if !res.OK {
			ans.Failures = append(ans.Failures, fmt.Sprintf("%s: %s", res.StepID, res.Err))
			continue
		}
		if !consumed[res.StepID] {
			if s := renderStep(res); s != "" {
				sections = append(sections, s)
			}
		}
		if hint := chartHint(res); hint != "" {
			ans.ChartHint = hint
		}
	}

	switch {
	case len(sections) > 0:
		ans.Text = strings.Join(sections, "\n\n")
	case len(ans.Failures) > 0:
		ans.Text = "I could not complete that request:\n- " + strings.Join(ans.Failures, "\n- ")
	default:
		ans.Text = "I could not find anything relevant to that request."
	}

	if p.Degraded {
		ans.Text = "Note: query understanding is temporarily degraded; showing the closest reference material.\n\n" + ans.Text
	}
	return ans
}

// renderStep formats one successful step. The summarize step supersedes
// the raw output of its upstream steps, so those render nothing when a
// summary is present downstream.
func renderStep(res executor.StepResult) string {
	switch out := res.Output.(type) {
	case clarify.Output:
		return "Before I can answer, I need a little more detail:\n- " + strings.Join(out.Questions, "\n- ")
	case summarize.Output:
		return out.Summary
	case tabular.Output:
		return renderTable(out)
	case vision.Assessment:
		return renderAssessment(out)
	case retrieve.Output:
		return renderChunks(out)
	default:
		return ""
	}
}

// consumedBySummary marks steps whose output a succeeded summarize step
// already folded into its answer, so their raw sections are not repeated.
func consumedBySummary(p *plan.Plan, bundle *executor.Bundle) map[string]bool {
	consumed := map[string]bool{}
	for _, step := range p.Steps {
		if step.Kind != plan.KindSummarize {
			continue
		}
		if res, ok := bundle.Result(step.ID); ok && res.OK {
			for _, dep := range step.DependsOn {
				consumed[dep] = true
			}
		}
	}
	return consumed
}

func renderTable(out tabular.Output) string {
	if len(out.Rows) == 0 {
		return "No matching records were found."
	}
	var b strings.Builder
	b.WriteString("| " + strings.Join(out.Columns, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(out.Columns)) + "\n")
	for _, row := range out.Rows {
		cells := make([]string, len(out.Columns))
		for i, col := range out.Columns {
			cells[i] = fmt.Sprintf("%v", row[col])
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderAssessment(out vision.Assessment) string {
	var b strings.Builder
	b.WriteString(out.Notes)
	if len(out.Labels) > 0 {
		fmt.Fprintf(&b, "\nObserved: %s", strings.Join(out.Labels, ", "))
	}
	if out.Score > 0 {
		fmt.Fprintf(&b, "\nCondition score: %.2f", out.Score)
	}
	return b.String()
}

func renderChunks(out retrieve.Output) string {
	if len(out.Procedure.Steps) > 0 {
		var b strings.Builder
		b.WriteString("Here is the procedure:\n")
		for i, step := range out.Procedure.Steps {
			fmt.Fprintf(&b, "%d. %s\n", i+1, step)
		}
		if len(out.Procedure.Safety) > 0 {
			b.WriteString("\nSafety notes:\n")
			for _, line := range out.Procedure.Safety {
				fmt.Fprintf(&b, "- %s\n", line)
			}
		}
		return strings.TrimRight(b.String(), "\n")
	}
	var parts []string
	for _, c := range out.Chunks {
		if c.Title != "" {
			parts = append(parts, fmt.Sprintf("**%s**\n%s", c.Title, c.Content))
		} else {
			parts = append(parts, c.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

// chartHint suggests a visualization for multi-row numeric results.
func chartHint(res executor.StepResult) string {
	out, ok := res.Output.(tabular.Output)
	if !ok || len(out.Rows) < 2 {
		return ""
	}
	switch out.Template {
	case "cost_trend":
		return "line:month,total"
	case "cost_by_park_month":
		return "bar:park_name,total"
	case "cost_breakdown":
		return "pie:cost_type,total"
	default:
		return ""
	}
}

// Sources lists the distinct knowledge-base documents a bundle drew on.
func Sources(bundle *executor.Bundle) []string {
	set := map[string]struct{}{}
	for _, res := range bundle.Results {
		out, ok := res.Output.(retrieve.Output)
		if !ok {
			continue
		}
		for _, c := range out.Chunks {
			set[c.Source] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
