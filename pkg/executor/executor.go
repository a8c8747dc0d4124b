package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/parkops/groundsman/pkg/plan"
	"github.com/parkops/groundsman/pkg/slots"
)

// Tool is a single invocable capability. Implementations must honor
// context cancellation; the executor enforces the per-step deadline.
type Tool interface {
	Name() string
	Invoke(ctx context.Context, args map[string]any) (any, error)
}

// Registry maps tool names to implementations.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry builds a registry from the given tools. Duplicate names
// are an error.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if _, ok := r.tools[t.Name()]; ok {
			return nil, fmt.Errorf("duplicate tool %q", t.Name())
		}
		r.tools[t.Name()] = t
	}
	return r, nil
}

// Lookup returns the named tool.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ErrUnknownTool marks a plan step whose tool has no registration.
var ErrUnknownTool = errors.New("unknown tool")

// ErrDependencyFailed marks a step skipped because an upstream step did
// not succeed.
var ErrDependencyFailed = errors.New("upstream dependency failed")

// StepResult records the outcome of one plan step. Every step in the
// plan gets exactly one result whether it ran, failed, or was skipped.
type StepResult struct {
	StepID    string         `json:"step_id"`
	Tool      string         `json:"tool"`
	OK        bool           `json:"ok"`
	Output    any            `json:"output,omitempty"`
	Err       string         `json:"err,omitempty"`
	ElapsedMs int64          `json:"elapsed_ms"`
	Args      map[string]any `json:"args_redacted,omitempty"`
}

// Bundle is the complete execution record for a plan.
type Bundle struct {
	Intent  string       `json:"intent"`
	Slots   slots.Slots  `json:"slots"`
	Results []StepResult `json:"results"`
}

// Result returns the step result with the given id.
func (b *Bundle) Result(stepID string) (StepResult, bool) {
	for _, r := range b.Results {
		if r.StepID == stepID {
			return r, true
		}
	}
	return StepResult{}, false
}

// Succeeded reports whether every step completed without error.
func (b *Bundle) Succeeded() bool {
	for _, r := range b.Results {
		if !r.OK {
			return false
		}
	}
	return true
}

// Executor runs route plans against a tool registry. Steps execute
// sequentially in plan order; a failed step fails its dependents without
// invoking them. Stateless; safe for concurrent use.
type Executor struct {
	registry *Registry
	timeout  time.Duration
	logger   *zap.Logger
}

// New creates an executor. timeout bounds each individual step; zero
// means no per-step deadline beyond the caller's context.
func New(registry *Registry, timeout time.Duration, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{registry: registry, timeout: timeout, logger: logger}
}

// Execute runs every step of the plan and returns one result per step.
// It never returns a partial bundle: skipped and failed steps appear
// with OK false and a populated Err.
func (e *Executor) Execute(ctx context.Context, p *plan.Plan, sl slots.Slots) *Bundle {
	bundle := &Bundle{
		Intent:  p.Intent,
		Slots:   sl,
		Results: make([]StepResult, 0, len(p.Steps)),
	}

	succeeded := make(map[string]bool, len(p.Steps))
	outputs := make(map[string]any, len(p.Steps))
	for _, step := range p.Steps {
		res := e.runStep(ctx, step, succeeded, outputs)
		succeeded[step.ID] = res.OK
		if res.OK {
			outputs[step.ID] = res.Output
		}
		bundle.Results = append(bundle.Results, res)
	}
	return bundle
}

func (e *Executor) runStep(ctx context.Context, step plan.Step, succeeded map[string]bool, outputs map[string]any) StepResult {
	res := StepResult{
		StepID: step.ID,
		Tool:   step.Tool,
		Args:   redactArgs(step.Args),
	}

	for _, dep := range step.DependsOn {
		if !succeeded[dep] {
			res.Err = fmt.Sprintf("%v: %s", ErrDependencyFailed, dep)
			e.logger.Debug("step skipped",
				zap.String("step", step.ID),
				zap.String("failed_dependency", dep),
			)
			return res
		}
	}

	tool, ok := e.registry.Lookup(step.Tool)
	if !ok {
		res.Err = fmt.Sprintf("%v: %s", ErrUnknownTool, step.Tool)
		return res
	}

	// Dependent steps see their upstream outputs under "inputs", keyed
	// by step id.
	args := step.Args
	if len(step.DependsOn) > 0 {
		args = make(map[string]any, len(step.Args)+1)
		for k, v := range step.Args {
			args[k] = v
		}
		inputs := make(map[string]any, len(step.DependsOn))
		for _, dep := range step.DependsOn {
			inputs[dep] = outputs[dep]
		}
		args["inputs"] = inputs
	}

	stepCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := invoke(stepCtx, tool, args)
	res.ElapsedMs = time.Since(start).Milliseconds()

	if err != nil {
		res.Err = err.Error()
		e.logger.Warn("step failed",
			zap.String("step", step.ID),
			zap.String("tool", step.Tool),
			zap.Int64("elapsed_ms", res.ElapsedMs),
			zap.Error(err),
		)
		return res
	}

	res.OK = true
	res.Output = out
	e.logger.Debug("step succeeded",
		zap.String("step", step.ID),
		zap.String("tool", step.Tool),
		zap.Int64("elapsed_ms", res.ElapsedMs),
	)
	return res
}

// invoke wraps the tool call so a panicking tool fails its own step
// instead of tearing down the run.
func invoke(ctx context.Context, tool Tool, args map[string]any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("tool %s panicked: %v", tool.Name(), r)
		}
	}()
	return tool.Invoke(ctx, args)
}

// redactArgs copies step arguments for the execution record, masking
// credential-looking keys and truncating long values so the record stays
// loggable.
func redactArgs(args map[string]any) map[string]any {
	if len(args) == 0 {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		lower := strings.ToLower(k)
		if strings.Contains(lower, "key") || strings.Contains(lower, "token") || strings.Contains(lower, "secret") {
			out[k] = "[redacted]"
			continue
		}
		if s, ok := v.(string); ok && len(s) > 120 {
			out[k] = s[:120] + "..."
			continue
		}
		out[k] = v
	}
	return out
}
