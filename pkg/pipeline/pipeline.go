// Package pipeline wires the query-understanding stages into a single
// runner: classify, extract slots, select a domain rule, build the
// route plan, execute it, and render the answer.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/parkops/groundsman/pkg/compose"
	"github.com/parkops/groundsman/pkg/config"
	"github.com/parkops/groundsman/pkg/domain"
	"github.com/parkops/groundsman/pkg/encoder"
	"github.com/parkops/groundsman/pkg/evidence"
	"github.com/parkops/groundsman/pkg/executor"
	"github.com/parkops/groundsman/pkg/intent"
	"github.com/parkops/groundsman/pkg/plan"
	"github.com/parkops/groundsman/pkg/slots"
)

// Runner executes the full query pipeline. All stages are deterministic
// apart from the tools themselves; the same query, configuration, and
// classification always produce the same plan.
type Runner struct {
	classifier *intent.Classifier
	extractor  *slots.Extractor
	selector   *domain.Selector
	builder    *plan.Builder
	exec       *executor.Executor
	logger     *zap.Logger

	evidenceDir string
}

// Options configures a Runner.
type Options struct {
	// EvidenceDir, when set, persists a run record for every query.
	EvidenceDir string
}

// New assembles a runner from an already-built intent store and tool
// registry.
func New(store *intent.Store, enc encoder.Engine, m *config.Manifest, registry *executor.Registry, logger *zap.Logger, opts Options) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	selector, err := domain.NewSelector(m)
	if err != nil {
		return nil, fmt.Errorf("compile routing rules: %w", err)
	}
	return &Runner{
		classifier:  intent.NewClassifier(store, enc, m.Pipeline, logger),
		extractor:   slots.NewExtractor(m.Gazetteer),
		selector:    selector,
		builder:     plan.NewBuilder(store, m, logger),
		exec:        executor.New(registry, m.Pipeline.PerStepTimeout(), logger),
		logger:      logger,
		evidenceDir: opts.EvidenceDir,
	}, nil
}

// Outcome carries everything a run produced.
type Outcome struct {
	RunID          string
	Classification *intent.Result
	Slots          slots.Slots
	Selection      domain.Selection
	Plan           *plan.Plan
	Bundle         *executor.Bundle
	Answer         compose.Answer
	Elapsed        time.Duration
}

// Run processes one query end to end. Classifier unavailability does
// not fail the run; the plan degrades instead.
func (r *Runner) Run(ctx context.Context, q plan.Query) (*Outcome, error) {
	start := time.Now()

	result, err := r.classifier.Classify(ctx, q.Text)
	if err != nil {
		if !errors.Is(err, intent.ErrClassifierUnavailable) {
			return nil, err
		}
		r.logger.Warn("classifier unavailable, degrading", zap.Error(err))
		result = nil
	}

	sl := r.extractor.Extract(q.Text)
	sel := r.selector.Select(q.Text, sl)

	p, err := r.builder.Build(q, result, sl, sel)
	if err != nil {
		return nil, fmt.Errorf("build plan: %w", err)
	}

	bundle := r.exec.Execute(ctx, p, sl)
	answer := compose.Render(p, bundle)

	outcome := &Outcome{
		Classification: result,
		Slots:          sl,
		Selection:      sel,
		Plan:           p,
		Bundle:         bundle,
		Answer:         answer,
		Elapsed:        time.Since(start),
	}

	if r.evidenceDir != "" {
		runID, err := r.writeEvidence(q, result, sl, p, bundle)
		if err != nil {
			// Evidence is best effort; the answer still stands.
			r.logger.Warn("failed to write run record", zap.Error(err))
		}
		outcome.RunID = runID
	}

	r.logger.Info("query processed",
		zap.String("intent", p.Intent),
		zap.Int("steps", len(p.Steps)),
		zap.Bool("degraded", p.Degraded),
		zap.Duration("elapsed", outcome.Elapsed),
	)
	return outcome, nil
}

func (r *Runner) writeEvidence(q plan.Query, result *intent.Result, sl slots.Slots, p *plan.Plan, bundle *executor.Bundle) (string, error) {
	record := evidence.New(q.Text, q.ImageRef, result, p)
	writer, err := evidence.NewWriter(r.evidenceDir, record.ID)
	if err != nil {
		return "", err
	}
	if err := writer.WriteRun(record); err != nil {
		return record.ID, err
	}
	if result != nil {
		cls := evidence.ClassificationRecord{
			Scores:        result.Scores,
			LowConfidence: result.LowConfidence,
			Slots:         sl,
		}
		if err := writer.WriteClassification(cls); err != nil {
			return record.ID, err
		}
	}
	if err := writer.WritePlan(p); err != nil {
		return record.ID, err
	}
	return record.ID, writer.WriteSteps(bundle)
}
