// Package evidence persists per-query execution records so answers can
// be audited after the fact: what was asked, how it was classified, what
// plan ran, and what every step returned.
package evidence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/parkops/groundsman/pkg/executor"
	"github.com/parkops/groundsman/pkg/intent"
	"github.com/parkops/groundsman/pkg/plan"
	"github.com/parkops/groundsman/pkg/slots"
)

// RunRecord captures run-level metadata for one query.
type RunRecord struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Query         string    `json:"query"`
	ImageRef      string    `json:"image_ref,omitempty"`
	Intent        string    `json:"intent"`
	LowConfidence bool      `json:"low_confidence,omitempty"`
	Degraded      bool      `json:"degraded,omitempty"`
}

// New assembles a run record from the pipeline stages.
func New(query, imageRef string, result *intent.Result, p *plan.Plan) RunRecord {
	rec := RunRecord{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Query:     query,
		ImageRef:  imageRef,
		Intent:    p.Intent,
		Degraded:  p.Degraded,
	}
	if result != nil {
		rec.LowConfidence = result.LowConfidence
	}
	return rec
}

// ClassificationRecord captures the full score table for one run.
type ClassificationRecord struct {
	Scores        []intent.Score `json:"scores"`
	LowConfidence bool           `json:"low_confidence"`
	Slots         slots.Slots    `json:"slots"`
}

// Writer writes run records to disk under baseDir/<runID>/.
type Writer struct {
	runDir string
}

// NewWriter creates a writer rooted at baseDir/runID.
func NewWriter(baseDir, runID string) (*Writer, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if runID == "" {
		return nil, fmt.Errorf("run ID is required")
	}
	runDir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(filepath.Join(runDir, "steps"), 0755); err != nil {
		return nil, err
	}
	return &Writer{runDir: runDir}, nil
}

// RunDir returns the run directory path.
func (w *Writer) RunDir() string { return w.runDir }

// WriteRun writes run metadata to run.json.
func (w *Writer) WriteRun(record RunRecord) error {
	return writeJSON(filepath.Join(w.runDir, "run.json"), record)
}

// WriteClassification writes the score table to classification.json.
func (w *Writer) WriteClassification(record ClassificationRecord) error {
	return writeJSON(filepath.Join(w.runDir, "classification.json"), record)
}

// WritePlan writes the route plan to plan.json.
func (w *Writer) WritePlan(p *plan.Plan) error {
	return writeJSON(filepath.Join(w.runDir, "plan.json"), p)
}

// WriteSteps writes each step result to steps/<step_id>.json.
func (w *Writer) WriteSteps(bundle *executor.Bundle) error {
	for _, res := range bundle.Results {
		path := filepath.Join(w.runDir, "steps", fmt.Sprintf("%s.json", res.StepID))
		if err := writeJSON(path, res); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
