package intent

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/parkops/groundsman/pkg/config"
	"github.com/parkops/groundsman/pkg/encoder"
)

// ErrClassifierUnavailable reports that the query could not be embedded.
// Callers short-circuit to a degraded plan; this never reaches the user.
var ErrClassifierUnavailable = errors.New("classifier unavailable")

// Score is one ranked intent with its aggregated similarity.
type Score struct {
	Label      string  `json:"label"`
	Similarity float64 `json:"similarity"`
	Rank       int     `json:"rank"`
	// Corroborating counts prototypes whose similarity cleared the
	// corroboration floor. Used only for near-tie resolution.
	Corroborating int `json:"corroborating"`
}

// Result is the full ranked classification outcome.
type Result struct {
	Scores []Score `json:"scores"`
	// LowConfidence is set when the best similarity falls below the
	// configured minimum; the plan builder treats this as ambiguous.
	LowConfidence bool `json:"low_confidence"`
}

// Top returns the best-ranked score.
func (r *Result) Top() Score {
	return r.Scores[0]
}

// Classifier scores a query against the prototype store.
type Classifier struct {
	store  *Store
	enc    encoder.Engine
	cfg    config.PipelineConfig
	logger *zap.Logger
}

// NewClassifier creates a classifier over the given store and encoder.
func NewClassifier(store *Store, enc encoder.Engine, cfg config.PipelineConfig, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{store: store, enc: enc, cfg: cfg, logger: logger}
}

// Classify embeds the query once and ranks every intent by its best
// prototype match. The returned list is never empty and is sorted by
// similarity descending; near-ties within the configured epsilon are
// resolved by corroborating-prototype count, then by fixed priority.
func (c *Classifier) Classify(ctx context.Context, query string) (*Result, error) {
	queryVec, err := c.enc.Embed(ctx, query)
	if err != nil {
		c.logger.Warn("query embedding failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrClassifierUnavailable, err)
	}

	scores := make([]Score, 0, len(c.store.entries))
	for _, e := range c.store.entries {
		best := 0.0
		corroborating := 0
		for _, p := range e.prototypes {
			sim, err := encoder.Cosine(queryVec, p.Vector)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrClassifierUnavailable, err)
			}
			if sim < 0 {
				sim = 0
			}
			if sim > best {
				best = sim
			}
			if sim >= c.cfg.CorroborationFloor {
				corroborating++
			}
		}
		scores = append(scores, Score{
			Label:         e.label,
			Similarity:    best,
			Corroborating: corroborating,
		})
	}

	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Similarity > scores[j].Similarity
	})
	c.resolveNearTies(scores)

	for i := range scores {
		scores[i].Rank = i + 1
	}

	result := &Result{
		Scores:        scores,
		LowConfidence: scores[0].Similarity < c.cfg.MinConfidence,
	}

	c.logger.Debug("classified query",
		zap.String("intent", result.Top().Label),
		zap.Float64("similarity", result.Top().Similarity),
		zap.Bool("low_confidence", result.LowConfidence),
	)
	return result, nil
}

// resolveNearTies reorders the leading group of scores whose similarity is
// within the tie epsilon of the top: more corroborating prototypes wins,
// then the lower fixed priority.
func (c *Classifier) resolveNearTies(scores []Score) {
	if len(scores) < 2 {
		return
	}
	top := scores[0].Similarity
	group := 1
	for group < len(scores) && top-scores[group].Similarity <= c.cfg.TieEpsilon {
		group++
	}
	if group < 2 {
		return
	}

	leading := scores[:group]
	sort.SliceStable(leading, func(i, j int) bool {
		if leading[i].Corroborating != leading[j].Corroborating {
			return leading[i].Corroborating > leading[j].Corroborating
		}
		return c.store.Priority(leading[i].Label) < c.store.Priority(leading[j].Label)
	})
}
