// Package intent implements few-shot intent classification: a fixed set of
// intents, each anchored by prototype utterances embedded once at startup,
// scored against the query by cosine similarity.
package intent

import (
	"context"
	"fmt"
	"sort"

	"github.com/parkops/groundsman/pkg/config"
	"github.com/parkops/groundsman/pkg/encoder"
)

// Prototype is one example utterance with its precomputed embedding.
type Prototype struct {
	Text   string
	Vector []float32
}

type entry struct {
	label      string
	priority   int
	needsImage bool
	prototypes []Prototype
}

// Store holds the per-intent prototype embeddings. Built once at process
// start and read-only thereafter; concurrent readers need no locking.
type Store struct {
	entries []entry
	byLabel map[string]int
}

// NewStore embeds every prototype of every intent and freezes the result.
// The batch is a single encoder call so startup cost stays bounded.
func NewStore(ctx context.Context, intents map[string]config.IntentDef, enc encoder.Engine) (*Store, error) {
	if len(intents) == 0 {
		return nil, fmt.Errorf("no intents defined")
	}

	labels := make([]string, 0, len(intents))
	for label := range intents {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	var texts []string
	for _, label := range labels {
		def := intents[label]
		if len(def.Prototypes) == 0 {
			return nil, fmt.Errorf("intent %s has no prototypes", label)
		}
		texts = append(texts, def.Prototypes...)
	}

	vecs, err := enc.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed prototypes: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("expected %d prototype embeddings, got %d", len(texts), len(vecs))
	}

	store := &Store{byLabel: make(map[string]int, len(labels))}
	i := 0
	for _, label := range labels {
		def := intents[label]
		prototypes := make([]Prototype, 0, len(def.Prototypes))
		for _, text := range def.Prototypes {
			prototypes = append(prototypes, Prototype{Text: text, Vector: vecs[i]})
			i++
		}
		store.byLabel[label] = len(store.entries)
		store.entries = append(store.entries, entry{
			label:      label,
			priority:   def.Priority,
			needsImage: def.NeedsImage,
			prototypes: prototypes,
		})
	}

	return store, nil
}

// Labels returns the intent labels in deterministic order.
func (s *Store) Labels() []string {
	labels := make([]string, len(s.entries))
	for i, e := range s.entries {
		labels[i] = e.label
	}
	return labels
}

// Prototypes returns the prototypes for a label, or nil if unknown.
func (s *Store) Prototypes(label string) []Prototype {
	idx, ok := s.byLabel[label]
	if !ok {
		return nil
	}
	return s.entries[idx].prototypes
}

// NeedsImage reports whether the intent is vision-bearing.
func (s *Store) NeedsImage(label string) bool {
	idx, ok := s.byLabel[label]
	if !ok {
		return false
	}
	return s.entries[idx].needsImage
}

// Priority returns the fixed tie-break priority for a label; lower wins.
func (s *Store) Priority(label string) int {
	idx, ok := s.byLabel[label]
	if !ok {
		return int(^uint(0) >> 1)
	}
	return s.entries[idx].priority
}

// Has reports whether the label belongs to the closed enumeration.
func (s *Store) Has(label string) bool {
	_, ok := s.byLabel[label]
	return ok
}
