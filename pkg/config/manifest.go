package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Manifest holds the intents manifest: the closed set of intents with their
// prototype utterances, the route rule cascade, the gazetteer of known
// entities, and the pipeline tuning values. Loaded once at startup and
// read-only thereafter.
type Manifest struct {
	Pipeline PipelineConfig       `yaml:"pipeline"`
	Intents  map[string]IntentDef `yaml:"intents"`
	Fallback string               `yaml:"fallback"`
	// ImagePromotions upgrades a text-only intent to its vision-bearing
	// counterpart when the query carries an image.
	ImagePromotions map[string]string `yaml:"image_promotions,omitempty"`
	Gazetteer       Gazetteer         `yaml:"gazetteer"`
	Rules           []RouteRule       `yaml:"rules"`
	Domains         DomainConfig      `yaml:"domains"`
}

// PipelineConfig is the configuration value object passed into the
// classifier and plan builder at construction.
type PipelineConfig struct {
	MinConfidence float64 `yaml:"min_confidence,omitempty"`
	TieEpsilon    float64 `yaml:"tie_epsilon,omitempty"`
	// CorroborationFloor is the secondary threshold a prototype similarity
	// must clear to count as corroborating evidence during tie-breaks.
	CorroborationFloor float64 `yaml:"corroboration_floor,omitempty"`
	PerStepTimeoutMs   int     `yaml:"per_step_timeout_ms,omitempty"`
}

// PerStepTimeout returns the per-step timeout as a duration.
func (p PipelineConfig) PerStepTimeout() time.Duration {
	return time.Duration(p.PerStepTimeoutMs) * time.Millisecond
}

// IntentDef defines one intent of the closed enumeration.
type IntentDef struct {
	Prototypes []string `yaml:"prototypes"`
	// Priority breaks exact ties deterministically; lower wins.
	Priority int `yaml:"priority"`
	// NeedsImage marks vision-bearing intents.
	NeedsImage bool `yaml:"needs_image,omitempty"`
}

// Gazetteer holds the closed lists of known entity names.
type Gazetteer struct {
	// Parks maps a canonical park name to its aliases.
	Parks map[string][]string `yaml:"parks"`
}

// RouteRule is one entry of the ordered route rule cascade. Rules are
// evaluated top to bottom; the first rule whose predicate matches wins.
type RouteRule struct {
	Name   string `yaml:"name"`
	Domain string `yaml:"domain,omitempty"`
	// AllOf must all appear in the normalized query text.
	AllOf []string `yaml:"all_of,omitempty"`
	// AnyOf requires at least one to appear. Empty means no constraint.
	AnyOf []string `yaml:"any_of,omitempty"`
	// Pattern is an optional regular expression matched against the text.
	Pattern string `yaml:"pattern,omitempty"`
	// RequiresRange restricts the rule to queries with an extracted month
	// range.
	RequiresRange bool `yaml:"requires_range,omitempty"`
	// Template names the tabular template this rule selects, if any.
	Template string `yaml:"template,omitempty"`
	// Keywords bias the retrieval backend when this rule wins.
	Keywords []string `yaml:"keywords"`
}

// DomainConfig maps content domains to their cue words.
type DomainConfig struct {
	Default string              `yaml:"default"`
	Cues    map[string][]string `yaml:"cues"`
}

// LoadManifest reads an intents manifest from a YAML file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}

	applyManifestDefaults(&m)
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the manifest invariants.
func (m *Manifest) Validate() error {
	if len(m.Intents) == 0 {
		return fmt.Errorf("manifest must define at least one intent")
	}
	for name, def := range m.Intents {
		if len(def.Prototypes) == 0 {
			return fmt.Errorf("intent %s has no prototypes", name)
		}
	}
	if m.Fallback != "" {
		def, ok := m.Intents[m.Fallback]
		if !ok {
			return fmt.Errorf("fallback intent %s is not defined", m.Fallback)
		}
		if def.NeedsImage {
			return fmt.Errorf("fallback intent %s must not require an image", m.Fallback)
		}
	}
	for from, to := range m.ImagePromotions {
		if _, ok := m.Intents[from]; !ok {
			return fmt.Errorf("image promotion source %s is not defined", from)
		}
		def, ok := m.Intents[to]
		if !ok {
			return fmt.Errorf("image promotion target %s is not defined", to)
		}
		if !def.NeedsImage {
			return fmt.Errorf("image promotion target %s is not vision-bearing", to)
		}
	}
	for _, rule := range m.Rules {
		if rule.Name == "" {
			return fmt.Errorf("route rule without a name")
		}
		if len(rule.Keywords) == 0 {
			return fmt.Errorf("route rule %s has no keywords", rule.Name)
		}
	}
	return nil
}

// DefaultManifest returns the built-in intents manifest for grounds
// maintenance queries.
func DefaultManifest() *Manifest {
	m := &Manifest{
		Intents: map[string]IntentDef{
			"cost_superlative": {
				Priority: 1,
				Prototypes: []string{
					"Which park had the highest total mowing labor cost in March 2025?",
					"Show me the most expensive park for mowing in April",
					"What was the top mowing cost by location last month?",
				},
			},
			"data_query": {
				Priority: 2,
				Prototypes: []string{
					"How did total mowing costs trend from April to June 2025?",
					"Show mowing cost trend from January to March",
					"What's the cost trend for Cambridge Park over time?",
					"Compare mowing costs across all parks in March 2025",
					"Show me all parks ranked by mowing cost",
					"What's the cost breakdown by park?",
					"When was the last mowing at Cambridge Park?",
					"Show me the most recent mowing date for each park",
					"Which parks haven't been mowed recently?",
					"Show total mowing costs breakdown by park in March 2025",
					"What's the cost breakdown for Garden Park?",
				},
			},
			"procedure": {
				Priority: 3,
				Prototypes: []string{
					"What are the mowing steps and safety requirements?",
					"How do I maintain the turf properly?",
					"What equipment do I need for mowing?",
					"Tell me the standard operating procedures for mowing",
				},
			},
			"visual_context": {
				Priority:   4,
				NeedsImage: true,
				Prototypes: []string{
					"Here is a picture. What's the estimated labour cost to repair the turf?",
					"Here is a picture. Help me plan the layout of this sports field effectively.",
					"Check this image and tell me if the grass needs mowing",
				},
			},
			"visual_check": {
				Priority:   5,
				NeedsImage: true,
				Prototypes: []string{
					"Check this image and assess turf condition.",
					"Analyze this photo of the field",
				},
			},
		},
		Fallback: "procedure",
		ImagePromotions: map[string]string{
			"procedure":        "visual_context",
			"cost_superlative": "visual_context",
			"data_query":       "visual_check",
		},
		Gazetteer: Gazetteer{
			Parks: map[string][]string{
				"Alice Town Park":   {"alice town"},
				"Cambridge Park":    {"cambridge"},
				"Garden Park":       {"garden"},
				"Grandview Park":    {"grandview"},
				"McGill Park":       {"mcgill"},
				"McSpadden Park":    {"mcspadden"},
				"Mosaic Creek Park": {"mosaic creek", "mosaic"},
			},
		},
		Rules: []RouteRule{
			{
				Name:     "cost_superlative",
				Domain:   "mowing",
				AllOf:    []string{"cost"},
				AnyOf:    []string{"highest", "top", "max", "most expensive"},
				Template: "labor_cost_month_top1",
				Keywords: []string{"mowing", "labor", "cost", "standard", "pricing", "rate"},
			},
			{
				Name:     "last_activity",
				Domain:   "mowing",
				AnyOf:    []string{"last", "recent", "latest", "when was"},
				Template: "last_mowing_date",
				Keywords: []string{"mowing", "schedule", "frequency", "standard"},
			},
			{
				Name:     "cost_trend",
				Domain:   "mowing",
				AllOf:    []string{"cost"},
				AnyOf:    []string{"trend"},
				Template: "cost_trend",
				Keywords: []string{"mowing", "cost", "seasonal", "standard"},
			},
			{
				Name:          "cost_trend_range",
				Domain:        "mowing",
				AllOf:         []string{"cost"},
				Pattern:       `\bfrom\s+\w+\s+to\s+\w+`,
				RequiresRange: true,
				Template:      "cost_trend",
				Keywords:      []string{"mowing", "cost", "seasonal", "standard"},
			},
			{
				Name:     "park_comparison",
				Domain:   "mowing",
				AllOf:    []string{"cost"},
				AnyOf:    []string{"compare", "across", "all parks"},
				Template: "cost_by_park_month",
				Keywords: []string{"mowing", "cost", "benchmark", "standard"},
			},
			{
				Name:     "cost_breakdown",
				Domain:   "mowing",
				AnyOf:    []string{"breakdown", "break down", "detail"},
				Template: "cost_breakdown",
				Keywords: []string{"mowing", "cost", "activity", "standard"},
			},
			{
				Name:     "by_park_fallback",
				Domain:   "mowing",
				AnyOf:    []string{"by park", "each park"},
				Template: "cost_by_park_month",
				Keywords: []string{"mowing", "cost", "standard"},
			},
			{
				Name:     "procedure",
				AnyOf:    []string{"steps", "procedure", "safety", "manual", "how to", "sop"},
				Keywords: []string{"mowing", "standard", "safety", "equipment", "frequency", "procedure"},
			},
		},
		Domains: DomainConfig{
			Default: "generic",
			Cues: map[string][]string{
				"mowing": {"mow", "mowing", "turf", "grass", "lawn"},
			},
		},
	}

	applyManifestDefaults(m)
	return m
}

func applyManifestDefaults(m *Manifest) {
	if m == nil {
		return
	}
	if m.Pipeline.MinConfidence == 0 {
		m.Pipeline.MinConfidence = 0.45
	}
	if m.Pipeline.TieEpsilon == 0 {
		m.Pipeline.TieEpsilon = 0.02
	}
	if m.Pipeline.CorroborationFloor == 0 {
		m.Pipeline.CorroborationFloor = 0.35
	}
	if m.Pipeline.PerStepTimeoutMs == 0 {
		m.Pipeline.PerStepTimeoutMs = 15000
	}
	if m.Domains.Default == "" {
		m.Domains.Default = "generic"
	}
}
