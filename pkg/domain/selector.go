// Package domain picks a content domain and a keyword set for a query by
// evaluating an ordered rule cascade. The first matching rule wins; there
// is no voting. The keyword set only parameterizes later retrieval calls;
// this package never calls retrieval itself.
package domain

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/parkops/groundsman/pkg/config"
	"github.com/parkops/groundsman/pkg/slots"
)

// Selection is the outcome of the cascade for one query.
type Selection struct {
	// Domain is the detected content domain.
	Domain string `json:"domain"`
	// Rule names the winning rule, or "" for the domain-default fallback.
	Rule string `json:"rule,omitempty"`
	// Template is the tabular template selected by the rule, if any.
	Template string `json:"template,omitempty"`
	// Keywords bias retrieval toward the matching reference material.
	Keywords []string `json:"keywords,omitempty"`
}

type compiledRule struct {
	rule    config.RouteRule
	pattern *regexp.Regexp
}

// Selector evaluates the configured rule cascade. Immutable after
// construction; safe for concurrent use.
type Selector struct {
	rules       []compiledRule
	cues        map[string][]string
	cueOrder    []string
	defaultName string
}

// NewSelector compiles the manifest's rules in their declared order.
func NewSelector(m *config.Manifest) (*Selector, error) {
	s := &Selector{
		cues:        m.Domains.Cues,
		defaultName: m.Domains.Default,
	}

	for name := range m.Domains.Cues {
		s.cueOrder = append(s.cueOrder, name)
	}
	sort.Strings(s.cueOrder)

	for _, rule := range m.Rules {
		cr := compiledRule{rule: rule}
		if rule.Pattern != "" {
			re, err := regexp.Compile(rule.Pattern)
			if err != nil {
				return nil, fmt.Errorf("rule %s: bad pattern: %w", rule.Name, err)
			}
			cr.pattern = re
		}
		s.rules = append(s.rules, cr)
	}

	return s, nil
}

// Select runs the cascade over the normalized query text. Deterministic for
// identical inputs.
func (s *Selector) Select(text string, sl slots.Slots) Selection {
	t := strings.ToLower(text)
	dom := s.detectDomain(t)

	for _, cr := range s.rules {
		if cr.rule.Domain != "" && cr.rule.Domain != dom {
			continue
		}
		if cr.rule.RequiresRange && !sl.HasRange() {
			continue
		}
		if !s.matches(cr, t) {
			continue
		}
		return Selection{
			Domain:   dom,
			Rule:     cr.rule.Name,
			Template: cr.rule.Template,
			Keywords: append([]string(nil), cr.rule.Keywords...),
		}
	}

	return Selection{
		Domain:   dom,
		Keywords: append([]string(nil), s.cues[dom]...),
	}
}

func (s *Selector) matches(cr compiledRule, t string) bool {
	for _, word := range cr.rule.AllOf {
		if !strings.Contains(t, strings.ToLower(word)) {
			return false
		}
	}
	if len(cr.rule.AnyOf) > 0 {
		found := false
		for _, word := range cr.rule.AnyOf {
			if strings.Contains(t, strings.ToLower(word)) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if cr.pattern != nil && !cr.pattern.MatchString(t) {
		return false
	}
	return true
}

func (s *Selector) detectDomain(t string) string {
	for _, name := range s.cueOrder {
		for _, cue := range s.cues[name] {
			if strings.Contains(t, strings.ToLower(cue)) {
				return name
			}
		}
	}
	return s.defaultName
}
