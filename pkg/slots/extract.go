package slots

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/parkops/groundsman/pkg/config"
)

var monthIndex = map[string]int{
	"january": 1, "february": 2, "march": 3, "april": 4,
	"may": 5, "june": 6, "july": 7, "august": 8,
	"september": 9, "october": 10, "november": 11, "december": 12,
}

var (
	yearMonthRe = regexp.MustCompile(`\b(20\d{2})-(\d{1,2})\b`)
	yearRe      = regexp.MustCompile(`\b(20\d{2})\b`)
	rangeRe     = regexp.MustCompile(`(?:from|between)\s+([a-zA-Z]+)\s+(?:to|and)\s+([a-zA-Z]+)\s*(20\d{2})?`)
	lastDaysRe  = regexp.MustCompile(`\blast\s+(\d{1,3})\s+days?\b`)
	limitRe     = regexp.MustCompile(`\btop\s+(\d{1,3})\b`)
	parkRe      = regexp.MustCompile(`(?:in|at|for)\s+([a-z][a-z\s\-&]+?\s+park)\b`)
)

// Extractor pulls slots from query text using pattern matching and the
// configured gazetteer. Safe for concurrent use.
type Extractor struct {
	gazetteer config.Gazetteer
	now       func() time.Time
}

// NewExtractor creates an extractor over the given gazetteer.
func NewExtractor(gaz config.Gazetteer) *Extractor {
	return &Extractor{gazetteer: gaz, now: time.Now}
}

// WithClock overrides the processing-time source. Inferred years come from
// this clock, which keeps tests deterministic.
func (e *Extractor) WithClock(now func() time.Time) *Extractor {
	e.now = now
	return e
}

// Extract parses the query text into slots. A pure function of the text and
// the processing time; it never consults the classifier.
func (e *Extractor) Extract(text string) Slots {
	t := strings.ToLower(strings.TrimSpace(text))
	t = strings.ReplaceAll(t, ",", " ")

	var out Slots
	e.extractRange(t, &out)
	e.extractMonthYear(t, &out)
	e.extractParks(t, &out)

	if m := lastDaysRe.FindStringSubmatch(t); m != nil {
		if days, err := strconv.Atoi(m[1]); err == nil && days > 0 {
			out.LastDays = intPtr(days)
		}
	}
	if m := limitRe.FindStringSubmatch(t); m != nil {
		if limit, err := strconv.Atoi(m[1]); err == nil && limit > 0 {
			out.Limit = intPtr(limit)
		}
	}

	return out
}

// extractRange handles "from April to June 2025" and similar phrasing. A
// reversed range is swapped rather than kept invalid.
func (e *Extractor) extractRange(t string, out *Slots) {
	m := rangeRe.FindStringSubmatch(t)
	if m == nil {
		return
	}

	start, okStart := toMonth(m[1])
	end, okEnd := toMonth(m[2])
	if !okStart || !okEnd {
		return
	}
	if start > end {
		start, end = end, start
	}
	out.StartMonth = intPtr(start)
	out.EndMonth = intPtr(end)

	if m[3] != "" {
		year, _ := strconv.Atoi(m[3])
		out.RangeYear = intPtr(year)
	} else {
		out.RangeYear = intPtr(e.now().UTC().Year())
		out.RangeYearInferred = true
	}
}

// extractMonthYear handles single-month references: "2025-03", "March
// 2025", "in Apr". An omitted year defaults to the processing year and is
// tagged as inferred.
func (e *Extractor) extractMonthYear(t string, out *Slots) {
	if m := yearMonthRe.FindStringSubmatch(t); m != nil {
		month, _ := strconv.Atoi(m[2])
		if month >= 1 && month <= 12 {
			year, _ := strconv.Atoi(m[1])
			out.Month = intPtr(month)
			out.Year = intPtr(year)
			return
		}
	}

	month, found := findMonthWord(t)
	if found {
		out.Month = intPtr(month)
		if m := yearRe.FindStringSubmatch(t); m != nil {
			year, _ := strconv.Atoi(m[1])
			out.Year = intPtr(year)
		} else {
			out.Year = intPtr(e.now().UTC().Year())
			out.YearInferred = true
		}
		return
	}

	// Year alone still narrows tabular queries.
	if m := yearRe.FindStringSubmatch(t); m != nil {
		year, _ := strconv.Atoi(m[1])
		out.Year = intPtr(year)
	}
}

// extractParks matches the gazetteer case-insensitively and substring-
// tolerantly. When a name is ambiguous every candidate is kept; the plan
// builder or the tool decides.
func (e *Extractor) extractParks(t string, out *Slots) {
	matched := make(map[string]struct{})

	for canonical, aliases := range e.gazetteer.Parks {
		candidates := append([]string{canonical}, aliases...)
		for _, cand := range candidates {
			if cand != "" && strings.Contains(t, strings.ToLower(cand)) {
				matched[canonical] = struct{}{}
				break
			}
		}
	}

	// "in Riverside Park" style references outside the gazetteer are kept
	// verbatim so the tool can run a wider match.
	if len(matched) == 0 {
		if m := parkRe.FindStringSubmatch(t); m != nil {
			matched[titleCase(strings.TrimSpace(m[1]))] = struct{}{}
		}
	}

	if len(matched) == 0 {
		return
	}
	for name := range matched {
		out.Parks = append(out.Parks, name)
	}
	sort.Strings(out.Parks)
}

func toMonth(word string) (int, bool) {
	word = strings.ToLower(word)
	if idx, ok := monthIndex[word]; ok {
		return idx, true
	}
	if len(word) >= 3 {
		for name, idx := range monthIndex {
			if name[:3] == word[:3] && len(word) <= len(name) {
				return idx, true
			}
		}
	}
	return 0, false
}

func findMonthWord(t string) (int, bool) {
	for _, field := range strings.Fields(t) {
		field = strings.Trim(field, ".?!")
		if idx, ok := monthIndex[field]; ok {
			return idx, true
		}
		if len(field) == 3 {
			for name, idx := range monthIndex {
				if name[:3] == field {
					return idx, true
				}
			}
		}
	}
	return 0, false
}

func titleCase(s string) string {
	fields := strings.Fields(s)
	for i, f := range fields {
		if f == "" {
			continue
		}
		fields[i] = strings.ToUpper(f[:1]) + f[1:]
	}
	return strings.Join(fields, " ")
}
