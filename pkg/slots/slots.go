// Package slots extracts structured parameters from free-form query text.
// Extraction is independent of intent classification so the two stay
// separately testable.
package slots

// Slots holds the structured fields pulled out of a query. A nil pointer
// means "not extracted"; there are no sentinel values inside the value
// space. Inferred values are tagged so downstream consumers can tell them
// apart from directly extracted ones.
type Slots struct {
	// Month and Year cover single-month references ("in March 2025").
	Month *int `json:"month,omitempty"`
	Year  *int `json:"year,omitempty"`
	// YearInferred marks Year as defaulted to the processing year rather
	// than read from the text.
	YearInferred bool `json:"year_inferred"`

	// StartMonth/EndMonth/RangeYear cover ranges ("from April to June").
	// StartMonth <= EndMonth always holds; reversed phrasing is swapped.
	StartMonth        *int `json:"start_month,omitempty"`
	EndMonth          *int `json:"end_month,omitempty"`
	RangeYear         *int `json:"range_year,omitempty"`
	RangeYearInferred bool `json:"range_year_inferred"`

	// LastDays covers relative periods ("last 30 days").
	LastDays *int `json:"last_days,omitempty"`

	// Parks holds gazetteer matches. Ambiguous names keep every candidate
	// rather than picking one arbitrarily.
	Parks []string `json:"parks,omitempty"`

	// Limit covers "top N" phrasing.
	Limit *int `json:"limit,omitempty"`
}

// Park returns the single matched park, or "" when none or ambiguous.
func (s Slots) Park() string {
	if len(s.Parks) == 1 {
		return s.Parks[0]
	}
	return ""
}

// HasMonth reports whether a single-month reference was found.
func (s Slots) HasMonth() bool { return s.Month != nil }

// HasRange reports whether a month range was found.
func (s Slots) HasRange() bool { return s.StartMonth != nil && s.EndMonth != nil }

func intPtr(v int) *int { return &v }
