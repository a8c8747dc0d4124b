package slots

import (
	"reflect"
	"testing"
	"time"

	"github.com/parkops/groundsman/pkg/config"
)

func fixedClock() func() time.Time {
	return func() time.Time {
		return time.Date(2026, time.September, 1, 12, 0, 0, 0, time.UTC)
	}
}

func testGazetteer() config.Gazetteer {
	return config.Gazetteer{
		Parks: map[string][]string{
			"Central Park":   {"central"},
			"Riverside Park": {"riverside"},
			"Lakeside Park":  {"lakeside", "lake park"},
		},
	}
}

func newTestExtractor() *Extractor {
	return NewExtractor(testGazetteer()).WithClock(fixedClock())
}

func TestExtractMonthYear(t *testing.T) {
	tests := []struct {
		name         string
		text         string
		month, year  int
		yearInferred bool
	}{
		{"numeric form", "labor costs for 2025-03", 3, 2025, false},
		{"month word with year", "what did we spend in March 2025", 3, 2025, false},
		{"month word alone infers year", "mowing costs in July", 7, 2026, true},
		{"abbreviated month", "spend in apr 2024", 4, 2024, false},
	}

	e := newTestExtractor()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := e.Extract(tc.text)
			if got.Month == nil || *got.Month != tc.month {
				t.Fatalf("Month = %v, want %d", got.Month, tc.month)
			}
			if got.Year == nil || *got.Year != tc.year {
				t.Fatalf("Year = %v, want %d", got.Year, tc.year)
			}
			if got.YearInferred != tc.yearInferred {
				t.Errorf("YearInferred = %v, want %v", got.YearInferred, tc.yearInferred)
			}
		})
	}
}

func TestExtractYearAlone(t *testing.T) {
	got := newTestExtractor().Extract("total maintenance spend for 2024")
	if got.Month != nil {
		t.Errorf("Month = %v, want nil", got.Month)
	}
	if got.Year == nil || *got.Year != 2024 {
		t.Errorf("Year = %v, want 2024", got.Year)
	}
	if got.YearInferred {
		t.Error("YearInferred = true for explicit year")
	}
}

func TestExtractRange(t *testing.T) {
	e := newTestExtractor()

	got := e.Extract("show the cost trend from April to June 2025")
	if !got.HasRange() {
		t.Fatal("expected a range")
	}
	if *got.StartMonth != 4 || *got.EndMonth != 6 {
		t.Errorf("range = %d..%d, want 4..6", *got.StartMonth, *got.EndMonth)
	}
	if got.RangeYear == nil || *got.RangeYear != 2025 || got.RangeYearInferred {
		t.Errorf("RangeYear = %v (inferred %v), want explicit 2025", got.RangeYear, got.RangeYearInferred)
	}
}

func TestExtractRangeSwapsReversedMonths(t *testing.T) {
	got := newTestExtractor().Extract("costs between June and April")
	if !got.HasRange() {
		t.Fatal("expected a range")
	}
	if *got.StartMonth != 4 || *got.EndMonth != 6 {
		t.Errorf("range = %d..%d, want normalized 4..6", *got.StartMonth, *got.EndMonth)
	}
	if got.RangeYear == nil || *got.RangeYear != 2026 || !got.RangeYearInferred {
		t.Errorf("RangeYear = %v (inferred %v), want inferred 2026", got.RangeYear, got.RangeYearInferred)
	}
}

func TestExtractParks(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"canonical name", "mowing at Central Park last week", []string{"Central Park"}},
		{"alias", "spend at riverside in May", []string{"Riverside Park"}},
		{"ambiguous keeps all sorted", "compare lakeside and central", []string{"Central Park", "Lakeside Park"}},
		{"outside gazetteer kept verbatim", "mowing at Elm Grove Park yesterday", []string{"Elm Grove Park"}},
		{"no park", "total labor cost in March", nil},
	}

	e := newTestExtractor()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := e.Extract(tc.text)
			if !reflect.DeepEqual(got.Parks, tc.want) {
				t.Errorf("Parks = %v, want %v", got.Parks, tc.want)
			}
		})
	}
}

func TestParkAccessor(t *testing.T) {
	if got := (Slots{Parks: []string{"Central Park"}}).Park(); got != "Central Park" {
		t.Errorf("Park() = %q, want Central Park", got)
	}
	if got := (Slots{Parks: []string{"A", "B"}}).Park(); got != "" {
		t.Errorf("Park() = %q, want empty for ambiguous match", got)
	}
	if got := (Slots{}).Park(); got != "" {
		t.Errorf("Park() = %q, want empty for no match", got)
	}
}

func TestExtractLastDaysAndLimit(t *testing.T) {
	got := newTestExtractor().Extract("top 3 parks by cost in the last 30 days")
	if got.LastDays == nil || *got.LastDays != 30 {
		t.Errorf("LastDays = %v, want 30", got.LastDays)
	}
	if got.Limit == nil || *got.Limit != 3 {
		t.Errorf("Limit = %v, want 3", got.Limit)
	}
}

func TestExtractEmptyText(t *testing.T) {
	got := newTestExtractor().Extract("   ")
	if got.HasMonth() || got.HasRange() || got.Parks != nil || got.LastDays != nil || got.Limit != nil {
		t.Errorf("expected empty slots, got %+v", got)
	}
}

func TestExtractDeterministic(t *testing.T) {
	e := newTestExtractor()
	text := "compare lakeside and central from feb to may 2025, top 2"
	first := e.Extract(text)
	for i := 0; i < 5; i++ {
		if got := e.Extract(text); !reflect.DeepEqual(got, first) {
			t.Fatalf("extraction not deterministic: %+v vs %+v", got, first)
		}
	}
}
