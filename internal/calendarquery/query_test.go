package calendarquery

import (
	"bytes"
	"strings"
	"testing"
	"time"

	ical "github.com/emersion/go-ical"

	"github.com/stormdav/davcore/internal/model"
)

func mustDecode(t *testing.T, raw string) *ical.Calendar {
	t.Helper()
	cal, err := ical.NewDecoder(strings.NewReader(raw)).Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return cal
}

const singleEventICS = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VEVENT
UID:single-1
SUMMARY:Standup
DTSTART:20260801T090000Z
DTEND:20260801T093000Z
END:VEVENT
END:VCALENDAR
`

const recurringEventICS = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VEVENT
UID:recurring-1
SUMMARY:Daily sync
DTSTART:20260801T100000Z
DTEND:20260801T103000Z
RRULE:FREQ=DAILY;COUNT=5
END:VEVENT
END:VCALENDAR
`

func TestExtractFilterRangeUnionsTimeRanges(t *testing.T) {
	filters := []Filter{
		{Kind: FilterComponent, Op: OpTimeRange, TimeRange: model.TimeRange{Start: 100, End: 200}},
		{Kind: FilterComponent, Op: OpTimeRange, TimeRange: model.TimeRange{Start: 50, End: 150}},
		{Kind: FilterComponent, Op: OpExists},
	}
	r, ok := ExtractFilterRange(filters)
	if !ok {
		t.Fatal("expected a time range to be found")
	}
	if r.Start != 50 || r.End != 200 {
		t.Fatalf("range = %+v, want {50 200}", r)
	}
}

func TestExtractFilterRangeNotFound(t *testing.T) {
	if _, ok := ExtractFilterRange([]Filter{{Kind: FilterComponent, Op: OpExists}}); ok {
		t.Fatal("expected no time range to be found")
	}
}

func TestExtractDataRangeWidensFilterRange(t *testing.T) {
	filterRange := model.TimeRange{Start: 100, End: 200}
	expand := &model.TimeRange{Start: 50, End: 250}
	r, ok := ExtractDataRange(filterRange, true, expand, nil, nil)
	if !ok {
		t.Fatal("expected a range")
	}
	if r.Start != 50 || r.End != 250 {
		t.Fatalf("range = %+v, want {50 250}", r)
	}
}

func TestExtractDataRangeWithoutFilterRangeUsesDataRanges(t *testing.T) {
	limitRecurrence := &model.TimeRange{Start: 10, End: 20}
	r, ok := ExtractDataRange(model.TimeRange{}, false, nil, limitRecurrence, nil)
	if !ok {
		t.Fatal("expected a range derived from limitRecurrence alone")
	}
	if r.Start != 10 || r.End != 20 {
		t.Fatalf("range = %+v, want {10 20}", r)
	}
}

func TestExtractDataRangeNoneFound(t *testing.T) {
	if _, ok := ExtractDataRange(model.TimeRange{}, false, nil, nil, nil); ok {
		t.Fatal("expected no range")
	}
}

func TestIsResourceInTimeRange(t *testing.T) {
	resource := &model.DavResource{EventTimeRange: &model.TimeRange{Start: 100, End: 200}}
	if !IsResourceInTimeRange(resource, model.TimeRange{Start: 150, End: 300}) {
		t.Fatal("expected an overlapping range to match")
	}
	if IsResourceInTimeRange(resource, model.TimeRange{Start: 300, End: 400}) {
		t.Fatal("expected a disjoint range to not match")
	}
}

func TestIsResourceInTimeRangeNoIndex(t *testing.T) {
	if IsResourceInTimeRange(&model.DavResource{}, model.TimeRange{Start: 0, End: 100}) {
		t.Fatal("expected a resource without an indexed time range to never match")
	}
}

func TestHandlerFilterComponentExists(t *testing.T) {
	cal := mustDecode(t, singleEventICS)
	h := NewHandler(cal, nil, time.UTC)
	filters := []Filter{{Kind: FilterComponent, Component: []string{"VEVENT"}, Op: OpExists}}
	if !h.Filter(cal, filters) {
		t.Fatal("expected the VEVENT component filter to match")
	}
}

func TestHandlerFilterComponentUndefined(t *testing.T) {
	cal := mustDecode(t, singleEventICS)
	h := NewHandler(cal, nil, time.UTC)
	filters := []Filter{{Kind: FilterComponent, Component: []string{"VTODO"}, Op: OpUndefined}}
	if !h.Filter(cal, filters) {
		t.Fatal("expected the VTODO undefined filter to match a calendar with no VTODO")
	}
}

func TestHandlerFilterPropertyTextMatch(t *testing.T) {
	cal := mustDecode(t, singleEventICS)
	h := NewHandler(cal, nil, time.UTC)
	filters := []Filter{{
		Kind: FilterProperty, Component: []string{"VEVENT"}, Property: "SUMMARY",
		Op: OpTextMatch, TextMatch: "stand",
	}}
	if !h.Filter(cal, filters) {
		t.Fatal("expected a case-insensitive substring match on SUMMARY")
	}
}

func TestHandlerFilterPropertyTextMatchNegated(t *testing.T) {
	cal := mustDecode(t, singleEventICS)
	h := NewHandler(cal, nil, time.UTC)
	filters := []Filter{{
		Kind: FilterProperty, Component: []string{"VEVENT"}, Property: "SUMMARY",
		Op: OpTextMatch, TextMatch: "retro", Negate: true,
	}}
	if !h.Filter(cal, filters) {
		t.Fatal("expected the negated text match to succeed since SUMMARY does not contain 'retro'")
	}
}

func TestHandlerFilterTimeRangeMatchesExpandedOccurrence(t *testing.T) {
	cal := mustDecode(t, recurringEventICS)
	maxRange := model.TimeRange{
		Start: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC).Unix(),
		End:   time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC).Unix(),
	}
	h := NewHandler(cal, &maxRange, time.UTC)
	if len(h.expandedEvents) != 5 {
		t.Fatalf("len(expandedEvents) = %d, want 5 (COUNT=5)", len(h.expandedEvents))
	}

	filters := []Filter{{
		Kind: FilterComponent, Component: []string{"VEVENT"}, Op: OpTimeRange,
		TimeRange: model.TimeRange{
			Start: time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC).Unix(),
			End:   time.Date(2026, 8, 4, 0, 0, 0, 0, time.UTC).Unix(),
		},
	}}
	if !h.Filter(cal, filters) {
		t.Fatal("expected an occurrence on 2026-08-03 to fall inside the filter's time range")
	}
}

func TestHandlerFilterTimeRangeOutsideOccurrences(t *testing.T) {
	cal := mustDecode(t, recurringEventICS)
	maxRange := model.TimeRange{
		Start: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC).Unix(),
		End:   time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC).Unix(),
	}
	h := NewHandler(cal, &maxRange, time.UTC)

	filters := []Filter{{
		Kind: FilterComponent, Component: []string{"VEVENT"}, Op: OpTimeRange,
		TimeRange: model.TimeRange{
			Start: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC).Unix(),
			End:   time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC).Unix(),
		},
	}}
	if h.Filter(cal, filters) {
		t.Fatal("expected no occurrence in September to match")
	}
}

func TestIsoToGoDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"PT1H30M": time.Hour + 30*time.Minute,
		"P2D":     48 * time.Hour,
		"P1DT1H":  25 * time.Hour,
	}
	for in, want := range cases {
		got, err := time.ParseDuration(isoToGoDuration(in))
		if err != nil {
			t.Fatalf("isoToGoDuration(%q): ParseDuration: %v", in, err)
		}
		if got != want {
			t.Fatalf("isoToGoDuration(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSerializeICalFiltersProperties(t *testing.T) {
	cal := mustDecode(t, singleEventICS)
	h := NewHandler(cal, nil, time.UTC)
	req := DataRequest{Properties: map[string][]string{"VEVENT": {"UID", "DTSTART", "DTEND"}}}

	out, err := h.SerializeICal(cal, req)
	if err != nil {
		t.Fatalf("SerializeICal: %v", err)
	}
	if strings.Contains(out, "SUMMARY") {
		t.Fatalf("expected SUMMARY to be filtered out, got:\n%s", out)
	}
	if !strings.Contains(out, "UID:single-1") {
		t.Fatalf("expected UID to be kept, got:\n%s", out)
	}
}

func TestSerializeICalExpandsOccurrences(t *testing.T) {
	cal := mustDecode(t, recurringEventICS)
	maxRange := model.TimeRange{
		Start: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC).Unix(),
		End:   time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC).Unix(),
	}
	h := NewHandler(cal, &maxRange, time.UTC)
	req := DataRequest{Expand: &maxRange}

	out, err := h.SerializeICal(cal, req)
	if err != nil {
		t.Fatalf("SerializeICal: %v", err)
	}
	if strings.Count(out, "BEGIN:VEVENT") != 5 {
		t.Fatalf("expected 5 expanded VEVENT blocks, got:\n%s", out)
	}
	if strings.Contains(out, "RRULE") {
		t.Fatalf("expected RRULE to be dropped from expanded occurrences, got:\n%s", out)
	}
}

func TestFreeBusyInRangeMergesOverlappingIntervals(t *testing.T) {
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	intervals := []BusyInterval{
		{S: base, E: base.Add(time.Hour)},
		{S: base.Add(30 * time.Minute), E: base.Add(90 * time.Minute)},
		{S: base.Add(3 * time.Hour), E: base.Add(4 * time.Hour)},
	}
	out := FreeBusyInRange(intervals, "-//test//EN")
	if out == nil {
		t.Fatal("expected a non-nil VFREEBUSY payload")
	}
	if !bytes.Contains(out, []byte("VFREEBUSY")) {
		t.Fatalf("expected a VFREEBUSY component, got:\n%s", out)
	}
}

func TestFreeBusyInRangeEmpty(t *testing.T) {
	if out := FreeBusyInRange(nil, "-//test//EN"); out != nil {
		t.Fatalf("expected nil for no intervals, got:\n%s", out)
	}
}

func TestMergeIntervals(t *testing.T) {
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	merged := mergeIntervals([]BusyInterval{
		{S: base, E: base.Add(time.Hour)},
		{S: base.Add(30 * time.Minute), E: base.Add(90 * time.Minute)},
		{S: base.Add(3 * time.Hour), E: base.Add(4 * time.Hour)},
	})
	if len(merged) != 2 {
		t.Fatalf("len(merged) = %d, want 2", len(merged))
	}
	if !merged[0].E.Equal(base.Add(90 * time.Minute)) {
		t.Fatalf("merged[0].E = %v, want %v", merged[0].E, base.Add(90*time.Minute))
	}
}
