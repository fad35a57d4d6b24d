// Package calendarquery implements the REPORT calendar-query filter engine:
// pre-filtering candidate events by an indexed time range, evaluating
// structured component/property/parameter predicates against a parsed
// iCalendar object, and re-serializing only the matched/expanded portions,
// mirroring calendar/query.rs generalized from calcard's rkyv tree onto
// github.com/emersion/go-ical's Component tree.
package calendarquery

import (
	"strings"
	"time"

	ical "github.com/emersion/go-ical"

	"github.com/stormdav/davcore/internal/model"
	icalutil "github.com/stormdav/davcore/pkg/ical"
)

// Op is the comparison a filter predicate applies once it has located its
// target component/property/parameter.
type Op uint8

const (
	OpExists Op = iota
	OpUndefined
	OpTextMatch
	OpTimeRange
)

// Filter is one member of a calendar-query <filter> tree: either a
// logical AnyOf/AllOf marker changing how later siblings combine, or a
// concrete Component/Property/Parameter predicate.
type Filter struct {
	Kind      FilterKind
	Component []string // path segments, e.g. ["VCALENDAR","VEVENT"]
	Property  string
	Parameter string
	Op        Op
	TextMatch string
	Negate    bool
	Collation string
	TimeRange model.TimeRange
}

// FilterKind distinguishes the filter tree node types.
type FilterKind uint8

const (
	FilterAnyOf FilterKind = iota
	FilterAllOf
	FilterComponent
	FilterProperty
	FilterParameter
)

// ExtractFilterRange scans filters for any TimeRange predicate and returns
// the union of all such ranges, or ok=false if none were present — used to
// pre-filter candidate events by their indexed event_time_range before
// fetching and parsing each one's full iCalendar payload.
func ExtractFilterRange(filters []Filter) (model.TimeRange, bool) {
	r := model.TimeRange{Start: int64(^uint64(0) >> 1), End: -int64(^uint64(0)>>1) - 1}
	found := false
	for _, f := range filters {
		if f.Kind != FilterComponent && f.Kind != FilterProperty && f.Kind != FilterParameter {
			continue
		}
		if f.Op != OpTimeRange {
			continue
		}
		if f.TimeRange.Start < r.Start {
			r.Start = f.TimeRange.Start
		}
		if f.TimeRange.End > r.End {
			r.End = f.TimeRange.End
		}
		found = true
	}
	if !found {
		return model.TimeRange{}, false
	}
	return r, true
}

// ExtractDataRange widens filterRange (if any) to also cover a requested
// calendar-data expand/limit-recurrence-set/limit-freebusy-set range, the
// range recurrence expansion is computed over.
func ExtractDataRange(filterRange model.TimeRange, filterRangeOK bool, expand, limitRecurrence, limitFreebusy *model.TimeRange) (model.TimeRange, bool) {
	r := filterRange
	found := filterRangeOK
	if !found {
		r = model.TimeRange{Start: int64(^uint64(0) >> 1), End: -int64(^uint64(0)>>1) - 1}
	}
	for _, dr := range []*model.TimeRange{expand, limitRecurrence, limitFreebusy} {
		if dr == nil {
			continue
		}
		if dr.Start < r.Start {
			r.Start = dr.Start
		}
		if dr.End > r.End {
			r.End = dr.End
		}
		found = true
	}
	if !found {
		return model.TimeRange{}, false
	}
	return r, true
}

// IsResourceInTimeRange reports whether a resource's indexed event time
// range overlaps rng, used as the cheap pre-filter before touching storage
// for the event's full payload.
func IsResourceInTimeRange(resource *model.DavResource, rng model.TimeRange) bool {
	if resource.EventTimeRange == nil {
		return false
	}
	return rng.Start <= resource.EventTimeRange.Start && resource.EventTimeRange.Start <= rng.End ||
		rng.Start <= resource.EventTimeRange.End && resource.EventTimeRange.End <= rng.End
}

// Handler evaluates a calendar-query filter tree against one parsed
// iCalendar object, with recurrence already expanded into its default time
// zone for TimeRange component predicates.
type Handler struct {
	defaultTZ      *time.Location
	expandedEvents []expandedOccurrence
}

type expandedOccurrence struct {
	componentIndex int
	start, end     time.Time
}

// NewHandler builds a Handler over cal, expanding recurring components
// against maxRange in defaultTZ when maxRange is present. A nil maxRange
// skips expansion entirely (the request has no TimeRange component
// filter and no expand/limit-recurrence-set was requested).
func NewHandler(cal *ical.Calendar, maxRange *model.TimeRange, defaultTZ *time.Location) *Handler {
	h := &Handler{defaultTZ: defaultTZ}
	if maxRange == nil {
		return h
	}
	for i, comp := range cal.Children {
		if comp.Name != ical.CompEvent && comp.Name != ical.CompToDo {
			continue
		}
		occurrences := expandComponent(comp, *maxRange, defaultTZ)
		for _, occ := range occurrences {
			h.expandedEvents = append(h.expandedEvents, expandedOccurrence{componentIndex: i, start: occ.Start, end: occ.End})
		}
	}
	return h
}

// Filter evaluates the filter tree against cal's top-level VEVENT/VTODO
// components, applying AnyOf/AllOf grouping exactly as later filters in
// the slice switch the combination mode for the filters that follow them.
func (h *Handler) Filter(cal *ical.Calendar, filters []Filter) bool {
	isAll := true
	matchesOne := false

	for _, f := range filters {
		switch f.Kind {
		case FilterAnyOf:
			isAll = false
			continue
		case FilterAllOf:
			isAll = true
			continue
		}

		result := h.evalPredicate(cal, f)
		if result || f.Op == OpUndefined {
			matchesOne = true
		} else if isAll {
			return false
		}
	}

	return isAll || matchesOne
}

func (h *Handler) evalPredicate(cal *ical.Calendar, f Filter) bool {
	switch f.Kind {
	case FilterComponent:
		return h.evalComponentFilter(cal, f)
	case FilterProperty:
		return h.evalPropertyFilter(cal, f)
	case FilterParameter:
		return h.evalParameterFilter(cal, f)
	default:
		return false
	}
}

func (h *Handler) evalComponentFilter(cal *ical.Calendar, f Filter) bool {
	matches := findComponents(cal, f.Component)
	switch f.Op {
	case OpExists:
		return len(matches) > 0
	case OpUndefined:
		return len(matches) == 0
	case OpTimeRange:
		for _, occ := range h.expandedEvents {
			if rangeOverlaps(f.TimeRange, occ.start, occ.end) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func rangeOverlaps(r model.TimeRange, start, end time.Time) bool {
	startTS, endTS := start.Unix(), end.Unix()
	return r.Start <= startTS && r.End > startTS || (startTS <= r.Start && endTS > r.Start)
}

func (h *Handler) evalPropertyFilter(cal *ical.Calendar, f Filter) bool {
	for _, comp := range findComponents(cal, f.Component) {
		prop := comp.Props.Get(f.Property)
		if prop == nil {
			continue
		}
		switch f.Op {
		case OpExists:
			return true
		case OpUndefined:
			return false
		case OpTextMatch:
			if textMatches(prop.Value, f.TextMatch, f.Negate) {
				return true
			}
		case OpTimeRange:
			t, _, err := icalutil.ParseDateTime(prop.Value)
			if err == nil {
				ts := t.In(h.defaultTZ).Unix()
				if f.TimeRange.Start <= ts && ts < f.TimeRange.End {
					return true
				}
			}
		}
	}
	return false
}

func (h *Handler) evalParameterFilter(cal *ical.Calendar, f Filter) bool {
	for _, comp := range findComponents(cal, f.Component) {
		prop := comp.Props.Get(f.Property)
		if prop == nil {
			continue
		}
		val := prop.Params.Get(f.Parameter)
		if val == "" {
			continue
		}
		switch f.Op {
		case OpExists:
			return true
		case OpUndefined:
			return false
		case OpTextMatch:
			if textMatches(val, f.TextMatch, f.Negate) {
				return true
			}
		}
	}
	return false
}

func textMatches(value, needle string, negate bool) bool {
	matched := strings.Contains(strings.ToLower(value), strings.ToLower(needle))
	if negate {
		return !matched
	}
	return matched
}

// findComponents locates components matching path's last segment, mirroring
// the original's comp.last()-only matching — a path that names an ancestor
// chain is matched only on its final element, a carried-over simplification
// from the original Rust source rather than a full ancestor-chain match.
func findComponents(cal *ical.Calendar, path []string) []*ical.Component {
	if len(path) == 0 {
		return nil
	}
	target := path[len(path)-1]
	var out []*ical.Component
	var walk func(c *ical.Component)
	walk = func(c *ical.Component) {
		if c.Name == target {
			out = append(out, c)
		}
		for _, child := range c.Children {
			walk(child)
		}
	}
	for _, child := range cal.Children {
		walk(child)
	}
	if target == ical.CompCalendar {
		out = append(out, cal.Component)
	}
	return out
}
