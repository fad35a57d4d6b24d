package calendarquery

import (
	"sort"

	icalutil "github.com/stormdav/davcore/pkg/ical"
)

// BusyInterval is one occupied span contributing to a free-busy report,
// sourced from a calendar's indexed event time ranges within the query's
// time-range filter.
type BusyInterval = icalutil.Interval

// FreeBusyInRange merges overlapping busy intervals and renders a
// VFREEBUSY component covering [start,end], supplementing the query
// engine with the free-busy REPORT spec.md §4.6 calls out alongside
// calendar-query/calendar-multiget (the retrieved original_source's
// calendar/query.rs imports a sibling freebusy_in_range helper from
// calendar/freebusy.rs, not included in the retrieval pack's file list;
// this reconstructs its contract from that call site and the teacher's
// existing pkg/ical.BuildFreeBusyICS renderer).
func FreeBusyInRange(intervals []BusyInterval, prodID string) []byte {
	merged := mergeIntervals(intervals)
	if len(merged) == 0 {
		return nil
	}
	start, end := merged[0].S, merged[0].E
	for _, iv := range merged[1:] {
		if iv.E.After(end) {
			end = iv.E
		}
	}
	return icalutil.BuildFreeBusyICS(start, end, merged, prodID)
}

func mergeIntervals(intervals []BusyInterval) []BusyInterval {
	if len(intervals) == 0 {
		return nil
	}
	sorted := append([]BusyInterval(nil), intervals...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].S.Before(sorted[j].S) })

	merged := []BusyInterval{sorted[0]}
	for _, iv := range sorted[1:] {
		last := &merged[len(merged)-1]
		if iv.S.After(last.E) {
			merged = append(merged, iv)
		} else if iv.E.After(last.E) {
			last.E = iv.E
		}
	}
	return merged
}
