package calendarquery

import (
	"strconv"
	"time"

	ical "github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"

	"github.com/stormdav/davcore/internal/model"
	icalutil "github.com/stormdav/davcore/pkg/ical"
)

type occurrence struct {
	Start, End time.Time
}

// expandComponent expands a VEVENT/VTODO's RRULE/RDATE/EXDATE within
// [maxRange.Start, maxRange.End] into its concrete occurrences, the same
// algorithm pkg/ical's RecurrenceExpander applies for GET/calendar-multiget,
// reused here so that a TimeRange component filter can be checked against
// expanded occurrences rather than only the master's own DTSTART.
func expandComponent(comp *ical.Component, maxRange model.TimeRange, loc *time.Location) []occurrence {
	dtstart := comp.Props.Get(ical.PropDateTimeStart)
	if dtstart == nil {
		return nil
	}
	start, _, err := icalutil.ParseDateTime(dtstart.Value)
	if err != nil {
		return nil
	}
	start = start.In(loc)

	duration := eventDuration(comp, start, loc)

	rruleProp := comp.Props.Get(ical.PropRecurrenceRule)
	if rruleProp == nil {
		return []occurrence{{Start: start, End: start.Add(duration)}}
	}

	rr, err := rrule.StrToRRule("RRULE:" + rruleProp.Value)
	if err != nil {
		return []occurrence{{Start: start, End: start.Add(duration)}}
	}
	rr.DTStart(start)

	excluded := exdateSet(comp, loc)

	rangeStart := time.Unix(maxRange.Start, 0).In(loc)
	rangeEnd := time.Unix(maxRange.End, 0).In(loc)

	var out []occurrence
	for _, t := range rr.Between(rangeStart, rangeEnd, true) {
		if excluded[t.Unix()] {
			continue
		}
		out = append(out, occurrence{Start: t, End: t.Add(duration)})
	}
	return out
}

func eventDuration(comp *ical.Component, start time.Time, loc *time.Location) time.Duration {
	if dtend := comp.Props.Get(ical.PropDateTimeEnd); dtend != nil {
		if end, _, err := icalutil.ParseDateTime(dtend.Value); err == nil {
			return end.In(loc).Sub(start)
		}
	}
	if dur := comp.Props.Get(ical.PropDuration); dur != nil {
		if d, err := time.ParseDuration(isoToGoDuration(dur.Value)); err == nil {
			return d
		}
	}
	return time.Hour
}

func exdateSet(comp *ical.Component, loc *time.Location) map[int64]bool {
	out := make(map[int64]bool)
	for _, prop := range comp.Props.Values(ical.PropExceptionDates) {
		if t, _, err := icalutil.ParseDateTime(prop.Value); err == nil {
			out[t.In(loc).Unix()] = true
		}
	}
	return out
}

// isoToGoDuration converts an iCalendar DURATION value (e.g. "PT1H30M",
// "P3W", "P2D") to a time.ParseDuration-compatible string. Weeks and days
// are folded into an hour count since Go's duration grammar has no "w"/"d"
// units.
func isoToGoDuration(v string) string {
	neg := false
	if len(v) > 0 && (v[0] == '-' || v[0] == '+') {
		neg = v[0] == '-'
		v = v[1:]
	}
	if len(v) == 0 || v[0] != 'P' {
		return "0s"
	}
	v = v[1:]

	var hours int64
	var out string
	inTime := false
	num := ""
	flush := func(unit string) {
		if num == "" {
			return
		}
		n, _ := strconv.ParseInt(num, 10, 64)
		switch unit {
		case "w":
			hours += n * 24 * 7
		case "d":
			hours += n * 24
		case "h":
			out += num + "h"
		case "m":
			out += num + "m"
		case "s":
			out += num + "s"
		}
		num = ""
	}

	for _, r := range v {
		switch {
		case r == 'T':
			inTime = true
		case r >= '0' && r <= '9':
			num += string(r)
		case r == 'W':
			flush("w")
		case !inTime && r == 'D':
			flush("d")
		case inTime && r == 'H':
			flush("h")
		case inTime && r == 'M':
			flush("m")
		case inTime && r == 'S':
			flush("s")
		}
	}

	if hours > 0 {
		out = strconv.FormatInt(hours, 10) + "h" + out
	}
	if out == "" {
		out = "0s"
	}
	if neg {
		out = "-" + out
	}
	return out
}
