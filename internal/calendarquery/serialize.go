package calendarquery

import (
	"bytes"
	"sort"

	ical "github.com/emersion/go-ical"

	"github.com/stormdav/davcore/internal/model"
)

// DataRequest describes a calendar-data response modifier: which
// properties to keep per component (nil/empty means "all"), and the
// expand range. limit-recurrence-set and limit-freebusy-set are not
// represented here and are not applied to the serialized output.
type DataRequest struct {
	// Properties, keyed by component name, lists the property names to
	// keep; an empty slice for a component name means keep none named
	// explicitly (still subject to the catch-all empty-map "keep all").
	Properties map[string][]string
	Expand     *model.TimeRange
}

// propertiesDroppedOnExpand is the set of recurrence-bookkeeping
// properties stripped from a synthesized occurrence, since DTSTART/DTEND/
// RECURRENCE-ID are written fresh for each occurrence and RRULE/RDATE/
// EXDATE/EXRULE never apply to a single expanded instance.
var propertiesDroppedOnExpand = map[string]bool{
	ical.PropDateTimeStart:   true,
	ical.PropDateTimeEnd:     true,
	ical.PropExceptionDates:  true,
	ical.PropRecurrenceDates: true,
	ical.PropRecurrenceRule:  true,
	ical.PropRecurrenceID:    true,
	"EXRULE":                 true,
}

// SerializeICal re-serializes cal filtered to the component/property subset
// named by req, expanding recurring VEVENT/VTODO components in req.Expand
// into one BEGIN/END block per occurrence. h must have been constructed
// with the same Expand range so its expanded occurrence list lines up.
func (h *Handler) SerializeICal(cal *ical.Calendar, req DataRequest) (string, error) {
	out := &ical.Calendar{Component: &ical.Component{Name: ical.CompCalendar, Props: cloneProps(cal.Props, req, ical.CompCalendar)}}

	if req.Expand != nil {
		sort.Slice(h.expandedEvents, func(i, j int) bool { return h.expandedEvents[i].start.Before(h.expandedEvents[j].start) })
	}

	for i, comp := range cal.Children {
		if req.Expand != nil && (comp.Name == ical.CompEvent || comp.Name == ical.CompToDo) {
			occurrences := occurrencesForComponent(h.expandedEvents, i)
			if len(occurrences) > 0 {
				for _, occ := range occurrences {
					out.Children = append(out.Children, buildOccurrence(comp, occ, req))
				}
				continue
			}
		}

		filtered := filterComponentProperties(comp, req)
		if filtered != nil {
			out.Children = append(out.Children, filtered)
		}
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(out); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func occurrencesForComponent(events []expandedOccurrence, componentIndex int) []expandedOccurrence {
	var out []expandedOccurrence
	for _, e := range events {
		if e.componentIndex == componentIndex {
			out = append(out, e)
		}
	}
	return out
}

func buildOccurrence(master *ical.Component, occ expandedOccurrence, req DataRequest) *ical.Component {
	c := &ical.Component{Name: master.Name, Props: ical.Props{}}

	dtstart := ical.NewProp(ical.PropDateTimeStart)
	dtstart.SetDateTime(occ.start)
	c.Props.Add(dtstart)

	recID := ical.NewProp(ical.PropRecurrenceID)
	recID.SetDateTime(occ.start)
	c.Props.Add(recID)

	dtend := ical.NewProp(ical.PropDateTimeEnd)
	dtend.SetDateTime(occ.end)
	c.Props.Add(dtend)

	for name, props := range master.Props {
		if propertiesDroppedOnExpand[name] {
			continue
		}
		if !keepProperty(req, master.Name, name) {
			continue
		}
		for _, p := range props {
			cp := p
			c.Props.Add(&cp)
		}
	}
	return c
}

func filterComponentProperties(comp *ical.Component, req DataRequest) *ical.Component {
	out := &ical.Component{Name: comp.Name, Props: cloneProps(comp.Props, req, comp.Name)}
	for _, child := range comp.Children {
		if f := filterComponentProperties(child, req); f != nil {
			out.Children = append(out.Children, f)
		}
	}
	if len(out.Props) == 0 && len(out.Children) == 0 {
		return nil
	}
	return out
}

func cloneProps(props ical.Props, req DataRequest, componentName string) ical.Props {
	out := ical.Props{}
	for name, vals := range props {
		if !keepProperty(req, componentName, name) {
			continue
		}
		for _, p := range vals {
			cp := p
			out.Add(&cp)
		}
	}
	return out
}

func keepProperty(req DataRequest, componentName, propertyName string) bool {
	if len(req.Properties) == 0 {
		return true
	}
	names, ok := req.Properties[componentName]
	if !ok {
		return true
	}
	if len(names) == 0 {
		return false
	}
	for _, n := range names {
		if n == propertyName {
			return true
		}
	}
	return false
}
