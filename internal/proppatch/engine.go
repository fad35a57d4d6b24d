package proppatch

import (
	"encoding/xml"
	"time"

	"github.com/beevik/etree"

	"github.com/stormdav/davcore/internal/model"
	"github.com/stormdav/davcore/internal/response"
	"github.com/stormdav/davcore/pkg/ical"
)

// Limits bounds the sizes PROPPATCH will accept, sourced from the server's
// [dav] configuration block.
type Limits struct {
	LivePropertySize int
	MaxICalSize      int
	DeadPropertySize int // <=0 disables dead-property storage entirely
}

// PatchResult is the outcome of an Apply call: whether every property in
// the request succeeded (gating whether the caller commits the mutated
// target to storage) and the per-property PropStat entries to render.
type PatchResult struct {
	Success   bool
	PropStats []response.PropStat
}

// Apply mutates target in place according to update, honoring the
// set_first ordering rule: by default remove runs before set so that a
// request removing and then re-setting the same property ends up set;
// update.SetFirst reverses that for callers that asked for set-before-remove
// semantics: with SetFirst, removes run after a successful set pass, so a
// set followed by a remove of the same property leaves it removed.
//
// The caller is responsible for committing target to storage only when
// Success is true; on failure target must be discarded; the engine never
// leaves a partially-applied target visible to storage.
func Apply(target PatchTarget, update response.PropertyUpdate, limits Limits) PatchResult {
	builder := response.NewPropStatBuilder()

	if !update.SetFirst && len(update.Remove) > 0 {
		removeProperties(target, update.Remove, builder)
	}

	success := setProperties(target, update.Set, limits, builder)

	if update.SetFirst && success && len(update.Remove) > 0 {
		removeProperties(target, update.Remove, builder)
	}

	return PatchResult{Success: success, PropStats: builder.Build()}
}

func setProperties(target PatchTarget, props []response.PropertyValue, limits Limits, builder *response.PropStatBuilder) bool {
	success := true
	for _, pv := range props {
		if response.IsDeadProperty(pv.Property) {
			if !setDeadProperty(target, pv, limits, builder) {
				success = false
			}
			continue
		}

		var ok bool
		switch t := target.(type) {
		case *CalendarTarget:
			ok = setCalendarProperty(t, pv, limits, builder)
		case *CalendarEventTarget:
			ok = setEventProperty(t.Event, pv, limits, builder)
		case *AddressBookTarget:
			ok = setAddressBookProperty(t, pv, limits, builder)
		case *ContactCardTarget:
			ok = setContactCardProperty(t.Card, pv, limits, builder)
		case *FileNodeTarget:
			ok = setFileNodeProperty(t.Node, pv, limits, builder)
		default:
			ok = false
			builder.InsertErrorWithDescription(pv.Property, 409, "Property cannot be modified")
		}
		if !ok {
			success = false
		}
	}
	return success
}

func setDeadProperty(target PatchTarget, pv response.PropertyValue, limits Limits, builder *response.PropStatBuilder) bool {
	dv, ok := pv.Value.(response.DeadPropertyValue)
	if !ok || limits.DeadPropertySize <= 0 {
		builder.InsertErrorWithDescription(pv.Property, 409, "Property cannot be modified")
		return false
	}

	bag := target.DeadProperties()
	// is_update semantics: a set always replaces any prior value for the
	// same name before the size check, so re-setting the same property
	// doesn't double-count its own old fragment against the limit.
	bag.RemoveElement(pv.Property)

	doc := etree.NewDocument()
	doc.SetRoot(dv.Element.Copy())
	serialized, _ := doc.WriteToString()
	if bag.Size()+len(serialized) >= limits.DeadPropertySize {
		builder.InsertErrorWithDescription(pv.Property, 507, "Dead property is too large.")
		return false
	}

	if err := bag.AddElement(pv.Property, dv.Element); err != nil {
		builder.InsertErrorWithDescription(pv.Property, 409, "Property cannot be modified")
		return false
	}
	builder.InsertOK(pv.Property)
	return true
}

func removeProperties(target PatchTarget, names []xml.Name, builder *response.PropStatBuilder) {
	for _, name := range names {
		if response.IsDeadProperty(name) {
			target.DeadProperties().RemoveElement(name)
			builder.InsertOK(name)
			continue
		}

		var ok bool
		switch t := target.(type) {
		case *CalendarTarget:
			ok = removeCalendarProperty(t, name)
		case *CalendarEventTarget:
			ok = removeEventProperty(t.Event, name)
		case *AddressBookTarget:
			ok = removeAddressBookProperty(t, name)
		case *ContactCardTarget:
			ok = removeContactCardProperty(t.Card, name)
		case *FileNodeTarget:
			ok = removeFileNodeProperty(t.Node, name)
		}
		if ok {
			builder.InsertOK(name)
		} else {
			builder.InsertErrorWithDescription(name, 409, "Property cannot be deleted")
		}
	}
}

// -- Calendar --

func setCalendarProperty(t *CalendarTarget, pv response.PropertyValue, limits Limits, builder *response.PropStatBuilder) bool {
	prefs := t.Calendar.PreferencesFor(t.AccountID)
	switch pv.Property {
	case response.PropDisplayName:
		name, ok := pv.Value.(response.StringValue)
		if !ok || len(name) > limits.LivePropertySize {
			builder.InsertErrorWithDescription(pv.Property, 507, "Display name too long")
			return false
		}
		prefs.Name = string(name)
		builder.InsertOK(pv.Property)
		return true

	case response.PropCalendarDescription:
		desc, ok := pv.Value.(response.StringValue)
		if !ok || len(desc) > limits.LivePropertySize {
			builder.InsertErrorWithDescription(pv.Property, 507, "Calendar description too long")
			return false
		}
		s := string(desc)
		prefs.Description = &s
		builder.InsertOK(pv.Property)
		return true

	case response.PropCalendarTimezone:
		ics, ok := pv.Value.(response.ICalValue)
		if !ok || len(ics) > limits.MaxICalSize {
			builder.InsertErrorWithDescription(pv.Property, 507, "Calendar timezone too large")
			return false
		}
		if !ical.IsTimezone([]byte(ics)) {
			builder.InsertPreconditionFailedWithDescription(pv.Property, 412, "valid-calendar-data", "Invalid calendar timezone")
			return false
		}
		prefs.TimeZone = model.Timezone{Kind: model.TimezoneCustom, Custom: string(ics)}
		builder.InsertOK(pv.Property)
		return true

	case response.PropCalendarTimezoneID:
		tzID, ok := pv.Value.(response.StringValue)
		if !ok || tzID == "" {
			builder.InsertPreconditionFailedWithDescription(pv.Property, 412, "valid-timezone", "Invalid timezone ID")
			return false
		}
		prefs.TimeZone = model.Timezone{Kind: model.TimezoneIANA, IANA: string(tzID)}
		builder.InsertOK(pv.Property)
		return true

	case response.PropCreationDate:
		ts, ok := pv.Value.(response.TimestampValue)
		if ok {
			t.Calendar.Created = time.Time(ts)
		}
		builder.InsertOK(pv.Property)
		return true

	case response.PropResourceType:
		types, ok := pv.Value.(response.ResourceTypesValue)
		if !ok || !allCalendarOrCollection(types) {
			builder.InsertPreconditionFailed(pv.Property, 403, "valid-resource-type")
			return false
		}
		builder.InsertOK(pv.Property)
		return true

	default:
		builder.InsertErrorWithDescription(pv.Property, 409, "Property cannot be modified")
		return false
	}
}

// allCalendarOrCollection reports whether every requested resource type is
// Collection or Calendar. This is the corrected semantics: the request
// succeeds when every type is one the calendar collection already is,
// rather than the inverted check that would reject exactly those requests.
func allCalendarOrCollection(types []response.ResourceType) bool {
	for _, t := range types {
		if t != response.ResourceTypeCollection && t != response.ResourceTypeCalendar {
			return false
		}
	}
	return true
}

func removeCalendarProperty(t *CalendarTarget, name xml.Name) bool {
	prefs := t.Calendar.PreferencesFor(t.AccountID)
	switch name {
	case response.PropCalendarDescription:
		prefs.Description = nil
		return true
	case response.PropCalendarTimezone, response.PropCalendarTimezoneID:
		prefs.TimeZone = model.Timezone{Kind: model.TimezoneDefault}
		return true
	default:
		return false
	}
}

// -- CalendarEvent --

func setEventProperty(event *model.CalendarEvent, pv response.PropertyValue, limits Limits, builder *response.PropStatBuilder) bool {
	switch pv.Property {
	case response.PropDisplayName:
		name, ok := pv.Value.(response.StringValue)
		if !ok || len(name) > limits.LivePropertySize {
			builder.InsertErrorWithDescription(pv.Property, 507, "Display name too long")
			return false
		}
		s := string(name)
		event.DisplayName = &s
		builder.InsertOK(pv.Property)
		return true

	case response.PropCreationDate:
		ts, ok := pv.Value.(response.TimestampValue)
		if ok {
			event.Created = time.Time(ts)
		}
		builder.InsertOK(pv.Property)
		return true

	default:
		builder.InsertErrorWithDescription(pv.Property, 409, "Property cannot be modified")
		return false
	}
}

func removeEventProperty(event *model.CalendarEvent, name xml.Name) bool {
	if name == response.PropDisplayName {
		event.DisplayName = nil
		return true
	}
	return false
}

// -- AddressBook --

func setAddressBookProperty(t *AddressBookTarget, pv response.PropertyValue, limits Limits, builder *response.PropStatBuilder) bool {
	switch pv.Property {
	case response.PropDisplayName:
		name, ok := pv.Value.(response.StringValue)
		if !ok || len(name) > limits.LivePropertySize {
			builder.InsertErrorWithDescription(pv.Property, 507, "Display name too long")
			return false
		}
		t.AddressBook.DisplayName = string(name)
		builder.InsertOK(pv.Property)
		return true

	case response.PropAddressBookDesc:
		desc, ok := pv.Value.(response.StringValue)
		if !ok || len(desc) > limits.LivePropertySize {
			builder.InsertErrorWithDescription(pv.Property, 507, "Address book description too long")
			return false
		}
		s := string(desc)
		t.AddressBook.Description = &s
		builder.InsertOK(pv.Property)
		return true

	case response.PropCreationDate:
		ts, ok := pv.Value.(response.TimestampValue)
		if ok {
			t.AddressBook.Created = time.Time(ts)
		}
		builder.InsertOK(pv.Property)
		return true

	default:
		builder.InsertErrorWithDescription(pv.Property, 409, "Property cannot be modified")
		return false
	}
}

func removeAddressBookProperty(t *AddressBookTarget, name xml.Name) bool {
	if name == response.PropAddressBookDesc {
		t.AddressBook.Description = nil
		return true
	}
	return false
}

// -- ContactCard --

func setContactCardProperty(card *model.ContactCard, pv response.PropertyValue, limits Limits, builder *response.PropStatBuilder) bool {
	switch pv.Property {
	case response.PropDisplayName:
		name, ok := pv.Value.(response.StringValue)
		if !ok || len(name) > limits.LivePropertySize {
			builder.InsertErrorWithDescription(pv.Property, 507, "Display name too long")
			return false
		}
		s := string(name)
		card.DisplayName = &s
		builder.InsertOK(pv.Property)
		return true

	case response.PropCreationDate:
		ts, ok := pv.Value.(response.TimestampValue)
		if ok {
			card.Created = time.Time(ts)
		}
		builder.InsertOK(pv.Property)
		return true

	default:
		builder.InsertErrorWithDescription(pv.Property, 409, "Property cannot be modified")
		return false
	}
}

func removeContactCardProperty(card *model.ContactCard, name xml.Name) bool {
	if name == response.PropDisplayName {
		card.DisplayName = nil
		return true
	}
	return false
}

// -- FileNode --

func setFileNodeProperty(node *model.FileNode, pv response.PropertyValue, limits Limits, builder *response.PropStatBuilder) bool {
	switch pv.Property {
	case response.PropDisplayName:
		name, ok := pv.Value.(response.StringValue)
		if !ok || len(name) > limits.LivePropertySize {
			builder.InsertErrorWithDescription(pv.Property, 507, "Display name too long")
			return false
		}
		s := string(name)
		node.DisplayName = &s
		builder.InsertOK(pv.Property)
		return true

	case response.PropCreationDate:
		ts, ok := pv.Value.(response.TimestampValue)
		if ok {
			node.Created = time.Time(ts)
		}
		builder.InsertOK(pv.Property)
		return true

	default:
		builder.InsertErrorWithDescription(pv.Property, 409, "Property cannot be modified")
		return false
	}
}

func removeFileNodeProperty(node *model.FileNode, name xml.Name) bool {
	if name == response.PropDisplayName {
		node.DisplayName = nil
		return true
	}
	return false
}
