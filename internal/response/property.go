// Package response holds the typed property/value vocabulary PROPFIND and
// PROPPATCH exchange, the PropStatBuilder that groups per-property results
// by outcome, and the MultiStatus/Response XML envelope, mirroring
// dav_proto::schema::{property,request,response} and the teacher's
// internal/dav/common/types.go.
package response

import (
	"encoding/xml"
	"time"

	"github.com/beevik/etree"
)

// Namespace-qualified names for the live properties the PropPatch engine
// understands. Dead properties use whatever xml.Name the client sent.
var (
	PropDisplayName         = xml.Name{Space: "DAV:", Local: "displayname"}
	PropCreationDate        = xml.Name{Space: "DAV:", Local: "creationdate"}
	PropResourceType        = xml.Name{Space: "DAV:", Local: "resourcetype"}
	PropCalendarDescription = xml.Name{Space: "urn:ietf:params:xml:ns:caldav", Local: "calendar-description"}
	PropCalendarTimezone    = xml.Name{Space: "urn:ietf:params:xml:ns:caldav", Local: "calendar-timezone"}
	PropCalendarTimezoneID  = xml.Name{Space: "urn:ietf:params:xml:ns:caldav", Local: "calendar-timezone-id"}
	PropAddressBookDesc     = xml.Name{Space: "urn:ietf:params:xml:ns:carddav", Local: "addressbook-description"}
)

// IsDeadProperty reports whether name is not one of the live properties the
// server understands natively (a name in a foreign namespace, or an
// unrecognized DAV:/CalDAV/CardDAV name), i.e. it is an opaque client property.
func IsDeadProperty(name xml.Name) bool {
	switch name.Space {
	case "DAV:", "urn:ietf:params:xml:ns:caldav", "urn:ietf:params:xml:ns:carddav":
		return !knownLiveNames[name]
	default:
		return true
	}
}

var knownLiveNames = map[xml.Name]bool{
	PropDisplayName:         true,
	PropCreationDate:        true,
	PropResourceType:        true,
	PropCalendarDescription: true,
	PropCalendarTimezone:    true,
	PropCalendarTimezoneID:  true,
	PropAddressBookDesc:     true,
}

// ResourceType is one member of a resourcetype property's value set.
type ResourceType uint8

const (
	ResourceTypeCollection ResourceType = iota
	ResourceTypeCalendar
	ResourceTypeAddressBook
)

// Value is the typed payload of a property-update request for one
// property, a sum type over the wire representations PROPPATCH accepts.
type Value interface{ isValue() }

// StringValue is a plain-text property value (displayname, calendar
// description, timezone id).
type StringValue string

func (StringValue) isValue() {}

// TimestampValue is a property value carrying a point in time
// (creationdate).
type TimestampValue time.Time

func (TimestampValue) isValue() {}

// ICalValue is a raw iCalendar payload (calendar-timezone).
type ICalValue string

func (ICalValue) isValue() {}

// ResourceTypesValue is the requested set of resource types.
type ResourceTypesValue []ResourceType

func (ResourceTypesValue) isValue() {}

// DeadPropertyValue wraps the parsed XML element of an opaque client
// property.
type DeadPropertyValue struct{ Element *etree.Element }

func (DeadPropertyValue) isValue() {}

// PropertyValue pairs a property name with the value a PROPPATCH <set>
// request asked to store.
type PropertyValue struct {
	Property xml.Name
	Value    Value
}

// PropertyUpdate is a parsed PROPPATCH request body.
type PropertyUpdate struct {
	Set      []PropertyValue
	Remove   []xml.Name
	SetFirst bool
}

// HasChanges reports whether the update carries any property mutation,
// mirroring PropertyUpdate::has_changes — an update with neither set nor
// remove entries short-circuits to 204 without touching storage.
func (u PropertyUpdate) HasChanges() bool {
	return len(u.Set) > 0 || len(u.Remove) > 0
}
