package response

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/beevik/etree"
)

// ParsePropertyUpdate parses a PROPPATCH request body (a DAV:propertyupdate
// document) into a PropertyUpdate, generalizing the teacher's ad hoc
// xml.Unmarshal-into-anonymous-struct parsing (internal/dav/caldav's old
// HandleProppatch) into one parser shared by every collection type: set
// entries are classified by namespace/local-name into the known live
// vocabulary or, for anything else, a DeadPropertyValue carrying the raw
// element for internal/deadprop to store verbatim.
func ParsePropertyUpdate(body []byte) (PropertyUpdate, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return PropertyUpdate{}, fmt.Errorf("response: parse propertyupdate: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return PropertyUpdate{}, fmt.Errorf("response: empty propertyupdate body")
	}

	var update PropertyUpdate
	sawSet, sawRemove := false, false
	for _, child := range root.ChildElements() {
		switch child.Tag {
		case "set":
			if sawRemove {
				update.SetFirst = false
			} else {
				sawSet = true
			}
			for _, prop := range propElements(child) {
				for _, el := range prop.ChildElements() {
					update.Set = append(update.Set, PropertyValue{
						Property: elementName(el),
						Value:    parseValue(el),
					})
				}
			}
		case "remove":
			sawRemove = true
			if sawSet {
				update.SetFirst = true
			}
			for _, prop := range propElements(child) {
				for _, el := range prop.ChildElements() {
					update.Remove = append(update.Remove, elementName(el))
				}
			}
		}
	}
	return update, nil
}

func propElements(setOrRemove *etree.Element) []*etree.Element {
	return setOrRemove.SelectElements("prop")
}

func elementName(el *etree.Element) xml.Name {
	space := el.Space
	if ns := el.SelectAttr("xmlns"); space == "" && ns != nil {
		space = ns.Value
	}
	if space == "" {
		space = el.NamespaceURI()
	}
	return xml.Name{Space: space, Local: el.Tag}
}

func parseValue(el *etree.Element) Value {
	name := elementName(el)
	if !IsDeadProperty(name) {
		switch name {
		case PropDisplayName, PropCalendarDescription, PropAddressBookDesc, PropCalendarTimezoneID:
			return StringValue(el.Text())
		case PropCalendarTimezone:
			return ICalValue(el.Text())
		case PropCreationDate:
			t, err := time.Parse(time.RFC3339, el.Text())
			if err == nil {
				return TimestampValue(t)
			}
			return StringValue(el.Text())
		}
	}
	return DeadPropertyValue{Element: el.Copy()}
}
