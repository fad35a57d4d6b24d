// Package deadprop holds the opaque "dead" WebDAV properties attached to a
// resource: arbitrary client-set XML elements the server stores and returns
// verbatim without understanding their meaning, as distinguished from the
// "live" properties each resource type computes itself (displayname,
// getetag, resourcetype, and so on).
package deadprop

import (
	"encoding/xml"
	"fmt"

	"github.com/beevik/etree"
)

// Entry is a single dead property: its qualified XML name and the raw
// element serialization (including the element's own opening/closing tags)
// stored for round-tripping on PROPFIND.
type Entry struct {
	Name     xml.Name
	Fragment string
}

// Bag is an ordered collection of dead properties. Order is preserved so
// that PROPFIND responses list properties in the order clients set them,
// matching how the teacher's Prop struct renders fields in field order.
type Bag struct {
	entries []Entry
}

// Size returns the total serialized size of the bag's entries, used to
// enforce the configured dead-property size budget before a PROPPATCH set
// is accepted.
func (b *Bag) Size() int {
	total := 0
	for _, e := range b.entries {
		total += len(e.Fragment)
	}
	return total
}

// Len reports the number of dead properties currently stored.
func (b *Bag) Len() int { return len(b.entries) }

// Get returns the fragment stored for name, if any.
func (b *Bag) Get(name xml.Name) (string, bool) {
	for _, e := range b.entries {
		if e.Name == name {
			return e.Fragment, true
		}
	}
	return "", false
}

// All returns the bag's entries in storage order.
func (b *Bag) All() []Entry {
	return append([]Entry(nil), b.entries...)
}

// AddElement stores or replaces the dead property named name with the
// serialized form of el, an etree element parsed from a PROPPATCH <set>
// body. Replacing an existing entry keeps its original position, matching
// the "set" semantics of RFC 4918 §9.2 (a second set for the same property
// overwrites the first without reordering other properties).
func (b *Bag) AddElement(name xml.Name, el *etree.Element) error {
	doc := etree.NewDocument()
	doc.SetRoot(el.Copy())
	fragment, err := doc.WriteToString()
	if err != nil {
		return fmt.Errorf("deadprop: serialize %s: %w", name.Local, err)
	}

	for i, e := range b.entries {
		if e.Name == name {
			b.entries[i].Fragment = fragment
			return nil
		}
	}
	b.entries = append(b.entries, Entry{Name: name, Fragment: fragment})
	return nil
}

// RemoveElement deletes the dead property named name, if present. It
// reports whether an entry was removed.
func (b *Bag) RemoveElement(name xml.Name) bool {
	for i, e := range b.entries {
		if e.Name == name {
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			return true
		}
	}
	return false
}

// ParseFragment parses a raw <propname xmlns="...">...</propname> fragment
// (as found in a PROPPATCH request body) into an etree element suitable for
// AddElement.
func ParseFragment(raw string) (*etree.Element, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(raw); err != nil {
		return nil, fmt.Errorf("deadprop: parse fragment: %w", err)
	}
	return doc.Root(), nil
}
