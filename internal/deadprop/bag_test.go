package deadprop

import (
	"encoding/xml"
	"strings"
	"testing"

	"github.com/beevik/etree"
)

func mustElement(t *testing.T, raw string) *etree.Element {
	t.Helper()
	el, err := ParseFragment(raw)
	if err != nil {
		t.Fatalf("ParseFragment: %v", err)
	}
	return el
}

func TestAddElementAndGet(t *testing.T) {
	var bag Bag
	name := xml.Name{Space: "http://example.com/ns", Local: "color"}
	if err := bag.AddElement(name, mustElement(t, `<color xmlns="http://example.com/ns">blue</color>`)); err != nil {
		t.Fatalf("AddElement: %v", err)
	}
	frag, ok := bag.Get(name)
	if !ok {
		t.Fatal("expected the entry to be stored")
	}
	if !strings.Contains(frag, "blue") {
		t.Fatalf("fragment = %q, want it to contain blue", frag)
	}
	if bag.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", bag.Len())
	}
}

func TestAddElementReplacesKeepingPosition(t *testing.T) {
	var bag Bag
	first := xml.Name{Space: "ns", Local: "a"}
	second := xml.Name{Space: "ns", Local: "b"}
	_ = bag.AddElement(first, mustElement(t, `<a xmlns="ns">1</a>`))
	_ = bag.AddElement(second, mustElement(t, `<b xmlns="ns">2</b>`))
	_ = bag.AddElement(first, mustElement(t, `<a xmlns="ns">3</a>`))

	entries := bag.All()
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].Name != first {
		t.Fatalf("position of replaced entry changed: got %v first", entries[0].Name)
	}
	if !strings.Contains(entries[0].Fragment, "3") {
		t.Fatalf("fragment not updated: %q", entries[0].Fragment)
	}
}

func TestRemoveElement(t *testing.T) {
	var bag Bag
	name := xml.Name{Space: "ns", Local: "a"}
	_ = bag.AddElement(name, mustElement(t, `<a xmlns="ns">1</a>`))
	if !bag.RemoveElement(name) {
		t.Fatal("expected RemoveElement to report true")
	}
	if bag.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", bag.Len())
	}
	if bag.RemoveElement(name) {
		t.Fatal("expected a second RemoveElement to report false")
	}
}

func TestSize(t *testing.T) {
	var bag Bag
	_ = bag.AddElement(xml.Name{Space: "ns", Local: "a"}, mustElement(t, `<a xmlns="ns">1</a>`))
	if bag.Size() <= 0 {
		t.Fatalf("Size() = %d, want > 0", bag.Size())
	}
}
