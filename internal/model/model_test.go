package model

import "testing"

func TestEncodeAndDecodeParentID(t *testing.T) {
	id := EncodeParentID(41, true)
	r := &DavResource{ParentID: id}
	parent, ok := r.ParentDocumentID()
	if !ok || parent != 41 {
		t.Fatalf("ParentDocumentID() = %d, %v, want 41, true", parent, ok)
	}

	root := &DavResource{ParentID: EncodeParentID(0, false)}
	if _, ok := root.ParentDocumentID(); ok {
		t.Fatal("expected the synthetic root to report no parent")
	}
}

func TestCollectionPeers(t *testing.T) {
	if got := CollectionCalendar.ItemPeer(); got != CollectionCalendarEvent {
		t.Fatalf("Calendar.ItemPeer() = %v, want CalendarEvent", got)
	}
	if got := CollectionCalendarEvent.ContainerPeer(); got != CollectionCalendar {
		t.Fatalf("CalendarEvent.ContainerPeer() = %v, want Calendar", got)
	}
	if got := CollectionFileNode.ItemPeer(); got != CollectionFileNode {
		t.Fatalf("FileNode.ItemPeer() = %v, want itself", got)
	}
}

func TestParseCollectionTag(t *testing.T) {
	c, ok := ParseCollectionTag("cal")
	if !ok || c != CollectionCalendar {
		t.Fatalf("ParseCollectionTag(cal) = %v, %v, want Calendar, true", c, ok)
	}
	if _, ok := ParseCollectionTag("bogus"); ok {
		t.Fatal("expected an unknown tag to report false")
	}
}

func TestParseDepth(t *testing.T) {
	if d := ParseDepth("1", DepthZero); d != DepthOne {
		t.Fatalf("ParseDepth(1) = %v, want DepthOne", d)
	}
	if d := ParseDepth("", DepthInfinity); d != DepthInfinity {
		t.Fatalf("ParseDepth('') = %v, want the default", d)
	}
}

func TestTimeRangeIntersects(t *testing.T) {
	r := TimeRange{Start: 10, End: 20}
	if !r.Intersects(TimeRange{Start: 15, End: 25}) {
		t.Fatal("expected overlapping ranges to intersect")
	}
	if r.Intersects(TimeRange{Start: 30, End: 40}) {
		t.Fatal("expected disjoint ranges to not intersect")
	}
}

func TestCalendarPreferencesForCreatesOnFirstUse(t *testing.T) {
	cal := &Calendar{}
	prefs := cal.PreferencesFor(7)
	prefs.Name = "Work"
	if got := cal.PreferencesFor(7).Name; got != "Work" {
		t.Fatalf("PreferencesFor(7).Name = %q, want Work (same record reused)", got)
	}
}
