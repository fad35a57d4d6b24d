package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/stormdav/davcore/internal/model"
	"github.com/stormdav/davcore/internal/storage"
)

// fakeHierarchyStorage implements only the storage.Store methods
// CalendarHierarchyStore.ListResources calls; the embedded nil
// storage.Store satisfies the rest of the (much larger) interface and
// would panic if this package ever grew a call into one of them.
type fakeHierarchyStorage struct {
	storage.Store
	calendars []*storage.Calendar
	objects   map[string][]*storage.Object
}

func (f *fakeHierarchyStorage) ListCalendarsByOwnerUser(_ context.Context, uid string) ([]*storage.Calendar, error) {
	var out []*storage.Calendar
	for _, c := range f.calendars {
		if c.OwnerUserID == uid {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeHierarchyStorage) ListObjects(_ context.Context, calendarID string, _, _ *time.Time) ([]*storage.Object, error) {
	return f.objects[calendarID], nil
}

func TestCalendarHierarchyStoreListResourcesFlattensCalendarsAndObjects(t *testing.T) {
	accounts := newAccountRegistry()
	docs := newDocumentRegistry()
	accountID := accounts.ID("alice")

	start := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	backing := &fakeHierarchyStorage{
		calendars: []*storage.Calendar{{ID: "cal-1", OwnerUserID: "alice", URI: "work"}},
		objects: map[string][]*storage.Object{
			"cal-1": {{UID: "evt-1", Data: "BEGIN:VEVENT\nEND:VEVENT\n", StartAt: &start, EndAt: &end}},
		},
	}

	store := NewCalendarHierarchyStore(backing, accounts, docs)
	resources, err := store.ListResources(context.Background(), accountID, model.CollectionCalendar)
	if err != nil {
		t.Fatalf("ListResources: %v", err)
	}
	if len(resources) != 2 {
		t.Fatalf("len(resources) = %d, want 2 (one calendar, one event)", len(resources))
	}

	var cal, evt *model.DavResource
	for _, r := range resources {
		if r.Container {
			cal = r
		} else {
			evt = r
		}
	}
	if cal == nil || cal.Name != "work" {
		t.Fatalf("calendar resource = %+v", cal)
	}
	if evt == nil || evt.Name != "evt-1" {
		t.Fatalf("event resource = %+v", evt)
	}
	if evt.EventTimeRange == nil || evt.EventTimeRange.Start != start.Unix() || evt.EventTimeRange.End != end.Unix() {
		t.Fatalf("event time range = %+v", evt.EventTimeRange)
	}
	parent, ok := evt.ParentDocumentID()
	if !ok || parent != cal.DocumentID {
		t.Fatalf("event parent = %d, %v, want %d, true", parent, ok, cal.DocumentID)
	}
}

func TestCalendarHierarchyStoreListResourcesIgnoresOtherCollections(t *testing.T) {
	accounts := newAccountRegistry()
	docs := newDocumentRegistry()
	store := NewCalendarHierarchyStore(&fakeHierarchyStorage{}, accounts, docs)

	resources, err := store.ListResources(context.Background(), accounts.ID("alice"), model.CollectionFileNode)
	if err != nil {
		t.Fatalf("ListResources: %v", err)
	}
	if resources != nil {
		t.Fatalf("expected no resources for an unrelated collection, got %v", resources)
	}
}

func TestCalendarHierarchyStoreInvalidateIsNonBlocking(t *testing.T) {
	store := NewCalendarHierarchyStore(&fakeHierarchyStorage{}, newAccountRegistry(), newDocumentRegistry())
	for i := 0; i < 32; i++ {
		store.Invalidate(1)
	}
	select {
	case inv := <-store.Changes():
		if inv.AccountID != 1 {
			t.Fatalf("Invalidation.AccountID = %d, want 1", inv.AccountID)
		}
	default:
		t.Fatal("expected at least one invalidation to have been queued")
	}
}
