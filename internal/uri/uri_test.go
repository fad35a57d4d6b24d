package uri

import (
	"context"
	"net/http"
	"testing"

	"github.com/stormdav/davcore/internal/model"
)

type fakeResolver struct {
	ids map[string]uint32
}

func (f fakeResolver) ResolveAccountID(_ context.Context, name string) (uint32, bool, error) {
	id, ok := f.ids[name]
	return id, ok, nil
}

type fakeChecker struct{ allow bool }

func (f fakeChecker) HasAccess(context.Context, uint32, model.Collection) bool { return f.allow }

func TestResolveURISelfAccessFastPath(t *testing.T) {
	u, err := ResolveURI(context.Background(), fakeResolver{}, fakeChecker{allow: false}, "/dav/cal/alice/home", "alice", 7)
	if err != nil {
		t.Fatalf("ResolveURI: %v", err)
	}
	if u.Collection != model.CollectionCalendar {
		t.Fatalf("collection = %v, want calendar", u.Collection)
	}
	if u.AccountID == nil || *u.AccountID != 7 {
		t.Fatalf("account id = %v, want 7", u.AccountID)
	}
	if u.Resource != "home" {
		t.Fatalf("resource = %q, want home", u.Resource)
	}
}

func TestResolveURIUnknownAccountNotFound(t *testing.T) {
	_, err := ResolveURI(context.Background(), fakeResolver{ids: map[string]uint32{}}, fakeChecker{allow: true}, "/dav/cal/bob/home", "alice", 7)
	if err == nil {
		t.Fatal("expected an error for an unresolvable account")
	}
	if code := err.(*Error).HTTPStatus(); code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", code, http.StatusNotFound)
	}
}

func TestResolveURIAccessDenied(t *testing.T) {
	_, err := ResolveURI(context.Background(), fakeResolver{ids: map[string]uint32{"bob": 9}}, fakeChecker{allow: false}, "/dav/cal/bob/home", "alice", 7)
	if err == nil {
		t.Fatal("expected access denied error")
	}
	if code := err.(*Error).HTTPStatus(); code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", code, http.StatusForbidden)
	}
}

func TestResolveURIUnknownTag(t *testing.T) {
	_, err := ResolveURI(context.Background(), fakeResolver{}, fakeChecker{allow: true}, "/dav/bogus/alice", "alice", 7)
	if err == nil {
		t.Fatal("expected an error for an unknown collection tag")
	}
}

func TestIntoOwnedRequiresAccountID(t *testing.T) {
	_, err := Unresolved{Collection: model.CollectionCalendar}.IntoOwned()
	if err == nil {
		t.Fatal("expected an error when account id is absent")
	}
	if code := err.(*Error).HTTPStatus(); code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", code, http.StatusForbidden)
	}
}

type fakeLookup struct {
	byName map[string]*model.DavResource
}

func (f fakeLookup) ByName(name string) (*model.DavResource, bool) {
	r, ok := f.byName[name]
	return r, ok
}

func TestMapResourceAdjustsToItemPeer(t *testing.T) {
	owned := Owned{Collection: model.CollectionCalendar, AccountID: 1, Resource: "event.ics"}
	lookup := fakeLookup{byName: map[string]*model.DavResource{
		"event.ics": {DocumentID: 42, Container: false},
	}}
	docURI, ok := MapResource(owned, lookup)
	if !ok {
		t.Fatal("expected MapResource to resolve")
	}
	if docURI.Collection != model.CollectionCalendarEvent {
		t.Fatalf("collection = %v, want calendar-event", docURI.Collection)
	}
	if docURI.DocumentID != 42 {
		t.Fatalf("document id = %d, want 42", docURI.DocumentID)
	}
}

func TestMapResourceEmptyResource(t *testing.T) {
	owned := Owned{Collection: model.CollectionCalendar, AccountID: 1}
	if _, ok := MapResource(owned, fakeLookup{byName: map[string]*model.DavResource{}}); ok {
		t.Fatal("expected MapResource to fail on an empty resource segment")
	}
}
