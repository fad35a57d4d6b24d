package bridge

import "testing"

func TestAccountRegistryIDIsStableAndReversible(t *testing.T) {
	reg := newAccountRegistry()
	id := reg.ID("alice")
	if got := reg.ID("alice"); got != id {
		t.Fatalf("ID(alice) changed across calls: %d, then %d", id, got)
	}
	if name, ok := reg.Name(id); !ok || name != "alice" {
		t.Fatalf("Name(%d) = %q, %v, want alice, true", id, name, ok)
	}
	if _, ok := reg.Name(id + 1); ok {
		t.Fatal("expected an unregistered id to not resolve")
	}
}

func TestAccountRegistryDistinctUsersGetDistinctIDs(t *testing.T) {
	reg := newAccountRegistry()
	if reg.ID("alice") == reg.ID("bob") {
		t.Fatal("expected distinct usernames to hash to distinct ids (collision is possible but vanishingly unlikely for this fixture)")
	}
}

func TestDocumentRegistryRegisterIsIdempotent(t *testing.T) {
	reg := newDocumentRegistry()
	id := reg.register(docKindCalendar, "cal-uuid-1", "", "work")
	again := reg.register(docKindCalendar, "cal-uuid-1", "", "work")
	if id != again {
		t.Fatalf("register() returned %d then %d for the same storage id", id, again)
	}
	ref, ok := reg.lookup(id)
	if !ok || ref.storageID != "cal-uuid-1" || ref.uri != "work" {
		t.Fatalf("lookup(%d) = %+v, %v", id, ref, ok)
	}
}

func TestDocumentRegistryCalendarAndEventKeysDoNotCollide(t *testing.T) {
	reg := newDocumentRegistry()
	calID := reg.register(docKindCalendar, "same-id", "", "uri")
	evID := reg.register(docKindEvent, "same-id", "cal-1", "")
	if calID == evID {
		t.Fatal("expected the calendar and event document ids to differ even with the same storage id")
	}
}

func TestDocumentRegistryAllocateIsDisjointFromRegisteredIDs(t *testing.T) {
	reg := newDocumentRegistry()
	registered := reg.register(docKindEvent, "uid-1", "cal-1", "")
	allocated := reg.allocate(3)
	if allocated&(1<<31) == 0 {
		t.Fatalf("allocate() = %d, want the high bit set", allocated)
	}
	if registered&(1<<31) != 0 {
		t.Fatalf("register() = %d, want the high bit clear", registered)
	}
}

func TestDocumentRegistryAllocateAdvancesByCount(t *testing.T) {
	reg := newDocumentRegistry()
	first := reg.allocate(5)
	second := reg.allocate(1)
	if second != first+5 {
		t.Fatalf("second allocate() = %d, want %d", second, first+5)
	}
}

func TestDocumentRegistryRename(t *testing.T) {
	reg := newDocumentRegistry()
	id := reg.register(docKindEvent, "uid-old", "cal-1", "")
	reg.rename(id, "uid-new", "cal-2")

	ref, ok := reg.lookup(id)
	if !ok || ref.storageID != "uid-new" || ref.calendarID != "cal-2" {
		t.Fatalf("lookup(%d) after rename = %+v, %v", id, ref, ok)
	}
	if _, ok := reg.byKey[keyFor(docKindEvent, "uid-old")]; ok {
		t.Fatal("expected the old storage key to be removed after rename")
	}
}

func TestDocumentRegistryForget(t *testing.T) {
	reg := newDocumentRegistry()
	id := reg.register(docKindCalendar, "cal-uuid", "", "uri")
	reg.forget(id)
	if _, ok := reg.lookup(id); ok {
		t.Fatal("expected the document id to be gone after forget")
	}
	newID := reg.register(docKindCalendar, "cal-uuid", "", "uri")
	if newID == id {
		t.Log("re-registering the same storage id after forget reproduced the same hash-derived id, which is expected")
	}
}
