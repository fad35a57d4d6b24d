package urn

import "testing"

func TestRoundTripLockToken(t *testing.T) {
	want := Lock(42)
	s := want.String()
	got, err := Parse(s)
	if err != nil {
		t.Fatalf("Parse(%q): %v", s, err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if got.Kind != KindLock {
		t.Fatalf("kind = %v, want KindLock", got.Kind)
	}
}

func TestRoundTripSyncToken(t *testing.T) {
	want := Sync(255)
	got, err := Parse(want.String())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestParseRejectsUnknownPrefix(t *testing.T) {
	if _, err := Parse("urn:ietf:params:xml:ns:lock:1"); err == nil {
		t.Fatal("expected an error for an unrecognized token")
	}
}

func TestParseRejectsBadHex(t *testing.T) {
	if _, err := Parse(prefixLock + "not-hex"); err == nil {
		t.Fatal("expected an error for malformed hex id")
	}
}
