package bridge

import (
	"context"
	"testing"

	"github.com/stormdav/davcore/internal/acl"
	"github.com/stormdav/davcore/internal/directory"
	"github.com/stormdav/davcore/internal/model"
)

type fakeProvider struct {
	byCalendar map[string]acl.Effective
}

func (f *fakeProvider) Effective(_ context.Context, _ *directory.User, calendarID string) (acl.Effective, error) {
	return f.byCalendar[calendarID], nil
}

func (f *fakeProvider) VisibleCalendars(_ context.Context, _ *directory.User) (map[string]acl.Effective, error) {
	return f.byCalendar, nil
}

func TestCalendarACLCheckerIsMember(t *testing.T) {
	checker := &CalendarACLChecker{CallerID: 7}
	if !checker.IsMember(7) {
		t.Fatal("expected the caller's own account to report membership")
	}
	if checker.IsMember(8) {
		t.Fatal("expected a different account to not report membership")
	}
}

func TestCalendarACLCheckerHasRightResolvesEventToItsCalendar(t *testing.T) {
	docs := newDocumentRegistry()
	calID := docs.register(docKindCalendar, "cal-1", "", "work")
	evID := docs.register(docKindEvent, "uid-1", "cal-1", "")

	provider := &fakeProvider{byCalendar: map[string]acl.Effective{"cal-1": {Read: true}}}
	checker := &CalendarACLChecker{Provider: provider, Caller: &directory.User{UID: "alice"}, CallerID: 1, Docs: docs}

	if !checker.HasRight(context.Background(), 1, evID, model.RightRead) {
		t.Fatal("expected read on the event to resolve through its owning calendar's ACL")
	}
	if !checker.HasRight(context.Background(), 1, calID, model.RightRead) {
		t.Fatal("expected read on the calendar itself to succeed")
	}
	if checker.HasRight(context.Background(), 1, evID, model.RightDelete) {
		t.Fatal("expected delete to be denied when Unbind is not granted")
	}
}

func TestCalendarACLCheckerHasRightUnknownDocumentDenied(t *testing.T) {
	docs := newDocumentRegistry()
	checker := &CalendarACLChecker{Provider: &fakeProvider{}, Docs: docs}
	if checker.HasRight(context.Background(), 1, 999, model.RightRead) {
		t.Fatal("expected an unknown document id to be denied")
	}
}
