package bridge

import (
	"context"

	"github.com/stormdav/davcore/internal/acl"
	"github.com/stormdav/davcore/internal/directory"
	"github.com/stormdav/davcore/internal/model"
)

// CalendarACLChecker implements copymove.ACLChecker (and, for the same
// reason, serves proppatch/precondition callers that need a rights check)
// over the teacher's LDAP-sourced acl.Provider. It is constructed fresh
// per request: Caller is the authenticated principal performing the copy
// or move, and rights are always evaluated as "what can Caller do to this
// document", regardless of which account's namespace the document lives
// in — exactly how the teacher's handlers already call acl.Provider today,
// just routed through model.Rights instead of being inlined per-handler.
type CalendarACLChecker struct {
	Provider acl.Provider
	Caller   *directory.User
	CallerID uint32
	Docs     *documentRegistry
}

// IsMember reports whether accountID names the caller's own account: a
// principal always has full rights within its own namespace, matching how
// the teacher's handlers skip the LDAP ACL lookup entirely for a user
// acting on their own calendars.
func (c *CalendarACLChecker) IsMember(accountID uint32) bool {
	return accountID == c.CallerID
}

// HasRight resolves documentID back to the calendar it belongs to (an
// event's rights are governed by its containing calendar's ACL grants,
// there being no per-event ACL in the LDAP schema) and asks the provider
// for the caller's effective privileges on that calendar.
func (c *CalendarACLChecker) HasRight(ctx context.Context, accountID, documentID uint32, right model.Rights) bool {
	ref, ok := c.Docs.lookup(documentID)
	if !ok {
		return false
	}
	calendarID := ref.storageID
	if ref.kind == docKindEvent {
		calendarID = ref.calendarID
	}

	effective, err := c.Provider.Effective(ctx, c.Caller, calendarID)
	if err != nil {
		return false
	}
	return effective.HasRight(right)
}
