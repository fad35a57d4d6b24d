// Package bridge adapts the teacher's string-keyed LDAP/calendar storage
// and ACL layers onto the document-id engines (internal/hierarchy,
// internal/copymove, internal/proppatch, internal/precondition): it is the
// concrete implementation plugged into those engines' interfaces by
// internal/dav's dispatcher, as opposed to a test fake.
//
// Scope: the bridge currently covers the Calendar/CalendarEvent
// collection pair only, since the teacher's storage layer has no generic
// file store for internal/model's FileNode collection and no addressbook
// sharing/ACL model comparable to the calendar one. AddressBook/ContactCard
// wiring is a straightforward extension of the same pattern (see
// calendar_hierarchy.go, copymove_store.go) and is left for a follow-up.
package bridge

import (
	"github.com/stormdav/davcore/internal/acl"
	"github.com/stormdav/davcore/internal/directory"
	"github.com/stormdav/davcore/internal/hierarchy"
	"github.com/stormdav/davcore/internal/storage"
)

// Bridge owns the account/document id registries and the set of
// production adapters built over them. One Bridge is constructed per
// server process and shared by every request's dispatcher.
type Bridge struct {
	Accounts *accountRegistry
	Docs     *documentRegistry

	Calendars  *CalendarHierarchyStore
	CopyMove   *CalendarCopyMoveStore
	Properties *CalendarPropertyStore
	Resources  *ResourceStateStore
	Hierarchy  *hierarchy.Cache

	aclProvider acl.Provider
}

// Config bounds the resources the bridge enforces; zero values disable
// the corresponding check.
type Config struct {
	QuotaBytesPerAccount uint64
}

// New wires a Bridge over store (the teacher's calendar/object storage)
// and provider (the teacher's LDAP ACL evaluator).
func New(store storage.Store, provider acl.Provider, cfg Config) *Bridge {
	accounts := newAccountRegistry()
	docs := newDocumentRegistry()
	calHier := NewCalendarHierarchyStore(store, accounts, docs)

	b := &Bridge{
		Accounts:    accounts,
		Docs:        docs,
		Calendars:   calHier,
		CopyMove:    NewCalendarCopyMoveStore(store, accounts, docs, calHier, cfg.QuotaBytesPerAccount),
		Properties:  NewCalendarPropertyStore(store, docs, calHier),
		Resources:   NewResourceStateStore(store, docs),
		Hierarchy:   hierarchy.New(calHier),
		aclProvider: provider,
	}
	return b
}

// ACLCheckerFor returns a copymove.ACLChecker scoped to one request's
// authenticated caller, per CalendarACLChecker's doc comment.
func (b *Bridge) ACLCheckerFor(caller *directory.User, callerAccountID uint32) *CalendarACLChecker {
	return &CalendarACLChecker{Provider: b.aclProvider, Caller: caller, CallerID: callerAccountID, Docs: b.Docs}
}

// AccountID resolves (registering on first use) the uint32 account id for
// a directory username.
func (b *Bridge) AccountID(username string) uint32 {
	return b.Accounts.ID(username)
}
