// Package proppatch implements the ordered property-mutation state machine
// behind PROPPATCH: apply <set> and <remove> instructions against a
// resource's live and dead properties, honoring RFC 4918 §9.2's set/remove
// ordering and returning an all-or-nothing commit decision, mirroring
// calendar/proppatch.rs generalized to every container/item pair.
package proppatch

import (
	"github.com/stormdav/davcore/internal/deadprop"
	"github.com/stormdav/davcore/internal/model"
)

// PatchTarget is the tagged union of resource kinds PROPPATCH can mutate.
// Each variant exposes the handful of live-property slots its type owns
// plus its shared dead-property bag, so Apply can stay generic over kind.
type PatchTarget interface {
	isPatchTarget()
	DeadProperties() *deadprop.Bag
}

// CalendarTarget patches a Calendar container for one account's view of it.
type CalendarTarget struct {
	Calendar  *model.Calendar
	AccountID uint32
}

func (*CalendarTarget) isPatchTarget() {}

// DeadProperties returns the calendar's dead-property bag.
func (t *CalendarTarget) DeadProperties() *deadprop.Bag { return &t.Calendar.DeadProps }

// CalendarEventTarget patches a CalendarEvent item.
type CalendarEventTarget struct {
	Event *model.CalendarEvent
}

func (*CalendarEventTarget) isPatchTarget() {}

// DeadProperties returns the event's dead-property bag.
func (t *CalendarEventTarget) DeadProperties() *deadprop.Bag { return &t.Event.DeadProps }

// AddressBookTarget patches an AddressBook container.
type AddressBookTarget struct {
	AddressBook *model.AddressBook
}

func (*AddressBookTarget) isPatchTarget() {}

// DeadProperties returns the address book's dead-property bag.
func (t *AddressBookTarget) DeadProperties() *deadprop.Bag { return &t.AddressBook.DeadProps }

// ContactCardTarget patches a ContactCard item.
type ContactCardTarget struct {
	Card *model.ContactCard
}

func (*ContactCardTarget) isPatchTarget() {}

// DeadProperties returns the contact card's dead-property bag.
func (t *ContactCardTarget) DeadProperties() *deadprop.Bag { return &t.Card.DeadProps }

// FileNodeTarget patches a FileNode (folder or file).
type FileNodeTarget struct {
	Node *model.FileNode
}

func (*FileNodeTarget) isPatchTarget() {}

// DeadProperties returns the file node's dead-property bag.
func (t *FileNodeTarget) DeadProperties() *deadprop.Bag { return &t.Node.DeadProps }
