package model

import (
	"time"

	"github.com/stormdav/davcore/internal/deadprop"
)

// TimezoneKind distinguishes the three forms a calendar's time zone
// preference can take, per spec.md §3.
type TimezoneKind uint8

const (
	TimezoneDefault TimezoneKind = iota
	TimezoneIANA
	TimezoneCustom
)

// Timezone is a calendar's per-account time zone preference.
type Timezone struct {
	Kind TimezoneKind
	// IANA holds the zone name when Kind == TimezoneIANA.
	IANA string
	// Custom holds the raw VTIMEZONE payload when Kind == TimezoneCustom.
	Custom string
}

// ACLGrant is a (principal, rights-bitmask) pair attached to a container.
type ACLGrant struct {
	Principal string
	Rights    Rights
}

// Rights is the bitmask of named rights the ACL Evaluator checks.
type Rights uint32

const (
	RightRead Rights = 1 << iota
	RightModify
	RightDelete
	RightReadItems
	RightRemoveItems
)

// CalendarPreferences holds per-account display preferences for a shared
// calendar: each account sharing a calendar may set its own display name,
// description, and time zone without affecting other sharees.
type CalendarPreferences struct {
	Name        string
	Description *string
	TimeZone    Timezone
}

// Calendar is a container with per-account preferences, ACL grants, a dead
// property bag, and a created timestamp.
type Calendar struct {
	DocumentID  uint32
	AccountID   uint32
	Preferences map[uint32]*CalendarPreferences
	ACLs        []ACLGrant
	DeadProps   deadprop.Bag
	Created     time.Time
}

// PreferencesFor returns (creating if absent) the per-account preferences
// record for accountID, mirroring the original's preferences_mut(account_id).
func (c *Calendar) PreferencesFor(accountID uint32) *CalendarPreferences {
	if c.Preferences == nil {
		c.Preferences = make(map[uint32]*CalendarPreferences)
	}
	p, ok := c.Preferences[accountID]
	if !ok {
		p = &CalendarPreferences{}
		c.Preferences[accountID] = p
	}
	return p
}

// CalendarEvent is an item with an iCalendar payload.
type CalendarEvent struct {
	DocumentID  uint32
	ParentID    uint32
	ICalData    string
	DisplayName *string
	Created     time.Time
	Modified    time.Time
	DeadProps   deadprop.Bag
	Size        uint32
}

// AddressBook is the CardDAV container analogue of Calendar.
type AddressBook struct {
	DocumentID  uint32
	AccountID   uint32
	DisplayName string
	Description *string
	ACLs        []ACLGrant
	DeadProps   deadprop.Bag
	Created     time.Time
}

// ContactCard is the CardDAV item analogue of CalendarEvent.
type ContactCard struct {
	DocumentID  uint32
	ParentID    uint32
	VCardData   string
	DisplayName *string
	Created     time.Time
	Modified    time.Time
	DeadProps   deadprop.Bag
	Size        uint32
}

// FileNode is polymorphic: a folder when File is nil, a file when present.
type FileNode struct {
	DocumentID  uint32
	ParentID    uint32
	Name        string
	DisplayName *string
	File        *FileContent
	ACLs        []ACLGrant
	DeadProps   deadprop.Bag
	Created     time.Time
	Modified    time.Time
}

// FileContent holds the file-specific payload for a FileNode that is a
// file rather than a folder.
type FileContent struct {
	Bytes     []byte
	MediaType string
	Size      uint32
}

// IsContainer reports whether this FileNode is a folder.
func (f *FileNode) IsContainer() bool { return f.File == nil }
