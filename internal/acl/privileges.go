package acl

import "github.com/stormdav/davcore/internal/model"

type Priv uint32

const (
	PrivRead Priv = 1 << iota
	PrivWriteProps
	PrivWriteContent
	PrivBind
	PrivUnbind
	PrivAll = PrivRead | PrivWriteProps | PrivWriteContent | PrivBind | PrivUnbind
)

type Effective struct {
	Read                        bool
	WriteProps                  bool
	WriteContent                bool
	Bind                        bool
	Unbind                      bool
	Unlock                      bool
	ReadACL                     bool
	ReadCurrentUserPrivilegeSet bool
}

func (e Effective) CanRead() bool {
	return e.Read
}

func (e Effective) CanWrite() bool {
	return e.WriteProps || e.WriteContent
}

func (e Effective) CanCreate() bool {
	return e.Bind
}

func (e Effective) CanDelete() bool {
	return e.Unbind
}

func (e Effective) CanUnlock() bool {
	return e.Unlock
}

func (e Effective) CanReadACL() bool {
	return e.ReadACL
}

func (e Effective) CanReadCurrentUserPrivilegeSet() bool {
	return e.ReadCurrentUserPrivilegeSet || e.Read
}

func (e Effective) CanWriteACL() bool {
	return false
}

// HasRight reports whether e grants the named right, bridging spec.md's
// five named rights onto the LDAP-sourced Read/WriteProps/WriteContent/
// Bind/Unbind bitmask: Modify covers either write flag plus Bind (binding
// a new child counts as modifying the container), ReadItems/RemoveItems
// alias Read/Unbind since "list children"/"remove a child" are exactly
// what those flags already gate.
func (e Effective) HasRight(right model.Rights) bool {
	switch right {
	case model.RightRead:
		return e.Read
	case model.RightModify:
		return e.WriteProps || e.WriteContent || e.Bind
	case model.RightDelete:
		return e.Unbind
	case model.RightReadItems:
		return e.Read
	case model.RightRemoveItems:
		return e.Unbind
	default:
		return false
	}
}
