package model

// Account is a tenant-scoped namespace identified by a 32-bit id,
// resolvable from a name via the directory.
type Account struct {
	ID   uint32
	Name string
}

// TimeRange is an inclusive-start/exclusive-end (per caller's convention)
// pair of Unix timestamps, used both by calendar filters and by a
// resource's indexed event time range.
type TimeRange struct {
	Start int64
	End   int64
}

// Intersects reports whether either endpoint of r falls within the
// receiver's [Start, End] inclusive bounds, per the pre-filter semantics
// in spec.md §4.4.
func (r TimeRange) Intersects(other TimeRange) bool {
	inRange := func(v int64) bool { return v >= r.Start && v <= r.End }
	return inRange(other.Start) || inRange(other.End)
}

// DavResource is an entry in a hierarchy with a stable 32-bit document id.
//
// ParentID follows the parent-id encoding documented in spec.md §9:
// 0 is the synthetic root; an actual parent is stored as parentDocumentID+1
// so that the zero value distinguishes "no parent" from "parent id 0".
type DavResource struct {
	DocumentID        uint32
	Name              string // pathname segment relative to the parent
	ParentID          uint32 // 0 = root; otherwise parent_doc_id+1
	Container         bool
	HierarchySequence uint64 // depth/ordering key for top-down traversal
	Size              uint64
	EventTimeRange    *TimeRange // set only for calendar items
}

// IsContainer reports whether the resource is a container (folder,
// calendar, address book) rather than a leaf item.
func (r *DavResource) IsContainer() bool { return r.Container }

// ParentDocumentID decodes ParentID back to an optional document id.
func (r *DavResource) ParentDocumentID() (id uint32, ok bool) {
	if r.ParentID == 0 {
		return 0, false
	}
	return r.ParentID - 1, true
}

// EncodeParentID encodes a parent document id using the parent_id+1
// convention. Pass ok=false to encode "no parent" (the synthetic root).
func EncodeParentID(parentDocumentID uint32, ok bool) uint32 {
	if !ok {
		return 0
	}
	return parentDocumentID + 1
}
