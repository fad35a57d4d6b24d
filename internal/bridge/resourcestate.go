package bridge

import (
	"context"

	"github.com/stormdav/davcore/internal/precondition"
	"github.com/stormdav/davcore/internal/storage"
)

// ResourceStateStore sources precondition.ResourceState for calendars and
// calendar events from the teacher's storage.Store. The teacher has no
// WebDAV lock persistence of its own, so Locked is always reported empty:
// If-Match/If-None-Match preconditions are fully enforced, but a LOCK
// request has nothing durable to check against beyond this process's
// memory until a lock store is added.
type ResourceStateStore struct {
	store storage.Store
	docs  *documentRegistry
}

func NewResourceStateStore(store storage.Store, docs *documentRegistry) *ResourceStateStore {
	return &ResourceStateStore{store: store, docs: docs}
}

// State returns the current ETag for documentID, or Exists=false if the
// document id is unknown or its backing row has been deleted.
func (s *ResourceStateStore) State(ctx context.Context, documentID uint32) precondition.ResourceState {
	ref, ok := s.docs.lookup(documentID)
	if !ok {
		return precondition.ResourceState{DocumentID: documentID, Exists: false}
	}

	switch ref.kind {
	case docKindCalendar:
		cal, err := s.store.GetCalendarByURI(ctx, ref.uri)
		if err != nil || cal == nil {
			return precondition.ResourceState{DocumentID: documentID, Exists: false}
		}
		return precondition.ResourceState{DocumentID: documentID, ETag: cal.CTag, Exists: true}
	case docKindEvent:
		obj, err := s.store.GetObject(ctx, ref.calendarID, ref.storageID)
		if err != nil || obj == nil {
			return precondition.ResourceState{DocumentID: documentID, Exists: false}
		}
		return precondition.ResourceState{DocumentID: documentID, ETag: obj.ETag, Exists: true}
	default:
		return precondition.ResourceState{DocumentID: documentID, Exists: false}
	}
}
