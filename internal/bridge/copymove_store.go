package bridge

import (
	"context"
	"fmt"

	"github.com/stormdav/davcore/internal/model"
	"github.com/stormdav/davcore/internal/storage"
	"github.com/stormdav/davcore/pkg/ical"
)

// CalendarCopyMoveStore implements copymove.Store for the CalendarEvent
// collection: documents are calendar objects, and a document's parent is
// the calendar (identified by its document id) the object lives under.
// Whole-calendar copy/move is out of scope — the engine is only ever
// driven with model.CollectionCalendarEvent, so GetNode/PutNode never see
// a container-kind document id.
type CalendarCopyMoveStore struct {
	store      storage.Store
	accounts   *accountRegistry
	docs       *documentRegistry
	hierarchy  *CalendarHierarchyStore
	quotaBytes uint64 // 0 disables quota enforcement
}

// NewCalendarCopyMoveStore builds a copymove.Store over the teacher's
// storage.Store, sharing the bridge's account/document registries and
// hierarchy store so a write here invalidates the same cached snapshot
// the hierarchy cache reads from.
func NewCalendarCopyMoveStore(store storage.Store, accounts *accountRegistry, docs *documentRegistry, hier *CalendarHierarchyStore, quotaBytes uint64) *CalendarCopyMoveStore {
	return &CalendarCopyMoveStore{store: store, accounts: accounts, docs: docs, hierarchy: hier, quotaBytes: quotaBytes}
}

func (s *CalendarCopyMoveStore) GetNode(ctx context.Context, accountID, documentID uint32) (*model.DavResource, []byte, error) {
	ref, ok := s.docs.lookup(documentID)
	if !ok || ref.kind != docKindEvent {
		return nil, nil, fmt.Errorf("bridge: document %d is not a calendar event", documentID)
	}
	obj, err := s.store.GetObject(ctx, ref.calendarID, ref.storageID)
	if err != nil {
		return nil, nil, err
	}
	calDocID := s.docs.register(docKindCalendar, ref.calendarID, "", "")
	res := &model.DavResource{
		DocumentID: documentID,
		Name:       obj.UID,
		ParentID:   model.EncodeParentID(calDocID, true),
		Size:       uint64(len(obj.Data)),
	}
	return res, []byte(obj.Data), nil
}

// PutNode writes documentID's payload under the calendar named by
// decoding parentID, creating a new object row on first write (a document
// id the registry has never bound to a storage uid) and upserting in
// place otherwise (rename, same-calendar property change, or a move that
// keeps the same account).
func (s *CalendarCopyMoveStore) PutNode(ctx context.Context, accountID, documentID, parentID uint32, name string, payload []byte) error {
	if parentID == 0 {
		return fmt.Errorf("bridge: calendar event %d requires a parent calendar", documentID)
	}
	calDocID := parentID - 1
	calRef, ok := s.docs.lookup(calDocID)
	if !ok || calRef.kind != docKindCalendar {
		return fmt.Errorf("bridge: parent %d is not a known calendar", calDocID)
	}
	calendarID := calRef.storageID

	ref, known := s.docs.lookup(documentID)
	uid := name
	if known && ref.kind == docKindEvent {
		uid = ref.storageID
	}

	obj := &storage.Object{
		CalendarID: calendarID,
		UID:        uid,
		Data:       string(payload),
	}
	if events, err := ical.ParseCalendar(payload); err == nil && len(events) > 0 {
		ev := events[0]
		obj.Component = "VEVENT"
		if !ev.Start.IsZero() {
			start := ev.Start
			obj.StartAt = &start
		}
		if !ev.End.IsZero() {
			end := ev.End
			obj.EndAt = &end
		}
	}
	if err := s.store.PutObject(ctx, obj); err != nil {
		return err
	}
	s.docs.rename(documentID, uid, calendarID)
	if _, err := s.store.NewCTag(ctx, calendarID); err != nil {
		return err
	}
	s.hierarchy.Invalidate(accountID)
	return nil
}

func (s *CalendarCopyMoveStore) DeleteNode(ctx context.Context, accountID, documentID uint32) error {
	ref, ok := s.docs.lookup(documentID)
	if !ok || ref.kind != docKindEvent {
		return fmt.Errorf("bridge: document %d is not a calendar event", documentID)
	}
	obj, err := s.store.GetObject(ctx, ref.calendarID, ref.storageID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteObject(ctx, ref.calendarID, ref.storageID, obj.ETag); err != nil {
		return err
	}
	s.docs.forget(documentID)
	if _, err := s.store.NewCTag(ctx, ref.calendarID); err != nil {
		return err
	}
	s.hierarchy.Invalidate(accountID)
	return nil
}

// AssignDocumentIDs hands out fresh document ids for a cross-account copy;
// the storage-side uid for each is bound lazily by the first PutNode call
// that uses it (see PutNode's "known" branch above).
func (s *CalendarCopyMoveStore) AssignDocumentIDs(ctx context.Context, accountID uint32, count uint64) (uint32, error) {
	return s.docs.allocate(count), nil
}

// HasAvailableQuota reports a fixed per-account byte budget when one is
// configured; 0 means unenforced, matching the teacher's behavior of not
// tracking per-user storage quotas anywhere in its current storage layer.
func (s *CalendarCopyMoveStore) HasAvailableQuota(ctx context.Context, accountID uint32, additionalBytes uint64) error {
	if s.quotaBytes == 0 {
		return nil
	}
	username, ok := s.accounts.Name(accountID)
	if !ok {
		return nil
	}
	calendars, err := s.store.ListCalendarsByOwnerUser(ctx, username)
	if err != nil {
		return err
	}
	var used uint64
	for _, cal := range calendars {
		objects, err := s.store.ListObjects(ctx, cal.ID, nil, nil)
		if err != nil {
			return err
		}
		for _, obj := range objects {
			used += uint64(len(obj.Data))
		}
	}
	if used+additionalBytes > s.quotaBytes {
		return fmt.Errorf("bridge: quota exceeded for account %d", accountID)
	}
	return nil
}
