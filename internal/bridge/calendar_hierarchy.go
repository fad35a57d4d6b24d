package bridge

import (
	"context"
	"sync"

	"github.com/stormdav/davcore/internal/hierarchy"
	"github.com/stormdav/davcore/internal/model"
	"github.com/stormdav/davcore/internal/storage"
)

// CalendarHierarchyStore is the production hierarchy.Store implementation
// for the Calendar/CalendarEvent collection pair: it flattens the
// teacher's per-user calendar list plus each calendar's object list into
// the single, document-id-keyed snapshot the hierarchy cache expects,
// mirroring how DavHierarchy::fetch_dav_resources flattens a store's
// native listing calls in the original groupware crate.
type CalendarHierarchyStore struct {
	store    storage.Store
	accounts *accountRegistry
	docs     *documentRegistry

	mu      sync.Mutex
	changes chan hierarchy.Invalidation
}

// NewCalendarHierarchyStore builds a hierarchy store over the teacher's
// storage.Store, sharing accounts/docs with the rest of the bridge so that
// document and account ids stay consistent across the hierarchy cache, the
// ACL checker, and the copy/move and proppatch stores.
func NewCalendarHierarchyStore(store storage.Store, accounts *accountRegistry, docs *documentRegistry) *CalendarHierarchyStore {
	return &CalendarHierarchyStore{
		store:    store,
		accounts: accounts,
		docs:     docs,
		changes:  make(chan hierarchy.Invalidation, 16),
	}
}

// Changes implements hierarchy.Store.
func (b *CalendarHierarchyStore) Changes() <-chan hierarchy.Invalidation { return b.changes }

// Invalidate pushes an invalidation signal for accountID's calendar
// snapshot, called by the copymove/proppatch stores after a write so the
// next hierarchy.Snapshot call re-fetches from storage rather than serving
// a stale in-memory view.
func (b *CalendarHierarchyStore) Invalidate(accountID uint32) {
	select {
	case b.changes <- hierarchy.Invalidation{AccountID: accountID, Collection: model.CollectionCalendar}:
	default:
		// Slot is already marked dirty or the listener hasn't drained yet;
		// either way the next Snapshot call will see stale data refetched
		// once the pending invalidation is processed.
	}
}

// ListResources implements hierarchy.Store for model.CollectionCalendar:
// it lists every calendar the account owns, then every object inside each,
// and returns them as one flat slice of DavResource so the cache's single
// snapshot spans both the container and item levels of the collection.
func (b *CalendarHierarchyStore) ListResources(ctx context.Context, accountID uint32, collection model.Collection) ([]*model.DavResource, error) {
	if collection.ContainerPeer() != model.CollectionCalendar {
		return nil, nil
	}

	username, ok := b.accounts.Name(accountID)
	if !ok {
		return nil, nil
	}

	calendars, err := b.store.ListCalendarsByOwnerUser(ctx, username)
	if err != nil {
		return nil, err
	}

	var out []*model.DavResource
	for _, cal := range calendars {
		calDocID := b.docs.register(docKindCalendar, cal.ID, "", cal.URI)
		out = append(out, &model.DavResource{
			DocumentID: calDocID,
			Name:       cal.URI,
			ParentID:   model.EncodeParentID(0, false),
			Container:  true,
		})

		objects, err := b.store.ListObjects(ctx, cal.ID, nil, nil)
		if err != nil {
			return nil, err
		}
		for i, obj := range objects {
			objDocID := b.docs.register(docKindEvent, obj.UID, cal.ID, "")
			var tr *model.TimeRange
			if obj.StartAt != nil && obj.EndAt != nil {
				tr = &model.TimeRange{Start: obj.StartAt.Unix(), End: obj.EndAt.Unix()}
			}
			out = append(out, &model.DavResource{
				DocumentID:        objDocID,
				Name:              obj.UID,
				ParentID:          model.EncodeParentID(calDocID, true),
				Container:         false,
				HierarchySequence: uint64(i),
				Size:              uint64(len(obj.Data)),
				EventTimeRange:    tr,
			})
		}
	}
	return out, nil
}
