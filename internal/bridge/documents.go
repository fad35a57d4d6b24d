package bridge

import (
	"sync"
)

// docKind distinguishes which storage-side string id a document id maps
// back to, since calendars and events share one document-id space per
// account in the hierarchy model.
type docKind uint8

const (
	docKindCalendar docKind = iota
	docKindEvent
)

type docRef struct {
	kind       docKind
	storageID  string // storage.Calendar.ID or storage.Object.UID
	calendarID string // owning calendar's storage id; set for docKindEvent
	uri        string // storage.Calendar.URI, the key GetCalendarByURI needs; set for docKindCalendar
}

// documentRegistry is the reverse index from a uint32 document id back to
// the storage-side string id it stands in for, since model.DavResource
// and the copymove/proppatch Store interfaces are document-id keyed while
// the teacher's storage layer is string-UUID keyed.
//
// Ids for existing storage rows are derived deterministically by hashing
// the storage UUID (stable across restarts, no new id table required).
// Ids for newly created documents (AssignDocumentIDs, used by copymove
// when inserting into a destination account) are handed out from a
// counter with the high bit set, a disjoint range from the 31-bit hash
// space so the two schemes never collide.
type documentRegistry struct {
	mu      sync.RWMutex
	byDocID map[uint32]docRef
	byKey   map[string]uint32 // kind+storageID -> docID
	nextNew uint32
}

func newDocumentRegistry() *documentRegistry {
	return &documentRegistry{
		byDocID: map[uint32]docRef{},
		byKey:   map[string]uint32{},
		nextNew: 1<<31 + 1,
	}
}

func keyFor(kind docKind, storageID string) string {
	if kind == docKindCalendar {
		return "c:" + storageID
	}
	return "e:" + storageID
}

// register assigns (or returns the existing) document id for a known
// storage row, deriving it from a 31-bit hash so it never collides with
// the high-bit-set ids AssignDocumentIDs hands out. uri is only meaningful
// for docKindCalendar (GetCalendarByURI's lookup key); pass "" for events.
func (d *documentRegistry) register(kind docKind, storageID, calendarID, uri string) uint32 {
	key := keyFor(kind, storageID)
	d.mu.RLock()
	if id, ok := d.byKey[key]; ok {
		d.mu.RUnlock()
		return id
	}
	d.mu.RUnlock()

	id := hashString(key) &^ (1 << 31)
	if id == 0 {
		id = 1
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.byKey[key]; ok {
		return existing
	}
	d.byKey[key] = id
	d.byDocID[id] = docRef{kind: kind, storageID: storageID, calendarID: calendarID, uri: uri}
	return id
}

func (d *documentRegistry) lookup(id uint32) (docRef, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ref, ok := d.byDocID[id]
	return ref, ok
}

// rename updates the storage id a document id maps to without changing
// the document id itself — used when PutNode writes an event under a new
// storage-side UID (e.g. on cross-calendar move where the destination
// store issues its own uid).
func (d *documentRegistry) rename(id uint32, storageID, calendarID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ref, ok := d.byDocID[id]
	if !ok {
		ref = docRef{kind: docKindEvent}
	}
	delete(d.byKey, keyFor(ref.kind, ref.storageID))
	ref.storageID = storageID
	ref.calendarID = calendarID
	d.byDocID[id] = ref
	d.byKey[keyFor(ref.kind, storageID)] = id
}

// allocate hands out count fresh document ids for newly created
// resources, analogous to the document-id store's AssignDocumentIDs.
func (d *documentRegistry) allocate(count uint64) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	start := d.nextNew
	d.nextNew += uint32(count)
	return start
}

// forget removes a document id's mapping after the underlying storage row
// has been deleted.
func (d *documentRegistry) forget(id uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ref, ok := d.byDocID[id]; ok {
		delete(d.byKey, keyFor(ref.kind, ref.storageID))
		delete(d.byDocID, id)
	}
}
