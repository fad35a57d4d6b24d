// Package hierarchy caches an account's resource tree so that request
// dispatch can resolve names, list children, and walk subtrees without a
// store round trip per call within a single request, mirroring the
// groupware crate's DavHierarchy trait (fetch_dav_resources / paths).
package hierarchy

import (
	"context"
	"sort"
	"sync/atomic"

	"github.com/samber/mo"

	"github.com/stormdav/davcore/internal/model"
)

// Invalidation signals that an account's collection snapshot is stale and
// must be refetched on next use.
type Invalidation struct {
	AccountID  uint32
	Collection model.Collection
}

// Store is the subset of the storage layer the cache needs to populate a
// snapshot and to learn about invalidations.
type Store interface {
	ListResources(ctx context.Context, accountID uint32, collection model.Collection) ([]*model.DavResource, error)
	Changes() <-chan Invalidation
}

// Snapshot is an immutable, point-in-time view of one account's resources
// within one collection, indexed for name and id lookup.
type Snapshot struct {
	resources []*model.DavResource
	byName    map[string]*model.DavResource
	byID      map[uint32]*model.DavResource
	children  map[uint32][]*model.DavResource // keyed by encoded ParentID
}

func newSnapshot(resources []*model.DavResource) *Snapshot {
	s := &Snapshot{
		resources: resources,
		byName:    make(map[string]*model.DavResource, len(resources)),
		byID:      make(map[uint32]*model.DavResource, len(resources)),
		children:  make(map[uint32][]*model.DavResource),
	}
	for _, r := range resources {
		s.byName[r.Name] = r
		s.byID[r.DocumentID] = r
		s.children[r.ParentID] = append(s.children[r.ParentID], r)
	}
	for _, kids := range s.children {
		sort.Slice(kids, func(i, j int) bool { return kids[i].HierarchySequence < kids[j].HierarchySequence })
	}
	return s
}

// ByName looks up a resource by its pathname segment.
func (s *Snapshot) ByName(name string) (*model.DavResource, bool) {
	r, ok := s.byName[name]
	return r, ok
}

// ByID looks up a resource by document id, returning mo.None if absent —
// callers pattern-match with IsPresent/MustGet rather than a second boolean.
func (s *Snapshot) ByID(id uint32) mo.Option[*model.DavResource] {
	if r, ok := s.byID[id]; ok {
		return mo.Some(r)
	}
	return mo.None[*model.DavResource]()
}

// Children returns the direct children of the container with the given
// document id, in hierarchy-sequence order.
func (s *Snapshot) Children(documentID uint32) []*model.DavResource {
	return s.children[model.EncodeParentID(documentID, true)]
}

// Subtree returns every descendant of documentID (not including itself),
// gathered breadth-first so siblings keep their relative order.
func (s *Snapshot) Subtree(documentID uint32) []*model.DavResource {
	return s.SubtreeWithDepth(documentID, -1)
}

// SubtreeWithDepth returns descendants of documentID down to maxDepth
// levels (maxDepth < 0 means unlimited, the WebDAV "infinity" depth).
func (s *Snapshot) SubtreeWithDepth(documentID uint32, maxDepth int) []*model.DavResource {
	var out []*model.DavResource
	frontier := []uint32{documentID}
	depth := 0
	for len(frontier) > 0 && (maxDepth < 0 || depth < maxDepth) {
		var next []uint32
		for _, id := range frontier {
			for _, child := range s.Children(id) {
				out = append(out, child)
				if child.IsContainer() {
					next = append(next, child.DocumentID)
				}
			}
		}
		frontier = next
		depth++
	}
	return out
}

// IsAncestorOf reports whether candidateAncestor is documentID itself or an
// ancestor of it, walking up via ParentID — used by the Copy/Move engine's
// cycle check before moving a container into one of its own descendants.
func (s *Snapshot) IsAncestorOf(candidateAncestor, documentID uint32) bool {
	cur := documentID
	for {
		if cur == candidateAncestor {
			return true
		}
		r, ok := s.byID[cur]
		if !ok {
			return false
		}
		parentID, ok := r.ParentDocumentID()
		if !ok {
			return false
		}
		cur = parentID
	}
}

// FormatResource renders the full slash-joined path from the collection
// root down to documentID, used to build response hrefs.
func (s *Snapshot) FormatResource(documentID uint32) (string, bool) {
	r, ok := s.byID[documentID]
	if !ok {
		return "", false
	}
	segs := []string{r.Name}
	for {
		parentID, ok := r.ParentDocumentID()
		if !ok {
			break
		}
		parent, ok := s.byID[parentID]
		if !ok {
			break
		}
		segs = append([]string{parent.Name}, segs...)
		r = parent
	}
	path := ""
	for i, seg := range segs {
		if i > 0 {
			path += "/"
		}
		path += seg
	}
	return path, true
}

type cacheKey struct {
	accountID  uint32
	collection model.Collection
}

// Cache holds one live snapshot per (account, collection) pair, refreshed
// lazily and dropped on invalidation signals from the store's change feed.
type Cache struct {
	store Store
	slots map[cacheKey]*atomic.Pointer[Snapshot]
}

// New constructs a Cache over store and starts the invalidation listener.
func New(store Store) *Cache {
	c := &Cache{store: store, slots: make(map[cacheKey]*atomic.Pointer[Snapshot])}
	go c.listenInvalidations()
	return c
}

func (c *Cache) listenInvalidations() {
	for inv := range c.store.Changes() {
		if slot, ok := c.slots[cacheKey{inv.AccountID, inv.Collection}]; ok {
			slot.Store(nil)
		}
	}
}

func (c *Cache) slot(key cacheKey) *atomic.Pointer[Snapshot] {
	slot, ok := c.slots[key]
	if !ok {
		slot = &atomic.Pointer[Snapshot]{}
		c.slots[key] = slot
	}
	return slot
}

// Snapshot returns the cached snapshot for (accountID, collection),
// fetching and caching a fresh one from the store on a cache miss.
func (c *Cache) Snapshot(ctx context.Context, accountID uint32, collection model.Collection) (*Snapshot, error) {
	key := cacheKey{accountID, collection.ContainerPeer()}
	slot := c.slot(key)
	if snap := slot.Load(); snap != nil {
		return snap, nil
	}

	resources, err := c.store.ListResources(ctx, accountID, key.collection)
	if err != nil {
		return nil, err
	}
	snap := newSnapshot(resources)
	slot.Store(snap)
	return snap, nil
}
