package copymove

import (
	"context"
	"net/http"
	"testing"

	"github.com/stormdav/davcore/internal/hierarchy"
	"github.com/stormdav/davcore/internal/model"
)

type fakeHierarchyStore struct {
	resources map[uint32][]*model.DavResource
	changes   chan hierarchy.Invalidation
}

func (s *fakeHierarchyStore) ListResources(_ context.Context, accountID uint32, _ model.Collection) ([]*model.DavResource, error) {
	return s.resources[accountID], nil
}

func (s *fakeHierarchyStore) Changes() <-chan hierarchy.Invalidation { return s.changes }

type fakeStore struct {
	nodes   map[uint32][]byte
	parents map[uint32]uint32
	names   map[uint32]string
	nextID  uint32
	deleted map[uint32]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{nodes: map[uint32][]byte{}, parents: map[uint32]uint32{}, names: map[uint32]string{}, deleted: map[uint32]bool{}}
}

func (s *fakeStore) GetNode(_ context.Context, _ uint32, documentID uint32) (*model.DavResource, []byte, error) {
	return &model.DavResource{DocumentID: documentID, Name: s.names[documentID], ParentID: s.parents[documentID]}, s.nodes[documentID], nil
}

func (s *fakeStore) PutNode(_ context.Context, _ uint32, documentID uint32, parentID uint32, name string, payload []byte) error {
	s.nodes[documentID] = payload
	s.parents[documentID] = parentID
	s.names[documentID] = name
	return nil
}

func (s *fakeStore) DeleteNode(_ context.Context, _ uint32, documentID uint32) error {
	s.deleted[documentID] = true
	return nil
}

func (s *fakeStore) AssignDocumentIDs(_ context.Context, _ uint32, count uint64) (uint32, error) {
	start := s.nextID
	s.nextID += uint32(count)
	return start, nil
}

func (s *fakeStore) HasAvailableQuota(context.Context, uint32, uint64) error { return nil }

type allowAll struct{}

func (allowAll) HasRight(context.Context, uint32, uint32, model.Rights) bool { return true }
func (allowAll) IsMember(uint32) bool                                       { return true }

func newTestEngine(t *testing.T, resources []*model.DavResource) (*Engine, *fakeStore) {
	t.Helper()
	hstore := &fakeHierarchyStore{resources: map[uint32][]*model.DavResource{1: resources}, changes: make(chan hierarchy.Invalidation)}
	store := newFakeStore()
	return &Engine{
		Store:      store,
		Hierarchy:  hierarchy.New(hstore),
		ACL:        allowAll{},
		Collection: model.CollectionFileNode,
	}, store
}

func TestRenameFastPath(t *testing.T) {
	folder := &model.DavResource{DocumentID: 1, Name: "docs", ParentID: 0, Container: true}
	file := &model.DavResource{DocumentID: 2, Name: "a.txt", ParentID: model.EncodeParentID(1, true)}
	engine, store := newTestEngine(t, []*model.DavResource{folder, file})
	store.names[2] = "a.txt"
	store.parents[2] = model.EncodeParentID(1, true)
	store.nodes[2] = []byte("hello")

	result, err := engine.Execute(context.Background(), Request{
		SourceAccountID: 1,
		SourceID:        2,
		DestAccountID:   1,
		DestParentID:    1,
		DestHasParent:   true,
		DestName:        "b.txt",
		IsMove:          true,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Status != http.StatusCreated {
		t.Fatalf("status = %d, want %d", result.Status, http.StatusCreated)
	}
	if got := store.names[2]; got != "b.txt" {
		t.Fatalf("stored name = %q, want b.txt", got)
	}
}

func TestMoveContainerRefusesCycle(t *testing.T) {
	parent := &model.DavResource{DocumentID: 1, Name: "parent", ParentID: 0, Container: true}
	child := &model.DavResource{DocumentID: 2, Name: "child", ParentID: model.EncodeParentID(1, true), Container: true}
	engine, _ := newTestEngine(t, []*model.DavResource{parent, child})

	_, err := engine.Execute(context.Background(), Request{
		SourceAccountID: 1,
		SourceID:        1,
		DestAccountID:   1,
		DestParentID:    2,
		DestHasParent:   true,
		DestName:        "parent-renamed",
		IsMove:          true,
	})
	if err == nil {
		t.Fatal("expected an error moving a container into its own subtree")
	}
	if code := Code(err); code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", code, http.StatusBadGateway)
	}
}

func Code(err error) int {
	type statusCarrier interface{ HTTPStatus() int }
	if sc, ok := err.(statusCarrier); ok {
		return sc.HTTPStatus()
	}
	return 0
}
