// Package copymove implements the COPY/MOVE request engine: same-account
// rename, cross-account insert+delete, container depth-filtered subtree
// copy/move with id remapping, quota enforcement, cycle prevention, and the
// overwrite-then-201-to-204 downgrade rule, mirroring file/copy_move.rs
// generalized from FileNode onto any container/item collection pair.
package copymove

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"github.com/stormdav/davcore/internal/hierarchy"
	"github.com/stormdav/davcore/internal/model"
)

// Store is the subset of the storage layer the Copy/Move engine needs.
type Store interface {
	GetNode(ctx context.Context, accountID uint32, documentID uint32) (*model.DavResource, []byte, error)
	PutNode(ctx context.Context, accountID uint32, documentID uint32, parentID uint32, name string, payload []byte) error
	DeleteNode(ctx context.Context, accountID uint32, documentID uint32) error
	AssignDocumentIDs(ctx context.Context, accountID uint32, count uint64) (uint32, error)
	HasAvailableQuota(ctx context.Context, accountID uint32, additionalBytes uint64) error
}

// ACLChecker reports whether the caller has right over a document in an
// account, used for the source/destination guard checks.
type ACLChecker interface {
	HasRight(ctx context.Context, accountID, documentID uint32, right model.Rights) bool
	IsMember(accountID uint32) bool
}

// Request is a parsed COPY/MOVE request.
type Request struct {
	SourceAccountID uint32
	SourceID        uint32
	DestAccountID   uint32
	DestParentID    uint32 // decoded (no +1 offset)
	DestHasParent   bool
	DestName        string
	Depth           model.Depth
	OverwriteFail   bool
	IsMove          bool
}

// Result is the outcome of Execute: the HTTP status to report and, when
// the request created a new resource by id remap, the destination id.
type Result struct {
	Status          int
	DestinationID   uint32
	DestinationETag string
}

// Error carries the HTTP status a guard failure maps to.
type Error struct {
	Status int
	Msg    string
}

func (e *Error) Error() string { return e.Msg }

// HTTPStatus satisfies daverr.StatusCarrier.
func (e *Error) HTTPStatus() int { return e.Status }

func fail(status int, format string, args ...any) error {
	return &Error{Status: status, Msg: fmt.Sprintf(format, args...)}
}

// Engine executes COPY/MOVE requests for one collection kind (typically
// FileNode; the same algorithm applies to any container/item pair sharing
// the hierarchy cache's DavResource shape).
type Engine struct {
	Store      Store
	Hierarchy  *hierarchy.Cache
	ACL        ACLChecker
	Collection model.Collection
}

// Execute runs the full guard/dispatch pipeline for one COPY/MOVE request.
func (e *Engine) Execute(ctx context.Context, req Request) (Result, error) {
	srcSnap, err := e.Hierarchy.Snapshot(ctx, req.SourceAccountID, e.Collection)
	if err != nil {
		return Result{}, err
	}
	srcRes, ok := srcSnap.ByID(req.SourceID).Get()
	if !ok {
		return Result{}, fail(http.StatusNotFound, "copymove: source not found")
	}

	if err := e.checkSourceACL(ctx, req, srcSnap, srcRes); err != nil {
		return Result{}, err
	}

	destSnap, err := e.Hierarchy.Snapshot(ctx, req.DestAccountID, e.Collection)
	if err != nil {
		return Result{}, err
	}

	existing, hasExisting := destSnap.ByName(req.DestName)
	sameAccount := req.SourceAccountID == req.DestAccountID
	if sameAccount && req.SourceID == destinationDocumentID(existing, hasExisting) {
		return Result{}, fail(http.StatusBadGateway, "copymove: source and destination are identical")
	}

	var deleteDestination *model.DavResource
	if hasExisting {
		if req.OverwriteFail {
			return Result{}, &Error{Status: http.StatusPreconditionFailed, Msg: "copymove: destination exists"}
		}
		deleteDestination = existing
	}

	if sameAccount && deleteDestination == nil {
		if srcRes.ParentID == model.EncodeParentID(req.DestParentID, req.DestHasParent) && req.IsMove {
			return e.rename(ctx, req, srcRes)
		}
	}

	if err := e.checkDestinationACL(ctx, req, deleteDestination); err != nil {
		return Result{}, err
	}

	if !req.IsMove || !sameAccount {
		subtree := srcSnap.Subtree(req.SourceID)
		var spaceNeeded uint64
		for _, r := range subtree {
			spaceNeeded += r.Size
		}
		spaceNeeded += srcRes.Size
		if err := e.Store.HasAvailableQuota(ctx, req.DestAccountID, spaceNeeded); err != nil {
			return Result{}, fail(http.StatusInsufficientStorage, "copymove: quota exceeded: %v", err)
		}
	}

	isOverwrite := deleteDestination != nil && (deleteDestination.IsContainer() || srcRes.IsContainer())
	if isOverwrite {
		if err := e.deleteSubtreeReverseOrder(ctx, req.DestAccountID, destSnap, deleteDestination.DocumentID); err != nil {
			return Result{}, err
		}
		deleteDestination = nil
	}

	var result Result
	switch {
	case srcRes.IsContainer() && req.IsMove:
		result, err = e.moveContainer(ctx, req, srcSnap, srcRes)
	case srcRes.IsContainer() && !req.IsMove:
		result, err = e.copyContainer(ctx, req, srcSnap, srcRes, false)
	case !srcRes.IsContainer() && req.IsMove:
		if deleteDestination != nil {
			result, err = e.overwriteAndDeleteItem(ctx, req, srcRes, deleteDestination)
		} else {
			result, err = e.moveItem(ctx, req, srcRes)
		}
	default:
		if deleteDestination != nil {
			result, err = e.overwriteItem(ctx, req, srcRes, deleteDestination)
		} else {
			result, err = e.copyItem(ctx, req, srcRes)
		}
	}
	if err != nil {
		return Result{}, err
	}

	if isOverwrite && result.Status == http.StatusCreated {
		result.Status = http.StatusNoContent
	}
	return result, nil
}

func destinationDocumentID(existing *model.DavResource, ok bool) uint32 {
	if !ok {
		return ^uint32(0)
	}
	return existing.DocumentID
}

func (e *Engine) checkSourceACL(ctx context.Context, req Request, snap *hierarchy.Snapshot, srcRes *model.DavResource) error {
	if e.ACL.IsMember(req.SourceAccountID) {
		return nil
	}
	required := model.RightRead
	if req.IsMove {
		required |= model.RightModify
	}
	for _, r := range append(snap.Subtree(req.SourceID), srcRes) {
		if !e.ACL.HasRight(ctx, req.SourceAccountID, r.DocumentID, required) {
			return fail(http.StatusForbidden, "copymove: access denied to source subtree")
		}
	}
	return nil
}

func (e *Engine) checkDestinationACL(ctx context.Context, req Request, deleteDestination *model.DavResource) error {
	if deleteDestination != nil {
		if !e.ACL.HasRight(ctx, req.DestAccountID, deleteDestination.DocumentID, model.RightDelete) {
			return fail(http.StatusForbidden, "copymove: access denied to overwritten destination")
		}
	}
	if req.DestHasParent {
		if !e.ACL.HasRight(ctx, req.DestAccountID, req.DestParentID, model.RightModify) {
			return fail(http.StatusForbidden, "copymove: access denied to destination parent")
		}
	} else if !e.ACL.IsMember(req.DestAccountID) {
		return fail(http.StatusForbidden, "copymove: access denied to destination account")
	}
	return nil
}

func (e *Engine) deleteSubtreeReverseOrder(ctx context.Context, accountID uint32, snap *hierarchy.Snapshot, documentID uint32) error {
	ids := append(snap.Subtree(documentID), &model.DavResource{DocumentID: documentID, HierarchySequence: ^uint64(0)})
	sort.Slice(ids, func(i, j int) bool { return ids[i].HierarchySequence > ids[j].HierarchySequence })
	for _, r := range ids {
		if err := e.Store.DeleteNode(ctx, accountID, r.DocumentID); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) rename(ctx context.Context, req Request, srcRes *model.DavResource) (Result, error) {
	_, payload, err := e.Store.GetNode(ctx, req.SourceAccountID, req.SourceID)
	if err != nil {
		return Result{}, err
	}
	if err := e.Store.PutNode(ctx, req.SourceAccountID, req.SourceID, srcRes.ParentID, req.DestName, payload); err != nil {
		return Result{}, err
	}
	return Result{Status: http.StatusCreated, DestinationID: req.SourceID}, nil
}

func (e *Engine) moveContainer(ctx context.Context, req Request, srcSnap *hierarchy.Snapshot, srcRes *model.DavResource) (Result, error) {
	if req.SourceAccountID != req.DestAccountID {
		return e.copyContainer(ctx, req, srcSnap, srcRes, true)
	}
	if req.DestHasParent && srcSnap.IsAncestorOf(req.SourceID, req.DestParentID) {
		return Result{}, fail(http.StatusBadGateway, "copymove: cannot move a container into its own subtree")
	}
	_, payload, err := e.Store.GetNode(ctx, req.SourceAccountID, req.SourceID)
	if err != nil {
		return Result{}, err
	}
	if err := e.Store.PutNode(ctx, req.SourceAccountID, req.SourceID,
		model.EncodeParentID(req.DestParentID, req.DestHasParent), req.DestName, payload); err != nil {
		return Result{}, err
	}
	return Result{Status: http.StatusCreated, DestinationID: req.SourceID}, nil
}

// copyContainer copies (or, when deleteSource is set, move-across-account
// relocates) a container subtree: top-down in hierarchy-sequence order, with
// a contiguous block of destination ids pre-allocated and an id remap table
// so children are re-parented to their copy's new id rather than the
// original's.
func (e *Engine) copyContainer(ctx context.Context, req Request, srcSnap *hierarchy.Snapshot, srcRes *model.DavResource, deleteSource bool) (Result, error) {
	if req.Depth == model.DepthZero {
		return e.copyItem(ctx, req, srcRes)
	}

	var subtree []*model.DavResource
	if req.Depth == model.DepthInfinity {
		subtree = srcSnap.Subtree(req.SourceID)
	} else {
		subtree = srcSnap.SubtreeWithDepth(req.SourceID, 1)
	}
	sort.Slice(subtree, func(i, j int) bool { return subtree[i].HierarchySequence < subtree[j].HierarchySequence })

	nextID, err := e.Store.AssignDocumentIDs(ctx, req.DestAccountID, uint64(len(subtree))+1)
	if err != nil {
		return Result{}, err
	}

	idMap := make(map[uint32]uint32, len(subtree)+1)
	rootNewID := nextID
	nextID++
	idMap[model.EncodeParentID(req.SourceID, true)] = model.EncodeParentID(rootNewID, true)

	if _, payload, err := e.Store.GetNode(ctx, req.SourceAccountID, req.SourceID); err == nil {
		if err := e.Store.PutNode(ctx, req.DestAccountID, rootNewID,
			model.EncodeParentID(req.DestParentID, req.DestHasParent), req.DestName, payload); err != nil {
			return Result{}, err
		}
	} else {
		return Result{}, err
	}

	for _, r := range subtree {
		_, payload, err := e.Store.GetNode(ctx, req.SourceAccountID, r.DocumentID)
		if err != nil {
			return Result{}, err
		}
		newID := nextID
		nextID++
		newParent, ok := idMap[r.ParentID]
		if !ok {
			newParent = model.EncodeParentID(rootNewID, true)
		}
		if err := e.Store.PutNode(ctx, req.DestAccountID, newID, newParent, r.Name, payload); err != nil {
			return Result{}, err
		}
		idMap[model.EncodeParentID(r.DocumentID, true)] = model.EncodeParentID(newID, true)
	}

	if deleteSource {
		all := append(append([]*model.DavResource(nil), subtree...), srcRes)
		sort.Slice(all, func(i, j int) bool { return all[i].HierarchySequence > all[j].HierarchySequence })
		for _, r := range all {
			if err := e.Store.DeleteNode(ctx, req.SourceAccountID, r.DocumentID); err != nil {
				return Result{}, err
			}
		}
	}

	return Result{Status: http.StatusCreated, DestinationID: rootNewID}, nil
}

func (e *Engine) moveItem(ctx context.Context, req Request, srcRes *model.DavResource) (Result, error) {
	if req.SourceAccountID == req.DestAccountID {
		_, payload, err := e.Store.GetNode(ctx, req.SourceAccountID, req.SourceID)
		if err != nil {
			return Result{}, err
		}
		if err := e.Store.PutNode(ctx, req.SourceAccountID, req.SourceID,
			model.EncodeParentID(req.DestParentID, req.DestHasParent), req.DestName, payload); err != nil {
			return Result{}, err
		}
		return Result{Status: http.StatusCreated, DestinationID: req.SourceID}, nil
	}
	return e.crossAccountItemCopy(ctx, req, srcRes, true)
}

func (e *Engine) copyItem(ctx context.Context, req Request, srcRes *model.DavResource) (Result, error) {
	return e.crossAccountItemCopy(ctx, req, srcRes, false)
}

func (e *Engine) crossAccountItemCopy(ctx context.Context, req Request, srcRes *model.DavResource, deleteSource bool) (Result, error) {
	_, payload, err := e.Store.GetNode(ctx, req.SourceAccountID, req.SourceID)
	if err != nil {
		return Result{}, err
	}
	newID, err := e.Store.AssignDocumentIDs(ctx, req.DestAccountID, 1)
	if err != nil {
		return Result{}, err
	}
	if err := e.Store.PutNode(ctx, req.DestAccountID, newID,
		model.EncodeParentID(req.DestParentID, req.DestHasParent), req.DestName, payload); err != nil {
		return Result{}, err
	}
	if deleteSource {
		if err := e.Store.DeleteNode(ctx, req.SourceAccountID, req.SourceID); err != nil {
			return Result{}, err
		}
	}
	return Result{Status: http.StatusCreated, DestinationID: newID}, nil
}

func (e *Engine) overwriteItem(ctx context.Context, req Request, srcRes *model.DavResource, existing *model.DavResource) (Result, error) {
	_, payload, err := e.Store.GetNode(ctx, req.SourceAccountID, req.SourceID)
	if err != nil {
		return Result{}, err
	}
	if err := e.Store.PutNode(ctx, req.DestAccountID, existing.DocumentID, existing.ParentID, existing.Name, payload); err != nil {
		return Result{}, err
	}
	return Result{Status: http.StatusNoContent, DestinationID: existing.DocumentID}, nil
}

func (e *Engine) overwriteAndDeleteItem(ctx context.Context, req Request, srcRes *model.DavResource, existing *model.DavResource) (Result, error) {
	result, err := e.overwriteItem(ctx, req, srcRes, existing)
	if err != nil {
		return Result{}, err
	}
	if err := e.Store.DeleteNode(ctx, req.SourceAccountID, req.SourceID); err != nil {
		return Result{}, err
	}
	return result, nil
}
