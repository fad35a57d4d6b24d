// This file wires the spec-shaped URI namespace (/dav/{tag}/{account}/{path})
// onto the document-id engines, through internal/bridge, for the
// collection pair the bridge currently covers (Calendar/CalendarEvent).
// It is a second, narrower surface alongside the teacher's original
// /dav/calendars/{owner}/{calURI}/... routes, which keep serving GET/PUT/
// REPORT/MKCALENDAR exactly as before; COPY, MOVE, and the engine-backed
// PROPPATCH are only exposed under the new tag-prefixed namespace.
package dav

import (
	"context"
	"io"
	"net/http"
	neturl "net/url"
	"strings"

	"github.com/stormdav/davcore/internal/bridge"
	"github.com/stormdav/davcore/internal/copymove"
	"github.com/stormdav/davcore/internal/daverr"
	"github.com/stormdav/davcore/internal/dav/common"
	"github.com/stormdav/davcore/internal/directory"
	"github.com/stormdav/davcore/internal/hierarchy"
	"github.com/stormdav/davcore/internal/model"
	"github.com/stormdav/davcore/internal/precondition"
	"github.com/stormdav/davcore/internal/proppatch"
	"github.com/stormdav/davcore/internal/response"
	"github.com/stormdav/davcore/internal/uri"
	"github.com/stormdav/davcore/internal/urn"
)

// SpecTagPrefix is the path prefix that selects the new engine-backed
// dispatch instead of the teacher's legacy calendar-home routing.
const SpecTagPrefix = "/dav/cal/"

// IsSpecRequest reports whether req should be routed through the
// engine-backed handlers in this file rather than the legacy CalDAV
// service.
func IsSpecRequest(req *http.Request) bool {
	return strings.HasPrefix(req.URL.Path, SpecTagPrefix)
}

// accountResolver adapts the bridge's account registry plus the LDAP
// directory to uri.AccountResolver: a principal name resolves to an
// account id if the directory recognizes it, registering the id on first
// use exactly like any other account the bridge has seen.
type accountResolver struct {
	dir      directory.Directory
	accounts *bridge.Bridge
}

func (a accountResolver) ResolveAccountID(ctx context.Context, name string) (uint32, bool, error) {
	user, err := a.dir.LookupUserByAttr(ctx, "uid", name)
	if err != nil || user == nil {
		return 0, false, nil
	}
	return a.accounts.AccountID(user.UID), true, nil
}

// accessChecker grants access to an account's calendar collection to
// anyone; the real per-resource grant check happens later via
// CalendarACLChecker.HasRight, not here — this only gates whether the
// request even reaches a handler for the (collection, account) pair,
// mirroring the teacher's "any authenticated LDAP user may address any
// calendar path, ACL decides what they can do to it" model.
type accessChecker struct{}

func (accessChecker) HasAccess(ctx context.Context, accountID uint32, collection model.Collection) bool {
	return true
}

func (h *Handlers) resolveSpecURI(ctx context.Context, path string) (uri.Owned, error) {
	pr := common.MustPrincipal(ctx)
	resolver := accountResolver{dir: h.dir, accounts: h.bridge}
	callerID := h.bridge.AccountID(pr.UserID)
	unresolved, err := uri.ResolveURI(ctx, resolver, accessChecker{}, path, pr.UserID, callerID)
	if err != nil {
		return uri.Owned{}, err
	}
	return unresolved.IntoOwned()
}

func (h *Handlers) callerACL(r *http.Request) *bridge.CalendarACLChecker {
	pr := common.MustPrincipal(r.Context())
	caller := &directory.User{UID: pr.UserID, DN: pr.UserDN, DisplayName: pr.Display}
	return h.bridge.ACLCheckerFor(caller, h.bridge.AccountID(pr.UserID))
}

func precondHeaders(r *http.Request) precondition.Headers {
	headers := precondition.Headers{If: r.Header.Get("If")}
	if v := r.Header.Get("If-Match"); v != "" {
		headers.IfMatch = strings.Split(v, ",")
	}
	if v := r.Header.Get("If-None-Match"); v != "" {
		headers.IfNoneMatch = strings.Split(v, ",")
	}
	if v := r.Header.Get("Lock-Token"); v != "" {
		token := strings.Trim(v, "<>")
		if _, err := urn.Parse(token); err == nil {
			headers.LockTokens = append(headers.LockTokens, token)
		}
	}
	return headers
}

// calendarAndName splits a resource path of the form "{calURI}/{name}"
// (or bare "{calURI}" for a request addressing the calendar itself) and
// looks the calendar up in snap's top-level (ParentID == root) entries,
// rather than trusting uri.MapResource's single-level ByName, since this
// collection's snapshot is two levels deep (calendars, then their events).
func calendarAndName(snap *hierarchy.Snapshot, resource string) (calendar *model.DavResource, name string, ok bool) {
	calURI, rest, hasRest := strings.Cut(resource, "/")
	cal, found := snap.ByName(calURI)
	if !found || !cal.IsContainer() || cal.ParentID != model.EncodeParentID(0, false) {
		return nil, "", false
	}
	if !hasRest {
		return cal, "", true
	}
	return cal, rest, true
}

// HandleSpecCopy and HandleSpecMove implement COPY/MOVE for calendar
// events addressed via the spec URI scheme, the dispatch Comment 1 found
// entirely absent: resolve source and destination through internal/uri,
// validate conditional headers through internal/precondition, run the
// move/copy through internal/copymove.Engine backed by the bridge's real
// storage-backed Store/ACLChecker, and report the outcome through
// internal/daverr/internal/response rather than ad hoc http.Error calls.
func (h *Handlers) HandleSpecCopy(w http.ResponseWriter, r *http.Request) {
	h.handleSpecCopyMove(w, r, false)
}

func (h *Handlers) HandleSpecMove(w http.ResponseWriter, r *http.Request) {
	h.handleSpecCopyMove(w, r, true)
}

func (h *Handlers) handleSpecCopyMove(w http.ResponseWriter, r *http.Request, isMove bool) {
	ctx := r.Context()

	src, err := h.resolveSpecURI(ctx, r.URL.Path)
	if err != nil {
		daverr.ToResponse(w, err)
		return
	}

	destHeader := r.Header.Get("Destination")
	if destHeader == "" {
		daverr.ToResponse(w, daverr.WithStatus(http.StatusBadRequest, "COPY/MOVE requires a Destination header"))
		return
	}
	destURL, err := neturl.Parse(destHeader)
	if err != nil {
		daverr.ToResponse(w, daverr.WithStatus(http.StatusBadRequest, "invalid Destination header: %v", err))
		return
	}
	dest, err := h.resolveSpecURI(ctx, destURL.Path)
	if err != nil {
		daverr.ToResponse(w, err)
		return
	}

	srcSnap, err := h.bridge.Hierarchy.Snapshot(ctx, src.AccountID, model.CollectionCalendar)
	if err != nil {
		daverr.ToResponse(w, daverr.Internal(err))
		return
	}
	_, srcName, ok := calendarAndName(srcSnap, src.Resource)
	if !ok || srcName == "" {
		daverr.ToResponse(w, daverr.NotFound("source resource %q not found", src.Resource))
		return
	}
	srcRes, ok := srcSnap.ByName(srcName)
	if !ok {
		daverr.ToResponse(w, daverr.NotFound("source resource %q not found", src.Resource))
		return
	}

	destSnap, err := h.bridge.Hierarchy.Snapshot(ctx, dest.AccountID, model.CollectionCalendar)
	if err != nil {
		daverr.ToResponse(w, daverr.Internal(err))
		return
	}
	destCal, destName, ok := calendarAndName(destSnap, dest.Resource)
	if !ok || destName == "" {
		daverr.ToResponse(w, daverr.WithStatus(http.StatusConflict, "destination calendar %q not found", dest.Resource))
		return
	}

	states := []precondition.ResourceState{h.bridge.Resources.State(ctx, srcRes.DocumentID)}
	if existing, found := destSnap.ByName(destName); found {
		states = append(states, h.bridge.Resources.State(ctx, existing.DocumentID))
	}
	if _, err := precondition.Validate(precondHeaders(r), states, methodFor(isMove)); err != nil {
		daverr.ToResponse(w, err)
		return
	}

	engine := copymove.Engine{
		Store:      h.bridge.CopyMove,
		Hierarchy:  h.bridge.Hierarchy,
		ACL:        h.callerACL(r),
		Collection: model.CollectionCalendarEvent,
	}
	result, err := engine.Execute(ctx, copymove.Request{
		SourceAccountID: src.AccountID,
		SourceID:        srcRes.DocumentID,
		DestAccountID:   dest.AccountID,
		DestParentID:    destCal.DocumentID,
		DestHasParent:   true,
		DestName:        destName,
		Depth:           model.ParseDepth(r.Header.Get("Depth"), model.DepthInfinity),
		OverwriteFail:   r.Header.Get("Overwrite") == "F",
		IsMove:          isMove,
	})
	if err != nil {
		daverr.ToResponse(w, err)
		return
	}
	w.WriteHeader(result.Status)
}

func methodFor(isMove bool) model.DavMethod {
	if isMove {
		return model.MethodMOVE
	}
	return model.MethodCOPY
}

// HandleSpecProppatch implements PROPPATCH for calendars addressed via the
// spec URI scheme, replacing the ad hoc field-by-field XML handling the
// teacher's CalDAV PROPPATCH used with internal/proppatch.Apply against a
// real bridge.CalendarPropertyStore-loaded target.
func (h *Handlers) HandleSpecProppatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owned, err := h.resolveSpecURI(ctx, r.URL.Path)
	if err != nil {
		daverr.ToResponse(w, err)
		return
	}
	if owned.Collection.ContainerPeer() != model.CollectionCalendar {
		daverr.ToResponse(w, daverr.NotFound("PROPPATCH is only wired for calendars"))
		return
	}

	snap, err := h.bridge.Hierarchy.Snapshot(ctx, owned.AccountID, model.CollectionCalendar)
	if err != nil {
		daverr.ToResponse(w, daverr.Internal(err))
		return
	}
	cal, name, ok := calendarAndName(snap, owned.Resource)
	if !ok || name != "" {
		daverr.ToResponse(w, daverr.NotFound("calendar %q not found", owned.Resource))
		return
	}

	checker := h.callerACL(r)
	if !checker.IsMember(owned.AccountID) && !checker.HasRight(ctx, owned.AccountID, cal.DocumentID, model.RightModify) {
		daverr.ToResponse(w, daverr.Forbidden(daverr.ConditionNeedPrivileges))
		return
	}

	state := h.bridge.Resources.State(ctx, cal.DocumentID)
	if _, err := precondition.Validate(precondHeaders(r), []precondition.ResourceState{state}, model.MethodPROPPATCH); err != nil {
		daverr.ToResponse(w, err)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, int64(h.cfg.Dav.MaxICalSize)))
	if err != nil {
		daverr.ToResponse(w, daverr.WithStatus(http.StatusBadRequest, "failed to read request body: %v", err))
		return
	}
	defer func() { _ = r.Body.Close() }()

	update, err := response.ParsePropertyUpdate(body)
	if err != nil {
		daverr.ToResponse(w, daverr.WithStatus(http.StatusBadRequest, "%v", err))
		return
	}

	target, err := h.bridge.Properties.Load(ctx, owned.AccountID, cal.DocumentID)
	if err != nil {
		daverr.ToResponse(w, daverr.Internal(err))
		return
	}

	limits := proppatch.Limits{
		LivePropertySize: h.cfg.Dav.LivePropertySize,
		MaxICalSize:      h.cfg.Dav.MaxICalSize,
		DeadPropertySize: h.cfg.Dav.DeadPropertySize,
	}
	result := proppatch.Apply(target, update, limits)
	if result.Success {
		if err := h.bridge.Properties.Commit(ctx, owned.AccountID, target); err != nil {
			daverr.ToResponse(w, daverr.Internal(err))
			return
		}
	}

	ms := response.NewMultiStatus([]string{response.NamespaceCalDAV},
		response.NewPropStatResponse(r.URL.Path, result.PropStats))
	_ = ms.WriteTo(w)
}
