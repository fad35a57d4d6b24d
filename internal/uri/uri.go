// Package uri resolves request paths of the form
// /dav/{tag}/{account|_id}/{path...} into typed, account-scoped resource
// references, mirroring common/uri.rs's UriResource/DavUriResource.
package uri

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/stormdav/davcore/internal/model"
)

// AccountResolver looks up an account id by name, the Go analogue of the
// original's store().get_principal_id call.
type AccountResolver interface {
	ResolveAccountID(ctx context.Context, name string) (uint32, bool, error)
}

// AccessChecker reports whether the caller may access accountID's
// collection, the Go analogue of access_token.has_access.
type AccessChecker interface {
	HasAccess(ctx context.Context, accountID uint32, collection model.Collection) bool
}

// Error is a resolution failure carrying the HTTP status it maps to.
type Error struct {
	Status int
	Msg    string
}

func (e *Error) Error() string { return e.Msg }

// HTTPStatus satisfies daverr.StatusCarrier.
func (e *Error) HTTPStatus() int { return e.Status }

func statusErr(status int, msg string) error {
	return &Error{Status: status, Msg: msg}
}

// Unresolved is a request URI split into its collection, optional account
// id, and optional remaining path segment — before the account and, for
// item requests, the resource name, have been validated against the
// hierarchy. It borrows nothing; its fields are plain strings/ids copied
// out of the request path.
type Unresolved struct {
	Collection model.Collection
	AccountID  *uint32
	Resource   string // remaining path segment, "" if absent
}

// Owned is an Unresolved whose account id has been validated to be set,
// required before calling MapResource.
type Owned struct {
	Collection model.Collection
	AccountID  uint32
	Resource   string
}

// IntoOwned requires the account id to be present, turning a 404-shaped
// parse into a 403 when the client omitted the account segment entirely
// (e.g. a bare "/dav/cal/" PROPFIND with no principal named), mirroring
// into_owned_uri's error mapping.
func (u Unresolved) IntoOwned() (Owned, error) {
	if u.AccountID == nil {
		return Owned{}, statusErr(http.StatusForbidden, "uri: account id required")
	}
	return Owned{Collection: u.Collection, AccountID: *u.AccountID, Resource: u.Resource}, nil
}

// DocumentURI is a fully resolved reference: a collection, an account id,
// and a document id looked up from the hierarchy cache.
type DocumentURI struct {
	Collection model.Collection
	AccountID  uint32
	DocumentID uint32
}

// ResolveURI splits a request path of the form ".../dav/{tag}/{account}/{path...}"
// into its typed components, validating the collection tag and, if present,
// resolving the account segment (either "_<id>" or an escaped principal
// name) via resolver, then checking access via checker. The caller is the
// current principal's own name, used for the fast self-access path.
func ResolveURI(ctx context.Context, resolver AccountResolver, checker AccessChecker, requestPath, callerName string, callerID uint32) (Unresolved, error) {
	_, rest, found := strings.Cut(requestPath, "/dav/")
	if !found {
		return Unresolved{}, statusErr(http.StatusNotFound, "uri: missing /dav/ prefix")
	}

	rest = strings.Trim(rest, "/")
	parts := strings.SplitN(rest, "/", 3)
	var segs []string
	for _, p := range parts {
		if p != "" {
			segs = append(segs, p)
		}
	}
	if len(segs) == 0 {
		return Unresolved{}, statusErr(http.StatusNotFound, "uri: empty path")
	}

	collection, ok := model.ParseCollectionTag(segs[0])
	if !ok {
		return Unresolved{}, statusErr(http.StatusNotFound, "uri: unknown collection tag")
	}

	result := Unresolved{Collection: collection}
	if len(segs) < 2 {
		return result, nil
	}

	accountSeg := segs[1]
	var accountID uint32
	if idStr, isID := strings.CutPrefix(accountSeg, "_"); isID {
		id, err := strconv.ParseUint(idStr, 10, 32)
		if err != nil {
			return Unresolved{}, statusErr(http.StatusNotFound, "uri: invalid account id")
		}
		accountID = uint32(id)
	} else {
		name, err := url.PathUnescape(accountSeg)
		if err != nil {
			return Unresolved{}, statusErr(http.StatusNotFound, "uri: invalid account segment")
		}
		if name == callerName {
			accountID = callerID
		} else {
			id, ok, err := resolver.ResolveAccountID(ctx, name)
			if err != nil {
				return Unresolved{}, fmt.Errorf("uri: resolve account %q: %w", name, err)
			}
			if !ok {
				return Unresolved{}, statusErr(http.StatusNotFound, "uri: unknown account")
			}
			accountID = id
		}
	}

	if collection != model.CollectionPrincipal && !checker.HasAccess(ctx, accountID, collection) {
		return Unresolved{}, statusErr(http.StatusForbidden, "uri: access denied")
	}

	result.AccountID = &accountID
	if len(segs) >= 3 {
		result.Resource = segs[2]
	}
	return result, nil
}

// ResourceLookup is the subset of the hierarchy cache MapResource needs: a
// by-name lookup against a snapshot of an account's collection.
type ResourceLookup interface {
	ByName(name string) (*model.DavResource, bool)
}

// MapResource resolves an Owned reference's remaining path segment to a
// concrete document id via lookup, adjusting the collection from container
// to item type when the named resource is a leaf (an event inside a
// calendar, a card inside an address book) — mirroring map_uri_resource's
// is_container()/Calendar-vs-AddressBook branch. FileNode collections are
// left unchanged since FileNode is polymorphic over folder/file already.
func MapResource(owned Owned, lookup ResourceLookup) (DocumentURI, bool) {
	if owned.Resource == "" {
		return DocumentURI{}, false
	}
	res, ok := lookup.ByName(owned.Resource)
	if !ok {
		return DocumentURI{}, false
	}

	collection := owned.Collection
	if !res.IsContainer() && collection != model.CollectionFileNode {
		collection = collection.ItemPeer()
	}

	return DocumentURI{
		Collection: collection,
		AccountID:  owned.AccountID,
		DocumentID: res.DocumentID,
	}, true
}
