// Package precondition validates the HTTP conditional-request headers
// (If-Match, If-None-Match, If, Lock-Token) against a resource's current
// state before a mutating DAV method is allowed to proceed.
package precondition

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/stormdav/davcore/internal/model"
)

// Headers carries the subset of request headers preconditions are
// evaluated against.
type Headers struct {
	IfMatch     []string
	IfNoneMatch []string
	If          string
	LockTokens  []string
}

// ResourceState is the current ETag and active lock tokens of one resource
// under test, supplied by the caller for each resource a request touches
// (the destination, and for COPY/MOVE also the source).
type ResourceState struct {
	DocumentID uint32
	ETag       string
	Locked     []string // currently held lock tokens, empty if unlocked
	Exists     bool
}

// LockToken is a lock token consumed or required by a request, extracted
// from the If header's tagged-list grammar or the Lock-Token header.
type LockToken struct {
	DocumentID uint32
	Token      string
}

// Error is a failed precondition, carrying the HTTP status to report.
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

// Validate checks headers against each of states and returns the lock
// tokens the request asserted (for methods, like UNLOCK, that need them),
// or an error naming the first precondition that failed.
//
// If-Match/If-None-Match are evaluated per RFC 7232 §3.1/3.2: "*" matches
// any existing resource; an explicit ETag list must contain (or, for
// If-None-Match, must not contain) the resource's current ETag. A resource
// with outstanding locks not named in If or Lock-Token fails with 423.
func Validate(headers Headers, states []ResourceState, method model.DavMethod) ([]LockToken, error) {
	for _, state := range states {
		if err := validateOne(headers, state); err != nil {
			return nil, err
		}
	}
	return extractLockTokens(headers, states), nil
}

func validateOne(headers Headers, state ResourceState) error {
	if len(headers.IfMatch) > 0 {
		if !matchesAny(headers.IfMatch, state.ETag, state.Exists) {
			return fail(http.StatusPreconditionFailed, "If-Match: no matching etag for resource %d", state.DocumentID)
		}
	}
	if len(headers.IfNoneMatch) > 0 {
		if matchesAny(headers.IfNoneMatch, state.ETag, state.Exists) {
			if len(headers.IfNoneMatch) == 1 && headers.IfNoneMatch[0] == "*" {
				return fail(http.StatusPreconditionFailed, "If-None-Match: resource %d already exists", state.DocumentID)
			}
			return fail(http.StatusPreconditionFailed, "If-None-Match: etag matched for resource %d", state.DocumentID)
		}
	}

	if len(state.Locked) == 0 {
		return nil
	}
	asserted := assertedTokens(headers)
	for _, held := range state.Locked {
		if !asserted[held] {
			return fail(http.StatusLocked, "resource %d is locked", state.DocumentID)
		}
	}
	return nil
}

func matchesAny(list []string, etag string, exists bool) bool {
	for _, candidate := range list {
		if candidate == "*" {
			if exists {
				return true
			}
			continue
		}
		if strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

func assertedTokens(headers Headers) map[string]bool {
	out := make(map[string]bool, len(headers.LockTokens))
	for _, t := range headers.LockTokens {
		out[t] = true
	}
	for _, t := range parseIfTokens(headers.If) {
		out[t] = true
	}
	return out
}

// parseIfTokens extracts bracketed <urn:...> tokens from an If header's
// tagged-list/no-tag-list grammar (RFC 4918 §10.4.2), ignoring the List
// production's entity-tag members since those are already covered by
// If-Match/If-None-Match here.
func parseIfTokens(ifHeader string) []string {
	var tokens []string
	for {
		start := strings.IndexByte(ifHeader, '<')
		if start < 0 {
			break
		}
		end := strings.IndexByte(ifHeader[start:], '>')
		if end < 0 {
			break
		}
		tokens = append(tokens, ifHeader[start+1:start+end])
		ifHeader = ifHeader[start+end+1:]
	}
	return tokens
}

func extractLockTokens(headers Headers, states []ResourceState) []LockToken {
	asserted := assertedTokens(headers)
	var out []LockToken
	for _, state := range states {
		for _, held := range state.Locked {
			if asserted[held] {
				out = append(out, LockToken{DocumentID: state.DocumentID, Token: held})
			}
		}
	}
	return out
}
