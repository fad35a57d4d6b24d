// Package urn formats and parses the urn:stalwart:dav* tokens used for lock
// tokens and sync tokens, mirroring common/uri.rs's Urn enum.
package urn

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind distinguishes the two URN forms the server issues.
type Kind uint8

const (
	KindLock Kind = iota
	KindSync
)

// Urn is a typed wrapper around a 64-bit id rendered as a urn:stalwart:…
// token, used for If-header lock tokens and sync-collection sync-tokens.
type Urn struct {
	Kind Kind
	ID   uint64
}

const (
	prefixLock = "urn:stalwart:davlock:"
	prefixSync = "urn:stalwart:davsync:"
)

// String renders the URN, e.g. "urn:stalwart:davlock:2a".
func (u Urn) String() string {
	prefix := prefixLock
	if u.Kind == KindSync {
		prefix = prefixSync
	}
	return prefix + strconv.FormatUint(u.ID, 16)
}

// Parse recognizes a urn:stalwart:davlock:<hex> or urn:stalwart:davsync:<hex>
// token and extracts its kind and id. Any other input is rejected.
func Parse(s string) (Urn, error) {
	switch {
	case strings.HasPrefix(s, prefixLock):
		id, err := strconv.ParseUint(s[len(prefixLock):], 16, 64)
		if err != nil {
			return Urn{}, fmt.Errorf("urn: invalid lock token %q: %w", s, err)
		}
		return Urn{Kind: KindLock, ID: id}, nil
	case strings.HasPrefix(s, prefixSync):
		id, err := strconv.ParseUint(s[len(prefixSync):], 16, 64)
		if err != nil {
			return Urn{}, fmt.Errorf("urn: invalid sync token %q: %w", s, err)
		}
		return Urn{Kind: KindSync, ID: id}, nil
	default:
		return Urn{}, fmt.Errorf("urn: unrecognized token %q", s)
	}
}

// Lock builds a lock-token URN for the given lock id.
func Lock(id uint64) Urn { return Urn{Kind: KindLock, ID: id} }

// Sync builds a sync-token URN for the given change-sequence id.
func Sync(id uint64) Urn { return Urn{Kind: KindSync, ID: id} }
