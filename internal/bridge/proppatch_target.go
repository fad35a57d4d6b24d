package bridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/stormdav/davcore/internal/deadprop"
	"github.com/stormdav/davcore/internal/model"
	"github.com/stormdav/davcore/internal/proppatch"
	"github.com/stormdav/davcore/internal/storage"
)

// CalendarPropertyStore builds and commits proppatch.CalendarTarget values
// over the teacher's storage.Store. Of a Calendar's live properties only
// displayname has a persisted setter in storage.Store today
// (UpdateCalendarDisplayName); description/timezone preference changes are
// accepted and reflected back on the same PROPFIND/PROPPATCH round trip
// but live only in this process's memory and are lost on restart — a
// bounded, documented limitation rather than a silent one, tracked in
// DESIGN.md alongside the same limitation for dead properties.
type CalendarPropertyStore struct {
	store storage.Store
	docs  *documentRegistry
	hier  *CalendarHierarchyStore

	mu        sync.Mutex
	deadProps map[string]*deadprop.Bag // keyed by calendar storage id
}

func NewCalendarPropertyStore(store storage.Store, docs *documentRegistry, hier *CalendarHierarchyStore) *CalendarPropertyStore {
	return &CalendarPropertyStore{store: store, docs: docs, hier: hier, deadProps: map[string]*deadprop.Bag{}}
}

// Load builds a *proppatch.CalendarTarget for calendarDocID as seen by
// accountID, pre-populating the target's dead-property bag from this
// store's in-memory registry so a PROPFIND issued right after a PROPPATCH
// within the same process sees the properties it just set.
func (s *CalendarPropertyStore) Load(ctx context.Context, accountID, calendarDocID uint32) (*proppatch.CalendarTarget, error) {
	ref, ok := s.docs.lookup(calendarDocID)
	if !ok || ref.kind != docKindCalendar {
		return nil, fmt.Errorf("bridge: document %d is not a calendar", calendarDocID)
	}
	cal, err := s.store.GetCalendarByURI(ctx, ref.uri)
	if err != nil {
		return nil, err
	}

	target := &model.Calendar{DocumentID: calendarDocID, AccountID: accountID, Created: cal.CreatedAt}
	prefs := target.PreferencesFor(accountID)
	prefs.Name = cal.DisplayName
	if cal.Description != "" {
		desc := cal.Description
		prefs.Description = &desc
	}

	s.mu.Lock()
	if bag, ok := s.deadProps[ref.storageID]; ok {
		target.DeadProps = *bag
	}
	s.mu.Unlock()

	return &proppatch.CalendarTarget{Calendar: target, AccountID: accountID}, nil
}

// Commit persists a successfully-applied CalendarTarget: the display name
// goes to storage.Store, and the dead-property bag (along with any
// description/timezone preference change, which storage.Store has no
// setter for) is kept in this process's in-memory registry.
func (s *CalendarPropertyStore) Commit(ctx context.Context, accountID uint32, target *proppatch.CalendarTarget) error {
	ref, ok := s.docs.lookup(target.Calendar.DocumentID)
	if !ok || ref.kind != docKindCalendar {
		return fmt.Errorf("bridge: document %d is not a calendar", target.Calendar.DocumentID)
	}

	prefs := target.Calendar.PreferencesFor(accountID)
	cal, err := s.store.GetCalendarByURI(ctx, ref.uri)
	if err != nil {
		return err
	}
	if prefs.Name != cal.DisplayName {
		name := prefs.Name
		if err := s.store.UpdateCalendarDisplayName(ctx, cal.OwnerUserID, cal.URI, &name); err != nil {
			return err
		}
	}

	s.mu.Lock()
	bag := target.Calendar.DeadProps
	s.deadProps[ref.storageID] = &bag
	s.mu.Unlock()

	s.hier.Invalidate(accountID)
	return nil
}
