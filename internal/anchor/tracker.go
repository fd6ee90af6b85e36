// Package anchor tracks the sync anchor and the pending change sets that
// "changes since anchor" requests drain.
package anchor

import (
	"sort"
	"sync"

	"github.com/Ning0612/Syncenum/internal/domain"
)

// epoch holds pending changes for one scope class between two drains
type epoch struct {
	deleted map[string]struct{}
	updated map[string]domain.MetadataRecord
}

func newEpoch() *epoch {
	return &epoch{
		deleted: make(map[string]struct{}),
		updated: make(map[string]domain.MetadataRecord),
	}
}

// Tracker owns the anchor counter and one pending epoch per scope class.
// All methods are safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	current domain.SyncAnchor
	pending map[domain.ScopeClass]*epoch
}

// New creates a tracker starting at anchor 0
func New() *Tracker {
	return NewAt(0)
}

// NewAt creates a tracker starting at the given anchor
func NewAt(start domain.SyncAnchor) *Tracker {
	return &Tracker{
		current: start,
		pending: map[domain.ScopeClass]*epoch{
			domain.ContainerClass:  newEpoch(),
			domain.WorkingSetClass: newEpoch(),
		},
	}
}

func (t *Tracker) epochFor(class domain.ScopeClass) *epoch {
	e, ok := t.pending[class]
	if !ok {
		e = newEpoch()
		t.pending[class] = e
	}
	return e
}

// RecordDeleted marks id as deleted in class. A pending update for the same
// id is dropped.
func (t *Tracker) RecordDeleted(class domain.ScopeClass, id string) {
	if id == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.epochFor(class)
	delete(e.updated, id)
	e.deleted[id] = struct{}{}
}

// RecordUpdated marks rec as updated in class; the latest record wins.
// Ignored while a delete for the same id is pending in this epoch.
func (t *Tracker) RecordUpdated(class domain.ScopeClass, rec domain.MetadataRecord) {
	if rec.FileID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.epochFor(class)
	if _, gone := e.deleted[rec.FileID]; gone {
		return
	}
	e.updated[rec.FileID] = rec
}

// Drain swaps out the pending sets of class and advances the anchor.
// Both happen under one lock so no change is lost or delivered twice.
func (t *Tracker) Drain(class domain.ScopeClass) domain.ChangeSet {
	t.mu.Lock()
	e := t.epochFor(class)
	t.pending[class] = newEpoch()
	t.current = t.current.Next()
	anchor := t.current
	t.mu.Unlock()

	cs := domain.ChangeSet{Anchor: anchor}
	if len(e.deleted) > 0 {
		cs.Deleted = make([]string, 0, len(e.deleted))
		for id := range e.deleted {
			cs.Deleted = append(cs.Deleted, id)
		}
		sort.Strings(cs.Deleted)
	}
	if len(e.updated) > 0 {
		cs.Updated = make([]domain.MetadataRecord, 0, len(e.updated))
		for _, rec := range e.updated {
			cs.Updated = append(cs.Updated, rec)
		}
		sort.Slice(cs.Updated, func(i, j int) bool {
			return cs.Updated[i].FileID < cs.Updated[j].FileID
		})
	}
	return cs
}

// Current returns the current anchor
func (t *Tracker) Current() domain.SyncAnchor {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Pending returns the number of pending deletions and updates for class
func (t *Tracker) Pending(class domain.ScopeClass) (deleted, updated int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.epochFor(class)
	return len(e.deleted), len(e.updated)
}
