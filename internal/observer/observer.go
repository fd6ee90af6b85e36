// Package observer provides ready-made receivers for enumeration results.
// Every type here satisfies both session.ItemObserver and
// session.ChangeObserver.
package observer

import (
	"sync"

	"github.com/Ning0612/Syncenum/internal/domain"
)

// EventType indicates the kind of observer callback
type EventType int

const (
	EventItems EventType = iota
	EventDeleted
	EventUpdated
	EventFinished
	EventChangesFinished
	EventError
)

// String returns the event name
func (t EventType) String() string {
	switch t {
	case EventItems:
		return "items"
	case EventDeleted:
		return "deleted"
	case EventUpdated:
		return "updated"
	case EventFinished:
		return "finished"
	case EventChangesFinished:
		return "changes_finished"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one observer callback
type Event struct {
	Type       EventType
	Items      []domain.MetadataRecord
	Deleted    []string
	Next       *domain.PageCursor
	Anchor     domain.SyncAnchor
	MoreComing bool
	Err        error
}

// Callback receives observer events
type Callback func(Event)

// CallbackObserver forwards every callback as an Event
type CallbackObserver struct {
	mu       sync.Mutex
	callback Callback
}

// NewCallback creates a CallbackObserver
func NewCallback(callback Callback) *CallbackObserver {
	return &CallbackObserver{callback: callback}
}

func (o *CallbackObserver) emit(e Event) {
	o.mu.Lock()
	callback := o.callback
	o.mu.Unlock()

	// Call outside lock so the callback may re-enter
	if callback != nil {
		callback(e)
	}
}

func (o *CallbackObserver) DidEnumerate(items []domain.MetadataRecord) {
	o.emit(Event{Type: EventItems, Items: items})
}

func (o *CallbackObserver) FinishEnumerating(next *domain.PageCursor) {
	o.emit(Event{Type: EventFinished, Next: next})
}

func (o *CallbackObserver) FinishEnumeratingWithError(err error) {
	o.emit(Event{Type: EventError, Err: err})
}

func (o *CallbackObserver) DidDeleteItems(ids []string) {
	o.emit(Event{Type: EventDeleted, Deleted: ids})
}

func (o *CallbackObserver) DidUpdate(items []domain.MetadataRecord) {
	o.emit(Event{Type: EventUpdated, Items: items})
}

func (o *CallbackObserver) FinishEnumeratingChanges(anchor domain.SyncAnchor, moreComing bool) {
	o.emit(Event{Type: EventChangesFinished, Anchor: anchor, MoreComing: moreComing})
}

// Null discards everything
type Null struct{}

func (Null) DidEnumerate(items []domain.MetadataRecord)                     {}
func (Null) FinishEnumerating(next *domain.PageCursor)                      {}
func (Null) FinishEnumeratingWithError(err error)                           {}
func (Null) DidDeleteItems(ids []string)                                    {}
func (Null) DidUpdate(items []domain.MetadataRecord)                        {}
func (Null) FinishEnumeratingChanges(anchor domain.SyncAnchor, more bool) {}
