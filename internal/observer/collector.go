package observer

import (
	"context"
	"sync"

	"github.com/Ning0612/Syncenum/internal/domain"
)

// Collector accumulates callbacks until the terminal finish.
// Safe for concurrent use; a Collector serves a single enumeration.
type Collector struct {
	mu       sync.Mutex
	items    []domain.MetadataRecord
	updated  []domain.MetadataRecord
	deleted  []string
	next     *domain.PageCursor
	anchor   domain.SyncAnchor
	err      error
	finishes int
	done     chan struct{}
}

// NewCollector creates an empty collector
func NewCollector() *Collector {
	return &Collector{done: make(chan struct{})}
}

func (c *Collector) finish() {
	c.finishes++
	if c.finishes == 1 {
		close(c.done)
	}
}

func (c *Collector) DidEnumerate(items []domain.MetadataRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, items...)
}

func (c *Collector) FinishEnumerating(next *domain.PageCursor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = next
	c.finish()
}

func (c *Collector) FinishEnumeratingWithError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
	c.finish()
}

func (c *Collector) DidDeleteItems(ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, ids...)
}

func (c *Collector) DidUpdate(items []domain.MetadataRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updated = append(c.updated, items...)
}

func (c *Collector) FinishEnumeratingChanges(anchor domain.SyncAnchor, moreComing bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.anchor = anchor
	c.finish()
}

// Wait blocks until the first finish call or ctx is done
func (c *Collector) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Finished reports how many terminal calls were received
func (c *Collector) Finished() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finishes
}

// Items returns the enumerated items
func (c *Collector) Items() []domain.MetadataRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.MetadataRecord(nil), c.items...)
}

// Updated returns the updated records of a change enumeration
func (c *Collector) Updated() []domain.MetadataRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.MetadataRecord(nil), c.updated...)
}

// Deleted returns the deleted identifiers of a change enumeration
func (c *Collector) Deleted() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.deleted...)
}

// Next returns the next page cursor, nil when exhausted
func (c *Collector) Next() *domain.PageCursor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next
}

// Anchor returns the anchor of a finished change enumeration
func (c *Collector) Anchor() domain.SyncAnchor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.anchor
}

// Err returns the terminal error, if any
func (c *Collector) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}
