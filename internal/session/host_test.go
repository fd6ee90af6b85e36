package session_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Ning0612/Syncenum/internal/domain"
	"github.com/Ning0612/Syncenum/internal/observer"
	"github.com/Ning0612/Syncenum/internal/session"
)

func TestEnumerateItems(t *testing.T) {
	f := newFixture(t, 10)
	f.lister.PutFiles("/", "f", 12)
	e := session.Open(context.Background(), f.deps, domain.RootContainer)
	if e.Err() != nil {
		t.Fatalf("Open failed: %v", e.Err())
	}

	c := observer.NewCollector()
	e.EnumerateItems(context.Background(), c, domain.InitialPageSortedByName)
	if c.Finished() != 1 || c.Err() != nil {
		t.Fatalf("finishes = %d err = %v", c.Finished(), c.Err())
	}
	if len(c.Items()) != 10 || c.Next() == nil || c.Next().String() != "2" {
		t.Fatalf("page 1 = %d items next %v", len(c.Items()), c.Next())
	}

	c = observer.NewCollector()
	e.EnumerateItems(context.Background(), c, "2")
	if len(c.Items()) != 2 || c.Next() != nil {
		t.Errorf("page 2 = %d items next %v", len(c.Items()), c.Next())
	}
}

func TestEnumerateItems_BadCursor(t *testing.T) {
	f := newFixture(t, 10)
	e := session.Open(context.Background(), f.deps, domain.RootContainer)

	c := observer.NewCollector()
	e.EnumerateItems(context.Background(), c, "page-two")
	if !errors.Is(c.Err(), domain.ErrStaleCursor) {
		t.Errorf("expected ErrStaleCursor, got %v", c.Err())
	}
	if c.Finished() != 1 {
		t.Errorf("Finished() = %d, want 1", c.Finished())
	}
}

func TestEnumerateItems_UnresolvedScopeIsEmpty(t *testing.T) {
	f := newFixture(t, 10)
	e := session.Open(context.Background(), f.deps, "missing")
	if !errors.Is(e.Err(), domain.ErrScopeResolution) {
		t.Fatalf("Err() = %v", e.Err())
	}

	c := observer.NewCollector()
	e.EnumerateItems(context.Background(), c, "")
	if c.Err() != nil || len(c.Items()) != 0 || c.Next() != nil {
		t.Errorf("expected empty terminal page, got items %d next %v err %v", len(c.Items()), c.Next(), c.Err())
	}
	if c.Finished() != 1 {
		t.Errorf("Finished() = %d, want 1", c.Finished())
	}
}

func TestEnumerateItems_StoreErrorFailsEnumeration(t *testing.T) {
	f := newFixture(t, 10)
	f.deps.Store = brokenStore{f.store}
	e := session.Open(context.Background(), f.deps, "some-dir")

	c := observer.NewCollector()
	e.EnumerateItems(context.Background(), c, "")
	if !errors.Is(c.Err(), domain.ErrStore) {
		t.Errorf("expected ErrStore, got %v", c.Err())
	}
}

func TestEnumerateChanges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	f.lister.PutFiles("/", "f", 2)
	e := session.Open(ctx, f.deps, domain.RootContainer)

	start := e.CurrentAnchor()
	e.EnumerateItems(ctx, observer.Null{}, "")

	c := observer.NewCollector()
	e.EnumerateChanges(ctx, c, start)
	if c.Err() != nil {
		t.Fatalf("EnumerateChanges failed: %v", c.Err())
	}
	if len(c.Updated()) != 2 || len(c.Deleted()) != 0 {
		t.Errorf("updated %d deleted %d", len(c.Updated()), len(c.Deleted()))
	}
	if c.Anchor().String() == start {
		t.Error("anchor must advance")
	}
	if e.CurrentAnchor() != c.Anchor().String() {
		t.Errorf("CurrentAnchor() = %s, want %s", e.CurrentAnchor(), c.Anchor())
	}
}

func TestEnumerateChanges_Deletes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	f.lister.PutFiles("/", "f", 2)
	e := session.Open(ctx, f.deps, domain.RootContainer)
	e.EnumerateItems(ctx, observer.Null{}, "")
	e.EnumerateChanges(ctx, observer.Null{}, e.CurrentAnchor())

	f.lister.Remove("/", "/-f000")
	e.EnumerateItems(ctx, observer.Null{}, "")

	c := observer.NewCollector()
	e.EnumerateChanges(ctx, c, e.CurrentAnchor())
	if got := c.Deleted(); len(got) != 1 || got[0] != "/-f000" {
		t.Errorf("Deleted() = %v, want [/-f000]", got)
	}
}

func TestEnumerateChanges_BadAnchor(t *testing.T) {
	f := newFixture(t, 10)
	e := session.Open(context.Background(), f.deps, domain.RootContainer)

	c := observer.NewCollector()
	e.EnumerateChanges(context.Background(), c, "yesterday")
	if !errors.Is(c.Err(), domain.ErrInvalidAnchor) {
		t.Errorf("expected ErrInvalidAnchor, got %v", c.Err())
	}
}

func TestEnumerateChanges_UnresolvedScope(t *testing.T) {
	f := newFixture(t, 10)
	e := session.Open(context.Background(), f.deps, "missing")

	c := observer.NewCollector()
	e.EnumerateChanges(context.Background(), c, "0")
	if c.Err() != nil || c.Finished() != 1 {
		t.Errorf("expected clean finish, got err %v finishes %d", c.Err(), c.Finished())
	}
	if c.Anchor() != f.tracker.Current() {
		t.Errorf("Anchor() = %s, want current %s", c.Anchor(), f.tracker.Current())
	}
}

func TestEnumerateChanges_Cancelled(t *testing.T) {
	f := newFixture(t, 10)
	e := session.Open(context.Background(), f.deps, domain.RootContainer)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := observer.NewCollector()
	e.EnumerateChanges(ctx, c, "0")
	if !errors.Is(c.Err(), context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", c.Err())
	}
}

type panicObserver struct {
	*observer.Collector
}

func (panicObserver) DidEnumerate(items []domain.MetadataRecord) { panic("observer exploded") }

func TestEnumerateItems_PanicFinishes(t *testing.T) {
	f := newFixture(t, 10)
	f.lister.PutFiles("/", "f", 1)
	e := session.Open(context.Background(), f.deps, domain.RootContainer)

	c := observer.NewCollector()
	e.EnumerateItems(context.Background(), panicObserver{c}, "")
	if c.Err() == nil {
		t.Error("expected terminal error after panic")
	}
}
