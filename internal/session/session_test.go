package session_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Ning0612/Syncenum/internal/anchor"
	"github.com/Ning0612/Syncenum/internal/core/reconcile"
	"github.com/Ning0612/Syncenum/internal/domain"
	"github.com/Ning0612/Syncenum/internal/metrics"
	"github.com/Ning0612/Syncenum/internal/session"
	"github.com/Ning0612/Syncenum/internal/store"
	"github.com/Ning0612/Syncenum/internal/store/memory"
	"github.com/Ning0612/Syncenum/internal/testutil"
)

const account = "alice"

type fixture struct {
	lister  *testutil.FakeLister
	store   store.Store
	tracker *anchor.Tracker
	deps    session.Deps
}

func newFixture(t *testing.T, pageSize int) *fixture {
	t.Helper()
	f := &fixture{
		lister:  testutil.NewFakeLister(),
		store:   memory.New(),
		tracker: anchor.New(),
	}
	engine := reconcile.New(f.store, f.lister, reconcile.Options{
		Account:  account,
		Session:  "bg",
		PageSize: pageSize,
		Tracker:  f.tracker,
	})
	f.deps = session.Deps{
		Account:  account,
		Home:     "/",
		Resolver: engine,
		Store:    f.store,
		Tracker:  f.tracker,
	}
	return f
}

func (f *fixture) start(t *testing.T, id domain.ItemIdentifier) *session.Session {
	t.Helper()
	s, err := session.Start(context.Background(), f.deps, id)
	if err != nil {
		t.Fatalf("Start(%q) failed: %v", id, err)
	}
	return s
}

func TestStart_Root(t *testing.T) {
	f := newFixture(t, 10)
	f.deps.Home = "/Users/alice"

	s := f.start(t, domain.RootContainer)
	if s.Scope() != domain.Container("/Users/alice") {
		t.Errorf("Scope() = %s, want container /Users/alice", s.Scope())
	}
}

func TestStart_WorkingSet(t *testing.T) {
	f := newFixture(t, 10)
	s := f.start(t, domain.WorkingSetItem)
	if s.Scope().Class() != domain.WorkingSetClass {
		t.Errorf("Scope() = %s, want working set", s.Scope())
	}
}

func TestStart_Resolution(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	photos := f.lister.Put("/", domain.Entry{Name: "Photos", FileID: "photos", IsDir: true})
	f.lister.Put("/", domain.Entry{Name: "a.txt", FileID: "file-a"})

	// Nothing cached yet
	if _, err := session.Start(ctx, f.deps, "photos"); !errors.Is(err, domain.ErrScopeResolution) {
		t.Fatalf("expected ErrScopeResolution before listing, got %v", err)
	}

	root := f.start(t, domain.RootContainer)
	if _, err := root.Enumerate(ctx, domain.InitialCursor()); err != nil {
		t.Fatalf("Enumerate failed: %v", err)
	}

	s := f.start(t, domain.ItemIdentifier(photos.FileID))
	if s.Scope() != domain.Container("/Photos") {
		t.Errorf("Scope() = %s, want container /Photos", s.Scope())
	}

	tests := []struct {
		name string
		id   domain.ItemIdentifier
	}{
		{"empty", ""},
		{"unknown", "nope"},
		{"file", "file-a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := session.Start(ctx, f.deps, tt.id); !errors.Is(err, domain.ErrScopeResolution) {
				t.Errorf("Start(%q) error = %v, want ErrScopeResolution", tt.id, err)
			}
		})
	}
}

func TestStart_ParentNotListed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	_ = f.store.UpsertRecord(ctx, domain.MetadataRecord{
		Account: account, FileID: "orphan", ParentPath: "/elsewhere", Name: "dir", IsDir: true,
	})

	if _, err := session.Start(ctx, f.deps, "orphan"); !errors.Is(err, domain.ErrScopeResolution) {
		t.Errorf("expected ErrScopeResolution, got %v", err)
	}
}

type brokenStore struct {
	store.Store
}

func (brokenStore) GetRecord(ctx context.Context, account, fileID string) (*domain.MetadataRecord, error) {
	return nil, errors.New("disk gone")
}

func TestStart_StoreError(t *testing.T) {
	f := newFixture(t, 10)
	f.deps.Store = brokenStore{f.store}

	_, err := session.Start(context.Background(), f.deps, "photos")
	if !errors.Is(err, domain.ErrStore) {
		t.Fatalf("expected ErrStore, got %v", err)
	}
	if errors.Is(err, domain.ErrScopeResolution) {
		t.Error("store failure must not be reported as resolution failure")
	}
}

func TestEnumerate_Pages(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	f.lister.PutFiles("/", "f", 25)
	s := f.start(t, domain.RootContainer)

	var total int
	c := domain.InitialCursor()
	for pages := 0; ; pages++ {
		if pages > 5 {
			t.Fatal("enumeration did not terminate")
		}
		p, err := s.Enumerate(ctx, c)
		if err != nil {
			t.Fatalf("Enumerate(%s) failed: %v", c, err)
		}
		total += len(p.Items)
		if p.Next == nil {
			break
		}
		c = *p.Next
	}
	if total != 25 {
		t.Errorf("enumerated %d items, want 25", total)
	}
}

func TestChangesSince_Drains(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	f.lister.PutFiles("/", "f", 3)
	s := f.start(t, domain.RootContainer)

	before := s.CurrentAnchor()
	if _, err := s.Enumerate(ctx, domain.InitialCursor()); err != nil {
		t.Fatalf("Enumerate failed: %v", err)
	}

	cs := s.ChangesSince(before)
	if len(cs.Updated) != 3 {
		t.Errorf("Updated = %d, want 3", len(cs.Updated))
	}
	if cs.MoreComing {
		t.Error("MoreComing must be false")
	}
	if cs.Anchor != before.Next() {
		t.Errorf("Anchor = %s, want %s", cs.Anchor, before.Next())
	}
	if s.CurrentAnchor() != cs.Anchor {
		t.Errorf("CurrentAnchor() = %s, want %s", s.CurrentAnchor(), cs.Anchor)
	}

	again := s.ChangesSince(cs.Anchor)
	if !again.Empty() {
		t.Errorf("second drain should be empty, got %+v", again)
	}
	if again.Anchor != cs.Anchor.Next() {
		t.Errorf("every drain advances the anchor: got %s", again.Anchor)
	}
}

func TestChangesSince_ClassesAreSeparate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	f.lister.Put("/", domain.Entry{Name: "star", FileID: "star", Favorite: true})
	f.lister.Put("/", domain.Entry{Name: "plain", FileID: "plain"})

	root := f.start(t, domain.RootContainer)
	if _, err := root.Enumerate(ctx, domain.InitialCursor()); err != nil {
		t.Fatalf("Enumerate failed: %v", err)
	}

	ws := f.start(t, domain.WorkingSetItem)
	cs := ws.ChangesSince(0)
	if len(cs.Updated) != 1 || cs.Updated[0].FileID != "star" {
		t.Errorf("working set changes = %+v, want only star", cs.Updated)
	}

	cs = root.ChangesSince(0)
	if len(cs.Updated) != 2 {
		t.Errorf("container changes = %d, want 2", len(cs.Updated))
	}
}

func TestChangesSince_PendingGauge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	reg := prometheus.NewRegistry()
	f.deps.Metrics = metrics.New(reg)
	f.lister.PutFiles("/", "f", 3)
	s := f.start(t, domain.RootContainer)

	if _, err := s.Enumerate(ctx, domain.InitialCursor()); err != nil {
		t.Fatalf("Enumerate failed: %v", err)
	}
	s.ChangesSince(0)
	expectPending(t, reg, 0)

	f.tracker.RecordUpdated(domain.ContainerClass, domain.MetadataRecord{Account: account, FileID: "late"})
	f.tracker.RecordDeleted(domain.ContainerClass, "gone")
	s.ChangesSince(0)
	expectPending(t, reg, 0)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			f.tracker.RecordUpdated(domain.ContainerClass, domain.MetadataRecord{Account: account, FileID: fmt.Sprintf("c%d", i)})
		}
	}()
	drained := 0
	for i := 0; i < 50; i++ {
		drained += len(s.ChangesSince(0).Updated)
	}
	wg.Wait()
	drained += len(s.ChangesSince(0).Updated)

	if drained != 200 {
		t.Errorf("drained %d updates, want 200", drained)
	}
	d, u := f.tracker.Pending(domain.ContainerClass)
	expectPending(t, reg, d+u)
}

func expectPending(t *testing.T, reg *prometheus.Registry, want int) {
	t.Helper()
	expected := fmt.Sprintf(`
# HELP syncenum_pending_changes Changes waiting for the next drain
# TYPE syncenum_pending_changes gauge
syncenum_pending_changes{account="alice",class="container"} %d
`, want)
	if err := promtest.GatherAndCompare(reg, strings.NewReader(expected), "syncenum_pending_changes"); err != nil {
		t.Error(err)
	}
}
