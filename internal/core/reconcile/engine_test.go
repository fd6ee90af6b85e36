package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Ning0612/Syncenum/internal/anchor"
	"github.com/Ning0612/Syncenum/internal/domain"
	"github.com/Ning0612/Syncenum/internal/store"
	"github.com/Ning0612/Syncenum/internal/store/memory"
	"github.com/Ning0612/Syncenum/internal/testutil"
)

const account = "alice"

type harness struct {
	t       *testing.T
	lister  *testutil.FakeLister
	store   store.Store
	tracker *anchor.Tracker
	engine  *Engine
}

func newHarness(t *testing.T, paginated bool, pageSize int) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		lister:  testutil.NewFakeLister(),
		store:   memory.New(),
		tracker: anchor.New(),
	}
	h.engine = New(h.store, h.lister, Options{
		Account:    account,
		Session:    "bg-session",
		PageSize:   pageSize,
		Pagination: paginated,
		Tracker:    h.tracker,
	})
	return h
}

func cursor(t *testing.T, n int) domain.PageCursor {
	t.Helper()
	if n == 1 {
		return domain.InitialCursor()
	}
	c, err := domain.CursorForPage(n)
	if err != nil {
		t.Fatalf("CursorForPage(%d): %v", n, err)
	}
	return c
}

func (h *harness) page(scope domain.Scope, n int) domain.Page {
	h.t.Helper()
	p, err := h.engine.ResolvePage(context.Background(), scope, cursor(h.t, n))
	if err != nil {
		h.t.Fatalf("ResolvePage(%s, %d) failed: %v", scope, n, err)
	}
	return p
}

// enumerateAll follows next cursors from the initial page
func (h *harness) enumerateAll(scope domain.Scope) []domain.MetadataRecord {
	h.t.Helper()
	var all []domain.MetadataRecord
	c := domain.InitialCursor()
	for i := 0; i < 1000; i++ {
		p, err := h.engine.ResolvePage(context.Background(), scope, c)
		if err != nil {
			h.t.Fatalf("ResolvePage(%s, %s) failed: %v", scope, c, err)
		}
		all = append(all, p.Items...)
		if p.Next == nil {
			return all
		}
		c = *p.Next
	}
	h.t.Fatal("enumeration did not terminate")
	return nil
}

func (h *harness) stateETag(p string) string {
	h.t.Helper()
	st, err := h.store.GetDirectoryState(context.Background(), account, p)
	if err != nil {
		h.t.Fatalf("GetDirectoryState failed: %v", err)
	}
	if st == nil {
		return "<none>"
	}
	return st.ETag
}

func (h *harness) children(p string) []domain.MetadataRecord {
	h.t.Helper()
	recs, err := h.store.QueryRecords(context.Background(), store.Query{Account: account, ParentPath: p})
	if err != nil {
		h.t.Fatalf("QueryRecords failed: %v", err)
	}
	return recs
}

func expectPage(t *testing.T, p domain.Page, items int, next string) {
	t.Helper()
	if len(p.Items) != items {
		t.Errorf("page has %d items, want %d", len(p.Items), items)
	}
	switch {
	case next == "" && p.Next != nil:
		t.Errorf("unexpected next cursor %s", p.Next)
	case next != "" && p.Next == nil:
		t.Errorf("missing next cursor, want %s", next)
	case next != "" && p.Next.String() != next:
		t.Errorf("next cursor = %s, want %s", p.Next, next)
	}
}

func TestPhotosScenario_Unpaginated(t *testing.T) {
	h := newHarness(t, false, 50)
	h.lister.Put("/", domain.Entry{Name: "Photos", IsDir: true})
	h.lister.PutFiles("/Photos", "img", 120)
	photos := domain.Container("/Photos")

	// Warm the cache so the remote is unchanged since the last etag
	h.enumerateAll(photos)
	h.lister.ResetCalls()

	expectPage(t, h.page(photos, 1), 50, "2")
	expectPage(t, h.page(photos, 2), 50, "3")
	expectPage(t, h.page(photos, 3), 20, "")

	if n := h.lister.Calls(testutil.CallListContainer); n != 1 {
		t.Errorf("expected one etag check, got %d", n)
	}
	if n := h.lister.Calls(testutil.CallListChildren); n != 0 {
		t.Errorf("unchanged container must not be re-listed, got %d listings", n)
	}
}

func TestPhotosScenario_Paginated(t *testing.T) {
	h := newHarness(t, true, 50)
	h.lister.Put("/", domain.Entry{Name: "Photos", IsDir: true})
	h.lister.PutFiles("/Photos", "img", 120)
	photos := domain.Container("/Photos")

	// First pass is a refresh run over three remote pages
	expectPage(t, h.page(photos, 1), 50, "2")
	expectPage(t, h.page(photos, 2), 50, "3")
	expectPage(t, h.page(photos, 3), 20, "")
	if n := h.lister.Calls(testutil.CallListPage); n != 3 {
		t.Errorf("expected 3 remote pages, got %d", n)
	}
	if h.stateETag("/Photos") == "" {
		t.Fatal("etag not committed after the final page")
	}

	h.lister.ResetCalls()
	expectPage(t, h.page(photos, 1), 50, "2")
	expectPage(t, h.page(photos, 2), 50, "3")
	expectPage(t, h.page(photos, 3), 20, "")
	if n := h.lister.Calls(testutil.CallListPage); n != 0 {
		t.Errorf("unchanged container fetched %d remote pages", n)
	}
}

func TestPageSizeContract(t *testing.T) {
	for _, paginated := range []bool{false, true} {
		for _, total := range []int{0, 1, 9, 10, 11, 30} {
			t.Run(fmt.Sprintf("paginated=%v/total=%d", paginated, total), func(t *testing.T) {
				h := newHarness(t, paginated, 10)
				h.lister.PutFiles("/", "f", total)

				c := domain.InitialCursor()
				seen := 0
				for {
					p, err := h.engine.ResolvePage(context.Background(), domain.Container("/"), c)
					if err != nil {
						t.Fatalf("ResolvePage failed: %v", err)
					}
					if len(p.Items) > 10 {
						t.Fatalf("page exceeds page size: %d", len(p.Items))
					}
					if (len(p.Items) == 10) != (p.Next != nil) {
						t.Fatalf("next cursor must be present exactly for full pages (items=%d next=%v)", len(p.Items), p.Next)
					}
					seen += len(p.Items)
					if p.Next == nil {
						break
					}
					c = *p.Next
				}
				if seen != total {
					t.Errorf("enumerated %d items, want %d", seen, total)
				}
			})
		}
	}
}

func TestIdempotence(t *testing.T) {
	for _, paginated := range []bool{false, true} {
		t.Run(fmt.Sprintf("paginated=%v", paginated), func(t *testing.T) {
			h := newHarness(t, paginated, 100)
			h.lister.PutFiles("/", "f", 25)
			root := domain.Container("/")

			first := h.page(root, 1)
			etag := h.stateETag("/")
			second := h.page(root, 1)

			if len(first.Items) != len(second.Items) {
				t.Fatalf("item counts differ: %d vs %d", len(first.Items), len(second.Items))
			}
			for i := range first.Items {
				if first.Items[i].FileID != second.Items[i].FileID || first.Items[i].ETag != second.Items[i].ETag {
					t.Errorf("item %d differs: %+v vs %+v", i, first.Items[i], second.Items[i])
				}
			}
			if h.stateETag("/") != etag {
				t.Errorf("directory etag changed on an idle refresh: %s -> %s", etag, h.stateETag("/"))
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	h := newHarness(t, false, 100)
	e := h.lister.Put("/", domain.Entry{Name: "x.bin", FileID: "X", ETag: "e-42", Size: 4242})

	h.page(domain.Container("/"), 1)

	rec, err := h.store.GetRecord(context.Background(), account, "X")
	if err != nil || rec == nil {
		t.Fatalf("GetRecord = %v, %v", rec, err)
	}
	if rec.ETag != e.ETag || rec.Size != e.Size || !rec.ModTime.Equal(e.ModTime) {
		t.Errorf("record %+v does not match entry %+v", rec, e)
	}
}

func TestDeletionConvergence(t *testing.T) {
	for _, paginated := range []bool{false, true} {
		t.Run(fmt.Sprintf("paginated=%v", paginated), func(t *testing.T) {
			h := newHarness(t, paginated, 2)
			for _, id := range []string{"A", "B", "C"} {
				h.lister.Put("/docs", domain.Entry{Name: id, FileID: id, ETag: "v1"})
			}
			docs := domain.Container("/docs")
			h.enumerateAll(docs)
			h.tracker.Drain(domain.ContainerClass)

			h.lister.Remove("/docs", "B")
			h.enumerateAll(docs)

			for _, rec := range h.children("/docs") {
				if rec.FileID == "B" {
					t.Fatal("deleted record B is still present")
				}
			}
			if len(h.children("/docs")) != 2 {
				t.Errorf("expected 2 cached children, got %d", len(h.children("/docs")))
			}

			cs := h.tracker.Drain(domain.ContainerClass)
			if len(cs.Deleted) != 1 || cs.Deleted[0] != "B" {
				t.Errorf("tracker deleted = %v, want [B]", cs.Deleted)
			}
		})
	}
}

func TestEmptyListingClearsCache(t *testing.T) {
	for _, paginated := range []bool{false, true} {
		t.Run(fmt.Sprintf("paginated=%v", paginated), func(t *testing.T) {
			h := newHarness(t, paginated, 2)
			h.lister.PutFiles("/", "f", 5)
			h.enumerateAll(domain.Container("/"))

			h.lister.Clear("/")
			p := h.page(domain.Container("/"), 1)

			expectPage(t, p, 0, "")
			if n := len(h.children("/")); n != 0 {
				t.Errorf("cache still holds %d children", n)
			}
		})
	}
}

func TestWorkingSetScenario(t *testing.T) {
	h := newHarness(t, false, 2)
	ctx := context.Background()

	recs := []domain.MetadataRecord{
		{FileID: "f1", Name: "a", Favorite: true},
		{FileID: "f2", Name: "b", Favorite: true},
		{FileID: "f3", Name: "c", Favorite: true, Tags: []string{"red"}},
		{FileID: "t1", Name: "d", Tags: []string{"blue"}},
		{FileID: "n1", Name: "e"},
	}
	for _, r := range recs {
		r.Account = account
		r.ParentPath = "/"
		if err := h.store.UpsertRecord(ctx, r); err != nil {
			t.Fatalf("UpsertRecord failed: %v", err)
		}
	}

	p := h.page(domain.WorkingSet(), 1)
	if len(p.Items) != 4 {
		t.Fatalf("working set has %d items, want 4", len(p.Items))
	}
	if p.Next != nil {
		t.Error("working set must not carry a next cursor")
	}
	seen := map[string]bool{}
	for _, r := range p.Items {
		if seen[r.FileID] {
			t.Errorf("duplicate %s", r.FileID)
		}
		seen[r.FileID] = true
	}
	if seen["n1"] {
		t.Error("untagged, unfavorited record in working set")
	}
	if h.lister.Calls(testutil.CallListContainer)+h.lister.Calls(testutil.CallListChildren) != 0 {
		t.Error("working set must not call the remote")
	}
}

func TestWorkingSet_Concurrent(t *testing.T) {
	h := newHarness(t, false, 10)
	ctx := context.Background()
	h.store.UpsertRecord(ctx, domain.MetadataRecord{Account: account, FileID: "f", Name: "f", ParentPath: "/", Favorite: true})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := h.engine.ResolvePage(ctx, domain.WorkingSet(), domain.InitialCursor())
			if err != nil || len(p.Items) != 1 {
				t.Errorf("ResolvePage = %d items, %v", len(p.Items), err)
				return
			}
			// Each caller owns its slice
			p.Items[0].Name = "mutated"
		}()
	}
	wg.Wait()
}

// gatedStore holds record queries until release is closed
type gatedStore struct {
	store.Store
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedStore) QueryRecords(ctx context.Context, q store.Query) ([]domain.MetadataRecord, error) {
	g.once.Do(func() { close(g.entered) })
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.Store.QueryRecords(ctx, q)
}

func TestWorkingSet_CancelledCallerDoesNotFailOthers(t *testing.T) {
	gs := &gatedStore{
		Store:   memory.New(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	gs.Store.UpsertRecord(context.Background(), domain.MetadataRecord{Account: account, FileID: "f", Name: "f", ParentPath: "/", Favorite: true})
	e := New(gs, testutil.NewFakeLister(), Options{Account: account, Session: "bg-session"})

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := e.ResolvePage(ctx, domain.WorkingSet(), domain.InitialCursor())
		first <- err
	}()
	<-gs.entered

	type result struct {
		page domain.Page
		err  error
	}
	second := make(chan result, 1)
	go func() {
		p, err := e.ResolvePage(context.Background(), domain.WorkingSet(), domain.InitialCursor())
		second <- result{p, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	select {
	case err := <-first:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("cancelled caller err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(gs.release)
	select {
	case r := <-second:
		if r.err != nil {
			t.Fatalf("live caller failed: %v", r.err)
		}
		if len(r.page.Items) != 1 {
			t.Errorf("live caller got %d items, want 1", len(r.page.Items))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("live caller did not return")
	}
}

func TestTransportFailureFallsBackToCache(t *testing.T) {
	for _, paginated := range []bool{false, true} {
		t.Run(fmt.Sprintf("paginated=%v", paginated), func(t *testing.T) {
			h := newHarness(t, paginated, 50)
			h.lister.PutFiles("/", "f", 10)
			h.enumerateAll(domain.Container("/"))

			h.lister.SetErr(domain.ErrNetworkError)
			p, err := h.engine.ResolvePage(context.Background(), domain.Container("/"), domain.InitialCursor())
			if err != nil {
				t.Fatalf("transport failure must not surface: %v", err)
			}
			expectPage(t, p, 10, "")
		})
	}
}

func TestTransportFailure_PageFetch(t *testing.T) {
	h := newHarness(t, true, 5)
	h.lister.PutFiles("/", "f", 12)
	h.enumerateAll(domain.Container("/"))

	// Change the remote, then fail only the page fetches
	h.lister.PutFiles("/", "g", 1)
	failing := &failingPages{FakeLister: h.lister}
	h.engine.lister = failing

	p := h.page(domain.Container("/"), 1)
	expectPage(t, p, 5, "2")
	if h.engine.activeRun("/") == nil || h.engine.activeRun("/").clean {
		t.Error("a failed page must leave the run unclean")
	}
}

type failingPages struct {
	*testutil.FakeLister
}

func (f *failingPages) ListPage(ctx context.Context, p string, offset, limit int) ([]domain.Entry, error) {
	return nil, domain.ErrTimeout
}

type brokenStore struct {
	store.Store
}

func (b *brokenStore) QueryRecords(ctx context.Context, q store.Query) ([]domain.MetadataRecord, error) {
	return nil, errors.New("disk on fire")
}

func TestStoreErrorIsFatal(t *testing.T) {
	lister := testutil.NewFakeLister()
	lister.PutFiles("/", "f", 3)
	e := New(&brokenStore{Store: memory.New()}, lister, Options{Account: account})

	_, err := e.ResolvePage(context.Background(), domain.Container("/"), domain.InitialCursor())
	if !errors.Is(err, domain.ErrStore) {
		t.Errorf("expected ErrStore, got %v", err)
	}

	// Store errors are not masked by a transport failure either
	lister.SetErr(domain.ErrNetworkError)
	_, err = e.ResolvePage(context.Background(), domain.Container("/"), domain.InitialCursor())
	if !errors.Is(err, domain.ErrStore) {
		t.Errorf("expected ErrStore on fallback, got %v", err)
	}

	_, err = e.ResolvePage(context.Background(), domain.WorkingSet(), domain.InitialCursor())
	if !errors.Is(err, domain.ErrStore) {
		t.Errorf("expected ErrStore for working set, got %v", err)
	}
}

func TestCancelledContext(t *testing.T) {
	h := newHarness(t, false, 10)
	h.lister.PutFiles("/", "f", 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.engine.ResolvePage(ctx, domain.Container("/"), domain.InitialCursor())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestFilteringBeforeWindowing(t *testing.T) {
	h := newHarness(t, false, 2)
	h.lister.Put("/", domain.Entry{Name: "a", FileID: "a", ETag: "1"})
	h.lister.Put("/", domain.Entry{Name: "b", FileID: "b", ETag: "1", Encrypted: true})
	h.lister.Put("/", domain.Entry{Name: "c", FileID: "c", ETag: "1"})
	h.lister.Put("/", domain.Entry{Name: "d", FileID: "d", ETag: "1"})
	h.lister.Put("/", domain.Entry{Name: "e", FileID: "e", ETag: "1"})
	h.page(domain.Container("/"), 1)

	ctx := context.Background()
	busy, _ := h.store.GetRecord(ctx, account, "d")
	busy.Session = "foreground-upload"
	h.store.UpsertRecord(ctx, *busy)
	mine, _ := h.store.GetRecord(ctx, account, "e")
	mine.Session = "bg-session"
	h.store.UpsertRecord(ctx, *mine)

	// Visible: a, c, e
	p1 := h.page(domain.Container("/"), 1)
	expectPage(t, p1, 2, "2")
	if p1.Items[0].FileID != "a" || p1.Items[1].FileID != "c" {
		t.Errorf("page 1 = %v", ids(p1.Items))
	}
	p2 := h.page(domain.Container("/"), 2)
	expectPage(t, p2, 1, "")
	if p2.Items[0].FileID != "e" {
		t.Errorf("page 2 = %v", ids(p2.Items))
	}

	// Hidden records stay stored
	if n := len(h.children("/")); n != 5 {
		t.Errorf("expected 5 stored records, got %d", n)
	}
}

func ids(recs []domain.MetadataRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.FileID
	}
	return out
}

func TestLocalStatePreservedAcrossMerges(t *testing.T) {
	h := newHarness(t, false, 10)
	ctx := context.Background()
	h.lister.Put("/", domain.Entry{Name: "a", FileID: "a", ETag: "1"})
	h.page(domain.Container("/"), 1)

	rec, _ := h.store.GetRecord(ctx, account, "a")
	rec.Tags = []string{"red"}
	rec.Session = "bg-session"
	h.store.UpsertRecord(ctx, *rec)

	h.lister.Put("/", domain.Entry{Name: "a", FileID: "a", ETag: "2"})
	h.page(domain.Container("/"), 1)

	got, _ := h.store.GetRecord(ctx, account, "a")
	if got.ETag != "2" || len(got.Tags) != 1 || got.Session != "bg-session" {
		t.Errorf("record after merge = %+v", got)
	}
}

func TestChildDirectoriesSeeded(t *testing.T) {
	h := newHarness(t, false, 10)
	h.lister.Put("/", domain.Entry{Name: "sub", FileID: "sub", IsDir: true})
	h.lister.PutFiles("/sub", "f", 3)

	h.page(domain.Container("/"), 1)
	if got := h.stateETag("/sub"); got != "" {
		t.Errorf("child directory state = %q, want empty seeded etag", got)
	}

	// The seeded state never counts as fresh
	if p := h.page(domain.Container("/sub"), 1); len(p.Items) != 3 {
		t.Errorf("sub listing has %d items, want 3", len(p.Items))
	}
	if h.stateETag("/sub") == "" {
		t.Error("sub etag not committed")
	}
}

func TestRemovedDirectoryDropsSubtree(t *testing.T) {
	h := newHarness(t, false, 10)
	h.lister.Put("/", domain.Entry{Name: "sub", FileID: "sub", IsDir: true})
	h.lister.PutFiles("/sub", "f", 3)
	h.page(domain.Container("/"), 1)
	h.page(domain.Container("/sub"), 1)

	h.lister.Remove("/", "sub")
	h.page(domain.Container("/"), 1)

	if n := len(h.children("/sub")); n != 0 {
		t.Errorf("subtree still holds %d records", n)
	}
	if got := h.stateETag("/sub"); got != "<none>" {
		t.Errorf("subtree directory state = %q, want none", got)
	}
}

func TestRenamedDirectoryDropsOldSubtree(t *testing.T) {
	h := newHarness(t, false, 10)
	h.lister.Put("/", domain.Entry{Name: "old", FileID: "dir", IsDir: true})
	h.lister.PutFiles("/old", "f", 2)
	h.page(domain.Container("/"), 1)
	h.page(domain.Container("/old"), 1)

	h.lister.Remove("/", "dir")
	h.lister.Put("/", domain.Entry{Name: "new", FileID: "dir", IsDir: true})
	h.lister.PutFiles("/new", "f", 2)
	h.page(domain.Container("/"), 1)

	if n := len(h.children("/old")); n != 0 {
		t.Errorf("old subtree still holds %d records", n)
	}
	if got := h.stateETag("/new"); got != "" {
		t.Errorf("renamed directory state = %q, want seeded", got)
	}
}

func TestPaginated_PartialFetchDoesNotPrune(t *testing.T) {
	h := newHarness(t, true, 5)
	for i := 0; i < 12; i++ {
		id := fmt.Sprintf("f%02d", i)
		h.lister.Put("/", domain.Entry{Name: id, FileID: id, ETag: "v1"})
	}
	h.enumerateAll(domain.Container("/"))
	committed := h.stateETag("/")

	h.lister.Remove("/", "f00")
	h.lister.Put("/", domain.Entry{Name: "f05", FileID: "f05", ETag: "v2"})

	// Without a refresh run a later page only upserts
	h.page(domain.Container("/"), 2)
	if n := len(h.children("/")); n != 12 {
		t.Errorf("partial fetch pruned records: %d left", n)
	}
	if h.stateETag("/") != committed {
		t.Error("partial fetch must not commit the etag")
	}

	// A full run from the initial cursor prunes and commits
	h.enumerateAll(domain.Container("/"))
	if n := len(h.children("/")); n != 11 {
		t.Errorf("expected 11 records after refresh run, got %d", n)
	}
	if h.stateETag("/") == committed {
		t.Error("refresh run did not commit the new etag")
	}
}

func TestPaginated_SkippedPageIsNotClean(t *testing.T) {
	h := newHarness(t, true, 5)
	h.lister.PutFiles("/", "f", 12)

	h.page(domain.Container("/"), 1)
	// Jump straight to the final page
	h.page(domain.Container("/"), 3)

	if got := h.stateETag("/"); got != "" {
		t.Errorf("etag committed from an incomplete run: %q", got)
	}
	if h.engine.activeRun("/") != nil {
		t.Error("run should end on its final page")
	}
}

func TestReconcile_ReportsChanges(t *testing.T) {
	h := newHarness(t, true, 10)
	h.lister.PutFiles("/", "f", 3)
	ctx := context.Background()

	res, err := h.engine.Reconcile(ctx, "/")
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if !res.Changed || len(res.Updated) != 3 {
		t.Errorf("first reconcile = %+v", res)
	}

	res, err = h.engine.Reconcile(ctx, "/")
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if res.Changed || !res.Empty() {
		t.Errorf("idle reconcile = %+v", res)
	}

	if _, err := h.engine.Reconcile(ctx, "/missing"); !errors.Is(err, domain.ErrTransport) {
		t.Errorf("expected ErrTransport for a missing path, got %v", err)
	}
}

func TestTrackerReceivesWorkingSetChanges(t *testing.T) {
	h := newHarness(t, false, 10)
	h.lister.Put("/", domain.Entry{Name: "fav", FileID: "fav", ETag: "1", Favorite: true})
	h.lister.Put("/", domain.Entry{Name: "plain", FileID: "plain", ETag: "1"})
	h.page(domain.Container("/"), 1)

	ws := h.tracker.Drain(domain.WorkingSetClass)
	if len(ws.Updated) != 1 || ws.Updated[0].FileID != "fav" {
		t.Errorf("working set updates = %v", ids(ws.Updated))
	}
	if c := h.tracker.Drain(domain.ContainerClass); len(c.Updated) != 2 {
		t.Errorf("container updates = %v", ids(c.Updated))
	}

	// Unfavoriting removes it from the working set
	h.lister.Put("/", domain.Entry{Name: "fav", FileID: "fav", ETag: "2"})
	h.page(domain.Container("/"), 1)
	ws = h.tracker.Drain(domain.WorkingSetClass)
	if len(ws.Deleted) != 1 || ws.Deleted[0] != "fav" {
		t.Errorf("working set deletes = %v", ws.Deleted)
	}
}

func TestSameScopeSerialized(t *testing.T) {
	h := newHarness(t, false, 10)
	h.lister.PutFiles("/", "f", 20)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.engine.ResolvePage(context.Background(), domain.Container("/"), domain.InitialCursor()); err != nil {
				t.Errorf("ResolvePage failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := h.lister.Calls(testutil.CallListChildren); n != 1 {
		t.Errorf("expected a single full listing, got %d", n)
	}
}
