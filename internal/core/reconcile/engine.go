// Package reconcile resolves enumeration pages by merging remote listings
// into the metadata store.
//
// 每個帳號一個 Engine。同一個 (account, path) 的呼叫會被序列化，
// 不同 scope 可以並行。
package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Ning0612/Syncenum/internal/adapter"
	"github.com/Ning0612/Syncenum/internal/anchor"
	"github.com/Ning0612/Syncenum/internal/core/diff"
	"github.com/Ning0612/Syncenum/internal/domain"
	"github.com/Ning0612/Syncenum/internal/lock"
	"github.com/Ning0612/Syncenum/internal/logger"
	"github.com/Ning0612/Syncenum/internal/metrics"
	"github.com/Ning0612/Syncenum/internal/store"
)

// Options configures an Engine
type Options struct {
	// Account scopes every store call
	Account string

	// Session is the background session; records busy in other sessions are hidden
	Session string

	// PageSize is the number of items per page (domain.DefaultPageSize when 0)
	PageSize int

	// Pagination selects offset/limit listing instead of full-depth listing
	Pagination bool

	// Tracker receives every merged update and deletion when set
	Tracker *anchor.Tracker

	// Locks is shared between engines that serve the same account
	Locks *lock.ScopeLocks

	Comparer diff.Comparer
	Logger   logger.Logger
	Metrics  *metrics.Metrics

	// Now is the clock used for directory state timestamps
	Now func() time.Time
}

// MergeResult describes what one merge changed in the store
type MergeResult struct {
	Updated []domain.MetadataRecord
	Deleted []domain.MetadataRecord

	// Changed is true when the container etag differed from the cached one
	Changed bool
}

// Empty reports whether the merge wrote nothing
func (r MergeResult) Empty() bool {
	return len(r.Updated) == 0 && len(r.Deleted) == 0
}

// Engine is the reconciliation engine of one account
type Engine struct {
	account   string
	session   string
	pageSize  int
	paginated bool

	store   store.Store
	lister  adapter.Lister
	planner *diff.Planner
	tracker *anchor.Tracker
	locks   *lock.ScopeLocks
	group   singleflight.Group

	log     logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	runsMu sync.Mutex
	runs   map[string]*refreshRun
}

// New creates an engine over a store and a lister
func New(st store.Store, l adapter.Lister, opts Options) *Engine {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = domain.DefaultPageSize
	}
	log := opts.Logger
	if log == nil {
		log = &logger.NullLogger{}
	}
	locks := opts.Locks
	if locks == nil {
		locks = lock.NewScopeLocks()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		account:   opts.Account,
		session:   opts.Session,
		pageSize:  pageSize,
		paginated: opts.Pagination,
		store:     st,
		lister:    l,
		planner:   diff.NewPlanner(opts.Account, opts.Comparer),
		tracker:   opts.Tracker,
		locks:     locks,
		log:       log.With("component", "reconcile", "account", opts.Account),
		metrics:   opts.Metrics,
		now:       now,
		runs:      make(map[string]*refreshRun),
	}
}

// PageSize returns the effective page size
func (e *Engine) PageSize() int { return e.pageSize }

// Account returns the account the engine serves
func (e *Engine) Account() string { return e.account }

// ResolvePage returns one page of scope.
// Lister failures fall back to cached data; store failures are returned and
// match domain.ErrStore.
func (e *Engine) ResolvePage(ctx context.Context, scope domain.Scope, cursor domain.PageCursor) (domain.Page, error) {
	switch scope.Kind() {
	case domain.ScopeWorkingSet:
		return e.workingSet(ctx)
	case domain.ScopeContainer:
		return e.container(ctx, scope.Path(), cursor)
	default:
		return domain.Page{}, fmt.Errorf("unknown scope kind %v", scope.Kind())
	}
}

// Reconcile performs a full-depth merge of path and reports the changes
func (e *Engine) Reconcile(ctx context.Context, p string) (MergeResult, error) {
	p = domain.CleanPath(p)
	unlock, err := e.locks.Lock(ctx, lock.Key(e.account, p))
	if err != nil {
		return MergeResult{}, err
	}
	defer unlock()

	// A full merge supersedes any paginated refresh in progress
	e.endRun(p)
	return e.reconcileLocked(ctx, p)
}

// workingSet gathers favorited and tagged records as a single page.
// Concurrent gathers share one store pass; it runs detached from any single
// caller's cancellation while each caller still returns on its own ctx.
func (e *Engine) workingSet(ctx context.Context) (domain.Page, error) {
	shared := context.WithoutCancel(ctx)
	ch := e.group.DoChan("workingset", func() (interface{}, error) {
		ctx := shared
		favorites, err := e.store.QueryRecords(ctx, store.Query{Account: e.account, Favorite: true})
		if err != nil {
			return nil, e.storeError("query favorites", err)
		}
		tagged, err := e.store.QueryRecords(ctx, store.Query{Account: e.account, Tagged: true})
		if err != nil {
			return nil, e.storeError("query tagged", err)
		}

		seen := make(map[string]struct{}, len(favorites)+len(tagged))
		items := make([]domain.MetadataRecord, 0, len(favorites)+len(tagged))
		for _, group := range [][]domain.MetadataRecord{favorites, tagged} {
			for _, rec := range group {
				if _, dup := seen[rec.FileID]; dup {
					continue
				}
				seen[rec.FileID] = struct{}{}
				items = append(items, rec)
			}
		}
		store.SortRecords(items)
		return items, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return domain.Page{}, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return domain.Page{}, res.Err
	}

	items := res.Val.([]domain.MetadataRecord)
	e.metrics.PageResolved(domain.ScopeWorkingSet.String(), metrics.SourceCache)
	return domain.Page{Items: append([]domain.MetadataRecord(nil), items...)}, nil
}

func (e *Engine) storeError(op string, err error) error {
	e.metrics.StoreError(op)
	e.log.Error("Metadata store failure", "op", op, "error", err)
	return domain.StoreError(op, err)
}
