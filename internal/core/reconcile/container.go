package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/Ning0612/Syncenum/internal/adapter"
	"github.com/Ning0612/Syncenum/internal/domain"
	"github.com/Ning0612/Syncenum/internal/lock"
	"github.com/Ning0612/Syncenum/internal/metrics"
	"github.com/Ning0612/Syncenum/internal/store"
)

func (e *Engine) container(ctx context.Context, p string, cursor domain.PageCursor) (domain.Page, error) {
	unlock, err := e.locks.Lock(ctx, lock.Key(e.account, p))
	if err != nil {
		return domain.Page{}, err
	}
	defer unlock()

	if e.paginated {
		return e.pagedContainer(ctx, p, cursor)
	}
	return e.fullContainer(ctx, p, cursor)
}

// fullContainer reconciles on the first page and serves later pages from
// the cached full set
func (e *Engine) fullContainer(ctx context.Context, p string, cursor domain.PageCursor) (domain.Page, error) {
	if cursor.Page() > 1 {
		return e.window(ctx, p, cursor, metrics.SourceCache)
	}

	result, err := e.reconcileLocked(ctx, p)
	if err != nil {
		return e.fallback(ctx, p, cursor, err)
	}

	source := metrics.SourceCache
	if result.Changed {
		source = metrics.SourceRemote
	}
	return e.window(ctx, p, cursor, source)
}

// pagedContainer reads the container etag and fetches only the requested
// window from the remote when the cache may be stale
func (e *Engine) pagedContainer(ctx context.Context, p string, cursor domain.PageCursor) (domain.Page, error) {
	container, err := e.statContainer(ctx, p)
	if err != nil {
		return e.fallback(ctx, p, cursor, err)
	}

	state, err := e.store.GetDirectoryState(ctx, e.account, p)
	if err != nil {
		return domain.Page{}, e.storeError("get directory state", err)
	}

	run := e.activeRun(p)
	if run == nil && fresh(state, container) {
		return e.window(ctx, p, cursor, metrics.SourceCache)
	}
	if state == nil {
		if err := e.seed(ctx, p); err != nil {
			return domain.Page{}, err
		}
	}

	// Only the first page can start a refresh run; a restart drops the old one
	if cursor.Page() == 1 {
		run = e.startRun(p, container.ETag)
	} else if run != nil {
		run.visit(cursor.Page(), container.ETag)
	}

	start := time.Now()
	raw, err := e.lister.ListPage(ctx, p, cursor.Offset(e.pageSize), e.pageSize)
	e.metrics.ObserveLister("list_page", start, err)
	if err != nil {
		if run != nil {
			run.invalidate()
		}
		return e.fallback(ctx, p, cursor, domain.TransportError("list page "+p, err))
	}

	if _, err := e.merge(ctx, p, raw, false); err != nil {
		return domain.Page{}, err
	}

	if run != nil {
		run.observe(raw)
		if len(raw) < e.pageSize {
			if err := e.finishRun(ctx, p, run); err != nil {
				return domain.Page{}, err
			}
		}
	}

	return e.window(ctx, p, cursor, metrics.SourceRemote)
}

// reconcileLocked is the full-depth merge. The caller holds the scope lock.
func (e *Engine) reconcileLocked(ctx context.Context, p string) (MergeResult, error) {
	container, err := e.statContainer(ctx, p)
	if err != nil {
		return MergeResult{}, err
	}

	state, err := e.store.GetDirectoryState(ctx, e.account, p)
	if err != nil {
		return MergeResult{}, e.storeError("get directory state", err)
	}
	if fresh(state, container) {
		return MergeResult{}, nil
	}

	start := time.Now()
	entries, err := e.lister.List(ctx, p, adapter.DepthChildren)
	e.metrics.ObserveLister("list_children", start, err)
	if err != nil {
		return MergeResult{}, domain.TransportError("list "+p, err)
	}
	full, children := adapter.Split(entries)
	if full == nil {
		return MergeResult{}, domain.TransportError("list "+p, domain.ErrNotFound)
	}

	result, err := e.merge(ctx, p, children, true)
	if err != nil {
		return MergeResult{}, err
	}
	if err := e.commit(ctx, p, full.ETag); err != nil {
		return MergeResult{}, err
	}

	result.Changed = true
	e.log.Debug("Container reconciled",
		"path", p,
		"etag", full.ETag,
		"updated", len(result.Updated),
		"deleted", len(result.Deleted),
	)
	return result, nil
}

// statContainer lists the container alone to read its etag
func (e *Engine) statContainer(ctx context.Context, p string) (*domain.Entry, error) {
	start := time.Now()
	entries, err := e.lister.List(ctx, p, adapter.DepthContainer)
	e.metrics.ObserveLister("list_container", start, err)
	if err != nil {
		return nil, domain.TransportError("stat "+p, err)
	}
	container, _ := adapter.Split(entries)
	if container == nil {
		return nil, domain.TransportError("stat "+p, domain.ErrNotFound)
	}
	return container, nil
}

// fresh reports whether the cached etag proves the container unchanged
func fresh(state *domain.DirectoryState, container *domain.Entry) bool {
	return state != nil && state.ETag != "" && state.ETag == container.ETag
}

// commit records the etag of a successfully merged listing
func (e *Engine) commit(ctx context.Context, p, etag string) error {
	err := e.store.UpsertDirectoryState(ctx, domain.DirectoryState{
		Account:   e.account,
		Path:      p,
		ETag:      etag,
		UpdatedAt: e.now().UTC(),
	})
	if err != nil {
		return e.storeError("upsert directory state", err)
	}
	return nil
}

// window serves one page of the cached children of p.
// Filtering happens in the query so a full page always means more may follow.
func (e *Engine) window(ctx context.Context, p string, cursor domain.PageCursor, source string) (domain.Page, error) {
	items, err := e.store.QueryRecords(ctx, store.Query{
		Account:    e.account,
		ParentPath: p,
		Visible:    true,
		Session:    e.session,
		Offset:     cursor.Offset(e.pageSize),
		Limit:      e.pageSize,
	})
	if err != nil {
		return domain.Page{}, e.storeError("query children", err)
	}

	page := domain.Page{Items: items}
	if len(items) == e.pageSize {
		next := cursor.Next()
		page.Next = &next
	}
	e.metrics.PageResolved(domain.ScopeContainer.String(), source)
	return page, nil
}

// fallback serves the cached window after a failure. Only transport
// failures are recovered; cancellation and store errors are returned.
func (e *Engine) fallback(ctx context.Context, p string, cursor domain.PageCursor, cause error) (domain.Page, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return domain.Page{}, ctxErr
	}
	if !errors.Is(cause, domain.ErrTransport) {
		return domain.Page{}, cause
	}

	e.log.Warn("Remote listing failed, serving cached page",
		"path", p,
		"page", cursor.Page(),
		"error", cause,
	)
	e.metrics.Fallback(e.account)
	return e.window(ctx, p, cursor, metrics.SourceFallback)
}
