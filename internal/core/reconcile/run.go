package reconcile

import (
	"context"

	"github.com/Ning0612/Syncenum/internal/domain"
)

// refreshRun tracks a paginated re-listing of one path. Deletions and the
// etag commit wait for the final page, and only happen when every page was
// fetched in order under an unchanged etag.
type refreshRun struct {
	etag  string
	next  int
	clean bool
	seen  map[string]struct{}
}

func (r *refreshRun) visit(page int, etag string) {
	if page != r.next || etag != r.etag {
		r.clean = false
	}
}

func (r *refreshRun) observe(entries []domain.Entry) {
	for _, en := range entries {
		if en.FileID != "" {
			r.seen[en.FileID] = struct{}{}
		}
	}
	r.next++
}

func (r *refreshRun) invalidate() {
	r.clean = false
}

func (r *refreshRun) keep() []string {
	ids := make([]string, 0, len(r.seen))
	for id := range r.seen {
		ids = append(ids, id)
	}
	return ids
}

func (e *Engine) activeRun(p string) *refreshRun {
	e.runsMu.Lock()
	defer e.runsMu.Unlock()
	return e.runs[p]
}

func (e *Engine) startRun(p, etag string) *refreshRun {
	run := &refreshRun{
		etag:  etag,
		next:  1,
		clean: true,
		seen:  make(map[string]struct{}),
	}
	e.runsMu.Lock()
	e.runs[p] = run
	e.runsMu.Unlock()
	return run
}

func (e *Engine) endRun(p string) {
	e.runsMu.Lock()
	delete(e.runs, p)
	e.runsMu.Unlock()
}

// finishRun closes the run after its final page
func (e *Engine) finishRun(ctx context.Context, p string, run *refreshRun) error {
	e.endRun(p)
	if !run.clean {
		e.log.Debug("Refresh run incomplete, skipping delete and commit", "path", p)
		return nil
	}

	if _, err := e.prune(ctx, p, run.keep()); err != nil {
		return err
	}
	return e.commit(ctx, p, run.etag)
}
