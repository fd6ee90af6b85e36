package reconcile

import (
	"context"

	"github.com/Ning0612/Syncenum/internal/domain"
	"github.com/Ning0612/Syncenum/internal/store"
)

// merge applies a listing of the children of p to the store. When complete
// is true the listing is authoritative and unobserved children are removed.
func (e *Engine) merge(ctx context.Context, p string, children []domain.Entry, complete bool) (MergeResult, error) {
	cached, err := e.store.QueryRecords(ctx, store.Query{Account: e.account, ParentPath: p})
	if err != nil {
		return MergeResult{}, e.storeError("query children", err)
	}
	prev := make(map[string]*domain.MetadataRecord, len(cached))
	for i := range cached {
		prev[cached[i].FileID] = &cached[i]
	}

	plan := e.planner.Plan(children, cached, complete)

	// Records moved in from another directory keep their local state
	for i := range plan.Upserts {
		rec := &plan.Upserts[i]
		if _, ok := prev[rec.FileID]; ok {
			continue
		}
		old, err := e.store.GetRecord(ctx, e.account, rec.FileID)
		if err != nil {
			return MergeResult{}, e.storeError("get record", err)
		}
		if old != nil {
			rec.Session = old.Session
			rec.Tags = append([]string(nil), old.Tags...)
			prev[rec.FileID] = old
		}
	}

	if len(plan.Upserts) > 0 {
		if err := e.store.UpsertRecords(ctx, plan.Upserts); err != nil {
			return MergeResult{}, e.storeError("upsert records", err)
		}
	}

	for _, rec := range plan.Upserts {
		old := prev[rec.FileID]
		if old == nil || !old.IsDir || old.Path() == rec.Path() {
			continue
		}
		// A renamed directory leaves its old subtree behind
		if err := e.store.DeleteTree(ctx, e.account, old.Path()); err != nil {
			return MergeResult{}, e.storeError("delete tree", err)
		}
		if err := e.seed(ctx, rec.Path()); err != nil {
			return MergeResult{}, err
		}
	}
	for _, dir := range plan.NewDirs {
		if err := e.seed(ctx, dir); err != nil {
			return MergeResult{}, err
		}
	}

	e.recordUpdates(prev, plan.Upserts)
	result := MergeResult{Updated: plan.Upserts}

	if complete && len(plan.Removed) > 0 {
		keep := make([]string, 0, len(children))
		for _, c := range children {
			keep = append(keep, c.FileID)
		}
		removed, err := e.prune(ctx, p, keep)
		if err != nil {
			return MergeResult{}, err
		}
		result.Deleted = removed
	}

	e.metrics.Reconciled(len(result.Updated), len(result.Deleted))
	return result, nil
}

// prune deletes the children of p not in keep, along with the subtrees of
// removed directories
func (e *Engine) prune(ctx context.Context, p string, keep []string) ([]domain.MetadataRecord, error) {
	cached, err := e.store.QueryRecords(ctx, store.Query{Account: e.account, ParentPath: p})
	if err != nil {
		return nil, e.storeError("query children", err)
	}
	kept := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		kept[id] = struct{}{}
	}
	var removed []domain.MetadataRecord
	for _, rec := range cached {
		if _, ok := kept[rec.FileID]; !ok {
			removed = append(removed, rec)
		}
	}
	if len(removed) == 0 {
		return nil, nil
	}

	if _, err := e.store.DeleteRecordsNotIn(ctx, e.account, p, keep); err != nil {
		return nil, e.storeError("delete records", err)
	}
	for _, rec := range removed {
		if !rec.IsDir {
			continue
		}
		if err := e.store.DeleteTree(ctx, e.account, rec.Path()); err != nil {
			return nil, e.storeError("delete tree", err)
		}
	}

	e.recordDeletes(removed)
	return removed, nil
}

// seed creates an empty directory state for p unless one exists, so the
// first enumeration of p always lists it
func (e *Engine) seed(ctx context.Context, p string) error {
	state, err := e.store.GetDirectoryState(ctx, e.account, p)
	if err != nil {
		return e.storeError("get directory state", err)
	}
	if state != nil {
		return nil
	}
	if err := e.store.UpsertDirectoryState(ctx, domain.DirectoryState{
		Account:   e.account,
		Path:      domain.CleanPath(p),
		UpdatedAt: e.now().UTC(),
	}); err != nil {
		return e.storeError("seed directory state", err)
	}
	return nil
}

func (e *Engine) recordUpdates(prev map[string]*domain.MetadataRecord, recs []domain.MetadataRecord) {
	if e.tracker == nil || len(recs) == 0 {
		return
	}
	for _, rec := range recs {
		e.tracker.RecordUpdated(domain.ContainerClass, rec)
		switch old := prev[rec.FileID]; {
		case rec.InWorkingSet():
			e.tracker.RecordUpdated(domain.WorkingSetClass, rec)
		case old != nil && old.InWorkingSet():
			// 離開 working set
			e.tracker.RecordDeleted(domain.WorkingSetClass, rec.FileID)
		}
	}
	e.publishPending()
}

func (e *Engine) recordDeletes(recs []domain.MetadataRecord) {
	if e.tracker == nil || len(recs) == 0 {
		return
	}
	for _, rec := range recs {
		e.tracker.RecordDeleted(domain.ContainerClass, rec.FileID)
		if rec.InWorkingSet() {
			e.tracker.RecordDeleted(domain.WorkingSetClass, rec.FileID)
		}
	}
	e.publishPending()
}

func (e *Engine) publishPending() {
	for _, class := range []domain.ScopeClass{domain.ContainerClass, domain.WorkingSetClass} {
		d, u := e.tracker.Pending(class)
		e.metrics.SetPending(e.account, class.String(), d+u)
	}
}
