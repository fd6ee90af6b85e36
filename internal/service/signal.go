// Package service hosts the operations that change the metadata cache from
// outside an enumeration: item signals and the background watcher.
package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/Ning0612/Syncenum/internal/account"
	"github.com/Ning0612/Syncenum/internal/domain"
	"github.com/Ning0612/Syncenum/internal/lock"
)

// Signals applies item-level mutations for one account and registers them
// with the account's change tracker
type Signals struct {
	acct *account.Context
}

// NewSignals creates the signal handler of an account
func NewSignals(c *account.Context) *Signals {
	return &Signals{acct: c}
}

// ItemUpdated upserts a remote entry reported outside a listing.
// Local state of an existing record is preserved.
func (s *Signals) ItemUpdated(ctx context.Context, e domain.Entry) (domain.MetadataRecord, error) {
	if e.FileID == "" {
		return domain.MetadataRecord{}, fmt.Errorf("%w: entry without identifier", domain.ErrNotFound)
	}

	unlock, err := s.lockPath(ctx, domain.CleanPath(e.ParentPath))
	if err != nil {
		return domain.MetadataRecord{}, err
	}
	defer unlock()

	prev, err := s.acct.Store.GetRecord(ctx, s.acct.Name(), e.FileID)
	if err != nil {
		return domain.MetadataRecord{}, domain.StoreError("get record", err)
	}

	rec := domain.NewRecord(s.acct.Name(), e, prev)
	if err := s.acct.Store.UpsertRecord(ctx, rec); err != nil {
		return domain.MetadataRecord{}, domain.StoreError("upsert record", err)
	}
	if rec.IsDir && prev == nil {
		if err := s.seed(ctx, rec.Path()); err != nil {
			return domain.MetadataRecord{}, err
		}
	}

	s.recordUpdate(prev, rec)
	s.acct.Logger().Debug("Item updated", "file_id", rec.FileID, "path", rec.Path())
	return rec, nil
}

// ItemDeleted removes a record reported deleted by the remote.
// Deleting a directory drops its cached subtree. Unknown identifiers are ignored.
func (s *Signals) ItemDeleted(ctx context.Context, fileID string) error {
	prev, unlock, err := s.lockRecord(ctx, fileID)
	if err != nil {
		return err
	}
	if prev == nil {
		return nil
	}
	defer unlock()

	if err := s.acct.Store.DeleteRecord(ctx, s.acct.Name(), fileID); err != nil {
		return domain.StoreError("delete record", err)
	}
	if prev.IsDir {
		if err := s.acct.Store.DeleteTree(ctx, s.acct.Name(), prev.Path()); err != nil {
			return domain.StoreError("delete tree", err)
		}
	}

	t := s.acct.Tracker
	t.RecordDeleted(domain.ContainerClass, fileID)
	if prev.InWorkingSet() {
		t.RecordDeleted(domain.WorkingSetClass, fileID)
	}
	s.publishPending()
	s.acct.Logger().Debug("Item deleted", "file_id", fileID, "path", prev.Path())
	return nil
}

// SetFavorite sets the favorite flag of a record
func (s *Signals) SetFavorite(ctx context.Context, fileID string, favorite bool) (domain.MetadataRecord, error) {
	return s.mutate(ctx, fileID, func(rec *domain.MetadataRecord) {
		rec.Favorite = favorite
	})
}

// SetTags replaces the tag set of a record. Tags are de-duplicated and sorted.
func (s *Signals) SetTags(ctx context.Context, fileID string, tags []string) (domain.MetadataRecord, error) {
	normalized := normalizeTags(tags)
	return s.mutate(ctx, fileID, func(rec *domain.MetadataRecord) {
		rec.Tags = normalized
	})
}

// BeginTransfer tags a record as busy in a transfer session.
// The record is hidden from enumerators of other sessions until EndTransfer.
func (s *Signals) BeginTransfer(ctx context.Context, fileID, session string) error {
	if session == "" {
		return fmt.Errorf("transfer session cannot be empty")
	}
	_, err := s.mutate(ctx, fileID, func(rec *domain.MetadataRecord) {
		rec.Session = session
	})
	return err
}

// EndTransfer clears the transfer session of a record
func (s *Signals) EndTransfer(ctx context.Context, fileID string) error {
	_, err := s.mutate(ctx, fileID, func(rec *domain.MetadataRecord) {
		rec.Session = ""
	})
	return err
}

func (s *Signals) mutate(ctx context.Context, fileID string, apply func(rec *domain.MetadataRecord)) (domain.MetadataRecord, error) {
	prev, unlock, err := s.lockRecord(ctx, fileID)
	if err != nil {
		return domain.MetadataRecord{}, err
	}
	if prev == nil {
		return domain.MetadataRecord{}, fmt.Errorf("%w: %s", domain.ErrNotFound, fileID)
	}
	defer unlock()

	rec := *prev
	rec.Tags = append([]string(nil), prev.Tags...)
	apply(&rec)

	if err := s.acct.Store.UpsertRecord(ctx, rec); err != nil {
		return domain.MetadataRecord{}, domain.StoreError("upsert record", err)
	}
	s.recordUpdate(prev, rec)
	return rec, nil
}

// lockRecord locks the parent scope of fileID and returns its record read
// under the lock. The record is nil (and nothing is held) when absent.
func (s *Signals) lockRecord(ctx context.Context, fileID string) (*domain.MetadataRecord, func(), error) {
	rec, err := s.acct.Store.GetRecord(ctx, s.acct.Name(), fileID)
	if err != nil {
		return nil, nil, domain.StoreError("get record", err)
	}
	if rec == nil {
		return nil, func() {}, nil
	}

	unlock, err := s.lockPath(ctx, rec.ParentPath)
	if err != nil {
		return nil, nil, err
	}

	// 取得鎖後重新讀取，期間可能已被合併更新
	rec, err = s.acct.Store.GetRecord(ctx, s.acct.Name(), fileID)
	if err != nil {
		unlock()
		return nil, nil, domain.StoreError("get record", err)
	}
	if rec == nil {
		unlock()
		return nil, func() {}, nil
	}
	return rec, unlock, nil
}

func (s *Signals) lockPath(ctx context.Context, p string) (func(), error) {
	return s.acct.Locks.Lock(ctx, lock.Key(s.acct.Name(), p))
}

func (s *Signals) seed(ctx context.Context, p string) error {
	state, err := s.acct.Store.GetDirectoryState(ctx, s.acct.Name(), p)
	if err != nil {
		return domain.StoreError("get directory state", err)
	}
	if state != nil {
		return nil
	}
	err = s.acct.Store.UpsertDirectoryState(ctx, domain.DirectoryState{Account: s.acct.Name(), Path: p})
	if err != nil {
		return domain.StoreError("seed directory state", err)
	}
	return nil
}

func (s *Signals) recordUpdate(prev *domain.MetadataRecord, rec domain.MetadataRecord) {
	t := s.acct.Tracker
	t.RecordUpdated(domain.ContainerClass, rec)
	switch {
	case rec.InWorkingSet():
		t.RecordUpdated(domain.WorkingSetClass, rec)
	case prev != nil && prev.InWorkingSet():
		t.RecordDeleted(domain.WorkingSetClass, rec.FileID)
	}
	s.publishPending()
}

func (s *Signals) publishPending() {
	for _, class := range []domain.ScopeClass{domain.ContainerClass, domain.WorkingSetClass} {
		d, u := s.acct.Tracker.Pending(class)
		s.acct.Metrics().SetPending(s.acct.Name(), class.String(), d+u)
	}
}

func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil
	}
	return out
}
