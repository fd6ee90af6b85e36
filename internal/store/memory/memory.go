// Package memory is an in-process metadata store used by tests and the
// "memory" store type.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Ning0612/Syncenum/internal/domain"
	"github.com/Ning0612/Syncenum/internal/store"
)

type accountData struct {
	records map[string]domain.MetadataRecord
	dirs    map[string]domain.DirectoryState
}

// Store keeps records in maps guarded by a RWMutex
type Store struct {
	mu       sync.RWMutex
	accounts map[string]*accountData
	closed   bool
}

// New creates an empty store
func New() *Store {
	return &Store{accounts: make(map[string]*accountData)}
}

var _ store.Store = (*Store)(nil)

func (s *Store) account(name string) *accountData {
	a, ok := s.accounts[name]
	if !ok {
		a = &accountData{
			records: make(map[string]domain.MetadataRecord),
			dirs:    make(map[string]domain.DirectoryState),
		}
		s.accounts[name] = a
	}
	return a
}

func (s *Store) check(ctx context.Context) error {
	if s.closed {
		return store.ErrClosed
	}
	return ctx.Err()
}

// GetDirectoryState implements store.Store
func (s *Store) GetDirectoryState(ctx context.Context, account, path string) (*domain.DirectoryState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	a, ok := s.accounts[account]
	if !ok {
		return nil, nil
	}
	st, ok := a.dirs[domain.CleanPath(path)]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

// UpsertDirectoryState implements store.Store
func (s *Store) UpsertDirectoryState(ctx context.Context, state domain.DirectoryState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	state.Path = domain.CleanPath(state.Path)
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now()
	}
	s.account(state.Account).dirs[state.Path] = state
	return nil
}

// GetRecord implements store.Store
func (s *Store) GetRecord(ctx context.Context, account, fileID string) (*domain.MetadataRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	a, ok := s.accounts[account]
	if !ok {
		return nil, nil
	}
	rec, ok := a.records[fileID]
	if !ok {
		return nil, nil
	}
	return copyRecord(rec), nil
}

// UpsertRecord implements store.Store
func (s *Store) UpsertRecord(ctx context.Context, rec domain.MetadataRecord) error {
	return s.UpsertRecords(ctx, []domain.MetadataRecord{rec})
}

// UpsertRecords implements store.Store
func (s *Store) UpsertRecords(ctx context.Context, recs []domain.MetadataRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	for _, rec := range recs {
		if rec.FileID == "" {
			return store.ErrMissingID
		}
		rec.ParentPath = domain.CleanPath(rec.ParentPath)
		s.account(rec.Account).records[rec.FileID] = *copyRecord(rec)
	}
	return nil
}

// QueryRecords implements store.Store
func (s *Store) QueryRecords(ctx context.Context, q store.Query) ([]domain.MetadataRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	a, ok := s.accounts[q.Account]
	if !ok {
		return nil, nil
	}
	var out []domain.MetadataRecord
	for _, rec := range a.records {
		if q.Matches(rec) {
			out = append(out, *copyRecord(rec))
		}
	}
	store.SortRecords(out)
	return store.Window(out, q.Offset, q.Limit), nil
}

// DeleteRecord implements store.Store
func (s *Store) DeleteRecord(ctx context.Context, account, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	if a, ok := s.accounts[account]; ok {
		delete(a.records, fileID)
	}
	return nil
}

// DeleteRecordsNotIn implements store.Store
func (s *Store) DeleteRecordsNotIn(ctx context.Context, account, parentPath string, keep []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	a, ok := s.accounts[account]
	if !ok {
		return 0, nil
	}
	keepSet := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		keepSet[id] = struct{}{}
	}
	parentPath = domain.CleanPath(parentPath)
	removed := 0
	for id, rec := range a.records {
		if rec.ParentPath != parentPath {
			continue
		}
		if _, ok := keepSet[id]; ok {
			continue
		}
		delete(a.records, id)
		removed++
	}
	return removed, nil
}

// DeleteTree implements store.Store
func (s *Store) DeleteTree(ctx context.Context, account, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	a, ok := s.accounts[account]
	if !ok {
		return nil
	}
	for id, rec := range a.records {
		if store.InTree(path, rec.ParentPath) {
			delete(a.records, id)
		}
	}
	for p := range a.dirs {
		if store.InTree(path, p) {
			delete(a.dirs, p)
		}
	}
	return nil
}

// PurgeAccount implements store.Store
func (s *Store) PurgeAccount(ctx context.Context, account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	delete(s.accounts, account)
	return nil
}

// Close implements store.Store
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func copyRecord(rec domain.MetadataRecord) *domain.MetadataRecord {
	if rec.Tags != nil {
		rec.Tags = append([]string(nil), rec.Tags...)
	}
	return &rec
}
