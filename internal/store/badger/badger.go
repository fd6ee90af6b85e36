// Package badger persists metadata records in an embedded BadgerDB.
package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/Ning0612/Syncenum/internal/domain"
	"github.com/Ning0612/Syncenum/internal/store"
)

// Config configures the Badger store
type Config struct {
	// Dir is the database directory; ignored when InMemory is set
	Dir string

	// InMemory keeps all data in memory
	InMemory bool
}

// Store is a BadgerDB backed store.Store
type Store struct {
	db *badgerdb.DB
}

var _ store.Store = (*Store)(nil)

// New opens the database
func New(cfg Config) (*Store, error) {
	var opts badgerdb.Options
	if cfg.InMemory {
		opts = badgerdb.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Dir == "" {
			return nil, fmt.Errorf("data directory cannot be empty")
		}
		opts = badgerdb.DefaultOptions(cfg.Dir)
	}
	opts = opts.WithLoggingLevel(badgerdb.WARNING)

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	return &Store{db: db}, nil
}

// GetDirectoryState implements store.Store
func (s *Store) GetDirectoryState(ctx context.Context, account, path string) (*domain.DirectoryState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var state *domain.DirectoryState
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(keyDirectory(account, domain.CleanPath(path)))
		if err == badgerdb.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			state = &domain.DirectoryState{}
			return json.Unmarshal(val, state)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get directory state: %w", err)
	}
	return state, nil
}

// UpsertDirectoryState implements store.Store
func (s *Store) UpsertDirectoryState(ctx context.Context, state domain.DirectoryState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	state.Path = domain.CleanPath(state.Path)
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now()
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode directory state: %w", err)
	}
	err = s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(keyDirectory(state.Account, state.Path), data)
	})
	if err != nil {
		return fmt.Errorf("failed to save directory state: %w", err)
	}
	return nil
}

// GetRecord implements store.Store
func (s *Store) GetRecord(ctx context.Context, account, fileID string) (*domain.MetadataRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rec *domain.MetadataRecord
	err := s.db.View(func(txn *badgerdb.Txn) error {
		var err error
		rec, err = getRecord(txn, account, fileID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return rec, nil
}

func getRecord(txn *badgerdb.Txn, account, fileID string) (*domain.MetadataRecord, error) {
	item, err := txn.Get(keyRecord(account, fileID))
	if err == badgerdb.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec domain.MetadataRecord
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	}); err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpsertRecord implements store.Store
func (s *Store) UpsertRecord(ctx context.Context, rec domain.MetadataRecord) error {
	return s.UpsertRecords(ctx, []domain.MetadataRecord{rec})
}

// UpsertRecords implements store.Store
func (s *Store) UpsertRecords(ctx context.Context, recs []domain.MetadataRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		for _, rec := range recs {
			if rec.FileID == "" {
				return store.ErrMissingID
			}
			rec.ParentPath = domain.CleanPath(rec.ParentPath)

			prev, err := getRecord(txn, rec.Account, rec.FileID)
			if err != nil {
				return err
			}
			// Renames and moves change the child index key
			if prev != nil && (prev.ParentPath != rec.ParentPath || prev.Name != rec.Name) {
				if err := txn.Delete(keyChild(prev.Account, prev.ParentPath, prev.Name, prev.FileID)); err != nil {
					return err
				}
			}

			data, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("failed to encode record %s: %w", rec.FileID, err)
			}
			if err := txn.Set(keyRecord(rec.Account, rec.FileID), data); err != nil {
				return err
			}
			if err := txn.Set(keyChild(rec.Account, rec.ParentPath, rec.Name, rec.FileID), []byte(rec.FileID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save records: %w", err)
	}
	return nil
}

// QueryRecords implements store.Store
func (s *Store) QueryRecords(ctx context.Context, q store.Query) ([]domain.MetadataRecord, error) {
	var out []domain.MetadataRecord
	err := s.db.View(func(txn *badgerdb.Txn) error {
		if q.ParentPath != "" {
			var err error
			out, err = queryChildren(ctx, txn, q)
			return err
		}

		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = keyRecordPrefix(q.Account)
		it := txn.NewIterator(opts)
		defer it.Close()

		n := 0
		for it.Rewind(); it.Valid(); it.Next() {
			if n%100 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			n++

			var rec domain.MetadataRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			if q.Matches(rec) {
				out = append(out, rec)
			}
		}
		store.SortRecords(out)
		out = store.Window(out, q.Offset, q.Limit)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	return out, nil
}

// queryChildren walks the name-ordered child index, stopping once the window is full
func queryChildren(ctx context.Context, txn *badgerdb.Txn, q store.Query) ([]domain.MetadataRecord, error) {
	opts := badgerdb.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = keyChildPrefix(q.Account, domain.CleanPath(q.ParentPath))
	it := txn.NewIterator(opts)
	defer it.Close()

	var out []domain.MetadataRecord
	skipped := 0
	n := 0
	for it.Rewind(); it.Valid(); it.Next() {
		if n%100 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		n++

		fileID, err := it.Item().ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		rec, err := getRecord(txn, q.Account, string(fileID))
		if err != nil {
			return nil, err
		}
		// Dangling index entry
		if rec == nil || !q.Matches(*rec) {
			continue
		}
		if skipped < q.Offset {
			skipped++
			continue
		}
		out = append(out, *rec)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

// DeleteRecord implements store.Store
func (s *Store) DeleteRecord(ctx context.Context, account, fileID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return deleteRecord(txn, account, fileID)
	})
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

func deleteRecord(txn *badgerdb.Txn, account, fileID string) error {
	rec, err := getRecord(txn, account, fileID)
	if err != nil || rec == nil {
		return err
	}
	if err := txn.Delete(keyChild(account, rec.ParentPath, rec.Name, fileID)); err != nil {
		return err
	}
	return txn.Delete(keyRecord(account, fileID))
}

// DeleteRecordsNotIn implements store.Store
func (s *Store) DeleteRecordsNotIn(ctx context.Context, account, parentPath string, keep []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	keepSet := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		keepSet[id] = struct{}{}
	}

	removed := 0
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		var stale []string
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = keyChildPrefix(account, domain.CleanPath(parentPath))
		it := txn.NewIterator(opts)
		for it.Rewind(); it.Valid(); it.Next() {
			id, err := it.Item().ValueCopy(nil)
			if err != nil {
				it.Close()
				return err
			}
			if _, ok := keepSet[string(id)]; !ok {
				stale = append(stale, string(id))
			}
		}
		it.Close()

		for _, id := range stale {
			if err := deleteRecord(txn, account, id); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale records: %w", err)
	}
	return removed, nil
}

// DeleteTree implements store.Store
func (s *Store) DeleteTree(ctx context.Context, account, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path = domain.CleanPath(path)
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		var ids []string
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = keyChildAccountPrefix(account)
		it := txn.NewIterator(opts)
		for it.Rewind(); it.Valid(); it.Next() {
			if !store.InTree(path, parentFromChildKey(account, it.Item().Key())) {
				continue
			}
			id, err := it.Item().ValueCopy(nil)
			if err != nil {
				it.Close()
				return err
			}
			ids = append(ids, string(id))
		}
		it.Close()

		var dirs [][]byte
		opts.Prefix = keyDirectoryPrefix(account)
		it = txn.NewIterator(opts)
		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			if store.InTree(path, string(key[len(opts.Prefix):])) {
				dirs = append(dirs, key)
			}
		}
		it.Close()

		for _, id := range ids {
			if err := deleteRecord(txn, account, id); err != nil {
				return err
			}
		}
		for _, key := range dirs {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete tree: %w", err)
	}
	return nil
}

// PurgeAccount implements store.Store
func (s *Store) PurgeAccount(ctx context.Context, account string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	prefixes := [][]byte{
		keyRecordPrefix(account),
		keyChildAccountPrefix(account),
		keyDirectoryPrefix(account),
	}
	if err := s.db.DropPrefix(prefixes...); err != nil {
		return fmt.Errorf("failed to purge account: %w", err)
	}
	return nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}
