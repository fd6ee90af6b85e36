// Package store defines the metadata cache consumed by the enumeration core.
package store

import (
	"context"
	"sort"

	"github.com/Ning0612/Syncenum/internal/domain"
)

// Store is a keyed, predicate-queryable metadata cache.
// All operations are scoped to one account. Lookups return nil, nil when the
// key is absent.
type Store interface {
	// GetDirectoryState returns the last merged state of a container path
	GetDirectoryState(ctx context.Context, account, path string) (*domain.DirectoryState, error)

	// UpsertDirectoryState writes the state of a container path
	UpsertDirectoryState(ctx context.Context, state domain.DirectoryState) error

	// GetRecord returns a record by file identifier
	GetRecord(ctx context.Context, account, fileID string) (*domain.MetadataRecord, error)

	// UpsertRecord inserts or replaces a record keyed by (account, file identifier)
	UpsertRecord(ctx context.Context, rec domain.MetadataRecord) error

	// UpsertRecords writes records in one batch
	UpsertRecords(ctx context.Context, recs []domain.MetadataRecord) error

	// QueryRecords returns matching records sorted by name, then identifier
	QueryRecords(ctx context.Context, q Query) ([]domain.MetadataRecord, error)

	// DeleteRecord removes one record; deleting an absent record is not an error
	DeleteRecord(ctx context.Context, account, fileID string) error

	// DeleteRecordsNotIn removes direct children of parentPath whose identifiers
	// are not in keep, returning the number removed
	DeleteRecordsNotIn(ctx context.Context, account, parentPath string, keep []string) (int, error)

	// DeleteTree removes every record and directory state below path
	DeleteTree(ctx context.Context, account, path string) error

	// PurgeAccount removes all records and directory states of an account
	PurgeAccount(ctx context.Context, account string) error

	// Close releases the backend
	Close() error
}

// Query selects records of one account
type Query struct {
	Account string

	// ParentPath restricts to direct children of a directory when non-empty
	ParentPath string

	// Favorite restricts to favorited records
	Favorite bool

	// Tagged restricts to records with at least one tag
	Tagged bool

	// Visible hides encrypted records and records busy in a session other than Session
	Visible bool
	Session string

	// Offset and Limit window the sorted result; Limit 0 means no limit
	Offset int
	Limit  int
}

// Matches reports whether rec satisfies every predicate of q except the window
func (q Query) Matches(rec domain.MetadataRecord) bool {
	if rec.Account != q.Account {
		return false
	}
	if q.ParentPath != "" && rec.ParentPath != domain.CleanPath(q.ParentPath) {
		return false
	}
	if q.Favorite && !rec.Favorite {
		return false
	}
	if q.Tagged && len(rec.Tags) == 0 {
		return false
	}
	if q.Visible && !rec.VisibleTo(q.Session) {
		return false
	}
	return true
}

// SortRecords orders records by name, then identifier
func SortRecords(recs []domain.MetadataRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Name != recs[j].Name {
			return recs[i].Name < recs[j].Name
		}
		return recs[i].FileID < recs[j].FileID
	})
}

// Window applies offset and limit to a sorted slice
func Window(recs []domain.MetadataRecord, offset, limit int) []domain.MetadataRecord {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(recs) {
		return nil
	}
	end := len(recs)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return recs[offset:end]
}

// InTree reports whether p equals root or lies below it
func InTree(root, p string) bool {
	root = domain.CleanPath(root)
	p = domain.CleanPath(p)
	if root == "/" || p == root {
		return true
	}
	return len(p) > len(root) && p[:len(root)] == root && p[len(root)] == '/'
}
