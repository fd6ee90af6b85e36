package diff

import (
	"sort"

	"github.com/Ning0612/Syncenum/internal/domain"
)

// DiffResult represents the comparison result between a remote entry and its cached record
type DiffResult int

const (
	// Identical indicates the cached record is current
	Identical DiffResult = iota
	// Modified indicates the entry exists in both but the cached state is outdated
	Modified
	// OnlyRemote indicates the entry has not been cached yet
	OnlyRemote
	// OnlyCached indicates the cached record is no longer listed remotely
	OnlyCached
)

// String returns the result name
func (r DiffResult) String() string {
	switch r {
	case Identical:
		return "identical"
	case Modified:
		return "modified"
	case OnlyRemote:
		return "only_remote"
	case OnlyCached:
		return "only_cached"
	default:
		return "unknown"
	}
}

// Comparer decides whether a cached record must be rewritten
type Comparer interface {
	// Compare compares a remote entry against the cached record with the same identifier
	Compare(remote *domain.Entry, cached *domain.MetadataRecord) DiffResult
}

// ETagComparer compares etags and the remote favorite flag.
// Renames and moves are detected through the name and parent path.
type ETagComparer struct{}

// NewETagComparer creates a new ETagComparer
func NewETagComparer() *ETagComparer {
	return &ETagComparer{}
}

// Compare implements the Comparer interface
func (c *ETagComparer) Compare(remote *domain.Entry, cached *domain.MetadataRecord) DiffResult {
	if remote == nil && cached == nil {
		return Identical
	}
	if cached == nil {
		return OnlyRemote
	}
	if remote == nil {
		return OnlyCached
	}

	// An empty etag never proves freshness
	if remote.ETag == "" || remote.ETag != cached.ETag {
		return Modified
	}
	if remote.Favorite != cached.Favorite {
		return Modified
	}
	if remote.Name != cached.Name || domain.CleanPath(remote.ParentPath) != cached.ParentPath {
		return Modified
	}
	if remote.Encrypted != cached.Encrypted || remote.Permissions != cached.Permissions {
		return Modified
	}
	return Identical
}

// Plan is the set of store writes a listing merge needs
type Plan struct {
	// Upserts are records to write, new or modified
	Upserts []domain.MetadataRecord

	// Unchanged counts entries whose cached record is current
	Unchanged int

	// Removed are cached records the listing no longer observes
	Removed []domain.MetadataRecord

	// NewDirs are paths of directories observed for the first time
	NewDirs []string
}

// Empty reports whether the plan writes nothing
func (p Plan) Empty() bool {
	return len(p.Upserts) == 0 && len(p.Removed) == 0
}

// Planner builds merge plans for one account
type Planner struct {
	account  string
	comparer Comparer
}

// NewPlanner creates a planner; a nil comparer selects ETagComparer
func NewPlanner(account string, comparer Comparer) *Planner {
	if comparer == nil {
		comparer = NewETagComparer()
	}
	return &Planner{account: account, comparer: comparer}
}

// Plan compares the remote children of a directory with its cached children.
// When complete is false the listing is only a window, so nothing is removed.
func (p *Planner) Plan(remote []domain.Entry, cached []domain.MetadataRecord, complete bool) Plan {
	byID := make(map[string]*domain.MetadataRecord, len(cached))
	for i := range cached {
		byID[cached[i].FileID] = &cached[i]
	}

	var plan Plan
	seen := make(map[string]struct{}, len(remote))
	for i := range remote {
		e := &remote[i]
		if e.FileID == "" {
			continue
		}
		if _, dup := seen[e.FileID]; dup {
			continue
		}
		seen[e.FileID] = struct{}{}

		prev := byID[e.FileID]
		switch p.comparer.Compare(e, prev) {
		case Identical:
			plan.Unchanged++
		case OnlyRemote:
			if e.IsDir {
				plan.NewDirs = append(plan.NewDirs, e.Path())
			}
			plan.Upserts = append(plan.Upserts, domain.NewRecord(p.account, *e, nil))
		case Modified:
			plan.Upserts = append(plan.Upserts, domain.NewRecord(p.account, *e, prev))
		}
	}

	if complete {
		for _, rec := range cached {
			if _, ok := seen[rec.FileID]; !ok {
				plan.Removed = append(plan.Removed, rec)
			}
		}
		sort.Slice(plan.Removed, func(i, j int) bool {
			return plan.Removed[i].FileID < plan.Removed[j].FileID
		})
	}
	return plan
}
