package adapter

import (
	"context"

	"github.com/Ning0612/Syncenum/internal/domain"
)

// Depth selects how much of a path a listing returns
type Depth int

const (
	// DepthContainer returns only the container itself
	DepthContainer Depth = 0
	// DepthChildren returns the container followed by its immediate children
	DepthChildren Depth = 1
)

// Lister defines the interface for remote listing backends.
// Paths are remote paths rooted at "/", relative to the backend root.
// Implementations return domain-level errors (domain.ErrNotFound,
// domain.ErrNetworkError, ...) so callers can classify failures.
type Lister interface {
	// List returns the entry for path, followed by its children when depth is
	// DepthChildren. The container entry is always first.
	// Returns domain.ErrNotFound if path doesn't exist
	// Returns domain.ErrNotDirectory if path is a file
	List(ctx context.Context, path string, depth Depth) ([]domain.Entry, error)

	// ListPage returns at most limit children of path, sorted by name,
	// skipping the first offset. The container entry is not included.
	ListPage(ctx context.Context, path string, offset, limit int) ([]domain.Entry, error)

	// Close releases any resources held by the lister
	Close() error
}

// Split separates a depth-1 listing into its container and children.
// An empty listing yields a nil container.
func Split(entries []domain.Entry) (*domain.Entry, []domain.Entry) {
	if len(entries) == 0 {
		return nil, nil
	}
	container := entries[0]
	return &container, entries[1:]
}
