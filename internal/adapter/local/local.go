package local

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/Ning0612/Syncenum/internal/adapter"
	"github.com/Ning0612/Syncenum/internal/core/etag"
	"github.com/Ning0612/Syncenum/internal/domain"
)

// Lister implements adapter.Lister for a local directory tree.
// Identifiers are derived from the relative path, so a rename is observed as
// a delete plus a create. Directory etags change when an immediate child is
// added, removed or modified.
type Lister struct {
	root string
}

var _ adapter.Lister = (*Lister)(nil)

// New creates a new local filesystem lister
// root must be an existing directory
func New(root string) (*Lister, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, domain.ErrNotDirectory
	}

	return &Lister{root: absRoot}, nil
}

// resolvePath safely resolves a remote path to an absolute path within root
// Returns error if path attempts to escape root directory
func (l *Lister) resolvePath(remotePath string) (string, error) {
	clean := domain.CleanPath(remotePath)
	if clean == "/" {
		return l.root, nil
	}

	rel := filepath.FromSlash(strings.TrimPrefix(clean, "/"))
	fullPath := filepath.Join(l.root, rel)

	// Use filepath.Rel to verify the path is within root
	r, err := filepath.Rel(l.root, fullPath)
	if err != nil || strings.HasPrefix(r, "..") {
		return "", domain.ErrPermissionDenied
	}
	return fullPath, nil
}

// List implements adapter.Lister
func (l *Lister) List(ctx context.Context, remotePath string, depth adapter.Depth) ([]domain.Entry, error) {
	remotePath = domain.CleanPath(remotePath)
	fullPath, err := l.resolvePath(remotePath)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		return nil, mapError(err)
	}
	if !info.IsDir() {
		return nil, domain.ErrNotDirectory
	}

	dirEntries, err := os.ReadDir(fullPath)
	if err != nil {
		return nil, mapError(err)
	}

	container := l.entryFromOS(path.Dir(remotePath), path.Base(remotePath), info)
	if remotePath == "/" {
		container.ParentPath, container.Name = "/", ""
	}
	container.FileID = etag.ForID(remotePath)

	container.ETag = etag.ForChildren(shallow(dirEntries))

	result := []domain.Entry{container}
	if depth == adapter.DepthChildren {
		children, err := l.children(ctx, remotePath, fullPath, dirEntries)
		if err != nil {
			return nil, err
		}
		result = append(result, children...)
	}
	return result, nil
}

// ListPage implements adapter.Lister
func (l *Lister) ListPage(ctx context.Context, remotePath string, offset, limit int) ([]domain.Entry, error) {
	remotePath = domain.CleanPath(remotePath)
	fullPath, err := l.resolvePath(remotePath)
	if err != nil {
		return nil, err
	}

	// os.ReadDir returns entries sorted by filename
	dirEntries, err := os.ReadDir(fullPath)
	if err != nil {
		return nil, mapError(err)
	}

	if offset < 0 {
		offset = 0
	}
	if offset >= len(dirEntries) {
		return nil, nil
	}
	end := len(dirEntries)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return l.children(ctx, remotePath, fullPath, dirEntries[offset:end])
}

// children converts directory entries. A child directory's etag is computed
// the same way as its own container etag.
func (l *Lister) children(ctx context.Context, parent, fullPath string, dirEntries []fs.DirEntry) ([]domain.Entry, error) {
	result := make([]domain.Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		info, err := de.Info()
		if err != nil {
			continue // Skip entries we can't read
		}

		e := l.entryFromOS(parent, de.Name(), info)
		if e.IsDir {
			if sub, err := os.ReadDir(filepath.Join(fullPath, de.Name())); err == nil {
				e.ETag = etag.ForChildren(shallow(sub))
			}
		}
		result = append(result, e)
	}
	return result, nil
}

// shallow builds hash inputs for a directory's children without recursing
func shallow(dirEntries []fs.DirEntry) []domain.Entry {
	out := make([]domain.Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		info, err := de.Info()
		if err != nil {
			continue
		}
		out = append(out, domain.Entry{
			Name:  de.Name(),
			IsDir: info.IsDir(),
			ETag:  etag.ForFile(sizeOf(info), info.ModTime()),
		})
	}
	return out
}

func (l *Lister) entryFromOS(parent, name string, info os.FileInfo) domain.Entry {
	return domain.Entry{
		ParentPath:  domain.CleanPath(parent),
		Name:        name,
		FileID:      etag.ForID(domain.JoinPath(parent, name)),
		ETag:        etag.ForFile(sizeOf(info), info.ModTime()),
		Size:        sizeOf(info),
		ModTime:     info.ModTime(),
		IsDir:       info.IsDir(),
		Permissions: info.Mode().Perm().String(),
	}
}

func sizeOf(info os.FileInfo) int64 {
	if info.IsDir() {
		return 0
	}
	return info.Size()
}

// Close releases any resources
func (l *Lister) Close() error {
	return nil
}

// Root returns the root path of this lister
func (l *Lister) Root() string {
	return l.root
}

// mapError converts OS errors to domain errors
func mapError(err error) error {
	if err == nil {
		return nil
	}

	if os.IsNotExist(err) {
		return domain.ErrNotFound
	}
	if os.IsPermission(err) {
		return domain.ErrPermissionDenied
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) && strings.Contains(pathErr.Err.Error(), "not a directory") {
		return domain.ErrNotDirectory
	}

	return err
}
