package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Ning0612/Syncenum/internal/adapter"
	"github.com/Ning0612/Syncenum/internal/core/etag"
	"github.com/Ning0612/Syncenum/internal/domain"
)

// Call kinds counted by FakeLister
const (
	CallListContainer = "list0"
	CallListChildren  = "list1"
	CallListPage      = "page"
)

type fakeDir struct {
	etag     string // fixed etag; computed from children when empty
	children map[string]domain.Entry
}

// FakeLister is a scriptable in-memory adapter.Lister
type FakeLister struct {
	mu    sync.Mutex
	dirs  map[string]*fakeDir
	fail  map[string]error
	calls map[string]int
	err   error
}

var _ adapter.Lister = (*FakeLister)(nil)

// NewFakeLister creates a lister with an empty root directory
func NewFakeLister() *FakeLister {
	f := &FakeLister{
		dirs:  make(map[string]*fakeDir),
		fail:  make(map[string]error),
		calls: make(map[string]int),
	}
	f.dirs["/"] = &fakeDir{children: make(map[string]domain.Entry)}
	return f
}

func (f *FakeLister) dir(p string) *fakeDir {
	p = domain.CleanPath(p)
	d, ok := f.dirs[p]
	if !ok {
		d = &fakeDir{children: make(map[string]domain.Entry)}
		f.dirs[p] = d
	}
	return d
}

// Put adds or replaces a child of parent. Directories get their own listing.
func (f *FakeLister) Put(parent string, e domain.Entry) domain.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()

	e.ParentPath = domain.CleanPath(parent)
	if e.FileID == "" {
		e.FileID = etag.ForID(e.Path())
	}
	if e.ModTime.IsZero() {
		e.ModTime = time.Unix(1700000000, 0).UTC()
	}
	if e.IsDir {
		f.dir(e.Path())
	}
	f.dir(parent).children[e.FileID] = e
	return e
}

// PutFiles adds n files named <prefix>NNN to parent and returns them
func (f *FakeLister) PutFiles(parent, prefix string, n int) []domain.Entry {
	out := make([]domain.Entry, 0, n)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("%s%03d", prefix, i)
		out = append(out, f.Put(parent, domain.Entry{
			Name:   name,
			FileID: fmt.Sprintf("%s-%s", domain.CleanPath(parent), name),
			ETag:   "v1",
			Size:   int64(i + 1),
		}))
	}
	return out
}

// Remove deletes a child of parent
func (f *FakeLister) Remove(parent, fileID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.dir(parent).children, fileID)
}

// Clear removes every child of parent
func (f *FakeLister) Clear(parent string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dir(parent).children = make(map[string]domain.Entry)
}

// SetETag pins the container etag of path; an empty value restores the computed etag
func (f *FakeLister) SetETag(p, tag string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dir(p).etag = tag
}

// SetErr makes every call fail with err; nil clears it
func (f *FakeLister) SetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// FailPath makes every call for path fail with err; nil clears it
func (f *FakeLister) FailPath(p string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, domain.CleanPath(p))
		return
	}
	f.fail[domain.CleanPath(p)] = err
}

// Calls returns how many calls of the given kind were made
func (f *FakeLister) Calls(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[kind]
}

// ResetCalls zeroes the call counters
func (f *FakeLister) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = make(map[string]int)
}

func (f *FakeLister) check(p string) error {
	if f.err != nil {
		return f.err
	}
	if err, ok := f.fail[p]; ok {
		return err
	}
	if _, ok := f.dirs[p]; !ok {
		return domain.ErrNotFound
	}
	return nil
}

func (f *FakeLister) sortedChildren(p string) []domain.Entry {
	d := f.dirs[p]
	out := make([]domain.Entry, 0, len(d.children))
	for _, e := range d.children {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].FileID < out[j].FileID
	})
	return out
}

func (f *FakeLister) container(p string) domain.Entry {
	d := f.dirs[p]
	tag := d.etag
	if tag == "" {
		tag = etag.ForChildren(f.sortedChildren(p))
	}
	e := domain.Entry{
		ParentPath: domain.CleanPath(parentOf(p)),
		Name:       baseOf(p),
		FileID:     etag.ForID(p),
		ETag:       tag,
		IsDir:      true,
	}
	// Prefer the identity the parent listing reports
	if parent, ok := f.dirs[domain.CleanPath(parentOf(p))]; ok && p != "/" {
		for _, c := range parent.children {
			if c.Path() == p {
				e.FileID = c.FileID
				e.Favorite = c.Favorite
			}
		}
	}
	return e
}

// List implements adapter.Lister
func (f *FakeLister) List(ctx context.Context, p string, depth adapter.Depth) ([]domain.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p = domain.CleanPath(p)
	if depth == adapter.DepthChildren {
		f.calls[CallListChildren]++
	} else {
		f.calls[CallListContainer]++
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.check(p); err != nil {
		return nil, err
	}

	out := []domain.Entry{f.container(p)}
	if depth == adapter.DepthChildren {
		for _, c := range f.sortedChildren(p) {
			if c.IsDir {
				c.ETag = f.container(c.Path()).ETag
			}
			out = append(out, c)
		}
	}
	return out, nil
}

// ListPage implements adapter.Lister
func (f *FakeLister) ListPage(ctx context.Context, p string, offset, limit int) ([]domain.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p = domain.CleanPath(p)
	f.calls[CallListPage]++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.check(p); err != nil {
		return nil, err
	}

	children := f.sortedChildren(p)
	if offset >= len(children) {
		return nil, nil
	}
	end := len(children)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]domain.Entry, 0, end-offset)
	for _, c := range children[offset:end] {
		if c.IsDir {
			c.ETag = f.container(c.Path()).ETag
		}
		out = append(out, c)
	}
	return out, nil
}

// Close implements adapter.Lister
func (f *FakeLister) Close() error {
	return nil
}

func parentOf(p string) string {
	for i := len(p) - 1; i > 0; i-- {
		if p[i] == '/' {
			return p[:i]
		}
	}
	return "/"
}

func baseOf(p string) string {
	if p == "/" {
		return ""
	}
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[i+1:]
		}
	}
	return p
}
