// Package session exposes page enumeration and change-since-anchor delivery
// for one scope of one account.
package session

import (
	"context"
	"fmt"

	"github.com/Ning0612/Syncenum/internal/anchor"
	"github.com/Ning0612/Syncenum/internal/domain"
	"github.com/Ning0612/Syncenum/internal/logger"
	"github.com/Ning0612/Syncenum/internal/metrics"
	"github.com/Ning0612/Syncenum/internal/store"
)

// Resolver resolves pages of a scope
type Resolver interface {
	ResolvePage(ctx context.Context, scope domain.Scope, cursor domain.PageCursor) (domain.Page, error)
}

// Deps are the per-account components a session works with
type Deps struct {
	Account string

	// Home is the remote path the root container maps to
	Home string

	Resolver Resolver
	Store    store.Store
	Tracker  *anchor.Tracker
	Logger   logger.Logger
	Metrics  *metrics.Metrics
}

func (d Deps) logger() logger.Logger {
	if d.Logger == nil {
		return &logger.NullLogger{}
	}
	return d.Logger
}

// Session enumerates one scope
type Session struct {
	deps  Deps
	scope domain.Scope
	log   logger.Logger
}

// Start resolves id to a scope and opens a session on it.
// Returns an error matching domain.ErrScopeResolution when id cannot be mapped.
func Start(ctx context.Context, deps Deps, id domain.ItemIdentifier) (*Session, error) {
	scope, err := Resolve(ctx, deps, id)
	if err != nil {
		return nil, err
	}
	return &Session{
		deps:  deps,
		scope: scope,
		log:   deps.logger().With("account", deps.Account, "scope", scope.String()),
	}, nil
}

// Resolve maps an item identifier to its scope. Other identifiers must name
// a cached directory whose parent has been listed.
func Resolve(ctx context.Context, deps Deps, id domain.ItemIdentifier) (domain.Scope, error) {
	switch id {
	case domain.RootContainer:
		return domain.Container(deps.Home), nil
	case domain.WorkingSetItem:
		return domain.WorkingSet(), nil
	case "":
		return domain.Scope{}, fmt.Errorf("%w: empty identifier", domain.ErrScopeResolution)
	}

	rec, err := deps.Store.GetRecord(ctx, deps.Account, string(id))
	if err != nil {
		return domain.Scope{}, domain.StoreError("get record", err)
	}
	if rec == nil {
		return domain.Scope{}, fmt.Errorf("%w: unknown identifier %q", domain.ErrScopeResolution, id)
	}
	if !rec.IsDir {
		return domain.Scope{}, fmt.Errorf("%w: %q is not a directory", domain.ErrScopeResolution, id)
	}

	parent, err := deps.Store.GetDirectoryState(ctx, deps.Account, rec.ParentPath)
	if err != nil {
		return domain.Scope{}, domain.StoreError("get directory state", err)
	}
	if parent == nil {
		return domain.Scope{}, fmt.Errorf("%w: parent %s of %q not listed", domain.ErrScopeResolution, rec.ParentPath, id)
	}
	return domain.Container(rec.Path()), nil
}

// Scope returns the enumerated scope
func (s *Session) Scope() domain.Scope { return s.scope }

// Enumerate returns the page at cursor. The initial cursor always checks the
// remote for changes; later cursors follow the previous page's next cursor.
func (s *Session) Enumerate(ctx context.Context, cursor domain.PageCursor) (domain.Page, error) {
	page, err := s.deps.Resolver.ResolvePage(ctx, s.scope, cursor)
	if err != nil {
		s.log.Error("Enumeration failed", "page", cursor.Page(), "error", err)
		return domain.Page{}, err
	}
	s.log.Debug("Page enumerated", "page", cursor.Page(), "items", len(page.Items), "more", page.Next != nil)
	return page, nil
}

// ChangesSince drains the pending changes of the session's scope class.
// Changes are delivered in one shot, so the given anchor only marks the
// caller's position; the drain always returns everything pending.
func (s *Session) ChangesSince(since domain.SyncAnchor) domain.ChangeSet {
	class := s.scope.Class()
	cs := s.deps.Tracker.Drain(class)
	cs.MoreComing = false

	s.deps.Metrics.Drained(class.String(), len(cs.Deleted), len(cs.Updated))
	d, u := s.deps.Tracker.Pending(class)
	s.deps.Metrics.SetPending(s.deps.Account, class.String(), d+u)
	s.log.Debug("Changes drained",
		"since", since.String(),
		"anchor", cs.Anchor.String(),
		"deleted", len(cs.Deleted),
		"updated", len(cs.Updated),
	)
	return cs
}

// CurrentAnchor returns the current anchor without draining
func (s *Session) CurrentAnchor() domain.SyncAnchor {
	return s.deps.Tracker.Current()
}
