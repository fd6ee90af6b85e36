package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/Ning0612/Syncenum/internal/domain"
	"github.com/Ning0612/Syncenum/internal/logger"
)

// ItemObserver receives one page of items. Exactly one Finish call ends
// every enumeration.
type ItemObserver interface {
	DidEnumerate(items []domain.MetadataRecord)
	FinishEnumerating(next *domain.PageCursor)
	FinishEnumeratingWithError(err error)
}

// ChangeObserver receives one batch of changes. Exactly one Finish call
// ends every enumeration.
type ChangeObserver interface {
	DidDeleteItems(ids []string)
	DidUpdate(items []domain.MetadataRecord)
	FinishEnumeratingChanges(anchor domain.SyncAnchor, moreComing bool)
	FinishEnumeratingWithError(err error)
}

// Enumerator adapts a session to string tokens and observer callbacks.
// A scope that failed to resolve enumerates as empty.
type Enumerator struct {
	deps    Deps
	session *Session
	err     error
	log     logger.Logger
}

// Open starts a session for id. Resolution failures are kept and reported
// through the observers instead of being returned.
func Open(ctx context.Context, deps Deps, id domain.ItemIdentifier) *Enumerator {
	log := deps.logger().With("account", deps.Account, "item", string(id))
	s, err := Start(ctx, deps, id)
	if err != nil {
		log.Warn("Scope resolution failed", "error", err)
	}
	return &Enumerator{deps: deps, session: s, err: err, log: log}
}

// Err returns the scope resolution error, if any
func (e *Enumerator) Err() error { return e.err }

// Session returns the underlying session, nil when resolution failed
func (e *Enumerator) Session() *Session { return e.session }

// EnumerateItems delivers the page named by token
func (e *Enumerator) EnumerateItems(ctx context.Context, obs ItemObserver, token string) {
	defer e.recoverTo(obs.FinishEnumeratingWithError)

	if e.session == nil {
		if errors.Is(e.err, domain.ErrScopeResolution) {
			obs.FinishEnumerating(nil)
		} else {
			obs.FinishEnumeratingWithError(e.err)
		}
		return
	}

	cursor, err := domain.ParseCursor(token)
	if err != nil {
		e.log.Error("Rejected page cursor", "token", token, "error", err)
		obs.FinishEnumeratingWithError(err)
		return
	}

	page, err := e.session.Enumerate(ctx, cursor)
	if err != nil {
		obs.FinishEnumeratingWithError(err)
		return
	}
	if len(page.Items) > 0 {
		obs.DidEnumerate(page.Items)
	}
	obs.FinishEnumerating(page.Next)
}

// EnumerateChanges delivers the changes since the anchor named by token
func (e *Enumerator) EnumerateChanges(ctx context.Context, obs ChangeObserver, token string) {
	defer e.recoverTo(obs.FinishEnumeratingWithError)

	if e.session == nil {
		if errors.Is(e.err, domain.ErrScopeResolution) {
			obs.FinishEnumeratingChanges(e.deps.Tracker.Current(), false)
		} else {
			obs.FinishEnumeratingWithError(e.err)
		}
		return
	}

	since, err := domain.ParseAnchor(token)
	if err != nil {
		e.log.Error("Rejected sync anchor", "token", token, "error", err)
		obs.FinishEnumeratingWithError(err)
		return
	}
	if err := ctx.Err(); err != nil {
		obs.FinishEnumeratingWithError(err)
		return
	}

	cs := e.session.ChangesSince(since)
	if len(cs.Deleted) > 0 {
		obs.DidDeleteItems(cs.Deleted)
	}
	if len(cs.Updated) > 0 {
		obs.DidUpdate(cs.Updated)
	}
	obs.FinishEnumeratingChanges(cs.Anchor, cs.MoreComing)
}

// CurrentAnchor returns the current anchor token
func (e *Enumerator) CurrentAnchor() string {
	return e.deps.Tracker.Current().String()
}

// recoverTo turns a panic into a terminal error so observers never hang
func (e *Enumerator) recoverTo(finish func(error)) {
	if r := recover(); r != nil {
		e.log.Error("Enumeration panicked", "panic", r)
		finish(fmt.Errorf("enumeration aborted: %v", r))
	}
}
