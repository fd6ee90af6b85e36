// Package account owns the per-account enumeration components and their
// lifecycle.
package account

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/Ning0612/Syncenum/internal/adapter"
	"github.com/Ning0612/Syncenum/internal/anchor"
	"github.com/Ning0612/Syncenum/internal/core/reconcile"
	"github.com/Ning0612/Syncenum/internal/domain"
	"github.com/Ning0612/Syncenum/internal/lock"
	"github.com/Ning0612/Syncenum/internal/logger"
	"github.com/Ning0612/Syncenum/internal/metrics"
	"github.com/Ning0612/Syncenum/internal/retry"
	"github.com/Ning0612/Syncenum/internal/session"
	"github.com/Ning0612/Syncenum/internal/store"
)

// Context holds everything one account needs to enumerate
type Context struct {
	Account domain.Account

	// Session is the background session identifier; records busy in any
	// other session are hidden from enumeration
	Session string

	Store   store.Store
	Lister  adapter.Lister
	Tracker *anchor.Tracker
	Locks   *lock.ScopeLocks
	Engine  *reconcile.Engine

	log     logger.Logger
	metrics *metrics.Metrics
}

// Name returns the account name
func (c *Context) Name() string { return c.Account.Name }

// Logger returns the account scoped logger
func (c *Context) Logger() logger.Logger { return c.log }

// Metrics returns the shared metrics, nil when disabled
func (c *Context) Metrics() *metrics.Metrics { return c.metrics }

// Deps returns the session dependencies of the account
func (c *Context) Deps() session.Deps {
	return session.Deps{
		Account:  c.Account.Name,
		Home:     c.Account.HomePath(),
		Resolver: c.Engine,
		Store:    c.Store,
		Tracker:  c.Tracker,
		Logger:   c.log,
		Metrics:  c.metrics,
	}
}

// Start opens an enumeration session for id
func (c *Context) Start(ctx context.Context, id domain.ItemIdentifier) (*session.Session, error) {
	return session.Start(ctx, c.Deps(), id)
}

// Open opens a host enumerator for id
func (c *Context) Open(ctx context.Context, id domain.ItemIdentifier) *session.Enumerator {
	return session.Open(ctx, c.Deps(), id)
}

// Options configure a Registry
type Options struct {
	// Factory creates listers; defaults to NewLister
	Factory ListerFactory

	// Retry wraps every lister; MaxAttempts <= 1 disables retries
	Retry retry.Config

	Logger  logger.Logger
	Metrics *metrics.Metrics
}

// Registry tracks the active accounts of one process
type Registry struct {
	mu       sync.RWMutex
	store    store.Store
	opts     Options
	log      logger.Logger
	accounts map[string]*Context
}

// NewRegistry creates a registry sharing st across accounts
func NewRegistry(st store.Store, opts Options) *Registry {
	if opts.Factory == nil {
		opts.Factory = NewLister
	}
	log := opts.Logger
	if log == nil {
		log = &logger.NullLogger{}
	}
	return &Registry{
		store:    st,
		opts:     opts,
		log:      log,
		accounts: make(map[string]*Context),
	}
}

// Add initializes the components of an account
func (r *Registry) Add(ctx context.Context, a domain.Account) (*Context, error) {
	if a.Name == "" {
		return nil, fmt.Errorf("%w: account name cannot be empty", domain.ErrConfigInvalid)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[a.Name]; ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrAccountExists, a.Name)
	}

	l, err := r.opts.Factory(ctx, a.Transport)
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", a.Name, err)
	}
	l = adapter.WithRetry(l, r.opts.Retry)

	sessionID := a.Session
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	log := r.log.With("account", a.Name)
	c := &Context{
		Account: a,
		Session: sessionID,
		Store:   r.store,
		Lister:  l,
		Tracker: anchor.New(),
		Locks:   lock.NewScopeLocks(),
		log:     log,
		metrics: r.opts.Metrics,
	}
	c.Engine = reconcile.New(r.store, l, reconcile.Options{
		Account:    a.Name,
		Session:    sessionID,
		PageSize:   a.EffectivePageSize(),
		Pagination: a.Pagination,
		Tracker:    c.Tracker,
		Locks:      c.Locks,
		Logger:     log,
		Metrics:    r.opts.Metrics,
	})

	r.accounts[a.Name] = c
	log.Info("Account registered",
		"transport", string(a.Transport.Type),
		"home", a.HomePath(),
		"pagination", a.Pagination,
		"page_size", a.EffectivePageSize(),
	)
	return c, nil
}

// Get returns a registered account
func (r *Registry) Get(name string) (*Context, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.accounts[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, name)
	}
	return c, nil
}

// Names returns the registered account names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.accounts))
	for name := range r.accounts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Remove tears down an account. With purge, its cached metadata is deleted.
func (r *Registry) Remove(ctx context.Context, name string, purge bool) error {
	r.mu.Lock()
	c, ok := r.accounts[name]
	delete(r.accounts, name)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrAccountNotFound, name)
	}

	var firstErr error
	if err := c.Lister.Close(); err != nil {
		firstErr = fmt.Errorf("close lister: %w", err)
	}
	if purge {
		if err := r.store.PurgeAccount(ctx, name); err != nil && firstErr == nil {
			firstErr = domain.StoreError("purge account", err)
		}
	}
	c.log.Info("Account removed", "purge", purge)
	return firstErr
}

// Close removes every account without purging. The shared store is left
// open for the caller to close.
func (r *Registry) Close() error {
	var firstErr error
	for _, name := range r.Names() {
		if err := r.Remove(context.Background(), name, false); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
