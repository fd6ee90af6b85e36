package lock

import (
	"context"
	"sync"
)

// ScopeLocks serializes work per key (typically account + container path).
// Different keys proceed concurrently. Idle keys are released so the map
// only holds scopes with a holder or waiters.
type ScopeLocks struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewScopeLocks creates an empty keyed lock set
func NewScopeLocks() *ScopeLocks {
	return &ScopeLocks{slots: make(map[string]*slot)}
}

// Key builds the lock key of a scope within an account
func Key(account, scope string) string {
	return account + "\x00" + scope
}

// Lock blocks until key is free or ctx is done.
// The returned unlock func is safe to call more than once.
func (l *ScopeLocks) Lock(ctx context.Context, key string) (func(), error) {
	s := l.acquireSlot(key)

	select {
	case s.ch <- struct{}{}:
		return l.unlockFunc(key, s), nil
	case <-ctx.Done():
		l.release(key, s)
		return nil, ctx.Err()
	}
}

// TryLock acquires key without waiting. ok is false when key is held.
func (l *ScopeLocks) TryLock(key string) (unlock func(), ok bool) {
	s := l.acquireSlot(key)

	select {
	case s.ch <- struct{}{}:
		return l.unlockFunc(key, s), true
	default:
		l.release(key, s)
		return nil, false
	}
}

func (l *ScopeLocks) acquireSlot(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *ScopeLocks) unlockFunc(key string, s *slot) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.release(key, s)
		})
	}
}

func (l *ScopeLocks) release(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 && l.slots[key] == s {
		delete(l.slots, key)
	}
}

// Active returns the number of keys currently held or waited on
func (l *ScopeLocks) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
