// Package lock provides the two exclusion primitives of syncenum: an
// in-process keyed lock per enumeration scope, and a cross-process lock
// file that keeps a single watcher writing to a data directory.
package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// LockFileName is the name of the lock file inside the data directory
	LockFileName = ".syncenum.lock"
	// DefaultStaleTimeout applies to locks written by another host
	DefaultStaleTimeout = 30 * time.Minute
)

// ErrLocked indicates the data directory is held by another process
var ErrLocked = errors.New("data directory is locked")

// Holder describes the process holding a data directory
type Holder struct {
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartTime time.Time `json:"start_time"`
	Command   string    `json:"command,omitempty"`
}

// HeldError reports who holds the lock
type HeldError struct {
	Holder *Holder
}

func (e *HeldError) Error() string {
	if e.Holder == nil {
		return ErrLocked.Error()
	}
	return fmt.Sprintf("%s: held by PID %d on %s since %s (%s)",
		ErrLocked,
		e.Holder.PID,
		e.Holder.Hostname,
		e.Holder.StartTime.Format(time.RFC3339),
		e.Holder.Command,
	)
}

// Unwrap lets errors.Is match ErrLocked
func (e *HeldError) Unwrap() error { return ErrLocked }

// DirLock is a lock file guarding one data directory across processes
type DirLock struct {
	path         string
	staleTimeout time.Duration
	held         *Holder
}

// NewDirLock prepares a lock for dir, creating the directory if needed
func NewDirLock(dir string) (*DirLock, error) {
	if dir == "" {
		return nil, fmt.Errorf("lock directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	return &DirLock{
		path:         filepath.Join(dir, LockFileName),
		staleTimeout: DefaultStaleTimeout,
	}, nil
}

// SetStaleTimeout sets how long a lock from another host is honoured
func (l *DirLock) SetStaleTimeout(d time.Duration) {
	l.staleTimeout = d
}

// Path returns the lock file path
func (l *DirLock) Path() string { return l.path }

// Acquire takes the lock for command. Re-acquiring a lock this instance
// already holds only updates the command.
func (l *DirLock) Acquire(command string) error {
	if l.held != nil {
		if current, err := l.read(); err == nil && l.ownedBy(current) {
			current.Command = command
			if err := l.write(current); err != nil {
				return err
			}
			l.held.Command = command
			return nil
		}
	}

	if existing, err := l.read(); err == nil {
		if !l.isStale(existing) {
			return &HeldError{Holder: existing}
		}
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove stale lock: %w", err)
		}
	}

	hostname, _ := os.Hostname()
	h := &Holder{
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartTime: time.Now(),
		Command:   command,
	}

	// O_EXCL makes creation the arbitration point between racing processes
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			existing, _ := l.read()
			return &HeldError{Holder: existing}
		}
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(h); err != nil {
		os.Remove(l.path)
		return fmt.Errorf("failed to write lock file: %w", err)
	}

	l.held = h
	return nil
}

// Release removes the lock file if this instance still owns it
func (l *DirLock) Release() error {
	if l.held == nil {
		return nil
	}
	defer func() { l.held = nil }()

	current, err := l.read()
	if err != nil {
		return nil
	}
	if !l.ownedBy(current) {
		return fmt.Errorf("lock was taken over by PID %d", current.PID)
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

// Holder returns the live holder, or nil when the directory is free
func (l *DirLock) Holder() *Holder {
	h, err := l.read()
	if err != nil || l.isStale(h) {
		return nil
	}
	return h
}

func (l *DirLock) read() (*Holder, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, err
	}
	var h Holder
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("invalid lock file format: %w", err)
	}
	return &h, nil
}

func (l *DirLock) write(h *Holder) error {
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(l.path, data, 0644)
}

// isStale reports whether the holder is gone. On the same host only a dead
// process makes a lock stale; other hosts fall back to the timeout.
func (l *DirLock) isStale(h *Holder) bool {
	hostname, _ := os.Hostname()
	if h.Hostname == hostname {
		return !processAlive(h.PID)
	}
	return time.Since(h.StartTime) > l.staleTimeout
}

func (l *DirLock) ownedBy(h *Holder) bool {
	if l.held == nil {
		return false
	}
	hostname, _ := os.Hostname()
	return h.PID == os.Getpid() &&
		h.Hostname == hostname &&
		h.StartTime.Equal(l.held.StartTime)
}
