package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ning0612/Syncenum/internal/domain"
	"github.com/Ning0612/Syncenum/internal/scheduler"
	"github.com/Ning0612/Syncenum/internal/store"
	"github.com/Ning0612/Syncenum/internal/store/sqlite"
	"github.com/Ning0612/Syncenum/internal/testutil"
)

func TestWatcher_Targets(t *testing.T) {
	e := newEnv(t, nil,
		localAccount("alice", "/Docs/", "Photos"),
		localAccount("bob"),
	)
	w, err := NewWatcher(e.registry, WatchOptions{Interval: time.Minute})
	require.NoError(t, err)

	assert.Equal(t, []scheduler.Target{
		{Account: "alice", Path: "/Docs"},
		{Account: "alice", Path: "/Photos"},
		{Account: "bob", Path: "/"},
	}, w.Targets())
}

func TestWatcher_NilRegistry(t *testing.T) {
	_, err := NewWatcher(nil, WatchOptions{})
	assert.Error(t, err)
}

func TestWatcher_RunRecordsHistory(t *testing.T) {
	st, err := sqlite.New(t.TempDir())
	require.NoError(t, err)
	defer st.Close()

	e := newEnv(t, st, localAccount("alice"))
	e.listers["alice"].PutFiles("/", "f", 3)

	w, err := NewWatcher(e.registry, WatchOptions{Interval: time.Minute, History: st})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, w.Run(ctx, scheduler.Target{Account: "alice", Path: "/"}))

	last, err := st.GetLastSuccess(ctx, "alice", "/")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, store.RunSuccess, last.Status)
	assert.Equal(t, 3, last.Updated)

	e.listers["alice"].SetErr(domain.ErrNetworkError)
	err = w.Run(ctx, scheduler.Target{Account: "alice", Path: "/"})
	assert.ErrorIs(t, err, domain.ErrTransport)

	runs, err := st.GetHistory(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, store.RunFailed, runs[0].Status)
	assert.NotEmpty(t, runs[0].Error)
}

func TestWatcher_RunUnknownAccount(t *testing.T) {
	e := newEnv(t, nil)
	w, _ := NewWatcher(e.registry, WatchOptions{Interval: time.Minute})

	err := w.Run(context.Background(), scheduler.Target{Account: "ghost", Path: "/"})
	assert.True(t, errors.Is(err, domain.ErrAccountNotFound))
}

func TestWatcher_StartFillsTracker(t *testing.T) {
	e := newEnv(t, nil, localAccount("alice"))
	e.listers["alice"].PutFiles("/", "f", 2)
	c := e.account(t, "alice")

	w, err := NewWatcher(e.registry, WatchOptions{
		Interval:   time.Hour,
		Timeout:    time.Second,
		RunOnStart: true,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	assert.Error(t, w.Start(ctx), "second start should fail")

	testutil.AssertEventually(t, 2*time.Second, func() bool {
		_, updated := c.Tracker.Pending(domain.ContainerClass)
		return updated == 2
	}, "watch pass should register merged records")

	status := w.Status(ctx)
	assert.True(t, status.Running)
	require.NotNil(t, status.SchedulerStats)
	assert.Len(t, status.Targets, 1)

	require.NoError(t, w.Stop())
	assert.Error(t, w.Stop())
	assert.False(t, w.Status(ctx).Running)
}
