package service

import (
	"context"
	"testing"

	"github.com/Ning0612/Syncenum/internal/account"
	"github.com/Ning0612/Syncenum/internal/adapter"
	"github.com/Ning0612/Syncenum/internal/domain"
	"github.com/Ning0612/Syncenum/internal/store"
	"github.com/Ning0612/Syncenum/internal/store/memory"
	"github.com/Ning0612/Syncenum/internal/testutil"
)

type env struct {
	registry *account.Registry
	listers  map[string]*testutil.FakeLister
	store    store.Store
}

func newEnv(t *testing.T, st store.Store, accounts ...domain.Account) *env {
	t.Helper()
	if st == nil {
		st = memory.New()
	}
	e := &env{listers: map[string]*testutil.FakeLister{}, store: st}
	e.registry = account.NewRegistry(st, account.Options{
		Factory: func(ctx context.Context, tr domain.Transport) (adapter.Lister, error) {
			l := testutil.NewFakeLister()
			e.listers[tr.Root] = l
			return l, nil
		},
	})
	for _, a := range accounts {
		if _, err := e.registry.Add(context.Background(), a); err != nil {
			t.Fatalf("Add(%s) failed: %v", a.Name, err)
		}
	}
	return e
}

func localAccount(name string, watch ...string) domain.Account {
	return domain.Account{
		Name:      name,
		Home:      "/",
		Session:   "bg",
		Transport: domain.Transport{Type: domain.TransportLocal, Root: name},
		Watch:     watch,
	}
}

func (e *env) account(t *testing.T, name string) *account.Context {
	t.Helper()
	c, err := e.registry.Get(name)
	if err != nil {
		t.Fatal(err)
	}
	return c
}
