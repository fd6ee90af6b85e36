package store

import (
	"context"
	"time"
)

// Run statuses
const (
	RunSuccess = "success"
	RunFailed  = "failed"
	RunPartial = "partial"
)

// RunRecord is one background reconcile pass over a watched path
type RunRecord struct {
	ID        int64
	Account   string
	Path      string
	StartTime time.Time
	EndTime   time.Time
	Status    string
	Updated   int
	Deleted   int
	Error     string
}

// History persists watcher run records. Backends may implement it in
// addition to Store.
type History interface {
	SaveRun(ctx context.Context, run RunRecord) error
	GetHistory(ctx context.Context, account string, limit int) ([]RunRecord, error)
	GetLastSuccess(ctx context.Context, account, path string) (*RunRecord, error)
}
