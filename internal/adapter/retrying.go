package adapter

import (
	"context"
	"errors"

	"github.com/Ning0612/Syncenum/internal/domain"
	"github.com/Ning0612/Syncenum/internal/retry"
)

// Transient reports whether a lister error is worth retrying
func Transient(err error) bool {
	return errors.Is(err, domain.ErrNetworkError) ||
		errors.Is(err, domain.ErrTimeout) ||
		errors.Is(err, domain.ErrRateLimited) ||
		retry.IsRetryable(err)
}

// retrying decorates a Lister with bounded retries of transient failures
type retrying struct {
	next Lister
	cfg  retry.Config
}

// WithRetry wraps l so transient failures are retried according to cfg
func WithRetry(l Lister, cfg retry.Config) Lister {
	if cfg.MaxAttempts <= 1 {
		return l
	}
	return &retrying{next: l, cfg: cfg}
}

func (r *retrying) List(ctx context.Context, path string, depth Depth) ([]domain.Entry, error) {
	return retry.DoWithResult(ctx, r.cfg, Transient, func() ([]domain.Entry, error) {
		return r.next.List(ctx, path, depth)
	})
}

func (r *retrying) ListPage(ctx context.Context, path string, offset, limit int) ([]domain.Entry, error) {
	return retry.DoWithResult(ctx, r.cfg, Transient, func() ([]domain.Entry, error) {
		return r.next.ListPage(ctx, path, offset, limit)
	})
}

func (r *retrying) Close() error {
	return r.next.Close()
}
