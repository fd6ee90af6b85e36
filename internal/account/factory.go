package account

import (
	"context"
	"fmt"

	"github.com/Ning0612/Syncenum/internal/adapter"
	"github.com/Ning0612/Syncenum/internal/adapter/gdrive"
	"github.com/Ning0612/Syncenum/internal/adapter/local"
	"github.com/Ning0612/Syncenum/internal/adapter/s3"
	"github.com/Ning0612/Syncenum/internal/config"
	"github.com/Ning0612/Syncenum/internal/domain"
	"github.com/Ning0612/Syncenum/internal/store"
	"github.com/Ning0612/Syncenum/internal/store/badger"
	"github.com/Ning0612/Syncenum/internal/store/memory"
	"github.com/Ning0612/Syncenum/internal/store/sqlite"
)

// ListerFactory creates the lister of one account transport
type ListerFactory func(ctx context.Context, t domain.Transport) (adapter.Lister, error)

// NewLister creates a lister for the transport type
func NewLister(ctx context.Context, t domain.Transport) (adapter.Lister, error) {
	switch t.Type {
	case domain.TransportLocal:
		l, err := local.New(t.Root)
		if err != nil {
			return nil, fmt.Errorf("failed to create local lister: %w", err)
		}
		return l, nil

	case domain.TransportGDrive:
		clientID := t.Options["client_id"]
		clientSecret := t.Options["client_secret"]
		if clientID == "" || clientSecret == "" {
			return nil, fmt.Errorf("%w: gdrive transport requires client_id and client_secret", domain.ErrConfigInvalid)
		}
		l, err := gdrive.New(ctx, clientID, clientSecret, config.ExpandPath(t.Options["token_file"]), t.Root)
		if err != nil {
			return nil, fmt.Errorf("failed to create gdrive lister: %w", err)
		}
		return l, nil

	case domain.TransportS3:
		cfg, err := s3.ConfigFromTransport(t)
		if err != nil {
			return nil, err
		}
		l, err := s3.New(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 lister: %w", err)
		}
		return l, nil

	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrTransportNotFound, t.Type)
	}
}

// OpenStore opens the configured metadata store backend
func OpenStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Type {
	case config.StoreMemory:
		return memory.New(), nil
	case config.StoreBadger:
		return badger.New(badger.Config{Dir: cfg.StorePath()})
	case config.StoreSQLite, "":
		return sqlite.New(cfg.StorePath())
	default:
		return nil, fmt.Errorf("%w: unknown store type %q", domain.ErrConfigInvalid, cfg.Store.Type)
	}
}
