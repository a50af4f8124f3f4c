package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/settlement/internal/platform/db"
	"github.com/odyssey-erp/settlement/internal/settlement"
	"github.com/odyssey-erp/settlement/internal/settlement/pgstore"
	"github.com/odyssey-erp/settlement/internal/settlement/remote"
)

// SellerSource lists sellers with recent settlement activity.
type SellerSource interface {
	ActiveSellers(ctx context.Context, since time.Time) ([]int64, error)
}

// SettlementBackend bundles the configured settlement backend with its resources.
type SettlementBackend struct {
	Backend settlement.Backend
	Sellers SellerSource
	close   func()
}

// Close releases backend resources.
func (b *SettlementBackend) Close() {
	if b != nil && b.close != nil {
		b.close()
	}
}

// OpenSettlementBackend connects to the backend selected by SETTLEMENT_BACKEND.
func OpenSettlementBackend(ctx context.Context, cfg *Config, logger *slog.Logger) (*SettlementBackend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.SettlementBackend {
	case BackendPostgres:
		pool, err := db.New(ctx, cfg.PGDSN, db.Options{})
		if err != nil {
			return nil, err
		}
		store := pgstore.NewStore(pool)
		return &SettlementBackend{Backend: store, Sellers: store, close: pool.Close}, nil
	case BackendRemote:
		client := remote.NewClient(cfg.SettlementBackendURL, cfg.SettlementBackendTimeout, logger)
		if err := client.Ping(ctx); err != nil {
			logger.Warn("settlement service ping", slog.Any("error", err))
		}
		return &SettlementBackend{Backend: client, Sellers: client}, nil
	default:
		return nil, fmt.Errorf("unknown settlement backend %q", cfg.SettlementBackend)
	}
}
