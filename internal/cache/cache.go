package cache

import (
	"context"
	"time"

	"tokosakti/backend/internal/domain"
)

// LowStockCache caches low-stock report results. Stock mutates on every
// sale and inventory movement, so writers call Invalidate after committing.
type LowStockCache interface {
	Get(ctx context.Context, key string) ([]domain.Product, bool, error)
	Set(ctx context.Context, key string, products []domain.Product, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type NoopLowStockCache struct{}

func (NoopLowStockCache) Get(_ context.Context, _ string) ([]domain.Product, bool, error) {
	return nil, false, nil
}

func (NoopLowStockCache) Set(_ context.Context, _ string, _ []domain.Product, _ time.Duration) error {
	return nil
}

func (NoopLowStockCache) Invalidate(_ context.Context) error {
	return nil
}
