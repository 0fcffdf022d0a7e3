package port

import (
	"context"
	"time"

	"github.com/rl1809/stock-sync/internal/core/domain"
)

type CacheRepository interface {
	// HasStockEntries reports whether any key exists in the stock namespace
	HasStockEntries(ctx context.Context) (bool, error)

	// GetStockEntry returns nil when the entry does not exist
	GetStockEntry(ctx context.Context, productID int64) (*domain.CacheEntry, error)

	// SetStockEntry upserts the entry fields without deleting others
	SetStockEntry(ctx context.Context, entry domain.CacheEntry) error

	// SetStockEntries writes all entries in one pipeline
	SetStockEntries(ctx context.Context, entries []domain.CacheEntry) error

	// FillStockEntry sets quantity only if absent, so it never overwrites a concurrent increment
	FillStockEntry(ctx context.Context, entry domain.CacheEntry) error

	// ApplyAdjustments atomically increments quantities and writes enrichment in one pipeline,
	// returning the resulting quantity per product
	ApplyAdjustments(ctx context.Context, adjustments []domain.CacheAdjustment) (map[int64]int64, error)

	// AcquireLock stores token under the lock name, returns false if the lock is held elsewhere
	AcquireLock(ctx context.Context, name, token string, ttl time.Duration) (bool, error)

	// ReleaseLock deletes the lock only while it still holds token
	ReleaseLock(ctx context.Context, name, token string) error
	IsLocked(ctx context.Context, name string) (bool, error)

	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)
	ReleaseIdempotency(ctx context.Context, key string) error
}
