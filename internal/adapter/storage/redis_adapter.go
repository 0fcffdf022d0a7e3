package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/stock-sync/internal/core/domain"
	"github.com/rl1809/stock-sync/internal/port"
)

const (
	stockScanPattern  = domain.StockKeyPrefix + "*"
	scanBatchSize     = 100
	lockKeyPrefix     = "lock:"
	idempotencyKeyTTL = 24 * time.Hour
)

// Deletes the lock only if it still carries the caller's token.
var releaseLockScript = redis.NewScript(`
local key = KEYS[1]
local token = ARGV[1]

if redis.call('GET', key) == token then
	return redis.call('DEL', key)
end

return 0
`)

type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) HasStockEntries(ctx context.Context) (bool, error) {
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, stockScanPattern, scanBatchSize).Result()
		if err != nil {
			return false, fmt.Errorf("scan stock keys: %w", err)
		}
		if len(keys) > 0 {
			return true, nil
		}
		if next == 0 {
			return false, nil
		}
		cursor = next
	}
}

func (r *RedisAdapter) GetStockEntry(ctx context.Context, productID int64) (*domain.CacheEntry, error) {
	fields, err := r.client.HGetAll(ctx, domain.StockKey(productID)).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall stock: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	entry, err := domain.ParseCacheEntry(productID, fields)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *RedisAdapter) SetStockEntry(ctx context.Context, entry domain.CacheEntry) error {
	if err := r.client.HSet(ctx, entry.Key(), entry.Fields()).Err(); err != nil {
		return fmt.Errorf("hset stock: %w", err)
	}
	return nil
}

func (r *RedisAdapter) SetStockEntries(ctx context.Context, entries []domain.CacheEntry) error {
	if len(entries) == 0 {
		return nil
	}

	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, entry := range entries {
			pipe.HSet(ctx, entry.Key(), entry.Fields())
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("pipeline hset stock: %w", err)
	}
	return nil
}

func (r *RedisAdapter) FillStockEntry(ctx context.Context, entry domain.CacheEntry) error {
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, entry.Key(), domain.FieldQuantity, entry.Quantity)
		if fields := entry.Enrichment.Fields(); len(fields) > 0 {
			pipe.HSet(ctx, entry.Key(), fields)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("pipeline fill stock: %w", err)
	}
	return nil
}

func (r *RedisAdapter) ApplyAdjustments(ctx context.Context, adjustments []domain.CacheAdjustment) (map[int64]int64, error) {
	if len(adjustments) == 0 {
		return map[int64]int64{}, nil
	}

	incrs := make(map[int64]*redis.IntCmd, len(adjustments))
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, adj := range adjustments {
			incrs[adj.ProductID] = pipe.HIncrBy(ctx, adj.Key(), domain.FieldQuantity, adj.Delta)
			if fields := adj.Enrichment.Fields(); len(fields) > 0 {
				pipe.HSet(ctx, adj.Key(), fields)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline adjust stock: %w", err)
	}

	quantities := make(map[int64]int64, len(incrs))
	for productID, cmd := range incrs {
		quantities[productID] = cmd.Val()
	}
	return quantities, nil
}

func (r *RedisAdapter) AcquireLock(ctx context.Context, name, token string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, lockKeyPrefix+name, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	return ok, nil
}

func (r *RedisAdapter) ReleaseLock(ctx context.Context, name, token string) error {
	if err := releaseLockScript.Run(ctx, r.client, []string{lockKeyPrefix + name}, token).Err(); err != nil {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	return nil
}

func (r *RedisAdapter) IsLocked(ctx context.Context, name string) (bool, error) {
	n, err := r.client.Exists(ctx, lockKeyPrefix+name).Result()
	if err != nil {
		return false, fmt.Errorf("check lock %s: %w", name, err)
	}
	return n > 0, nil
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

var _ port.CacheRepository = (*RedisAdapter)(nil)
