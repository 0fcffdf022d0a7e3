package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rl1809/stock-sync/internal/core/domain"
	"github.com/rl1809/stock-sync/internal/logging"
	"github.com/rl1809/stock-sync/internal/metrics"
	"github.com/rl1809/stock-sync/internal/port"
)

var (
	ErrStoreWrite            = errors.New("store of record write failed")
	ErrCacheWrite            = errors.New("cache write failed")
	ErrDuplicateRequest      = errors.New("duplicate request")
	ErrRehydrationInProgress = errors.New("cache rehydration already in progress")
)

const (
	rehydrateLockName    = "stock:rehydrate"
	defaultRehydrateTTL  = 30 * time.Second
	rehydratePollPeriod  = 25 * time.Millisecond
	idempotencyKeyFormat = "idempotency:stock:%s:%s"
)

var tracer = otel.Tracer("github.com/rl1809/stock-sync/internal/core/service")

// StockService keeps the cache in step with the store of record. The store is
// ground truth; the cache is eventually consistent with it.
type StockService struct {
	db           port.DatabaseRepository
	cache        port.CacheRepository
	rehydrateTTL time.Duration
}

type Option func(*StockService)

// WithRehydrateLockTTL bounds how long a crashed rehydration can block others.
func WithRehydrateLockTTL(ttl time.Duration) Option {
	return func(s *StockService) {
		if ttl > 0 {
			s.rehydrateTTL = ttl
		}
	}
}

func NewStockService(db port.DatabaseRepository, cache port.CacheRepository, opts ...Option) *StockService {
	s := &StockService{
		db:           db,
		cache:        cache,
		rehydrateTTL: defaultRehydrateTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetStock writes an absolute quantity to the store of record, commits, then
// mirrors it into the cache with product details when the product exists.
// The returned message is informational.
func (s *StockService) SetStock(ctx context.Context, productID, quantity int64) (string, error) {
	ctx, span := tracer.Start(ctx, "StockService.SetStock", trace.WithAttributes(
		attribute.Int64("product_id", productID),
		attribute.Int64("quantity", quantity),
	))
	defer span.End()
	logger := logging.FromContext(ctx).WithField("product_id", productID)

	result, err := s.db.SetStock(ctx, productID, quantity)
	if err != nil {
		metrics.Failures.WithLabelValues("store").Inc()
		return "", fail(span, fmt.Errorf("%w: set stock %d: %w", ErrStoreWrite, productID, err))
	}
	if result.Inserted {
		metrics.StockWrites.WithLabelValues("inserted").Inc()
	} else {
		metrics.StockWrites.WithLabelValues("updated").Inc()
	}

	entry := domain.CacheEntry{ProductID: productID, Quantity: quantity}
	product, err := s.db.GetProduct(ctx, productID)
	switch {
	case err != nil:
		logger.WithError(err).Warn("product lookup failed, caching stock without product details")
	case product != nil:
		entry.Enrichment = domain.EnrichmentFromProduct(*product)
	}

	// A rehydration pipeline still in flight would overwrite this entry with
	// its older snapshot.
	if err := s.awaitRehydration(ctx); err != nil {
		metrics.Failures.WithLabelValues("cache").Inc()
		return "", fail(span, fmt.Errorf("set stock %d: %w", productID, err))
	}
	if err := s.cache.SetStockEntry(ctx, entry); err != nil {
		metrics.Failures.WithLabelValues("cache").Inc()
		return "", fail(span, fmt.Errorf("%w: set stock %d: %w", ErrCacheWrite, productID, err))
	}

	logger.WithField("quantity", quantity).Debug(result.String())
	return result.String(), nil
}

// UpdateStockDB adjusts quantities on the caller's transaction. It neither
// commits nor rolls back.
func (s *StockService) UpdateStockDB(ctx context.Context, tx port.Execer, items []domain.Item, op domain.Operation) error {
	ctx, span := tracer.Start(ctx, "StockService.UpdateStockDB", trace.WithAttributes(
		attribute.String("operation", op.String()),
		attribute.Int("items", len(items)),
	))
	defer span.End()

	if !op.Valid() {
		return fail(span, fmt.Errorf("%w: %d", domain.ErrInvalidOperation, op))
	}
	lines, err := domain.NormalizeItems(items)
	if err != nil {
		return fail(span, err)
	}

	return fail(span, s.adjustStore(ctx, tx, lines, op))
}

// CheckOutItems removes ordered quantities from the store of record.
func (s *StockService) CheckOutItems(ctx context.Context, tx port.Execer, items []domain.Item) error {
	return s.UpdateStockDB(ctx, tx, items, domain.Decrement)
}

// CheckInItems returns quantities to the store of record.
func (s *StockService) CheckInItems(ctx context.Context, tx port.Execer, items []domain.Item) error {
	return s.UpdateStockDB(ctx, tx, items, domain.Increment)
}

func (s *StockService) adjustStore(ctx context.Context, tx port.Execer, lines []domain.Line, op domain.Operation) error {
	missing, err := s.db.AdjustStock(ctx, tx, lines, op)
	if err != nil {
		metrics.Failures.WithLabelValues("store").Inc()
		return fmt.Errorf("%w: %s stock: %w", ErrStoreWrite, op, err)
	}
	if len(missing) > 0 {
		logging.FromContext(ctx).WithFields(logrus.Fields{
			"operation":   op.String(),
			"product_ids": missing,
		}).Warn("no stock row to adjust")
	}
	return nil
}

// UpdateStockCache adjusts cached quantities by the items' deltas and returns
// the resulting quantity per product. An empty cache is rehydrated from the
// store of record first, and the adjustment applies on top of it.
//
// Deltas are summed per product before touching the cache and applied with
// an atomic field increment, so repeated products compound and concurrent
// callers do not overwrite each other.
func (s *StockService) UpdateStockCache(ctx context.Context, items []domain.Item, op domain.Operation) (map[int64]int64, error) {
	if len(items) == 0 {
		return map[int64]int64{}, nil
	}

	ctx, span := tracer.Start(ctx, "StockService.UpdateStockCache", trace.WithAttributes(
		attribute.String("operation", op.String()),
		attribute.Int("items", len(items)),
	))
	defer span.End()

	if !op.Valid() {
		return nil, fail(span, fmt.Errorf("%w: %d", domain.ErrInvalidOperation, op))
	}
	lines, err := domain.NormalizeItems(items)
	if err != nil {
		return nil, fail(span, err)
	}

	if err := s.ensureCacheWarm(ctx); err != nil {
		return nil, fail(span, err)
	}

	quantities, err := s.adjustCache(ctx, lines, op)
	return quantities, fail(span, err)
}

func (s *StockService) adjustCache(ctx context.Context, lines []domain.Line, op domain.Operation) (map[int64]int64, error) {
	products := make(map[int64]domain.Product)
	found, err := s.db.GetProducts(ctx, domain.ProductIDs(lines))
	if err != nil {
		logging.FromContext(ctx).WithError(err).Warn("product lookup failed, adjusting cache without product details")
	}
	for _, p := range found {
		products[p.ID] = p
	}

	adjustments := domain.Aggregate(lines, op, products)
	quantities, err := s.cache.ApplyAdjustments(ctx, adjustments)
	if err != nil {
		metrics.Failures.WithLabelValues("cache").Inc()
		return nil, fmt.Errorf("%w: %s stock: %w", ErrCacheWrite, op, err)
	}

	metrics.CacheAdjustments.WithLabelValues(op.String()).Add(float64(len(adjustments)))
	return quantities, nil
}

// ApplyOrder runs both adjustment paths for an order: the store of record in
// its own transaction, then the cache. A non-empty orderID makes the call
// idempotent per operation.
func (s *StockService) ApplyOrder(ctx context.Context, orderID string, items []domain.Item, op domain.Operation) (quantities map[int64]int64, err error) {
	if len(items) == 0 {
		return map[int64]int64{}, nil
	}

	ctx, span := tracer.Start(ctx, "StockService.ApplyOrder", trace.WithAttributes(
		attribute.String("order_id", orderID),
		attribute.String("operation", op.String()),
	))
	defer span.End()
	defer func() { err = fail(span, err) }()

	if !op.Valid() {
		return nil, fmt.Errorf("%w: %d", domain.ErrInvalidOperation, op)
	}
	lines, err := domain.NormalizeItems(items)
	if err != nil {
		return nil, err
	}

	committed := false
	if orderID != "" {
		key := fmt.Sprintf(idempotencyKeyFormat, op, orderID)
		ok, setErr := s.cache.SetIdempotency(ctx, key)
		if setErr != nil {
			return nil, fmt.Errorf("idempotency check failed: %w", setErr)
		}
		if !ok {
			return nil, ErrDuplicateRequest
		}
		// A retry must be able to run again unless the store already moved.
		defer func() {
			if err == nil || committed {
				return
			}
			if releaseErr := s.cache.ReleaseIdempotency(context.WithoutCancel(ctx), key); releaseErr != nil {
				logging.FromContext(ctx).WithError(releaseErr).Error("failed to release idempotency key")
			}
		}()
	}

	// Warm before the store moves, otherwise rehydration would read the
	// already-adjusted quantity and the delta would be counted twice.
	if err := s.ensureCacheWarm(ctx); err != nil {
		return nil, err
	}

	err = s.db.InTx(ctx, func(tx port.Execer) error {
		return s.adjustStore(ctx, tx, lines, op)
	})
	if err != nil {
		if !errors.Is(err, ErrStoreWrite) {
			err = fmt.Errorf("%w: %w", ErrStoreWrite, err)
		}
		return nil, err
	}
	committed = true

	quantities, err = s.adjustCache(ctx, lines, op)
	if err != nil {
		logging.FromContext(ctx).WithError(err).WithField("order_id", orderID).
			Error("store of record adjusted but cache was not, cache is stale until next rehydration")
		return nil, err
	}
	return quantities, nil
}

// Rehydrate repopulates the cache from every stock row that has a product.
// It returns ErrRehydrationInProgress if another rehydration holds the lock.
func (s *StockService) Rehydrate(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "StockService.Rehydrate")
	defer span.End()

	token := uuid.NewString()
	acquired, err := s.cache.AcquireLock(ctx, rehydrateLockName, token, s.rehydrateTTL)
	if err != nil {
		return 0, fail(span, fmt.Errorf("%w: %w", ErrCacheWrite, err))
	}
	if !acquired {
		return 0, fail(span, ErrRehydrationInProgress)
	}
	defer s.releaseRehydrateLock(ctx, token)

	n, err := s.rehydrate(ctx)
	return n, fail(span, err)
}

func (s *StockService) rehydrate(ctx context.Context) (int, error) {
	logger := logging.FromContext(ctx)

	rows, err := s.db.ListStockProducts(ctx)
	if err != nil {
		logger.WithError(err).Error("failed to load stock for cache rehydration")
		return 0, fmt.Errorf("load stock for rehydration: %w", err)
	}
	if len(rows) == 0 {
		logger.Info("store of record holds no stock, nothing to rehydrate")
		return 0, nil
	}

	entries := lo.Map(rows, func(row domain.StockProduct, _ int) domain.CacheEntry {
		return domain.CacheEntry{
			ProductID:  row.ProductID,
			Quantity:   row.Quantity,
			Enrichment: domain.EnrichmentFromProduct(row.Product()),
		}
	})

	if err := s.cache.SetStockEntries(ctx, entries); err != nil {
		metrics.Failures.WithLabelValues("cache").Inc()
		return 0, fmt.Errorf("%w: rehydrate: %w", ErrCacheWrite, err)
	}

	metrics.Rehydrations.Inc()
	metrics.RehydratedEntries.Add(float64(len(entries)))
	logger.WithField("entries", len(entries)).Info("cache rehydrated from store of record")
	return len(entries), nil
}

// ensureCacheWarm rehydrates when no stock entry exists. One caller wins the
// lock and rehydrates; the others wait for it and then re-check.
func (s *StockService) ensureCacheWarm(ctx context.Context) error {
	for {
		warm, err := s.cache.HasStockEntries(ctx)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCacheWrite, err)
		}
		if warm {
			return nil
		}

		token := uuid.NewString()
		acquired, err := s.cache.AcquireLock(ctx, rehydrateLockName, token, s.rehydrateTTL)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCacheWrite, err)
		}
		if acquired {
			return s.rehydrateLocked(ctx, token)
		}

		if err := s.waitForRehydration(ctx); err != nil {
			return err
		}
	}
}

func (s *StockService) rehydrateLocked(ctx context.Context, token string) error {
	defer s.releaseRehydrateLock(ctx, token)

	// Another caller may have finished between our scan and the lock.
	warm, err := s.cache.HasStockEntries(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCacheWrite, err)
	}
	if warm {
		return nil
	}

	_, err = s.rehydrate(ctx)
	return err
}

func (s *StockService) waitForRehydration(ctx context.Context) error {
	ticker := time.NewTicker(rehydratePollPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		locked, err := s.cache.IsLocked(ctx, rehydrateLockName)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCacheWrite, err)
		}
		if !locked {
			return nil
		}
	}
}

// awaitRehydration returns once no rehydration holds the lock.
func (s *StockService) awaitRehydration(ctx context.Context) error {
	locked, err := s.cache.IsLocked(ctx, rehydrateLockName)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCacheWrite, err)
	}
	if !locked {
		return nil
	}
	return s.waitForRehydration(ctx)
}

func (s *StockService) releaseRehydrateLock(ctx context.Context, token string) {
	if err := s.cache.ReleaseLock(context.WithoutCancel(ctx), rehydrateLockName, token); err != nil {
		logging.FromContext(ctx).WithError(err).Warn("failed to release rehydration lock")
	}
}

// GetStock reads through the cache. A miss on an empty cache rehydrates it
// first; a miss on a warm cache loads the entry from the store of record and
// fills it in without overwriting a concurrent adjustment.
func (s *StockService) GetStock(ctx context.Context, productID int64) (domain.CacheEntry, error) {
	ctx, span := tracer.Start(ctx, "StockService.GetStock", trace.WithAttributes(
		attribute.Int64("product_id", productID),
	))
	defer span.End()
	logger := logging.FromContext(ctx).WithField("product_id", productID)

	cached, err := s.cache.GetStockEntry(ctx, productID)
	if err == nil && cached != nil {
		metrics.CacheReads.WithLabelValues("hit").Inc()
		return *cached, nil
	}
	metrics.CacheReads.WithLabelValues("miss").Inc()

	// Filling a single key into an empty cache would make it look warm, and
	// later adjustments would skip rehydration for every other product.
	fill := err == nil
	if err != nil {
		logger.WithError(err).Warn("cache read failed, reading store of record")
	} else if err := s.ensureCacheWarm(ctx); err != nil {
		logger.WithError(err).Warn("cache warm-up failed, reading store of record")
		fill = false
	} else {
		cached, err := s.cache.GetStockEntry(ctx, productID)
		switch {
		case err != nil:
			logger.WithError(err).Warn("cache read failed, reading store of record")
			fill = false
		case cached != nil:
			return *cached, nil
		}
	}

	entry, err := s.db.GetStockProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, domain.ErrStockNotFound) {
			return domain.CacheEntry{}, err
		}
		return domain.CacheEntry{}, fail(span, fmt.Errorf("read stock %d: %w", productID, err))
	}

	if fill {
		if err := s.cache.FillStockEntry(ctx, entry); err != nil {
			logger.WithError(err).Warn("failed to fill cache entry")
		}
	}
	return entry, nil
}

func fail(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
