package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rl1809/stock-sync/internal/core/domain"
	"github.com/rl1809/stock-sync/internal/port"
)

// Mock DatabaseRepository
type mockDB struct {
	mu       sync.Mutex
	stocks   map[int64]int64
	products map[int64]domain.Product

	setErr     error
	adjustErr  error
	productErr error
	listErr    error

	commits   int
	rollbacks int
}

func newMockDB() *mockDB {
	return &mockDB{
		stocks:   make(map[int64]int64),
		products: make(map[int64]domain.Product),
	}
}

func (m *mockDB) SetStock(ctx context.Context, productID, quantity int64) (domain.SetStockResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := domain.SetStockResult{ProductID: productID}
	if m.setErr != nil {
		return result, m.setErr
	}
	if _, ok := m.stocks[productID]; ok {
		result.RowsAffected = 1
	} else {
		result.Inserted = true
		result.RowsAffected = 1
	}
	m.stocks[productID] = quantity
	return result, nil
}

func (m *mockDB) AdjustStock(ctx context.Context, tx port.Execer, lines []domain.Line, op domain.Operation) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.adjustErr != nil {
		return nil, m.adjustErr
	}
	var missing []int64
	for _, line := range lines {
		qty, ok := m.stocks[line.ProductID]
		if !ok {
			missing = append(missing, line.ProductID)
			continue
		}
		m.stocks[line.ProductID] = qty + op.Delta(line.Quantity)
	}
	return missing, nil
}

func (m *mockDB) InTx(ctx context.Context, fn func(tx port.Execer) error) error {
	m.mu.Lock()
	snapshot := make(map[int64]int64, len(m.stocks))
	for k, v := range m.stocks {
		snapshot[k] = v
	}
	m.mu.Unlock()

	if err := fn(mockTx{}); err != nil {
		m.mu.Lock()
		m.stocks = snapshot
		m.rollbacks++
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	m.commits++
	m.mu.Unlock()
	return nil
}

func (m *mockDB) GetProduct(ctx context.Context, productID int64) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.productErr != nil {
		return nil, m.productErr
	}
	p, ok := m.products[productID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *mockDB) GetProducts(ctx context.Context, productIDs []int64) ([]domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.productErr != nil {
		return nil, m.productErr
	}
	var products []domain.Product
	for _, id := range productIDs {
		if p, ok := m.products[id]; ok {
			products = append(products, p)
		}
	}
	return products, nil
}

func (m *mockDB) GetStockProduct(ctx context.Context, productID int64) (domain.CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	qty, ok := m.stocks[productID]
	if !ok {
		return domain.CacheEntry{}, domain.ErrStockNotFound
	}
	entry := domain.CacheEntry{ProductID: productID, Quantity: qty}
	if p, ok := m.products[productID]; ok {
		entry.Enrichment = domain.EnrichmentFromProduct(p)
	}
	return entry, nil
}

func (m *mockDB) ListStockProducts(ctx context.Context) ([]domain.StockProduct, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.listErr != nil {
		return nil, m.listErr
	}
	var rows []domain.StockProduct
	for id, qty := range m.stocks {
		p, ok := m.products[id]
		if !ok {
			continue
		}
		rows = append(rows, domain.StockProduct{ProductID: id, Quantity: qty, Name: p.Name, SKU: p.SKU, Price: p.Price})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ProductID < rows[j].ProductID })
	return rows, nil
}

func (m *mockDB) stock(productID int64) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	qty, ok := m.stocks[productID]
	return qty, ok
}

type mockTx struct{}

func (mockTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return nil, fmt.Errorf("mockTx does not execute SQL")
}

// Mock CacheRepository, storing hashes the way Redis does
type mockCache struct {
	mu          sync.Mutex
	hashes      map[string]map[string]string
	locks       map[string]string
	idempotency map[string]bool

	setErr    error
	adjustErr error
	scanErr   error

	scans          int
	bulkWrites     int
	idemReleases   int
	adjustmentRuns int
}

func newMockCache() *mockCache {
	return &mockCache{
		hashes:      make(map[string]map[string]string),
		locks:       make(map[string]string),
		idempotency: make(map[string]bool),
	}
}

func (m *mockCache) hset(key string, fields map[string]any) {
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = fmt.Sprint(v)
	}
}

func (m *mockCache) HasStockEntries(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.scans++
	if m.scanErr != nil {
		return false, m.scanErr
	}
	for key := range m.hashes {
		if strings.HasPrefix(key, domain.StockKeyPrefix) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockCache) GetStockEntry(ctx context.Context, productID int64) (*domain.CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.hashes[domain.StockKey(productID)]
	if !ok {
		return nil, nil
	}
	entry, err := domain.ParseCacheEntry(productID, h)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (m *mockCache) SetStockEntry(ctx context.Context, entry domain.CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.setErr != nil {
		return m.setErr
	}
	m.hset(entry.Key(), entry.Fields())
	return nil
}

func (m *mockCache) SetStockEntries(ctx context.Context, entries []domain.CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.setErr != nil {
		return m.setErr
	}
	m.bulkWrites++
	for _, entry := range entries {
		m.hset(entry.Key(), entry.Fields())
	}
	return nil
}

func (m *mockCache) FillStockEntry(ctx context.Context, entry domain.CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.setErr != nil {
		return m.setErr
	}
	if _, ok := m.hashes[entry.Key()][domain.FieldQuantity]; !ok {
		m.hset(entry.Key(), map[string]any{domain.FieldQuantity: entry.Quantity})
	}
	if fields := entry.Enrichment.Fields(); len(fields) > 0 {
		m.hset(entry.Key(), fields)
	}
	return nil
}

func (m *mockCache) ApplyAdjustments(ctx context.Context, adjustments []domain.CacheAdjustment) (map[int64]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.adjustErr != nil {
		return nil, m.adjustErr
	}
	m.adjustmentRuns++
	quantities := make(map[int64]int64, len(adjustments))
	for _, adj := range adjustments {
		current, _ := strconv.ParseInt(m.hashes[adj.Key()][domain.FieldQuantity], 10, 64)
		next := current + adj.Delta
		fields := adj.Enrichment.Fields()
		fields[domain.FieldQuantity] = next
		m.hset(adj.Key(), fields)
		quantities[adj.ProductID] = next
	}
	return quantities, nil
}

func (m *mockCache) AcquireLock(ctx context.Context, name, token string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, held := m.locks[name]; held {
		return false, nil
	}
	m.locks[name] = token
	return true, nil
}

func (m *mockCache) ReleaseLock(ctx context.Context, name, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.locks[name] == token {
		delete(m.locks, name)
	}
	return nil
}

func (m *mockCache) IsLocked(ctx context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, held := m.locks[name]
	return held, nil
}

func (m *mockCache) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.idempotency[key] {
		return false, nil
	}
	m.idempotency[key] = true
	return true, nil
}

func (m *mockCache) ReleaseIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.idemReleases++
	delete(m.idempotency, key)
	return nil
}

func (m *mockCache) fields(productID int64) map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]string)
	for k, v := range m.hashes[domain.StockKey(productID)] {
		out[k] = v
	}
	return out
}

func (m *mockCache) put(productID int64, fields map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hset(domain.StockKey(productID), fields)
}
