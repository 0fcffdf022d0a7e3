package domain

import (
	"fmt"
	"strconv"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

const (
	StockKeyPrefix = "stock:"

	FieldQuantity = "quantity"
	FieldName     = "name"
	FieldSKU      = "sku"
	FieldPrice    = "price"
)

func StockKey(productID int64) string {
	return StockKeyPrefix + strconv.FormatInt(productID, 10)
}

// Enrichment holds the descriptive fields mirrored next to a cached quantity.
// Name and SKU are only written when Catalog is set; Price is written when valid.
type Enrichment struct {
	Catalog bool
	Name    string
	SKU     string
	Price   decimal.NullDecimal
}

func EnrichmentFromProduct(p Product) Enrichment {
	return Enrichment{
		Catalog: true,
		Name:    p.Name,
		SKU:     p.SKU,
		Price:   decimal.NullDecimal{Decimal: p.Price, Valid: true},
	}
}

func EnrichmentFromUnitPrice(price decimal.NullDecimal) Enrichment {
	return Enrichment{Price: price}
}

// Fields returns the hash fields for the enrichment, excluding quantity.
func (e Enrichment) Fields() map[string]any {
	fields := make(map[string]any, 3)
	if e.Catalog {
		fields[FieldName] = e.Name
		fields[FieldSKU] = e.SKU
	}
	if e.Price.Valid {
		fields[FieldPrice] = e.Price.Decimal.String()
	}
	return fields
}

// CacheEntry is the cached view of one product's stock.
type CacheEntry struct {
	ProductID int64
	Quantity  int64
	Enrichment
}

func (c CacheEntry) Key() string {
	return StockKey(c.ProductID)
}

// Fields returns the full field mapping written for the entry.
func (c CacheEntry) Fields() map[string]any {
	fields := c.Enrichment.Fields()
	fields[FieldQuantity] = c.Quantity
	return fields
}

// ParseCacheEntry rebuilds an entry from a hash read back from the cache.
// A missing quantity field reads as zero.
func ParseCacheEntry(productID int64, fields map[string]string) (CacheEntry, error) {
	entry := CacheEntry{ProductID: productID}
	if raw, ok := fields[FieldQuantity]; ok && raw != "" {
		qty, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return CacheEntry{}, fmt.Errorf("parse quantity %q: %w", raw, err)
		}
		entry.Quantity = qty
	}

	name, hasName := fields[FieldName]
	sku, hasSKU := fields[FieldSKU]
	if hasName || hasSKU {
		entry.Catalog = true
		entry.Name = name
		entry.SKU = sku
	}
	if raw, ok := fields[FieldPrice]; ok && raw != "" {
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return CacheEntry{}, fmt.Errorf("parse price %q: %w", raw, err)
		}
		entry.Price = decimal.NullDecimal{Decimal: price, Valid: true}
	}
	return entry, nil
}

// CacheAdjustment is one aggregated quantity change for a cached product.
type CacheAdjustment struct {
	ProductID int64
	Delta     int64
	Enrichment
}

func (a CacheAdjustment) Key() string {
	return StockKey(a.ProductID)
}

// Aggregate folds lines into one adjustment per product, in first-seen order.
// Catalog products win over unit prices; among unit prices the last one seen wins.
func Aggregate(lines []Line, op Operation, products map[int64]Product) []CacheAdjustment {
	index := make(map[int64]int, len(lines))
	adjustments := make([]CacheAdjustment, 0, len(lines))

	for _, line := range lines {
		pos, seen := index[line.ProductID]
		if !seen {
			pos = len(adjustments)
			index[line.ProductID] = pos
			adjustments = append(adjustments, CacheAdjustment{ProductID: line.ProductID})
		}

		adj := &adjustments[pos]
		adj.Delta += op.Delta(line.Quantity)

		if p, ok := products[line.ProductID]; ok {
			adj.Enrichment = EnrichmentFromProduct(p)
		} else if line.UnitPrice.Valid {
			adj.Enrichment = EnrichmentFromUnitPrice(line.UnitPrice)
		}
	}

	return adjustments
}

// ProductIDs returns the distinct product ids of lines, in first-seen order.
func ProductIDs(lines []Line) []int64 {
	return lo.Uniq(lo.Map(lines, func(line Line, _ int) int64 {
		return line.ProductID
	}))
}
