package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrStockNotFound = errors.New("stock not found")

// StockRecord is the authoritative quantity row for one product.
type StockRecord struct {
	ProductID int64 `db:"product_id"`
	Quantity  int64 `db:"quantity"`
}

// Product is the read-only catalog snapshot used to enrich cache entries.
type Product struct {
	ID    int64           `db:"id"`
	Name  string          `db:"name"`
	SKU   string          `db:"sku"`
	Price decimal.Decimal `db:"price"`
}

// StockProduct is a stock row joined with its product.
type StockProduct struct {
	ProductID int64           `db:"product_id"`
	Quantity  int64           `db:"quantity"`
	Name      string          `db:"name"`
	SKU       string          `db:"sku"`
	Price     decimal.Decimal `db:"price"`
}

func (sp StockProduct) Product() Product {
	return Product{ID: sp.ProductID, Name: sp.Name, SKU: sp.SKU, Price: sp.Price}
}

// SetStockResult describes how an absolute stock write landed in the store of record.
type SetStockResult struct {
	ProductID    int64
	Inserted     bool
	RowsAffected int64
}

func (r SetStockResult) String() string {
	if r.Inserted {
		return fmt.Sprintf("rows added: %d", r.ProductID)
	}
	return fmt.Sprintf("rows updated: %d", r.RowsAffected)
}
