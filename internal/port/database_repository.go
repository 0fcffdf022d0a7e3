package port

import (
	"context"
	"database/sql"

	"github.com/rl1809/stock-sync/internal/core/domain"
)

// Execer is the slice of a transaction the stock adjustments need.
// Both *sql.Tx and *sqlx.Tx satisfy it.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type DatabaseRepository interface {
	// SetStock writes an absolute quantity in its own transaction, inserting the row if missing
	SetStock(ctx context.Context, productID, quantity int64) (domain.SetStockResult, error)

	// AdjustStock applies signed deltas on the caller's transaction, one statement per line,
	// and returns the product ids that had no stock row
	AdjustStock(ctx context.Context, tx Execer, lines []domain.Line, op domain.Operation) ([]int64, error)

	// InTx runs fn in a transaction, committing on nil and rolling back otherwise
	InTx(ctx context.Context, fn func(tx Execer) error) error

	// GetProduct returns nil when the product does not exist
	GetProduct(ctx context.Context, productID int64) (*domain.Product, error)

	GetProducts(ctx context.Context, productIDs []int64) ([]domain.Product, error)

	// GetStockProduct returns domain.ErrStockNotFound when there is no stock row
	GetStockProduct(ctx context.Context, productID int64) (domain.CacheEntry, error)

	// ListStockProducts returns every stock row that has a matching product
	ListStockProducts(ctx context.Context) ([]domain.StockProduct, error)
}
