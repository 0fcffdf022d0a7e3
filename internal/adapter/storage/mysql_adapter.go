package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/rl1809/stock-sync/internal/core/domain"
	"github.com/rl1809/stock-sync/internal/port"
)

const mysqlErrDuplicateEntry = 1062

type MySQLAdapter struct {
	db *sqlx.DB
}

func NewMySQLAdapter(db *sqlx.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// SetStock runs update-then-insert under READ COMMITTED so that a missing row
// takes no gap lock. The primary key on product_id turns a concurrent insert
// into a duplicate-entry error, which is resolved by updating the winner's row.
func (m *MySQLAdapter) SetStock(ctx context.Context, productID, quantity int64) (domain.SetStockResult, error) {
	result := domain.SetStockResult{ProductID: productID}

	tx, err := m.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return result, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := updateStock(ctx, tx, productID, quantity)
	if err != nil {
		return result, err
	}

	if rows == 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO stocks (product_id, quantity)
			VALUES (?, ?)`,
			productID, quantity,
		)
		switch {
		case err == nil:
			result.Inserted = true
			rows = 1
		case isDuplicateEntry(err):
			rows, err = updateStock(ctx, tx, productID, quantity)
			if err != nil {
				return result, err
			}
		default:
			return result, fmt.Errorf("insert stock: %w", err)
		}
	}
	result.RowsAffected = rows

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("commit tx: %w", err)
	}
	return result, nil
}

func updateStock(ctx context.Context, tx port.Execer, productID, quantity int64) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE stocks
		SET quantity = ?
		WHERE product_id = ?`,
		quantity, productID,
	)
	if err != nil {
		return 0, fmt.Errorf("update stock: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("update stock rows affected: %w", err)
	}
	return rows, nil
}

// AdjustStock returns the ids whose update matched no row.
func (m *MySQLAdapter) AdjustStock(ctx context.Context, tx port.Execer, lines []domain.Line, op domain.Operation) ([]int64, error) {
	var missing []int64
	for _, line := range lines {
		res, err := tx.ExecContext(ctx, `
			UPDATE stocks
			SET quantity = quantity + ?
			WHERE product_id = ?`,
			op.Delta(line.Quantity), line.ProductID,
		)
		if err != nil {
			return nil, fmt.Errorf("adjust stock %d: %w", line.ProductID, err)
		}

		rows, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("adjust stock %d rows affected: %w", line.ProductID, err)
		}
		if rows == 0 {
			missing = append(missing, line.ProductID)
		}
	}
	return missing, nil
}

func (m *MySQLAdapter) InTx(ctx context.Context, fn func(tx port.Execer) error) (err error) {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				err = errors.Join(err, rollbackErr)
			}
			return
		}
		if commitErr := tx.Commit(); commitErr != nil {
			err = fmt.Errorf("commit tx: %w", commitErr)
		}
	}()

	return fn(tx)
}

func (m *MySQLAdapter) GetProduct(ctx context.Context, productID int64) (*domain.Product, error) {
	var p domain.Product
	err := m.db.GetContext(ctx, &p, `
		SELECT id, name, sku, price
		FROM products WHERE id = ?`, productID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}

	return &p, nil
}

func (m *MySQLAdapter) GetProducts(ctx context.Context, productIDs []int64) ([]domain.Product, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`
		SELECT id, name, sku, price
		FROM products WHERE id IN (?)`, productIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("build products query: %w", err)
	}

	var products []domain.Product
	if err := m.db.SelectContext(ctx, &products, m.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	return products, nil
}

type stockProductRow struct {
	ProductID int64               `db:"product_id"`
	Quantity  int64               `db:"quantity"`
	Name      sql.NullString      `db:"name"`
	SKU       sql.NullString      `db:"sku"`
	Price     decimal.NullDecimal `db:"price"`
}

func (m *MySQLAdapter) GetStockProduct(ctx context.Context, productID int64) (domain.CacheEntry, error) {
	var row stockProductRow
	err := m.db.GetContext(ctx, &row, `
		SELECT s.product_id, s.quantity, p.name, p.sku, p.price
		FROM stocks s
		LEFT JOIN products p ON p.id = s.product_id
		WHERE s.product_id = ?`, productID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CacheEntry{}, domain.ErrStockNotFound
	}
	if err != nil {
		return domain.CacheEntry{}, fmt.Errorf("query stock: %w", err)
	}

	entry := domain.CacheEntry{ProductID: row.ProductID, Quantity: row.Quantity}
	if row.Name.Valid {
		entry.Enrichment = domain.Enrichment{
			Catalog: true,
			Name:    row.Name.String,
			SKU:     row.SKU.String,
			Price:   row.Price,
		}
	}
	return entry, nil
}

func (m *MySQLAdapter) ListStockProducts(ctx context.Context) ([]domain.StockProduct, error) {
	var rows []domain.StockProduct
	err := m.db.SelectContext(ctx, &rows, `
		SELECT s.product_id, s.quantity, p.name, p.sku, p.price
		FROM stocks s
		JOIN products p ON s.product_id = p.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query stock products: %w", err)
	}
	return rows, nil
}

func isDuplicateEntry(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlErrDuplicateEntry
}

var _ port.DatabaseRepository = (*MySQLAdapter)(nil)
