package storage

import (
	"context"
	"fmt"
)

// stocks.product_id carries no foreign key: stock may be recorded for a
// product the catalog does not know yet.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id BIGINT NOT NULL,
		name VARCHAR(255) NOT NULL,
		sku VARCHAR(64) NOT NULL,
		price DECIMAL(10, 2) NOT NULL,
		PRIMARY KEY (id)
	)`,
	`CREATE TABLE IF NOT EXISTS stocks (
		product_id BIGINT NOT NULL,
		quantity BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (product_id)
	)`,
}

// MigrateSchema creates the tables used by the adapter when they are missing.
func (m *MySQLAdapter) MigrateSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}
	}
	return nil
}
