// internal/infrastructure/persistence/postgres/schema.go
package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"crypto-weather-sync/pkg/logger"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS favorite_cities (
	id SERIAL PRIMARY KEY,
	city VARCHAR(128) NOT NULL UNIQUE,
	position INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_favorite_cities_position ON favorite_cities(position);
`

// EnsureSchema создает таблицы, если их нет
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	logger.Info("✅ Database schema ready")
	return nil
}
