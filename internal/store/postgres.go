package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// OpenPostgres connects through the pgx database/sql driver and applies
// the schema. Concurrent ledger writers of one variant are serialized by a
// row lock on the variant.
func OpenPostgres(ctx context.Context, url string) (*SQLStore, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLStore{db: db, dialect: postgresDialect}, nil
}

// Connect opens the store for a configured driver.
func Connect(ctx context.Context, driver, path, url string) (*SQLStore, error) {
	switch driver {
	case "", "sqlite":
		return Open(path)
	case "postgres":
		if url == "" {
			return nil, fmt.Errorf("postgres driver requires a database url")
		}
		return OpenPostgres(ctx, url)
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
}
