// Package dbtest starts a disposable PostgreSQL container for tests that need
// real transactional behaviour.
package dbtest

import (
	"context"
	"testing"
	"time"

	"kart-orders/internal/database"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// SetupPostgres starts a PostgreSQL container, applies the schema and returns
// a pool sized for concurrent tests. The container is removed on cleanup.
// Tests are skipped under -short.
func SetupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		t.Fatalf("failed to parse connection string: %v", err)
	}
	poolConfig.MaxConns = 20

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		t.Fatalf("failed to create connection pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}

	if err := database.Migrate(ctx, pool, zerolog.Nop()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	return pool
}

// Reset removes all rows from the test tables.
func Reset(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	_, err := pool.Exec(context.Background(),
		"TRUNCATE order_items, orders, products RESTART IDENTITY CASCADE")
	if err != nil {
		t.Fatalf("failed to reset tables: %v", err)
	}
}

// InsertProduct inserts a product and returns its id.
func InsertProduct(t *testing.T, pool *pgxpool.Pool, name, price string, stock int) int64 {
	t.Helper()

	var id int64
	err := pool.QueryRow(context.Background(),
		"INSERT INTO products (name, price, category, stock) VALUES ($1, $2, 'test', $3) RETURNING id",
		name, decimal.RequireFromString(price), stock,
	).Scan(&id)
	if err != nil {
		t.Fatalf("failed to insert product %s: %v", name, err)
	}
	return id
}

// Stock reads the current stock counter of a product.
func Stock(t *testing.T, pool *pgxpool.Pool, productID int64) int {
	t.Helper()

	var stock int
	err := pool.QueryRow(context.Background(),
		"SELECT stock FROM products WHERE id = $1", productID,
	).Scan(&stock)
	if err != nil {
		t.Fatalf("failed to read stock of product %d: %v", productID, err)
	}
	return stock
}

// SetPrice changes a product's catalog price.
func SetPrice(t *testing.T, pool *pgxpool.Pool, productID int64, price string) {
	t.Helper()

	_, err := pool.Exec(context.Background(),
		"UPDATE products SET price = $2 WHERE id = $1", productID, decimal.RequireFromString(price))
	if err != nil {
		t.Fatalf("failed to update price of product %d: %v", productID, err)
	}
}
