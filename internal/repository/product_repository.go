package repository

import (
	"context"
	"errors"
	"fmt"

	"kart-orders/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const productColumns = "id, name, price, category, stock, created_at"

// productRepository implements the ProductRepository interface using PostgreSQL.
type productRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewProductRepository creates a new PostgreSQL-backed product repository.
func NewProductRepository(pool *pgxpool.Pool, logger zerolog.Logger) ProductRepository {
	return &productRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "product").Logger(),
	}
}

// GetAll retrieves all products with pagination support.
func (r *productRepository) GetAll(ctx context.Context, limit, offset int) ([]model.Product, error) {
	query := `
		SELECT ` + productColumns + `
		FROM products
		ORDER BY id
		LIMIT $1 OFFSET $2
	`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		r.logger.Error().Err(err).
			Int("limit", limit).
			Int("offset", offset).
			Msg("failed to query products")
		return nil, fmt.Errorf("failed to query products: %w", err)
	}

	return r.collect(rows)
}

// GetByID retrieves a single product by its ID.
func (r *productRepository) GetByID(ctx context.Context, id int64) (*model.Product, error) {
	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE id = $1
	`

	var p model.Product
	err := r.pool.QueryRow(ctx, query, id).Scan(&p.ID, &p.Name, &p.Price, &p.Category, &p.Stock, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug().Int64("product_id", id).Msg("product not found")
			return nil, nil
		}
		r.logger.Error().Err(err).Int64("product_id", id).Msg("failed to query product")
		return nil, fmt.Errorf("failed to query product: %w", err)
	}

	return &p, nil
}

// GetByIDs retrieves multiple products by their IDs.
func (r *productRepository) GetByIDs(ctx context.Context, ids []int64) ([]model.Product, error) {
	if len(ids) == 0 {
		return []model.Product{}, nil
	}

	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		r.logger.Error().Err(err).Int("count", len(ids)).Msg("failed to query products by IDs")
		return nil, fmt.Errorf("failed to query products by IDs: %w", err)
	}

	return r.collect(rows)
}

// TryReserve applies a conditional decrement. The WHERE clause is evaluated
// against the latest committed row under its row lock, so concurrent callers
// can never drive stock below zero.
func (r *productRepository) TryReserve(ctx context.Context, tx pgx.Tx, productID int64, quantity int) (bool, error) {
	if quantity <= 0 {
		return false, fmt.Errorf("failed to reserve stock: invalid quantity %d", quantity)
	}

	query := `
		UPDATE products
		SET stock = stock - $2
		WHERE id = $1 AND stock >= $2
	`

	tag, err := tx.Exec(ctx, query, productID, quantity)
	if err != nil {
		r.logger.Error().
			Err(err).
			Int64("product_id", productID).
			Int("quantity", quantity).
			Msg("failed to reserve stock")
		return false, fmt.Errorf("failed to reserve stock: %w", err)
	}

	reserved := tag.RowsAffected() == 1
	r.logger.Debug().
		Int64("product_id", productID).
		Int("quantity", quantity).
		Bool("reserved", reserved).
		Msg("stock reservation attempted")

	return reserved, nil
}

// Release increments stock by quantity.
func (r *productRepository) Release(ctx context.Context, tx pgx.Tx, productID int64, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("failed to release stock: invalid quantity %d", quantity)
	}

	query := `
		UPDATE products
		SET stock = stock + $2
		WHERE id = $1
	`

	tag, err := tx.Exec(ctx, query, productID, quantity)
	if err != nil {
		r.logger.Error().
			Err(err).
			Int64("product_id", productID).
			Int("quantity", quantity).
			Msg("failed to release stock")
		return fmt.Errorf("failed to release stock: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("failed to release stock: product %d not found", productID)
	}

	return nil
}

// Upsert writes catalog rows in one transaction and moves the id sequence
// past the highest imported id.
func (r *productRepository) Upsert(ctx context.Context, products []model.Product, restock bool) error {
	if len(products) == 0 {
		return nil
	}

	query := `
		INSERT INTO products (id, name, price, category, stock)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    price = EXCLUDED.price,
		    category = EXCLUDED.category,
		    stock = CASE WHEN $6 THEN products.stock + EXCLUDED.stock ELSE products.stock END
	`

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to begin transaction")
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// No-op once committed.
		_ = tx.Rollback(ctx)
	}()

	batch := &pgx.Batch{}
	for _, p := range products {
		batch.Queue(query, p.ID, p.Name, p.Price, p.Category, p.Stock, restock)
	}

	results := tx.SendBatch(ctx, batch)
	for i := range products {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			r.logger.Error().
				Err(err).
				Int64("product_id", products[i].ID).
				Msg("failed to upsert product")
			return fmt.Errorf("failed to upsert product %d: %w", products[i].ID, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("failed to upsert products: %w", err)
	}

	_, err = tx.Exec(ctx, `SELECT setval(pg_get_serial_sequence('products', 'id'), GREATEST((SELECT MAX(id) FROM products), 1))`)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to advance product id sequence")
		return fmt.Errorf("failed to advance product id sequence: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.Error().Err(err).Msg("failed to commit product upsert")
		return fmt.Errorf("failed to commit product upsert: %w", err)
	}

	r.logger.Info().
		Int("count", len(products)).
		Bool("restock", restock).
		Msg("products upserted")

	return nil
}

func (r *productRepository) collect(rows pgx.Rows) ([]model.Product, error) {
	defer rows.Close()

	products := []model.Product{}
	for rows.Next() {
		var p model.Product
		err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Category, &p.Stock, &p.CreatedAt)
		if err != nil {
			r.logger.Error().Err(err).Msg("failed to scan product row")
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error().Err(err).Msg("error iterating product rows")
		return nil, fmt.Errorf("error iterating products: %w", err)
	}

	return products, nil
}
