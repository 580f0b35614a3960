package repository

import (
	"context"

	"kart-orders/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ProductRepository defines the interface for product and stock data access.
type ProductRepository interface {
	// GetAll retrieves all products with pagination support.
	GetAll(ctx context.Context, limit, offset int) ([]model.Product, error)

	// GetByID retrieves a single product by its ID.
	GetByID(ctx context.Context, id int64) (*model.Product, error)

	// GetByIDs retrieves multiple products by their IDs in one query.
	// Missing IDs are simply absent from the result.
	GetByIDs(ctx context.Context, ids []int64) ([]model.Product, error)

	// TryReserve decrements stock by quantity only if at least quantity is
	// available, as a single conditional update within tx. It reports
	// whether the decrement was applied.
	TryReserve(ctx context.Context, tx pgx.Tx, productID int64, quantity int) (bool, error)

	// Release increments stock by quantity within tx.
	Release(ctx context.Context, tx pgx.Tx, productID int64, quantity int) error

	// Upsert inserts catalog products or refreshes name, price and category
	// of existing ones. Stock of existing rows is only raised when restock is
	// set.
	Upsert(ctx context.Context, products []model.Product, restock bool) error
}

// OrderRepository defines the interface for order data access operations.
type OrderRepository interface {
	// BeginTx starts a new database transaction.
	BeginTx(ctx context.Context) (pgx.Tx, error)

	// CreateOrder inserts a new order within the provided transaction.
	CreateOrder(ctx context.Context, tx pgx.Tx, order *model.Order) error

	// CreateOrderItems inserts multiple order items within the provided transaction.
	CreateOrderItems(ctx context.Context, tx pgx.Tx, items []model.OrderItem) error

	// GetForUpdate loads an order with its items and locks the order row
	// until tx ends. Returns nil if the order does not exist.
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Order, error)

	// UpdateStatus sets the status of an order within the provided transaction.
	UpdateStatus(ctx context.Context, tx pgx.Tx, order *model.Order) error

	// GetByID retrieves an order by its ID along with its items.
	// Returns nil if the order does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)

	// List retrieves orders newest first with their items. An empty userID
	// lists every user's orders.
	List(ctx context.Context, userID string, filter model.OrderFilter) ([]model.Order, error)
}
