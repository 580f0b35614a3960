package service

import (
	"context"

	"kart-orders/internal/model"

	"github.com/google/uuid"
)

// ProductService defines read operations for the product catalog.
type ProductService interface {
	// GetAll retrieves all products with pagination.
	GetAll(ctx context.Context, limit, offset int) ([]model.Product, error)

	// GetByID retrieves a single product by ID.
	GetByID(ctx context.Context, id int64) (*model.Product, error)
}

// OrderService defines order creation, payment and read operations.
type OrderService interface {
	// CreateOrder builds an order from the request lines. A non-empty
	// idempotencyKey makes retries return the first order; replayed reports
	// whether that happened.
	CreateOrder(ctx context.Context, caller model.Caller, req *model.OrderRequest, idempotencyKey string) (resp *model.OrderResponse, replayed bool, err error)

	// PayOrder moves a PENDING order to PURCHASED, reserving stock for
	// every line atomically.
	PayOrder(ctx context.Context, caller model.Caller, id uuid.UUID) (*model.OrderResponse, error)

	// CancelOrder moves a PENDING order to CANCELLED.
	CancelOrder(ctx context.Context, caller model.Caller, id uuid.UUID) (*model.OrderResponse, error)

	// GetOrder returns one order visible to caller.
	GetOrder(ctx context.Context, caller model.Caller, id uuid.UUID) (*model.OrderResponse, error)

	// ListOrders returns caller's orders, or every order for admins, newest first.
	ListOrders(ctx context.Context, caller model.Caller, filter model.OrderFilter) ([]model.OrderResponse, error)
}
