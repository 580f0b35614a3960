package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a product in the catalogue together with its stock counter.
type Product struct {
	ID        int64           `json:"id" db:"id"`
	Name      string          `json:"name" db:"name"`
	Price     decimal.Decimal `json:"price" db:"price"`
	Category  string          `json:"category" db:"category"`
	Stock     int             `json:"stock" db:"stock"`
	CreatedAt time.Time       `json:"createdAt" db:"created_at"`
}
