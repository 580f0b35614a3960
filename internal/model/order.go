package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPurchased OrderStatus = "PURCHASED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// validNext lists the allowed transitions. PURCHASED and CANCELLED are terminal.
var validNext = map[OrderStatus]map[OrderStatus]bool{
	OrderStatusPending:   {OrderStatusPurchased: true, OrderStatusCancelled: true},
	OrderStatusPurchased: {},
	OrderStatusCancelled: {},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to OrderStatus) bool {
	return validNext[from][to]
}

// ParseOrderStatus validates a status filter value.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	status := OrderStatus(strings.ToUpper(strings.TrimSpace(s)))
	_, ok := validNext[status]
	return status, ok
}

// Order represents a customer order.
type Order struct {
	ID        uuid.UUID   `json:"id" db:"id"`
	UserID    string      `json:"userId" db:"user_id"`
	Status    OrderStatus `json:"status" db:"status"`
	Items     []OrderItem `json:"items"`
	CreatedAt time.Time   `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time   `json:"updatedAt" db:"updated_at"`
}

// Total is the sum of the item snapshots.
func (o *Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// OrderItem represents a line item in an order. UnitPrice is the product
// price at the moment the order was built and is never refreshed.
type OrderItem struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	OrderID     uuid.UUID       `json:"-" db:"order_id"`
	ProductID   int64           `json:"productId" db:"product_id"`
	ProductName string          `json:"productName" db:"product_name"`
	Quantity    int             `json:"quantity" db:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice" db:"unit_price"`
}

// Subtotal is quantity times the snapshot price.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// OrderRequest represents the request payload for creating an order.
type OrderRequest struct {
	Items []OrderItemRequest `json:"items"`
}

// OrderItemRequest represents a single item in an order request.
type OrderItemRequest struct {
	ProductID LooseInt `json:"productId"`
	Quantity  LooseInt `json:"quantity"`
}

// OrderResponse represents the response payload for an order.
type OrderResponse struct {
	Order
	Total decimal.Decimal `json:"total"`
}

// NewOrderResponse wraps an order with its computed total.
func NewOrderResponse(order *Order) *OrderResponse {
	return &OrderResponse{Order: *order, Total: order.Total()}
}

// OrderFilter narrows ListOrders.
type OrderFilter struct {
	Status *OrderStatus
	Limit  int
	Offset int
}

// LooseInt accepts a JSON number or a numeric string. Anything else, including
// a missing field, decodes to an invalid value rather than failing the whole
// request body, so per-line policy can decide what to do with it.
type LooseInt struct {
	Value int64
	Valid bool
}

// Int returns a valid LooseInt.
func Int(v int64) LooseInt {
	return LooseInt{Value: v, Valid: true}
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *LooseInt) UnmarshalJSON(data []byte) error {
	*n = LooseInt{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	raw := string(data)
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		raw = strings.TrimSpace(s)
	}

	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*n = Int(v)
		return nil
	}
	// Integral floats such as 2.0 are accepted; fractional quantities are not.
	if f, err := strconv.ParseFloat(raw, 64); err == nil && f == float64(int64(f)) {
		*n = Int(int64(f))
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (n LooseInt) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(n.Value, 10)), nil
}
