// Package events publishes order lifecycle envelopes after the owning
// transaction has committed. Delivery is best effort.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"kart-orders/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated   = "OrderCreated"
	EventOrderPurchased = "OrderPurchased"
	EventOrderCancelled = "OrderCancelled"

	eventVersion = 1
)

// Envelope is the versioned wrapper every event is published in.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// ItemLine is one order line as carried in event payloads.
type ItemLine struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// OrderPayload is the payload of all order lifecycle events.
type OrderPayload struct {
	OrderID string          `json:"order_id"`
	UserID  string          `json:"user_id"`
	Status  string          `json:"status"`
	Items   []ItemLine      `json:"items"`
	Total   decimal.Decimal `json:"total"`
}

// NewOrderEnvelope builds an envelope for an order event. The correlation id
// is the order id, which is also the partition key.
func NewOrderEnvelope(eventType, producer, traceID string, order *model.Order) (Envelope, error) {
	payload := OrderPayload{
		OrderID: order.ID.String(),
		UserID:  order.UserID,
		Status:  string(order.Status),
		Items:   make([]ItemLine, len(order.Items)),
		Total:   order.Total(),
	}
	for i, item := range order.Items {
		payload.Items[i] = ItemLine{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  eventVersion,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		TraceID:       traceID,
		CorrelationID: order.ID.String(),
		Payload:       raw,
	}, nil
}

// Publisher sends envelopes to the event stream.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// NopPublisher discards every event. Used when Kafka is disabled.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Envelope) error { return nil }
