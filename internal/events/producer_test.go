package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"kart-orders/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	block  chan struct{}
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.block != nil {
		<-w.block
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func testOrder() *model.Order {
	id := uuid.New()
	return &model.Order{
		ID:     id,
		UserID: "u1",
		Status: model.OrderStatusPurchased,
		Items: []model.OrderItem{
			{ProductID: 1, Quantity: 2, UnitPrice: decimal.RequireFromString("1.50")},
			{ProductID: 7, Quantity: 1, UnitPrice: decimal.RequireFromString("10.00")},
		},
	}
}

func TestNewOrderEnvelope(t *testing.T) {
	order := testOrder()

	env, err := NewOrderEnvelope(EventOrderPurchased, "kart-orders", "req-1", order)
	require.NoError(t, err)

	assert.Equal(t, EventOrderPurchased, env.EventType)
	assert.Equal(t, 1, env.EventVersion)
	assert.Equal(t, order.ID.String(), env.CorrelationID)
	assert.Equal(t, "req-1", env.TraceID)
	assert.NotEmpty(t, env.EventID)

	var payload OrderPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, "PURCHASED", payload.Status)
	assert.Len(t, payload.Items, 2)
	assert.True(t, decimal.RequireFromString("13.00").Equal(payload.Total))
}

func TestProducer_PublishAndFlush(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, 8, zerolog.Nop())
	p.Start()

	env, err := NewOrderEnvelope(EventOrderCreated, "kart-orders", "", testOrder())
	require.NoError(t, err)

	require.NoError(t, p.Publish(context.Background(), env))
	p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.WaitClosed(ctx))

	w.mu.Lock()
	defer w.mu.Unlock()
	require.Len(t, w.msgs, 1)
	assert.Equal(t, env.CorrelationID, string(w.msgs[0].Key))
	assert.Equal(t, "x-event-type", w.msgs[0].Headers[0].Key)
	assert.Equal(t, EventOrderCreated, string(w.msgs[0].Headers[0].Value))
	assert.True(t, w.closed)
}

func TestProducer_BufferFull(t *testing.T) {
	w := &fakeWriter{block: make(chan struct{})}
	p := newProducer(w, 1, zerolog.Nop())

	env, err := NewOrderEnvelope(EventOrderCreated, "kart-orders", "", testOrder())
	require.NoError(t, err)

	// Not started, so the single slot fills immediately.
	require.NoError(t, p.Publish(context.Background(), env))
	assert.ErrorIs(t, p.Publish(context.Background(), env), ErrBufferFull)

	close(w.block)
	p.Start()
	p.Close()
	assert.ErrorIs(t, p.Publish(context.Background(), env), ErrProducerClosed)
	require.NoError(t, p.WaitClosed(context.Background()))
}

func TestProducer_WriteErrorDoesNotStopLoop(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := newProducer(w, 4, zerolog.Nop())
	p.Start()

	env, err := NewOrderEnvelope(EventOrderCancelled, "kart-orders", "", testOrder())
	require.NoError(t, err)

	require.NoError(t, p.Publish(context.Background(), env))
	require.NoError(t, p.Publish(context.Background(), env))
	p.Close()
	require.NoError(t, p.WaitClosed(context.Background()))

	w.mu.Lock()
	defer w.mu.Unlock()
	assert.Len(t, w.msgs, 2)
}

func TestNopPublisher(t *testing.T) {
	assert.NoError(t, NopPublisher{}.Publish(context.Background(), Envelope{}))
}
