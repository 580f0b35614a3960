package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"kart-orders/internal/config"
	"kart-orders/internal/database/dbtest"
	"kart-orders/internal/model"
	"kart-orders/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func setupIntegration(t *testing.T, flow string) (*pgxpool.Pool, OrderService) {
	pool := dbtest.SetupPostgres(t)
	logger := zerolog.Nop()
	svc := NewOrderService(
		repository.NewOrderRepository(pool, logger),
		repository.NewProductRepository(pool, logger),
		nil,
		nil,
		config.OrderConfig{Flow: flow, MalformedItems: config.MalformedItemsDrop},
		logger,
	)
	return pool, svc
}

func create(t *testing.T, svc OrderService, caller model.Caller, pairs ...int64) *model.OrderResponse {
	t.Helper()
	resp, _, err := svc.CreateOrder(context.Background(), caller, &model.OrderRequest{Items: items(pairs...)}, "")
	require.NoError(t, err)
	return resp
}

// outcome counts successes and insufficient-stock failures; anything else
// fails the errgroup.
type outcome struct {
	ok           atomic.Int32
	insufficient atomic.Int32
	alreadyPaid  atomic.Int32
}

func (o *outcome) record(err error) error {
	if err == nil {
		o.ok.Add(1)
		return nil
	}
	de, isDomain := model.AsDomainError(err)
	switch {
	case isDomain && de.Kind == model.KindInsufficientStock:
		o.insufficient.Add(1)
		return nil
	case isDomain && de.Kind == model.KindAlreadyPaid:
		o.alreadyPaid.Add(1)
		return nil
	}
	return err
}

func TestIntegration_PayLater_TwoBuyersOneStockPool(t *testing.T) {
	pool, svc := setupIntegration(t, config.FlowPayLater)
	ctx := context.Background()

	productID := dbtest.InsertProduct(t, pool, "Widget", "10.00", 5)
	first := create(t, svc, alice, productID, 3)
	second := create(t, svc, bob, productID, 3)

	// Creating PENDING orders reserves nothing.
	assert.Equal(t, 5, dbtest.Stock(t, pool, productID))

	var res outcome
	var g errgroup.Group
	g.Go(func() error {
		_, err := svc.PayOrder(ctx, alice, first.ID)
		return res.record(err)
	})
	g.Go(func() error {
		_, err := svc.PayOrder(ctx, bob, second.ID)
		return res.record(err)
	})
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), res.ok.Load())
	assert.Equal(t, int32(1), res.insufficient.Load())
	assert.Equal(t, 2, dbtest.Stock(t, pool, productID))
}

func TestIntegration_ReserveOnCreate_TwoBuyersOneStockPool(t *testing.T) {
	pool, svc := setupIntegration(t, config.FlowReserveOnCreate)
	ctx := context.Background()

	productID := dbtest.InsertProduct(t, pool, "Widget", "10.00", 5)

	var res outcome
	var g errgroup.Group
	for _, caller := range []model.Caller{alice, bob} {
		g.Go(func() error {
			_, _, err := svc.CreateOrder(ctx, caller, &model.OrderRequest{Items: items(productID, 3)}, "")
			return res.record(err)
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), res.ok.Load())
	assert.Equal(t, int32(1), res.insufficient.Load())
	assert.Equal(t, 2, dbtest.Stock(t, pool, productID))

	all, err := svc.ListOrders(ctx, admin, model.OrderFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, model.OrderStatusPurchased, all[0].Status)
}

func TestIntegration_NoOversellUnderContention(t *testing.T) {
	for _, flow := range []string{config.FlowPayLater, config.FlowReserveOnCreate} {
		t.Run(flow, func(t *testing.T) {
			pool, svc := setupIntegration(t, flow)
			ctx := context.Background()

			const stock, buyers = 10, 25
			productID := dbtest.InsertProduct(t, pool, "Widget", "1.00", stock)

			var res outcome
			var g errgroup.Group
			for i := 0; i < buyers; i++ {
				caller := model.Caller{UserID: fmt.Sprintf("buyer-%d", i)}
				g.Go(func() error {
					resp, _, err := svc.CreateOrder(ctx, caller, &model.OrderRequest{Items: items(productID, 1)}, "")
					if err != nil || flow == config.FlowReserveOnCreate {
						return res.record(err)
					}
					_, err = svc.PayOrder(ctx, caller, resp.ID)
					return res.record(err)
				})
			}
			require.NoError(t, g.Wait())

			assert.Equal(t, int32(stock), res.ok.Load())
			assert.Equal(t, int32(buyers-stock), res.insufficient.Load())
			assert.Equal(t, 0, dbtest.Stock(t, pool, productID))
		})
	}
}

func TestIntegration_PayIsIdempotent(t *testing.T) {
	pool, svc := setupIntegration(t, config.FlowPayLater)
	ctx := context.Background()

	productID := dbtest.InsertProduct(t, pool, "Widget", "10.00", 5)
	order := create(t, svc, alice, productID, 2)

	paid, err := svc.PayOrder(ctx, alice, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPurchased, paid.Status)

	_, err = svc.PayOrder(ctx, alice, order.ID)
	assert.ErrorIs(t, err, model.ErrAlreadyPaid)

	assert.Equal(t, 3, dbtest.Stock(t, pool, productID))
}

func TestIntegration_ConcurrentPayOfOneOrder(t *testing.T) {
	pool, svc := setupIntegration(t, config.FlowPayLater)
	ctx := context.Background()

	productID := dbtest.InsertProduct(t, pool, "Widget", "10.00", 10)
	order := create(t, svc, alice, productID, 2)

	var res outcome
	var g errgroup.Group
	for i := 0; i < 5; i++ {
		g.Go(func() error {
			_, err := svc.PayOrder(ctx, alice, order.ID)
			return res.record(err)
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), res.ok.Load())
	assert.Equal(t, int32(4), res.alreadyPaid.Load())
	assert.Equal(t, 8, dbtest.Stock(t, pool, productID))
}

func TestIntegration_MultiItemReservationIsAtomic(t *testing.T) {
	for _, flow := range []string{config.FlowPayLater, config.FlowReserveOnCreate} {
		t.Run(flow, func(t *testing.T) {
			pool, svc := setupIntegration(t, flow)
			ctx := context.Background()

			a := dbtest.InsertProduct(t, pool, "Alpha", "1.00", 5)
			b := dbtest.InsertProduct(t, pool, "Beta", "1.00", 1)

			req := &model.OrderRequest{Items: items(a, 3, b, 2)}
			resp, _, err := svc.CreateOrder(ctx, alice, req, "")
			if flow == config.FlowPayLater {
				require.NoError(t, err)
				_, err = svc.PayOrder(ctx, alice, resp.ID)
			}

			require.Error(t, err)
			de, ok := model.AsDomainError(err)
			require.True(t, ok)
			assert.Equal(t, model.KindInsufficientStock, de.Kind)
			assert.Equal(t, "Insufficient stock for Beta", de.Message)

			assert.Equal(t, 5, dbtest.Stock(t, pool, a))
			assert.Equal(t, 1, dbtest.Stock(t, pool, b))

			if flow == config.FlowPayLater {
				stored, err := svc.GetOrder(ctx, alice, resp.ID)
				require.NoError(t, err)
				assert.Equal(t, model.OrderStatusPending, stored.Status)
			}
		})
	}
}

func TestIntegration_DuplicateLinesAreMerged(t *testing.T) {
	pool, svc := setupIntegration(t, config.FlowReserveOnCreate)
	ctx := context.Background()

	productID := dbtest.InsertProduct(t, pool, "Widget", "2.00", 5)

	resp := create(t, svc, alice, productID, 2, productID, 3)

	require.Len(t, resp.Items, 1)
	assert.Equal(t, 5, resp.Items[0].Quantity)
	assert.Equal(t, 0, dbtest.Stock(t, pool, productID))

	stored, err := svc.GetOrder(ctx, alice, resp.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, 5, stored.Items[0].Quantity)
}

func TestIntegration_PriceSnapshotSurvivesPriceChange(t *testing.T) {
	pool, svc := setupIntegration(t, config.FlowPayLater)
	ctx := context.Background()

	productID := dbtest.InsertProduct(t, pool, "Widget", "10.00", 5)
	order := create(t, svc, alice, productID, 2)

	dbtest.SetPrice(t, pool, productID, "99.00")

	paid, err := svc.PayOrder(ctx, alice, order.ID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("10.00").Equal(paid.Items[0].UnitPrice))

	stored, err := svc.GetOrder(ctx, alice, order.ID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("10.00").Equal(stored.Items[0].UnitPrice))
	assert.True(t, decimal.RequireFromString("20.00").Equal(stored.Total))
}

func TestIntegration_CancelledOrderCannotBePaid(t *testing.T) {
	pool, svc := setupIntegration(t, config.FlowPayLater)
	ctx := context.Background()

	productID := dbtest.InsertProduct(t, pool, "Widget", "10.00", 5)
	order := create(t, svc, alice, productID, 1)

	cancelled, err := svc.CancelOrder(ctx, alice, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, cancelled.Status)

	_, err = svc.PayOrder(ctx, alice, order.ID)
	var de *model.DomainError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, model.KindInvalidTransition, de.Kind)
	assert.Equal(t, 5, dbtest.Stock(t, pool, productID))
}

func TestIntegration_UnknownOrder(t *testing.T) {
	_, svc := setupIntegration(t, config.FlowPayLater)

	_, err := svc.PayOrder(context.Background(), alice, uuid.New())
	assert.ErrorIs(t, err, model.ErrOrderNotFound)
}
