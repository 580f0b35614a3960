package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kart-orders/internal/config"
	"kart-orders/internal/events"
	"kart-orders/internal/idempotency"
	"kart-orders/internal/model"
	"kart-orders/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultListLimit = 10
	maxListLimit     = 100
	eventProducer    = "kart-orders"
)

// orderService implements OrderService.
type orderService struct {
	orderRepo   repository.OrderRepository
	productRepo repository.ProductRepository
	keys        idempotency.Store
	publisher   events.Publisher
	cfg         config.OrderConfig
	tracer      trace.Tracer
	logger      zerolog.Logger
}

// NewOrderService creates a new order service. cfg.Flow selects whether
// stock is reserved at payment (pay_later) or at creation (reserve_on_create).
func NewOrderService(
	orderRepo repository.OrderRepository,
	productRepo repository.ProductRepository,
	keys idempotency.Store,
	publisher events.Publisher,
	cfg config.OrderConfig,
	logger zerolog.Logger,
) OrderService {
	if keys == nil {
		keys = idempotency.NopStore{}
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &orderService{
		orderRepo:   orderRepo,
		productRepo: productRepo,
		keys:        keys,
		publisher:   publisher,
		cfg:         cfg,
		tracer:      otel.Tracer("kart-orders/service"),
		logger:      logger.With().Str("service", "order").Str("flow", cfg.Flow).Logger(),
	}
}

// CreateOrder creates a new order from the request lines.
func (s *orderService) CreateOrder(ctx context.Context, caller model.Caller, req *model.OrderRequest, idempotencyKey string) (resp *model.OrderResponse, replayed bool, err error) {
	ctx, span := s.tracer.Start(ctx, "order.create", trace.WithAttributes(
		attribute.String("order.flow", s.cfg.Flow),
		attribute.String("user.id", caller.UserID),
	))
	defer func() { endSpan(span, err) }()

	if caller.UserID == "" {
		return nil, false, model.ErrMissingIdentity
	}

	lines, err := normalizeItems(req, s.cfg.MalformedItems)
	if err != nil {
		s.logger.Debug().Err(err).Str("user_id", caller.UserID).Msg("order request rejected")
		return nil, false, err
	}
	span.SetAttributes(attribute.Int("order.lines", len(lines)))

	if idempotencyKey != "" {
		fp := fingerprint(lines)
		existing, claimErr := s.claimKey(ctx, caller, idempotencyKey, fp)
		if claimErr != nil {
			return nil, false, claimErr
		}
		if existing != nil {
			s.logger.Info().
				Str("order_id", existing.ID.String()).
				Str("idempotency_key", idempotencyKey).
				Msg("order create replayed")
			return model.NewOrderResponse(existing), true, nil
		}
		defer func() {
			s.settleKey(caller, idempotencyKey, fp, resp, err)
		}()
	}

	order, err := s.buildOrder(ctx, caller, lines)
	if err != nil {
		return nil, false, err
	}

	switch s.cfg.Flow {
	case config.FlowReserveOnCreate:
		err = s.createReserved(ctx, order)
	default:
		err = s.createPending(ctx, order)
	}
	if err != nil {
		return nil, false, err
	}

	span.SetAttributes(attribute.String("order.id", order.ID.String()))
	s.logger.Info().
		Str("order_id", order.ID.String()).
		Str("user_id", order.UserID).
		Str("status", string(order.Status)).
		Int("item_count", len(order.Items)).
		Msg("order created successfully")

	s.publish(ctx, events.EventOrderCreated, order)
	if order.Status == model.OrderStatusPurchased {
		s.publish(ctx, events.EventOrderPurchased, order)
	}

	return model.NewOrderResponse(order), false, nil
}

// buildOrder resolves every product in one lookup and snapshots names and
// prices into new order lines.
func (s *orderService) buildOrder(ctx context.Context, caller model.Caller, lines []orderLine) (*model.Order, error) {
	ids := lineProductIDs(lines)
	products, err := s.productRepo.GetByIDs(ctx, ids)
	if err != nil {
		s.logger.Error().Err(err).Int("product_count", len(ids)).Msg("failed to resolve products")
		return nil, fmt.Errorf("failed to resolve products: %w", err)
	}

	byID := make(map[int64]model.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	now := time.Now().UTC()
	order := &model.Order{
		ID:        uuid.New(),
		UserID:    caller.UserID,
		Status:    model.OrderStatusPending,
		Items:     make([]model.OrderItem, 0, len(lines)),
		CreatedAt: now,
		UpdatedAt: now,
	}

	for _, line := range lines {
		p, ok := byID[line.ProductID]
		if !ok {
			s.logger.Warn().Int64("product_id", line.ProductID).Msg("product not found")
			return nil, model.NewProductNotFoundError(line.ProductID)
		}
		if s.cfg.Flow == config.FlowPayLater && s.cfg.StockPrecheck && p.Stock < line.Quantity {
			s.logger.Debug().
				Int64("product_id", p.ID).
				Int("stock", p.Stock).
				Int("quantity", line.Quantity).
				Msg("stock precheck failed")
			return nil, model.NewInsufficientStockError(p.Name)
		}
		order.Items = append(order.Items, model.OrderItem{
			ID:          uuid.New(),
			OrderID:     order.ID,
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    line.Quantity,
			UnitPrice:   p.Price,
		})
	}

	return order, nil
}

// createPending persists a PENDING order without touching stock.
func (s *orderService) createPending(ctx context.Context, order *model.Order) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		return s.persist(ctx, tx, order)
	})
}

// createReserved reserves every line and persists the order as PURCHASED in
// the same transaction. The first failed reservation aborts everything.
func (s *orderService) createReserved(ctx context.Context, order *model.Order) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if err := s.reserveItems(ctx, tx, order); err != nil {
			return err
		}
		order.Status = model.OrderStatusPurchased
		return s.persist(ctx, tx, order)
	})
}

func (s *orderService) persist(ctx context.Context, tx pgx.Tx, order *model.Order) error {
	if err := s.orderRepo.CreateOrder(ctx, tx, order); err != nil {
		s.logger.Error().Err(err).Str("order_id", order.ID.String()).Msg("failed to create order")
		return fmt.Errorf("failed to create order: %w", err)
	}
	if err := s.orderRepo.CreateOrderItems(ctx, tx, order.Items); err != nil {
		s.logger.Error().
			Err(err).
			Str("order_id", order.ID.String()).
			Int("item_count", len(order.Items)).
			Msg("failed to create order items")
		return fmt.Errorf("failed to create order items: %w", err)
	}
	return nil
}

// reserveItems decrements stock for every line in product id order.
func (s *orderService) reserveItems(ctx context.Context, tx pgx.Tx, order *model.Order) error {
	for _, item := range order.Items {
		if item.Quantity <= 0 {
			return fmt.Errorf("failed to reserve stock: invalid quantity %d for product %d", item.Quantity, item.ProductID)
		}
		ok, err := s.productRepo.TryReserve(ctx, tx, item.ProductID, item.Quantity)
		if err != nil {
			return fmt.Errorf("failed to reserve stock: %w", err)
		}
		if !ok {
			s.logger.Info().
				Str("order_id", order.ID.String()).
				Int64("product_id", item.ProductID).
				Int("quantity", item.Quantity).
				Msg("insufficient stock")
			return model.NewInsufficientStockError(item.ProductName)
		}
	}
	return nil
}

// PayOrder reserves stock for a PENDING order and marks it PURCHASED. The
// order row stays locked for the whole transaction, so concurrent payments
// of one order are serialised.
func (s *orderService) PayOrder(ctx context.Context, caller model.Caller, id uuid.UUID) (resp *model.OrderResponse, err error) {
	ctx, span := s.tracer.Start(ctx, "order.pay", trace.WithAttributes(
		attribute.String("order.id", id.String()),
		attribute.String("user.id", caller.UserID),
	))
	defer func() { endSpan(span, err) }()

	if caller.UserID == "" {
		return nil, model.ErrMissingIdentity
	}

	var order *model.Order
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		order, err = s.orderRepo.GetForUpdate(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("failed to load order: %w", err)
		}
		if order == nil {
			return model.ErrOrderNotFound
		}
		if order.UserID != caller.UserID {
			return model.ErrNotAuthorized
		}

		switch order.Status {
		case model.OrderStatusPurchased:
			return model.ErrAlreadyPaid
		case model.OrderStatusPending:
		default:
			return model.NewInvalidTransitionError(order.Status, model.OrderStatusPurchased)
		}

		if err := s.reserveItems(ctx, tx, order); err != nil {
			return err
		}

		order.Status = model.OrderStatusPurchased
		order.UpdatedAt = time.Now().UTC()
		return s.orderRepo.UpdateStatus(ctx, tx, order)
	})
	if err != nil {
		s.logger.Debug().Err(err).Str("order_id", id.String()).Msg("order payment failed")
		return nil, err
	}

	s.logger.Info().
		Str("order_id", order.ID.String()).
		Str("user_id", order.UserID).
		Msg("order paid")
	s.publish(ctx, events.EventOrderPurchased, order)

	return model.NewOrderResponse(order), nil
}

// CancelOrder moves a PENDING order to CANCELLED. PENDING orders hold no
// reservation, so stock is untouched.
func (s *orderService) CancelOrder(ctx context.Context, caller model.Caller, id uuid.UUID) (resp *model.OrderResponse, err error) {
	ctx, span := s.tracer.Start(ctx, "order.cancel", trace.WithAttributes(
		attribute.String("order.id", id.String()),
		attribute.String("user.id", caller.UserID),
	))
	defer func() { endSpan(span, err) }()

	if caller.UserID == "" {
		return nil, model.ErrMissingIdentity
	}

	var order *model.Order
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		order, err = s.orderRepo.GetForUpdate(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("failed to load order: %w", err)
		}
		if order == nil {
			return model.ErrOrderNotFound
		}
		if !caller.CanAccess(order.UserID) {
			return model.ErrNotAuthorized
		}
		if !model.CanTransition(order.Status, model.OrderStatusCancelled) {
			return model.NewInvalidTransitionError(order.Status, model.OrderStatusCancelled)
		}

		order.Status = model.OrderStatusCancelled
		order.UpdatedAt = time.Now().UTC()
		return s.orderRepo.UpdateStatus(ctx, tx, order)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("order_id", order.ID.String()).
		Str("cancelled_by", caller.UserID).
		Msg("order cancelled")
	s.publish(ctx, events.EventOrderCancelled, order)

	return model.NewOrderResponse(order), nil
}

// GetOrder returns an order owned by caller. Admins see every order. Orders
// of other users are reported as not found.
func (s *orderService) GetOrder(ctx context.Context, caller model.Caller, id uuid.UUID) (*model.OrderResponse, error) {
	if caller.UserID == "" {
		return nil, model.ErrMissingIdentity
	}

	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to get order")
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	if order == nil || !caller.CanAccess(order.UserID) {
		s.logger.Debug().Str("order_id", id.String()).Msg("order not found")
		return nil, model.ErrOrderNotFound
	}

	return model.NewOrderResponse(order), nil
}

// ListOrders returns orders newest first with pagination.
func (s *orderService) ListOrders(ctx context.Context, caller model.Caller, filter model.OrderFilter) ([]model.OrderResponse, error) {
	if caller.UserID == "" {
		return nil, model.ErrMissingIdentity
	}

	if filter.Status != nil {
		status, ok := model.ParseOrderStatus(string(*filter.Status))
		if !ok {
			return nil, model.NewValidationError(model.ErrCodeInvalidStatus,
				fmt.Sprintf("Unknown order status %q", string(*filter.Status)))
		}
		filter.Status = &status
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	userID := caller.UserID
	if caller.IsAdmin {
		userID = ""
	}

	orders, err := s.orderRepo.List(ctx, userID, filter)
	if err != nil {
		s.logger.Error().Err(err).
			Str("user_id", caller.UserID).
			Int("limit", filter.Limit).
			Int("offset", filter.Offset).
			Msg("failed to list orders")
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	resp := make([]model.OrderResponse, len(orders))
	for i := range orders {
		resp[i] = *model.NewOrderResponse(&orders[i])
	}

	s.logger.Debug().
		Int("count", len(resp)).
		Bool("admin", caller.IsAdmin).
		Msg("retrieved orders")

	return resp, nil
}

// inTx runs fn in a transaction, committing on success and rolling back on
// any error.
func (s *orderService) inTx(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, err := s.orderRepo.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				s.logger.Error().Err(rbErr).Msg("failed to rollback transaction")
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		s.logger.Error().Err(err).Msg("failed to commit transaction")
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// claimKey claims an idempotency key. It returns the earlier order when the
// key was already completed by caller.
func (s *orderService) claimKey(ctx context.Context, caller model.Caller, key, fp string) (*model.Order, error) {
	claim, err := s.keys.Claim(ctx, caller.UserID, key, fp)
	if err != nil {
		return nil, fmt.Errorf("failed to claim idempotency key: %w", err)
	}

	switch claim.State {
	case idempotency.InFlight:
		return nil, model.ErrRequestInProgress
	case idempotency.Mismatch:
		s.logger.Info().Str("user_id", caller.UserID).Str("idempotency_key", key).Msg("idempotency key reused with different items")
		return nil, model.ErrKeyReused
	case idempotency.Completed:
		order, err := s.orderRepo.GetByID(ctx, claim.OrderID)
		if err != nil {
			return nil, fmt.Errorf("failed to load replayed order: %w", err)
		}
		if order != nil {
			return order, nil
		}
		// The recorded order is gone; start over under the same key.
		s.logger.Warn().Str("order_id", claim.OrderID.String()).Msg("idempotency key points at missing order")
		if err := s.keys.Release(ctx, caller.UserID, key); err != nil {
			return nil, err
		}
		return s.claimKey(ctx, caller, key, fp)
	}

	return nil, nil
}

// settleKey records the created order under the key, or frees the key so the
// client can retry after a failure. It runs detached from the request context
// so a cancelled request cannot leave the key pending.
func (s *orderService) settleKey(caller model.Caller, key, fp string, resp *model.OrderResponse, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err != nil || resp == nil {
		if relErr := s.keys.Release(ctx, caller.UserID, key); relErr != nil {
			s.logger.Warn().Err(relErr).Str("idempotency_key", key).Msg("failed to release idempotency key")
		}
		return
	}
	if cErr := s.keys.Complete(ctx, caller.UserID, key, fp, resp.ID); cErr != nil {
		s.logger.Warn().Err(cErr).Str("idempotency_key", key).Msg("failed to record idempotency key")
	}
}

// publish emits a lifecycle event. Failures are logged and never surface to
// the caller since the transaction has already committed.
func (s *orderService) publish(ctx context.Context, eventType string, order *model.Order) {
	traceID := ""
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}

	env, err := events.NewOrderEnvelope(eventType, eventProducer, traceID, order)
	if err == nil {
		err = s.publisher.Publish(ctx, env)
	}
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("event_type", eventType).
			Str("order_id", order.ID.String()).
			Msg("failed to publish order event")
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		if de, ok := model.AsDomainError(err); ok {
			span.SetAttributes(attribute.String("error.kind", de.Kind.String()))
		} else {
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}
