package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"kart-orders/internal/model"
	"kart-orders/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// IdempotencyKeyHeader carries the client's retry key on order creation.
const IdempotencyKeyHeader = "Idempotency-Key"

// maxOrderBodyBytes caps the size of a create-order request body.
const maxOrderBodyBytes = 1 << 20

// OrderHandler handles order-related HTTP requests.
type OrderHandler struct {
	service service.OrderService
	logger  zerolog.Logger
}

// NewOrderHandler creates a new order handler.
func NewOrderHandler(service service.OrderService, logger zerolog.Logger) *OrderHandler {
	return &OrderHandler{
		service: service,
		logger:  logger.With().Str("handler", "order").Logger(),
	}
}

// Create handles POST /api/orders requests.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxOrderBodyBytes)

	var req model.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, model.ErrCodeRequestTooLarge, "request body too large")
			return
		}
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidJSON, "invalid request body")
		return
	}

	caller, _ := model.CallerFromContext(r.Context())
	order, replayed, err := h.service.CreateOrder(r.Context(), caller, &req, r.Header.Get(IdempotencyKeyHeader))
	if err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}

	status := http.StatusCreated
	if replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, order)
}

// List handles GET /api/orders requests.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var filter model.OrderFilter
	var err error
	if filter.Limit, err = intParam(query.Get("limit"), 10); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidPagination, "invalid limit parameter")
		return
	}
	if filter.Offset, err = intParam(query.Get("offset"), 0); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidPagination, "invalid offset parameter")
		return
	}
	if s := query.Get("status"); s != "" {
		status := model.OrderStatus(s)
		filter.Status = &status
	}

	caller, _ := model.CallerFromContext(r.Context())
	orders, err := h.service.ListOrders(r.Context(), caller, filter)
	if err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, orders)
}

// GetByID handles GET /api/orders/{id} requests.
func (h *OrderHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	caller, _ := model.CallerFromContext(r.Context())
	order, err := h.service.GetOrder(r.Context(), caller, id)
	if err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, order)
}

// Pay handles PATCH /api/orders/{id}/pay requests.
func (h *OrderHandler) Pay(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	caller, _ := model.CallerFromContext(r.Context())
	order, err := h.service.PayOrder(r.Context(), caller, id)
	if err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, order)
}

// Cancel handles PATCH /api/orders/{id}/cancel requests.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	caller, _ := model.CallerFromContext(r.Context())
	order, err := h.service.CancelOrder(r.Context(), caller, id)
	if err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, order)
}

// orderID parses the {id} path parameter, writing a 400 when it is not a UUID.
func orderID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidID, "invalid order ID format")
		return uuid.Nil, false
	}
	return id, true
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
