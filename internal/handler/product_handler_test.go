package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"kart-orders/internal/model"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockProductService is a mock implementation of ProductService.
type MockProductService struct {
	mock.Mock
}

func (m *MockProductService) GetAll(ctx context.Context, limit, offset int) ([]model.Product, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Product), args.Error(1)
}

func (m *MockProductService) GetByID(ctx context.Context, id int64) (*model.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Product), args.Error(1)
}

func productRoutes(h *ProductHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Get("/api/products", h.GetAll)
	r.Get("/api/products/{id}", h.GetByID)
	return r
}

func TestProductHandler_GetAll(t *testing.T) {
	logger := zerolog.Nop()

	testProducts := []model.Product{
		{ID: 1, Name: "Product 1", Price: decimal.RequireFromString("10.00"), Category: "Cat1", Stock: 3, CreatedAt: time.Now()},
		{ID: 2, Name: "Product 2", Price: decimal.RequireFromString("20.00"), Category: "Cat2", Stock: 0, CreatedAt: time.Now()},
	}

	tests := []struct {
		name           string
		method         string
		queryParams    string
		mockReturn     []model.Product
		mockError      error
		expectedStatus int
		expectService  bool
		limit          int
		offset         int
	}{
		{
			name:           "Success with default pagination",
			method:         http.MethodGet,
			mockReturn:     testProducts,
			expectedStatus: http.StatusOK,
			expectService:  true,
			limit:          10,
		},
		{
			name:           "Success with custom pagination",
			method:         http.MethodGet,
			queryParams:    "?limit=5&offset=10",
			mockReturn:     testProducts,
			expectedStatus: http.StatusOK,
			expectService:  true,
			limit:          5,
			offset:         10,
		},
		{
			name:           "Invalid limit parameter",
			method:         http.MethodGet,
			queryParams:    "?limit=invalid",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Invalid offset parameter",
			method:         http.MethodGet,
			queryParams:    "?offset=invalid",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Service error",
			method:         http.MethodGet,
			mockError:      errors.New("database error"),
			expectedStatus: http.StatusInternalServerError,
			expectService:  true,
			limit:          10,
		},
		{
			name:           "Method not allowed",
			method:         http.MethodPost,
			expectedStatus: http.StatusMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockProductService)
			handler := NewProductHandler(mockService, logger)

			if tt.expectService {
				mockService.On("GetAll", mock.Anything, tt.limit, tt.offset).
					Return(tt.mockReturn, tt.mockError)
			}

			req := httptest.NewRequest(tt.method, "/api/products"+tt.queryParams, nil)
			w := httptest.NewRecorder()

			productRoutes(handler).ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)

			if tt.expectedStatus == http.StatusOK {
				var got []model.Product
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
				require.Len(t, got, 2)
				assert.Equal(t, 3, got[0].Stock)
			}

			if tt.expectService {
				mockService.AssertExpectations(t)
			} else {
				mockService.AssertNotCalled(t, "GetAll", mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

func TestProductHandler_GetByID(t *testing.T) {
	logger := zerolog.Nop()

	testProduct := &model.Product{
		ID:        1,
		Name:      "Product 1",
		Price:     decimal.RequireFromString("10.00"),
		Category:  "Cat1",
		Stock:     4,
		CreatedAt: time.Now(),
	}

	tests := []struct {
		name           string
		path           string
		mockReturn     *model.Product
		mockError      error
		expectedStatus int
		expectedCode   string
		expectService  bool
		productID      int64
	}{
		{
			name:           "Success",
			path:           "/api/products/1",
			mockReturn:     testProduct,
			expectedStatus: http.StatusOK,
			expectService:  true,
			productID:      1,
		},
		{
			name:           "Product not found",
			path:           "/api/products/999",
			mockError:      model.NewProductNotFoundError(999),
			expectedStatus: http.StatusNotFound,
			expectedCode:   model.ErrCodeProductNotFound,
			expectService:  true,
			productID:      999,
		},
		{
			name:           "Non-numeric product ID",
			path:           "/api/products/P001",
			expectedStatus: http.StatusBadRequest,
			expectedCode:   model.ErrCodeInvalidID,
		},
		{
			name:           "Service error",
			path:           "/api/products/1",
			mockError:      errors.New("database error"),
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   model.ErrCodeInternalError,
			expectService:  true,
			productID:      1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockProductService)
			handler := NewProductHandler(mockService, logger)

			if tt.expectService {
				mockService.On("GetByID", mock.Anything, tt.productID).
					Return(tt.mockReturn, tt.mockError)
			}

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			w := httptest.NewRecorder()

			productRoutes(handler).ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)

			if tt.expectedCode != "" {
				body := decodeError(t, w)
				assert.Equal(t, tt.expectedCode, body.Error)
				assert.NotEmpty(t, body.CorrelationID)
			}

			if tt.expectService {
				mockService.AssertExpectations(t)
			}
		})
	}
}
