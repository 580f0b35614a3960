package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"kart-orders/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockProductRepository is a mock implementation of ProductRepository.
type MockProductRepository struct {
	mock.Mock
}

func (m *MockProductRepository) GetAll(ctx context.Context, limit, offset int) ([]model.Product, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Product), args.Error(1)
}

func (m *MockProductRepository) GetByID(ctx context.Context, id int64) (*model.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Product), args.Error(1)
}

func (m *MockProductRepository) GetByIDs(ctx context.Context, ids []int64) ([]model.Product, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Product), args.Error(1)
}

func (m *MockProductRepository) TryReserve(ctx context.Context, tx pgx.Tx, productID int64, quantity int) (bool, error) {
	args := m.Called(ctx, tx, productID, quantity)
	return args.Bool(0), args.Error(1)
}

func (m *MockProductRepository) Release(ctx context.Context, tx pgx.Tx, productID int64, quantity int) error {
	args := m.Called(ctx, tx, productID, quantity)
	return args.Error(0)
}

func (m *MockProductRepository) Upsert(ctx context.Context, products []model.Product, restock bool) error {
	args := m.Called(ctx, products, restock)
	return args.Error(0)
}

func TestProductService_GetAll(t *testing.T) {
	logger := zerolog.Nop()
	ctx := context.Background()

	testProducts := []model.Product{
		{ID: 1, Name: "Product 1", Price: decimal.NewFromInt(10), Category: "Cat1", Stock: 5, CreatedAt: time.Now()},
		{ID: 2, Name: "Product 2", Price: decimal.NewFromInt(20), Category: "Cat2", Stock: 0, CreatedAt: time.Now()},
	}

	tests := []struct {
		name           string
		limit          int
		offset         int
		expectedLimit  int
		expectedOffset int
		mockReturn     []model.Product
		mockError      error
		expectError    bool
	}{
		{name: "Valid pagination", limit: 10, offset: 0, expectedLimit: 10, mockReturn: testProducts},
		{name: "Zero limit defaults to 10", limit: 0, offset: 0, expectedLimit: 10, mockReturn: testProducts},
		{name: "Negative limit defaults to 10", limit: -5, offset: 0, expectedLimit: 10, mockReturn: testProducts},
		{name: "Limit exceeding max caps at 100", limit: 200, offset: 0, expectedLimit: 100, mockReturn: testProducts},
		{name: "Negative offset defaults to 0", limit: 10, offset: -10, expectedLimit: 10, mockReturn: testProducts},
		{name: "Offset passed through", limit: 5, offset: 15, expectedLimit: 5, expectedOffset: 15, mockReturn: []model.Product{}},
		{name: "Repository error", limit: 10, offset: 0, expectedLimit: 10, mockError: errors.New("database error"), expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockProductRepository)
			service := NewProductService(mockRepo, logger)

			mockRepo.On("GetAll", ctx, tt.expectedLimit, tt.expectedOffset).
				Return(tt.mockReturn, tt.mockError)

			products, err := service.GetAll(ctx, tt.limit, tt.offset)

			if tt.expectError {
				require.Error(t, err)
				assert.Nil(t, products)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.mockReturn, products)
			}

			mockRepo.AssertExpectations(t)
		})
	}
}

func TestProductService_GetByID(t *testing.T) {
	logger := zerolog.Nop()
	ctx := context.Background()

	testProduct := &model.Product{
		ID:        1,
		Name:      "Product 1",
		Price:     decimal.RequireFromString("10.00"),
		Category:  "Cat1",
		Stock:     3,
		CreatedAt: time.Now(),
	}

	tests := []struct {
		name         string
		productID    int64
		callsRepo    bool
		mockReturn   *model.Product
		mockError    error
		expectError  bool
		expectedKind model.ErrorKind
	}{
		{name: "Success", productID: 1, callsRepo: true, mockReturn: testProduct},
		{name: "Product not found", productID: 999, callsRepo: true, expectError: true, expectedKind: model.KindProductNotFound},
		{name: "Non-positive product ID", productID: 0, expectError: true, expectedKind: model.KindProductNotFound},
		{name: "Repository error", productID: 1, callsRepo: true, mockError: errors.New("database error"), expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockProductRepository)
			service := NewProductService(mockRepo, logger)

			if tt.callsRepo {
				mockRepo.On("GetByID", ctx, tt.productID).
					Return(tt.mockReturn, tt.mockError)
			}

			product, err := service.GetByID(ctx, tt.productID)

			if tt.expectError {
				require.Error(t, err)
				assert.Nil(t, product)
				de, ok := model.AsDomainError(err)
				if tt.expectedKind != 0 {
					require.True(t, ok)
					assert.Equal(t, tt.expectedKind, de.Kind)
				} else {
					assert.False(t, ok)
				}
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.mockReturn, product)
			}

			mockRepo.AssertExpectations(t)
			if !tt.callsRepo {
				mockRepo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
			}
		})
	}
}
