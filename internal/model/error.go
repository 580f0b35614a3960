package model

import (
	"errors"
	"fmt"
)

// ErrorResponse represents a standardised error response.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// ErrorKind classifies a domain error. The HTTP layer maps each kind to
// exactly one status code.
type ErrorKind int

const (
	KindValidation ErrorKind = iota + 1
	KindProductNotFound
	KindInsufficientStock
	KindOrderNotFound
	KindNotAuthorized
	KindAlreadyPaid
	KindInvalidTransition
	KindConflict
)

// String returns the kind name used in logs.
func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindProductNotFound:
		return "product_not_found"
	case KindInsufficientStock:
		return "insufficient_stock"
	case KindOrderNotFound:
		return "order_not_found"
	case KindNotAuthorized:
		return "not_authorized"
	case KindAlreadyPaid:
		return "already_paid"
	case KindInvalidTransition:
		return "invalid_transition"
	case KindConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Standard error codes for API responses
const (
	ErrCodeInvalidJSON       = "INVALID_JSON"
	ErrCodeInvalidID         = "INVALID_ID"
	ErrCodeInvalidPagination = "INVALID_PAGINATION"
	ErrCodeNoItems           = "NO_ITEMS"
	ErrCodeInvalidItem       = "INVALID_ITEM"
	ErrCodeInvalidStatus     = "INVALID_STATUS"
	ErrCodeProductNotFound   = "PRODUCT_NOT_FOUND"
	ErrCodeInsufficientStock = "INSUFFICIENT_STOCK"
	ErrCodeOrderNotFound     = "ORDER_NOT_FOUND"
	ErrCodeNotAuthorized     = "NOT_AUTHORIZED"
	ErrCodeAlreadyPaid       = "ALREADY_PAID"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeRequestInProgress = "REQUEST_IN_PROGRESS"
	ErrCodeKeyReused         = "IDEMPOTENCY_KEY_REUSED"
	ErrCodeRequestTooLarge   = "REQUEST_TOO_LARGE"
	ErrCodeUnauthorised      = "UNAUTHORIZED"
	ErrCodeInternalError     = "INTERNAL_ERROR"
)

// DomainError is a business failure carrying enough structure to be mapped
// to a transport status deterministically.
type DomainError struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

// Is reports whether target is a DomainError of the same kind and code, so
// errors.Is works against the sentinel values below.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// NewDomainError creates a new domain error
func NewDomainError(kind ErrorKind, code, message string) *DomainError {
	return &DomainError{
		Kind:    kind,
		Code:    code,
		Message: message,
	}
}

// AsDomainError extracts a DomainError from err's chain.
func AsDomainError(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// Common domain errors
var (
	ErrNoItems           = NewDomainError(KindValidation, ErrCodeNoItems, "Order must contain at least one valid item")
	ErrOrderNotFound     = NewDomainError(KindOrderNotFound, ErrCodeOrderNotFound, "Order not found")
	ErrNotAuthorized     = NewDomainError(KindNotAuthorized, ErrCodeNotAuthorized, "You are not allowed to access this order")
	ErrAlreadyPaid       = NewDomainError(KindAlreadyPaid, ErrCodeAlreadyPaid, "Order has already been paid")
	ErrRequestInProgress = NewDomainError(KindConflict, ErrCodeRequestInProgress, "A request with this idempotency key is already in progress")
	ErrKeyReused         = NewDomainError(KindConflict, ErrCodeKeyReused, "This idempotency key was used for a different order request")
	ErrMissingIdentity   = NewDomainError(KindNotAuthorized, ErrCodeUnauthorised, "User identity is required")
)

// NewValidationError reports a malformed request.
func NewValidationError(code, message string) *DomainError {
	return NewDomainError(KindValidation, code, message)
}

// NewInvalidItemError reports a malformed order line under the reject policy.
func NewInvalidItemError(index int, reason string) *DomainError {
	return NewDomainError(KindValidation, ErrCodeInvalidItem, fmt.Sprintf("item %d: %s", index, reason))
}

// NewProductNotFoundError reports a referenced product that does not exist.
func NewProductNotFoundError(productID int64) *DomainError {
	return NewDomainError(KindProductNotFound, ErrCodeProductNotFound,
		fmt.Sprintf("Product with ID %d not found", productID))
}

// NewInsufficientStockError reports a failed reservation. The whole order
// fails; the product named is the first one that could not be reserved.
func NewInsufficientStockError(productName string) *DomainError {
	return NewDomainError(KindInsufficientStock, ErrCodeInsufficientStock,
		fmt.Sprintf("Insufficient stock for %s", productName))
}

// NewInvalidTransitionError reports a status change the order lifecycle forbids.
func NewInvalidTransitionError(from, to OrderStatus) *DomainError {
	return NewDomainError(KindInvalidTransition, ErrCodeInvalidTransition,
		fmt.Sprintf("Order cannot move from %s to %s", from, to))
}
