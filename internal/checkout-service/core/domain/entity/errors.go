package entity

import (
	"errors"
	"fmt"
)

// Kind groups error codes by how the caller should react.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindState           Kind = "state"
	KindUnauthenticated Kind = "unauthenticated"
	KindForbidden       Kind = "forbidden"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindGateway         Kind = "gateway"
	KindInternal        Kind = "internal"
)

// Error is a coded business error. Two Errors match with errors.Is when
// their codes are equal, so the package-level values work as sentinels
// even after Wrap.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
	// Compensations lists the compensating calls that failed while
	// unwinding the operation that produced this error.
	Compensations []CompensationFailure
}

// CompensationFailure names an external reference that could not be
// released and must be reconciled by an operator.
type CompensationFailure struct {
	Step      string
	Reference string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Wrap returns a copy of e carrying err as its cause.
func (e *Error) Wrap(err error) *Error {
	cp := *e
	cp.Err = err
	return &cp
}

// Withf returns a copy of e with a formatted message.
func (e *Error) Withf(format string, args ...any) *Error {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

// WithCompensations returns a copy of e reporting failed compensations.
func (e *Error) WithCompensations(failures []CompensationFailure) *Error {
	cp := *e
	cp.Compensations = append([]CompensationFailure(nil), failures...)
	return &cp
}

// AsError returns the *Error in err's chain, or nil.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	ErrAuthenticationRequired = newError(KindUnauthenticated, "AUTHENTICATION_REQUIRED", "authentication is required")
	ErrForbidden              = newError(KindForbidden, "FORBIDDEN", "not allowed to access this resource")

	ErrInvalidData          = newError(KindValidation, "INVALID_DATA", "invalid request data")
	ErrEmptyCart            = newError(KindValidation, "EMPTY_CART", "the cart has no items")
	ErrMissingAddress       = newError(KindValidation, "MISSING_ADDRESS", "a delivery address is required")
	ErrInvalidAddress       = newError(KindValidation, "INVALID_ADDRESS", "the delivery address must include street, city and postal code")
	ErrMissingTransportType = newError(KindValidation, "MISSING_TRANSPORT_TYPE", "a transport type is required to confirm the order")
	ErrNoProducts           = newError(KindValidation, "NO_PRODUCTS", "the order has no products")
	ErrInvalidQuantity      = newError(KindValidation, "INVALID_QUANTITY", "quantity must be at least 1")
	ErrInvalidPrice         = newError(KindValidation, "INVALID_PRICE", "unit price must not be negative")

	ErrAlreadyConfirmed      = newError(KindState, "ALREADY_CONFIRMED", "the order is already confirmed")
	ErrAlreadyCancelled      = newError(KindState, "ALREADY_CANCELLED", "the order is already cancelled")
	ErrCannotCancelConfirmed = newError(KindState, "CANNOT_CANCEL_CONFIRMED", "a confirmed order cannot be cancelled")
	ErrOrderImmutable        = newError(KindState, "ORDER_IMMUTABLE", "the order can no longer be modified")
	ErrNoTracking            = newError(KindState, "NO_TRACKING", "the order has no shipment yet")

	ErrCartNotFound     = newError(KindNotFound, "CART_NOT_FOUND", "no cart exists for this user")
	ErrCartItemNotFound = newError(KindNotFound, "CART_ITEM_NOT_FOUND", "the product is not in the cart")
	ErrOrderNotFound    = newError(KindNotFound, "ORDER_NOT_FOUND", "order not found")
	ErrProductNotFound  = newError(KindNotFound, "PRODUCT_NOT_FOUND", "product not found")
	ErrShipmentNotFound = newError(KindNotFound, "SHIPMENT_NOT_FOUND", "shipment not found")

	ErrOrderLocked        = newError(KindConflict, "ORDER_LOCKED", "another operation on this order is in progress")
	ErrConcurrentUpdate   = newError(KindConflict, "CONCURRENT_UPDATE", "the order changed while the operation was running")
	ErrInsufficientStock  = newError(KindConflict, "INSUFFICIENT_STOCK", "not enough stock to reserve the order")
	ErrStockReservation   = newError(KindGateway, "STOCK_RESERVATION_FAILED", "the stock service could not reserve the order")
	ErrShipmentCreation   = newError(KindGateway, "SHIPMENT_CREATION_FAILED", "the logistics service could not create the shipment")
	ErrExternalService    = newError(KindGateway, "EXTERNAL_SERVICE_ERROR", "an external service call failed")
	ErrProductFetch       = newError(KindGateway, "PRODUCT_FETCH_ERROR", "the stock service could not be queried")
	ErrLogisticsService   = newError(KindGateway, "LOGISTICS_ERROR", "the logistics service call failed")
	ErrCompensationFailed = newError(KindGateway, "COMPENSATION_FAILED", "a compensating call failed")

	ErrInternal = newError(KindInternal, "INTERNAL_ERROR", "internal error")
)
