package order

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/payment"
)

// Sentinel errors for order operations.
var (
	ErrNotFound             = errors.New("order not found")
	ErrEmptyItems           = errors.New("items required")
	ErrInvalidStatus        = errors.New("invalid order status")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrPaymentTokenRequired = errors.New("payment token required for card payments")
	// ErrOrderLocked is returned when editing an order that has left the
	// pending state or already has a payment method.
	ErrOrderLocked = errors.New("order can no longer be modified")
)

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID int64
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %d", e.ProductID)
}

// InvalidTransitionError indicates a status change the lifecycle forbids.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot change order status from %s to %s", e.From, e.To)
}

// InsufficientAmountError indicates a card payment below the order total.
type InsufficientAmountError struct {
	Required decimal.Decimal
	Provided decimal.Decimal
}

func (e *InsufficientAmountError) Error() string {
	return fmt.Sprintf("payment amount %s is less than order total %s", e.Provided, e.Required)
}

// PaymentDeclinedError indicates the gateway answered with a non-success
// status. The order is left unchanged.
type PaymentDeclinedError struct {
	Status    payment.Status
	PaymentID string
}

func (e *PaymentDeclinedError) Error() string {
	return fmt.Sprintf("payment not completed: %s", e.Status)
}

// PaymentGatewayError indicates the gateway could not be reached or
// answered unexpectedly. The order is left unchanged.
type PaymentGatewayError struct {
	Err error
}

func (e *PaymentGatewayError) Error() string {
	return fmt.Sprintf("payment gateway: %v", e.Err)
}

func (e *PaymentGatewayError) Unwrap() error { return e.Err }
