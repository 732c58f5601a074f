package order

import (
	"fmt"
	"strings"
)

// ParseStatus converts a status name to a Status, ignoring case.
func ParseStatus(s string) (Status, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PENDING":
		return StatusPending, nil
	case "SHIPPED":
		return StatusShipped, nil
	case "DELIVERED":
		return StatusDelivered, nil
	case "CANCELED", "CANCELLED":
		return StatusCanceled, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
}

// transitions lists the allowed moves between distinct statuses.
var transitions = map[Status][]Status{
	StatusPending: {StatusShipped, StatusDelivered, StatusCanceled},
	StatusShipped: {StatusDelivered, StatusCanceled},
}

// CanTransition reports whether an order may move from one status to
// another. Staying in the same status is always allowed.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ParsePaymentMethod normalises a client supplied payment method name.
// Only COD and CREDIT_CARD are selectable.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("_", "", "-", "", " ", "").Replace(norm)
	switch norm {
	case "cod", "cash", "cashondelivery":
		return PaymentMethodCOD, nil
	case "creditcard", "card":
		return PaymentMethodCreditCard, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, s)
	}
}
