// Package payment talks to the external card payment gateway.
package payment

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the normalised outcome of a create-and-confirm call.
type Status string

const (
	// StatusSucceeded means the funds were captured.
	StatusSucceeded Status = "succeeded"
	// StatusRequiresAction means the customer must complete an extra step
	// (3-D Secure and similar) before the charge can succeed.
	StatusRequiresAction Status = "requires_action"
	// StatusFailed means the gateway declined the charge.
	StatusFailed Status = "failed"
)

// ErrGatewayUnavailable is returned by the Disabled gateway.
var ErrGatewayUnavailable = errors.New("payment gateway is not configured")

// Charge describes a single create-and-confirm request.
type Charge struct {
	// AmountMinor is the amount in the currency's smallest unit.
	AmountMinor    int64
	Currency       string
	Token          string
	Metadata       map[string]string
	IdempotencyKey string
}

// Result is the gateway's answer to a Charge.
type Result struct {
	ID     string
	Status Status
}

// Gateway creates and confirms card payments. A non-nil error means the
// outcome is unknown (network failure, timeout, unexpected response); a
// declined card is reported through Result.Status instead.
type Gateway interface {
	CreateAndConfirm(ctx context.Context, charge Charge) (Result, error)
}

// Disabled is a Gateway used when no gateway credentials are configured.
type Disabled struct{}

// CreateAndConfirm always fails with ErrGatewayUnavailable.
func (Disabled) CreateAndConfirm(context.Context, Charge) (Result, error) {
	return Result{}, ErrGatewayUnavailable
}

// zeroDecimal lists ISO currencies without a minor unit.
var zeroDecimal = map[string]struct{}{
	"bif": {}, "clp": {}, "djf": {}, "gnf": {}, "jpy": {}, "kmf": {}, "krw": {},
	"mga": {}, "pyg": {}, "rwf": {}, "ugx": {}, "vnd": {}, "vuv": {}, "xaf": {},
	"xof": {}, "xpf": {},
}

// MinorUnits converts an amount to the currency's smallest unit, rounding
// half away from zero.
func MinorUnits(amount decimal.Decimal, currency string) (int64, error) {
	if amount.IsNegative() {
		return 0, errors.Errorf("negative amount %s", amount)
	}
	exp := int32(2)
	if _, ok := zeroDecimal[strings.ToLower(strings.TrimSpace(currency))]; ok {
		exp = 0
	}
	minor := amount.Shift(exp).Round(0)
	if !minor.IsInteger() || minor.GreaterThan(decimal.NewFromInt(1<<53)) {
		return 0, errors.Errorf("amount %s out of range", amount)
	}
	return minor.IntPart(), nil
}
