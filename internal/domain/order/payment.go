package order

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/payment"
)

// PaymentRequest holds a client's payment attempt.
type PaymentRequest struct {
	Method string
	// Amount is the amount the client agreed to pay. Card payments require
	// it to cover the order total.
	Amount decimal.Decimal
	// Token is the gateway payment method reference for card payments.
	Token string
}

// ProcessPayment records the payment method of a pending order and, for
// cards, charges the gateway. Orders that already have a payment method or
// are no longer pending are returned unchanged.
//
// The gateway call runs while the order is locked, so concurrent attempts
// on one order charge at most once. A declined or failed charge leaves the
// order as it was.
func (s *Service) ProcessPayment(ctx context.Context, id int64, req PaymentRequest) (*Order, error) {
	lg := zctx.From(ctx).With(zap.Int64("order_id", id))

	var paid bool
	o, err := s.orders.Update(ctx, id, func(o *Order) (Change, error) {
		if o.PaymentMethod != PaymentMethodNone || o.Status != StatusPending {
			lg.Info("Order already processed, skipping payment",
				zap.String("status", string(o.Status)),
				zap.String("payment_method", string(o.PaymentMethod)),
			)
			return ChangeNone, nil
		}

		method, err := ParsePaymentMethod(req.Method)
		if err != nil {
			return ChangeNone, err
		}

		switch method {
		case PaymentMethodCOD:
			o.PaymentMethod = PaymentMethodCOD
			o.PaymentStatus = PaymentStatusUnpaid
			o.PaymentDate = nil
			return ChangeHeader, nil
		case PaymentMethodCreditCard:
			if req.Amount.LessThan(o.TotalPrice) {
				return ChangeNone, &InsufficientAmountError{Required: o.TotalPrice, Provided: req.Amount}
			}
			if req.Token == "" {
				return ChangeNone, ErrPaymentTokenRequired
			}

			res, err := s.charge(ctx, o, req.Token)
			if err != nil {
				return ChangeNone, err
			}
			if res.Status != payment.StatusSucceeded {
				lg.Warn("Card payment not completed",
					zap.String("payment_id", res.ID),
					zap.String("payment_status", string(res.Status)),
				)
				return ChangeNone, &PaymentDeclinedError{Status: res.Status, PaymentID: res.ID}
			}

			now := s.now()
			o.PaymentMethod = PaymentMethodCreditCard
			o.PaymentStatus = PaymentStatusPaid
			o.PaymentDate = &now
			o.PaymentReference = res.ID
			paid = true
			return ChangeHeader, nil
		default:
			return ChangeNone, errors.Errorf("unhandled payment method %s", method)
		}
	})
	if err != nil {
		return nil, s.wrapUpdate(err, id)
	}

	if paid {
		lg.Info("Card payment succeeded", zap.String("payment_id", o.PaymentReference))
		s.notifier.Notify(ctx, newEvent(EventPaid, o, *o.PaymentDate))
	}
	return o, nil
}

func (s *Service) charge(ctx context.Context, o *Order, token string) (payment.Result, error) {
	amount, err := payment.MinorUnits(o.TotalPrice, s.currency)
	if err != nil {
		return payment.Result{}, errors.Wrap(err, "convert order total")
	}

	res, err := s.gateway.CreateAndConfirm(ctx, payment.Charge{
		AmountMinor: amount,
		Currency:    s.currency,
		Token:       token,
		Metadata: map[string]string{
			"order_id": strconv.FormatInt(o.ID, 10),
			"user_id":  strconv.FormatInt(o.UserID, 10),
		},
		IdempotencyKey: fmt.Sprintf("order-%d-%s", o.ID, token),
	})
	if err != nil {
		return payment.Result{}, &PaymentGatewayError{Err: err}
	}
	return res, nil
}
