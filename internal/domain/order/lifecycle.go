package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// GetOrder returns an order with its lines.
func (s *Service) GetOrder(ctx context.Context, id int64) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %d", id)
	}
	return o, nil
}

// ListByUser returns the orders of an existing user, newest first.
func (s *Service) ListByUser(ctx context.Context, userID int64) ([]Order, error) {
	if err := s.ensureUser(ctx, userID); err != nil {
		return nil, err
	}
	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list user orders")
	}
	return orders, nil
}

// List returns every order, newest first.
func (s *Service) List(ctx context.Context) ([]Order, error) {
	orders, err := s.orders.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// UpdateStatus moves an order to status. Delivering an unpaid cash on
// delivery order marks it paid in the same write.
func (s *Service) UpdateStatus(ctx context.Context, id int64, status Status) (*Order, error) {
	var (
		from      Status
		collected bool
	)
	o, err := s.orders.Update(ctx, id, func(o *Order) (Change, error) {
		from = o.Status
		if s.strict && !CanTransition(o.Status, status) {
			return ChangeNone, &InvalidTransitionError{From: o.Status, To: status}
		}

		change := ChangeNone
		if o.Status != status {
			o.Status = status
			change = ChangeHeader
		}
		if status == StatusDelivered &&
			o.PaymentMethod == PaymentMethodCOD &&
			o.PaymentStatus == PaymentStatusUnpaid {
			now := s.now()
			o.PaymentStatus = PaymentStatusPaid
			o.PaymentDate = &now
			collected = true
			change = ChangeHeader
		}
		return change, nil
	})
	if err != nil {
		return nil, s.wrapUpdate(err, id)
	}

	if from != o.Status {
		zctx.From(ctx).Info("Order status changed",
			zap.Int64("order_id", o.ID),
			zap.String("from", string(from)),
			zap.String("to", string(o.Status)),
		)
		s.notifier.Notify(ctx, newEvent(EventStatusChanged, o, s.now()))
	}
	if collected {
		zctx.From(ctx).Info("Cash on delivery collected", zap.Int64("order_id", o.ID))
		s.notifier.Notify(ctx, newEvent(EventPaid, o, *o.PaymentDate))
	}
	return o, nil
}

// ConfirmOrder ships a pending order.
func (s *Service) ConfirmOrder(ctx context.Context, id int64) (*Order, error) {
	o, err := s.orders.Update(ctx, id, func(o *Order) (Change, error) {
		if o.Status != StatusPending {
			return ChangeNone, &InvalidTransitionError{From: o.Status, To: StatusShipped}
		}
		o.Status = StatusShipped
		return ChangeHeader, nil
	})
	if err != nil {
		return nil, s.wrapUpdate(err, id)
	}

	zctx.From(ctx).Info("Order confirmed", zap.Int64("order_id", o.ID))
	s.notifier.Notify(ctx, newEvent(EventStatusChanged, o, s.now()))
	return o, nil
}

// DeleteOrder removes an order and its lines.
func (s *Service) DeleteOrder(ctx context.Context, id int64) error {
	if err := s.orders.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return errors.Wrapf(err, "delete order %d", id)
	}

	zctx.From(ctx).Info("Order deleted", zap.Int64("order_id", id))
	s.notifier.Notify(ctx, Event{Type: EventDeleted, OrderID: id, At: s.now()})
	return nil
}
