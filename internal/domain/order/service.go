package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/user"
	"github.com/xenking/storefront/internal/payment"
)

// Item is a requested order line.
type Item struct {
	ProductID int64
	VersionID catalog.OptInt64
	ColorID   catalog.OptInt64
	Quantity  int
}

// CreateOrderRequest holds the input for placing an order.
type CreateOrderRequest struct {
	UserID          int64
	ShippingAddress string
	Items           []Item
}

// UpdateOrderRequest holds the replacement contents of a pending order.
type UpdateOrderRequest struct {
	ShippingAddress string
	Items           []Item
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier sets the publisher of committed order changes.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithCurrency sets the ISO currency card charges are made in.
func WithCurrency(currency string) Option {
	return func(s *Service) { s.currency = currency }
}

// WithStrictTransitions toggles enforcement of the status transition table.
func WithStrictTransitions(strict bool) Option {
	return func(s *Service) { s.strict = strict }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service builds orders from variant requests and drives their status and
// payment lifecycle.
type Service struct {
	catalog  *catalog.Resolver
	users    user.Repository
	orders   Repository
	gateway  payment.Gateway
	notifier Notifier

	currency string
	strict   bool
	now      func() time.Time
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	resolver *catalog.Resolver,
	users user.Repository,
	orders Repository,
	gateway payment.Gateway,
	opts ...Option,
) *Service {
	s := &Service{
		catalog:  resolver,
		users:    users,
		orders:   orders,
		gateway:  gateway,
		notifier: nopNotifier{},
		currency: "usd",
		strict:   true,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CreateOrder validates the user and every item, prices each line from the
// current catalog, and persists the order as pending and unpaid.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	if err := s.ensureUser(ctx, req.UserID); err != nil {
		return nil, err
	}

	lines, total, err := s.buildLines(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	o := &Order{
		UserID:          req.UserID,
		OrderDate:       s.now(),
		ShippingAddress: req.ShippingAddress,
		TotalPrice:      total,
		Status:          StatusPending,
		PaymentMethod:   PaymentMethodNone,
		PaymentStatus:   PaymentStatusUnpaid,
		Lines:           lines,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	zctx.From(ctx).Info("Order created",
		zap.Int64("order_id", o.ID),
		zap.Int64("user_id", o.UserID),
		zap.Int("lines", len(o.Lines)),
		zap.Stringer("total", o.TotalPrice),
	)
	s.notifier.Notify(ctx, newEvent(EventCreated, o, o.OrderDate))
	return o, nil
}

// UpdateOrder replaces the shipping address and lines of an order that is
// still pending without a payment method. Lines whose variant is kept keep
// their id; the rest are inserted or removed.
func (s *Service) UpdateOrder(ctx context.Context, id int64, req UpdateOrderRequest) (*Order, error) {
	lines, total, err := s.buildLines(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	o, err := s.orders.Update(ctx, id, func(o *Order) (Change, error) {
		if o.Status != StatusPending || o.PaymentMethod != PaymentMethodNone {
			return ChangeNone, ErrOrderLocked
		}

		existing := make(map[variantKey][]int64, len(o.Lines))
		for _, l := range o.Lines {
			existing[l.variantKey()] = append(existing[l.variantKey()], l.ID)
		}
		for i := range lines {
			k := lines[i].variantKey()
			if ids := existing[k]; len(ids) > 0 {
				lines[i].ID = ids[0]
				existing[k] = ids[1:]
			}
			lines[i].OrderID = o.ID
		}

		o.ShippingAddress = req.ShippingAddress
		o.TotalPrice = total
		o.Lines = lines
		return ChangeHeader | ChangeLines, nil
	})
	if err != nil {
		return nil, s.wrapUpdate(err, id)
	}

	zctx.From(ctx).Info("Order updated",
		zap.Int64("order_id", o.ID),
		zap.Int("lines", len(o.Lines)),
		zap.Stringer("total", o.TotalPrice),
	)
	s.notifier.Notify(ctx, newEvent(EventUpdated, o, s.now()))
	return o, nil
}

// buildLines validates quantities first and then resolves each item.
func (s *Service) buildLines(ctx context.Context, items []Item) ([]Line, decimal.Decimal, error) {
	if len(items) == 0 {
		return nil, decimal.Zero, ErrEmptyItems
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, decimal.Zero, &InvalidQuantityError{ProductID: item.ProductID}
		}
	}

	lines := make([]Line, 0, len(items))
	total := decimal.Zero
	for _, item := range items {
		v, err := s.catalog.Resolve(ctx, catalog.Ref{
			ProductID: item.ProductID,
			VersionID: item.VersionID,
			ColorID:   item.ColorID,
		})
		if err != nil {
			return nil, decimal.Zero, err
		}

		qty := decimal.NewFromInt(int64(item.Quantity))
		ref := v.Ref()
		l := Line{
			ProductID:   ref.ProductID,
			VersionID:   ref.VersionID,
			ColorID:     ref.ColorID,
			ProductName: v.Product.Name,
			VersionName: v.VersionName(),
			ColorName:   v.ColorName(),
			Quantity:    item.Quantity,
			UnitPrice:   v.UnitPrice,
			LineTotal:   v.UnitPrice.Mul(qty),
		}
		total = total.Add(l.LineTotal)
		lines = append(lines, l)
	}
	return lines, total, nil
}

func (s *Service) ensureUser(ctx context.Context, id int64) error {
	ok, err := s.users.Exists(ctx, id)
	if err != nil {
		return errors.Wrapf(err, "check user %d", id)
	}
	if !ok {
		return user.ErrNotFound
	}
	return nil
}

// wrapUpdate passes domain errors through and annotates storage failures.
func (s *Service) wrapUpdate(err error, id int64) error {
	var (
		transition *InvalidTransitionError
		amount     *InsufficientAmountError
		declined   *PaymentDeclinedError
		gateway    *PaymentGatewayError
	)
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrOrderLocked),
		errors.Is(err, ErrInvalidPaymentMethod),
		errors.Is(err, ErrPaymentTokenRequired),
		errors.As(err, &transition),
		errors.As(err, &amount),
		errors.As(err, &declined),
		errors.As(err, &gateway):
		return err
	default:
		return errors.Wrapf(err, "update order %d", id)
	}
}
