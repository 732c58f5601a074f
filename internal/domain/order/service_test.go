package order_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/user"
	"github.com/xenking/storefront/internal/payment"
	"github.com/xenking/storefront/internal/storage/memory"
)

// --- Mock implementations ---

type mockGateway struct {
	calls   atomic.Int32
	charges []payment.Charge
	mu      sync.Mutex
	result  payment.Result
	err     error
}

func (m *mockGateway) CreateAndConfirm(_ context.Context, c payment.Charge) (payment.Result, error) {
	m.calls.Add(1)
	m.mu.Lock()
	m.charges = append(m.charges, c)
	m.mu.Unlock()
	return m.result, m.err
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []order.Event
}

func (n *recordingNotifier) Notify(_ context.Context, e order.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) types() []order.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]order.EventType, len(n.events))
	for i, e := range n.events {
		out[i] = e.Type
	}
	return out
}

// --- Helpers ---

const userID = 7

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

type fixture struct {
	catalog  *memory.Catalog
	orders   *memory.Orders
	gateway  *mockGateway
	notifier *recordingNotifier
	svc      *order.Service
}

func newFixture(t *testing.T, opts ...order.Option) *fixture {
	t.Helper()

	c := memory.NewCatalog()
	c.PutProduct(catalog.Product{ID: 1, Name: "Phone", BasePrice: dec("100")})
	c.PutVersion(catalog.Version{ID: 10, ProductID: 1, Name: "128GB", ExtraPrice: decPtr("20")})
	c.PutColor(catalog.Color{ID: 100, VersionID: 10, Name: "Black"})
	c.PutProduct(catalog.Product{ID: 2, Name: "Case", BasePrice: dec("50")})

	f := &fixture{
		catalog:  c,
		orders:   memory.NewOrders(),
		gateway:  &mockGateway{result: payment.Result{ID: "pi_1", Status: payment.StatusSucceeded}},
		notifier: &recordingNotifier{},
	}
	opts = append([]order.Option{
		order.WithNotifier(f.notifier),
		order.WithClock(func() time.Time { return fixedNow }),
	}, opts...)
	f.svc = order.NewService(
		catalog.NewResolver(c),
		memory.NewUsers(user.User{ID: userID}),
		f.orders,
		f.gateway,
		opts...,
	)
	return f
}

// placeScenarioOrder creates the two-line order totalling 290.
func (f *fixture) placeScenarioOrder(t *testing.T) *order.Order {
	t.Helper()
	o, err := f.svc.CreateOrder(context.Background(), order.CreateOrderRequest{
		UserID:          userID,
		ShippingAddress: "1 Main St",
		Items: []order.Item{
			{ProductID: 1, VersionID: catalog.NewOptInt64(10), Quantity: 2},
			{ProductID: 2, Quantity: 1},
		},
	})
	require.NoError(t, err)
	return o
}

func (f *fixture) stored(t *testing.T, id int64) *order.Order {
	t.Helper()
	o, err := f.orders.Get(context.Background(), id)
	require.NoError(t, err)
	return o
}

// --- CreateOrder ---

func TestCreateOrder(t *testing.T) {
	f := newFixture(t)
	o := f.placeScenarioOrder(t)

	assert.NotZero(t, o.ID)
	require.Len(t, o.Lines, 2)
	assert.True(t, dec("120").Equal(o.Lines[0].UnitPrice))
	assert.True(t, dec("240").Equal(o.Lines[0].LineTotal))
	assert.Equal(t, "128GB", *o.Lines[0].VersionName)
	assert.True(t, dec("50").Equal(o.Lines[1].LineTotal))
	assert.True(t, dec("290").Equal(o.TotalPrice))
	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, order.PaymentMethodNone, o.PaymentMethod)
	assert.Equal(t, order.PaymentStatusUnpaid, o.PaymentStatus)
	assert.Nil(t, o.PaymentDate)
	assert.Equal(t, fixedNow, o.OrderDate)
	assert.Equal(t, []order.EventType{order.EventCreated}, f.notifier.types())
}

func TestCreateOrder_Validation(t *testing.T) {
	tests := []struct {
		name  string
		req   order.CreateOrderRequest
		check func(t *testing.T, err error)
	}{
		{
			name: "unknown user",
			req:  order.CreateOrderRequest{UserID: 99, Items: []order.Item{{ProductID: 1, Quantity: 1}}},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, user.ErrNotFound)
			},
		},
		{
			name: "empty items",
			req:  order.CreateOrderRequest{UserID: userID},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, order.ErrEmptyItems)
			},
		},
		{
			name: "zero quantity",
			req: order.CreateOrderRequest{UserID: userID, Items: []order.Item{
				{ProductID: 1, Quantity: 1},
				{ProductID: 2, Quantity: 0},
			}},
			check: func(t *testing.T, err error) {
				var iq *order.InvalidQuantityError
				require.ErrorAs(t, err, &iq)
				assert.Equal(t, int64(2), iq.ProductID)
			},
		},
		{
			name: "missing product",
			req:  order.CreateOrderRequest{UserID: userID, Items: []order.Item{{ProductID: 404, Quantity: 1}}},
			check: func(t *testing.T, err error) {
				var nf *catalog.NotFoundError
				require.ErrorAs(t, err, &nf)
				assert.Equal(t, catalog.EntityProduct, nf.Entity)
			},
		},
		{
			name: "version of another product",
			req: order.CreateOrderRequest{UserID: userID, Items: []order.Item{
				{ProductID: 2, VersionID: catalog.NewOptInt64(10), Quantity: 1},
			}},
			check: func(t *testing.T, err error) {
				var vm *catalog.VariantMismatchError
				require.ErrorAs(t, err, &vm)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.CreateOrder(context.Background(), tt.req)
			require.Error(t, err)
			tt.check(t, err)

			all, err := f.orders.List(context.Background())
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

func TestCreateOrder_PricesFrozen(t *testing.T) {
	f := newFixture(t)
	o := f.placeScenarioOrder(t)

	f.catalog.PutProduct(catalog.Product{ID: 1, Name: "Phone", BasePrice: dec("500")})
	f.catalog.DeleteProduct(2)

	got, err := f.svc.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	assert.True(t, dec("120").Equal(got.Lines[0].UnitPrice))
	assert.True(t, dec("290").Equal(got.TotalPrice))
	assert.Equal(t, "Case", got.Lines[1].ProductName)

	repriced, err := f.svc.CreateOrder(context.Background(), order.CreateOrderRequest{
		UserID: userID,
		Items:  []order.Item{{ProductID: 1, VersionID: catalog.NewOptInt64(10), Quantity: 1}},
	})
	require.NoError(t, err)
	assert.True(t, dec("520").Equal(repriced.TotalPrice))
}

// --- UpdateOrder ---

func TestUpdateOrder_KeepsMatchingLines(t *testing.T) {
	f := newFixture(t)
	o := f.placeScenarioOrder(t)
	phoneLine := o.Lines[0].ID

	updated, err := f.svc.UpdateOrder(context.Background(), o.ID, order.UpdateOrderRequest{
		ShippingAddress: "2 Side St",
		Items: []order.Item{
			{ProductID: 1, VersionID: catalog.NewOptInt64(10), Quantity: 1},
			{ProductID: 1, VersionID: catalog.NewOptInt64(10), ColorID: catalog.NewOptInt64(100), Quantity: 1},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "2 Side St", updated.ShippingAddress)
	require.Len(t, updated.Lines, 2)
	assert.Equal(t, phoneLine, updated.Lines[0].ID)
	assert.NotEqual(t, o.Lines[1].ID, updated.Lines[1].ID)
	assert.True(t, dec("240").Equal(updated.TotalPrice))

	stored := f.stored(t, o.ID)
	assert.True(t, dec("240").Equal(stored.TotalPrice))
	assert.Len(t, stored.Lines, 2)
}

func TestUpdateOrder_Locked(t *testing.T) {
	f := newFixture(t)
	o := f.placeScenarioOrder(t)

	_, err := f.svc.ProcessPayment(context.Background(), o.ID, order.PaymentRequest{Method: "COD"})
	require.NoError(t, err)

	_, err = f.svc.UpdateOrder(context.Background(), o.ID, order.UpdateOrderRequest{
		Items: []order.Item{{ProductID: 2, Quantity: 1}},
	})
	require.ErrorIs(t, err, order.ErrOrderLocked)
	assert.Len(t, f.stored(t, o.ID).Lines, 2)
}

func TestUpdateOrder_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.UpdateOrder(context.Background(), 404, order.UpdateOrderRequest{
		Items: []order.Item{{ProductID: 2, Quantity: 1}},
	})
	require.ErrorIs(t, err, order.ErrNotFound)
}

// --- Status lifecycle ---

func TestUpdateStatus_CODDelivered(t *testing.T) {
	f := newFixture(t)
	o := f.placeScenarioOrder(t)
	ctx := context.Background()

	paid, err := f.svc.ProcessPayment(ctx, o.ID, order.PaymentRequest{Method: "COD", Amount: dec("290")})
	require.NoError(t, err)
	assert.Equal(t, order.PaymentMethodCOD, paid.PaymentMethod)
	assert.Equal(t, order.PaymentStatusUnpaid, paid.PaymentStatus)
	assert.Equal(t, order.StatusPending, paid.Status)
	assert.Zero(t, f.gateway.calls.Load())

	delivered, err := f.svc.UpdateStatus(ctx, o.ID, order.StatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, order.StatusDelivered, delivered.Status)
	assert.Equal(t, order.PaymentStatusPaid, delivered.PaymentStatus)
	require.NotNil(t, delivered.PaymentDate)
	assert.Equal(t, fixedNow, *delivered.PaymentDate)

	assert.Equal(t, order.PaymentStatusPaid, f.stored(t, o.ID).PaymentStatus)
	assert.Equal(t, []order.EventType{
		order.EventCreated,
		order.EventStatusChanged,
		order.EventPaid,
	}, f.notifier.types())
}

func TestUpdateStatus_CardDeliveredUntouched(t *testing.T) {
	f := newFixture(t)
	o := f.placeScenarioOrder(t)
	ctx := context.Background()

	paid, err := f.svc.ProcessPayment(ctx, o.ID, order.PaymentRequest{
		Method: "CreditCard",
		Amount: dec("290"),
		Token:  "pm_card_visa",
	})
	require.NoError(t, err)
	paidAt := *paid.PaymentDate

	delivered, err := f.svc.UpdateStatus(ctx, o.ID, order.StatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, order.PaymentStatusPaid, delivered.PaymentStatus)
	assert.Equal(t, paidAt, *delivered.PaymentDate)
}

func TestUpdateStatus_Transitions(t *testing.T) {
	tests := []struct {
		name    string
		path    []order.Status
		strict  bool
		wantErr bool
	}{
		{name: "pending to shipped to delivered", path: []order.Status{order.StatusShipped, order.StatusDelivered}, strict: true},
		{name: "pending to canceled", path: []order.Status{order.StatusCanceled}, strict: true},
		{name: "same status", path: []order.Status{order.StatusPending}, strict: true},
		{name: "delivered back to pending", path: []order.Status{order.StatusDelivered, order.StatusPending}, strict: true, wantErr: true},
		{name: "canceled to shipped", path: []order.Status{order.StatusCanceled, order.StatusShipped}, strict: true, wantErr: true},
		{name: "lenient allows any move", path: []order.Status{order.StatusDelivered, order.StatusPending}, strict: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, order.WithStrictTransitions(tt.strict))
			o := f.placeScenarioOrder(t)

			var err error
			for _, s := range tt.path {
				if _, err = f.svc.UpdateStatus(context.Background(), o.ID, s); err != nil {
					break
				}
			}
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, tt.path[len(tt.path)-1], f.stored(t, o.ID).Status)
				return
			}
			var it *order.InvalidTransitionError
			require.ErrorAs(t, err, &it)
			assert.Equal(t, tt.path[0], f.stored(t, o.ID).Status)
		})
	}
}

func TestUpdateStatus_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.UpdateStatus(context.Background(), 404, order.StatusShipped)
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestConfirmOrder(t *testing.T) {
	f := newFixture(t)
	o := f.placeScenarioOrder(t)
	ctx := context.Background()

	confirmed, err := f.svc.ConfirmOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusShipped, confirmed.Status)

	_, err = f.svc.ConfirmOrder(ctx, o.ID)
	var it *order.InvalidTransitionError
	require.ErrorAs(t, err, &it)
	assert.Equal(t, order.StatusShipped, it.From)
}

func TestDeleteOrder(t *testing.T) {
	f := newFixture(t)
	o := f.placeScenarioOrder(t)
	ctx := context.Background()

	require.NoError(t, f.svc.DeleteOrder(ctx, o.ID))
	require.ErrorIs(t, f.svc.DeleteOrder(ctx, o.ID), order.ErrNotFound)

	_, err := f.svc.GetOrder(ctx, o.ID)
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestListByUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.placeScenarioOrder(t)
	second := f.placeScenarioOrder(t)

	got, err := f.svc.ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, second.ID, got[0].ID)
	assert.Equal(t, first.ID, got[1].ID)

	_, err = f.svc.ListByUser(ctx, 99)
	require.ErrorIs(t, err, user.ErrNotFound)

	all, err := f.svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

// --- Payment ---

func TestProcessPayment_InsufficientAmount(t *testing.T) {
	f := newFixture(t)
	o := f.placeScenarioOrder(t)

	for _, token := range []string{"", "pm_card_visa"} {
		_, err := f.svc.ProcessPayment(context.Background(), o.ID, order.PaymentRequest{
			Method: "CreditCard",
			Amount: dec("100"),
			Token:  token,
		})
		var ia *order.InsufficientAmountError
		require.ErrorAs(t, err, &ia, "token %q", token)
		assert.True(t, dec("290").Equal(ia.Required))
		assert.True(t, dec("100").Equal(ia.Provided))
	}

	stored := f.stored(t, o.ID)
	assert.Equal(t, order.PaymentMethodNone, stored.PaymentMethod)
	assert.Equal(t, order.PaymentStatusUnpaid, stored.PaymentStatus)
	assert.Zero(t, f.gateway.calls.Load())
}

func TestProcessPayment_Card(t *testing.T) {
	f := newFixture(t, order.WithCurrency("usd"))
	o := f.placeScenarioOrder(t)

	paid, err := f.svc.ProcessPayment(context.Background(), o.ID, order.PaymentRequest{
		Method: "credit_card",
		Amount: dec("290"),
		Token:  "pm_card_visa",
	})
	require.NoError(t, err)
	assert.Equal(t, order.PaymentMethodCreditCard, paid.PaymentMethod)
	assert.Equal(t, order.PaymentStatusPaid, paid.PaymentStatus)
	assert.Equal(t, "pi_1", paid.PaymentReference)
	assert.Equal(t, order.StatusPending, paid.Status)

	require.Len(t, f.gateway.charges, 1)
	c := f.gateway.charges[0]
	assert.Equal(t, int64(29000), c.AmountMinor)
	assert.Equal(t, "usd", c.Currency)
	assert.Equal(t, "pm_card_visa", c.Token)
	assert.NotEmpty(t, c.IdempotencyKey)
}

func TestProcessPayment_Idempotent(t *testing.T) {
	f := newFixture(t)
	o := f.placeScenarioOrder(t)
	req := order.PaymentRequest{Method: "CreditCard", Amount: dec("290"), Token: "pm_card_visa"}

	first, err := f.svc.ProcessPayment(context.Background(), o.ID, req)
	require.NoError(t, err)
	second, err := f.svc.ProcessPayment(context.Background(), o.ID, req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), f.gateway.calls.Load())
}

func TestProcessPayment_ConcurrentChargesOnce(t *testing.T) {
	f := newFixture(t)
	o := f.placeScenarioOrder(t)
	req := order.PaymentRequest{Method: "CreditCard", Amount: dec("290"), Token: "pm_card_visa"}

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.ProcessPayment(context.Background(), o.ID, req)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), f.gateway.calls.Load())
	assert.Equal(t, order.PaymentStatusPaid, f.stored(t, o.ID).PaymentStatus)
}

func TestProcessPayment_Failures(t *testing.T) {
	tests := []struct {
		name    string
		req     order.PaymentRequest
		gateway *mockGateway
		check   func(t *testing.T, err error)
	}{
		{
			name: "unknown method",
			req:  order.PaymentRequest{Method: "paypal"},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, order.ErrInvalidPaymentMethod)
			},
		},
		{
			name: "card without token",
			req:  order.PaymentRequest{Method: "card", Amount: dec("290")},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, order.ErrPaymentTokenRequired)
			},
		},
		{
			name:    "declined",
			req:     order.PaymentRequest{Method: "CreditCard", Amount: dec("290"), Token: "pm_card_chargeDeclined"},
			gateway: &mockGateway{result: payment.Result{ID: "pi_2", Status: payment.StatusFailed}},
			check: func(t *testing.T, err error) {
				var pd *order.PaymentDeclinedError
				require.ErrorAs(t, err, &pd)
				assert.Equal(t, payment.StatusFailed, pd.Status)
			},
		},
		{
			name:    "requires action",
			req:     order.PaymentRequest{Method: "CreditCard", Amount: dec("290"), Token: "pm_card_threeDSecure2Required"},
			gateway: &mockGateway{result: payment.Result{ID: "pi_3", Status: payment.StatusRequiresAction}},
			check: func(t *testing.T, err error) {
				var pd *order.PaymentDeclinedError
				require.ErrorAs(t, err, &pd)
				assert.Equal(t, payment.StatusRequiresAction, pd.Status)
			},
		},
		{
			name:    "gateway unreachable",
			req:     order.PaymentRequest{Method: "CreditCard", Amount: dec("290"), Token: "pm_card_visa"},
			gateway: &mockGateway{err: errors.New("context deadline exceeded")},
			check: func(t *testing.T, err error) {
				var ge *order.PaymentGatewayError
				require.ErrorAs(t, err, &ge)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.gateway != nil {
				f.gateway.result = tt.gateway.result
				f.gateway.err = tt.gateway.err
			}
			o := f.placeScenarioOrder(t)

			_, err := f.svc.ProcessPayment(context.Background(), o.ID, tt.req)
			require.Error(t, err)
			tt.check(t, err)

			stored := f.stored(t, o.ID)
			assert.Equal(t, order.PaymentMethodNone, stored.PaymentMethod)
			assert.Equal(t, order.PaymentStatusUnpaid, stored.PaymentStatus)
			assert.Nil(t, stored.PaymentDate)
		})
	}
}

func TestProcessPayment_SkipsProcessedOrder(t *testing.T) {
	f := newFixture(t)
	o := f.placeScenarioOrder(t)
	ctx := context.Background()

	_, err := f.svc.UpdateStatus(ctx, o.ID, order.StatusCanceled)
	require.NoError(t, err)

	got, err := f.svc.ProcessPayment(ctx, o.ID, order.PaymentRequest{Method: "bogus"})
	require.NoError(t, err)
	assert.Equal(t, order.PaymentMethodNone, got.PaymentMethod)
	assert.Equal(t, order.StatusCanceled, got.Status)
}

func TestParseStatus(t *testing.T) {
	s, err := order.ParseStatus("delivered")
	require.NoError(t, err)
	assert.Equal(t, order.StatusDelivered, s)

	s, err = order.ParseStatus("Cancelled")
	require.NoError(t, err)
	assert.Equal(t, order.StatusCanceled, s)

	_, err = order.ParseStatus("lost")
	require.ErrorIs(t, err, order.ErrInvalidStatus)
}

func TestParsePaymentMethod(t *testing.T) {
	for in, want := range map[string]order.PaymentMethod{
		"COD":         order.PaymentMethodCOD,
		"cash":        order.PaymentMethodCOD,
		"CreditCard":  order.PaymentMethodCreditCard,
		"credit_card": order.PaymentMethodCreditCard,
		"card":        order.PaymentMethodCreditCard,
	} {
		got, err := order.ParsePaymentMethod(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := order.ParsePaymentMethod("none")
	require.ErrorIs(t, err, order.ErrInvalidPaymentMethod)
}
