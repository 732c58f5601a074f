package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/catalog"
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusShipped   Status = "SHIPPED"
	StatusDelivered Status = "DELIVERED"
	StatusCanceled  Status = "CANCELED"
)

// PaymentMethod records how an order is paid. PaymentMethodNone means no
// payment has been chosen yet.
type PaymentMethod string

const (
	PaymentMethodNone       PaymentMethod = "NONE"
	PaymentMethodCOD        PaymentMethod = "COD"
	PaymentMethodCreditCard PaymentMethod = "CREDIT_CARD"
)

// PaymentStatus records whether funds were received.
type PaymentStatus string

const (
	PaymentStatusUnpaid PaymentStatus = "UNPAID"
	PaymentStatusPaid   PaymentStatus = "PAID"
)

// Order is a placed purchase with frozen line prices.
type Order struct {
	ID              int64
	UserID          int64
	OrderDate       time.Time
	ShippingAddress string
	TotalPrice      decimal.Decimal

	Status        Status
	PaymentMethod PaymentMethod
	PaymentStatus PaymentStatus
	PaymentDate   *time.Time
	// PaymentReference is the gateway's payment id for card payments.
	PaymentReference string

	Lines []Line
}

// Line is an order item. Names are snapshots taken when the line was
// priced, so lines survive catalog deletions.
type Line struct {
	ID        int64
	OrderID   int64
	ProductID int64
	VersionID catalog.OptInt64
	ColorID   catalog.OptInt64

	ProductName string
	VersionName *string
	ColorName   *string

	Quantity  int
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
}

// variantKey identifies the purchased variant of a line.
type variantKey struct {
	ProductID int64
	VersionID catalog.OptInt64
	ColorID   catalog.OptInt64
}

func (l Line) variantKey() variantKey {
	return variantKey{ProductID: l.ProductID, VersionID: l.VersionID, ColorID: l.ColorID}
}

// Clone returns a deep copy of the order.
func (o *Order) Clone() *Order {
	c := *o
	if o.PaymentDate != nil {
		d := *o.PaymentDate
		c.PaymentDate = &d
	}
	if o.Lines != nil {
		c.Lines = make([]Line, len(o.Lines))
		copy(c.Lines, o.Lines)
	}
	return &c
}

// Change tells Repository.Update which parts of an order a Mutation
// modified.
type Change uint8

const (
	// ChangeNone leaves the stored order untouched.
	ChangeNone Change = 0
	// ChangeHeader persists the order's own columns.
	ChangeHeader Change = 1 << iota
	// ChangeLines replaces the stored lines with Order.Lines: lines with a
	// zero ID are inserted, lines whose ID is missing are deleted.
	ChangeLines
)

// Has reports whether c includes flag.
func (c Change) Has(flag Change) bool { return c&flag != 0 }

// Mutation modifies a locked order in place. Returning an error aborts the
// update without persisting anything.
type Mutation func(o *Order) (Change, error)

// Repository defines persistence operations for orders.
type Repository interface {
	// Create stores the order with its lines and assigns their ids.
	Create(ctx context.Context, o *Order) error
	// Get returns an order with lines or ErrNotFound.
	Get(ctx context.Context, id int64) (*Order, error)
	// ListByUser returns a user's orders, newest first.
	ListByUser(ctx context.Context, userID int64) ([]Order, error)
	// List returns every order, newest first.
	List(ctx context.Context) ([]Order, error)
	// Update loads the order under an exclusive lock held until fn returns
	// and the result is persisted. Concurrent Updates of one order are
	// serialised. It returns the order as left by fn.
	Update(ctx context.Context, id int64, fn Mutation) (*Order, error)
	// Delete removes an order and its lines or returns ErrNotFound.
	Delete(ctx context.Context, id int64) error
}
