package catalog

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned by a Repository when a catalog entity does not exist.
var ErrNotFound = errors.New("catalog entity not found")

// ErrColorWithoutVersion is returned when a color is requested without the
// version it belongs to.
var ErrColorWithoutVersion = errors.New("color requires a version")

// Product is a sellable catalog item.
type Product struct {
	ID            int64
	Name          string
	BasePrice     decimal.Decimal
	StockQuantity int
	CategoryID    OptInt64
}

// Version is a variant of a product. A nil ExtraPrice counts as zero.
type Version struct {
	ID         int64
	ProductID  int64
	Name       string
	ExtraPrice *decimal.Decimal
}

// Color is a variant of a version.
type Color struct {
	ID        int64
	VersionID int64
	Name      string
	ColorCode *string
}

// Repository defines read operations for the product catalog. Lookups return
// ErrNotFound when the entity does not exist.
type Repository interface {
	GetProduct(ctx context.Context, id int64) (*Product, error)
	GetVersion(ctx context.Context, id int64) (*Version, error)
	GetColor(ctx context.Context, id int64) (*Color, error)
}

// Entity names used in error messages.
const (
	EntityProduct = "product"
	EntityVersion = "version"
	EntityColor   = "color"
)

// NotFoundError indicates a referenced catalog entity does not exist.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// Unwrap allows errors.Is(err, ErrNotFound).
func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// VariantMismatchError indicates a version does not belong to the requested
// product, or a color does not belong to the requested version.
type VariantMismatchError struct {
	Entity   string
	ID       int64
	ParentID int64
}

func (e *VariantMismatchError) Error() string {
	parent := EntityProduct
	if e.Entity == EntityColor {
		parent = EntityVersion
	}
	return fmt.Sprintf("%s %d does not belong to %s %d", e.Entity, e.ID, parent, e.ParentID)
}
