package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/catalog"
)

// Sentinel errors for cart operations.
var (
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
	ErrLineNotFound    = errors.New("cart line not found")
	// ErrDuplicateLine is returned by Repository.Update when the updated line
	// would collide with another line of the same identity.
	ErrDuplicateLine = errors.New("cart line identity already taken")
)

// Key is the identity of a cart line. At most one line exists per key.
// Absent version or color ids are a distinct value, equal to each other.
type Key struct {
	UserID    int64
	ProductID int64
	VersionID catalog.OptInt64
	ColorID   catalog.OptInt64
}

// Line is a single cart entry with a snapshot of display and price data
// captured at its last write.
type Line struct {
	ID        int64
	UserID    int64
	ProductID int64
	VersionID catalog.OptInt64
	ColorID   catalog.OptInt64
	Quantity  int

	ProductName string
	UnitPrice   decimal.Decimal
	VersionName *string
	ColorName   *string
	ColorCode   *string

	UpdatedAt time.Time
}

// Key returns the identity of the line.
func (l Line) Key() Key {
	return Key{
		UserID:    l.UserID,
		ProductID: l.ProductID,
		VersionID: l.VersionID,
		ColorID:   l.ColorID,
	}
}

// Ref returns the catalog reference of the line.
func (l Line) Ref() catalog.Ref {
	return catalog.Ref{
		ProductID: l.ProductID,
		VersionID: l.VersionID,
		ColorID:   l.ColorID,
	}
}

// applyVariant overwrites the references and snapshot fields with a freshly
// resolved variant.
func (l *Line) applyVariant(v catalog.Variant) {
	ref := v.Ref()
	l.ProductID = ref.ProductID
	l.VersionID = ref.VersionID
	l.ColorID = ref.ColorID
	l.ProductName = v.Product.Name
	l.UnitPrice = v.UnitPrice
	l.VersionName = v.VersionName()
	l.ColorName = v.ColorName()
	l.ColorCode = v.ColorCode()
}

// sameSnapshot reports whether two lines carry identical references and
// snapshot fields.
func sameSnapshot(a, b Line) bool {
	return a.Key() == b.Key() &&
		a.ProductName == b.ProductName &&
		a.UnitPrice.Equal(b.UnitPrice) &&
		equalStr(a.VersionName, b.VersionName) &&
		equalStr(a.ColorName, b.ColorName) &&
		equalStr(a.ColorCode, b.ColorCode)
}

func equalStr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Repository defines persistence operations for cart lines.
type Repository interface {
	// ListByUser returns the lines of a user ordered by id.
	ListByUser(ctx context.Context, userID int64) ([]Line, error)
	// Merge atomically inserts line or, when a line with the same Key
	// exists, adds line.Quantity to it and overwrites its snapshot.
	Merge(ctx context.Context, line Line) (*Line, error)
	// Update persists the references and snapshot of an existing line.
	Update(ctx context.Context, line Line) error
	// Delete removes a line of a user, returning ErrLineNotFound if absent.
	Delete(ctx context.Context, userID, lineID int64) error
	// DeleteByUser removes every line of a user.
	DeleteByUser(ctx context.Context, userID int64) error
}
