package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Price returns the sale price of a product narrowed to an optional version:
// base price plus the version's extra price.
func Price(p Product, v *Version) decimal.Decimal {
	price := p.BasePrice
	if v != nil && v.ExtraPrice != nil {
		price = price.Add(*v.ExtraPrice)
	}
	return price
}

// Ref identifies a variant chain by ids.
type Ref struct {
	ProductID int64
	VersionID OptInt64
	ColorID   OptInt64
}

// Variant is a resolved variant chain priced against the catalog at
// resolution time.
type Variant struct {
	Product   Product
	Version   *Version
	Color     *Color
	UnitPrice decimal.Decimal
}

// Ref returns the ids of the resolved chain.
func (v Variant) Ref() Ref {
	ref := Ref{ProductID: v.Product.ID}
	if v.Version != nil {
		ref.VersionID = NewOptInt64(v.Version.ID)
	}
	if v.Color != nil {
		ref.ColorID = NewOptInt64(v.Color.ID)
	}
	return ref
}

// VersionName returns the version name, or nil without a version.
func (v Variant) VersionName() *string {
	if v.Version == nil {
		return nil
	}
	name := v.Version.Name
	return &name
}

// ColorName returns the color name, or nil without a color.
func (v Variant) ColorName() *string {
	if v.Color == nil {
		return nil
	}
	name := v.Color.Name
	return &name
}

// ColorCode returns the color code, or nil without a color or code.
func (v Variant) ColorCode() *string {
	if v.Color == nil || v.Color.ColorCode == nil {
		return nil
	}
	code := *v.Color.ColorCode
	return &code
}

// Resolver loads variant chains from the catalog and prices them. It never
// reads or writes cart or order state.
type Resolver struct {
	repo Repository
}

// NewResolver creates a Resolver backed by the given catalog Repository.
func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve loads the product, version and color named by ref, verifies each
// child belongs to its parent, and prices the chain.
func (r *Resolver) Resolve(ctx context.Context, ref Ref) (Variant, error) {
	if ref.ColorID.IsSet() && !ref.VersionID.IsSet() {
		return Variant{}, ErrColorWithoutVersion
	}

	p, err := r.product(ctx, ref.ProductID)
	if err != nil {
		return Variant{}, err
	}
	res := Variant{Product: *p}

	if versionID, ok := ref.VersionID.Get(); ok {
		v, err := r.version(ctx, versionID)
		if err != nil {
			return Variant{}, err
		}
		if v.ProductID != p.ID {
			return Variant{}, &VariantMismatchError{Entity: EntityVersion, ID: v.ID, ParentID: p.ID}
		}
		res.Version = v
	}

	if colorID, ok := ref.ColorID.Get(); ok {
		c, err := r.color(ctx, colorID)
		if err != nil {
			return Variant{}, err
		}
		if c.VersionID != res.Version.ID {
			return Variant{}, &VariantMismatchError{Entity: EntityColor, ID: c.ID, ParentID: res.Version.ID}
		}
		res.Color = c
	}

	res.UnitPrice = Price(res.Product, res.Version)
	return res, nil
}

// Repair resolves ref like Resolve, but drops a version or color that no
// longer exists or no longer belongs to its parent instead of failing. A
// dropped version also drops the color. It fails with a NotFoundError only
// when the product itself is gone.
func (r *Resolver) Repair(ctx context.Context, ref Ref) (Variant, error) {
	p, err := r.product(ctx, ref.ProductID)
	if err != nil {
		return Variant{}, err
	}
	res := Variant{Product: *p}

	if versionID, ok := ref.VersionID.Get(); ok {
		v, err := r.repo.GetVersion(ctx, versionID)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return Variant{}, errors.Wrapf(err, "get version %d", versionID)
		case v.ProductID == p.ID:
			res.Version = v
		}
	}

	if colorID, ok := ref.ColorID.Get(); ok && res.Version != nil {
		c, err := r.repo.GetColor(ctx, colorID)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return Variant{}, errors.Wrapf(err, "get color %d", colorID)
		case c.VersionID == res.Version.ID:
			res.Color = c
		}
	}

	res.UnitPrice = Price(res.Product, res.Version)
	return res, nil
}

func (r *Resolver) product(ctx context.Context, id int64) (*Product, error) {
	p, err := r.repo.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &NotFoundError{Entity: EntityProduct, ID: id}
		}
		return nil, errors.Wrapf(err, "get product %d", id)
	}
	return p, nil
}

func (r *Resolver) version(ctx context.Context, id int64) (*Version, error) {
	v, err := r.repo.GetVersion(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &NotFoundError{Entity: EntityVersion, ID: id}
		}
		return nil, errors.Wrapf(err, "get version %d", id)
	}
	return v, nil
}

func (r *Resolver) color(ctx context.Context, id int64) (*Color, error) {
	c, err := r.repo.GetColor(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &NotFoundError{Entity: EntityColor, ID: id}
		}
		return nil, errors.Wrapf(err, "get color %d", id)
	}
	return c, nil
}
