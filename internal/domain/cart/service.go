package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/catalog"
)

// AddItemRequest holds the input for adding a variant to a cart.
type AddItemRequest struct {
	UserID    int64
	ProductID int64
	VersionID catalog.OptInt64
	ColorID   catalog.OptInt64
	Quantity  int
}

// Service merges cart line requests into at most one line per identity and
// keeps line snapshots priced against the current catalog.
type Service struct {
	catalog *catalog.Resolver
	lines   Repository
}

// NewService creates a cart Service.
func NewService(resolver *catalog.Resolver, lines Repository) *Service {
	return &Service{
		catalog: resolver,
		lines:   lines,
	}
}

// AddItem validates the variant chain, prices it, and merges it into the
// user's cart. An existing line with the same identity gets its quantity
// incremented and its snapshot overwritten.
func (s *Service) AddItem(ctx context.Context, req AddItemRequest) (*Line, error) {
	if req.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	v, err := s.catalog.Resolve(ctx, catalog.Ref{
		ProductID: req.ProductID,
		VersionID: req.VersionID,
		ColorID:   req.ColorID,
	})
	if err != nil {
		return nil, err
	}

	line := Line{
		UserID:   req.UserID,
		Quantity: req.Quantity,
	}
	line.applyVariant(v)

	merged, err := s.lines.Merge(ctx, line)
	if err != nil {
		return nil, errors.Wrap(err, "merge cart line")
	}
	return merged, nil
}

// GetCart returns the user's lines after reconciling each against the
// catalog. Stale version or color references are cleared rather than the
// line being dropped; lines whose product is gone are returned unchanged.
func (s *Service) GetCart(ctx context.Context, userID int64) ([]Line, error) {
	lines, err := s.lines.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list cart lines")
	}
	for i := range lines {
		lines[i] = s.reconcile(ctx, lines[i])
	}
	return lines, nil
}

// reconcile repairs a single line. Failures degrade to returning the line
// as stored.
func (s *Service) reconcile(ctx context.Context, line Line) Line {
	lg := zctx.From(ctx).With(
		zap.Int64("cart_line_id", line.ID),
		zap.Int64("product_id", line.ProductID),
	)

	v, err := s.catalog.Repair(ctx, line.Ref())
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			lg.Warn("Cart line references a missing product, keeping snapshot")
		} else {
			lg.Error("Reconcile cart line", zap.Error(err))
		}
		return line
	}

	repaired := line
	repaired.applyVariant(v)
	if sameSnapshot(line, repaired) {
		return line
	}

	if repaired.VersionID != line.VersionID || repaired.ColorID != line.ColorID {
		lg.Warn("Cart line variant reference is stale, resetting",
			zap.Stringer("version_id", line.VersionID),
			zap.Stringer("color_id", line.ColorID),
		)
	}

	if err := s.lines.Update(ctx, repaired); err != nil {
		if errors.Is(err, ErrDuplicateLine) {
			lg.Warn("Repaired cart line collides with another line, keeping snapshot")
		} else {
			lg.Warn("Persist repaired cart line", zap.Error(err))
		}
		return line
	}
	return repaired
}

// RemoveItem deletes a single line of the user's cart.
func (s *Service) RemoveItem(ctx context.Context, userID, lineID int64) error {
	if err := s.lines.Delete(ctx, userID, lineID); err != nil {
		if errors.Is(err, ErrLineNotFound) {
			return ErrLineNotFound
		}
		return errors.Wrapf(err, "delete cart line %d", lineID)
	}
	return nil
}

// ClearCart deletes every line of the user's cart. Clearing an empty cart
// is not an error.
func (s *Service) ClearCart(ctx context.Context, userID int64) error {
	if err := s.lines.DeleteByUser(ctx, userID); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	return nil
}
