package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/catalog"
)

const (
	cartLineColumns = `id, user_id, product_id, version_id, color_id, quantity,
		product_name, unit_price, version_name, color_name, color_code, updated_at`

	listCartLinesSQL = `SELECT ` + cartLineColumns + `
		FROM cart_lines WHERE user_id = $1 ORDER BY id`

	// mergeCartLineSQL relies on the NULLS NOT DISTINCT identity index so
	// absent version and color ids collide with each other.
	mergeCartLineSQL = `INSERT INTO cart_lines (user_id, product_id, version_id, color_id, quantity,
			product_name, unit_price, version_name, color_name, color_code, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		ON CONFLICT (user_id, product_id, version_id, color_id) DO UPDATE SET
			quantity = cart_lines.quantity + EXCLUDED.quantity,
			product_name = EXCLUDED.product_name,
			unit_price = EXCLUDED.unit_price,
			version_name = EXCLUDED.version_name,
			color_name = EXCLUDED.color_name,
			color_code = EXCLUDED.color_code,
			updated_at = now()
		RETURNING ` + cartLineColumns

	updateCartLineSQL = `UPDATE cart_lines SET
			product_id = $2, version_id = $3, color_id = $4,
			product_name = $5, unit_price = $6, version_name = $7, color_name = $8, color_code = $9,
			updated_at = now()
		WHERE id = $1`

	deleteCartLineSQL = `DELETE FROM cart_lines WHERE id = $1 AND user_id = $2`

	deleteUserCartSQL = `DELETE FROM cart_lines WHERE user_id = $1`
)

const uniqueViolation = "23505"

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

func (r *CartRepository) ListByUser(ctx context.Context, userID int64) ([]cart.Line, error) {
	rows, err := r.pool.Query(ctx, listCartLinesSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing cart of user %d: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanCartLine)
}

// Merge upserts the line in a single statement, so concurrent merges of the
// same identity add up instead of creating duplicates.
func (r *CartRepository) Merge(ctx context.Context, l cart.Line) (*cart.Line, error) {
	rows, err := r.pool.Query(ctx, mergeCartLineSQL,
		l.UserID, l.ProductID, l.VersionID.Ptr(), l.ColorID.Ptr(), l.Quantity,
		l.ProductName, l.UnitPrice, l.VersionName, l.ColorName, l.ColorCode,
	)
	if err != nil {
		return nil, fmt.Errorf("merging cart line: %w", err)
	}
	merged, err := pgx.CollectExactlyOneRow(rows, scanCartLine)
	if err != nil {
		return nil, fmt.Errorf("merging cart line: %w", err)
	}
	return &merged, nil
}

func (r *CartRepository) Update(ctx context.Context, l cart.Line) error {
	tag, err := r.pool.Exec(ctx, updateCartLineSQL,
		l.ID, l.ProductID, l.VersionID.Ptr(), l.ColorID.Ptr(),
		l.ProductName, l.UnitPrice, l.VersionName, l.ColorName, l.ColorCode,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return cart.ErrDuplicateLine
		}
		return fmt.Errorf("updating cart line %d: %w", l.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrLineNotFound
	}
	return nil
}

func (r *CartRepository) Delete(ctx context.Context, userID, lineID int64) error {
	tag, err := r.pool.Exec(ctx, deleteCartLineSQL, lineID, userID)
	if err != nil {
		return fmt.Errorf("deleting cart line %d: %w", lineID, err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrLineNotFound
	}
	return nil
}

func (r *CartRepository) DeleteByUser(ctx context.Context, userID int64) error {
	if _, err := r.pool.Exec(ctx, deleteUserCartSQL, userID); err != nil {
		return fmt.Errorf("clearing cart of user %d: %w", userID, err)
	}
	return nil
}

func scanCartLine(row pgx.CollectableRow) (cart.Line, error) {
	var (
		l                  cart.Line
		versionID, colorID *int64
	)
	err := row.Scan(
		&l.ID, &l.UserID, &l.ProductID, &versionID, &colorID, &l.Quantity,
		&l.ProductName, &l.UnitPrice, &l.VersionName, &l.ColorName, &l.ColorCode, &l.UpdatedAt,
	)
	l.VersionID = catalog.OptInt64FromPtr(versionID)
	l.ColorID = catalog.OptInt64FromPtr(colorID)
	return l, err
}
