package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/catalog"
)

const (
	getProductSQL = `SELECT id, name, base_price, stock_quantity, category_id
		FROM products WHERE id = $1`

	getVersionSQL = `SELECT id, product_id, name, extra_price
		FROM product_versions WHERE id = $1`

	getColorSQL = `SELECT id, version_id, name, color_code
		FROM product_colors WHERE id = $1`

	upsertProductSQL = `INSERT INTO products (id, name, base_price, stock_quantity, category_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			base_price = EXCLUDED.base_price,
			stock_quantity = EXCLUDED.stock_quantity,
			category_id = EXCLUDED.category_id`

	upsertVersionSQL = `INSERT INTO product_versions (id, product_id, name, extra_price)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			product_id = EXCLUDED.product_id,
			name = EXCLUDED.name,
			extra_price = EXCLUDED.extra_price`

	upsertColorSQL = `INSERT INTO product_colors (id, version_id, name, color_code)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			version_id = EXCLUDED.version_id,
			name = EXCLUDED.name,
			color_code = EXCLUDED.color_code`

	pruneVersionsSQL = `DELETE FROM product_versions
		WHERE product_id = $1 AND NOT (id = ANY($2))`

	pruneColorsSQL = `DELETE FROM product_colors
		WHERE version_id = $1 AND NOT (id = ANY($2))`

	syncSequencesSQL = `
		SELECT setval(pg_get_serial_sequence('products', 'id'), GREATEST((SELECT MAX(id) FROM products), 1));
		SELECT setval(pg_get_serial_sequence('product_versions', 'id'), GREATEST((SELECT MAX(id) FROM product_versions), 1));
		SELECT setval(pg_get_serial_sequence('product_colors', 'id'), GREATEST((SELECT MAX(id) FROM product_colors), 1));`
)

var _ catalog.Repository = (*CatalogRepository)(nil)

// CatalogRepository implements catalog.Repository backed by PostgreSQL.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository returns a CatalogRepository that uses the given pool.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

func (r *CatalogRepository) GetProduct(ctx context.Context, id int64) (*catalog.Product, error) {
	rows, err := r.pool.Query(ctx, getProductSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}
	return &p, nil
}

func (r *CatalogRepository) GetVersion(ctx context.Context, id int64) (*catalog.Version, error) {
	var v catalog.Version
	err := r.pool.QueryRow(ctx, getVersionSQL, id).Scan(&v.ID, &v.ProductID, &v.Name, &v.ExtraPrice)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("getting version %d: %w", id, err)
	}
	return &v, nil
}

func (r *CatalogRepository) GetColor(ctx context.Context, id int64) (*catalog.Color, error) {
	var c catalog.Color
	err := r.pool.QueryRow(ctx, getColorSQL, id).Scan(&c.ID, &c.VersionID, &c.Name, &c.ColorCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("getting color %d: %w", id, err)
	}
	return &c, nil
}

// ProductTree is a product with its versions and their colors, as loaded by
// the seeder.
type ProductTree struct {
	catalog.Product
	Versions []VersionTree
}

// VersionTree is a version with its colors.
type VersionTree struct {
	catalog.Version
	Colors []catalog.Color
}

// UpsertProducts writes the given trees in one transaction. Versions and
// colors of a written product that are absent from its tree are deleted.
func (r *CatalogRepository) UpsertProducts(ctx context.Context, trees []ProductTree) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for _, t := range trees {
			if err := upsertTree(ctx, tx, t); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx, syncSequencesSQL); err != nil {
			return fmt.Errorf("syncing catalog sequences: %w", err)
		}
		return nil
	})
}

func upsertTree(ctx context.Context, tx pgx.Tx, t ProductTree) error {
	p := t.Product
	if _, err := tx.Exec(ctx, upsertProductSQL,
		p.ID, p.Name, p.BasePrice, p.StockQuantity, p.CategoryID.Ptr(),
	); err != nil {
		return fmt.Errorf("upserting product %d: %w", p.ID, err)
	}

	versionIDs := make([]int64, 0, len(t.Versions))
	for _, vt := range t.Versions {
		v := vt.Version
		if _, err := tx.Exec(ctx, upsertVersionSQL, v.ID, p.ID, v.Name, v.ExtraPrice); err != nil {
			return fmt.Errorf("upserting version %d: %w", v.ID, err)
		}
		versionIDs = append(versionIDs, v.ID)

		colorIDs := make([]int64, 0, len(vt.Colors))
		for _, c := range vt.Colors {
			if _, err := tx.Exec(ctx, upsertColorSQL, c.ID, v.ID, c.Name, c.ColorCode); err != nil {
				return fmt.Errorf("upserting color %d: %w", c.ID, err)
			}
			colorIDs = append(colorIDs, c.ID)
		}
		if _, err := tx.Exec(ctx, pruneColorsSQL, v.ID, colorIDs); err != nil {
			return fmt.Errorf("pruning colors of version %d: %w", v.ID, err)
		}
	}
	if _, err := tx.Exec(ctx, pruneVersionsSQL, p.ID, versionIDs); err != nil {
		return fmt.Errorf("pruning versions of product %d: %w", p.ID, err)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (catalog.Product, error) {
	var (
		p          catalog.Product
		categoryID *int64
	)
	err := row.Scan(&p.ID, &p.Name, &p.BasePrice, &p.StockQuantity, &categoryID)
	p.CategoryID = catalog.OptInt64FromPtr(categoryID)
	return p, err
}
