package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/order"
)

const (
	orderColumns = `id, user_id, order_date, shipping_address, total_price,
		status, payment_method, payment_status, payment_date, payment_reference`

	orderLineColumns = `id, order_id, product_id, version_id, color_id,
		product_name, version_name, color_name, quantity, unit_price, line_total`

	createOrderSQL = `INSERT INTO orders (user_id, order_date, shipping_address, total_price,
			status, payment_method, payment_status, payment_date, payment_reference)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	insertOrderLineSQL = `INSERT INTO order_lines (order_id, product_id, version_id, color_id,
			product_name, version_name, color_name, quantity, unit_price, line_total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	lockOrderSQL = getOrderSQL + ` FOR UPDATE`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders ORDER BY order_date DESC, id DESC`

	listUserOrdersSQL = `SELECT ` + orderColumns + `
		FROM orders WHERE user_id = $1 ORDER BY order_date DESC, id DESC`

	listOrderLinesSQL = `SELECT ` + orderLineColumns + `
		FROM order_lines WHERE order_id = ANY($1) ORDER BY order_id, id`

	updateOrderSQL = `UPDATE orders SET
			shipping_address = $2, total_price = $3, status = $4,
			payment_method = $5, payment_status = $6, payment_date = $7, payment_reference = $8
		WHERE id = $1`

	updateOrderLineSQL = `UPDATE order_lines SET
			product_id = $3, version_id = $4, color_id = $5,
			product_name = $6, version_name = $7, color_name = $8,
			quantity = $9, unit_price = $10, line_total = $11
		WHERE id = $1 AND order_id = $2`

	pruneOrderLinesSQL = `DELETE FROM order_lines WHERE order_id = $1 AND NOT (id = ANY($2))`

	deleteOrderSQL = `DELETE FROM orders WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order and its lines in one transaction.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, createOrderSQL,
			o.UserID, o.OrderDate, o.ShippingAddress, o.TotalPrice,
			o.Status, o.PaymentMethod, o.PaymentStatus, o.PaymentDate, o.PaymentReference,
		).Scan(&o.ID); err != nil {
			return err
		}
		for i := range o.Lines {
			o.Lines[i].OrderID = o.ID
			if err := insertLine(ctx, tx, &o.Lines[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("creating order for user %d: %w", o.UserID, err)
	}
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id int64) (*order.Order, error) {
	o, err := getOrder(ctx, r.pool, getOrderSQL, id)
	if err != nil {
		return nil, err
	}
	if err := loadLines(ctx, r.pool, []*order.Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID int64) ([]order.Order, error) {
	return r.list(ctx, listUserOrdersSQL, userID)
}

func (r *OrderRepository) List(ctx context.Context) ([]order.Order, error) {
	return r.list(ctx, listOrdersSQL)
}

func (r *OrderRepository) list(ctx context.Context, query string, args ...any) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}

	ptrs := make([]*order.Order, len(orders))
	for i := range orders {
		ptrs[i] = &orders[i]
	}
	if err := loadLines(ctx, r.pool, ptrs); err != nil {
		return nil, err
	}
	return orders, nil
}

// Update locks the order row with SELECT ... FOR UPDATE for the duration of
// fn. An error from fn rolls the transaction back.
func (r *OrderRepository) Update(ctx context.Context, id int64, fn order.Mutation) (*order.Order, error) {
	var result *order.Order
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		o, err := getOrder(ctx, tx, lockOrderSQL, id)
		if err != nil {
			return err
		}
		if err := loadLines(ctx, tx, []*order.Order{o}); err != nil {
			return err
		}

		change, err := fn(o)
		if err != nil {
			return err
		}
		if change.Has(order.ChangeHeader) {
			if _, err := tx.Exec(ctx, updateOrderSQL,
				o.ID, o.ShippingAddress, o.TotalPrice, o.Status,
				o.PaymentMethod, o.PaymentStatus, o.PaymentDate, o.PaymentReference,
			); err != nil {
				return fmt.Errorf("updating order %d: %w", id, err)
			}
		}
		if change.Has(order.ChangeLines) {
			if err := syncLines(ctx, tx, o); err != nil {
				return err
			}
		}
		result = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *OrderRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, deleteOrderSQL, id)
	if err != nil {
		return fmt.Errorf("deleting order %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// syncLines deletes stored lines missing from o.Lines, updates the rest and
// inserts new ones.
func syncLines(ctx context.Context, tx pgx.Tx, o *order.Order) error {
	keep := make([]int64, 0, len(o.Lines))
	for _, l := range o.Lines {
		if l.ID != 0 {
			keep = append(keep, l.ID)
		}
	}
	if _, err := tx.Exec(ctx, pruneOrderLinesSQL, o.ID, keep); err != nil {
		return fmt.Errorf("pruning lines of order %d: %w", o.ID, err)
	}

	for i := range o.Lines {
		l := &o.Lines[i]
		l.OrderID = o.ID
		if l.ID == 0 {
			if err := insertLine(ctx, tx, l); err != nil {
				return err
			}
			continue
		}
		if _, err := tx.Exec(ctx, updateOrderLineSQL,
			l.ID, l.OrderID, l.ProductID, l.VersionID.Ptr(), l.ColorID.Ptr(),
			l.ProductName, l.VersionName, l.ColorName, l.Quantity, l.UnitPrice, l.LineTotal,
		); err != nil {
			return fmt.Errorf("updating order line %d: %w", l.ID, err)
		}
	}
	return nil
}

func insertLine(ctx context.Context, tx pgx.Tx, l *order.Line) error {
	err := tx.QueryRow(ctx, insertOrderLineSQL,
		l.OrderID, l.ProductID, l.VersionID.Ptr(), l.ColorID.Ptr(),
		l.ProductName, l.VersionName, l.ColorName, l.Quantity, l.UnitPrice, l.LineTotal,
	).Scan(&l.ID)
	if err != nil {
		return fmt.Errorf("inserting line of order %d: %w", l.OrderID, err)
	}
	return nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func getOrder(ctx context.Context, q querier, query string, id int64) (*order.Order, error) {
	rows, err := q.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}
	return &o, nil
}

// loadLines fetches the lines of all given orders in one query.
func loadLines(ctx context.Context, q querier, orders []*order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, len(orders))
	byID := make(map[int64]*order.Order, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = o
		o.Lines = make([]order.Line, 0)
	}

	rows, err := q.Query(ctx, listOrderLinesSQL, ids)
	if err != nil {
		return fmt.Errorf("listing order lines: %w", err)
	}
	lines, err := pgx.CollectRows(rows, scanOrderLine)
	if err != nil {
		return fmt.Errorf("listing order lines: %w", err)
	}
	for _, l := range lines {
		o := byID[l.OrderID]
		o.Lines = append(o.Lines, l)
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(
		&o.ID, &o.UserID, &o.OrderDate, &o.ShippingAddress, &o.TotalPrice,
		&o.Status, &o.PaymentMethod, &o.PaymentStatus, &o.PaymentDate, &o.PaymentReference,
	)
	return o, err
}

func scanOrderLine(row pgx.CollectableRow) (order.Line, error) {
	var (
		l                  order.Line
		versionID, colorID *int64
	)
	err := row.Scan(
		&l.ID, &l.OrderID, &l.ProductID, &versionID, &colorID,
		&l.ProductName, &l.VersionName, &l.ColorName, &l.Quantity, &l.UnitPrice, &l.LineTotal,
	)
	l.VersionID = catalog.OptInt64FromPtr(versionID)
	l.ColorID = catalog.OptInt64FromPtr(colorID)
	return l, err
}
