package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/xenking/storefront/internal/domain/order"
)

// Orders is an in-memory order.Repository. Update holds the store lock
// while the mutation runs, serialising all updates.
type Orders struct {
	mu         sync.Mutex
	nextID     int64
	nextLineID int64
	orders     map[int64]*order.Order
}

var _ order.Repository = (*Orders)(nil)

// NewOrders creates an empty order store.
func NewOrders() *Orders {
	return &Orders{orders: make(map[int64]*order.Order)}
}

func (r *Orders) Create(_ context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	o.ID = r.nextID
	r.assignLineIDs(o)
	r.orders[o.ID] = o.Clone()
	return nil
}

func (r *Orders) Get(_ context.Context, id int64) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o.Clone(), nil
}

func (r *Orders) ListByUser(_ context.Context, userID int64) ([]order.Order, error) {
	return r.list(func(o *order.Order) bool { return o.UserID == userID }), nil
}

func (r *Orders) List(_ context.Context) ([]order.Order, error) {
	return r.list(func(*order.Order) bool { return true }), nil
}

func (r *Orders) list(match func(o *order.Order) bool) []order.Order {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]order.Order, 0)
	for _, o := range r.orders {
		if match(o) {
			out = append(out, *o.Clone())
		}
	}
	slices.SortFunc(out, func(a, b order.Order) int {
		if c := b.OrderDate.Compare(a.OrderDate); c != 0 {
			return c
		}
		switch {
		case a.ID > b.ID:
			return -1
		case a.ID < b.ID:
			return 1
		}
		return 0
	})
	return out
}

func (r *Orders) Update(_ context.Context, id int64, fn order.Mutation) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}

	o := stored.Clone()
	change, err := fn(o)
	if err != nil {
		return nil, err
	}
	if change == order.ChangeNone {
		return stored.Clone(), nil
	}

	next := stored.Clone()
	if change.Has(order.ChangeHeader) {
		lines := next.Lines
		next = o.Clone()
		next.Lines = lines
	}
	if change.Has(order.ChangeLines) {
		r.assignLineIDs(o)
		next.Lines = o.Clone().Lines
	}
	next.ID = id
	r.orders[id] = next
	return next.Clone(), nil
}

func (r *Orders) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[id]; !ok {
		return order.ErrNotFound
	}
	delete(r.orders, id)
	return nil
}

func (r *Orders) assignLineIDs(o *order.Order) {
	for i := range o.Lines {
		if o.Lines[i].ID == 0 {
			r.nextLineID++
			o.Lines[i].ID = r.nextLineID
		}
		o.Lines[i].OrderID = o.ID
	}
}
