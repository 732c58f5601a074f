package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/xenking/storefront/internal/domain/cart"
)

// Cart is an in-memory cart.Repository. A single mutex makes Merge atomic
// per identity.
type Cart struct {
	mu     sync.Mutex
	nextID int64
	lines  map[int64]cart.Line
	byKey  map[cart.Key]int64
	now    func() time.Time
}

var _ cart.Repository = (*Cart)(nil)

// NewCart creates an empty cart store.
func NewCart() *Cart {
	return &Cart{
		lines: make(map[int64]cart.Line),
		byKey: make(map[cart.Key]int64),
		now:   time.Now,
	}
}

func (c *Cart) ListByUser(_ context.Context, userID int64) ([]cart.Line, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]cart.Line, 0)
	for _, l := range c.lines {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	slices.SortFunc(out, func(a, b cart.Line) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out, nil
}

func (c *Cart) Merge(_ context.Context, line cart.Line) (*cart.Line, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	line.UpdatedAt = c.now()
	if id, ok := c.byKey[line.Key()]; ok {
		existing := c.lines[id]
		line.ID = id
		line.Quantity += existing.Quantity
	} else {
		c.nextID++
		line.ID = c.nextID
		c.byKey[line.Key()] = line.ID
	}
	c.lines[line.ID] = line
	return &line, nil
}

func (c *Cart) Update(_ context.Context, line cart.Line) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	old, ok := c.lines[line.ID]
	if !ok {
		return cart.ErrLineNotFound
	}
	if id, taken := c.byKey[line.Key()]; taken && id != line.ID {
		return cart.ErrDuplicateLine
	}
	delete(c.byKey, old.Key())
	line.UpdatedAt = c.now()
	c.lines[line.ID] = line
	c.byKey[line.Key()] = line.ID
	return nil
}

func (c *Cart) Delete(_ context.Context, userID, lineID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.lines[lineID]
	if !ok || l.UserID != userID {
		return cart.ErrLineNotFound
	}
	delete(c.lines, lineID)
	delete(c.byKey, l.Key())
	return nil
}

func (c *Cart) DeleteByUser(_ context.Context, userID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, l := range c.lines {
		if l.UserID == userID {
			delete(c.lines, id)
			delete(c.byKey, l.Key())
		}
	}
	return nil
}
