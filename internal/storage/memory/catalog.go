// Package memory provides in-process repositories for tests.
package memory

import (
	"context"
	"sync"

	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/user"
)

// Catalog is an in-memory catalog.Repository.
type Catalog struct {
	mu       sync.RWMutex
	products map[int64]catalog.Product
	versions map[int64]catalog.Version
	colors   map[int64]catalog.Color
}

var _ catalog.Repository = (*Catalog)(nil)

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		products: make(map[int64]catalog.Product),
		versions: make(map[int64]catalog.Version),
		colors:   make(map[int64]catalog.Color),
	}
}

// PutProduct inserts or replaces a product.
func (c *Catalog) PutProduct(p catalog.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.ID] = p
}

// PutVersion inserts or replaces a version.
func (c *Catalog) PutVersion(v catalog.Version) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions[v.ID] = v
}

// PutColor inserts or replaces a color.
func (c *Catalog) PutColor(col catalog.Color) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.colors[col.ID] = col
}

// DeleteProduct removes a product. Versions and colors are left for the
// caller to remove.
func (c *Catalog) DeleteProduct(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.products, id)
}

// DeleteVersion removes a version and its colors.
func (c *Catalog) DeleteVersion(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.versions, id)
	for cid, col := range c.colors {
		if col.VersionID == id {
			delete(c.colors, cid)
		}
	}
}

// DeleteColor removes a color.
func (c *Catalog) DeleteColor(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.colors, id)
}

func (c *Catalog) GetProduct(_ context.Context, id int64) (*catalog.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &p, nil
}

func (c *Catalog) GetVersion(_ context.Context, id int64) (*catalog.Version, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.versions[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &v, nil
}

func (c *Catalog) GetColor(_ context.Context, id int64) (*catalog.Color, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	col, ok := c.colors[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &col, nil
}

// Users is an in-memory user.Repository.
type Users struct {
	mu  sync.RWMutex
	ids map[int64]user.User
}

var _ user.Repository = (*Users)(nil)

// NewUsers creates a user set holding the given users.
func NewUsers(users ...user.User) *Users {
	u := &Users{ids: make(map[int64]user.User, len(users))}
	for _, usr := range users {
		u.ids[usr.ID] = usr
	}
	return u
}

// Put inserts or replaces a user.
func (u *Users) Put(usr user.User) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.ids[usr.ID] = usr
}

func (u *Users) Exists(_ context.Context, id int64) (bool, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	_, ok := u.ids[id]
	return ok, nil
}
