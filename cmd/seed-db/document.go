package main

import (
	"io"
	"os"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/user"
	"github.com/xenking/storefront/internal/storage/postgres"
)

// document is the seed file layout:
//
//	{"users":[{"id":1,"email":"...","fullName":"..."}],
//	 "products":[{"id":1,"name":"...","basePrice":"10.00","stockQuantity":5,
//	   "versions":[{"id":1,"name":"...","extraPrice":"2.00",
//	     "colors":[{"id":1,"name":"...","colorCode":"#000000"}]}]}]}
type document struct {
	Users    []user.User
	Products []postgres.ProductTree
}

// readDocument reads path, transparently decompressing .gz files.
func readDocument(path string) (*document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return decodeDocument(data)
}

func decodeDocument(data []byte) (*document, error) {
	doc := &document{}
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "users":
			err = d.Arr(func(d *jx.Decoder) error {
				u, err := decodeUser(d)
				if err != nil {
					return err
				}
				doc.Users = append(doc.Users, u)
				return nil
			})
		case "products":
			err = d.Arr(func(d *jx.Decoder) error {
				p, err := decodeProduct(d)
				if err != nil {
					return err
				}
				doc.Products = append(doc.Products, p)
				return nil
			})
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := doc.validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

func (doc *document) validate() error {
	users := make(map[int64]struct{}, len(doc.Users))
	for _, u := range doc.Users {
		if u.ID <= 0 {
			return errors.Errorf("user %q: id must be positive", u.Email)
		}
		if _, dup := users[u.ID]; dup {
			return errors.Errorf("duplicate user %d", u.ID)
		}
		users[u.ID] = struct{}{}
	}

	// Version and color ids are global, so duplicates are checked across
	// the whole tree.
	seen := map[string]map[int64]struct{}{
		catalog.EntityProduct: {},
		catalog.EntityVersion: {},
		catalog.EntityColor:   {},
	}
	mark := func(entity string, id int64) error {
		if id <= 0 {
			return errors.Errorf("%s id must be positive, got %d", entity, id)
		}
		if _, dup := seen[entity][id]; dup {
			return errors.Errorf("duplicate %s %d", entity, id)
		}
		seen[entity][id] = struct{}{}
		return nil
	}
	for _, p := range doc.Products {
		if err := mark(catalog.EntityProduct, p.ID); err != nil {
			return err
		}
		if p.BasePrice.IsNegative() {
			return errors.Errorf("product %d: negative base price", p.ID)
		}
		for _, v := range p.Versions {
			if err := mark(catalog.EntityVersion, v.ID); err != nil {
				return err
			}
			for _, c := range v.Colors {
				if err := mark(catalog.EntityColor, c.ID); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func decodeUser(d *jx.Decoder) (user.User, error) {
	var u user.User
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			u.ID, err = d.Int64()
		case "email":
			u.Email, err = d.Str()
		case "fullName":
			u.FullName, err = d.Str()
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	return u, err
}

func decodeProduct(d *jx.Decoder) (postgres.ProductTree, error) {
	var t postgres.ProductTree
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			t.ID, err = d.Int64()
		case "name":
			t.Name, err = d.Str()
		case "basePrice":
			t.BasePrice, err = decodeDecimal(d)
		case "stockQuantity":
			t.StockQuantity, err = d.Int()
		case "categoryId":
			if d.Next() == jx.Null {
				err = d.Null()
				break
			}
			var id int64
			id, err = d.Int64()
			t.CategoryID = catalog.NewOptInt64(id)
		case "versions":
			err = d.Arr(func(d *jx.Decoder) error {
				v, err := decodeVersion(d)
				if err != nil {
					return err
				}
				t.Versions = append(t.Versions, v)
				return nil
			})
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	if err != nil {
		return t, err
	}
	for i := range t.Versions {
		t.Versions[i].ProductID = t.ID
	}
	return t, nil
}

func decodeVersion(d *jx.Decoder) (postgres.VersionTree, error) {
	var t postgres.VersionTree
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			t.ID, err = d.Int64()
		case "name":
			t.Name, err = d.Str()
		case "extraPrice":
			if d.Next() == jx.Null {
				err = d.Null()
				break
			}
			var p decimal.Decimal
			p, err = decodeDecimal(d)
			t.ExtraPrice = &p
		case "colors":
			err = d.Arr(func(d *jx.Decoder) error {
				c, err := decodeColor(d)
				if err != nil {
					return err
				}
				t.Colors = append(t.Colors, c)
				return nil
			})
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	if err != nil {
		return t, err
	}
	for i := range t.Colors {
		t.Colors[i].VersionID = t.ID
	}
	return t, nil
}

func decodeColor(d *jx.Decoder) (catalog.Color, error) {
	var c catalog.Color
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			c.ID, err = d.Int64()
		case "name":
			c.Name, err = d.Str()
		case "colorCode":
			if d.Next() == jx.Null {
				err = d.Null()
				break
			}
			var code string
			code, err = d.Str()
			c.ColorCode = &code
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	return c, err
}

// decodeDecimal accepts "12.50" or 12.50.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	if d.Next() == jx.String {
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	}
	n, err := d.Num()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(string(n))
}
