package handler

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/order"
)

// Request bodies are decoded field by field with jx. Unknown fields are
// skipped. Version and color ids also accept the productVersionId and
// productColorId spellings used by older storefront clients.

func decodeAddCartItem(data []byte) (cart.AddItemRequest, error) {
	var req cart.AddItemRequest
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "userId":
			req.UserID, err = d.Int64()
		case "productId":
			req.ProductID, err = d.Int64()
		case "versionId", "productVersionId":
			req.VersionID, err = decodeOptInt64(d)
		case "colorId", "productColorId":
			req.ColorID, err = decodeOptInt64(d)
		case "quantity":
			req.Quantity, err = d.Int()
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	return req, err
}

func decodeItem(d *jx.Decoder) (order.Item, error) {
	var it order.Item
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			it.ProductID, err = d.Int64()
		case "versionId", "productVersionId":
			it.VersionID, err = decodeOptInt64(d)
		case "colorId", "productColorId":
			it.ColorID, err = decodeOptInt64(d)
		case "quantity":
			it.Quantity, err = d.Int()
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	return it, err
}

func decodeItems(d *jx.Decoder) ([]order.Item, error) {
	var items []order.Item
	err := d.Arr(func(d *jx.Decoder) error {
		it, err := decodeItem(d)
		if err != nil {
			return err
		}
		items = append(items, it)
		return nil
	})
	return items, err
}

func decodeCreateOrder(data []byte) (order.CreateOrderRequest, error) {
	var req order.CreateOrderRequest
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "userId":
			req.UserID, err = d.Int64()
		case "shippingAddress":
			req.ShippingAddress, err = decodeOptStr(d)
		case "items":
			req.Items, err = decodeItems(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	return req, err
}

func decodeUpdateOrder(data []byte) (order.UpdateOrderRequest, error) {
	var req order.UpdateOrderRequest
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "shippingAddress":
			req.ShippingAddress, err = decodeOptStr(d)
		case "items":
			req.Items, err = decodeItems(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	return req, err
}

// decodeStatus accepts {"status":"SHIPPED"} or the bare string "SHIPPED".
func decodeStatus(data []byte) (string, error) {
	d := jx.DecodeBytes(data)
	if d.Next() == jx.String {
		return d.Str()
	}
	var status string
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		s, err := d.Str()
		status = s
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	return status, err
}

func decodePayment(data []byte) (order.PaymentRequest, error) {
	var req order.PaymentRequest
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "paymentMethod":
			req.Method, err = d.Str()
		case "amount":
			req.Amount, err = decodeDecimal(d)
		case "externalPaymentToken", "stripePaymentMethodId":
			req.Token, err = decodeOptStr(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	return req, err
}

func decodeOptInt64(d *jx.Decoder) (catalog.OptInt64, error) {
	if d.Next() == jx.Null {
		return catalog.OptInt64{}, d.Null()
	}
	v, err := d.Int64()
	if err != nil {
		return catalog.OptInt64{}, err
	}
	return catalog.NewOptInt64(v), nil
}

func decodeOptStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

// decodeDecimal reads a JSON number or a numeric string without going
// through float64.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.Null:
		return decimal.Zero, d.Null()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	default:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(string(n))
	}
}

func encodeDecimal(e *jx.Encoder, v decimal.Decimal) {
	e.Num(jx.Num(v.String()))
}

func encodeOptInt64(e *jx.Encoder, v catalog.OptInt64) {
	if id, ok := v.Get(); ok {
		e.Int64(id)
		return
	}
	e.Null()
}

func encodeOptStr(e *jx.Encoder, v *string) {
	if v == nil {
		e.Null()
		return
	}
	e.Str(*v)
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339Nano))
}

func encodeCartLine(e *jx.Encoder, l cart.Line) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(l.ID) })
		e.Field("userId", func(e *jx.Encoder) { e.Int64(l.UserID) })
		e.Field("productId", func(e *jx.Encoder) { e.Int64(l.ProductID) })
		e.Field("versionId", func(e *jx.Encoder) { encodeOptInt64(e, l.VersionID) })
		e.Field("colorId", func(e *jx.Encoder) { encodeOptInt64(e, l.ColorID) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
		e.Field("productName", func(e *jx.Encoder) { e.Str(l.ProductName) })
		e.Field("unitPrice", func(e *jx.Encoder) { encodeDecimal(e, l.UnitPrice) })
		e.Field("versionName", func(e *jx.Encoder) { encodeOptStr(e, l.VersionName) })
		e.Field("colorName", func(e *jx.Encoder) { encodeOptStr(e, l.ColorName) })
		e.Field("colorCode", func(e *jx.Encoder) { encodeOptStr(e, l.ColorCode) })
	})
}

func encodeCartLines(e *jx.Encoder, lines []cart.Line) {
	e.Arr(func(e *jx.Encoder) {
		for _, l := range lines {
			encodeCartLine(e, l)
		}
	})
}

func encodeOrderLine(e *jx.Encoder, l order.Line) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(l.ID) })
		e.Field("productId", func(e *jx.Encoder) { e.Int64(l.ProductID) })
		e.Field("versionId", func(e *jx.Encoder) { encodeOptInt64(e, l.VersionID) })
		e.Field("colorId", func(e *jx.Encoder) { encodeOptInt64(e, l.ColorID) })
		e.Field("productName", func(e *jx.Encoder) { e.Str(l.ProductName) })
		e.Field("versionName", func(e *jx.Encoder) { encodeOptStr(e, l.VersionName) })
		e.Field("colorName", func(e *jx.Encoder) { encodeOptStr(e, l.ColorName) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
		e.Field("unitPrice", func(e *jx.Encoder) { encodeDecimal(e, l.UnitPrice) })
		e.Field("lineTotal", func(e *jx.Encoder) { encodeDecimal(e, l.LineTotal) })
	})
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(o.ID) })
		e.Field("userId", func(e *jx.Encoder) { e.Int64(o.UserID) })
		e.Field("orderDate", func(e *jx.Encoder) { encodeTime(e, o.OrderDate) })
		e.Field("shippingAddress", func(e *jx.Encoder) { e.Str(o.ShippingAddress) })
		e.Field("totalPrice", func(e *jx.Encoder) { encodeDecimal(e, o.TotalPrice) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		e.Field("paymentMethod", func(e *jx.Encoder) { e.Str(string(o.PaymentMethod)) })
		e.Field("paymentStatus", func(e *jx.Encoder) { e.Str(string(o.PaymentStatus)) })
		e.Field("paymentDate", func(e *jx.Encoder) {
			if o.PaymentDate == nil {
				e.Null()
				return
			}
			encodeTime(e, *o.PaymentDate)
		})
		if o.PaymentReference != "" {
			e.Field("paymentReference", func(e *jx.Encoder) { e.Str(o.PaymentReference) })
		}
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, l := range o.Lines {
					encodeOrderLine(e, l)
				}
			})
		})
	})
}

func encodeOrders(e *jx.Encoder, orders []order.Order) {
	e.Arr(func(e *jx.Encoder) {
		for i := range orders {
			encodeOrder(e, &orders[i])
		}
	})
}
