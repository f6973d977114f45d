package handler

import (
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/identity"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
)

func encodeDecimal(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(d.StringFixed(2)))
}

func encodeProduct(e *jx.Encoder, p product.Product) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("title")
	e.Str(p.Title)
	e.FieldStart("price")
	encodeDecimal(e, p.Price)
	e.FieldStart("description")
	e.Str(p.Description)
	e.FieldStart("category")
	e.Str(p.Category)
	e.FieldStart("image")
	e.Str(p.Image)
	e.FieldStart("rating")
	e.ObjStart()
	e.FieldStart("rate")
	e.Num(jx.Num(p.Rating.Rate.String()))
	e.FieldStart("count")
	e.Int(p.Rating.Count)
	e.ObjEnd()
	e.ObjEnd()
}

func encodeProducts(e *jx.Encoder, ps []product.Product) {
	e.ArrStart()
	for _, p := range ps {
		encodeProduct(e, p)
	}
	e.ArrEnd()
}

// encodeCart writes {"items":[...],"total":39.97,"count":5}.
func encodeCart(e *jx.Encoder, c *cart.Cart) {
	e.ObjStart()
	e.FieldStart("items")
	cart.EncodeItems(e, c.Items)
	e.FieldStart("total")
	encodeDecimal(e, c.Total())
	e.FieldStart("count")
	e.Int(c.Count())
	e.ObjEnd()
}

func encodeShipping(e *jx.Encoder, s order.Shipping) {
	e.ObjStart()
	e.FieldStart("name")
	e.Str(s.Name)
	e.FieldStart("email")
	e.Str(s.Email)
	e.FieldStart("phone")
	e.Str(s.Phone)
	e.FieldStart("address")
	e.Str(s.Address)
	if s.Notes != "" {
		e.FieldStart("notes")
		e.Str(s.Notes)
	}
	e.ObjEnd()
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("items")
	cart.EncodeItems(e, o.Items)
	e.FieldStart("total")
	encodeDecimal(e, o.Total)
	e.FieldStart("count")
	e.Int(o.Count())
	e.FieldStart("shipping")
	encodeShipping(e, o.Shipping)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("placedAt")
	e.Str(o.PlacedAt.UTC().Format(time.RFC3339))
	e.FieldStart("estimatedDelivery")
	e.Str(o.EstimatedDelivery.UTC().Format(time.RFC3339))
	e.ObjEnd()
}

func encodeIdentity(e *jx.Encoder, id *identity.Identity) {
	e.ObjStart()
	e.FieldStart("uid")
	e.Str(id.UID)
	e.FieldStart("email")
	e.Str(id.Email)
	e.FieldStart("name")
	e.Str(id.Name)
	if id.PhotoURL != "" {
		e.FieldStart("photoUrl")
		e.Str(id.PhotoURL)
	}
	e.FieldStart("provider")
	e.Str(id.Provider)
	e.ObjEnd()
}

// addItemRequest is the body of POST /api/cart/items.
type addItemRequest struct {
	ProductID string
	Qty       int
}

func decodeAddItem(d *jx.Decoder) (addItemRequest, error) {
	req := addItemRequest{Qty: 1}
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "productId":
			req.ProductID, err = cart.DecodeLooseString(d)
		case "qty":
			req.Qty, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	return req, err
}

// decodeCredentials reads the body of sign-in and sign-up.
func decodeCredentials(d *jx.Decoder) (identity.Credentials, error) {
	var c identity.Credentials
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "email":
			c.Email, err = d.Str()
		case "password":
			c.Password, err = d.Str()
		case "name":
			c.Name, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	return c, err
}

// decodeCheckout reads {"shipping":{...},"idempotencyKey":"..."}. The
// shipping fields are also accepted at the top level.
func decodeCheckout(d *jx.Decoder) (order.Request, error) {
	var req order.Request
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "shipping":
			return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
				return decodeShippingField(d, string(key), &req.Shipping)
			})
		case "idempotencyKey":
			k, err := d.Str()
			req.IdempotencyKey = k
			return err
		default:
			return decodeShippingField(d, string(key), &req.Shipping)
		}
	})
	return req, err
}

func decodeShippingField(d *jx.Decoder, key string, s *order.Shipping) error {
	var dst *string
	switch key {
	case "name":
		dst = &s.Name
	case "email":
		dst = &s.Email
	case "phone":
		dst = &s.Phone
	case "address":
		dst = &s.Address
	case "notes":
		dst = &s.Notes
	default:
		return d.Skip()
	}
	if d.Next() == jx.Null {
		return d.Null()
	}
	v, err := d.Str()
	*dst = v
	return err
}
