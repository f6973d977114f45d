package cart

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// EncodeItem writes item as a JSON object:
//
//	{"productId":"1","title":"...","price":9.99,"image":"...","qty":2}
func EncodeItem(e *jx.Encoder, item LineItem) {
	e.ObjStart()
	e.FieldStart("productId")
	e.Str(item.ProductID)
	e.FieldStart("title")
	e.Str(item.Title)
	e.FieldStart("price")
	e.Num(jx.Num(item.Price.String()))
	e.FieldStart("image")
	e.Str(item.Image)
	e.FieldStart("qty")
	e.Int(item.Qty)
	e.ObjEnd()
}

// EncodeItems writes items as a JSON array. A nil slice is written as [].
func EncodeItems(e *jx.Encoder, items []LineItem) {
	e.ArrStart()
	for _, it := range items {
		EncodeItem(e, it)
	}
	e.ArrEnd()
}

// MarshalItems returns the JSON array encoding of items.
func MarshalItems(items []LineItem) []byte {
	var e jx.Encoder
	EncodeItems(&e, items)
	return e.Bytes()
}

// DecodeItem reads one line item object.
func DecodeItem(d *jx.Decoder) (LineItem, error) {
	var it LineItem
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "productId":
			id, err := DecodeLooseString(d)
			if err != nil {
				return errors.Wrap(err, "productId")
			}
			it.ProductID = id
		case "title":
			s, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "title")
			}
			it.Title = s
		case "price":
			p, err := DecodeDecimal(d)
			if err != nil {
				return errors.Wrap(err, "price")
			}
			it.Price = p
		case "image":
			if d.Next() == jx.Null {
				return d.Null()
			}
			s, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "image")
			}
			it.Image = s
		case "qty":
			n, err := d.Int()
			if err != nil {
				return errors.Wrap(err, "qty")
			}
			it.Qty = n
		default:
			return d.Skip()
		}
		return nil
	})
	return it, err
}

// DecodeItems reads a JSON array of line items. A JSON null yields nil.
// Entries with non-positive quantities are dropped and duplicate product
// ids are folded together.
func DecodeItems(d *jx.Decoder) ([]LineItem, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	var items []LineItem
	err := d.Arr(func(d *jx.Decoder) error {
		it, err := DecodeItem(d)
		if err != nil {
			return err
		}
		items = append(items, it)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode cart items")
	}
	return normalize(items), nil
}

// UnmarshalItems decodes a JSON array of line items. Empty input yields nil.
func UnmarshalItems(data []byte) ([]LineItem, error) {
	if len(data) == 0 {
		return nil, nil
	}
	return DecodeItems(jx.DecodeBytes(data))
}

// DecodeDecimal reads a JSON number or a quoted numeric string.
func DecodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(string(n))
	default:
		return decimal.Zero, errors.Errorf("unexpected %s for decimal", d.Next())
	}
}

// DecodeLooseString accepts a string or a number. Catalog product ids are
// integers upstream but strings everywhere in this service.
func DecodeLooseString(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Number {
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		return string(n), nil
	}
	return d.Str()
}
