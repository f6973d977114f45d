// Package cart holds the shopping cart model: line items, the mutation rules
// that keep quantities positive, the merge policy applied when an anonymous
// visitor signs in, and the Store that routes mutations to a backend.
package cart

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/apperr"
)

const (
	// minorUnits is the number of decimal places of the currency.
	minorUnits = 2
	// MaxQty bounds the quantity of a single line item.
	MaxQty = 999
)

func errTooMany() error {
	return apperr.Validation("qty", fmt.Sprintf("quantity must not exceed %d", MaxQty))
}

// LineItem is one product entry in a cart.
type LineItem struct {
	ProductID string
	Title     string
	Price     decimal.Decimal
	Image     string
	Qty       int
}

// Subtotal returns Price × Qty.
func (li LineItem) Subtotal() decimal.Decimal {
	return li.Price.Mul(decimal.NewFromInt(int64(li.Qty)))
}

// Cart is an ordered collection of line items, unique by ProductID. The zero
// value is an empty cart.
//
// Methods never leave an item with Qty <= 0 behind.
type Cart struct {
	Items []LineItem
}

// New returns a cart holding a copy of items.
func New(items []LineItem) *Cart {
	return &Cart{Items: Clone(items)}
}

func (c *Cart) index(productID string) int {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// Add sums qty onto the entry for item.ProductID, or appends item with qty
// when absent. qty must be at least 1 and the resulting quantity at most
// MaxQty.
func (c *Cart) Add(item LineItem, qty int) error {
	if qty < 1 {
		return apperr.Validation("qty", "quantity must be at least 1")
	}
	if qty > MaxQty {
		return errTooMany()
	}
	if item.ProductID == "" {
		return apperr.Validation("productId", "product id is required")
	}
	if item.Price.IsNegative() {
		return apperr.Validation("price", "price must not be negative")
	}
	if i := c.index(item.ProductID); i >= 0 {
		if c.Items[i].Qty > MaxQty-qty {
			return errTooMany()
		}
		c.Items[i].Qty += qty
		return nil
	}
	item.Qty = qty
	c.Items = append(c.Items, item)
	return nil
}

// Remove deletes the entry for productID regardless of its quantity.
func (c *Cart) Remove(productID string) {
	if i := c.index(productID); i >= 0 {
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
	}
}

// Increment raises the quantity of productID by one. Absent ids are ignored.
// It fails when the entry already holds MaxQty.
func (c *Cart) Increment(productID string) error {
	i := c.index(productID)
	if i < 0 {
		return nil
	}
	if c.Items[i].Qty >= MaxQty {
		return errTooMany()
	}
	c.Items[i].Qty++
	return nil
}

// Decrement lowers the quantity of productID by one, removing the entry when
// it would reach zero. Absent ids are ignored.
func (c *Cart) Decrement(productID string) {
	i := c.index(productID)
	if i < 0 {
		return
	}
	if c.Items[i].Qty <= 1 {
		c.Remove(productID)
		return
	}
	c.Items[i].Qty--
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.Items = nil
}

// Empty reports whether the cart has no items.
func (c *Cart) Empty() bool {
	return len(c.Items) == 0
}

// Snapshot returns a copy of the items that shares no memory with the cart.
func (c *Cart) Snapshot() []LineItem {
	return Clone(c.Items)
}

// Total returns Σ price × qty rounded to the currency minor unit.
func (c *Cart) Total() decimal.Decimal {
	return Total(c.Items)
}

// Count returns Σ qty.
func (c *Cart) Count() int {
	n := 0
	for _, it := range c.Items {
		n += it.Qty
	}
	return n
}

// Total returns Σ price × qty of items rounded to the currency minor unit.
func Total(items []LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.Subtotal())
	}
	return sum.Round(minorUnits)
}

// Clone deep-copies items. A nil or empty input yields nil.
func Clone(items []LineItem) []LineItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]LineItem, len(items))
	copy(out, items)
	return out
}

// normalize repairs a stored cart: entries without an id, with a
// non-positive quantity or with a negative price are dropped, duplicate ids
// are folded together and quantities are capped at MaxQty.
func normalize(items []LineItem) []LineItem {
	var c Cart
	for _, it := range items {
		if it.Qty < 1 || it.ProductID == "" || it.Price.IsNegative() {
			continue
		}
		c.addCapped(it)
	}
	return c.Items
}

// addCapped sums it.Qty onto the entry for it.ProductID, saturating at MaxQty.
func (c *Cart) addCapped(it LineItem) {
	if i := c.index(it.ProductID); i >= 0 {
		c.Items[i].Qty = capQty(c.Items[i].Qty, it.Qty)
		return
	}
	it.Qty = capQty(0, it.Qty)
	c.Items = append(c.Items, it)
}

func capQty(have, add int) int {
	if add > MaxQty-have {
		return MaxQty
	}
	return have + add
}
