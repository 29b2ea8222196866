// Package cart holds the in-memory line items of the sale being rung up.
//
// The cart is advisory about stock: it signals when a line's quantity
// exceeds the cached stock count but never rejects the add. Stock is
// enforced server-side when the sale commits.
package cart

import (
	"github.com/shopspring/decimal"

	"github.com/quitanda/pdv/internal/domain/product"
)

// Line is a single cart entry. Re-adding the same product merges into the
// existing line rather than appending a duplicate.
type Line struct {
	ProductID      string
	Barcode        string
	Name           string
	UnitPriceMinor int64
	Unit           string
	Quantity       decimal.Decimal
	SubtotalMinor  int64
}

// Cart accumulates lines in insertion order. It is not safe for concurrent
// use; the terminal engine serializes all mutations.
type Cart struct {
	lines []Line
}

// New returns an empty cart.
func New() *Cart {
	return &Cart{}
}

// AddItem merges quantity into an existing line for the same product, or
// appends a new line. It returns the affected line — on a merge that can be
// anywhere in the cart, not the tail — and a flag that is true when the
// merged quantity exceeds the product's cached stock; callers surface the
// flag as a warning.
func (c *Cart) AddItem(p product.Product, quantity decimal.Decimal) (Line, bool) {
	for i := range c.lines {
		if c.lines[i].ProductID == p.ID {
			c.lines[i].Quantity = c.lines[i].Quantity.Add(quantity)
			c.lines[i].SubtotalMinor = Subtotal(c.lines[i].Quantity, c.lines[i].UnitPriceMinor)
			return c.lines[i], c.lines[i].Quantity.GreaterThan(p.Stock)
		}
	}

	line := Line{
		ProductID:      p.ID,
		Barcode:        p.Barcode,
		Name:           p.Name,
		UnitPriceMinor: p.PriceMinor,
		Unit:           p.Unit,
		Quantity:       quantity,
		SubtotalMinor:  Subtotal(quantity, p.PriceMinor),
	}
	c.lines = append(c.lines, line)
	return line, quantity.GreaterThan(p.Stock)
}

// RemoveItem deletes the line for the given product id. Removing an absent
// product is a no-op.
func (c *Cart) RemoveItem(productID string) {
	for i := range c.lines {
		if c.lines[i].ProductID == productID {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
			return
		}
	}
}

// RemoveLast pops the most recently added line, if any.
func (c *Cart) RemoveLast() {
	if len(c.lines) > 0 {
		c.lines = c.lines[:len(c.lines)-1]
	}
}

// TotalMinor folds the line subtotals.
func (c *Cart) TotalMinor() int64 {
	var total int64
	for _, l := range c.lines {
		total += l.SubtotalMinor
	}
	return total
}

// Lines returns a copy of the current lines in insertion order.
func (c *Cart) Lines() []Line {
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

// Len returns the number of distinct lines.
func (c *Cart) Len() int {
	return len(c.lines)
}

// Clear empties the cart after a committed sale.
func (c *Cart) Clear() {
	c.lines = nil
}

// Subtotal computes round(quantity * unitPriceMinor) in minor units,
// rounding half away from zero.
func Subtotal(quantity decimal.Decimal, unitPriceMinor int64) int64 {
	return quantity.Mul(decimal.NewFromInt(unitPriceMinor)).Round(0).IntPart()
}
