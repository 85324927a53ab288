package services

import (
	"slices"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"storefront-api/internal/models"
)

// ProductLookup resolves a product id against the current catalog.
type ProductLookup interface {
	Product(id string) (models.EnhancedProduct, bool)
}

// Cart holds quantity by product id in insertion order. Lines never store a
// price; totals are resolved against the catalog when asked for.
type Cart struct {
	lines []models.CartLine
}

func NewCart() *Cart {
	return &Cart{lines: []models.CartLine{}}
}

func (c *Cart) index(productID string) int {
	return slices.IndexFunc(c.lines, func(l models.CartLine) bool {
		return l.ProductID == productID
	})
}

// Add increments the line for productID, creating it with quantity 1.
func (c *Cart) Add(productID string) {
	if i := c.index(productID); i >= 0 {
		c.lines[i].Quantity++
		return
	}
	c.lines = append(c.lines, models.CartLine{ProductID: productID, Quantity: 1})
}

// Remove deletes the line whatever its quantity. Unknown ids are ignored.
func (c *Cart) Remove(productID string) {
	if i := c.index(productID); i >= 0 {
		c.lines = slices.Delete(c.lines, i, i+1)
	}
}

// SetQuantity overwrites a line's quantity. Quantities below 1 and unknown ids
// are ignored; use Remove to drop a line.
func (c *Cart) SetQuantity(productID string, quantity int) {
	if quantity < 1 {
		return
	}
	if i := c.index(productID); i >= 0 {
		c.lines[i].Quantity = quantity
	}
}

// Decrement lowers a line by one and removes it at quantity 1.
func (c *Cart) Decrement(productID string) {
	i := c.index(productID)
	if i < 0 {
		return
	}
	if c.lines[i].Quantity > 1 {
		c.lines[i].Quantity--
		return
	}
	c.Remove(productID)
}

func (c *Cart) Clear() {
	c.lines = []models.CartLine{}
}

// Lines returns a copy of the cart lines.
func (c *Cart) Lines() []models.CartLine {
	return slices.Clone(c.lines)
}

func (c *Cart) Quantity(productID string) int {
	if i := c.index(productID); i >= 0 {
		return c.lines[i].Quantity
	}
	return 0
}

func (c *Cart) IsEmpty() bool {
	return len(c.lines) == 0
}

func (c *Cart) TotalItemCount() int {
	return lo.SumBy(c.lines, func(l models.CartLine) int { return l.Quantity })
}

// ResolvedLine is a cart line joined with the product it points at.
type ResolvedLine struct {
	models.CartLine
	Product   models.EnhancedProduct
	Available bool
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
}

// Resolve joins every line with the catalog. Lines whose product is gone are
// kept with Available false and a zero total.
func (c *Cart) Resolve(catalog ProductLookup) []ResolvedLine {
	return lo.Map(c.lines, func(l models.CartLine, _ int) ResolvedLine {
		line := ResolvedLine{CartLine: l, UnitPrice: decimal.Zero, LineTotal: decimal.Zero}
		if catalog == nil {
			return line
		}
		p, ok := catalog.Product(l.ProductID)
		if !ok {
			return line
		}
		line.Product = p
		line.Available = true
		line.UnitPrice = decimal.NewFromFloat(p.Price)
		line.LineTotal = line.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
		return line
	})
}

// TotalAmount is the sum of quantity × current price over all lines.
func (c *Cart) TotalAmount(catalog ProductLookup) decimal.Decimal {
	return SumLines(c.Resolve(catalog))
}

func SumLines(lines []ResolvedLine) decimal.Decimal {
	return lo.Reduce(lines, func(total decimal.Decimal, l ResolvedLine, _ int) decimal.Decimal {
		return total.Add(l.LineTotal)
	}, decimal.Zero)
}
