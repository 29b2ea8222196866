package cart

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quitanda/pdv/internal/domain/product"
)

func newTestProduct(id, name string, priceMinor int64, stock string) product.Product {
	return product.Product{
		ID:         id,
		Barcode:    "bar-" + id,
		Name:       name,
		PriceMinor: priceMinor,
		Stock:      decimal.RequireFromString(stock),
		Unit:       "UN",
	}
}

func TestAddItem_NewLine(t *testing.T) {
	c := New()
	p := newTestProduct("p1", "Cerveja", 1250, "48")

	line, lowStock := c.AddItem(p, decimal.NewFromInt(2))

	assert.False(t, lowStock)
	require.Equal(t, 1, c.Len())
	assert.Equal(t, "p1", line.ProductID)
	assert.Equal(t, int64(2500), line.SubtotalMinor)
	assert.Equal(t, int64(2500), c.TotalMinor())
}

func TestAddItem_MergesSameProduct(t *testing.T) {
	c := New()
	p := newTestProduct("p1", "Cerveja", 1250, "48")

	c.AddItem(p, decimal.NewFromInt(2))
	line, _ := c.AddItem(p, decimal.NewFromInt(3))

	require.Equal(t, 1, c.Len())
	assert.True(t, decimal.NewFromInt(5).Equal(line.Quantity))
	assert.Equal(t, int64(6250), line.SubtotalMinor)
	assert.Equal(t, c.Lines()[0], line)
}

func TestAddItem_MergeReportsTheMergedLine(t *testing.T) {
	c := New()
	beer := newTestProduct("p1", "Cerveja", 1250, "48")
	coke := newTestProduct("p2", "Coca", 990, "24")

	c.AddItem(beer, decimal.NewFromInt(1))
	c.AddItem(coke, decimal.NewFromInt(1))
	line, _ := c.AddItem(beer, decimal.NewFromInt(1))

	// The merge landed on the first line, not the tail.
	assert.Equal(t, "p1", line.ProductID)
	assert.True(t, decimal.NewFromInt(2).Equal(line.Quantity))
	assert.Equal(t, int64(2500), line.SubtotalMinor)
}

func TestAddItem_LowStockAdvisory(t *testing.T) {
	c := New()
	p := newTestProduct("p1", "Queijo", 4590, "5.5")

	_, lowStock := c.AddItem(p, decimal.RequireFromString("5.5"))
	assert.False(t, lowStock)
	// One more gram pushes past the cached stock; the add still succeeds.
	_, lowStock = c.AddItem(p, decimal.RequireFromString("0.001"))
	assert.True(t, lowStock)
	assert.Equal(t, 1, c.Len())
}

func TestAddItem_FractionalQuantityRounding(t *testing.T) {
	c := New()
	p := newTestProduct("p1", "Queijo", 4590, "10")

	c.AddItem(p, decimal.RequireFromString("0.302"))

	// 0.302 * 4590 = 1386.18 → 1386 after half-away-from-zero rounding.
	assert.Equal(t, int64(1386), c.Lines()[0].SubtotalMinor)
}

func TestRemoveItem(t *testing.T) {
	c := New()
	c.AddItem(newTestProduct("p1", "A", 100, "10"), decimal.NewFromInt(1))
	c.AddItem(newTestProduct("p2", "B", 200, "10"), decimal.NewFromInt(1))

	c.RemoveItem("p1")

	require.Equal(t, 1, c.Len())
	assert.Equal(t, "p2", c.Lines()[0].ProductID)
	assert.Equal(t, int64(200), c.TotalMinor())
}

func TestRemoveItem_AbsentIsNoop(t *testing.T) {
	c := New()
	c.AddItem(newTestProduct("p1", "A", 100, "10"), decimal.NewFromInt(1))

	c.RemoveItem("missing")

	assert.Equal(t, 1, c.Len())
}

func TestRemoveLast(t *testing.T) {
	c := New()
	c.AddItem(newTestProduct("p1", "A", 100, "10"), decimal.NewFromInt(1))
	c.AddItem(newTestProduct("p2", "B", 200, "10"), decimal.NewFromInt(1))

	c.RemoveLast()

	require.Equal(t, 1, c.Len())
	assert.Equal(t, "p1", c.Lines()[0].ProductID)

	c.RemoveLast()
	c.RemoveLast() // empty cart: no-op
	assert.Equal(t, 0, c.Len())
}

func TestClear(t *testing.T) {
	c := New()
	c.AddItem(newTestProduct("p1", "A", 100, "10"), decimal.NewFromInt(1))

	c.Clear()

	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(0), c.TotalMinor())
}

func TestLines_ReturnsCopy(t *testing.T) {
	c := New()
	c.AddItem(newTestProduct("p1", "A", 100, "10"), decimal.NewFromInt(1))

	lines := c.Lines()
	lines[0].SubtotalMinor = 999

	assert.Equal(t, int64(100), c.Lines()[0].SubtotalMinor)
}
