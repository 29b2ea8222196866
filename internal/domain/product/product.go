package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is a snapshot of a catalog item. Prices are integer minor
// currency units (centavos); stock is fractional for weighed goods.
type Product struct {
	ID         string          `json:"id"`
	Barcode    string          `json:"barcode"`
	Name       string          `json:"name"`
	PriceMinor int64           `json:"priceMinor"`
	Stock      decimal.Decimal `json:"stock"`
	Unit       string          `json:"unit"`
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByBarcode(ctx context.Context, barcode string) (*Product, error)
	SearchByName(ctx context.Context, prefix string) ([]Product, error)
}
