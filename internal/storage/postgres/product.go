package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quitanda/pdv/internal/domain/product"
)

const (
	listProductsSQL = `SELECT id, barcode, name, price_minor, stock, unit
		FROM products ORDER BY name`

	getProductByBarcodeSQL = `SELECT id, barcode, name, price_minor, stock, unit
		FROM products WHERE barcode = $1`

	searchProductsByNameSQL = `SELECT id, barcode, name, price_minor, stock, unit
		FROM products WHERE lower(name) LIKE lower($1) || '%' ORDER BY name`

	upsertProductSQL = `INSERT INTO products (id, barcode, name, price_minor, stock, unit)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (barcode) DO UPDATE
		SET name = EXCLUDED.name, price_minor = EXCLUDED.price_minor,
		    stock = EXCLUDED.stock, unit = EXCLUDED.unit`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns the full catalog ordered by name.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByBarcode returns a single product by its barcode. Short codes
// (label-embedded product codes) are retried with leading zeros stripped,
// matching the id the scale was configured with.
func (r *ProductRepository) GetByBarcode(ctx context.Context, barcode string) (*product.Product, error) {
	p, err := r.getByBarcode(ctx, barcode)
	if errors.Is(err, product.ErrNotFound) {
		if trimmed := strings.TrimLeft(barcode, "0"); trimmed != "" && trimmed != barcode {
			return r.getByBarcode(ctx, trimmed)
		}
	}
	return p, err
}

func (r *ProductRepository) getByBarcode(ctx context.Context, barcode string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByBarcodeSQL, barcode)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", barcode, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", barcode, err)
	}
	return &p, nil
}

// SearchByName returns products whose name starts with the given prefix.
func (r *ProductRepository) SearchByName(ctx context.Context, prefix string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, searchProductsByNameSQL, prefix)
	if err != nil {
		return nil, fmt.Errorf("searching products %q: %w", prefix, err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Upsert inserts or updates a product keyed by barcode. Used by the seed and
// bulk-import commands.
func (r *ProductRepository) Upsert(ctx context.Context, p product.Product) error {
	if _, err := r.pool.Exec(ctx, upsertProductSQL,
		p.ID, p.Barcode, p.Name, p.PriceMinor, p.Stock, p.Unit,
	); err != nil {
		return fmt.Errorf("upserting product %q: %w", p.Barcode, err)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Barcode, &p.Name, &p.PriceMinor, &p.Stock, &p.Unit)
	return p, err
}
