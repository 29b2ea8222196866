// Package catalog keeps a local read-only snapshot of the product catalog
// so lookups keep working when the remote service is unreachable.
package catalog

import (
	"context"
	"strings"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/quitanda/pdv/internal/domain/product"
)

const (
	// bloomCapacity sizes the barcode filter well above any realistic
	// single-store catalog.
	bloomCapacity = 100_000
	bloomFPR      = 0.001
)

// Remote is the subset of the remote catalog API the cache consumes.
type Remote interface {
	List(ctx context.Context) ([]product.Product, error)
	GetByBarcode(ctx context.Context, barcode string) (*product.Product, error)
}

// Snapshot persists the local copy of the catalog.
type Snapshot interface {
	SaveCatalog(products []product.Product) error
	CatalogProduct(barcode string) (*product.Product, error)
	CatalogProducts() ([]product.Product, error)
}

// Cache answers product lookups remote-first, falling back to the local
// snapshot. A bloom filter over snapshot barcodes short-circuits definite
// misses while offline, so a mistyped code fails fast instead of scanning.
type Cache struct {
	remote   Remote
	snapshot Snapshot
	lg       *zap.Logger

	mu     sync.RWMutex
	filter *bloom.BloomFilter
}

// New builds the cache and primes the bloom filter from whatever snapshot
// is already on disk.
func New(remote Remote, snapshot Snapshot, lg *zap.Logger) (*Cache, error) {
	c := &Cache{remote: remote, snapshot: snapshot, lg: lg}

	products, err := snapshot.CatalogProducts()
	if err != nil {
		return nil, errors.Wrap(err, "prime catalog cache")
	}
	c.rebuildFilter(products)
	return c, nil
}

// Refresh replaces the snapshot with the remote catalog. Failures leave the
// previous snapshot intact; the sale path never depends on a refresh.
func (c *Cache) Refresh(ctx context.Context) error {
	products, err := c.remote.List(ctx)
	if err != nil {
		return errors.Wrap(err, "fetch remote catalog")
	}
	if err := c.snapshot.SaveCatalog(products); err != nil {
		return errors.Wrap(err, "save catalog snapshot")
	}
	c.rebuildFilter(products)
	c.lg.Info("Catalog snapshot refreshed", zap.Int("products", len(products)))
	return nil
}

// Lookup resolves a barcode, preferring the remote catalog for freshness
// and falling back to the snapshot when the remote is unreachable. A
// remote NotFound is authoritative and is not retried locally.
func (c *Cache) Lookup(ctx context.Context, barcode string) (*product.Product, error) {
	p, err := c.remote.GetByBarcode(ctx, barcode)
	if err == nil {
		return p, nil
	}
	if errors.Is(err, product.ErrNotFound) {
		return nil, product.ErrNotFound
	}

	c.lg.Debug("Remote catalog unreachable, using snapshot", zap.Error(err))

	if !c.mightContain(barcode) {
		return nil, product.ErrNotFound
	}
	p, snapErr := c.snapshot.CatalogProduct(barcode)
	if errors.Is(snapErr, product.ErrNotFound) {
		// Scale labels zero-pad short product codes.
		if trimmed := strings.TrimLeft(barcode, "0"); trimmed != "" && trimmed != barcode {
			p, snapErr = c.snapshot.CatalogProduct(trimmed)
		}
	}
	if snapErr != nil {
		if errors.Is(snapErr, product.ErrNotFound) {
			return nil, product.ErrNotFound
		}
		return nil, snapErr
	}
	return p, nil
}

// SearchPrefix returns snapshot products whose name starts with the query,
// case-insensitively. Prefix search always runs on the snapshot: it backs
// the operator's type-ahead and must stay fast offline.
func (c *Cache) SearchPrefix(prefix string) ([]product.Product, error) {
	products, err := c.snapshot.CatalogProducts()
	if err != nil {
		return nil, errors.Wrap(err, "load catalog snapshot")
	}

	prefix = strings.ToLower(prefix)
	var out []product.Product
	for _, p := range products {
		if strings.HasPrefix(strings.ToLower(p.Name), prefix) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (c *Cache) rebuildFilter(products []product.Product) {
	filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
	for _, p := range products {
		filter.AddString(p.Barcode)
		// Scale labels embed zero-padded short codes; both spellings must hit.
		filter.AddString(strings.TrimLeft(p.Barcode, "0"))
	}

	c.mu.Lock()
	c.filter = filter
	c.mu.Unlock()
}

func (c *Cache) mightContain(barcode string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.filter.TestString(barcode) || c.filter.TestString(strings.TrimLeft(barcode, "0"))
}
