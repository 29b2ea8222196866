// Package bolt is the terminal-local persistent store. Everything the
// terminal must not lose across restarts lives in one bbolt file: the
// catalog snapshot, the cashier session, the closed-session report archive,
// and the offline sale queue (managed by the queue package over the same DB).
package bolt

import (
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	bbolt "go.etcd.io/bbolt"

	"github.com/quitanda/pdv/internal/domain/product"
	"github.com/quitanda/pdv/internal/domain/session"
)

var (
	bucketCatalog = []byte("catalog")
	bucketSession = []byte("session")
	bucketReports = []byte("reports")

	keySession = []byte("current")
)

// Store wraps a bbolt database file.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if needed) the store at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open local store %s", path)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketCatalog, bucketSession, bucketReports} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return errors.Wrapf(err, "create bucket %s", name)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying database for packages that manage their own
// bucket (the offline queue).
func (s *Store) DB() *bbolt.DB {
	return s.db
}

// --- Catalog snapshot ---

// SaveCatalog replaces the snapshot with the given products, keyed by
// barcode.
func (s *Store) SaveCatalog(products []product.Product) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketCatalog); err != nil {
			return errors.Wrap(err, "reset catalog bucket")
		}
		b, err := tx.CreateBucket(bucketCatalog)
		if err != nil {
			return errors.Wrap(err, "recreate catalog bucket")
		}
		for _, p := range products {
			data, err := json.Marshal(p)
			if err != nil {
				return errors.Wrapf(err, "marshal product %s", p.ID)
			}
			if err := b.Put([]byte(p.Barcode), data); err != nil {
				return errors.Wrapf(err, "store product %s", p.ID)
			}
		}
		return nil
	})
}

// CatalogProduct looks up a snapshot product by barcode.
func (s *Store) CatalogProduct(barcode string) (*product.Product, error) {
	var p *product.Product
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketCatalog).Get([]byte(barcode))
		if data == nil {
			return nil
		}
		p = new(product.Product)
		return json.Unmarshal(data, p)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "load product %s", barcode)
	}
	if p == nil {
		return nil, product.ErrNotFound
	}
	return p, nil
}

// CatalogProducts returns every product in the snapshot.
func (s *Store) CatalogProducts() ([]product.Product, error) {
	var out []product.Product
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCatalog).ForEach(func(_, data []byte) error {
			var p product.Product
			if err := json.Unmarshal(data, &p); err != nil {
				return err
			}
			out = append(out, p)
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "load catalog snapshot")
	}
	return out, nil
}

// --- Cashier session ---

var _ session.Store = (*Store)(nil)

// SaveSession persists the live session state.
func (s *Store) SaveSession(st *session.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return errors.Wrap(err, "marshal session")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSession).Put(keySession, data)
	})
}

// LoadSession returns the persisted session state, or nil when none exists.
func (s *Store) LoadSession() (*session.State, error) {
	var st *session.State
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketSession).Get(keySession)
		if data == nil {
			return nil
		}
		st = new(session.State)
		return json.Unmarshal(data, st)
	})
	if err != nil {
		return nil, errors.Wrap(err, "load session")
	}
	return st, nil
}

// ArchiveReport appends a close report keyed by its closing timestamp.
func (s *Store) ArchiveReport(r session.CloseReport) error {
	data, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "marshal close report")
	}
	key := []byte(r.ClosedAt.UTC().Format(time.RFC3339Nano))
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketReports).Put(key, data)
	})
}

// Reports returns archived close reports, oldest first.
func (s *Store) Reports() ([]session.CloseReport, error) {
	var out []session.CloseReport
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketReports).ForEach(func(_, data []byte) error {
			var r session.CloseReport
			if err := json.Unmarshal(data, &r); err != nil {
				return err
			}
			out = append(out, r)
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "load report archive")
	}
	return out, nil
}
