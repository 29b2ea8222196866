package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quitanda/pdv/internal/domain/sale"
)

const (
	lockProductSQL = `SELECT id FROM products WHERE id = $1 FOR UPDATE`

	decrementStockSQL = `UPDATE products SET stock = stock - $2 WHERE id = $1`

	insertSaleSQL = `INSERT INTO sales (id, client_id, total_minor, total_paid_minor, change_minor, status)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at`

	insertSaleItemSQL = `INSERT INTO sale_items (sale_id, product_id, name, quantity, price_at_sale_minor, subtotal_minor)
		VALUES ($1, $2, $3, $4, $5, $6)`

	insertSalePaymentSQL = `INSERT INTO sale_payments (sale_id, method, amount_minor)
		VALUES ($1, $2, $3)`

	getSaleByClientIDSQL = `SELECT id, client_id, total_minor, total_paid_minor, change_minor, status, created_at
		FROM sales WHERE client_id = $1`

	getSaleItemsSQL = `SELECT product_id, name, quantity, price_at_sale_minor, subtotal_minor
		FROM sale_items WHERE sale_id = $1 ORDER BY id`

	getSalePaymentsSQL = `SELECT method, amount_minor
		FROM sale_payments WHERE sale_id = $1 ORDER BY id`

	salesSinceSQL = `SELECT s.id, s.client_id, s.total_minor, s.total_paid_minor, s.change_minor, s.status, s.created_at
		FROM sales s WHERE s.created_at >= $1 ORDER BY s.created_at`

	uniqueViolationCode = "23505"
)

var _ sale.Committer = (*SaleRepository)(nil)

// SaleRepository persists sales in PostgreSQL. Commit is the all-or-nothing
// core of the system: sale, lines, payments, and stock decrements share one
// transaction.
type SaleRepository struct {
	pool *pgxpool.Pool
}

// NewSaleRepository returns a SaleRepository that uses the given pool.
func NewSaleRepository(pool *pgxpool.Pool) *SaleRepository {
	return &SaleRepository{pool: pool}
}

// Commit atomically records a sale and decrements stock for every line.
//
// Each product row is locked with SELECT ... FOR UPDATE before its stock is
// touched, so concurrent sales of the same product serialize instead of
// read-modify-writing stale counts. Stock may go negative: oversell is an
// accepted business outcome, a missing product row is not.
//
// The client-assigned id dedupes offline replays. When a sale with the same
// ClientID already exists, the previously committed sale is returned with
// ErrDuplicateClientID and no stock is touched.
func (r *SaleRepository) Commit(ctx context.Context, req sale.CommitRequest) (*sale.Sale, error) {
	var committed *sale.Sale

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		// Validation runs inside the transaction: the terminal-side cart can
		// be stale relative to concurrent catalog writes.
		if err := req.Validate(); err != nil {
			return err
		}

		if existing, err := r.findByClientID(ctx, tx, req.ClientID); err != nil {
			return err
		} else if existing != nil {
			committed = existing
			return sale.ErrDuplicateClientID
		}

		for _, line := range req.Lines {
			var id string
			if err := tx.QueryRow(ctx, lockProductSQL, line.ProductID).Scan(&id); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return &sale.ProductNotFoundError{ProductID: line.ProductID}
				}
				return fmt.Errorf("locking product %q: %w", line.ProductID, err)
			}
			if _, err := tx.Exec(ctx, decrementStockSQL, line.ProductID, line.Quantity); err != nil {
				return fmt.Errorf("decrementing stock for %q: %w", line.ProductID, err)
			}
		}

		s := &sale.Sale{
			ID:             uuid.New().String(),
			ClientID:       req.ClientID,
			TotalMinor:     req.TotalMinor,
			TotalPaidMinor: req.TotalPaidMinor,
			ChangeMinor:    req.ChangeMinor,
			Status:         sale.StatusCompleted,
			Items:          req.Lines,
			Payments:       req.Tenders,
		}

		err := tx.QueryRow(ctx, insertSaleSQL,
			s.ID, s.ClientID, s.TotalMinor, s.TotalPaidMinor, s.ChangeMinor, s.Status,
		).Scan(&s.CreatedAt)
		if err != nil {
			// Backstop for a replay racing this transaction: the unique
			// constraint on client_id wins where the pre-check cannot.
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
				return sale.ErrDuplicateClientID
			}
			return fmt.Errorf("inserting sale %q: %w", s.ID, err)
		}

		for _, line := range s.Items {
			if _, err := tx.Exec(ctx, insertSaleItemSQL,
				s.ID, line.ProductID, line.Name, line.Quantity, line.PriceAtSaleMinor, line.SubtotalMinor,
			); err != nil {
				return fmt.Errorf("inserting sale item %q: %w", line.ProductID, err)
			}
		}

		for _, p := range s.Payments {
			if _, err := tx.Exec(ctx, insertSalePaymentSQL, s.ID, string(p.Method), p.AmountMinor); err != nil {
				return fmt.Errorf("inserting sale payment: %w", err)
			}
		}

		committed = s
		return nil
	})

	if errors.Is(err, sale.ErrDuplicateClientID) {
		if committed == nil {
			// Lost the insert race: the winner's sale is visible now.
			existing, lookupErr := r.GetByClientID(ctx, req.ClientID)
			if lookupErr != nil {
				return nil, lookupErr
			}
			committed = existing
		}
		return committed, sale.ErrDuplicateClientID
	}
	if err != nil {
		return nil, err
	}
	return committed, nil
}

// GetByClientID loads a committed sale with its items and payments.
func (r *SaleRepository) GetByClientID(ctx context.Context, clientID string) (*sale.Sale, error) {
	s, err := r.findByClientID(ctx, r.pool, clientID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, errors.Errorf("sale with client id %q not found", clientID)
	}
	return s, nil
}

// SalesSince returns sales committed at or after the given time, oldest
// first. It feeds the cashier close report and the daily sales summary.
func (r *SaleRepository) SalesSince(ctx context.Context, since time.Time) ([]sale.Sale, error) {
	rows, err := r.pool.Query(ctx, salesSinceSQL, since)
	if err != nil {
		return nil, fmt.Errorf("listing sales: %w", err)
	}
	heads, err := pgx.CollectRows(rows, scanSale)
	if err != nil {
		return nil, err
	}

	out := make([]sale.Sale, 0, len(heads))
	for _, s := range heads {
		if err := r.loadDetails(ctx, r.pool, &s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// querier is satisfied by both pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *SaleRepository) findByClientID(ctx context.Context, q querier, clientID string) (*sale.Sale, error) {
	rows, err := q.Query(ctx, getSaleByClientIDSQL, clientID)
	if err != nil {
		return nil, fmt.Errorf("finding sale by client id %q: %w", clientID, err)
	}
	s, err := pgx.CollectExactlyOneRow(rows, scanSale)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding sale by client id %q: %w", clientID, err)
	}
	if err := r.loadDetails(ctx, q, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SaleRepository) loadDetails(ctx context.Context, q querier, s *sale.Sale) error {
	itemRows, err := q.Query(ctx, getSaleItemsSQL, s.ID)
	if err != nil {
		return fmt.Errorf("loading items for sale %q: %w", s.ID, err)
	}
	s.Items, err = pgx.CollectRows(itemRows, scanSaleLine)
	if err != nil {
		return fmt.Errorf("loading items for sale %q: %w", s.ID, err)
	}

	paymentRows, err := q.Query(ctx, getSalePaymentsSQL, s.ID)
	if err != nil {
		return fmt.Errorf("loading payments for sale %q: %w", s.ID, err)
	}
	s.Payments, err = pgx.CollectRows(paymentRows, scanSalePayment)
	if err != nil {
		return fmt.Errorf("loading payments for sale %q: %w", s.ID, err)
	}
	return nil
}

func scanSale(row pgx.CollectableRow) (sale.Sale, error) {
	var s sale.Sale
	err := row.Scan(&s.ID, &s.ClientID, &s.TotalMinor, &s.TotalPaidMinor, &s.ChangeMinor, &s.Status, &s.CreatedAt)
	return s, err
}

func scanSaleLine(row pgx.CollectableRow) (sale.Line, error) {
	var l sale.Line
	err := row.Scan(&l.ProductID, &l.Name, &l.Quantity, &l.PriceAtSaleMinor, &l.SubtotalMinor)
	return l, err
}

func scanSalePayment(row pgx.CollectableRow) (sale.Payment, error) {
	var p sale.Payment
	var method string
	err := row.Scan(&method, &p.AmountMinor)
	p.Method = sale.Method(method)
	return p, err
}
