// Package sale defines the committed sale record and the contract for
// committing one atomically against the durable store.
package sale

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Method is a payment instrument.
type Method string

const (
	MethodCash   Method = "CASH"
	MethodDebit  Method = "DEBIT"
	MethodCredit Method = "CREDIT"
	MethodPix    Method = "PIX"
	MethodOther  Method = "OTHER"
)

// ParseMethod normalizes a payment method label. Portuguese labels from the
// legacy terminal UI are accepted alongside the canonical names; anything
// unrecognized maps to OTHER.
func ParseMethod(s string) Method {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CASH", "DINHEIRO":
		return MethodCash
	case "DEBIT", "DEBITO", "DÉBITO":
		return MethodDebit
	case "CREDIT", "CREDITO", "CRÉDITO":
		return MethodCredit
	case "PIX":
		return MethodPix
	default:
		return MethodOther
	}
}

// StatusCompleted is the only status a persisted sale can carry.
const StatusCompleted = "COMPLETED"

// Sentinel errors for commit validation.
var (
	ErrEmptyCart = errors.New("sale has no items")
	ErrNoTender  = errors.New("sale has no payments")
	// ErrDuplicateClientID signals that a sale with the same client-generated
	// id was already committed. Callers treat it as confirmation, not failure.
	ErrDuplicateClientID = errors.New("sale already committed for client id")
)

// ProductNotFoundError indicates a cart line references a product that no
// longer exists in the durable store.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// Line freezes a product's name and price at the moment of sale.
type Line struct {
	ProductID        string          `json:"productId"`
	Name             string          `json:"name"`
	Quantity         decimal.Decimal `json:"quantity"`
	PriceAtSaleMinor int64           `json:"priceAtSaleMinor"`
	SubtotalMinor    int64           `json:"subtotalMinor"`
}

// Payment is one tender applied to the sale.
type Payment struct {
	Method      Method `json:"method"`
	AmountMinor int64  `json:"amountMinor"`
}

// Sale is the durable record of a completed sale.
type Sale struct {
	ID             string    `json:"id"`
	ClientID       string    `json:"clientId"`
	TotalMinor     int64     `json:"totalMinor"`
	TotalPaidMinor int64     `json:"totalPaidMinor"`
	ChangeMinor    int64     `json:"changeMinor"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
	Items          []Line    `json:"items"`
	Payments       []Payment `json:"payments"`
}

// CommitRequest is the typed payload crossing the commit boundary. ClientID
// is assigned by the terminal and is the idempotency key for offline replay.
type CommitRequest struct {
	ClientID       string    `json:"clientId"`
	Lines          []Line    `json:"lines"`
	Tenders        []Payment `json:"tenders"`
	TotalMinor     int64     `json:"totalMinor"`
	TotalPaidMinor int64     `json:"totalPaidMinor"`
	ChangeMinor    int64     `json:"changeMinor"`
}

// Validate rejects structurally empty requests. The server-side committer
// runs the same checks inside the transaction; this copy exists so the
// terminal can fail fast without a round trip.
func (r *CommitRequest) Validate() error {
	if len(r.Lines) == 0 {
		return ErrEmptyCart
	}
	if len(r.Tenders) == 0 {
		return ErrNoTender
	}
	return nil
}

// Committer persists a sale atomically: the sale record, its lines and
// payments, and the stock decrement for every sold product all succeed or
// none do. A duplicate ClientID returns the previously committed sale
// together with ErrDuplicateClientID.
type Committer interface {
	Commit(ctx context.Context, req CommitRequest) (*Sale, error)
}
