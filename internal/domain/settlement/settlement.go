// Package settlement accumulates tenders against a fixed cart total and
// gates commit on the remaining balance reaching zero.
package settlement

import (
	"github.com/go-faster/errors"

	"github.com/quitanda/pdv/internal/domain/sale"
)

// State of the settlement. Transitions are forward-only: OPEN accumulates
// tenders, SETTLED means remaining == 0, COMMITTED is terminal.
type State string

const (
	StateOpen      State = "OPEN"
	StateSettled   State = "SETTLED"
	StateCommitted State = "COMMITTED"
)

var (
	// ErrInvalidAmount rejects non-positive tender amounts.
	ErrInvalidAmount = errors.New("tender amount must be greater than zero")
	// ErrNotSettled rejects commit while a balance remains.
	ErrNotSettled = errors.New("settlement has remaining balance")
	// ErrAlreadyCommitted rejects mutation of a committed settlement.
	ErrAlreadyCommitted = errors.New("settlement already committed")
)

// Settlement tracks tenders toward a total. Tender order is insertion
// order and is used only for audit display, never for allocation.
type Settlement struct {
	totalMinor int64
	tenders    []sale.Payment
	committed  bool
}

// New starts an open settlement for the given cart total.
func New(totalMinor int64) *Settlement {
	return &Settlement{totalMinor: totalMinor}
}

// AddTender appends a tender and recomputes the balance. There is no upper
// bound on the amount paid; excess becomes change.
func (s *Settlement) AddTender(method sale.Method, amountMinor int64) error {
	if s.committed {
		return ErrAlreadyCommitted
	}
	if amountMinor <= 0 {
		return ErrInvalidAmount
	}
	s.tenders = append(s.tenders, sale.Payment{Method: method, AmountMinor: amountMinor})
	return nil
}

// TotalMinor is the cart total this settlement was opened for.
func (s *Settlement) TotalMinor() int64 {
	return s.totalMinor
}

// TotalPaidMinor sums all tender amounts.
func (s *Settlement) TotalPaidMinor() int64 {
	var paid int64
	for _, t := range s.tenders {
		paid += t.AmountMinor
	}
	return paid
}

// RemainingMinor is max(0, total - paid).
func (s *Settlement) RemainingMinor() int64 {
	if r := s.totalMinor - s.TotalPaidMinor(); r > 0 {
		return r
	}
	return 0
}

// ChangeMinor is max(0, paid - total). Change is returned to the customer
// and recorded on the sale, never persisted as a tender.
func (s *Settlement) ChangeMinor() int64 {
	if c := s.TotalPaidMinor() - s.totalMinor; c > 0 {
		return c
	}
	return 0
}

// Settled reports whether the remaining balance is zero.
func (s *Settlement) Settled() bool {
	return s.RemainingMinor() == 0
}

// State derives the current state.
func (s *Settlement) State() State {
	switch {
	case s.committed:
		return StateCommitted
	case s.Settled():
		return StateSettled
	default:
		return StateOpen
	}
}

// Tenders returns the recorded tenders in insertion order.
func (s *Settlement) Tenders() []sale.Payment {
	out := make([]sale.Payment, len(s.tenders))
	copy(out, s.tenders)
	return out
}

// MarkCommitted moves the settlement to its terminal state. It fails with
// ErrNotSettled while a balance remains.
func (s *Settlement) MarkCommitted() error {
	if s.committed {
		return ErrAlreadyCommitted
	}
	if !s.Settled() {
		return ErrNotSettled
	}
	s.committed = true
	return nil
}
