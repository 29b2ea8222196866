// Package session models the cash drawer across one operating shift: the
// opening float, manual cash movements, per-method sale totals, and the
// closing reconciliation against physically counted cash.
package session

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/quitanda/pdv/internal/domain/sale"
)

// Status of the drawer. At most one OPEN session exists per terminal.
type Status string

const (
	StatusClosed Status = "CLOSED"
	StatusOpen   Status = "OPEN"
)

// MovementKind classifies a manual cash movement.
type MovementKind string

const (
	// MovementContribution is cash added to the drawer outside of sales.
	MovementContribution MovementKind = "CONTRIBUTION"
	// MovementWithdrawal is cash removed from the drawer outside of sales.
	MovementWithdrawal MovementKind = "WITHDRAWAL"
)

var (
	// ErrClosed rejects operations that require an open session.
	ErrClosed = errors.New("cashier session is closed")
	// ErrAlreadyOpen rejects opening a second session.
	ErrAlreadyOpen = errors.New("cashier session is already open")
	// ErrInvalidAmount rejects non-positive movement amounts.
	ErrInvalidAmount = errors.New("movement amount must be greater than zero")
)

// Movement is one manual cash in/out entry in the session history.
type Movement struct {
	ID          string       `json:"id"`
	Kind        MovementKind `json:"kind"`
	AmountMinor int64        `json:"amountMinor"`
	Note        string       `json:"note"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// State is the persistable snapshot of the session. It survives process
// restarts so an open drawer is not lost with the terminal.
type State struct {
	Status            Status     `json:"status"`
	OpeningFloatMinor int64      `json:"openingFloatMinor"`
	OpenedAt          time.Time  `json:"openedAt"`
	Movements         []Movement `json:"movements"`
	// SalesByMethod holds gross tender totals; change given is tracked
	// separately so the sold figures stay auditable against receipts.
	SalesByMethod    map[sale.Method]int64 `json:"salesByMethod"`
	ChangeGivenMinor int64                 `json:"changeGivenMinor"`
	SaleCount        int                   `json:"saleCount"`
}

// MethodReport is the reconciliation for a single payment method. SoldMinor
// is the gross tender total; for CASH it differs from ExpectedMinor, which
// accounts for the float, change given, and manual movements.
type MethodReport struct {
	Method          sale.Method `json:"method"`
	SoldMinor       int64       `json:"soldMinor"`
	ExpectedMinor   int64       `json:"expectedMinor"`
	CountedMinor    int64       `json:"countedMinor"`
	DifferenceMinor int64       `json:"differenceMinor"`
}

// CloseReport is the archived result of closing a session. A non-zero
// difference is reported but never blocks closing.
type CloseReport struct {
	OpenedAt          time.Time      `json:"openedAt"`
	ClosedAt          time.Time      `json:"closedAt"`
	OpeningFloatMinor int64          `json:"openingFloatMinor"`
	SaleCount         int            `json:"saleCount"`
	Movements         []Movement     `json:"movements"`
	Methods           []MethodReport `json:"methods"`
}

// Store persists the live session state and archives close reports.
type Store interface {
	SaveSession(st *State) error
	LoadSession() (*State, error)
	ArchiveReport(r CloseReport) error
}

// Ledger is the cash drawer state machine. It is driven from the terminal
// engine goroutine; the store is invoked after every mutation so a crash
// cannot lose an open drawer.
type Ledger struct {
	store Store
	state *State
	now   func() time.Time
}

// NewLedger restores the session from the store, starting CLOSED when no
// prior state exists.
func NewLedger(store Store) (*Ledger, error) {
	st, err := store.LoadSession()
	if err != nil {
		return nil, errors.Wrap(err, "load session")
	}
	if st == nil {
		st = &State{Status: StatusClosed}
	}
	return &Ledger{store: store, state: st, now: time.Now}, nil
}

// Open starts a new session with the given opening float.
func (l *Ledger) Open(openingFloatMinor int64) error {
	if l.state.Status == StatusOpen {
		return ErrAlreadyOpen
	}
	if openingFloatMinor < 0 {
		return ErrInvalidAmount
	}
	l.state = &State{
		Status:            StatusOpen,
		OpeningFloatMinor: openingFloatMinor,
		OpenedAt:          l.now(),
		SalesByMethod:     make(map[sale.Method]int64),
	}
	return l.persist()
}

// Status returns the current drawer status.
func (l *Ledger) Status() Status {
	return l.state.Status
}

// RecordMovement appends a contribution or withdrawal to the history.
func (l *Ledger) RecordMovement(kind MovementKind, amountMinor int64, note string) error {
	if l.state.Status != StatusOpen {
		return ErrClosed
	}
	if amountMinor <= 0 {
		return ErrInvalidAmount
	}
	l.state.Movements = append(l.state.Movements, Movement{
		ID:          uuid.New().String(),
		Kind:        kind,
		AmountMinor: amountMinor,
		Note:        note,
		CreatedAt:   l.now(),
	})
	return l.persist()
}

// RecordSale accumulates a committed sale's payments into the gross
// per-method totals. Change given is accounted on its own: it leaves the
// drawer in cash but must not shrink the reported cash sales. Sales are only
// permitted while the session is open.
func (l *Ledger) RecordSale(s *sale.Sale) error {
	if l.state.Status != StatusOpen {
		return ErrClosed
	}
	for _, p := range s.Payments {
		l.state.SalesByMethod[p.Method] += p.AmountMinor
	}
	l.state.ChangeGivenMinor += s.ChangeMinor
	l.state.SaleCount++
	return l.persist()
}

// ExpectedCashMinor is opening float + gross cash sales - change given
// + contributions - withdrawals.
func (l *Ledger) ExpectedCashMinor() int64 {
	expected := l.state.OpeningFloatMinor + l.state.SalesByMethod[sale.MethodCash] - l.state.ChangeGivenMinor
	for _, m := range l.state.Movements {
		switch m.Kind {
		case MovementContribution:
			expected += m.AmountMinor
		case MovementWithdrawal:
			expected -= m.AmountMinor
		}
	}
	return expected
}

// Close reconciles counted amounts against expectations per method,
// archives the report, and returns the drawer to CLOSED. For CASH the
// expectation includes the float and manual movements; for every other
// method it is simply the sales total.
func (l *Ledger) Close(countedByMethod map[sale.Method]int64) (*CloseReport, error) {
	if l.state.Status != StatusOpen {
		return nil, ErrClosed
	}

	methods := make(map[sale.Method]struct{}, len(l.state.SalesByMethod)+len(countedByMethod)+1)
	methods[sale.MethodCash] = struct{}{}
	for m := range l.state.SalesByMethod {
		methods[m] = struct{}{}
	}
	for m := range countedByMethod {
		methods[m] = struct{}{}
	}

	report := &CloseReport{
		OpenedAt:          l.state.OpenedAt,
		ClosedAt:          l.now(),
		OpeningFloatMinor: l.state.OpeningFloatMinor,
		SaleCount:         l.state.SaleCount,
		Movements:         l.state.Movements,
	}
	for _, m := range orderedMethods(methods) {
		expected := l.state.SalesByMethod[m]
		if m == sale.MethodCash {
			expected = l.ExpectedCashMinor()
		}
		counted := countedByMethod[m]
		report.Methods = append(report.Methods, MethodReport{
			Method:          m,
			SoldMinor:       l.state.SalesByMethod[m],
			ExpectedMinor:   expected,
			CountedMinor:    counted,
			DifferenceMinor: counted - expected,
		})
	}

	if err := l.store.ArchiveReport(*report); err != nil {
		return nil, errors.Wrap(err, "archive close report")
	}

	l.state = &State{Status: StatusClosed}
	if err := l.persist(); err != nil {
		return nil, err
	}
	return report, nil
}

func (l *Ledger) persist() error {
	if err := l.store.SaveSession(l.state); err != nil {
		return errors.Wrap(err, "save session")
	}
	return nil
}

// orderedMethods returns methods in a stable audit order.
func orderedMethods(set map[sale.Method]struct{}) []sale.Method {
	order := []sale.Method{sale.MethodCash, sale.MethodDebit, sale.MethodCredit, sale.MethodPix, sale.MethodOther}
	out := make([]sale.Method, 0, len(set))
	for _, m := range order {
		if _, ok := set[m]; ok {
			out = append(out, m)
		}
	}
	return out
}
