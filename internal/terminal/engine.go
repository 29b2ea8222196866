// Package terminal is the sale-side engine: one goroutine owns the cart,
// the settlement, and the cashier session, and every external trigger
// (scans, tenders, cashier operations, sync ticks, connectivity events)
// reaches that state as a message. There is no interleaving to reason
// about: two cart mutations can never race.
package terminal

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/quitanda/pdv/internal/barcode"
	"github.com/quitanda/pdv/internal/catalog"
	"github.com/quitanda/pdv/internal/client"
	"github.com/quitanda/pdv/internal/domain/cart"
	"github.com/quitanda/pdv/internal/domain/product"
	"github.com/quitanda/pdv/internal/domain/sale"
	"github.com/quitanda/pdv/internal/domain/session"
	"github.com/quitanda/pdv/internal/domain/settlement"
	"github.com/quitanda/pdv/internal/queue"
)

// ErrSessionClosed gates all selling on an open cashier session.
var ErrSessionClosed = session.ErrClosed

// AmbiguousMatchError is returned when a name-prefix query matches more
// than one product; the operator must narrow the search.
type AmbiguousMatchError struct {
	Query      string
	Candidates []product.Product
}

func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("query %q matches %d products", e.Query, len(e.Candidates))
}

// ScanOutcome reports the cart effect of one resolved scan.
type ScanOutcome struct {
	Line       cart.Line
	LowStock   bool
	TotalMinor int64
}

// SaleOutcome reports the result of completing a sale. Offline is true when
// the commit was persisted to the durability queue instead of the remote
// store; the sale is then nil until sync confirms it.
type SaleOutcome struct {
	Sale    *sale.Sale
	Offline bool
}

// Config holds the background loop intervals.
type Config struct {
	// SyncInterval paces offline queue replay.
	SyncInterval time.Duration
	// PingInterval paces connectivity probing.
	PingInterval time.Duration
	// CatalogRefreshInterval paces catalog snapshot refresh.
	CatalogRefreshInterval time.Duration
}

// Engine wires the terminal-side components behind a single-goroutine actor.
type Engine struct {
	cfg      Config
	lg       *zap.Logger
	catalog  *catalog.Cache
	commit   sale.Committer
	pinger   Pinger
	queue    *queue.Queue
	ledger   *session.Ledger
	cart     *cart.Cart
	settle   *settlement.Settlement
	clientID string

	mailbox  chan message
	restored chan struct{}
}

type message struct {
	fn   func()
	done chan struct{}
}

// New assembles an engine. Run must be started before any operation is
// invoked.
func New(cfg Config, cat *catalog.Cache, commit sale.Committer, pinger Pinger, q *queue.Queue, ledger *session.Ledger, lg *zap.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		lg:       lg,
		catalog:  cat,
		commit:   commit,
		pinger:   pinger,
		queue:    q,
		ledger:   ledger,
		cart:     cart.New(),
		mailbox:  make(chan message),
		restored: make(chan struct{}, 1),
	}
}

// Run drives the actor loop and the background loops until the context is
// cancelled. Catalog sync and offline-sale sync are independent: a failure
// in one never stalls the other.
func (e *Engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.loop(ctx) })
	g.Go(func() error { return e.syncLoop(ctx, e.cfg.SyncInterval) })
	g.Go(func() error { return e.watchConnectivity(ctx, e.pinger, e.cfg.PingInterval) })
	g.Go(func() error { return e.refreshCatalog(ctx, e.cfg.CatalogRefreshInterval) })
	return g.Wait()
}

func (e *Engine) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-e.mailbox:
			msg.fn()
			close(msg.done)
		}
	}
}

// do runs fn on the engine goroutine and waits for it to finish.
func (e *Engine) do(ctx context.Context, fn func()) error {
	msg := message{fn: fn, done: make(chan struct{})}
	select {
	case e.mailbox <- msg:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-msg.done:
		return nil
	case <-ctx.Done():
		// fn already owns the engine goroutine; let it finish.
		<-msg.done
		return nil
	}
}

// NotifyConnectivityRestored nudges the sync loop to drain immediately.
// Duplicate notifications coalesce.
func (e *Engine) NotifyConnectivityRestored() {
	select {
	case e.restored <- struct{}{}:
	default:
	}
}

// --- Cart ---

// Scan resolves raw scanner or keyboard input and adds the result to the
// cart. Scale labels imply a weighed quantity, "N*code" multiplies, and
// anything else is a barcode or name prefix.
func (e *Engine) Scan(ctx context.Context, input string) (ScanOutcome, error) {
	var (
		out ScanOutcome
		err error
	)
	if postErr := e.do(ctx, func() { out, err = e.scan(ctx, input) }); postErr != nil {
		return ScanOutcome{}, postErr
	}
	return out, err
}

func (e *Engine) scan(ctx context.Context, input string) (ScanOutcome, error) {
	parsed, err := barcode.Parse(input)
	if err != nil {
		return ScanOutcome{}, err
	}

	p, err := e.resolve(ctx, parsed)
	if err != nil {
		return ScanOutcome{}, err
	}

	quantity := decimal.NewFromInt(1)
	switch parsed.Kind {
	case barcode.KindScaleLabel:
		if p.PriceMinor <= 0 {
			return ScanOutcome{}, errors.Errorf("product %s has no unit price for weighing", p.ID)
		}
		quantity = barcode.WeighedQuantity(parsed.LabelPriceMinor, p.PriceMinor)
	case barcode.KindMultiplied:
		quantity = parsed.Quantity
	}

	line, lowStock := e.cart.AddItem(*p, quantity)
	if lowStock {
		e.lg.Warn("Quantity exceeds cached stock",
			zap.String("product", p.Name),
			zap.String("quantity", quantity.String()),
		)
	}
	e.resetSettlementTotal()

	return ScanOutcome{
		Line:       line,
		LowStock:   lowStock,
		TotalMinor: e.cart.TotalMinor(),
	}, nil
}

// resolve finds the product for a parsed scan: exact barcode against the
// catalog cache (remote first, snapshot fallback), then name prefix.
func (e *Engine) resolve(ctx context.Context, parsed barcode.ScanResult) (*product.Product, error) {
	p, err := e.catalog.Lookup(ctx, parsed.Code)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, product.ErrNotFound) {
		return nil, err
	}
	if parsed.Kind != barcode.KindCode {
		return nil, product.ErrNotFound
	}

	matches, err := e.catalog.SearchPrefix(parsed.Code)
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, product.ErrNotFound
	case 1:
		return &matches[0], nil
	default:
		return nil, &AmbiguousMatchError{Query: parsed.Code, Candidates: matches}
	}
}

// RemoveItem deletes a cart line by product id.
func (e *Engine) RemoveItem(ctx context.Context, productID string) error {
	return e.do(ctx, func() {
		e.cart.RemoveItem(productID)
		e.resetSettlementTotal()
	})
}

// RemoveLast pops the most recently added cart line.
func (e *Engine) RemoveLast(ctx context.Context) error {
	return e.do(ctx, func() {
		e.cart.RemoveLast()
		e.resetSettlementTotal()
	})
}

// CartLines returns the current cart lines.
func (e *Engine) CartLines(ctx context.Context) ([]cart.Line, error) {
	var lines []cart.Line
	err := e.do(ctx, func() { lines = e.cart.Lines() })
	return lines, err
}

// TotalMinor returns the running cart total.
func (e *Engine) TotalMinor(ctx context.Context) (int64, error) {
	var total int64
	err := e.do(ctx, func() { total = e.cart.TotalMinor() })
	return total, err
}

// resetSettlementTotal rebinds an in-progress settlement to the new cart
// total after any cart mutation — adds as much as removals, so a scan after
// tendering reopens the balance instead of letting a short-paid sale
// commit. Recorded tenders are preserved.
func (e *Engine) resetSettlementTotal() {
	if e.settle == nil {
		return
	}
	rebased := settlement.New(e.cart.TotalMinor())
	for _, t := range e.settle.Tenders() {
		_ = rebased.AddTender(t.Method, t.AmountMinor)
	}
	e.settle = rebased
}

// --- Settlement ---

// AddTender records a payment toward the current cart total. The first
// tender opens the settlement.
func (e *Engine) AddTender(ctx context.Context, method sale.Method, amountMinor int64) error {
	var err error
	if postErr := e.do(ctx, func() {
		if e.settle == nil {
			e.settle = settlement.New(e.cart.TotalMinor())
		}
		err = e.settle.AddTender(method, amountMinor)
	}); postErr != nil {
		return postErr
	}
	return err
}

// RemainingMinor is the unpaid balance, zero when fully settled.
func (e *Engine) RemainingMinor(ctx context.Context) (int64, error) {
	var remaining int64
	err := e.do(ctx, func() {
		if e.settle == nil {
			remaining = e.cart.TotalMinor()
			return
		}
		remaining = e.settle.RemainingMinor()
	})
	return remaining, err
}

// ChangeMinor is the overpayment owed back to the customer.
func (e *Engine) ChangeMinor(ctx context.Context) (int64, error) {
	var change int64
	err := e.do(ctx, func() {
		if e.settle != nil {
			change = e.settle.ChangeMinor()
		}
	})
	return change, err
}

// --- Sale completion ---

// CompleteSale commits the settled cart.
//
// On transport failure the request is persisted to the offline queue and
// the sale is reported as saved-offline: the operator keeps selling, sync
// replays it later under the same client id. Validation and transaction
// failures preserve the cart and tenders so the operator can adjust and
// retry.
func (e *Engine) CompleteSale(ctx context.Context) (SaleOutcome, error) {
	var (
		out SaleOutcome
		err error
	)
	if postErr := e.do(ctx, func() { out, err = e.completeSale(ctx) }); postErr != nil {
		return SaleOutcome{}, postErr
	}
	return out, err
}

func (e *Engine) completeSale(ctx context.Context) (SaleOutcome, error) {
	if e.ledger.Status() != session.StatusOpen {
		return SaleOutcome{}, ErrSessionClosed
	}
	if e.settle == nil || !e.settle.Settled() {
		return SaleOutcome{}, settlement.ErrNotSettled
	}

	req := e.buildCommitRequest()
	if err := req.Validate(); err != nil {
		return SaleOutcome{}, err
	}

	committed, err := e.commit.Commit(ctx, req)
	switch {
	case err == nil, errors.Is(err, sale.ErrDuplicateClientID):
		if recErr := e.ledger.RecordSale(committed); recErr != nil {
			return SaleOutcome{}, recErr
		}
		e.finishSale()
		return SaleOutcome{Sale: committed}, nil

	case client.IsTransport(err):
		if qErr := e.queue.Enqueue(req); qErr != nil {
			// Neither remote nor local durability: keep the cart, surface it.
			return SaleOutcome{}, errors.Wrap(qErr, "enqueue offline sale")
		}
		// Cash entered the drawer now, not when sync confirms.
		offline := e.offlineSale(req)
		if recErr := e.ledger.RecordSale(offline); recErr != nil {
			return SaleOutcome{}, recErr
		}
		e.lg.Info("Sale saved offline", zap.String("client_id", req.ClientID))
		e.finishSale()
		return SaleOutcome{Offline: true}, nil

	default:
		// Cart and tenders stay untouched for operator retry.
		return SaleOutcome{}, err
	}
}

// buildCommitRequest freezes the cart and settlement into the typed commit
// payload. The client id is generated once per sale attempt sequence so a
// retried commit after an ambiguous failure cannot double-commit.
func (e *Engine) buildCommitRequest() sale.CommitRequest {
	if e.clientID == "" {
		e.clientID = uuid.New().String()
	}

	lines := e.cart.Lines()
	saleLines := make([]sale.Line, len(lines))
	for i, l := range lines {
		saleLines[i] = sale.Line{
			ProductID:        l.ProductID,
			Name:             l.Name,
			Quantity:         l.Quantity,
			PriceAtSaleMinor: l.UnitPriceMinor,
			SubtotalMinor:    l.SubtotalMinor,
		}
	}

	return sale.CommitRequest{
		ClientID:       e.clientID,
		Lines:          saleLines,
		Tenders:        e.settle.Tenders(),
		TotalMinor:     e.settle.TotalMinor(),
		TotalPaidMinor: e.settle.TotalPaidMinor(),
		ChangeMinor:    e.settle.ChangeMinor(),
	}
}

// offlineSale builds the local stand-in for a queued sale so the cash
// ledger reflects money that is already in the drawer.
func (e *Engine) offlineSale(req sale.CommitRequest) *sale.Sale {
	return &sale.Sale{
		ID:             req.ClientID,
		ClientID:       req.ClientID,
		TotalMinor:     req.TotalMinor,
		TotalPaidMinor: req.TotalPaidMinor,
		ChangeMinor:    req.ChangeMinor,
		Status:         sale.StatusCompleted,
		Items:          req.Lines,
		Payments:       req.Tenders,
	}
}

func (e *Engine) finishSale() {
	_ = e.settle.MarkCommitted()
	e.cart.Clear()
	e.settle = nil
	e.clientID = ""
}

// --- Cashier session ---

// OpenSession opens the cash drawer with the given float.
func (e *Engine) OpenSession(ctx context.Context, openingFloatMinor int64) error {
	var err error
	if postErr := e.do(ctx, func() { err = e.ledger.Open(openingFloatMinor) }); postErr != nil {
		return postErr
	}
	return err
}

// RecordMovement records a manual cash contribution or withdrawal.
func (e *Engine) RecordMovement(ctx context.Context, kind session.MovementKind, amountMinor int64, note string) error {
	var err error
	if postErr := e.do(ctx, func() { err = e.ledger.RecordMovement(kind, amountMinor, note) }); postErr != nil {
		return postErr
	}
	return err
}

// CloseSession reconciles counted cash against expectations and closes the
// drawer.
func (e *Engine) CloseSession(ctx context.Context, counted map[sale.Method]int64) (*session.CloseReport, error) {
	var (
		report *session.CloseReport
		err    error
	)
	if postErr := e.do(ctx, func() { report, err = e.ledger.Close(counted) }); postErr != nil {
		return nil, postErr
	}
	return report, err
}

// SessionStatus returns the drawer status.
func (e *Engine) SessionStatus(ctx context.Context) (session.Status, error) {
	var st session.Status
	err := e.do(ctx, func() { st = e.ledger.Status() })
	return st, err
}

// PendingSync reports how many sales await replay, for operator display.
func (e *Engine) PendingSync() (int, error) {
	return e.queue.Pending()
}
