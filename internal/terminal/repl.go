package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/quitanda/pdv/internal/domain/sale"
	"github.com/quitanda/pdv/internal/domain/session"
)

// REPL is a line-oriented operator console for the engine. Any line that is
// not a known command is treated as scanner input (barcode, scale label, or
// N*CODE). Amounts are entered in currency units ("12.50") and converted to
// minor units.
type REPL struct {
	engine *Engine
	in     io.Reader
	out    io.Writer
}

// NewREPL builds a console bound to the given streams.
func NewREPL(e *Engine, in io.Reader, out io.Writer) *REPL {
	return &REPL{engine: e, in: in, out: out}
}

// Run reads commands until the input ends or the context is cancelled.
func (r *REPL) Run(ctx context.Context) error {
	fmt.Fprintln(r.out, "pdv terminal ready; 'help' lists commands")
	sc := bufio.NewScanner(r.in)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			return nil
		}
		if err := r.dispatch(ctx, line); err != nil {
			fmt.Fprintf(r.out, "error: %v\n", err)
		}
	}
	return sc.Err()
}

func (r *REPL) dispatch(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "help":
		r.printHelp()
		return nil
	case "open":
		return r.openSession(ctx, args)
	case "in", "out":
		return r.movement(ctx, cmd, args)
	case "tender":
		return r.tender(ctx, args)
	case "done":
		return r.completeSale(ctx)
	case "undo":
		if err := r.engine.RemoveLast(ctx); err != nil {
			return err
		}
		return r.printCart(ctx)
	case "remove":
		if len(args) != 1 {
			return errors.New("usage: remove <product-id>")
		}
		if err := r.engine.RemoveItem(ctx, args[0]); err != nil {
			return err
		}
		return r.printCart(ctx)
	case "cart":
		return r.printCart(ctx)
	case "close":
		return r.closeSession(ctx, args)
	case "status":
		return r.printStatus(ctx)
	default:
		return r.scan(ctx, line)
	}
}

func (r *REPL) printHelp() {
	fmt.Fprint(r.out, `commands:
  <code>              scan a barcode, scale label, or N*CODE
  open <amount>       open cashier session with opening float
  in  <amount> [note] cash contribution
  out <amount> [note] cash withdrawal
  tender <method> <amount>
  done                complete the sale
  undo                remove the last cart line
  remove <product-id> remove a cart line
  cart                show the cart
  close <method>=<amount> ...  close session with counted totals
  status              session + pending sync
  quit
`)
}

func (r *REPL) scan(ctx context.Context, input string) error {
	out, err := r.engine.Scan(ctx, input)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "%s  x%s  %s  (total %s)\n",
		out.Line.Name, out.Line.Quantity, formatMinor(out.Line.SubtotalMinor), formatMinor(out.TotalMinor))
	if out.LowStock {
		fmt.Fprintln(r.out, "warning: quantity exceeds recorded stock")
	}
	return nil
}

func (r *REPL) openSession(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: open <amount>")
	}
	amount, err := parseAmount(args[0])
	if err != nil {
		return err
	}
	if err := r.engine.OpenSession(ctx, amount); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "session open, float %s\n", formatMinor(amount))
	return nil
}

func (r *REPL) movement(ctx context.Context, cmd string, args []string) error {
	if len(args) < 1 {
		return errors.Errorf("usage: %s <amount> [note]", cmd)
	}
	amount, err := parseAmount(args[0])
	if err != nil {
		return err
	}
	kind := session.MovementContribution
	if cmd == "out" {
		kind = session.MovementWithdrawal
	}
	return r.engine.RecordMovement(ctx, kind, amount, strings.Join(args[1:], " "))
}

func (r *REPL) tender(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: tender <method> <amount>")
	}
	method := sale.ParseMethod(args[0])
	amount, err := parseAmount(args[1])
	if err != nil {
		return err
	}
	if err := r.engine.AddTender(ctx, method, amount); err != nil {
		return err
	}
	remaining, err := r.engine.RemainingMinor(ctx)
	if err != nil {
		return err
	}
	if remaining > 0 {
		fmt.Fprintf(r.out, "remaining %s\n", formatMinor(remaining))
		return nil
	}
	change, err := r.engine.ChangeMinor(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "settled, change %s\n", formatMinor(change))
	return nil
}

func (r *REPL) completeSale(ctx context.Context) error {
	out, err := r.engine.CompleteSale(ctx)
	if err != nil {
		return err
	}
	if out.Offline {
		fmt.Fprintln(r.out, "sale saved offline; it will sync when the server is reachable")
		return nil
	}
	fmt.Fprintf(r.out, "sale %s committed, total %s\n", out.Sale.ID, formatMinor(out.Sale.TotalMinor))
	return nil
}

func (r *REPL) printCart(ctx context.Context) error {
	lines, err := r.engine.CartLines(ctx)
	if err != nil {
		return err
	}
	for _, l := range lines {
		fmt.Fprintf(r.out, "  %s  x%s  %s\n", l.Name, l.Quantity, formatMinor(l.SubtotalMinor))
	}
	total, err := r.engine.TotalMinor(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "total %s\n", formatMinor(total))
	return nil
}

func (r *REPL) closeSession(ctx context.Context, args []string) error {
	counted := make(map[sale.Method]int64, len(args))
	for _, arg := range args {
		method, value, ok := strings.Cut(arg, "=")
		if !ok {
			return errors.New("usage: close <method>=<amount> ...")
		}
		amount, err := parseAmount(value)
		if err != nil {
			return err
		}
		counted[sale.ParseMethod(method)] = amount
	}
	report, err := r.engine.CloseSession(ctx, counted)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "session closed: %d sales\n", report.SaleCount)
	for _, m := range report.Methods {
		fmt.Fprintf(r.out, "  %-8s sold %s expected %s counted %s diff %s\n",
			m.Method, formatMinor(m.SoldMinor), formatMinor(m.ExpectedMinor),
			formatMinor(m.CountedMinor), formatMinor(m.DifferenceMinor))
	}
	return nil
}

func (r *REPL) printStatus(ctx context.Context) error {
	status, err := r.engine.SessionStatus(ctx)
	if err != nil {
		return err
	}
	pending, err := r.engine.PendingSync()
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "session %s, %d sales pending sync\n", status, pending)
	return nil
}

// parseAmount converts a currency-unit string ("12.50") to minor units.
func parseAmount(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, errors.Wrapf(err, "parse amount %q", s)
	}
	if d.IsNegative() {
		return 0, errors.Errorf("amount %q is negative", s)
	}
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart(), nil
}

func formatMinor(v int64) string {
	return decimal.NewFromInt(v).Div(decimal.NewFromInt(100)).StringFixed(2)
}
