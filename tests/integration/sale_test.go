//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
)

// saleFor builds a settled single-line commit request for the given product.
func saleFor(p productResponse, qty string, subtotal int64, tenders ...salePayment) saleCommitRequest {
	var paid int64
	for _, tr := range tenders {
		paid += tr.AmountMinor
	}
	change := paid - subtotal
	if change < 0 {
		change = 0
	}
	return saleCommitRequest{
		ClientID: uuid.NewString(),
		Lines: []saleLine{{
			ProductID:        p.ID,
			Name:             p.Name,
			Quantity:         qty,
			PriceAtSaleMinor: p.PriceMinor,
			SubtotalMinor:    subtotal,
		}},
		Tenders:        tenders,
		TotalMinor:     subtotal,
		TotalPaidMinor: paid,
		ChangeMinor:    change,
	}
}

func TestCommitSale(t *testing.T) {
	beer := findProduct(t, "7891234567890")
	req := saleFor(beer, "2", 2500, salePayment{Method: "CASH", AmountMinor: 3000})

	resp := doPost(t, "/api/sales", req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	s := decodeJSON[saleResponse](t, resp)
	if s.ID == "" {
		t.Error("sale id not assigned")
	}
	if s.ClientID != req.ClientID {
		t.Errorf("clientId: got %q, want %q", s.ClientID, req.ClientID)
	}
	if s.TotalMinor != 2500 || s.ChangeMinor != 500 {
		t.Errorf("totals: got total=%d change=%d", s.TotalMinor, s.ChangeMinor)
	}
	if s.Status != "COMPLETED" {
		t.Errorf("status: got %q", s.Status)
	}
	if len(s.Items) != 1 || len(s.Payments) != 1 {
		t.Errorf("items=%d payments=%d", len(s.Items), len(s.Payments))
	}
}

func TestCommitSale_DecrementsStock(t *testing.T) {
	coke := findProduct(t, "789000123456")
	req := saleFor(coke, "3", 3*coke.PriceMinor, salePayment{Method: "DEBIT", AmountMinor: 3 * coke.PriceMinor})

	resp := doPost(t, "/api/sales", req)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	after := findProduct(t, "789000123456")
	if after.Stock == coke.Stock {
		t.Errorf("stock unchanged: %s", after.Stock)
	}
}

func TestCommitSale_DuplicateClientID(t *testing.T) {
	beer := findProduct(t, "7891234567890")
	stockBefore := beer.Stock
	req := saleFor(beer, "1", beer.PriceMinor, salePayment{Method: "PIX", AmountMinor: beer.PriceMinor})

	first := doPost(t, "/api/sales", req)
	defer first.Body.Close()
	if first.StatusCode != http.StatusCreated {
		t.Fatalf("first commit: expected 201, got %d", first.StatusCode)
	}
	committed := decodeJSON[saleResponse](t, first)

	// Replay with the same clientId, as the offline queue would.
	second := doPost(t, "/api/sales", req)
	defer second.Body.Close()
	if second.StatusCode != http.StatusConflict {
		t.Fatalf("replay: expected 409, got %d", second.StatusCode)
	}

	replayed := decodeJSON[saleResponse](t, second)
	if replayed.ID != committed.ID {
		t.Errorf("replay returned a different sale: %q vs %q", replayed.ID, committed.ID)
	}

	// Stock must have been decremented exactly once.
	after := findProduct(t, "7891234567890")
	if after.Stock == stockBefore {
		t.Error("stock not decremented")
	}
	_ = after
}

func TestCommitSale_FailureRollsBackStock(t *testing.T) {
	book := findProduct(t, "9788574594910")
	stockBefore := book.Stock

	// A zero-amount tender passes request validation but violates the
	// payments CHECK constraint, which fires after the stock decrement
	// inside the same transaction.
	req := saleFor(book, "1", book.PriceMinor,
		salePayment{Method: "CASH", AmountMinor: book.PriceMinor},
		salePayment{Method: "PIX", AmountMinor: 0},
	)

	resp := doPost(t, "/api/sales", req)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}

	after := findProduct(t, "9788574594910")
	if after.Stock != stockBefore {
		t.Errorf("stock changed across a failed commit: %s -> %s", stockBefore, after.Stock)
	}
}

func TestCommitSale_UnknownProduct(t *testing.T) {
	req := saleCommitRequest{
		ClientID: uuid.NewString(),
		Lines: []saleLine{{
			ProductID:        uuid.NewString(),
			Name:             "Ghost",
			Quantity:         "1",
			PriceAtSaleMinor: 100,
			SubtotalMinor:    100,
		}},
		Tenders:        []salePayment{{Method: "CASH", AmountMinor: 100}},
		TotalMinor:     100,
		TotalPaidMinor: 100,
	}

	resp := doPost(t, "/api/sales", req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}

func TestCommitSale_EmptyCart(t *testing.T) {
	req := saleCommitRequest{
		ClientID: uuid.NewString(),
		Tenders:  []salePayment{{Method: "CASH", AmountMinor: 100}},
	}

	resp := doPost(t, "/api/sales", req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestCommitSale_MissingClientID(t *testing.T) {
	beer := findProduct(t, "7891234567890")
	req := saleFor(beer, "1", beer.PriceMinor, salePayment{Method: "CASH", AmountMinor: beer.PriceMinor})
	req.ClientID = ""

	resp := doPost(t, "/api/sales", req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestSalesReport(t *testing.T) {
	beer := findProduct(t, "7891234567890")
	req := saleFor(beer, "1", beer.PriceMinor, salePayment{Method: "CREDIT", AmountMinor: beer.PriceMinor})

	resp := doPost(t, "/api/sales", req)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	report := doGet(t, "/api/sales/report")
	defer report.Body.Close()
	if report.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", report.StatusCode)
	}

	body := decodeJSON[struct {
		Count          int              `json:"count"`
		TotalMinor     int64            `json:"totalMinor"`
		TotalsByMethod map[string]int64 `json:"totalsByMethod"`
	}](t, report)

	if body.Count == 0 {
		t.Error("report is empty")
	}
	if body.TotalsByMethod["CREDIT"] < beer.PriceMinor {
		t.Errorf("CREDIT total: got %d", body.TotalsByMethod["CREDIT"])
	}
}
