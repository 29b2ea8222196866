package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quitanda/pdv/internal/domain/product"
	"github.com/quitanda/pdv/internal/domain/sale"
)

func newTestClient(handler http.Handler) (*Client, func()) {
	srv := httptest.NewServer(handler)
	return New(srv.URL, 2*time.Second), srv.Close
}

func jsonHandler(status int, body any) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	})
}

func testCommitRequest() sale.CommitRequest {
	return sale.CommitRequest{
		ClientID: "c1",
		Lines:    []sale.Line{{ProductID: "p1", Name: "A", SubtotalMinor: 100}},
		Tenders:  []sale.Payment{{Method: sale.MethodCash, AmountMinor: 100}},
	}
}

func TestCommit_Created(t *testing.T) {
	var gotPath string
	c, done := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		var req sale.CommitRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "c1", req.ClientID)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(sale.Sale{ID: "s1", ClientID: req.ClientID, Status: "COMPLETED"})
	}))
	defer done()

	s, err := c.Commit(context.Background(), testCommitRequest())
	require.NoError(t, err)
	assert.Equal(t, "/api/sales", gotPath)
	assert.Equal(t, "s1", s.ID)
}

func TestCommit_DuplicateReturnsExistingSale(t *testing.T) {
	c, done := newTestClient(jsonHandler(http.StatusConflict, sale.Sale{ID: "original", ClientID: "c1"}))
	defer done()

	s, err := c.Commit(context.Background(), testCommitRequest())
	require.ErrorIs(t, err, sale.ErrDuplicateClientID)
	require.NotNil(t, s)
	assert.Equal(t, "original", s.ID)
}

func TestCommit_ValidationSentinels(t *testing.T) {
	for _, want := range []error{sale.ErrEmptyCart, sale.ErrNoTender} {
		c, done := newTestClient(jsonHandler(http.StatusBadRequest, map[string]any{
			"code": 400, "message": want.Error(),
		}))

		_, err := c.Commit(context.Background(), testCommitRequest())
		assert.ErrorIs(t, err, want)
		assert.False(t, IsTransport(err))
		done()
	}
}

func TestCommit_ProductGone(t *testing.T) {
	c, done := newTestClient(jsonHandler(http.StatusUnprocessableEntity, map[string]any{
		"code": 422, "message": "product p9 not found",
	}))
	defer done()

	_, err := c.Commit(context.Background(), testCommitRequest())

	var pnf *sale.ProductNotFoundError
	require.ErrorAs(t, err, &pnf)
	assert.Equal(t, "p9", pnf.ProductID)
	assert.False(t, IsTransport(err))
}

func TestCommit_ServerErrorIsTransport(t *testing.T) {
	c, done := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer done()

	_, err := c.Commit(context.Background(), testCommitRequest())
	assert.True(t, IsTransport(err))
}

func TestCommit_ConnectionRefusedIsTransport(t *testing.T) {
	c, done := newTestClient(http.NotFoundHandler())
	done() // close immediately so the dial fails

	_, err := c.Commit(context.Background(), testCommitRequest())
	assert.True(t, IsTransport(err))
}

func TestGetByBarcode(t *testing.T) {
	c, done := newTestClient(jsonHandler(http.StatusOK, product.Product{
		ID: "p1", Barcode: "111", Name: "Cerveja", PriceMinor: 1250,
	}))
	defer done()

	p, err := c.GetByBarcode(context.Background(), "111")
	require.NoError(t, err)
	assert.Equal(t, "Cerveja", p.Name)
}

func TestGetByBarcode_NotFound(t *testing.T) {
	c, done := newTestClient(jsonHandler(http.StatusNotFound, map[string]any{
		"code": 404, "message": "product not found",
	}))
	defer done()

	_, err := c.GetByBarcode(context.Background(), "999")
	assert.ErrorIs(t, err, product.ErrNotFound)
	assert.False(t, IsTransport(err))
}

func TestList(t *testing.T) {
	c, done := newTestClient(jsonHandler(http.StatusOK, []product.Product{
		{Barcode: "1"}, {Barcode: "2"},
	}))
	defer done()

	products, err := c.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, products, 2)
}

func TestPing(t *testing.T) {
	c, done := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/readyz", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer done()

	require.NoError(t, c.Ping(context.Background()))
}

func TestPing_NotReady(t *testing.T) {
	c, done := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer done()

	err := c.Ping(context.Background())
	assert.True(t, IsTransport(err))
}
