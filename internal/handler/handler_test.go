package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quitanda/pdv/internal/domain/product"
	"github.com/quitanda/pdv/internal/domain/sale"
)

// --- Mocks ---

type mockProductRepo struct {
	products []product.Product
	err      error
}

func (m *mockProductRepo) List(_ context.Context) ([]product.Product, error) {
	return m.products, m.err
}

func (m *mockProductRepo) GetByBarcode(_ context.Context, barcode string) (*product.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	for i := range m.products {
		if m.products[i].Barcode == barcode {
			return &m.products[i], nil
		}
	}
	return nil, product.ErrNotFound
}

func (m *mockProductRepo) SearchByName(_ context.Context, prefix string) ([]product.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []product.Product
	for _, p := range m.products {
		if len(p.Name) >= len(prefix) && p.Name[:len(prefix)] == prefix {
			out = append(out, p)
		}
	}
	return out, nil
}

type mockSaleStore struct {
	sale    *sale.Sale
	err     error
	sales   []sale.Sale
	lastReq sale.CommitRequest
}

func (m *mockSaleStore) Commit(_ context.Context, req sale.CommitRequest) (*sale.Sale, error) {
	m.lastReq = req
	return m.sale, m.err
}

func (m *mockSaleStore) SalesSince(_ context.Context, _ time.Time) ([]sale.Sale, error) {
	return m.sales, m.err
}

// --- Helpers ---

func serve(t *testing.T, h *Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	return rec
}

func testProduct(barcode, name string, priceMinor int64) product.Product {
	return product.Product{
		ID:         "id-" + barcode,
		Barcode:    barcode,
		Name:       name,
		PriceMinor: priceMinor,
		Stock:      decimal.NewFromInt(10),
		Unit:       "UN",
	}
}

func validCommitRequest() sale.CommitRequest {
	return sale.CommitRequest{
		ClientID:       "c1",
		Lines:          []sale.Line{{ProductID: "p1", Name: "A", SubtotalMinor: 100}},
		Tenders:        []sale.Payment{{Method: sale.MethodCash, AmountMinor: 100}},
		TotalMinor:     100,
		TotalPaidMinor: 100,
	}
}

// --- Product endpoints ---

func TestListProducts(t *testing.T) {
	h := New(&mockProductRepo{products: []product.Product{
		testProduct("1", "Cerveja", 1250),
		testProduct("2", "Coca", 990),
	}}, &mockSaleStore{})

	rec := serve(t, h, http.MethodGet, "/products", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var products []product.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &products))
	assert.Len(t, products, 2)
}

func TestListProducts_EmptyIsArray(t *testing.T) {
	h := New(&mockProductRepo{}, &mockSaleStore{})

	rec := serve(t, h, http.MethodGet, "/products", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestListProducts_Search(t *testing.T) {
	h := New(&mockProductRepo{products: []product.Product{
		testProduct("1", "Cerveja", 1250),
		testProduct("2", "Coca", 990),
	}}, &mockSaleStore{})

	rec := serve(t, h, http.MethodGet, "/products?q=Coca", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var products []product.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &products))
	require.Len(t, products, 1)
	assert.Equal(t, "Coca", products[0].Name)
}

func TestGetProduct(t *testing.T) {
	h := New(&mockProductRepo{products: []product.Product{
		testProduct("7891234567890", "Cerveja", 1250),
	}}, &mockSaleStore{})

	rec := serve(t, h, http.MethodGet, "/products/7891234567890", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var p product.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, int64(1250), p.PriceMinor)
}

func TestGetProduct_NotFound(t *testing.T) {
	h := New(&mockProductRepo{}, &mockSaleStore{})

	rec := serve(t, h, http.MethodGet, "/products/999", nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	var eb errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &eb))
	assert.Equal(t, http.StatusNotFound, eb.Code)
}

func TestGetProduct_RepoError(t *testing.T) {
	h := New(&mockProductRepo{err: errors.New("db down")}, &mockSaleStore{})

	rec := serve(t, h, http.MethodGet, "/products/1", nil)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

// --- Sale commit endpoint ---

func TestCommitSale_Created(t *testing.T) {
	store := &mockSaleStore{sale: &sale.Sale{ID: "s1", ClientID: "c1", Status: "COMPLETED"}}
	h := New(&mockProductRepo{}, store)

	rec := serve(t, h, http.MethodPost, "/sales", validCommitRequest())

	require.Equal(t, http.StatusCreated, rec.Code)
	var s sale.Sale
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	assert.Equal(t, "s1", s.ID)
	assert.Equal(t, "c1", store.lastReq.ClientID)
}

func TestCommitSale_MalformedBody(t *testing.T) {
	h := New(&mockProductRepo{}, &mockSaleStore{})

	req := httptest.NewRequest(http.MethodPost, "/sales", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCommitSale_MissingClientID(t *testing.T) {
	h := New(&mockProductRepo{}, &mockSaleStore{})

	req := validCommitRequest()
	req.ClientID = ""
	rec := serve(t, h, http.MethodPost, "/sales", req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCommitSale_Duplicate(t *testing.T) {
	existing := &sale.Sale{ID: "original", ClientID: "c1"}
	h := New(&mockProductRepo{}, &mockSaleStore{sale: existing, err: sale.ErrDuplicateClientID})

	rec := serve(t, h, http.MethodPost, "/sales", validCommitRequest())

	require.Equal(t, http.StatusConflict, rec.Code)
	var s sale.Sale
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	assert.Equal(t, "original", s.ID)
}

func TestCommitSale_ValidationErrors(t *testing.T) {
	for _, sentinel := range []error{sale.ErrEmptyCart, sale.ErrNoTender} {
		h := New(&mockProductRepo{}, &mockSaleStore{err: sentinel})

		rec := serve(t, h, http.MethodPost, "/sales", validCommitRequest())

		require.Equal(t, http.StatusBadRequest, rec.Code, "sentinel %v", sentinel)
		var eb errorBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &eb))
		assert.Equal(t, sentinel.Error(), eb.Message)
	}
}

func TestCommitSale_ProductGone(t *testing.T) {
	h := New(&mockProductRepo{}, &mockSaleStore{err: &sale.ProductNotFoundError{ProductID: "p9"}})

	rec := serve(t, h, http.MethodPost, "/sales", validCommitRequest())

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var eb errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &eb))
	assert.Equal(t, "product p9 not found", eb.Message)
}

func TestCommitSale_InternalError(t *testing.T) {
	h := New(&mockProductRepo{}, &mockSaleStore{err: errors.New("tx failed")})

	rec := serve(t, h, http.MethodPost, "/sales", validCommitRequest())

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

// --- Sales report endpoint ---

func TestSalesReport(t *testing.T) {
	h := New(&mockProductRepo{}, &mockSaleStore{sales: []sale.Sale{
		{
			TotalMinor: 1250,
			Payments:   []sale.Payment{{Method: sale.MethodCash, AmountMinor: 1250}},
		},
		{
			TotalMinor: 2000,
			Payments: []sale.Payment{
				{Method: sale.MethodCash, AmountMinor: 1000},
				{Method: sale.MethodPix, AmountMinor: 1000},
			},
		},
	}})

	rec := serve(t, h, http.MethodGet, "/sales/report", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var report salesReportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 2, report.Count)
	assert.Equal(t, int64(3250), report.TotalMinor)
	assert.Equal(t, int64(2250), report.TotalsByMethod[sale.MethodCash])
	assert.Equal(t, int64(1000), report.TotalsByMethod[sale.MethodPix])
}

func TestSalesReport_BadSince(t *testing.T) {
	h := New(&mockProductRepo{}, &mockSaleStore{})

	rec := serve(t, h, http.MethodGet, "/sales/report?since=yesterday", nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
