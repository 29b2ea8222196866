// Package handler exposes the PDV server API over HTTP: catalog reads and
// the atomic sale-commit endpoint.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/quitanda/pdv/internal/domain/product"
	"github.com/quitanda/pdv/internal/domain/sale"
)

// SaleStore is the commit and reporting surface the API exposes.
type SaleStore interface {
	sale.Committer
	SalesSince(ctx context.Context, since time.Time) ([]sale.Sale, error)
}

// Handler routes API requests to the repositories.
type Handler struct {
	products product.Repository
	sales    SaleStore
}

// New constructs a Handler with the required dependencies.
func New(products product.Repository, sales SaleStore) *Handler {
	return &Handler{products: products, sales: sales}
}

// Routes mounts the API endpoints on a chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/products", h.listProducts)
	r.Get("/products/{code}", h.getProduct)
	r.Post("/sales", h.commitSale)
	r.Get("/sales/report", h.salesReport)
	return r
}

// errorBody is the JSON error envelope shared with the terminal client.
type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zctx.From(r.Context()).Error("Encoding response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, errorBody{Code: status, Message: msg})
}
