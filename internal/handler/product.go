package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/quitanda/pdv/internal/domain/product"
)

// listProducts returns the catalog, optionally filtered by a name prefix
// via the q query parameter.
func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	var (
		products []product.Product
		err      error
	)
	if q := r.URL.Query().Get("q"); q != "" {
		products, err = h.products.SearchByName(r.Context(), q)
	} else {
		products, err = h.products.List(r.Context())
	}
	if err != nil {
		zctx.From(r.Context()).Error("Listing products", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	if products == nil {
		products = []product.Product{}
	}
	writeJSON(w, r, http.StatusOK, products)
}

// getProduct looks a product up by barcode.
func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	p, err := h.products.GetByBarcode(r.Context(), code)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "product not found")
			return
		}
		zctx.From(r.Context()).Error("Getting product", zap.String("code", code), zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, r, http.StatusOK, p)
}
