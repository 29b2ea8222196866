package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/quitanda/pdv/internal/domain/sale"
)

// commitSale executes the atomic sale commit. The request is the typed
// payload assembled by the terminal; malformed bodies are rejected before
// they reach the transaction.
func (h *Handler) commitSale(w http.ResponseWriter, r *http.Request) {
	var req sale.CommitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "malformed sale payload")
		return
	}
	if req.ClientID == "" {
		writeError(w, r, http.StatusBadRequest, "clientId is required")
		return
	}

	committed, err := h.sales.Commit(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, r, http.StatusCreated, committed)

	case errors.Is(err, sale.ErrDuplicateClientID):
		// Replayed offline entry: the sale is already durable. 409 carries
		// the original record so the terminal can confirm its queue entry.
		writeJSON(w, r, http.StatusConflict, committed)

	case errors.Is(err, sale.ErrEmptyCart), errors.Is(err, sale.ErrNoTender):
		writeError(w, r, http.StatusBadRequest, err.Error())

	default:
		var pnf *sale.ProductNotFoundError
		if errors.As(err, &pnf) {
			writeError(w, r, http.StatusUnprocessableEntity, pnf.Error())
			return
		}
		zctx.From(r.Context()).Error("Committing sale",
			zap.String("client_id", req.ClientID),
			zap.Error(err),
		)
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// salesReportResponse summarizes sales since a point in time.
type salesReportResponse struct {
	Since          time.Time             `json:"since"`
	Count          int                   `json:"count"`
	TotalMinor     int64                 `json:"totalMinor"`
	TotalsByMethod map[sale.Method]int64 `json:"totalsByMethod"`
	Sales          []sale.Sale           `json:"sales"`
}

// salesReport returns sales committed since the "since" query parameter
// (RFC 3339, default: start of today UTC), with per-method totals. It backs
// the daily report screen.
func (h *Handler) salesReport(w http.ResponseWriter, r *http.Request) {
	since := time.Now().UTC().Truncate(24 * time.Hour)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "since must be RFC 3339")
			return
		}
		since = parsed
	}

	sales, err := h.sales.SalesSince(r.Context(), since)
	if err != nil {
		zctx.From(r.Context()).Error("Loading sales report", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	resp := salesReportResponse{
		Since:          since,
		Count:          len(sales),
		TotalsByMethod: make(map[sale.Method]int64),
		Sales:          sales,
	}
	for _, s := range sales {
		resp.TotalMinor += s.TotalMinor
		for _, p := range s.Payments {
			resp.TotalsByMethod[p.Method] += p.AmountMinor
		}
	}
	writeJSON(w, r, http.StatusOK, resp)
}
