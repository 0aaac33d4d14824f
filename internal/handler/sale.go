package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/sales-engine/internal/domain/auth"
	"github.com/xenking/sales-engine/internal/domain/sale"
)

// CreateSale handles POST /api/sales.
func (h *Handler) CreateSale(w http.ResponseWriter, r *http.Request) {
	body, err := h.readBody(w, r)
	if err != nil {
		writeBodyError(w, err)
		return
	}

	req, err := decodeCreateSale(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if principal, ok := auth.PrincipalFrom(r.Context()); ok {
		req.CreatedBy = principal.ID
	}

	created, err := h.sales.Create(r.Context(), req)
	if err != nil {
		h.mapSaleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeSale(e, created) })
}

// ListSales handles GET /api/sales?skip=&take=.
func (h *Handler) ListSales(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sales, err := h.sales.List(r.Context(), page)
	if err != nil {
		h.mapSaleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeSales(e, sales) })
}

// GetSale handles GET /api/sales/{id}.
func (h *Handler) GetSale(w http.ResponseWriter, r *http.Request) {
	s, err := h.sales.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.mapSaleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeSale(e, s) })
}

// ListSaleItems handles GET /api/sales/{id}/items.
func (h *Handler) ListSaleItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.sales.Items(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.mapSaleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeItems(e, items) })
}

// CancelSale handles PATCH /api/sales/{id}/cancel. The body may be empty or
// {"isCanceled": true}; un-canceling is not supported.
func (h *Handler) CancelSale(w http.ResponseWriter, r *http.Request) {
	body, err := h.readBody(w, r)
	if err != nil {
		writeBodyError(w, err)
		return
	}
	cancel, err := decodeCancel(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if !cancel {
		writeError(w, http.StatusBadRequest, "a canceled sale cannot be restored")
		return
	}

	if err := h.sales.Cancel(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.mapSaleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
}

func writeBodyError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
}

func parsePage(r *http.Request) (sale.Page, error) {
	var (
		page sale.Page
		err  error
	)
	q := r.URL.Query()
	if v := q.Get("skip"); v != "" {
		if page.Skip, err = strconv.Atoi(v); err != nil || page.Skip < 0 {
			return sale.Page{}, errors.New("skip must be a non-negative integer")
		}
	}
	if v := q.Get("take"); v != "" {
		if page.Take, err = strconv.Atoi(v); err != nil || page.Take < 1 {
			return sale.Page{}, errors.New("take must be a positive integer")
		}
	}
	return page, nil
}

// mapSaleError converts domain errors to {code, message} responses.
func (h *Handler) mapSaleError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve  *sale.ValidationError
		pue *sale.ProductUnavailableError
		cne *sale.ClientNotFoundError
		pe  *sale.PersistenceError
	)
	switch {
	case errors.Is(err, sale.ErrEmptySale):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Error())
	case errors.As(err, &pue):
		writeError(w, http.StatusUnprocessableEntity, pue.Error())
	case errors.As(err, &cne):
		writeError(w, http.StatusUnprocessableEntity, cne.Error())
	case errors.Is(err, sale.ErrNotFound):
		writeError(w, http.StatusNotFound, "sale not found")
	case errors.As(err, &pe) && pe.Referential:
		zctx.From(r.Context()).Warn("Sale rejected by referential check", zap.Error(err))
		writeError(w, http.StatusConflict, "referenced product or client no longer exists")
	default:
		zctx.From(r.Context()).Error("Sale request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
