package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/sales-engine/internal/domain/sale"
)

const defaultMaxBodyBytes = 1 << 20

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// MaxBodyBytes caps request bodies. Zero means 1 MiB.
	MaxBodyBytes int64
}

// Handler serves the sale API, delegating business logic to the sale
// service.
type Handler struct {
	sales        *sale.Service
	maxBodyBytes int64
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(cfg HandlerConfig, sales *sale.Service) *Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	return &Handler{
		sales:        sales,
		maxBodyBytes: cfg.MaxBodyBytes,
	}
}

// Mount registers the sale routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/sales", func(r chi.Router) {
		r.Post("/", h.CreateSale)
		r.Get("/", h.ListSales)
		r.Get("/{id}", h.GetSale)
		r.Get("/{id}/items", h.ListSaleItems)
		r.Patch("/{id}/cancel", h.CancelSale)
	})
}

// NewRouter builds the API router. Routes under /api require an API key;
// mws run for every request, inside routing, so chi's route pattern is
// available to them once the handler returns.
func NewRouter(h *Handler, sec *SecurityHandler, mws ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(mws...)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	r.Route("/api", func(r chi.Router) {
		r.Use(sec.Middleware)
		h.Mount(r)
	})
	return r
}

// RoutePattern returns the chi route pattern matched for r, or "" when
// routing has not happened.
func RoutePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return ""
	}
	return rctx.RoutePattern()
}
