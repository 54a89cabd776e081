package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/CitizenPortal/pkg/httputil"
	"github.com/utafrali/CitizenPortal/pkg/pagination"
	"github.com/utafrali/CitizenPortal/services/portal/internal/repository"
	"github.com/utafrali/CitizenPortal/services/portal/internal/service"
)

// OrderHandler serves the citizen's order lifecycle view.
type OrderHandler struct {
	orders  *service.OrderView
	journal repository.AttemptJournal
	logger  *slog.Logger
}

// NewOrderHandler creates a new order HTTP handler. journal may be nil, in
// which case payment attempt history is not served.
func NewOrderHandler(orders *service.OrderView, journal repository.AttemptJournal, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, journal: journal, logger: logger}
}

// ListOrders handles GET /api/v1/orders?status=&page=&per_page=
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	listing, err := h.orders.List(r.Context(), r.URL.Query().Get("status"), pagination.FromRequest(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: listing})
}

// ListPaymentAttempts handles GET /api/v1/orders/{orderId}/payment-attempts.
// History is served only for orders the backend lists for the caller.
func (h *OrderHandler) ListPaymentAttempts(w http.ResponseWriter, r *http.Request) {
	orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if orderID == "" {
		httputil.WriteValidationError(w, errMissingOrderID)
		return
	}

	if err := h.orders.Owns(r.Context(), orderID); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	attempts, err := h.journal.ListAttempts(r.Context(), orderID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: attempts})
}
