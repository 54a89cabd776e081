package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/utafrali/CitizenPortal/pkg/httputil"
	"github.com/utafrali/CitizenPortal/pkg/middleware"
	"github.com/utafrali/CitizenPortal/pkg/validator"
	"github.com/utafrali/CitizenPortal/services/portal/internal/service"
)

// CartHandler handles HTTP requests for cart endpoints.
type CartHandler struct {
	carts  *service.CartStore
	logger *slog.Logger
}

// NewCartHandler creates a new cart HTTP handler.
func NewCartHandler(carts *service.CartStore, logger *slog.Logger) *CartHandler {
	return &CartHandler{carts: carts, logger: logger}
}

// --- Request DTOs ---

// SetItemRequest is the JSON body for PUT /api/v1/cart/items/{productId}.
// A quantity of zero removes the line.
type SetItemRequest struct {
	ProductName string          `json:"product_name" validate:"max=200"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity" validate:"gte=0,lte=999"`
}

// --- Handlers ---

// GetCart handles GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.carts.Get(r.Context(), middleware.SessionIDFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: view})
}

// SetItem handles PUT /api/v1/cart/items/{productId}
func (h *CartHandler) SetItem(w http.ResponseWriter, r *http.Request) {
	productID := strings.TrimSpace(chi.URLParam(r, "productId"))
	if productID == "" {
		httputil.WriteValidationError(w, errMissingProductID)
		return
	}

	var req SetItemRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	view, err := h.carts.AddOrUpdate(r.Context(), middleware.SessionIDFromContext(r.Context()),
		productID, strings.TrimSpace(req.ProductName), req.UnitPrice, req.Quantity)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: view})
}

// RemoveItem handles DELETE /api/v1/cart/items/{productId}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	productID := strings.TrimSpace(chi.URLParam(r, "productId"))
	if productID == "" {
		httputil.WriteValidationError(w, errMissingProductID)
		return
	}

	view, err := h.carts.Remove(r.Context(), middleware.SessionIDFromContext(r.Context()), productID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: view})
}

// ClearCart handles DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.carts.Clear(r.Context(), middleware.SessionIDFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: view})
}
