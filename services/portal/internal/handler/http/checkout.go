package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/utafrali/CitizenPortal/pkg/httputil"
	"github.com/utafrali/CitizenPortal/pkg/logger"
	"github.com/utafrali/CitizenPortal/pkg/middleware"
	"github.com/utafrali/CitizenPortal/pkg/validator"
	"github.com/utafrali/CitizenPortal/services/portal/internal/domain"
	"github.com/utafrali/CitizenPortal/services/portal/internal/service"
)

// CheckoutHandler handles the checkout page's contact autosave and the
// submit-then-pay action.
type CheckoutHandler struct {
	checkout    *service.CheckoutService
	checkoutURL string
	logger      *slog.Logger
}

// NewCheckoutHandler creates a new checkout HTTP handler. checkoutURL is
// returned to the browser whenever an order exists but payment could not
// start, so the citizen can retry by hand.
func NewCheckoutHandler(checkout *service.CheckoutService, checkoutURL string, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout, checkoutURL: checkoutURL, logger: logger}
}

// --- Request DTOs ---

// ContactRequest is the JSON body for PUT /api/v1/checkout/contact.
type ContactRequest struct {
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// CheckoutRequest is the JSON body for POST /api/v1/checkout. Phone and
// address may be omitted when they were saved through the contact endpoint.
type CheckoutRequest struct {
	CustomerName    string `json:"customer_name" validate:"required,notblank,max=200"`
	CustomerEmail   string `json:"customer_email" validate:"required,email,max=254"`
	CustomerPhone   string `json:"customer_phone" validate:"omitempty,max=32"`
	DeliveryAddress string `json:"delivery_address" validate:"omitempty,max=500"`
}

func (req CheckoutRequest) customer() domain.CustomerInfo {
	return domain.CustomerInfo{
		Name:    strings.TrimSpace(req.CustomerName),
		Email:   strings.TrimSpace(req.CustomerEmail),
		Phone:   strings.TrimSpace(req.CustomerPhone),
		Address: strings.TrimSpace(req.DeliveryAddress),
	}
}

// checkoutResponse is the JSON form of a successful checkout.
type checkoutResponse struct {
	OrderID     string                    `json:"order_id"`
	State       domain.PaymentState       `json:"state"`
	Attempts    int                       `json:"attempts"`
	Redirect    *domain.RedirectDirective `json:"redirect,omitempty"`
	GatewayForm string                    `json:"gateway_form"`
}

// --- Handlers ---

// SaveContact handles PUT /api/v1/checkout/contact
func (h *CheckoutHandler) SaveContact(w http.ResponseWriter, r *http.Request) {
	var req ContactRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	sessionID := middleware.SessionIDFromContext(r.Context())
	if err := h.checkout.SaveContact(r.Context(), sessionID, domain.Contact(req)); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Checkout handles POST /api/v1/checkout. On success the gateway payload is
// written verbatim as HTML so the browser follows the redirect; clients
// asking for JSON get the payload wrapped instead.
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	sessionID := middleware.SessionIDFromContext(r.Context())
	result, err := h.checkout.Checkout(r.Context(), sessionID, req.customer())
	if err != nil {
		if result == nil || result.OrderID == "" {
			httputil.WriteError(w, r, err, h.logger)
			return
		}

		details := map[string]string{
			"order_id":     result.OrderID,
			"checkout_url": h.checkoutURL,
		}
		if result.Payment != nil && result.Payment.LastDetail != "" {
			details["detail"] = result.Payment.LastDetail
		}
		logger.WithContext(r.Context(), h.logger).WarnContext(r.Context(), "order created but payment did not start",
			slog.String("order_id", result.OrderID),
			slog.String("error", err.Error()),
		)
		httputil.WriteErrorWithDetails(w, r, err, details, h.logger)
		return
	}

	session := result.Payment
	if wantsJSON(r) {
		httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: checkoutResponse{
			OrderID:     result.OrderID,
			State:       session.State,
			Attempts:    session.Attempts,
			Redirect:    session.Redirect,
			GatewayForm: string(session.GatewayForm),
		}})
		return
	}
	httputil.WriteHTML(w, http.StatusOK, session.GatewayForm)
}

func wantsJSON(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html")
}
