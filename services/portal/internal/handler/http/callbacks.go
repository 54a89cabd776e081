package http

import (
	"log/slog"
	"net/http"
	"strings"

	apperrors "github.com/utafrali/CitizenPortal/pkg/errors"
	"github.com/utafrali/CitizenPortal/pkg/httputil"
	"github.com/utafrali/CitizenPortal/pkg/logger"
	"github.com/utafrali/CitizenPortal/pkg/validator"
	"github.com/utafrali/CitizenPortal/services/portal/internal/event"
)

const (
	callbackSuccess = "success"
	callbackCancel  = "cancel"
)

// CallbackHandler serves the pages the gateway returns the browser to. They
// are informational only; the order's payment status is owned by the backend.
type CallbackHandler struct {
	producer     *event.Producer
	checkoutURL  string
	dashboardURL string
	logger       *slog.Logger
}

// NewCallbackHandler creates a new gateway callback handler.
func NewCallbackHandler(producer *event.Producer, checkoutURL, dashboardURL string, logger *slog.Logger) *CallbackHandler {
	return &CallbackHandler{
		producer:     producer,
		checkoutURL:  checkoutURL,
		dashboardURL: dashboardURL,
		logger:       logger,
	}
}

type callbackResponse struct {
	OrderID      string `json:"order_id"`
	Outcome      string `json:"outcome"`
	Message      string `json:"message"`
	CheckoutURL  string `json:"checkout_url"`
	DashboardURL string `json:"dashboard_url"`
}

// Success handles GET /payment/success?order_id=
func (h *CallbackHandler) Success(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, callbackSuccess, "Payment completed. The order status will update once the payment is confirmed.")
}

// Cancel handles GET /payment/cancel?order_id=
func (h *CallbackHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, callbackCancel, "Payment was cancelled. You can retry from the checkout page.")
}

func (h *CallbackHandler) handle(w http.ResponseWriter, r *http.Request, outcome, message string) {
	orderID := strings.TrimSpace(r.URL.Query().Get("order_id"))
	if orderID == "" {
		httputil.WriteValidationError(w, errMissingOrderID)
		return
	}
	if fe := validator.Var("order_id", orderID, "orderid"); fe != nil {
		httputil.WriteValidationError(w, apperrors.InvalidInput(apperrors.JoinFields([]apperrors.FieldError{*fe})))
		return
	}

	if err := h.producer.PublishPaymentCallback(r.Context(), orderID, outcome); err != nil {
		logger.WithContext(r.Context(), h.logger).ErrorContext(r.Context(), "failed to publish payment.callback event",
			slog.String("order_id", orderID),
			slog.String("outcome", outcome),
			slog.String("error", err.Error()),
		)
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: callbackResponse{
		OrderID:      orderID,
		Outcome:      outcome,
		Message:      message,
		CheckoutURL:  h.checkoutURL,
		DashboardURL: h.dashboardURL,
	}})
}
