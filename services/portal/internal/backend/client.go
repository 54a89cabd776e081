// Package backend talks to the order backend that owns orders and payment
// initialization.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/utafrali/CitizenPortal/pkg/errors"
	"github.com/utafrali/CitizenPortal/pkg/httpclient"
	"github.com/utafrali/CitizenPortal/pkg/logger"
	"github.com/utafrali/CitizenPortal/pkg/middleware"
	"github.com/utafrali/CitizenPortal/pkg/tracing"
	"github.com/utafrali/CitizenPortal/services/portal/internal/domain"
)

// ServiceName labels errors and spans for the order backend.
const ServiceName = "order-backend"

const (
	maxPayload = 2 << 20

	ordersPath        = "/orders"
	myOrdersPath      = "/orders/my-orders"
	paymentsInitPath  = "/payments/initialize"
	debugOrderPathFmt = "/orders/%s/debug"
)

var tracer = tracing.Tracer("github.com/utafrali/CitizenPortal/services/portal/internal/backend")

// Client calls the order backend on behalf of the current citizen. The
// caller's bearer token, correlation id and trace context are forwarded on
// every request.
type Client struct {
	doer    httpclient.Doer
	baseURL string
	logger  *slog.Logger
}

// NewClient creates a backend client. doer is usually a circuit breaker
// wrapping an httpclient.Client.
func NewClient(doer httpclient.Doer, baseURL string, logger *slog.Logger) *Client {
	return &Client{
		doer:    doer,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// SubmitOrder creates an order. A 4xx reply becomes ValidationFailed with
// the backend's detail; transport failures and 5xx become BackendUnavailable.
func (c *Client) SubmitOrder(ctx context.Context, order domain.OrderRequest) (_ *domain.SubmittedOrder, err error) {
	ctx, span := c.startSpan(ctx, "SubmitOrder", http.MethodPost, ordersPath)
	defer func() { tracing.Fail(span, err); span.End() }()

	resp, err := c.send(ctx, http.MethodPost, ordersPath, order)
	if err != nil {
		return nil, c.unavailable(ctx, "submit order", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, c.mapStatus(ctx, "submit order", httpclient.ParseResponseError(resp, ServiceName))
	}

	var out submitResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxPayload)).Decode(&out); err != nil {
		return nil, c.unavailable(ctx, "submit order", fmt.Errorf("decode order response: %w", err))
	}
	submitted := out.toDomain()
	if submitted.OrderID == "" {
		return nil, c.unavailable(ctx, "submit order", errors.New("order response carried no order id"))
	}
	span.SetAttributes(tracing.Attrs("order.id", submitted.OrderID)...)
	return submitted, nil
}

// InitializePayment asks the backend for a gateway redirect payload and
// returns the body verbatim. Any response carrying a "detail" field, even
// with a 2xx status, is returned as a *httpclient.ResponseError. Transport
// failures are returned wrapped so callers can inspect context errors.
func (c *Client) InitializePayment(ctx context.Context, req domain.PaymentRequest) (_ []byte, err error) {
	ctx, span := c.startSpan(ctx, "InitializePayment", http.MethodPost, paymentsInitPath)
	span.SetAttributes(tracing.Attrs("order.id", req.OrderID, "payment.amount", req.Amount.StringFixed(2))...)
	defer func() { tracing.Fail(span, err); span.End() }()

	resp, err := c.send(ctx, http.MethodPost, paymentsInitPath, req)
	if err != nil {
		return nil, fmt.Errorf("initialize payment: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayload))
	if err != nil {
		return nil, fmt.Errorf("read payment payload: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, httpclient.NewResponseError(ServiceName, resp.StatusCode, body)
	}
	if detail, ok := httpclient.HasDetail(body); ok {
		re := httpclient.NewResponseError(ServiceName, resp.StatusCode, body)
		re.Detail = detail
		return nil, re
	}
	return body, nil
}

// DebugOrderExists fetches diagnostic information about an order. The result
// is for logging only.
func (c *Client) DebugOrderExists(ctx context.Context, orderID string) (_ map[string]any, err error) {
	path := fmt.Sprintf(debugOrderPathFmt, url.PathEscape(orderID))
	ctx, span := c.startSpan(ctx, "DebugOrderExists", http.MethodGet, path)
	defer func() { tracing.Fail(span, err); span.End() }()

	resp, err := c.send(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("debug order %s: %w", orderID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, httpclient.ParseResponseError(resp, ServiceName)
	}
	var out map[string]any
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxPayload)).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode debug response: %w", err)
	}
	return out, nil
}

// GetMyOrders lists the current citizen's orders. Both a bare array and an
// {"orders": [...]} envelope are accepted.
func (c *Client) GetMyOrders(ctx context.Context) (_ []domain.Order, err error) {
	ctx, span := c.startSpan(ctx, "GetMyOrders", http.MethodGet, myOrdersPath)
	defer func() { tracing.Fail(span, err); span.End() }()

	resp, err := c.send(ctx, http.MethodGet, myOrdersPath, nil)
	if err != nil {
		return nil, c.unavailable(ctx, "list orders", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, c.mapStatus(ctx, "list orders", httpclient.ParseResponseError(resp, ServiceName))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayload))
	if err != nil {
		return nil, c.unavailable(ctx, "list orders", err)
	}
	dtos, err := decodeOrders(body)
	if err != nil {
		return nil, c.unavailable(ctx, "list orders", err)
	}

	orders := make([]domain.Order, 0, len(dtos))
	for _, d := range dtos {
		o, ok := d.toDomain()
		if !ok {
			logger.WithContext(ctx, c.logger).Warn("skipping order without id in backend listing")
			continue
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func (c *Client) send(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	var body io.Reader = http.NoBody
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s %s request: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create %s %s request: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json, text/html;q=0.9")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := middleware.BearerTokenFromContext(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		req.Header.Set("X-Correlation-ID", id)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	return c.doer.Do(ctx, req)
}

func (c *Client) startSpan(ctx context.Context, op, method, path string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "backend."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(tracing.Attrs("http.method", method, "http.route", path, "peer.service", ServiceName)...),
	)
}

// mapStatus converts a non-2xx backend reply into the portal's error kinds.
func (c *Client) mapStatus(ctx context.Context, op string, err error) error {
	re, ok := httpclient.AsResponseError(err)
	if !ok {
		return c.unavailable(ctx, op, err)
	}
	switch {
	case re.StatusCode == http.StatusUnauthorized || re.StatusCode == http.StatusForbidden:
		msg := re.Detail
		if msg == "" {
			msg = "not authorized to access orders"
		}
		return apperrors.Unauthorized(msg)
	case re.IsClientError():
		return apperrors.ValidationFailed(re.Detail, re.Fields...)
	default:
		return c.unavailable(ctx, op, err)
	}
}

func (c *Client) unavailable(ctx context.Context, op string, err error) error {
	if re, ok := httpclient.AsResponseError(err); ok && re.IsClientError() {
		return c.mapStatus(ctx, op, err)
	}
	logger.WithContext(ctx, c.logger).Error("order backend call failed",
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
	return apperrors.BackendUnavailable(err)
}
