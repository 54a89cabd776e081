package backend

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/CitizenPortal/pkg/errors"
	"github.com/utafrali/CitizenPortal/pkg/httpclient"
	"github.com/utafrali/CitizenPortal/pkg/logger"
	"github.com/utafrali/CitizenPortal/pkg/middleware"
	"github.com/utafrali/CitizenPortal/services/portal/internal/domain"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := httpclient.DefaultConfig()
	cfg.MaxRetries = 0
	cfg.Timeout = 5 * time.Second
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(httpclient.New(cfg), srv.URL+"/", log)
}

func sampleOrderRequest() domain.OrderRequest {
	cart := domain.NewCart("sess-1")
	cart.AddOrUpdate("A", "Land registry extract", decimal.NewFromInt(1000), 2)
	p := domain.Pricing{ShippingFee: decimal.NewFromInt(500), TaxRatePercent: decimal.NewFromInt(10), Currency: "LKR"}
	return domain.NewOrderRequest(cart.Snapshot(p, time.Now()), domain.CustomerInfo{
		Name: "Nimal Perera", Email: "nimal@example.lk", Phone: "+94771234567", Address: "12 Galle Rd",
	})
}

// ---------------------------------------------------------------------------
// SubmitOrder
// ---------------------------------------------------------------------------

func TestSubmitOrder_Success_ForwardsHeaders(t *testing.T) {
	var gotAuth, gotCorr string
	var gotBody map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/orders", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotCorr = r.Header.Get("X-Correlation-ID")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"order_id":"ord-77","total_amount":"2700.00"}`))
	})

	ctx := middleware.WithBearerToken(context.Background(), "tok-abc")
	ctx = logger.WithCorrelationID(ctx, "corr-1")

	got, err := c.SubmitOrder(ctx, sampleOrderRequest())
	require.NoError(t, err)
	assert.Equal(t, "ord-77", got.OrderID)
	require.NotNil(t, got.TotalAmount)
	assert.True(t, got.TotalAmount.Equal(decimal.NewFromInt(2700)))

	assert.Equal(t, "Bearer tok-abc", gotAuth)
	assert.Equal(t, "corr-1", gotCorr)
	assert.Contains(t, gotBody, "items")
	assert.Contains(t, gotBody, "amounts")
	assert.Contains(t, gotBody, "customer_info")
}

func TestSubmitOrder_AlternateIDShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"numeric id", `{"id": 1042}`, "1042"},
		{"string id", `{"id": "ord-9"}`, "ord-9"},
		{"data envelope", `{"data": {"order_id": "ord-5", "total_amount": 2700}}`, "ord-5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})
			got, err := c.SubmitOrder(context.Background(), sampleOrderRequest())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.OrderID)
		})
	}
}

func TestSubmitOrder_MissingID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	_, err := c.SubmitOrder(context.Background(), sampleOrderRequest())
	assert.ErrorIs(t, err, apperrors.ErrBackendUnavailable)
}

func TestSubmitOrder_ValidationRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":[{"loc":["body","customer_info","customer_phone"],"msg":"invalid phone"}]}`))
	})

	_, err := c.SubmitOrder(context.Background(), sampleOrderRequest())
	require.ErrorIs(t, err, apperrors.ErrValidationFailed)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "customer_phone: invalid phone", appErr.Message)
	require.Len(t, appErr.Fields, 1)
	assert.Equal(t, "customer_phone", appErr.Fields[0].Field)
}

func TestSubmitOrder_Unauthorized(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"Not authenticated"}`))
	})
	_, err := c.SubmitOrder(context.Background(), sampleOrderRequest())
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestSubmitOrder_ServerErrorIsUnavailable_NotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.SubmitOrder(context.Background(), sampleOrderRequest())
	assert.ErrorIs(t, err, apperrors.ErrBackendUnavailable)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSubmitOrder_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	cfg := httpclient.DefaultConfig()
	cfg.MaxRetries = 0
	c := NewClient(httpclient.New(cfg), url, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := c.SubmitOrder(context.Background(), sampleOrderRequest())
	require.ErrorIs(t, err, apperrors.ErrBackendUnavailable)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.NotContains(t, appErr.Message, "127.0.0.1")
}

// ---------------------------------------------------------------------------
// InitializePayment
// ---------------------------------------------------------------------------

func samplePaymentRequest() domain.PaymentRequest {
	return domain.PaymentRequest{
		OrderID:         "ord-77",
		Amount:          decimal.NewFromInt(2700),
		CustomerName:    "Nimal Perera",
		CustomerEmail:   "nimal@example.lk",
		CustomerPhone:   "+94771234567",
		DeliveryAddress: "12 Galle Rd",
	}
}

func TestInitializePayment_ReturnsPayloadVerbatim(t *testing.T) {
	payload := `<html><body><form action="https://gw.example/pay" method="post"></form></body></html>`
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments/initialize", r.URL.Path)
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ord-77", req["order_id"])
		assert.Equal(t, "2700", req["amount"])
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(payload))
	})

	got, err := c.InitializePayment(context.Background(), samplePaymentRequest())
	require.NoError(t, err)
	assert.Equal(t, payload, string(got))
}

func TestInitializePayment_DetailOn2xxIsFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"detail":"Order not found"}`))
	})

	_, err := c.InitializePayment(context.Background(), samplePaymentRequest())
	re, ok := httpclient.AsResponseError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, re.StatusCode)
	assert.Equal(t, "Order not found", re.Detail)
}

func TestInitializePayment_ErrorStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"amount must be positive"}`))
	})

	_, err := c.InitializePayment(context.Background(), samplePaymentRequest())
	re, ok := httpclient.AsResponseError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, re.StatusCode)
	assert.Equal(t, "amount must be positive", re.Detail)
}

func TestInitializePayment_ContextDeadline(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.InitializePayment(ctx, samplePaymentRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// ---------------------------------------------------------------------------
// DebugOrderExists
// ---------------------------------------------------------------------------

func TestDebugOrderExists(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/orders/ord-77/debug", r.URL.Path)
		_, _ = w.Write([]byte(`{"exists":true,"replica":"b"}`))
	})

	got, err := c.DebugOrderExists(context.Background(), "ord-77")
	require.NoError(t, err)
	assert.Equal(t, true, got["exists"])
}

func TestDebugOrderExists_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"no such order"}`))
	})

	_, err := c.DebugOrderExists(context.Background(), "ord-77")
	re, ok := httpclient.AsResponseError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, re.StatusCode)
}

// ---------------------------------------------------------------------------
// GetMyOrders
// ---------------------------------------------------------------------------

func TestGetMyOrders_BareArray(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders/my-orders", r.URL.Path)
		_, _ = w.Write([]byte(`[
			{"order_id":"o-1","created_at":"2026-02-01T10:00:00Z","total_amount":"2700.00","order_status":"Processing","payment_status":"Pending"},
			{"id":42,"created_at":"2026-02-02T08:30:00.123456","total_amount":150,"status":"canceled","payment_status":"paid"},
			{"created_at":"2026-02-03T08:30:00Z"}
		]`))
	})

	got, err := c.GetMyOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "o-1", got[0].ID)
	assert.Equal(t, domain.OrderStatusProcessing, got[0].Status)
	assert.Equal(t, domain.PaymentStatusPending, got[0].PaymentStatus)
	assert.Equal(t, time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC), got[0].CreatedAt)

	assert.Equal(t, "42", got[1].ID)
	assert.Equal(t, domain.OrderStatusCancelled, got[1].Status)
	assert.Equal(t, domain.PaymentStatusPaid, got[1].PaymentStatus)
	assert.Equal(t, 2026, got[1].CreatedAt.Year())
	assert.True(t, got[1].TotalAmount.Equal(decimal.NewFromInt(150)))
}

func TestGetMyOrders_Envelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"orders":[{"order_id":"o-1","order_status":"Shipped"}]}`))
	})

	got, err := c.GetMyOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.OrderStatusShipped, got[0].Status)
}

func TestGetMyOrders_Empty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	got, err := c.GetMyOrders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetMyOrders_Malformed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>oops</html>`))
	})

	_, err := c.GetMyOrders(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrBackendUnavailable)
}
