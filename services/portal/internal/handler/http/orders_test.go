package http

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/CitizenPortal/pkg/errors"
	"github.com/utafrali/CitizenPortal/services/portal/internal/domain"
)

type staticJournal struct {
	attempts []domain.PaymentAttempt
}

func (j *staticJournal) RecordAttempt(_ context.Context, a *domain.PaymentAttempt) error {
	j.attempts = append(j.attempts, *a)
	return nil
}

func (j *staticJournal) ListAttempts(_ context.Context, orderID string) ([]domain.PaymentAttempt, error) {
	out := []domain.PaymentAttempt{}
	for _, a := range j.attempts {
		if a.OrderID == orderID {
			out = append(out, a)
		}
	}
	return out, nil
}

func backendOrders() []domain.Order {
	day := func(d int) time.Time { return time.Date(2026, 4, d, 8, 0, 0, 0, time.UTC) }
	return []domain.Order{
		{ID: "o1", CreatedAt: day(1), TotalAmount: decimal.NewFromInt(1500), Status: domain.OrderStatusDelivered, PaymentStatus: domain.PaymentStatusPaid},
		{ID: "o2", CreatedAt: day(3), TotalAmount: decimal.NewFromInt(2700), Status: domain.OrderStatusProcessing, PaymentStatus: domain.PaymentStatusPending},
		{ID: "o3", CreatedAt: day(2), TotalAmount: decimal.NewFromInt(900), Status: domain.OrderStatusCancelled, PaymentStatus: domain.PaymentStatusPaid},
	}
}

// ============================================================================
// GET /api/v1/orders
// ============================================================================

func TestListOrders_All(t *testing.T) {
	ts := newTestServer(t)
	ts.backend.On("GetMyOrders", mock.Anything).Return(backendOrders(), nil)

	rec := ts.do(t, http.MethodGet, "/api/v1/orders", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var listing domain.OrderListing
	decodeData(t, rec, &listing)
	assert.Equal(t, "all", listing.Filter)
	require.Len(t, listing.Orders, 3)
	assert.Equal(t, "o2", listing.Orders[0].ID)
	assert.Equal(t, domain.OrderSummary{Total: 3, Processing: 1, Delivered: 1, Cancelled: 1}, listing.Summary)
}

func TestListOrders_Paged(t *testing.T) {
	ts := newTestServer(t)
	ts.backend.On("GetMyOrders", mock.Anything).Return(backendOrders(), nil)

	rec := ts.do(t, http.MethodGet, "/api/v1/orders?page=2&per_page=2", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var listing domain.OrderListing
	decodeData(t, rec, &listing)
	require.Len(t, listing.Orders, 1)
	assert.Equal(t, "o1", listing.Orders[0].ID)
	require.NotNil(t, listing.Page)
	assert.Equal(t, 2, listing.Page.TotalPages)
	assert.True(t, listing.Page.HasPrev)
	assert.False(t, listing.Page.HasNext)
}

func TestListOrders_Filtered(t *testing.T) {
	ts := newTestServer(t)
	ts.backend.On("GetMyOrders", mock.Anything).Return(backendOrders(), nil)

	rec := ts.do(t, http.MethodGet, "/api/v1/orders?status=delivered", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var listing domain.OrderListing
	decodeData(t, rec, &listing)
	assert.Equal(t, "Delivered", listing.Filter)
	require.Len(t, listing.Orders, 1)
	assert.Equal(t, "o1", listing.Orders[0].ID)
	assert.True(t, listing.Orders[0].TotalAmount.Equal(decimal.NewFromInt(1500)))
	assert.Equal(t, 3, listing.Summary.Total)
}

func TestListOrders_UnknownFilter(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/orders?status=lost", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	ts.backend.AssertNotCalled(t, "GetMyOrders", mock.Anything)
}

func TestListOrders_BackendDown(t *testing.T) {
	ts := newTestServer(t)
	ts.backend.On("GetMyOrders", mock.Anything).Return(nil, apperrors.BackendUnavailable(errors.New("connection refused")))

	rec := ts.do(t, http.MethodGet, "/api/v1/orders", nil, nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Error)
	assert.NotContains(t, env.Error.Message, "connection refused")
}

func TestListOrders_RequiresAuthorization(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/orders", nil, map[string]string{"Authorization": ""})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// ============================================================================
// GET /api/v1/orders/{orderId}/payment-attempts
// ============================================================================

func TestListPaymentAttempts(t *testing.T) {
	journal := &staticJournal{attempts: []domain.PaymentAttempt{
		{ID: 1, OrderID: "ord-9", Attempt: 1, Outcome: domain.AttemptRejected, Detail: "Order not found"},
		{ID: 2, OrderID: "ord-9", Attempt: 2, Outcome: domain.AttemptSucceeded},
		{ID: 3, OrderID: "ord-8", Attempt: 1, Outcome: domain.AttemptSucceeded},
	}}
	ts := newTestServer(t, withJournal(journal))
	ts.backend.On("GetMyOrders", mock.Anything).Return([]domain.Order{{ID: "ord-9"}}, nil)

	rec := ts.do(t, http.MethodGet, "/api/v1/orders/ord-9/payment-attempts", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var attempts []domain.PaymentAttempt
	decodeData(t, rec, &attempts)
	require.Len(t, attempts, 2)
	assert.Equal(t, "Order not found", attempts[0].Detail)
	assert.Equal(t, domain.AttemptSucceeded, attempts[1].Outcome)
}

func TestListPaymentAttempts_ForeignOrderIsNotFound(t *testing.T) {
	journal := &staticJournal{attempts: []domain.PaymentAttempt{
		{ID: 1, OrderID: "someone-elses-order", Attempt: 1, Outcome: domain.AttemptRejected, Detail: "card declined for Jane Doe"},
	}}
	ts := newTestServer(t, withJournal(journal))
	ts.backend.On("GetMyOrders", mock.Anything).Return(backendOrders(), nil)

	rec := ts.do(t, http.MethodGet, "/api/v1/orders/someone-elses-order/payment-attempts", nil,
		map[string]string{"Authorization": "Bearer not-a-real-token"})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotContains(t, rec.Body.String(), "Jane Doe")
	ts.backend.AssertCalled(t, "GetMyOrders", mock.Anything)
}

func TestListPaymentAttempts_BackendDown(t *testing.T) {
	journal := &staticJournal{attempts: []domain.PaymentAttempt{{ID: 1, OrderID: "ord-9", Attempt: 1}}}
	ts := newTestServer(t, withJournal(journal))
	ts.backend.On("GetMyOrders", mock.Anything).Return(nil, apperrors.BackendUnavailable(errors.New("timeout")))

	rec := ts.do(t, http.MethodGet, "/api/v1/orders/ord-9/payment-attempts", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestListPaymentAttempts_NotServedWithoutJournal(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/orders/ord-9/payment-attempts", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
