package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/CitizenPortal/pkg/health"
	pkgkafka "github.com/utafrali/CitizenPortal/pkg/kafka"
	"github.com/utafrali/CitizenPortal/pkg/middleware"
	"github.com/utafrali/CitizenPortal/services/portal/internal/domain"
	"github.com/utafrali/CitizenPortal/services/portal/internal/event"
	"github.com/utafrali/CitizenPortal/services/portal/internal/repository"
	"github.com/utafrali/CitizenPortal/services/portal/internal/repository/memory"
	"github.com/utafrali/CitizenPortal/services/portal/internal/service"
)

const (
	testSession = "sess-abcdef01"
	testToken   = "citizen-token"
)

// ============================================================================
// Mock order backend
// ============================================================================

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) SubmitOrder(ctx context.Context, req domain.OrderRequest) (*domain.SubmittedOrder, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SubmittedOrder), args.Error(1)
}

func (m *mockBackend) DebugOrderExists(ctx context.Context, orderID string) (map[string]any, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]any), args.Error(1)
}

func (m *mockBackend) InitializePayment(ctx context.Context, req domain.PaymentRequest) ([]byte, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *mockBackend) GetMyOrders(ctx context.Context) ([]domain.Order, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Order), args.Error(1)
}

// ============================================================================
// Recording publisher
// ============================================================================

type recordingPublisher struct {
	mu     sync.Mutex
	events map[string][]*pkgkafka.Event
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, evt *pkgkafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.events == nil {
		p.events = make(map[string][]*pkgkafka.Event)
	}
	p.events[topic] = append(p.events[topic], evt)
	return nil
}

func (p *recordingPublisher) count(topic string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events[topic])
}

// ============================================================================
// Test helpers
// ============================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPricing() domain.Pricing {
	return domain.Pricing{ShippingFee: decimal.NewFromInt(500), TaxRatePercent: decimal.NewFromInt(10), Currency: "LKR"}
}

type testServer struct {
	handler   http.Handler
	backend   *mockBackend
	carts     *service.CartStore
	publisher *recordingPublisher
	limiter   *middleware.RateLimiter
	cbLimiter *middleware.RateLimiter
}

type serverOption func(*serverOptions)

type serverOptions struct {
	journal       repository.AttemptJournal
	burst         int
	callbackBurst int
}

func withJournal(j repository.AttemptJournal) serverOption {
	return func(o *serverOptions) { o.journal = j }
}

func withCheckoutBurst(n int) serverOption {
	return func(o *serverOptions) { o.burst = n }
}

func withCallbackBurst(n int) serverOption {
	return func(o *serverOptions) { o.callbackBurst = n }
}

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()
	o := serverOptions{burst: 100, callbackBurst: 100}
	for _, opt := range opts {
		opt(&o)
	}

	logger := testLogger()
	ts := &testServer{backend: &mockBackend{}, publisher: &recordingPublisher{}}
	producer := event.NewProducer(ts.publisher, logger)

	ts.carts = service.NewCartStore(memory.NewCartStorage(), testPricing(), time.Minute, logger)
	policy := service.RetryPolicy{MaxAttempts: 3, Delay: 0, AttemptTimeout: time.Second}
	payments := service.NewPaymentInitializer(ts.backend, o.journal, producer, testPricing(), policy, logger)
	checkout := service.NewCheckoutService(ts.carts, memory.NewContactRepository(time.Hour), memory.NewSubmissionGuard(),
		time.Minute, service.NewOrderSubmitter(ts.backend, logger), payments, producer, logger)

	ts.limiter = middleware.NewRateLimiter(0.001, o.burst, middleware.BySession, logger)
	t.Cleanup(ts.limiter.Close)
	ts.cbLimiter = middleware.NewRateLimiter(0.001, o.callbackBurst, middleware.ByClientIP, logger)
	t.Cleanup(ts.cbLimiter.Close)

	ts.handler = NewRouter(Handlers{
		Cart:     NewCartHandler(ts.carts, logger),
		Checkout: NewCheckoutHandler(checkout, "https://portal.example/checkout", logger),
		Orders:   NewOrderHandler(service.NewOrderView(ts.backend, logger), o.journal, logger),
		Callback: NewCallbackHandler(producer, "https://portal.example/checkout", "https://portal.example/dashboard", logger),
	}, RouterConfig{
		CORS:            middleware.DefaultCORSConfig(),
		CheckoutLimiter: ts.limiter,
		CallbackLimiter: ts.cbLimiter,
		ServeAttempts:   o.journal != nil,
	}, health.NewHandler(), logger)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(middleware.SessionHeader, testSession)
	req.Header.Set("Authorization", "Bearer "+testToken)
	for k, v := range headers {
		if v == "" {
			req.Header.Del(k)
			continue
		}
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  []map[string]any  `json:"fields"`
		Details map[string]string `json:"details"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	env := decodeEnvelope(t, rec)
	require.NotEmpty(t, env.Data, rec.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, dst))
}
