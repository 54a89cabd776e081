package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	pkgkafka "github.com/utafrali/CitizenPortal/pkg/kafka"
	"github.com/utafrali/CitizenPortal/services/portal/internal/domain"
	"github.com/utafrali/CitizenPortal/services/portal/internal/event"
)

const formPayload = `<html><body onload="document.forms[0].submit()"><form action="https://gw.example/pay" method="post"><input type="hidden" name="ref" value="r-1"></form></body></html>`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPricing() domain.Pricing {
	return domain.Pricing{
		ShippingFee:    decimal.NewFromInt(500),
		TaxRatePercent: decimal.NewFromInt(10),
		Currency:       "LKR",
	}
}

func validCustomer() domain.CustomerInfo {
	return domain.CustomerInfo{
		Name:    "Nimal Perera",
		Email:   "nimal@example.lk",
		Phone:   "+94771234567",
		Address: "12 Galle Rd, Colombo",
	}
}

// referenceSnapshot is one line of 1000 x 2: grand total 2700.
func referenceSnapshot() domain.CartSnapshot {
	cart := domain.NewCart("sess-0001")
	cart.AddOrUpdate("A", "Birth certificate", decimal.NewFromInt(1000), 2)
	return cart.Snapshot(testPricing(), time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
}

// recordingPublisher captures published events by topic.
type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (r *recordingPublisher) Publish(_ context.Context, topic string, _ *pkgkafka.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	return nil
}

func (r *recordingPublisher) Topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.topics...)
}

func newRecordingProducer() (*event.Producer, *recordingPublisher) {
	pub := &recordingPublisher{}
	return event.NewProducer(pub, discardLogger()), pub
}

// gatewayResponse scripts one InitializePayment call.
type gatewayResponse struct {
	payload string
	err     error
	block   bool
}

// fakeGateway replays scripted responses; extra calls reuse the last one.
type fakeGateway struct {
	mu        sync.Mutex
	responses []gatewayResponse
	requests  []domain.PaymentRequest
	debugErr  error
	debugHits int
}

func (g *fakeGateway) DebugOrderExists(_ context.Context, _ string) (map[string]any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.debugHits++
	if g.debugErr != nil {
		return nil, g.debugErr
	}
	return map[string]any{"exists": true}, nil
}

func (g *fakeGateway) InitializePayment(ctx context.Context, req domain.PaymentRequest) ([]byte, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	idx := min(len(g.requests)-1, len(g.responses)-1)
	resp := g.responses[idx]
	g.mu.Unlock()

	if resp.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if resp.err != nil {
		return nil, resp.err
	}
	return []byte(resp.payload), nil
}

func (g *fakeGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

// recordingSleeper records requested delays without waiting.
type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *recordingSleeper) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

// memoryJournal collects attempts.
type memoryJournal struct {
	mu       sync.Mutex
	attempts []domain.PaymentAttempt
	err      error
}

func (j *memoryJournal) RecordAttempt(_ context.Context, a *domain.PaymentAttempt) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	j.attempts = append(j.attempts, *a)
	return nil
}

func (j *memoryJournal) ListAttempts(_ context.Context, orderID string) ([]domain.PaymentAttempt, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []domain.PaymentAttempt
	for _, a := range j.attempts {
		if a.OrderID == orderID {
			out = append(out, a)
		}
	}
	return out, nil
}
