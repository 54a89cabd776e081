package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/utafrali/CitizenPortal/pkg/errors"
	"github.com/utafrali/CitizenPortal/pkg/httpclient"
	"github.com/utafrali/CitizenPortal/pkg/logger"
	"github.com/utafrali/CitizenPortal/pkg/tracing"
	"github.com/utafrali/CitizenPortal/services/portal/internal/domain"
	"github.com/utafrali/CitizenPortal/services/portal/internal/event"
	"github.com/utafrali/CitizenPortal/services/portal/internal/repository"
)

var tracer = tracing.Tracer("github.com/utafrali/CitizenPortal/services/portal/internal/service")

// RetryPolicy bounds payment initialization. Delay is waited before every
// attempt, the first included; AttemptTimeout caps each call.
type RetryPolicy struct {
	MaxAttempts    int
	Delay          time.Duration
	AttemptTimeout time.Duration
}

// DefaultRetryPolicy returns 3 attempts, 2s apart, 15s per call.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		Delay:          2 * time.Second,
		AttemptTimeout: 15 * time.Second,
	}
}

// PaymentGateway is the part of the order backend the initializer calls.
type PaymentGateway interface {
	DebugOrderExists(ctx context.Context, orderID string) (map[string]any, error)
	InitializePayment(ctx context.Context, req domain.PaymentRequest) ([]byte, error)
}

// Transition is one state change of a payment session.
type Transition struct {
	OrderID string
	From    domain.PaymentState
	To      domain.PaymentState
	Attempt int
	Detail  string
	At      time.Time
}

// Observer receives every transition synchronously.
type Observer func(Transition)

// PaymentOption customizes a PaymentInitializer.
type PaymentOption func(*PaymentInitializer)

// WithObserver registers an observer for state transitions.
func WithObserver(o Observer) PaymentOption {
	return func(p *PaymentInitializer) { p.observers = append(p.observers, o) }
}

// WithSleeper replaces the delay implementation.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) PaymentOption {
	return func(p *PaymentInitializer) { p.sleep = sleep }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) PaymentOption {
	return func(p *PaymentInitializer) { p.now = now }
}

// InitializeInput is everything needed to hand an order to the gateway.
// Expected is the total the backend confirmed for the order; the amount
// charged is recomputed from Snapshot and must equal it.
type InitializeInput struct {
	OrderID  string
	Expected decimal.Decimal
	Snapshot domain.CartSnapshot
	Customer domain.CustomerInfo
}

// PaymentInitializer drives Idle -> Verifying -> Initializing ->
// {Redirecting | Failed}. Attempts are strictly sequential.
type PaymentInitializer struct {
	gateway   PaymentGateway
	journal   repository.AttemptJournal
	producer  *event.Producer
	pricing   domain.Pricing
	policy    RetryPolicy
	observers []Observer
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time
	logger    *slog.Logger
}

// NewPaymentInitializer creates an initializer. journal may be nil.
func NewPaymentInitializer(
	gateway PaymentGateway,
	journal repository.AttemptJournal,
	producer *event.Producer,
	pricing domain.Pricing,
	policy RetryPolicy,
	logger *slog.Logger,
	opts ...PaymentOption,
) *PaymentInitializer {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	p := &PaymentInitializer{
		gateway:  gateway,
		journal:  journal,
		producer: producer,
		pricing:  pricing,
		policy:   policy,
		sleep:    sleepContext,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Initialize runs the handoff. The returned session is never nil: on error
// it is in the Failed state and carries the last observed detail.
func (p *PaymentInitializer) Initialize(ctx context.Context, in InitializeInput) (*domain.PaymentSession, error) {
	ctx, span := tracer.Start(ctx, "payment.Initialize", trace.WithAttributes(
		attribute.String("order.id", in.OrderID),
		attribute.Int("payment.max_attempts", p.policy.MaxAttempts),
	))
	defer span.End()

	log := logger.WithContext(ctx, p.logger).With(slog.String("order_id", in.OrderID))
	session := &domain.PaymentSession{
		OrderID:  in.OrderID,
		Customer: in.Customer,
		State:    domain.PaymentStateIdle,
	}

	p.transition(session, domain.PaymentStateVerifying, 0, "")
	p.verify(ctx, log, in.OrderID)

	amount := p.pricing.Totals(in.Snapshot.Lines).GrandTotal
	session.Amount = amount
	if !amount.Equal(in.Expected) {
		err := apperrors.AmountMismatch(in.Expected.StringFixed(2), amount.StringFixed(2))
		session.LastDetail = err.Message
		p.fail(ctx, log, session, 0)
		tracing.Fail(span, err)
		return session, err
	}

	req := domain.NewPaymentRequest(in.OrderID, amount, in.Customer)
	p.transition(session, domain.PaymentStateInitializing, 0, "")

	var lastErr error
	for attempt := 1; attempt <= p.policy.MaxAttempts; attempt++ {
		if err := p.sleep(ctx, p.policy.Delay); err != nil {
			return p.abandon(ctx, log, session, span, err)
		}

		session.Attempts = attempt
		res := p.attempt(ctx, session, req, attempt)

		switch res.outcome {
		case domain.AttemptSucceeded:
			session.GatewayForm = res.payload
			session.Redirect = res.directive
			session.LastDetail = ""
			p.transition(session, domain.PaymentStateRedirecting, attempt, "")
			PaymentSessions.WithLabelValues(string(domain.PaymentStateRedirecting)).Inc()
			log.InfoContext(ctx, "payment initialized, redirecting to gateway",
				slog.Int("attempt", attempt),
				slog.String("redirect_kind", string(res.directive.Kind)),
			)
			if err := p.producer.PublishPaymentRedirecting(ctx, session); err != nil {
				log.ErrorContext(ctx, "failed to publish payment.redirecting event", slog.String("error", err.Error()))
			}
			return session, nil

		case domain.AttemptMalformed:
			session.LastDetail = res.detail
			p.fail(ctx, log, session, attempt)
			appErr := apperrors.GatewayRedirectMalformed(res.detail)
			tracing.Fail(span, appErr)
			return session, appErr
		}

		session.LastDetail = res.detail
		lastErr = res.err
		if ctx.Err() != nil {
			return p.abandon(ctx, log, session, span, ctx.Err())
		}
		log.WarnContext(ctx, "payment initialization attempt failed",
			slog.Int("attempt", attempt),
			slog.Int("remaining", p.policy.MaxAttempts-attempt),
			slog.String("outcome", string(res.outcome)),
			slog.String("detail", res.detail),
		)
	}

	p.fail(ctx, log, session, session.Attempts)
	appErr := apperrors.PaymentInitFailed(session.Attempts, session.LastDetail, lastErr)
	tracing.Fail(span, appErr)
	return session, appErr
}

type attemptResult struct {
	payload   []byte
	directive *domain.RedirectDirective
	outcome   domain.AttemptOutcome
	detail    string
	err       error
}

// attempt performs one bounded gateway call and classifies it.
func (p *PaymentInitializer) attempt(ctx context.Context, session *domain.PaymentSession, req domain.PaymentRequest, n int) attemptResult {
	attemptCtx, cancel := context.WithTimeout(ctx, p.policy.AttemptTimeout)
	defer cancel()

	attemptCtx, span := tracer.Start(attemptCtx, "payment.attempt", trace.WithAttributes(
		attribute.String("order.id", req.OrderID),
		attribute.Int("payment.attempt", n),
	))
	defer span.End()

	start := p.now()
	payload, err := p.gateway.InitializePayment(attemptCtx, req)
	elapsed := p.now().Sub(start)

	res := attemptResult{payload: payload, err: err}
	if err != nil {
		res.outcome, res.detail = p.classify(err)
	} else if directive, perr := ParseRedirect(payload); perr != nil {
		res.outcome, res.detail = domain.AttemptMalformed, perr.Error()
	} else {
		res.outcome, res.directive = domain.AttemptSucceeded, directive
	}
	outcome := res.outcome

	span.SetAttributes(attribute.String("payment.outcome", string(outcome)))
	if outcome != domain.AttemptSucceeded {
		tracing.Fail(span, errors.New(res.detail))
	}
	PaymentInitAttempts.WithLabelValues(string(outcome)).Inc()
	PaymentAttemptDuration.WithLabelValues(string(outcome)).Observe(elapsed.Seconds())

	p.record(ctx, &domain.PaymentAttempt{
		OrderID:     session.OrderID,
		Attempt:     n,
		Outcome:     outcome,
		Detail:      res.detail,
		Amount:      req.Amount,
		DurationMS:  elapsed.Milliseconds(),
		AttemptedAt: start.UTC(),
	})
	return res
}

// classify maps a failed call to an outcome and the message shown to users.
func (p *PaymentInitializer) classify(err error) (domain.AttemptOutcome, string) {
	if re, ok := httpclient.AsResponseError(err); ok {
		detail := re.Detail
		if detail == "" {
			detail = fmt.Sprintf("order service returned status %d", re.StatusCode)
		}
		if re.StatusCode >= http.StatusInternalServerError {
			return domain.AttemptUnavailable, detail
		}
		return domain.AttemptRejected, detail
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.AttemptTimedOut, fmt.Sprintf("payment initialization timed out after %s", p.policy.AttemptTimeout)
	}
	if errors.Is(err, httpclient.ErrCircuitOpen) {
		return domain.AttemptUnavailable, "the order service is temporarily unavailable"
	}
	return domain.AttemptUnavailable, "could not reach the order service"
}

// verify is diagnostic only; its result never gates the handoff.
func (p *PaymentInitializer) verify(ctx context.Context, log *slog.Logger, orderID string) {
	vctx, cancel := context.WithTimeout(ctx, p.policy.AttemptTimeout)
	defer cancel()

	info, err := p.gateway.DebugOrderExists(vctx, orderID)
	if err != nil {
		log.WarnContext(ctx, "order visibility check failed", slog.String("error", err.Error()))
		return
	}
	log.DebugContext(ctx, "order visibility check", slog.Any("result", info))
}

func (p *PaymentInitializer) record(ctx context.Context, a *domain.PaymentAttempt) {
	if p.journal == nil {
		return
	}
	if err := p.journal.RecordAttempt(ctx, a); err != nil {
		logger.WithContext(ctx, p.logger).WarnContext(ctx, "failed to journal payment attempt",
			slog.String("order_id", a.OrderID),
			slog.Int("attempt", a.Attempt),
			slog.String("error", err.Error()),
		)
	}
}

func (p *PaymentInitializer) fail(ctx context.Context, log *slog.Logger, session *domain.PaymentSession, attempt int) {
	p.transition(session, domain.PaymentStateFailed, attempt, session.LastDetail)
	PaymentSessions.WithLabelValues(string(domain.PaymentStateFailed)).Inc()
	log.ErrorContext(ctx, "payment initialization failed",
		slog.Int("attempts", session.Attempts),
		slog.String("detail", session.LastDetail),
	)
	if err := p.producer.PublishPaymentFailed(ctx, session); err != nil {
		log.ErrorContext(ctx, "failed to publish payment.failed event", slog.String("error", err.Error()))
	}
}

// abandon ends the session when the caller's context is done. Pending
// attempts are not started.
func (p *PaymentInitializer) abandon(ctx context.Context, log *slog.Logger, session *domain.PaymentSession, span trace.Span, cause error) (*domain.PaymentSession, error) {
	if session.LastDetail == "" {
		session.LastDetail = "payment initialization was abandoned"
	}
	p.transition(session, domain.PaymentStateFailed, session.Attempts, session.LastDetail)
	PaymentSessions.WithLabelValues(string(domain.PaymentStateFailed)).Inc()
	log.WarnContext(ctx, "payment initialization abandoned", slog.String("error", cause.Error()))

	appErr := apperrors.PaymentInitFailed(session.Attempts, session.LastDetail, cause)
	tracing.Fail(span, appErr)
	return session, appErr
}

func (p *PaymentInitializer) transition(session *domain.PaymentSession, to domain.PaymentState, attempt int, detail string) {
	t := Transition{
		OrderID: session.OrderID,
		From:    session.State,
		To:      to,
		Attempt: attempt,
		Detail:  detail,
		At:      p.now(),
	}
	session.State = to
	for _, o := range p.observers {
		o(t)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
