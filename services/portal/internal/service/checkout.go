package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	apperrors "github.com/utafrali/CitizenPortal/pkg/errors"
	"github.com/utafrali/CitizenPortal/pkg/logger"
	"github.com/utafrali/CitizenPortal/pkg/validator"
	"github.com/utafrali/CitizenPortal/services/portal/internal/domain"
	"github.com/utafrali/CitizenPortal/services/portal/internal/event"
	"github.com/utafrali/CitizenPortal/services/portal/internal/repository"
)

// CheckoutResult is the outcome of a checkout. OrderID is set whenever the
// order was created, even if payment initialization failed afterwards.
type CheckoutResult struct {
	OrderID string
	Payment *domain.PaymentSession
}

// CheckoutService runs submit-then-pay for one session at a time.
type CheckoutService struct {
	carts     *CartStore
	contacts  repository.ContactRepository
	guard     repository.SubmissionGuard
	lockTTL   time.Duration
	submitter *OrderSubmitter
	payments  *PaymentInitializer
	producer  *event.Producer
	logger    *slog.Logger
}

// NewCheckoutService creates a checkout service.
func NewCheckoutService(
	carts *CartStore,
	contacts repository.ContactRepository,
	guard repository.SubmissionGuard,
	lockTTL time.Duration,
	submitter *OrderSubmitter,
	payments *PaymentInitializer,
	producer *event.Producer,
	logger *slog.Logger,
) *CheckoutService {
	return &CheckoutService{
		carts:     carts,
		contacts:  contacts,
		guard:     guard,
		lockTTL:   lockTTL,
		submitter: submitter,
		payments:  payments,
		producer:  producer,
		logger:    logger,
	}
}

// SaveContact persists the phone and address typed on the checkout page.
func (s *CheckoutService) SaveContact(ctx context.Context, sessionID string, c domain.Contact) error {
	c.Phone = strings.TrimSpace(c.Phone)
	c.Address = strings.TrimSpace(c.Address)

	var fields []apperrors.FieldError
	if fe := validator.Var("phone", c.Phone, "omitempty,phone"); fe != nil {
		fields = append(fields, *fe)
	}
	if fe := validator.Var("address", c.Address, "omitempty,max=500"); fe != nil {
		fields = append(fields, *fe)
	}
	if len(fields) > 0 {
		return apperrors.ValidationFailed("", fields...)
	}

	if err := s.contacts.SaveContact(ctx, sessionID, c); err != nil {
		logger.WithContext(ctx, s.logger).ErrorContext(ctx, "failed to save checkout contact",
			slog.String("error", err.Error()),
		)
		return apperrors.ServiceUnavailable("checkout storage is unavailable, please try again")
	}
	return nil
}

// Checkout submits the session's cart as an order, clears the cart and
// hands the order to the payment gateway.
func (s *CheckoutService) Checkout(ctx context.Context, sessionID string, customer domain.CustomerInfo) (*CheckoutResult, error) {
	log := logger.WithContext(ctx, s.logger)

	release, err := s.guard.Acquire(ctx, sessionID, s.lockTTL)
	if err != nil {
		if errors.Is(err, repository.ErrLockHeld) {
			Checkouts.WithLabelValues("conflict").Inc()
			return nil, apperrors.Conflict("a checkout is already in progress for this session")
		}
		log.ErrorContext(ctx, "failed to acquire checkout lock", slog.String("error", err.Error()))
		return nil, apperrors.ServiceUnavailable("checkout is temporarily unavailable, please try again")
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			log.WarnContext(ctx, "failed to release checkout lock", slog.String("error", err.Error()))
		}
	}()

	// Contact fields are read once per checkout.
	contact, err := s.contacts.LoadContact(ctx, sessionID)
	if err != nil {
		log.WarnContext(ctx, "failed to load stored contact, using request values", slog.String("error", err.Error()))
	}
	customer = customer.WithContact(contact)

	snap, err := s.carts.Snapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	submitted, err := s.submitter.Submit(ctx, snap, customer)
	if err != nil {
		Checkouts.WithLabelValues("rejected").Inc()
		return nil, err
	}

	if _, err := s.carts.Clear(ctx, sessionID); err != nil {
		log.ErrorContext(ctx, "failed to clear cart after order submission",
			slog.String("order_id", submitted.OrderID),
			slog.String("error", err.Error()),
		)
	}
	if err := s.producer.PublishOrderSubmitted(ctx, submitted.OrderID, snap, customer); err != nil {
		log.ErrorContext(ctx, "failed to publish order.submitted event",
			slog.String("order_id", submitted.OrderID),
			slog.String("error", err.Error()),
		)
	}

	expected := snap.Totals.GrandTotal
	if submitted.TotalAmount != nil {
		expected = *submitted.TotalAmount
	}

	session, err := s.payments.Initialize(ctx, InitializeInput{
		OrderID:  submitted.OrderID,
		Expected: expected,
		Snapshot: snap,
		Customer: customer,
	})
	result := &CheckoutResult{OrderID: submitted.OrderID, Payment: session}
	if err != nil {
		Checkouts.WithLabelValues("payment_failed").Inc()
		return result, err
	}

	Checkouts.WithLabelValues("redirecting").Inc()
	return result, nil
}
