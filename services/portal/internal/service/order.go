package service

import (
	"context"
	"errors"
	"log/slog"

	apperrors "github.com/utafrali/CitizenPortal/pkg/errors"
	"github.com/utafrali/CitizenPortal/pkg/logger"
	"github.com/utafrali/CitizenPortal/pkg/validator"
	"github.com/utafrali/CitizenPortal/services/portal/internal/domain"
)

// OrderBackend creates orders on the backend.
type OrderBackend interface {
	SubmitOrder(ctx context.Context, req domain.OrderRequest) (*domain.SubmittedOrder, error)
}

// OrderSubmitter validates a checkout locally and submits it exactly once.
type OrderSubmitter struct {
	backend OrderBackend
	logger  *slog.Logger
}

// NewOrderSubmitter creates an order submitter.
func NewOrderSubmitter(backend OrderBackend, logger *slog.Logger) *OrderSubmitter {
	return &OrderSubmitter{backend: backend, logger: logger}
}

// Submit sends the snapshot and customer block to the backend. Local checks
// run first so an obviously invalid order never reaches the network.
func (s *OrderSubmitter) Submit(ctx context.Context, snap domain.CartSnapshot, customer domain.CustomerInfo) (*domain.SubmittedOrder, error) {
	if err := PrevalidateOrder(snap, customer); err != nil {
		return nil, err
	}

	submitted, err := s.backend.SubmitOrder(ctx, domain.NewOrderRequest(snap, customer))
	if err != nil {
		return nil, err
	}

	logger.WithContext(ctx, s.logger).InfoContext(ctx, "order submitted",
		slog.String("order_id", submitted.OrderID),
		slog.Int("lines", len(snap.Lines)),
		slog.String("grand_total", snap.Totals.GrandTotal.StringFixed(2)),
	)
	return submitted, nil
}

// PrevalidateOrder reports every local problem with a checkout at once.
func PrevalidateOrder(snap domain.CartSnapshot, customer domain.CustomerInfo) error {
	var fields []apperrors.FieldError
	if snap.IsEmpty() {
		fields = append(fields, apperrors.FieldError{Field: "items", Message: "cart is empty"})
	}

	if err := validator.Validate(customer); err != nil {
		var ve *validator.ValidationError
		if !errors.As(err, &ve) {
			return apperrors.Internal(err)
		}
		fields = append(fields, ve.Fields()...)
	}

	if len(fields) > 0 {
		return apperrors.ValidationFailed("", fields...)
	}
	return nil
}
