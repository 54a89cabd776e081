package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	pkgkafka "github.com/utafrali/CitizenPortal/pkg/kafka"
	"github.com/utafrali/CitizenPortal/pkg/logger"
	"github.com/utafrali/CitizenPortal/services/portal/internal/domain"
)

// Kafka topics for portal checkout events.
var (
	TopicOrderSubmitted     = pkgkafka.Topic("order", "submitted")
	TopicPaymentRedirecting = pkgkafka.Topic("payment", "redirecting")
	TopicPaymentFailed      = pkgkafka.Topic("payment", "failed")
	TopicPaymentCallback    = pkgkafka.Topic("payment", "callback")
)

// Aggregate types.
const (
	AggregateTypeOrder   = "order"
	AggregateTypePayment = "payment"
)

// SourcePortal identifies events emitted by the portal BFF.
const SourcePortal = "portal-bff"

// OrderSubmittedData is the payload for portal.order.submitted.
type OrderSubmittedData struct {
	OrderID       string        `json:"order_id"`
	SessionID     string        `json:"session_id"`
	ItemCount     int           `json:"item_count"`
	Amounts       domain.Totals `json:"amounts"`
	CustomerEmail string        `json:"customer_email"`
}

// PaymentRedirectingData is the payload for portal.payment.redirecting.
type PaymentRedirectingData struct {
	OrderID      string              `json:"order_id"`
	Amount       decimal.Decimal     `json:"amount"`
	Attempts     int                 `json:"attempts"`
	RedirectKind domain.RedirectKind `json:"redirect_kind,omitempty"`
	Target       string              `json:"target,omitempty"`
}

// PaymentFailedData is the payload for portal.payment.failed.
type PaymentFailedData struct {
	OrderID  string          `json:"order_id"`
	Amount   decimal.Decimal `json:"amount"`
	Attempts int             `json:"attempts"`
	Reason   string          `json:"reason"`
}

// PaymentCallbackData is the payload for portal.payment.callback.
type PaymentCallbackData struct {
	OrderID string `json:"order_id"`
	Outcome string `json:"outcome"`
}

// Producer publishes portal domain events.
type Producer struct {
	publisher pkgkafka.Publisher
	logger    *slog.Logger
}

// NewProducer creates a new event producer. publisher is a *pkgkafka.Producer
// or pkgkafka.NoopPublisher when Kafka is disabled.
func NewProducer(publisher pkgkafka.Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		publisher: publisher,
		logger:    logger,
	}
}

// PublishOrderSubmitted publishes portal.order.submitted.
func (p *Producer) PublishOrderSubmitted(ctx context.Context, orderID string, snap domain.CartSnapshot, customer domain.CustomerInfo) error {
	count := 0
	for _, l := range snap.Lines {
		count += l.Quantity
	}
	data := OrderSubmittedData{
		OrderID:       orderID,
		SessionID:     snap.SessionID,
		ItemCount:     count,
		Amounts:       snap.Totals,
		CustomerEmail: customer.Email,
	}
	return p.publish(ctx, TopicOrderSubmitted, orderID, AggregateTypeOrder, data)
}

// PublishPaymentRedirecting publishes portal.payment.redirecting.
func (p *Producer) PublishPaymentRedirecting(ctx context.Context, s *domain.PaymentSession) error {
	data := PaymentRedirectingData{
		OrderID:  s.OrderID,
		Amount:   s.Amount,
		Attempts: s.Attempts,
	}
	if s.Redirect != nil {
		data.RedirectKind = s.Redirect.Kind
		data.Target = s.Redirect.Target
	}
	return p.publish(ctx, TopicPaymentRedirecting, s.OrderID, AggregateTypePayment, data)
}

// PublishPaymentFailed publishes portal.payment.failed.
func (p *Producer) PublishPaymentFailed(ctx context.Context, s *domain.PaymentSession) error {
	data := PaymentFailedData{
		OrderID:  s.OrderID,
		Amount:   s.Amount,
		Attempts: s.Attempts,
		Reason:   s.LastDetail,
	}
	return p.publish(ctx, TopicPaymentFailed, s.OrderID, AggregateTypePayment, data)
}

// PublishPaymentCallback publishes portal.payment.callback for a gateway
// return to the success or cancel page.
func (p *Producer) PublishPaymentCallback(ctx context.Context, orderID, outcome string) error {
	data := PaymentCallbackData{OrderID: orderID, Outcome: outcome}
	return p.publish(ctx, TopicPaymentCallback, orderID, AggregateTypePayment, data)
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID, aggregateType string, data any) error {
	event, err := pkgkafka.NewEvent(topic, aggregateID, aggregateType, SourcePortal, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	event.WithCorrelationID(logger.CorrelationIDFromContext(ctx)).
		WithMetadata("session_id", logger.SessionIDFromContext(ctx)).
		WithMetadata("citizen_id", logger.CitizenIDFromContext(ctx))

	if err := p.publisher.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("aggregate_id", aggregateID),
	)
	return nil
}
