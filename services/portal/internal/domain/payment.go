package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentState is a step of the payment handoff.
type PaymentState string

const (
	PaymentStateIdle         PaymentState = "idle"
	PaymentStateVerifying    PaymentState = "verifying"
	PaymentStateInitializing PaymentState = "initializing"
	PaymentStateRedirecting  PaymentState = "redirecting"
	PaymentStateFailed       PaymentState = "failed"
)

// Terminal reports whether no further transition can happen.
func (s PaymentState) Terminal() bool {
	return s == PaymentStateRedirecting || s == PaymentStateFailed
}

// PaymentRequest is the payload sent to the payment-initialization endpoint.
type PaymentRequest struct {
	OrderID         string          `json:"order_id"`
	Amount          decimal.Decimal `json:"amount"`
	CustomerName    string          `json:"customer_name"`
	CustomerEmail   string          `json:"customer_email"`
	CustomerPhone   string          `json:"customer_phone"`
	DeliveryAddress string          `json:"delivery_address"`
}

// NewPaymentRequest builds the initialization payload.
func NewPaymentRequest(orderID string, amount decimal.Decimal, c CustomerInfo) PaymentRequest {
	return PaymentRequest{
		OrderID:         orderID,
		Amount:          amount,
		CustomerName:    c.Name,
		CustomerEmail:   c.Email,
		CustomerPhone:   c.Phone,
		DeliveryAddress: c.Address,
	}
}

// RedirectKind names how the gateway payload moves the browser on.
type RedirectKind string

const (
	RedirectForm        RedirectKind = "form"
	RedirectMetaRefresh RedirectKind = "meta_refresh"
)

// RedirectDirective describes the gateway handoff extracted from the payload.
type RedirectDirective struct {
	Kind   RedirectKind      `json:"kind"`
	Target string            `json:"target"`
	Method string            `json:"method,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// PaymentSession is the ephemeral result of a payment initialization. It is
// never persisted.
type PaymentSession struct {
	OrderID     string             `json:"order_id"`
	Amount      decimal.Decimal    `json:"amount"`
	Customer    CustomerInfo       `json:"customer"`
	State       PaymentState       `json:"state"`
	Attempts    int                `json:"attempts"`
	LastDetail  string             `json:"last_detail,omitempty"`
	GatewayForm []byte             `json:"-"`
	Redirect    *RedirectDirective `json:"redirect,omitempty"`
}

// AttemptOutcome classifies one initialization attempt.
type AttemptOutcome string

const (
	AttemptSucceeded   AttemptOutcome = "succeeded"
	AttemptRejected    AttemptOutcome = "rejected"
	AttemptUnavailable AttemptOutcome = "unavailable"
	AttemptTimedOut    AttemptOutcome = "timed_out"
	AttemptMalformed   AttemptOutcome = "malformed"
)

// PaymentAttempt is one journaled initialization attempt.
type PaymentAttempt struct {
	ID          int64           `json:"id,omitempty"`
	OrderID     string          `json:"order_id"`
	Attempt     int             `json:"attempt"`
	Outcome     AttemptOutcome  `json:"outcome"`
	Detail      string          `json:"detail,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	DurationMS  int64           `json:"duration_ms"`
	AttemptedAt time.Time       `json:"attempted_at"`
}
