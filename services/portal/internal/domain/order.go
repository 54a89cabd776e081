package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/utafrali/CitizenPortal/pkg/pagination"
)

// OrderStatus is the fulfilment axis of an order. It is independent of
// PaymentStatus; the two are never folded into one state machine.
type OrderStatus string

const (
	OrderStatusProcessing OrderStatus = "Processing"
	OrderStatusConfirmed  OrderStatus = "Confirmed"
	OrderStatusShipped    OrderStatus = "Shipped"
	OrderStatusDelivered  OrderStatus = "Delivered"
	OrderStatusCancelled  OrderStatus = "Cancelled"
)

// OrderStatuses lists the known fulfilment states in display order.
func OrderStatuses() []OrderStatus {
	return []OrderStatus{
		OrderStatusProcessing,
		OrderStatusConfirmed,
		OrderStatusShipped,
		OrderStatusDelivered,
		OrderStatusCancelled,
	}
}

// ParseOrderStatus matches s case-insensitively against the known states and
// accepts the "canceled" spelling. Unknown values are returned unchanged with
// ok=false.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	norm := strings.ToLower(strings.TrimSpace(s))
	if norm == "canceled" {
		return OrderStatusCancelled, true
	}
	for _, st := range OrderStatuses() {
		if strings.ToLower(string(st)) == norm {
			return st, true
		}
	}
	return OrderStatus(s), false
}

// Known reports whether st is one of the five fulfilment states.
func (st OrderStatus) Known() bool {
	_, ok := ParseOrderStatus(string(st))
	return ok
}

// PaymentStatus is the payment axis of an order.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "Pending"
	PaymentStatusPaid    PaymentStatus = "Paid"
	PaymentStatusFailed  PaymentStatus = "Failed"
)

// ParsePaymentStatus normalizes known payment states; anything else is kept
// verbatim.
func ParsePaymentStatus(s string) PaymentStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return PaymentStatusPending
	case "paid", "completed", "success":
		return PaymentStatusPaid
	case "failed":
		return PaymentStatusFailed
	}
	return PaymentStatus(s)
}

// Order is a backend-owned order record as read by the portal.
type Order struct {
	ID            string          `json:"order_id"`
	CreatedAt     time.Time       `json:"created_at"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Status        OrderStatus     `json:"order_status"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
}

// OrderRequest is the payload sent to create an order.
type OrderRequest struct {
	Items        []OrderItem  `json:"items"`
	Amounts      Totals       `json:"amounts"`
	CustomerInfo CustomerInfo `json:"customer_info"`
}

// OrderItem is a cart line as submitted to the backend.
type OrderItem struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// NewOrderRequest builds the backend payload from a snapshot.
func NewOrderRequest(snap CartSnapshot, customer CustomerInfo) OrderRequest {
	items := make([]OrderItem, 0, len(snap.Lines))
	for _, l := range snap.Lines {
		items = append(items, OrderItem(l))
	}
	return OrderRequest{Items: items, Amounts: snap.Totals, CustomerInfo: customer}
}

// SubmittedOrder is the backend's answer to an order submission. TotalAmount
// is nil when the backend did not echo a total.
type SubmittedOrder struct {
	OrderID     string           `json:"order_id"`
	TotalAmount *decimal.Decimal `json:"total_amount,omitempty"`
}

// OrderFilter selects orders by fulfilment state; the zero value means all.
type OrderFilter struct {
	Status OrderStatus
}

// All reports whether the filter is the "all" pseudo-state.
func (f OrderFilter) All() bool {
	return f.Status == ""
}

// Matches reports whether o passes the filter.
func (f OrderFilter) Matches(o Order) bool {
	return f.All() || o.Status == f.Status
}

// ParseOrderFilter accepts "", "all" or any known status.
func ParseOrderFilter(s string) (OrderFilter, bool) {
	if s == "" || strings.EqualFold(strings.TrimSpace(s), "all") {
		return OrderFilter{}, true
	}
	st, ok := ParseOrderStatus(s)
	if !ok {
		return OrderFilter{}, false
	}
	return OrderFilter{Status: st}, true
}

// OrderSummary counts orders over the loaded set.
type OrderSummary struct {
	Total      int `json:"total"`
	Processing int `json:"processing"`
	Delivered  int `json:"delivered"`
	Cancelled  int `json:"cancelled"`
}

// Summarize counts the full set; filtering never changes the summary.
func Summarize(orders []Order) OrderSummary {
	s := OrderSummary{Total: len(orders)}
	for _, o := range orders {
		switch o.Status {
		case OrderStatusProcessing:
			s.Processing++
		case OrderStatusDelivered:
			s.Delivered++
		case OrderStatusCancelled:
			s.Cancelled++
		}
	}
	return s
}

// OrderListing is the lifecycle view returned to the portal UI.
type OrderListing struct {
	Filter  string           `json:"filter"`
	Orders  []Order          `json:"orders"`
	Summary OrderSummary     `json:"summary"`
	Page    *pagination.Meta `json:"page,omitempty"`
}
