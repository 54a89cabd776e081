package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/utafrali/CitizenPortal/services/portal/internal/domain"
)

// flexID accepts identifiers encoded as JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*f = flexID(n.String())
	return nil
}

type submitBody struct {
	OrderID     flexID           `json:"order_id"`
	ID          flexID           `json:"id"`
	TotalAmount *decimal.Decimal `json:"total_amount"`
}

func (b submitBody) id() string {
	if b.OrderID != "" {
		return string(b.OrderID)
	}
	return string(b.ID)
}

// submitResponse covers {order_id}, {id} and {data: {order_id}}.
type submitResponse struct {
	submitBody
	Data *submitBody `json:"data"`
}

func (r submitResponse) toDomain() *domain.SubmittedOrder {
	out := &domain.SubmittedOrder{OrderID: r.id(), TotalAmount: r.TotalAmount}
	if r.Data != nil {
		if out.OrderID == "" {
			out.OrderID = r.Data.id()
		}
		if out.TotalAmount == nil {
			out.TotalAmount = r.Data.TotalAmount
		}
	}
	return out
}

type orderDTO struct {
	OrderID       flexID          `json:"order_id"`
	ID            flexID          `json:"id"`
	CreatedAt     string          `json:"created_at"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	OrderStatus   string          `json:"order_status"`
	Status        string          `json:"status"`
	PaymentStatus string          `json:"payment_status"`
}

// Backends emit RFC 3339 as well as naive ISO timestamps without a zone;
// the latter are taken as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func (d orderDTO) toDomain() (domain.Order, bool) {
	id := string(d.OrderID)
	if id == "" {
		id = string(d.ID)
	}
	if id == "" {
		return domain.Order{}, false
	}

	raw := d.OrderStatus
	if raw == "" {
		raw = d.Status
	}
	status, _ := domain.ParseOrderStatus(raw)

	return domain.Order{
		ID:            id,
		CreatedAt:     parseTimestamp(d.CreatedAt),
		TotalAmount:   d.TotalAmount,
		Status:        status,
		PaymentStatus: domain.ParsePaymentStatus(d.PaymentStatus),
	}, true
}

func decodeOrders(body []byte) ([]orderDTO, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var list []orderDTO
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("decode order list: %w", err)
		}
		return list, nil
	}
	var envelope struct {
		Orders []orderDTO `json:"orders"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, fmt.Errorf("decode order envelope: %w", err)
	}
	return envelope.Orders, nil
}
