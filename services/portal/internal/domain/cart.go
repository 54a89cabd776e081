package domain

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// CartLine is one product entry in a cart. LineTotal is always
// UnitPrice × Quantity and is never set by callers.
type CartLine struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

func (l *CartLine) recompute() {
	l.LineTotal = l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart is the ordered line set owned by one browser session.
type Cart struct {
	SessionID string     `json:"session_id"`
	Lines     []CartLine `json:"lines"`
	// Revision orders writes across replicas; the higher revision wins.
	Revision  int64     `json:"revision"`
	Origin    string    `json:"origin,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewCart returns an empty cart for the session.
func NewCart(sessionID string) *Cart {
	return &Cart{SessionID: sessionID, Lines: []CartLine{}}
}

// AddOrUpdate replaces the quantity of an existing line or appends a new one.
// A non-positive quantity removes the line and a negative price is clamped
// to zero. An empty product id is ignored. It reports whether the cart changed.
func (c *Cart) AddOrUpdate(productID, productName string, unitPrice decimal.Decimal, quantity int) bool {
	if productID == "" {
		return false
	}
	if quantity <= 0 {
		return c.Remove(productID)
	}
	if unitPrice.IsNegative() {
		unitPrice = decimal.Zero
	}

	if i := c.index(productID); i >= 0 {
		line := &c.Lines[i]
		if line.Quantity == quantity && line.UnitPrice.Equal(unitPrice) && (productName == "" || line.ProductName == productName) {
			return false
		}
		line.Quantity = quantity
		line.UnitPrice = unitPrice
		if productName != "" {
			line.ProductName = productName
		}
		line.recompute()
		return true
	}

	line := CartLine{
		ProductID:   productID,
		ProductName: productName,
		UnitPrice:   unitPrice,
		Quantity:    quantity,
	}
	line.recompute()
	c.Lines = append(c.Lines, line)
	return true
}

// Remove deletes the line for productID. Missing lines are a no-op.
func (c *Cart) Remove(productID string) bool {
	i := c.index(productID)
	if i < 0 {
		return false
	}
	c.Lines = slices.Delete(c.Lines, i, i+1)
	return true
}

// Clear empties the cart.
func (c *Cart) Clear() bool {
	if len(c.Lines) == 0 {
		return false
	}
	c.Lines = []CartLine{}
	return true
}

// Normalize repairs lines read from storage: negative prices are clamped,
// non-positive quantities and duplicate product ids are dropped (first wins),
// and every line total is recomputed.
func (c *Cart) Normalize() {
	seen := make(map[string]struct{}, len(c.Lines))
	out := make([]CartLine, 0, len(c.Lines))
	for _, l := range c.Lines {
		if l.ProductID == "" || l.Quantity <= 0 {
			continue
		}
		if _, dup := seen[l.ProductID]; dup {
			continue
		}
		seen[l.ProductID] = struct{}{}
		if l.UnitPrice.IsNegative() {
			l.UnitPrice = decimal.Zero
		}
		l.recompute()
		out = append(out, l)
	}
	c.Lines = out
}

// ItemCount is the sum of quantities.
func (c *Cart) ItemCount() int {
	n := 0
	for _, l := range c.Lines {
		n += l.Quantity
	}
	return n
}

// Clone returns a deep copy.
func (c *Cart) Clone() *Cart {
	cp := *c
	cp.Lines = slices.Clone(c.Lines)
	if cp.Lines == nil {
		cp.Lines = []CartLine{}
	}
	return &cp
}

func (c *Cart) index(productID string) int {
	return slices.IndexFunc(c.Lines, func(l CartLine) bool { return l.ProductID == productID })
}

// CartSnapshot is an immutable copy of a cart taken at checkout time.
type CartSnapshot struct {
	SessionID string     `json:"session_id"`
	Lines     []CartLine `json:"lines"`
	Totals    Totals     `json:"totals"`
	Revision  int64      `json:"revision"`
	TakenAt   time.Time  `json:"taken_at"`
}

// Snapshot copies the current lines and prices them.
func (c *Cart) Snapshot(p Pricing, now time.Time) CartSnapshot {
	lines := slices.Clone(c.Lines)
	return CartSnapshot{
		SessionID: c.SessionID,
		Lines:     lines,
		Totals:    p.Totals(lines),
		Revision:  c.Revision,
		TakenAt:   now,
	}
}

// IsEmpty reports whether the snapshot has no lines.
func (s CartSnapshot) IsEmpty() bool {
	return len(s.Lines) == 0
}
