package domain

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Pricing holds the flat shipping surcharge and tax rate applied to a cart.
type Pricing struct {
	ShippingFee    decimal.Decimal
	TaxRatePercent decimal.Decimal
	Currency       string
}

// Totals is the derived price breakdown of a line set.
type Totals struct {
	Subtotal   decimal.Decimal `json:"subtotal"`
	Shipping   decimal.Decimal `json:"shipping"`
	Tax        decimal.Decimal `json:"tax"`
	GrandTotal decimal.Decimal `json:"grand_total"`
	Currency   string          `json:"currency"`
}

// Totals prices lines from scratch. Shipping applies only to a positive
// subtotal; tax is rounded to two places, half away from zero.
func (p Pricing) Totals(lines []CartLine) Totals {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}

	shipping := decimal.Zero
	if subtotal.IsPositive() {
		shipping = p.ShippingFee
	}
	tax := subtotal.Mul(p.TaxRatePercent).Div(hundred).Round(2)

	return Totals{
		Subtotal:   subtotal,
		Shipping:   shipping,
		Tax:        tax,
		GrandTotal: subtotal.Add(shipping).Add(tax),
		Currency:   p.Currency,
	}
}
