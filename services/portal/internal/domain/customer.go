package domain

import "strings"

// CustomerInfo is the contact block sent with orders and payment requests.
type CustomerInfo struct {
	Name    string `json:"customer_name" validate:"required,notblank,max=200"`
	Email   string `json:"customer_email" validate:"required,email,max=254"`
	Phone   string `json:"customer_phone" validate:"required,phone"`
	Address string `json:"delivery_address" validate:"required,notblank,max=500"`
}

// Contact holds the checkout fields persisted per session between page loads.
type Contact struct {
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// WithContact returns c with phone and address taken from stored contact
// fields when present, falling back to the values already on c.
func (c CustomerInfo) WithContact(stored Contact) CustomerInfo {
	if p := strings.TrimSpace(stored.Phone); p != "" {
		c.Phone = p
	}
	if a := strings.TrimSpace(stored.Address); a != "" {
		c.Address = a
	}
	return c
}
