package payment

import (
	"errors"
	"fmt"

	"github.com/imrishuroy/storefront-checkout/internal/orders"
)

// Result types.
const (
	TypePreference = "preference"
	TypePix        = "pix"
)

var (
	// ErrInProgress means another request is creating the same order right now.
	ErrInProgress = errors.New("payment creation already in progress")
	// ErrProvider wraps any failure of the payment provider.
	ErrProvider = errors.New("payment provider failure")
	// ErrMethodMismatch means the order number already carries a payment made
	// with another method.
	ErrMethodMismatch = errors.New("order already has a payment with another method")
)

// ValidationError rejects a request before anything is persisted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// CreateRequest is the checkout submission.
type CreateRequest struct {
	OrderNumber     string // optional, generated when empty
	UserID          string
	CustomerEmail   string
	CustomerName    string
	Items           []orders.LineItem
	ShippingPrice   float64
	ShippingOption  string
	ShippingAddress orders.Address
	PaymentMethod   string
	TaxID           string
}

// Payload carries the provider artifacts the browser needs.
type Payload struct {
	PreferenceID string `json:"preference_id,omitempty"`
	InitPoint    string `json:"init_point,omitempty"`
	PaymentID    string `json:"payment_id,omitempty"`
	QRCode       string `json:"qr_code,omitempty"`
	QRCodeBase64 string `json:"qr_code_base64,omitempty"`
	TicketURL    string `json:"ticket_url,omitempty"`
}

// Result is returned by Create and replayed verbatim for duplicate submissions.
type Result struct {
	Type    string  `json:"type"`
	Order   string  `json:"order"`
	Payload Payload `json:"payload"`
}
