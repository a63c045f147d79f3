package orders

import (
	"math"
	"time"
)

// Order statuses. Provider statuses that have no internal meaning (in_process,
// authorized, in_mediation, ...) are stored as received.
const (
	StatusPending     = "pending"
	StatusPaid        = "paid"
	StatusApproved    = "approved"
	StatusShipped     = "shipped"
	StatusDelivered   = "delivered"
	StatusCancelled   = "cancelled"
	StatusRefunded    = "refunded"
	StatusChargedBack = "charged_back"
)

// Payment methods.
const (
	MethodPix  = "pix"
	MethodCard = "card"
)

// LineItem is a snapshot of a cart line at submission time.
type LineItem struct {
	ProductID string   `dynamodbav:"product_id" json:"product_id"`
	Name      string   `dynamodbav:"name" json:"name"`
	Slug      string   `dynamodbav:"slug,omitempty" json:"slug,omitempty"`
	UnitPrice float64  `dynamodbav:"unit_price" json:"unit_price"`
	Quantity  int      `dynamodbav:"quantity" json:"quantity"`
	Images    []string `dynamodbav:"images,omitempty" json:"images,omitempty"`
}

// Address is the denormalized shipping address stored with the order.
type Address struct {
	RecipientName string `dynamodbav:"recipient_name" json:"recipient_name"`
	TaxID         string `dynamodbav:"tax_id,omitempty" json:"tax_id,omitempty"`
	Phone         string `dynamodbav:"phone,omitempty" json:"phone,omitempty"`
	Street        string `dynamodbav:"street" json:"street"`
	Number        string `dynamodbav:"number" json:"number"`
	Complement    string `dynamodbav:"complement,omitempty" json:"complement,omitempty"`
	Neighborhood  string `dynamodbav:"neighborhood,omitempty" json:"neighborhood,omitempty"`
	City          string `dynamodbav:"city" json:"city"`
	State         string `dynamodbav:"state" json:"state"`
	PostalCode    string `dynamodbav:"postal_code" json:"postal_code"`
	Country       string `dynamodbav:"country,omitempty" json:"country,omitempty"`
}

// Order represents the item stored in the Orders DynamoDB table.
type Order struct {
	OrderNumber     string     `dynamodbav:"order_number" json:"order_number"` // PK, also the provider external reference
	ID              string     `dynamodbav:"id" json:"id"`
	OwnerID         string     `dynamodbav:"owner_id" json:"owner_id"` // GSI owner_id-index
	CustomerEmail   string     `dynamodbav:"customer_email,omitempty" json:"customer_email,omitempty"`
	CustomerName    string     `dynamodbav:"customer_name,omitempty" json:"customer_name,omitempty"`
	Items           []LineItem `dynamodbav:"items" json:"items"`
	Subtotal        float64    `dynamodbav:"subtotal" json:"subtotal"`
	ShippingPrice   float64    `dynamodbav:"shipping_price" json:"shipping_price"`
	Total           float64    `dynamodbav:"total" json:"total"`
	ShippingOption  string     `dynamodbav:"shipping_option,omitempty" json:"shipping_option,omitempty"`
	ShippingAddress Address    `dynamodbav:"shipping_address" json:"shipping_address"`
	PaymentMethod   string     `dynamodbav:"payment_method" json:"payment_method"`
	PaymentID       string     `dynamodbav:"payment_id,omitempty" json:"payment_id,omitempty"`
	Status          string     `dynamodbav:"status" json:"status"`
	CreatedAt       time.Time  `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `dynamodbav:"updated_at" json:"updated_at"`
}

// Subtotal sums unit price x quantity, rounded to cents.
func Subtotal(items []LineItem) float64 {
	var sum float64
	for _, it := range items {
		sum += it.UnitPrice * float64(it.Quantity)
	}
	return RoundCents(sum)
}

// RoundCents rounds an amount to two decimal places.
func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// IsConfirmed reports whether status means the payment was confirmed.
// paid and approved are synonyms coming from different code paths.
func IsConfirmed(status string) bool {
	return status == StatusPaid || status == StatusApproved
}
