package mercadopago

import "strconv"

// Payment statuses reported by the provider.
const (
	StatusPending     = "pending"
	StatusApproved    = "approved"
	StatusAuthorized  = "authorized"
	StatusInProcess   = "in_process"
	StatusInMediation = "in_mediation"
	StatusRejected    = "rejected"
	StatusCancelled   = "cancelled"
	StatusRefunded    = "refunded"
	StatusChargedBack = "charged_back"
)

// PreferenceItem is one product line of a checkout preference.
type PreferenceItem struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	CurrencyID string  `json:"currency_id"`
	PictureURL string  `json:"picture_url,omitempty"`
}

// Payer identifies the buyer.
type Payer struct {
	Name           string          `json:"name,omitempty"`
	FirstName      string          `json:"first_name,omitempty"`
	Email          string          `json:"email"`
	Identification *Identification `json:"identification,omitempty"`
}

// Identification is the payer tax document.
type Identification struct {
	Type   string `json:"type"`
	Number string `json:"number"`
}

// BackURLs are the browser return targets of a preference.
type BackURLs struct {
	Success string `json:"success"`
	Failure string `json:"failure"`
	Pending string `json:"pending"`
}

// Shipments carries the shipping cost charged on top of the items.
type Shipments struct {
	Cost float64 `json:"cost"`
	Mode string  `json:"mode"`
}

// PreferenceRequest creates a hosted card checkout.
type PreferenceRequest struct {
	Items             []PreferenceItem  `json:"items"`
	Payer             Payer             `json:"payer"`
	Shipments         *Shipments        `json:"shipments,omitempty"`
	BackURLs          BackURLs          `json:"back_urls"`
	AutoReturn        string            `json:"auto_return,omitempty"`
	ExternalReference string            `json:"external_reference"`
	NotificationURL   string            `json:"notification_url,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// Preference is the created hosted checkout.
type Preference struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

// PaymentRequest creates a direct payment (PIX).
type PaymentRequest struct {
	TransactionAmount float64           `json:"transaction_amount"`
	Description       string            `json:"description"`
	PaymentMethodID   string            `json:"payment_method_id"`
	Payer             Payer             `json:"payer"`
	ExternalReference string            `json:"external_reference"`
	NotificationURL   string            `json:"notification_url,omitempty"`
	DateOfExpiration  string            `json:"date_of_expiration,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// TransactionData holds the PIX artifacts of a payment.
type TransactionData struct {
	QRCode       string `json:"qr_code"`
	QRCodeBase64 string `json:"qr_code_base64"`
	TicketURL    string `json:"ticket_url"`
}

// PointOfInteraction wraps TransactionData in the payment resource.
type PointOfInteraction struct {
	Type            string          `json:"type"`
	TransactionData TransactionData `json:"transaction_data"`
}

// Payment is the provider payment resource.
type Payment struct {
	ID                 int64              `json:"id"`
	Status             string             `json:"status"`
	StatusDetail       string             `json:"status_detail"`
	ExternalReference  string             `json:"external_reference"`
	TransactionAmount  float64            `json:"transaction_amount"`
	PaymentMethodID    string             `json:"payment_method_id"`
	DateCreated        string             `json:"date_created"`
	DateApproved       string             `json:"date_approved,omitempty"`
	PointOfInteraction PointOfInteraction `json:"point_of_interaction"`
}

// IDString returns the payment id as stored on orders.
func (p Payment) IDString() string {
	return strconv.FormatInt(p.ID, 10)
}

// MerchantOrderPayment is a payment summary inside a merchant order.
type MerchantOrderPayment struct {
	ID           int64  `json:"id"`
	Status       string `json:"status"`
	DateApproved string `json:"date_approved,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
}

// IDString returns the payment id as stored on orders.
func (p MerchantOrderPayment) IDString() string {
	return strconv.FormatInt(p.ID, 10)
}

// MerchantOrder groups the payments made against one preference.
type MerchantOrder struct {
	ID                int64                  `json:"id"`
	Status            string                 `json:"status"`
	OrderStatus       string                 `json:"order_status"`
	ExternalReference string                 `json:"external_reference"`
	Payments          []MerchantOrderPayment `json:"payments"`
}

// Settled picks the payment that decides the order status: an approved one
// when present, otherwise the last one listed. ok is false when there are none.
func (m MerchantOrder) Settled() (p MerchantOrderPayment, ok bool) {
	if len(m.Payments) == 0 {
		return MerchantOrderPayment{}, false
	}
	for _, pay := range m.Payments {
		if pay.Status == StatusApproved {
			return pay, true
		}
	}
	return m.Payments[len(m.Payments)-1], true
}

type searchResponse struct {
	Results []Payment `json:"results"`
}
