package reconcile

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"
)

// Notification kinds handled by the webhook.
const (
	KindPayment       = "payment"
	KindMerchantOrder = "merchant_order"
)

// EventStatusChanged is the SNS event type for status transitions.
const EventStatusChanged = "order.status_changed"

var (
	// ErrOrderNotFound is returned by Sync for unknown order numbers.
	ErrOrderNotFound = errors.New("order not found")
	// ErrPaymentMismatch means the payment belongs to another order.
	ErrPaymentMismatch = errors.New("payment does not belong to order")
	// ErrUnmatched marks notifications that can never be applied; they are not retried.
	ErrUnmatched = errors.New("notification does not match an order")
)

// ID accepts both JSON strings and numbers; the provider sends either.
type ID string

func (i *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*i = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*i = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*i = ID(n.String())
	return nil
}

// Notification is the webhook body.
type Notification struct {
	Type   string `json:"type"`
	Topic  string `json:"topic"`
	Action string `json:"action"`
	Data   struct {
		ID ID `json:"id"`
	} `json:"data"`
}

// Kind returns the notification kind, falling back to the legacy topic field.
func (n Notification) Kind() string {
	if n.Type != "" {
		return n.Type
	}
	return n.Topic
}

// WebhookInput carries the body and the signature headers of a notification.
type WebhookInput struct {
	Notification Notification
	DataID       string // data.id, body value or query parameter
	Signature    string // x-signature
	RequestID    string // x-request-id
}

// RetryMessage is queued when a notification could not be processed.
type RetryMessage struct {
	Kind     string    `json:"kind"`
	ID       string    `json:"id"`
	Attempt  int       `json:"attempt"`
	QueuedAt time.Time `json:"queued_at"`
}

// StatusEvent is published on every applied transition.
type StatusEvent struct {
	OrderNumber string    `json:"order_number"`
	OwnerID     string    `json:"owner_id"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	PaymentID   string    `json:"payment_id,omitempty"`
	Source      string    `json:"source"`
	At          time.Time `json:"at"`
}

// SyncRequest asks for a poll of one order.
type SyncRequest struct {
	OrderNumber string
	PaymentID   string
	CartID      string
}

// SyncResult is the answer of POST /orders/sync-status.
type SyncResult struct {
	OrderID   string `json:"orderId"`
	Status    string `json:"status"`
	PaymentID string `json:"paymentId,omitempty"`
}
