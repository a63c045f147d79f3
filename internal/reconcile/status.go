// Package reconcile keeps order status in line with the payment provider.
package reconcile

import (
	"github.com/imrishuroy/storefront-checkout/internal/mercadopago"
	"github.com/imrishuroy/storefront-checkout/internal/orders"
)

// MapStatus translates a provider payment status into an order status.
// approved becomes paid, cancelled and rejected become cancelled, and any
// other value is kept as is.
func MapStatus(providerStatus string) string {
	switch providerStatus {
	case mercadopago.StatusApproved:
		return orders.StatusPaid
	case mercadopago.StatusCancelled, mercadopago.StatusRejected:
		return orders.StatusCancelled
	default:
		return providerStatus
	}
}
