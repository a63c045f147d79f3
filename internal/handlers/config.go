// Package handlers exposes the checkout services over HTTP.
package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/imrishuroy/storefront-checkout/internal/addresses"
	"github.com/imrishuroy/storefront-checkout/internal/aws"
	"github.com/imrishuroy/storefront-checkout/internal/cart"
	"github.com/imrishuroy/storefront-checkout/internal/checkout"
	"github.com/imrishuroy/storefront-checkout/internal/logger"
	"github.com/imrishuroy/storefront-checkout/internal/mercadopago"
	"github.com/imrishuroy/storefront-checkout/internal/orders"
	"github.com/imrishuroy/storefront-checkout/internal/payment"
	"github.com/imrishuroy/storefront-checkout/internal/reconcile"
	"github.com/imrishuroy/storefront-checkout/internal/shipping"
	"go.uber.org/zap"
)

// CartService is the cart API used by the cart routes.
type CartService interface {
	Get(ctx context.Context, cartID string) (*cart.Cart, error)
	Add(ctx context.Context, cartID, productID string, quantity int) (*cart.Cart, error)
	SetQuantity(ctx context.Context, cartID, productID string, n int) (*cart.Cart, error)
	Remove(ctx context.Context, cartID, productID string) (*cart.Cart, error)
	Clear(ctx context.Context, cartID string) error
}

// ShippingQuoter returns delivery options.
type ShippingQuoter interface {
	Quote(ctx context.Context, postalCode string, items []shipping.Item) ([]shipping.Option, error)
}

// PaymentCreator creates orders with their payment intent.
type PaymentCreator interface {
	Create(ctx context.Context, req payment.CreateRequest) (*payment.Result, error)
}

// StatusReconciler applies provider status to orders.
type StatusReconciler interface {
	Webhook(ctx context.Context, in reconcile.WebhookInput) error
	Sync(ctx context.Context, req reconcile.SyncRequest) (*reconcile.SyncResult, error)
	Status(ctx context.Context, orderNumber string) (*orders.Order, *mercadopago.Payment, error)
	SetStatus(ctx context.Context, orderNumber, status string) (*orders.Order, bool, error)
}

// OrderReader serves the account and admin views.
type OrderReader interface {
	Get(ctx context.Context, orderNumber string) (*orders.Order, error)
	ListByOwner(ctx context.Context, ownerID string) ([]orders.Order, error)
}

// AddressStore manages saved addresses.
type AddressStore interface {
	List(ctx context.Context, ownerID string) ([]addresses.Address, error)
	Create(ctx context.Context, addr addresses.Address) (*addresses.Address, error)
	Update(ctx context.Context, addr addresses.Address) (*addresses.Address, error)
	Delete(ctx context.Context, ownerID, id string) error
	SetDefault(ctx context.Context, ownerID, id string) error
}

// HandlerConfig groups dependencies for the route groups.
type HandlerConfig struct {
	Carts      CartService
	Shipping   ShippingQuoter
	Payments   PaymentCreator
	Reconciler StatusReconciler
	Orders     OrderReader
	Addresses  AddressStore
	Checkouts  *checkout.Sessions

	Validator *validatorv10.Validate
	Log       *zap.Logger
	Metrics   *aws.MetricsClient

	// PaymentRatePerMinute and PaymentRateBurst configure the per-IP limiter on /payment.
	PaymentRatePerMinute int
	PaymentRateBurst     int
}

// requestLog returns the configured logger tagged with the request id.
func (cfg HandlerConfig) requestLog(c *gin.Context) *zap.Logger {
	if cfg.Log == nil {
		return zap.NewNop()
	}
	return logger.For(c, cfg.Log)
}
