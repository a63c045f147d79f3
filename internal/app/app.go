// Package app wires the checkout services from configuration.
package app

import (
	"context"
	"fmt"

	"github.com/imrishuroy/storefront-checkout/internal/addresses"
	"github.com/imrishuroy/storefront-checkout/internal/aws"
	"github.com/imrishuroy/storefront-checkout/internal/cart"
	"github.com/imrishuroy/storefront-checkout/internal/catalog"
	"github.com/imrishuroy/storefront-checkout/internal/checkout"
	"github.com/imrishuroy/storefront-checkout/internal/config"
	"github.com/imrishuroy/storefront-checkout/internal/idempotency"
	"github.com/imrishuroy/storefront-checkout/internal/mercadopago"
	"github.com/imrishuroy/storefront-checkout/internal/orders"
	"github.com/imrishuroy/storefront-checkout/internal/payment"
	"github.com/imrishuroy/storefront-checkout/internal/reconcile"
	"github.com/imrishuroy/storefront-checkout/internal/shipping"
	"go.uber.org/zap"
)

// App holds the constructed services shared by the API and the worker.
type App struct {
	Config     *config.Config
	Log        *zap.Logger
	Metrics    *aws.MetricsClient
	Orders     *orders.Store
	Addresses  *addresses.Store
	Catalog    *catalog.Store
	Carts      *cart.Service
	Quoter     *shipping.Quoter
	Payments   *payment.Service
	Reconciler *reconcile.Reconciler
	Checkouts  *checkout.Sessions

	closers []func() error
}

// New builds every service. Carts live in Redis when REDIS_URL is set, in memory otherwise.
func New(ctx context.Context, cfg *config.Config, clients *aws.AWSClients, log *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log}
	a.Metrics = aws.NewMetricsClient(clients.CloudWatch, cfg.CloudWatchNamespace, cfg.CloudWatchEnabled)

	a.Orders = orders.NewStore(clients.DynamoDB, cfg.OrdersTable)
	a.Addresses = addresses.NewStore(clients.DynamoDB, cfg.AddressesTable)
	a.Catalog = catalog.NewStore(clients.DynamoDB, cfg.ProductsTable)
	idem := idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, cfg.IdempotencyTTL)

	var storage cart.Storage
	if cfg.RedisURL != "" {
		rc, err := cart.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.closers = append(a.closers, rc.Close)
		storage = cart.NewRedisStorage(rc, cfg.CartTTL)
	} else {
		log.Warn("REDIS_URL not set, carts are kept in memory")
		storage = cart.NewMemoryStorage()
	}
	a.Carts = cart.NewService(storage, a.Catalog)

	var primary shipping.RateProvider
	if cfg.ShippingToken != "" {
		primary = shipping.NewMelhorEnvio(cfg.ShippingBaseURL, cfg.ShippingToken, cfg.ShippingOriginCEP)
	} else {
		log.Warn("SHIPPING_TOKEN not set, quoting from the tariff table only")
	}
	a.Quoter = shipping.NewQuoter(a.Catalog, primary, shipping.NewTariffTable(), log.Named("shipping"), a.Metrics)

	gateway := mercadopago.NewClient(cfg.MercadoPagoBaseURL, cfg.MercadoPagoAccessToken)
	a.Payments = payment.NewService(a.Orders, idem, a.Catalog, gateway, payment.Options{
		PublicBaseURL:       cfg.PublicBaseURL,
		PixPlaceholderTaxID: cfg.PixPlaceholderTaxID,
	}, log.Named("payment"), a.Metrics)

	a.Reconciler = reconcile.New(a.Orders, gateway, reconcile.Config{
		Carts:         a.Carts,
		Notifier:      aws.NewNotifier(clients.SNS, cfg.OrderEventsTopicARN),
		Retries:       aws.NewPublisher(clients.SQS, cfg.ReconcileQueueURL),
		WebhookSecret: cfg.MercadoPagoWebhookSecret,
		Metrics:       a.Metrics,
	}, log.Named("reconcile"))

	a.Checkouts = checkout.NewSessions(a.Quoter, a.Payments, a.Carts, log.Named("checkout"), checkout.DefaultSessionTTL)
	return a, nil
}

// Close releases connections opened by New.
func (a *App) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
