package main

import (
	"context"
	"log"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/imrishuroy/storefront-checkout/internal/app"
	"github.com/imrishuroy/storefront-checkout/internal/aws"
	"github.com/imrishuroy/storefront-checkout/internal/config"
	"github.com/imrishuroy/storefront-checkout/internal/handlers"
	"github.com/imrishuroy/storefront-checkout/internal/logger"
	"github.com/imrishuroy/storefront-checkout/internal/validation"
	"go.uber.org/zap"
)

func setupRouter(a *app.App) *gin.Engine {
	if a.Config.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.RequestLogger(a.Log))
	r.Use(handlers.Metrics(a.Metrics))

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	cfg := handlers.HandlerConfig{
		Carts:                a.Carts,
		Shipping:             a.Quoter,
		Payments:             a.Payments,
		Reconciler:           a.Reconciler,
		Orders:               a.Orders,
		Addresses:            a.Addresses,
		Checkouts:            a.Checkouts,
		Validator:            validation.New(),
		Log:                  a.Log,
		Metrics:              a.Metrics,
		PaymentRatePerMinute: a.Config.PaymentRatePerMinute,
		PaymentRateBurst:     a.Config.PaymentRateBurst,
	}
	handlers.RegisterCartRoutes(r, cfg)
	handlers.RegisterShippingRoutes(r, cfg)
	handlers.RegisterPaymentRoutes(r, cfg)
	handlers.RegisterOrdersRoutes(r, cfg)
	handlers.RegisterAddressRoutes(r, cfg)
	handlers.RegisterCheckoutRoutes(r, cfg)

	return r
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	zl, err := logger.New(cfg.AppEnv)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	clients, err := aws.NewAWSClients(ctx)
	if err != nil {
		zl.Fatal("failed to init aws clients", zap.Error(err))
	}
	if cfg.UseSecrets {
		if err := cfg.ApplySecrets(ctx, aws.NewSecretsClient(clients.SecretsManager)); err != nil {
			zl.Fatal("failed to load secrets", zap.Error(err))
		}
	}
	if err := cfg.Validate(); err != nil {
		zl.Fatal("invalid configuration", zap.Error(err))
	}

	a, err := app.New(ctx, cfg, clients, zl)
	if err != nil {
		zl.Fatal("failed to build services", zap.Error(err))
	}
	defer func() { _ = a.Close() }()

	r := setupRouter(a)

	// RUN_LOCAL=true serves HTTP directly for development.
	if cfg.RunLocal {
		addr := ":" + cfg.Port
		zl.Info("running local server", zap.String("addr", addr))
		if err := r.Run(addr); err != nil {
			zl.Fatal("failed to run local server", zap.Error(err))
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
