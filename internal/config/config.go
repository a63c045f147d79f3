// Package config loads the service configuration from the environment.
package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// SecretsPath is the Secrets Manager secret holding provider credentials as a JSON object.
const SecretsPath = "checkout/PROVIDER_CREDENTIALS"

// SecretGetter reads a JSON object secret by name.
type SecretGetter interface {
	GetCredentials(ctx context.Context, name string) (map[string]string, error)
}

// Config holds all configuration for the checkout service.
type Config struct {
	AppEnv   string
	Port     string
	RunLocal bool

	OrdersTable      string
	IdempotencyTable string
	AddressesTable   string
	ProductsTable    string
	IdempotencyTTL   time.Duration

	ReconcileQueueURL   string
	OrderEventsTopicARN string

	RedisURL string
	CartTTL  time.Duration

	// PublicBaseURL is where the storefront is reachable; return and notification URLs derive from it.
	PublicBaseURL string

	MercadoPagoAccessToken   string
	MercadoPagoBaseURL       string
	MercadoPagoWebhookSecret string
	PixPlaceholderTaxID      string

	ShippingToken     string
	ShippingBaseURL   string
	ShippingOriginCEP string

	CloudWatchEnabled   bool
	CloudWatchNamespace string

	// PaymentRatePerMinute and PaymentRateBurst bound payment requests per client IP.
	PaymentRatePerMinute int
	PaymentRateBurst     int

	UseSecrets bool
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	// .env is a local convenience only; a missing file is fine
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:   getEnv("APP_ENV", "development"),
		Port:     getEnv("PORT", "8080"),
		RunLocal: getBool("RUN_LOCAL", false),

		OrdersTable:      getEnv("ORDERS_TABLE", "orders"),
		IdempotencyTable: getEnv("IDEMPOTENCY_TABLE", "idempotency"),
		AddressesTable:   getEnv("ADDRESSES_TABLE", "addresses"),
		ProductsTable:    getEnv("PRODUCTS_TABLE", "products"),
		IdempotencyTTL:   getDuration("IDEMPOTENCY_TTL", 48*time.Hour),

		ReconcileQueueURL:   os.Getenv("RECONCILE_QUEUE_URL"),
		OrderEventsTopicARN: os.Getenv("ORDER_EVENTS_TOPIC_ARN"),

		RedisURL: os.Getenv("REDIS_URL"),
		CartTTL:  getDuration("CART_TTL", 7*24*time.Hour),

		PublicBaseURL: getEnv("PUBLIC_BASE_URL", "http://localhost:3000"),

		MercadoPagoAccessToken:   os.Getenv("MP_ACCESS_TOKEN"),
		MercadoPagoBaseURL:       getEnv("MP_BASE_URL", "https://api.mercadopago.com"),
		MercadoPagoWebhookSecret: os.Getenv("MP_WEBHOOK_SECRET"),
		PixPlaceholderTaxID:      os.Getenv("PIX_PLACEHOLDER_TAX_ID"),

		ShippingToken:     os.Getenv("SHIPPING_TOKEN"),
		ShippingBaseURL:   getEnv("SHIPPING_BASE_URL", "https://www.melhorenvio.com.br"),
		ShippingOriginCEP: getEnv("SHIPPING_ORIGIN_CEP", "01001000"),

		CloudWatchEnabled:   getBool("CLOUDWATCH_ENABLED", false),
		CloudWatchNamespace: getEnv("CLOUDWATCH_NAMESPACE", "StorefrontCheckout"),

		PaymentRatePerMinute: getInt("PAYMENT_RATE_PER_MINUTE", 30),
		PaymentRateBurst:     getInt("PAYMENT_RATE_BURST", 10),

		UseSecrets: getBool("AWS_USE_SECRETS", false),
	}
	return cfg, nil
}

// ApplySecrets overrides provider credentials from the secrets store. Keys absent
// from the secret keep their environment value.
func (c *Config) ApplySecrets(ctx context.Context, sm SecretGetter) error {
	m, err := sm.GetCredentials(ctx, SecretsPath)
	if err != nil {
		return fmt.Errorf("load provider credentials: %w", err)
	}
	override := func(dst *string, key string) {
		if v, ok := m[key]; ok && v != "" {
			*dst = v
		}
	}
	override(&c.MercadoPagoAccessToken, "MP_ACCESS_TOKEN")
	override(&c.MercadoPagoWebhookSecret, "MP_WEBHOOK_SECRET")
	override(&c.ShippingToken, "SHIPPING_TOKEN")
	override(&c.PixPlaceholderTaxID, "PIX_PLACEHOLDER_TAX_ID")
	return nil
}

// Validate reports configuration that would make the service unusable.
func (c *Config) Validate() error {
	if c.MercadoPagoAccessToken == "" {
		return fmt.Errorf("MP_ACCESS_TOKEN is required")
	}
	if c.OrdersTable == "" || c.IdempotencyTable == "" {
		return fmt.Errorf("ORDERS_TABLE and IDEMPOTENCY_TABLE are required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
