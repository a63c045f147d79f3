package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/imrishuroy/storefront-checkout/internal/aws"
	"github.com/imrishuroy/storefront-checkout/internal/aws/awstest"
	"github.com/imrishuroy/storefront-checkout/internal/config"
)

func TestNew_InMemoryCarts(t *testing.T) {
	cfg := &config.Config{
		OrdersTable:         "orders",
		IdempotencyTable:    "idempotency",
		AddressesTable:      "addresses",
		ProductsTable:       "products",
		MercadoPagoBaseURL:  "http://127.0.0.1:1",
		ShippingBaseURL:     "http://127.0.0.1:1",
		PublicBaseURL:       "http://localhost:3000",
		CloudWatchNamespace: "Test",
	}
	clients := &aws.AWSClients{DynamoDB: awstest.NewDynamo(map[string]string{
		"orders":      "order_number",
		"idempotency": "idempotency_key",
		"addresses":   "id",
		"products":    "id",
	})}

	a, err := New(context.Background(), cfg, clients, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Payments)
	assert.NotNil(t, a.Reconciler)
	assert.False(t, a.Metrics.IsEnabled())

	c, err := a.Carts.Get(context.Background(), "c1")
	require.NoError(t, err)
	assert.Empty(t, c.Items)

	opts, err := a.Quoter.Quote(context.Background(), "01310100", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, opts)
}

func TestNew_BadRedisURL(t *testing.T) {
	cfg := &config.Config{RedisURL: "not a url://"}
	_, err := New(context.Background(), cfg, &aws.AWSClients{}, zap.NewNop())
	assert.Error(t, err)
}
