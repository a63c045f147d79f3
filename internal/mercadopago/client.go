// Package mercadopago is a thin client for the Mercado Pago REST API.
package mercadopago

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/imrishuroy/storefront-checkout/internal/httpx"
)

// DefaultBaseURL is the production API host.
const DefaultBaseURL = "https://api.mercadopago.com"

const idempotencyHeader = "X-Idempotency-Key"

// Client talks to the payments API with a bearer access token.
type Client struct {
	http *httpx.Client
}

// NewClient creates a Client. opts are forwarded to the HTTP helper.
func NewClient(baseURL, accessToken string, opts ...httpx.Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	opts = append([]httpx.Option{httpx.WithHeader("Authorization", "Bearer "+accessToken)}, opts...)
	return &Client{http: httpx.New(baseURL, opts...)}
}

func idempotency(key string) http.Header {
	if key == "" {
		return nil
	}
	return http.Header{idempotencyHeader: []string{key}}
}

// CreatePreference creates a hosted checkout preference.
func (c *Client) CreatePreference(ctx context.Context, req PreferenceRequest, idempotencyKey string) (*Preference, error) {
	var out Preference
	if err := c.http.Do(ctx, http.MethodPost, "/checkout/preferences", req, &out, idempotency(idempotencyKey)); err != nil {
		return nil, fmt.Errorf("create preference: %w", err)
	}
	return &out, nil
}

// CreatePayment creates a direct payment such as PIX.
func (c *Client) CreatePayment(ctx context.Context, req PaymentRequest, idempotencyKey string) (*Payment, error) {
	var out Payment
	if err := c.http.Do(ctx, http.MethodPost, "/v1/payments", req, &out, idempotency(idempotencyKey)); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}
	return &out, nil
}

// GetPayment fetches a payment by id.
func (c *Client) GetPayment(ctx context.Context, id string) (*Payment, error) {
	var out Payment
	if err := c.http.Do(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(id), nil, &out, nil); err != nil {
		return nil, fmt.Errorf("get payment %s: %w", id, err)
	}
	return &out, nil
}

// GetMerchantOrder fetches a merchant order by id.
func (c *Client) GetMerchantOrder(ctx context.Context, id string) (*MerchantOrder, error) {
	var out MerchantOrder
	if err := c.http.Do(ctx, http.MethodGet, "/merchant_orders/"+url.PathEscape(id), nil, &out, nil); err != nil {
		return nil, fmt.Errorf("get merchant order %s: %w", id, err)
	}
	return &out, nil
}

// SearchPayments lists payments carrying externalReference, newest first.
func (c *Client) SearchPayments(ctx context.Context, externalReference string) ([]Payment, error) {
	q := url.Values{}
	q.Set("external_reference", externalReference)
	q.Set("sort", "date_created")
	q.Set("criteria", "desc")

	var out searchResponse
	if err := c.http.Do(ctx, http.MethodGet, "/v1/payments/search?"+q.Encode(), nil, &out, nil); err != nil {
		return nil, fmt.Errorf("search payments: %w", err)
	}
	return out.Results, nil
}
