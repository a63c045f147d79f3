package shipping

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/imrishuroy/storefront-checkout/internal/httpx"
)

// MelhorEnvio quotes rates through the Melhor Envio calculate endpoint.
type MelhorEnvio struct {
	client    *httpx.Client
	originCEP string
}

// NewMelhorEnvio creates the provider. originCEP is the warehouse postal code.
func NewMelhorEnvio(baseURL, token, originCEP string, opts ...httpx.Option) *MelhorEnvio {
	opts = append([]httpx.Option{
		httpx.WithHeader("Authorization", "Bearer "+token),
		httpx.WithHeader("User-Agent", "storefront-checkout"),
	}, opts...)
	return &MelhorEnvio{
		client:    httpx.New(baseURL, opts...),
		originCEP: originCEP,
	}
}

type melhorEnvioPostal struct {
	PostalCode string `json:"postal_code"`
}

type melhorEnvioProduct struct {
	ID             string  `json:"id"`
	Width          float64 `json:"width"`
	Height         float64 `json:"height"`
	Length         float64 `json:"length"`
	Weight         float64 `json:"weight"`
	InsuranceValue float64 `json:"insurance_value"`
	Quantity       int     `json:"quantity"`
}

type melhorEnvioRequest struct {
	From     melhorEnvioPostal    `json:"from"`
	To       melhorEnvioPostal    `json:"to"`
	Products []melhorEnvioProduct `json:"products"`
}

type melhorEnvioQuote struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	Price        string `json:"price"`
	CustomPrice  string `json:"custom_price"`
	DeliveryTime int    `json:"delivery_time"`
	Error        string `json:"error"`
	Company      struct {
		Name    string `json:"name"`
		Picture string `json:"picture"`
	} `json:"company"`
}

func (m *MelhorEnvio) Name() string { return "melhorenvio" }

// Rates calls the calculate endpoint. Services the provider reports as
// unavailable (error set or no price) are skipped.
func (m *MelhorEnvio) Rates(ctx context.Context, postalCode string, parcels []Parcel) ([]Option, error) {
	req := melhorEnvioRequest{
		From: melhorEnvioPostal{PostalCode: m.originCEP},
		To:   melhorEnvioPostal{PostalCode: postalCode},
	}
	for _, p := range parcels {
		req.Products = append(req.Products, melhorEnvioProduct{
			ID:             p.ID,
			Width:          p.Width,
			Height:         p.Height,
			Length:         p.Length,
			Weight:         p.Weight,
			InsuranceValue: p.InsuranceValue,
			Quantity:       p.Quantity,
		})
	}

	var quotes []melhorEnvioQuote
	if err := m.client.Do(ctx, http.MethodPost, "/api/v2/me/shipment/calculate", req, &quotes, nil); err != nil {
		return nil, fmt.Errorf("melhorenvio calculate: %w", err)
	}

	options := make([]Option, 0, len(quotes))
	for _, q := range quotes {
		if q.Error != "" {
			continue
		}
		raw := q.CustomPrice
		if raw == "" {
			raw = q.Price
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil || price < 0 {
			continue
		}
		options = append(options, Option{
			ID:            fmt.Sprintf("%s-%d", m.Name(), q.ID),
			Name:          q.Name,
			Price:         price,
			DaysToDeliver: q.DeliveryTime,
			Company:       Company{Name: q.Company.Name, Picture: q.Company.Picture},
		})
	}
	return options, nil
}
