package shipping

import (
	"context"
	"errors"
	"testing"

	"github.com/imrishuroy/storefront-checkout/internal/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubProducts struct {
	products map[string]catalog.Product
	err      error
	calls    int
}

func (s *stubProducts) GetMany(ctx context.Context, ids []string) (map[string]catalog.Product, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.products, nil
}

type stubProvider struct {
	options []Option
	err     error
	calls   int
	parcels []Parcel
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Rates(ctx context.Context, postalCode string, parcels []Parcel) ([]Option, error) {
	s.calls++
	s.parcels = parcels
	return s.options, s.err
}

func newQuoter(products Products, primary, fallback RateProvider) *Quoter {
	return NewQuoter(products, primary, fallback, zap.NewNop(), nil)
}

func TestNormalizePostalCode(t *testing.T) {
	cases := map[string]struct {
		in      string
		want    string
		wantErr bool
	}{
		"formatted": {in: "01310-100", want: "01310100"},
		"spaces":    {in: " 01310 100 ", want: "01310100"},
		"too short": {in: "0131", wantErr: true},
		"too long":  {in: "013101000", wantErr: true},
		"no digits": {in: "abc", wantErr: true},
		"empty":     {in: "", wantErr: true},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := NormalizePostalCode(tc.in)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPostalCode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestQuote_InvalidPostalCodeMakesNoCalls(t *testing.T) {
	products := &stubProducts{}
	primary := &stubProvider{}
	fallback := &stubProvider{}

	_, err := newQuoter(products, primary, fallback).Quote(context.Background(), "123", []Item{{ID: "p1", Quantity: 1}})
	assert.ErrorIs(t, err, ErrInvalidPostalCode)
	assert.Zero(t, products.calls)
	assert.Zero(t, primary.calls)
	assert.Zero(t, fallback.calls)
}

func TestQuote_SortsAndPrependsPickup(t *testing.T) {
	primary := &stubProvider{options: []Option{
		{ID: "melhorenvio-2", Name: "SEDEX", Price: 30},
		{ID: "melhorenvio-1", Name: "PAC", Price: 18.5},
	}}
	fallback := &stubProvider{}

	opts, err := newQuoter(&stubProducts{}, primary, fallback).Quote(context.Background(), "01310-100", []Item{{ID: "p1", Quantity: 1}})
	require.NoError(t, err)
	require.Len(t, opts, 3)
	assert.Equal(t, PickupOptionID, opts[0].ID)
	assert.Equal(t, 0.0, opts[0].Price)
	assert.Equal(t, "melhorenvio-1", opts[1].ID)
	assert.Equal(t, "melhorenvio-2", opts[2].ID)
	assert.Zero(t, fallback.calls)
}

func TestQuote_ProviderFailureFallsBackToTariff(t *testing.T) {
	primary := &stubProvider{err: errors.New("timeout")}

	opts, err := newQuoter(&stubProducts{}, primary, NewTariffTable()).Quote(context.Background(), "01310100", []Item{{ID: "p1", Quantity: 2}})
	require.NoError(t, err)
	require.Len(t, opts, 3)
	assert.Equal(t, PickupOptionID, opts[0].ID)
	assert.Equal(t, "tariff-economy", opts[1].ID)
	assert.Equal(t, "tariff-express", opts[2].ID)
}

func TestQuote_NeverEmpty(t *testing.T) {
	failing := &stubProvider{err: errors.New("down")}

	opts, err := newQuoter(&stubProducts{err: errors.New("dynamo down")}, failing, failing).Quote(context.Background(), "01310100", nil)
	require.NoError(t, err)
	require.Len(t, opts, 1)
	assert.Equal(t, PickupOptionID, opts[0].ID)
}

func TestQuote_ParcelDefaultsAndCatalogDimensions(t *testing.T) {
	products := &stubProducts{products: map[string]catalog.Product{
		"p1": {ID: "p1", Price: 80, Weight: 1.2, Width: 30},
	}}
	primary := &stubProvider{options: []Option{{ID: "melhorenvio-1", Price: 10}}}

	_, err := newQuoter(products, primary, nil).Quote(context.Background(), "01310100", []Item{
		{ID: "p1", Quantity: 1, Price: 75},
		{ID: "p2", Quantity: 3, Price: 20},
	})
	require.NoError(t, err)
	require.Len(t, primary.parcels, 2)

	p1 := primary.parcels[0]
	assert.Equal(t, 1.2, p1.Weight)
	assert.Equal(t, 30.0, p1.Width)
	assert.Equal(t, DefaultHeightCm, p1.Height)
	assert.Equal(t, DefaultLengthCm, p1.Length)
	assert.Equal(t, 80.0, p1.InsuranceValue)

	p2 := primary.parcels[1]
	assert.Equal(t, DefaultWeightKg, p2.Weight)
	assert.Equal(t, 3, p2.Quantity)
	assert.Equal(t, 20.0, p2.InsuranceValue)
}

func TestTariffPrices(t *testing.T) {
	e, x := tariffPrices(0.6)
	assert.Equal(t, 19.90, e)
	assert.Equal(t, 29.90, x)

	e, x = tariffPrices(4)
	assert.Equal(t, 29.90, e)
	assert.Equal(t, 44.90, x)

	e, x = tariffPrices(11.5)
	assert.Equal(t, 51.90, e)
	assert.Equal(t, 80.90, x)
}
