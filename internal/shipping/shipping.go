// Package shipping quotes delivery options for a cart.
package shipping

import (
	"context"
	"errors"
	"sort"

	"github.com/imrishuroy/storefront-checkout/internal/aws"
	"github.com/imrishuroy/storefront-checkout/internal/catalog"
	"github.com/imrishuroy/storefront-checkout/internal/validation"
	"go.uber.org/zap"
)

// ErrInvalidPostalCode is returned for postal codes that do not have exactly 8 digits.
var ErrInvalidPostalCode = errors.New("invalid postal code")

// Parcel defaults for products without registered dimensions.
const (
	DefaultWeightKg = 0.3
	DefaultWidthCm  = 15.0
	DefaultHeightCm = 5.0
	DefaultLengthCm = 20.0
)

// PickupOptionID identifies the always-available local pickup option.
const PickupOptionID = "pickup"

// Company is the carrier behind an option.
type Company struct {
	Name    string `json:"name"`
	Picture string `json:"picture,omitempty"`
}

// Option is one delivery choice.
type Option struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	DaysToDeliver int     `json:"daysToDeliver"`
	Company       Company `json:"company"`
}

// Item is a cart line to ship. Price is the cart unit price, used as the
// insurance value when the catalog has none.
type Item struct {
	ID       string
	Quantity int
	Price    float64
}

// Parcel is one product line as sent to a rate provider.
type Parcel struct {
	ID             string
	Quantity       int
	Weight         float64 // kg
	Width          float64 // cm
	Height         float64 // cm
	Length         float64 // cm
	InsuranceValue float64
}

// RateProvider returns delivery options for parcels shipped to a postal code.
type RateProvider interface {
	Name() string
	Rates(ctx context.Context, postalCode string, parcels []Parcel) ([]Option, error)
}

// Products resolves catalog entries for parcel dimensions.
type Products interface {
	GetMany(ctx context.Context, ids []string) (map[string]catalog.Product, error)
}

// NormalizePostalCode strips punctuation and requires exactly 8 digits.
func NormalizePostalCode(raw string) (string, error) {
	digits := validation.Digits(raw)
	if len(digits) != 8 {
		return "", ErrInvalidPostalCode
	}
	return digits, nil
}

// PickupOption is the zero-cost local pickup.
func PickupOption() Option {
	return Option{
		ID:            PickupOptionID,
		Name:          "Local pickup",
		Price:         0,
		DaysToDeliver: 0,
		Company:       Company{Name: "Store"},
	}
}

// Quoter combines the primary provider, the tariff fallback and local pickup.
type Quoter struct {
	products Products
	primary  RateProvider
	fallback RateProvider
	log      *zap.Logger
	metrics  *aws.MetricsClient
}

// NewQuoter creates a Quoter. primary may be nil when no provider token is configured.
func NewQuoter(products Products, primary, fallback RateProvider, log *zap.Logger, metrics *aws.MetricsClient) *Quoter {
	return &Quoter{
		products: products,
		primary:  primary,
		fallback: fallback,
		log:      log,
		metrics:  metrics,
	}
}

// Quote returns delivery options for items. The result is never empty and its
// first element is local pickup; the remaining options are sorted by price.
func (q *Quoter) Quote(ctx context.Context, rawPostal string, items []Item) ([]Option, error) {
	postal, err := NormalizePostalCode(rawPostal)
	if err != nil {
		return nil, err
	}

	parcels, err := q.parcels(ctx, items)
	if err != nil {
		// catalog trouble should not block checkout; defaults still give an estimate
		q.log.Warn("catalog lookup failed, using default dimensions", zap.Error(err))
		parcels = defaultParcels(items)
	}

	var options []Option
	if q.primary != nil {
		options, err = q.primary.Rates(ctx, postal, parcels)
		if err != nil {
			q.log.Warn("shipping provider failed",
				zap.String("provider", q.primary.Name()),
				zap.String("postal_code", postal),
				zap.Error(err))
			options = nil
		}
	}
	if len(options) == 0 && q.fallback != nil {
		_ = q.metrics.RecordCount(ctx, aws.MetricShippingFallback, nil)
		options, err = q.fallback.Rates(ctx, postal, parcels)
		if err != nil {
			q.log.Error("tariff fallback failed", zap.Error(err))
			options = nil
		}
	}

	sort.SliceStable(options, func(i, j int) bool { return options[i].Price < options[j].Price })
	return append([]Option{PickupOption()}, options...), nil
}

func (q *Quoter) parcels(ctx context.Context, items []Item) ([]Parcel, error) {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	found, err := q.products.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	parcels := make([]Parcel, 0, len(items))
	for _, it := range items {
		p := defaultParcel(it)
		if prod, ok := found[it.ID]; ok {
			p.Weight = orDefault(prod.Weight, DefaultWeightKg)
			p.Width = orDefault(prod.Width, DefaultWidthCm)
			p.Height = orDefault(prod.Height, DefaultHeightCm)
			p.Length = orDefault(prod.Length, DefaultLengthCm)
			p.InsuranceValue = orDefault(prod.Price, it.Price)
		}
		parcels = append(parcels, p)
	}
	return parcels, nil
}

func defaultParcels(items []Item) []Parcel {
	parcels := make([]Parcel, 0, len(items))
	for _, it := range items {
		parcels = append(parcels, defaultParcel(it))
	}
	return parcels
}

func defaultParcel(it Item) Parcel {
	qty := it.Quantity
	if qty < 1 {
		qty = 1
	}
	return Parcel{
		ID:             it.ID,
		Quantity:       qty,
		Weight:         DefaultWeightKg,
		Width:          DefaultWidthCm,
		Height:         DefaultHeightCm,
		Length:         DefaultLengthCm,
		InsuranceValue: it.Price,
	}
}

func orDefault(v, def float64) float64 {
	if v > 0 {
		return v
	}
	return def
}

// TotalWeight sums weight x quantity over parcels.
func TotalWeight(parcels []Parcel) float64 {
	var w float64
	for _, p := range parcels {
		w += p.Weight * float64(p.Quantity)
	}
	return w
}
