package shipping

import (
	"context"
	"math"
)

// tariffBracket prices both services up to a total weight.
type tariffBracket struct {
	maxWeightKg float64
	economy     float64
	express     float64
}

// Estimated prices used when the rate provider is unavailable.
var tariffBrackets = []tariffBracket{
	{maxWeightKg: 1, economy: 19.90, express: 29.90},
	{maxWeightKg: 5, economy: 29.90, express: 44.90},
	{maxWeightKg: 10, economy: 44.90, express: 69.90},
}

// heavy parcels pay the last bracket plus a per-kg surcharge
const (
	tariffExtraPerKgEconomy = 3.50
	tariffExtraPerKgExpress = 5.50
	tariffEconomyDays       = 10
	tariffExpressDays       = 4
)

// TariffTable is a fixed two-tier estimate by total weight.
type TariffTable struct{}

// NewTariffTable returns the fallback provider.
func NewTariffTable() *TariffTable { return &TariffTable{} }

func (t *TariffTable) Name() string { return "tariff" }

func (t *TariffTable) Rates(ctx context.Context, postalCode string, parcels []Parcel) ([]Option, error) {
	economy, express := tariffPrices(TotalWeight(parcels))
	company := Company{Name: "Correios"}
	return []Option{
		{ID: "tariff-economy", Name: "Economy (estimated)", Price: economy, DaysToDeliver: tariffEconomyDays, Company: company},
		{ID: "tariff-express", Name: "Express (estimated)", Price: express, DaysToDeliver: tariffExpressDays, Company: company},
	}, nil
}

func tariffPrices(weight float64) (economy, express float64) {
	for _, b := range tariffBrackets {
		if weight <= b.maxWeightKg {
			return b.economy, b.express
		}
	}
	last := tariffBrackets[len(tariffBrackets)-1]
	extra := math.Ceil(weight - last.maxWeightKg)
	return round2(last.economy + extra*tariffExtraPerKgEconomy), round2(last.express + extra*tariffExtraPerKgExpress)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
