// Package yield turns a county feature row into per-crop yield estimates.
package yield

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"mkulima/internal/domain"
	"mkulima/internal/profit"
)

// HectaresPerAcre is the area of one acre in hectares. Multiplying a t/ha
// yield by it gives t/acre.
const HectaresPerAcre = 0.404686

var ErrNonFiniteYield = errors.New("model produced a non-finite yield")

type Predictor struct {
	models  map[string]Model
	catalog *profit.Catalog
}

func NewPredictor(models map[string]Model, catalog *profit.Catalog) *Predictor {
	return &Predictor{models: models, catalog: catalog}
}

// Crops returns exactly the crops with a loaded model, sorted.
func (p *Predictor) Crops() []string {
	return sortedKeys(p.models)
}

// Predict runs every crop model on row. Negative model output is clamped to
// zero; yields are rounded to 2 dp.
func (p *Predictor) Predict(row domain.FeatureRow) (map[string]domain.CropPrediction, error) {
	out := make(map[string]domain.CropPrediction, len(p.models))
	for _, crop := range p.Crops() {
		perHa, err := p.models[crop].Predict(row.Values)
		if err != nil {
			return nil, fmt.Errorf("predict %s for %s: %w", crop, row.County, err)
		}
		if math.IsNaN(perHa) || math.IsInf(perHa, 0) {
			return nil, fmt.Errorf("predict %s for %s: %w", crop, row.County, ErrNonFiniteYield)
		}
		if perHa < 0 {
			perHa = 0
		}
		out[crop] = domain.CropPrediction{
			YieldPerHectare: round2(perHa),
			YieldPerAcre:    HectaresToAcres(perHa),
			MarketPrice:     p.catalog.MarketPrice(crop),
		}
	}
	return out, nil
}

// HectaresToAcres converts a t/ha yield to t/acre rounded to 2 dp.
func HectaresToAcres(perHa float64) float64 {
	return round2(perHa * HectaresPerAcre)
}

func round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}
