package domain

import "time"

// Canonical environmental feature keys as produced by the county data table.
const (
	FeaturePH            = "pH"
	FeaturePrecipitation = "Precipitation"
	FeatureMinTemp       = "mean Tmin"
	FeatureMaxTemp       = "mean Tmax"
	FeatureNitrogen      = "N"
	FeaturePhosphorus    = "P"
	FeaturePotassium     = "K"
)

// FeatureRow is one county's row of current weather and soil features.
type FeatureRow struct {
	County string
	Values map[string]float64
}

type CropPrediction struct {
	YieldPerHectare float64 `json:"prediction_in_ha"`
	YieldPerAcre    float64 `json:"prediction_in_acres"`
	MarketPrice     float64 `json:"market_price"`
}

type PredictionRecord struct {
	ID          string                    `json:"id"`
	County      string                    `json:"county"`
	FarmSize    float64                   `json:"farm_size"` // acres
	Predictions map[string]CropPrediction `json:"predictions"`
	InputData   map[string]float64        `json:"input_data"`
	CreatedAt   time.Time                 `json:"created_at"`
}

// CostOverrides carries per-acre costs supplied by the farmer. A nil field
// means the crop catalog default applies.
type CostOverrides struct {
	Seed       *float64
	Fertilizer *float64
	Labor      *float64
}

func (o CostOverrides) Empty() bool {
	return o.Seed == nil && o.Fertilizer == nil && o.Labor == nil
}

type ProfitBreakdown struct {
	SeedCost       float64 `json:"seed_cost"`
	FertilizerCost float64 `json:"fertilizer_cost"`
	LaborCost      float64 `json:"labor_cost"`
	TotalCost      float64 `json:"total_cost"`
	TotalRevenue   float64 `json:"total_revenue"`
	TotalProfit    float64 `json:"total_profit"`
}

type ProfitAnalysis struct {
	Crop           string          `json:"crop"`
	PredictedYield float64         `json:"predicted_yield"` // t/acre
	Profit         ProfitBreakdown `json:"profit"`
	ProfitMargin   float64         `json:"profit_margin"` // percent
	MarketPrice    float64         `json:"market_price"`
	UsedDefaults   bool            `json:"used_defaults"`
}

// Snapshot is the content of one prediction cache slot.
type Snapshot struct {
	Latest         *PredictionRecord `json:"latest,omitempty"`
	ProfitAnalysis *ProfitAnalysis   `json:"profit_analysis,omitempty"`
}
