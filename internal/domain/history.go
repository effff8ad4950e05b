package domain

import "time"

// ReportEntry is a stored prediction joined with the latest profit analysis
// made against it, as listed on the reports page.
type ReportEntry struct {
	PredictionID string                    `json:"prediction_id"`
	SessionKey   string                    `json:"session"`
	County       string                    `json:"county"`
	FarmSize     float64                   `json:"farm_size"`
	Predictions  map[string]CropPrediction `json:"predictions"`
	Analysis     *ProfitAnalysis           `json:"profit_analysis,omitempty"`
	CreatedAt    time.Time                 `json:"created_at"`
}
