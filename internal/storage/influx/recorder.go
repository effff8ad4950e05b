// Package influx writes predictions and profit analyses to InfluxDB as time
// series so yields can be charted per county.
package influx

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"mkulima/internal/domain"
)

const (
	MeasurementYield  = "yield_prediction"
	MeasurementProfit = "profit_analysis"
)

type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Recorder is a no-op when built without a writer.
type Recorder struct {
	writer pointWriter
	client influxdb2.Client
}

func NewRecorder(url, token, org, bucket string) *Recorder {
	client := influxdb2.NewClient(url, token)
	return &Recorder{
		writer: client.WriteAPIBlocking(org, bucket),
		client: client,
	}
}

func (r *Recorder) Enabled() bool {
	return r != nil && r.writer != nil
}

// RecordPrediction writes one point per crop.
func (r *Recorder) RecordPrediction(ctx context.Context, rec domain.PredictionRecord) error {
	if !r.Enabled() || len(rec.Predictions) == 0 {
		return nil
	}
	points := make([]*write.Point, 0, len(rec.Predictions))
	for crop, p := range rec.Predictions {
		points = append(points, influxdb2.NewPoint(
			MeasurementYield,
			map[string]string{"county": rec.County, "crop": crop},
			map[string]interface{}{
				"yield_ha":     p.YieldPerHectare,
				"yield_acre":   p.YieldPerAcre,
				"market_price": p.MarketPrice,
				"farm_size":    rec.FarmSize,
			},
			timestampOrNow(rec.CreatedAt),
		))
	}
	if err := r.writer.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("influx write %s: %w", MeasurementYield, err)
	}
	return nil
}

func (r *Recorder) RecordProfit(ctx context.Context, county string, a domain.ProfitAnalysis, at time.Time) error {
	if !r.Enabled() {
		return nil
	}
	point := influxdb2.NewPoint(
		MeasurementProfit,
		map[string]string{"county": county, "crop": a.Crop},
		map[string]interface{}{
			"total_cost":    a.Profit.TotalCost,
			"total_revenue": a.Profit.TotalRevenue,
			"total_profit":  a.Profit.TotalProfit,
			"profit_margin": a.ProfitMargin,
			"used_defaults": a.UsedDefaults,
		},
		timestampOrNow(at),
	)
	if err := r.writer.WritePoint(ctx, point); err != nil {
		return fmt.Errorf("influx write %s: %w", MeasurementProfit, err)
	}
	return nil
}

func (r *Recorder) Close() {
	if r != nil && r.client != nil {
		r.client.Close()
	}
}

func timestampOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
