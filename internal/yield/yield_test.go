package yield

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"mkulima/internal/domain"
	"mkulima/internal/profit"
)

const linearMaize = `{
  "crop": "maize",
  "kind": "linear",
  "intercept": 1.0,
  "coefficients": {"pH": 0.5, "Precipitation": 0.002}
}`

// pH <= 6 -> 2.0, else Precipitation <= 800 -> 3.0 else 5.0; second tree is constant 4.0.
const forestBeans = `{
  "kind": "forest",
  "trees": [
    {"nodes": [
      {"feature": "pH", "threshold": 6, "left": 1, "right": 2},
      {"left": -1, "right": -1, "value": 2.0},
      {"feature": "Precipitation", "threshold": 800, "left": 3, "right": 4},
      {"left": -1, "right": -1, "value": 3.0},
      {"left": -1, "right": -1, "value": 5.0}
    ]},
    {"nodes": [{"left": -1, "right": -1, "value": 4.0}]}
  ]
}`

func writeModels(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestHectaresToAcres(t *testing.T) {
	tests := []struct {
		perHa, want float64
	}{
		{perHa: 1, want: 0.4},
		{perHa: 10, want: 4.05},
		{perHa: 0, want: 0},
		{perHa: 7.5, want: 3.04},
	}
	for _, tt := range tests {
		if got := HectaresToAcres(tt.perHa); got != tt.want {
			t.Errorf("HectaresToAcres(%v) = %v, want %v", tt.perHa, got, tt.want)
		}
	}
	if HectaresPerAcre != 0.404686 {
		t.Fatalf("conversion constant changed: %v", HectaresPerAcre)
	}
}

func TestLoadModelsAndPredict(t *testing.T) {
	dir := writeModels(t, map[string]string{
		"maize.json": linearMaize,
		"beans.json": forestBeans,
		"notes.txt":  "not a model",
	})
	models, err := LoadModels(dir)
	if err != nil {
		t.Fatalf("LoadModels returned error: %v", err)
	}
	p := NewPredictor(models, profit.DefaultCatalog())

	if got := p.Crops(); !reflect.DeepEqual(got, []string{"beans", "maize"}) {
		t.Fatalf("Crops() = %v", got)
	}

	row := domain.FeatureRow{County: "Nakuru", Values: map[string]float64{
		domain.FeaturePH:            6.5,
		domain.FeaturePrecipitation: 1000,
	}}
	got, err := p.Predict(row)
	if err != nil {
		t.Fatalf("Predict returned error: %v", err)
	}

	maize := got["maize"]
	// 1 + 0.5*6.5 + 0.002*1000 = 6.25
	if maize.YieldPerHectare != 6.25 || maize.YieldPerAcre != 2.53 || maize.MarketPrice != 40000 {
		t.Fatalf("unexpected maize prediction: %+v", maize)
	}
	beans := got["beans"]
	// mean(5.0, 4.0) = 4.5
	if beans.YieldPerHectare != 4.5 || beans.YieldPerAcre != 1.82 || beans.MarketPrice != 100000 {
		t.Fatalf("unexpected beans prediction: %+v", beans)
	}
}

func TestPredictMissingFeature(t *testing.T) {
	dir := writeModels(t, map[string]string{"maize.json": linearMaize})
	models, err := LoadModels(dir)
	if err != nil {
		t.Fatalf("LoadModels returned error: %v", err)
	}
	p := NewPredictor(models, nil)

	_, err = p.Predict(domain.FeatureRow{County: "Lamu", Values: map[string]float64{domain.FeaturePH: 7}})
	if !errors.Is(err, ErrMissingFeature) {
		t.Fatalf("expected ErrMissingFeature, got %v", err)
	}
}

func TestPredictClampsNegativeYieldAndUnknownPrice(t *testing.T) {
	p := NewPredictor(map[string]Model{
		"sorghum": LinearModel{Intercept: -3, Coefficients: map[string]float64{domain.FeaturePH: 0.1}},
	}, profit.DefaultCatalog())

	got, err := p.Predict(domain.FeatureRow{Values: map[string]float64{domain.FeaturePH: 5}})
	if err != nil {
		t.Fatalf("Predict returned error: %v", err)
	}
	if got["sorghum"] != (domain.CropPrediction{}) {
		t.Fatalf("expected zero prediction, got %+v", got["sorghum"])
	}
}

func TestPredictRejectsNonFiniteYield(t *testing.T) {
	tests := map[string]struct {
		model Model
		pH    float64
	}{
		"overflow":  {model: LinearModel{Coefficients: map[string]float64{domain.FeaturePH: math.MaxFloat64}}, pH: 10},
		"nan input": {model: LinearModel{Intercept: 1, Coefficients: map[string]float64{domain.FeaturePH: 0.5}}, pH: math.NaN()},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			p := NewPredictor(map[string]Model{"maize": tt.model}, profit.DefaultCatalog())
			_, err := p.Predict(domain.FeatureRow{County: "Nakuru", Values: map[string]float64{domain.FeaturePH: tt.pH}})
			if !errors.Is(err, ErrNonFiniteYield) {
				t.Fatalf("expected ErrNonFiniteYield, got %v", err)
			}
		})
	}
}

func TestLoadModelRejectsBadFiles(t *testing.T) {
	tests := map[string]string{
		"unknown kind":   `{"kind": "svm"}`,
		"empty linear":   `{"kind": "linear", "intercept": 1}`,
		"empty forest":   `{"kind": "forest", "trees": []}`,
		"bad child":      `{"kind": "forest", "trees": [{"nodes": [{"feature": "pH", "threshold": 1, "left": 0, "right": 5}]}]}`,
		"split no field": `{"kind": "forest", "trees": [{"nodes": [{"threshold": 1, "left": 1, "right": 2}, {"left": -1, "right": -1}, {"left": -1, "right": -1}]}]}`,
		"not json":       `{`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			dir := writeModels(t, map[string]string{"crop.json": content})
			if _, _, err := LoadModel(filepath.Join(dir, "crop.json")); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestLoadModelsEmptyDir(t *testing.T) {
	if _, err := LoadModels(t.TempDir()); err == nil {
		t.Fatal("expected error for a directory without models")
	}
}
