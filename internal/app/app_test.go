package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mkulima/internal/config"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "models", "maize.json"), `{"kind":"linear","intercept":1.2,"coefficients":{"pH":0.4}}`)
	writeFile(t, filepath.Join(dir, "counties.csv"), "County,pH,Precipitation\nNakuru,6.1,950\nKiambu,5.8,1100\n")
	return config.Config{
		HTTPAddr:                   "127.0.0.1:0",
		ModelsDir:                  filepath.Join(dir, "models"),
		EnvDataCSVPath:             filepath.Join(dir, "counties.csv"),
		EnvDataRetries:             1,
		LLMProvider:                config.ProviderGroq,
		ChatTemperature:            0.7,
		ChatMaxTokens:              600,
		CacheBackend:               config.CacheBackendMemory,
		CacheTTLMinutes:            60,
		DBPath:                     filepath.Join(dir, "mkulima.db"),
		HistoryRetentionDays:       30,
		ExternalHTTPTimeoutSeconds: 30,
	}
}

func TestNewWiresLocalComponents(t *testing.T) {
	a, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer a.Close()

	if got := a.Predictor.Crops(); len(got) != 1 || got[0] != "maize" {
		t.Fatalf("unexpected crops: %v", got)
	}
	if a.Generator.Configured() {
		t.Fatal("generator must be disabled without an API key")
	}
	if a.Sharer != nil || a.Influx.Enabled() {
		t.Fatal("optional integrations must stay off when not configured")
	}
	row, err := a.Fetcher.Fetch(context.Background(), "kiambu")
	if err != nil || row.Values["Precipitation"] != 1100 {
		t.Fatalf("unexpected county row %+v err=%v", row, err)
	}

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"county":"Nakuru","farm_size":1}`)
	a.Server().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/crop/predict-yield", body))
	if rec.Code != http.StatusOK {
		t.Fatalf("predict status = %d body=%s", rec.Code, rec.Body.String())
	}

	m := a.Maintenance()
	if m.Cache == nil || m.EnvData == nil || m.Notify != nil {
		t.Fatalf("unexpected maintenance wiring: %+v", m)
	}
	result, err := m.Run(time.Now())
	if err != nil || !result.ReloadedEnvData {
		t.Fatalf("maintenance run failed: %+v err=%v", result, err)
	}
}

func TestNewFailsWithoutModels(t *testing.T) {
	cfg := testConfig(t)
	cfg.ModelsDir = filepath.Join(t.TempDir(), "empty")
	if err := os.MkdirAll(cfg.ModelsDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if _, err := New(cfg); err == nil {
		t.Fatal("expected error when no models are present")
	}
}

func TestNewFallsBackToRemoteOnlyWithoutTable(t *testing.T) {
	cfg := testConfig(t)
	cfg.EnvDataCSVPath = filepath.Join(t.TempDir(), "missing.csv")
	if _, err := New(cfg); err == nil {
		t.Fatal("expected error when neither table nor URL is available")
	}

	cfg.EnvDataURL = "http://127.0.0.1:1"
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer a.Close()
	if a.reloader != nil {
		t.Fatal("remote-only county data has nothing to reload")
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	a, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not stop after cancel")
	}
}
