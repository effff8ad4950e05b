package scheduler

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mkulima/internal/domain"
	"mkulima/internal/storage/sqlite"
)

type fakeReloader struct {
	err   error
	calls int
}

func (f *fakeReloader) Reload() error {
	f.calls++
	return f.err
}

type fakeSweeper struct{ n int }

func (f fakeSweeper) Sweep() int { return f.n }

func TestMaintenanceRun(t *testing.T) {
	db, err := sqlite.InitDB(filepath.Join(t.TempDir(), "maint.db"))
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	defer db.Close()

	now := time.Date(2024, 6, 1, 2, 30, 0, 0, time.UTC)
	for i, age := range []int{200, 100, 5} {
		rec := domain.PredictionRecord{
			ID:          string(rune('a' + i)),
			County:      "Embu",
			FarmSize:    1,
			Predictions: map[string]domain.CropPrediction{},
			CreatedAt:   now.AddDate(0, 0, -age),
		}
		if err := sqlite.InsertPrediction(db, "latest", rec); err != nil {
			t.Fatalf("InsertPrediction: %v", err)
		}
	}

	reloader := &fakeReloader{}
	m := Maintenance{
		DB:        db,
		Retention: 90 * 24 * time.Hour,
		EnvData:   reloader,
		Cache:     fakeSweeper{n: 3},
	}
	result, err := m.Run(now)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.PrunedPredictions != 2 || result.SweptSlots != 3 || !result.ReloadedEnvData {
		t.Fatalf("unexpected result: %+v", result)
	}
	if reloader.calls != 1 {
		t.Fatalf("reload calls = %d", reloader.calls)
	}

	summary := FormatMaintenanceSummary(result)
	if summary != "Maintenance complete: 2 old predictions pruned, 3 expired sessions cleared, county data reloaded." {
		t.Fatalf("unexpected summary: %q", summary)
	}
}

func TestMaintenanceRunReportsReloadError(t *testing.T) {
	m := Maintenance{EnvData: &fakeReloader{err: errors.New("file missing")}}
	result, err := m.Run(time.Now())
	if err == nil {
		t.Fatal("expected error")
	}
	if result.ReloadedEnvData || len(result.Errors) != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if !strings.Contains(FormatMaintenanceSummary(result), "Warnings:\nenvironmental data: file missing") {
		t.Fatalf("summary should list warnings: %q", FormatMaintenanceSummary(result))
	}
}

func TestParseSchedule(t *testing.T) {
	sched, err := ParseSchedule(" 30 2 * * * ")
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}
	from := time.Date(2024, 6, 1, 3, 0, 0, 0, time.UTC)
	want := time.Date(2024, 6, 2, 2, 30, 0, 0, time.UTC)
	if got := sched.Next(from); !got.Equal(want) {
		t.Fatalf("Next = %s, want %s", got, want)
	}

	for _, bad := range []string{"", "every day", "0 0 * *", "* * * * * *"} {
		if _, err := ParseSchedule(bad); err == nil {
			t.Errorf("expected %q to be rejected", bad)
		}
	}
}
