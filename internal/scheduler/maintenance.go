package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"mkulima/internal/envdata"
	"mkulima/internal/storage/sqlite"
)

type sweeper interface {
	Sweep() int
}

// Maintenance is the periodic housekeeping job. Nil fields are skipped.
type Maintenance struct {
	DB        *sql.DB
	Retention time.Duration
	EnvData   envdata.Reloader
	Cache     sweeper
	Notify    func(summary string)
}

// MaintenanceResult tracks what one run did.
type MaintenanceResult struct {
	PrunedPredictions int64
	SweptSlots        int
	ReloadedEnvData   bool
	Errors            []string
}

// Run prunes history older than the retention window, drops expired cache
// slots and reloads the county table.
func (m Maintenance) Run(now time.Time) (MaintenanceResult, error) {
	var result MaintenanceResult

	if m.DB != nil && m.Retention > 0 {
		cutoff := now.Add(-m.Retention)
		removed, err := sqlite.PruneBefore(m.DB, cutoff)
		if err != nil {
			log.Printf("maintenance prune error: %v", err)
			result.Errors = append(result.Errors, fmt.Sprintf("history: %v", err))
		} else {
			log.Printf("maintenance pruned predictions=%d cutoff=%s", removed, cutoff.Format("2006-01-02"))
			result.PrunedPredictions = removed
		}
	}

	if m.Cache != nil {
		result.SweptSlots = m.Cache.Sweep()
	}

	if m.EnvData != nil {
		if err := m.EnvData.Reload(); err != nil {
			log.Printf("maintenance envdata reload error: %v", err)
			result.Errors = append(result.Errors, fmt.Sprintf("environmental data: %v", err))
		} else {
			result.ReloadedEnvData = true
		}
	}

	if len(result.Errors) > 0 {
		return result, fmt.Errorf("maintenance failed: %s", strings.Join(result.Errors, "; "))
	}
	return result, nil
}

func FormatMaintenanceSummary(result MaintenanceResult) string {
	parts := []string{
		fmt.Sprintf("%d old predictions pruned", result.PrunedPredictions),
		fmt.Sprintf("%d expired sessions cleared", result.SweptSlots),
	}
	if result.ReloadedEnvData {
		parts = append(parts, "county data reloaded")
	}
	msg := "Maintenance complete: " + strings.Join(parts, ", ") + "."
	if len(result.Errors) > 0 {
		msg += fmt.Sprintf("\nWarnings:\n%s", strings.Join(result.Errors, "\n"))
	}
	return msg
}

// ParseSchedule accepts a standard 5-field cron expression
// (minute hour day-of-month month day-of-week).
func ParseSchedule(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return parser.Parse(strings.TrimSpace(expr))
}

// Start runs m on schedule until ctx is cancelled. An empty schedule
// disables the job. Examples: "30 2 * * *" (daily 02:30), "0 */6 * * *".
func Start(ctx context.Context, schedule string, m Maintenance) {
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		log.Println("Maintenance disabled (history_prune_schedule not set)")
		return
	}
	sched, err := ParseSchedule(schedule)
	if err != nil {
		log.Printf("Invalid history_prune_schedule '%s': %v, maintenance disabled", schedule, err)
		return
	}
	log.Printf("Maintenance scheduled (cron: %s)", schedule)

	go func() {
		for {
			now := time.Now()
			next := sched.Next(now)
			wait := next.Sub(now)
			log.Printf("Next maintenance at %s (in %s)", next.Format("Mon Jan 2 15:04"), wait.Round(time.Minute))

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				log.Println("Maintenance scheduler stopped")
				return
			case <-timer.C:
			}

			result, runErr := m.Run(time.Now())
			summary := FormatMaintenanceSummary(result)
			if runErr != nil {
				log.Printf("Maintenance error: %v", runErr)
			}
			log.Printf("%s", summary)
			if m.Notify != nil {
				m.Notify(summary)
			}
		}
	}()
}
