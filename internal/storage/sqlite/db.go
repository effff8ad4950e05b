// Package sqlite keeps the prediction and profit history behind the reports
// page.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"mkulima/internal/domain"
)

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS predictions (
		id           TEXT PRIMARY KEY,
		session_key  TEXT NOT NULL DEFAULT 'latest',
		county       TEXT NOT NULL,
		farm_size    REAL NOT NULL,
		predictions  TEXT NOT NULL,
		input_data   TEXT NOT NULL DEFAULT '{}',
		created_at   DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at);
	CREATE INDEX IF NOT EXISTS idx_predictions_session ON predictions(session_key);

	CREATE TABLE IF NOT EXISTS profit_analyses (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		prediction_id   TEXT NOT NULL,
		crop            TEXT NOT NULL,
		predicted_yield REAL NOT NULL,
		market_price    REAL NOT NULL,
		seed_cost       REAL NOT NULL,
		fertilizer_cost REAL NOT NULL,
		labor_cost      REAL NOT NULL,
		total_cost      REAL NOT NULL,
		total_revenue   REAL NOT NULL,
		total_profit    REAL NOT NULL,
		profit_margin   REAL NOT NULL,
		used_defaults   INTEGER NOT NULL DEFAULT 0,
		created_at      DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_pa_prediction ON profit_analyses(prediction_id);
	CREATE INDEX IF NOT EXISTS idx_pa_created_at ON profit_analyses(created_at);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func InsertPrediction(db *sql.DB, session string, rec domain.PredictionRecord) error {
	predictions, err := json.Marshal(rec.Predictions)
	if err != nil {
		return fmt.Errorf("encode predictions: %w", err)
	}
	inputs, err := json.Marshal(rec.InputData)
	if err != nil {
		return fmt.Errorf("encode input data: %w", err)
	}
	_, err = db.Exec(
		`INSERT INTO predictions (id, session_key, county, farm_size, predictions, input_data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, session, rec.County, rec.FarmSize, string(predictions), string(inputs), rec.CreatedAt.UTC(),
	)
	return err
}

func InsertProfitAnalysis(db *sql.DB, predictionID string, a domain.ProfitAnalysis, at time.Time) error {
	_, err := db.Exec(
		`INSERT INTO profit_analyses (prediction_id, crop, predicted_yield, market_price,
			seed_cost, fertilizer_cost, labor_cost, total_cost, total_revenue, total_profit,
			profit_margin, used_defaults, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		predictionID, a.Crop, a.PredictedYield, a.MarketPrice,
		a.Profit.SeedCost, a.Profit.FertilizerCost, a.Profit.LaborCost, a.Profit.TotalCost,
		a.Profit.TotalRevenue, a.Profit.TotalProfit, a.ProfitMargin, a.UsedDefaults, at.UTC(),
	)
	return err
}

// ListReports returns the newest predictions first, each joined with the last
// profit analysis made against it. An empty session lists every session.
func ListReports(db *sql.DB, session string, limit int) ([]domain.ReportEntry, error) {
	if limit < 1 {
		limit = 20
	}
	rows, err := db.Query(
		`SELECT p.id, p.session_key, p.county, p.farm_size, p.predictions, p.created_at,
			a.crop, a.predicted_yield, a.market_price, a.seed_cost, a.fertilizer_cost, a.labor_cost,
			a.total_cost, a.total_revenue, a.total_profit, a.profit_margin, a.used_defaults
		 FROM predictions p
		 LEFT JOIN profit_analyses a
		   ON a.id = (SELECT MAX(id) FROM profit_analyses WHERE prediction_id = p.id)
		 WHERE ? = '' OR p.session_key = ?
		 ORDER BY p.created_at DESC, p.rowid DESC
		 LIMIT ?`,
		session, session, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.ReportEntry
	for rows.Next() {
		var (
			entry       domain.ReportEntry
			predictions string
			crop        sql.NullString
			usedDefault sql.NullBool
			nums        [10]sql.NullFloat64
		)
		err := rows.Scan(
			&entry.PredictionID, &entry.SessionKey, &entry.County, &entry.FarmSize, &predictions, &entry.CreatedAt,
			&crop, &nums[0], &nums[1], &nums[2], &nums[3], &nums[4],
			&nums[5], &nums[6], &nums[7], &nums[8], &usedDefault,
		)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(predictions), &entry.Predictions); err != nil {
			return nil, fmt.Errorf("decode predictions %s: %w", entry.PredictionID, err)
		}
		if crop.Valid {
			entry.Analysis = &domain.ProfitAnalysis{
				Crop:           crop.String,
				PredictedYield: nums[0].Float64,
				MarketPrice:    nums[1].Float64,
				Profit: domain.ProfitBreakdown{
					SeedCost:       nums[2].Float64,
					FertilizerCost: nums[3].Float64,
					LaborCost:      nums[4].Float64,
					TotalCost:      nums[5].Float64,
					TotalRevenue:   nums[6].Float64,
					TotalProfit:    nums[7].Float64,
				},
				ProfitMargin: nums[8].Float64,
				UsedDefaults: usedDefault.Bool,
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// PruneBefore deletes predictions created before cutoff along with their
// analyses, returning the number of predictions removed.
func PruneBefore(db *sql.DB, cutoff time.Time) (int64, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	cutoff = cutoff.UTC()
	if _, err := tx.Exec(
		`DELETE FROM profit_analyses WHERE prediction_id IN (SELECT id FROM predictions WHERE created_at < ?)`,
		cutoff,
	); err != nil {
		return 0, err
	}
	res, err := tx.Exec(`DELETE FROM predictions WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return removed, tx.Commit()
}

// CountsByCounty returns how many predictions each county has had.
func CountsByCounty(db *sql.DB) (map[string]int, error) {
	rows, err := db.Query(`SELECT county, COUNT(*) FROM predictions GROUP BY county`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var county string
		var n int
		if err := rows.Scan(&county, &n); err != nil {
			return nil, err
		}
		counts[county] = n
	}
	return counts, rows.Err()
}
