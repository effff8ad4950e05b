package envdata

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"mkulima/internal/domain"
)

// CSVFetcher serves rows from a county feature table. The first header
// column names the county; every other column is a numeric feature.
type CSVFetcher struct {
	path string

	mu   sync.RWMutex
	rows map[string]domain.FeatureRow
}

func NewCSVFetcher(path string) (*CSVFetcher, error) {
	f := &CSVFetcher{path: path}
	if err := f.Reload(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *CSVFetcher) Reload() error {
	file, err := os.Open(f.path)
	if err != nil {
		return fmt.Errorf("open county table: %w", err)
	}
	defer file.Close()

	rows, err := parseCountyTable(file)
	if err != nil {
		return fmt.Errorf("parse county table %s: %w", f.path, err)
	}

	f.mu.Lock()
	f.rows = rows
	f.mu.Unlock()
	log.Printf("envdata csv loaded path=%s counties=%d", f.path, len(rows))
	return nil
}

func (f *CSVFetcher) Fetch(_ context.Context, county string) (domain.FeatureRow, error) {
	f.mu.RLock()
	row, ok := f.rows[NormalizeCounty(county)]
	f.mu.RUnlock()
	if !ok {
		return domain.FeatureRow{}, fmt.Errorf("%w: %s", ErrCountyNotFound, county)
	}
	return cloneRow(row), nil
}

// Counties returns the county names in the table, sorted.
func (f *CSVFetcher) Counties() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.rows))
	for _, row := range f.rows {
		names = append(names, row.County)
	}
	sort.Strings(names)
	return names
}

func parseCountyTable(r io.Reader) (map[string]domain.FeatureRow, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty table")
		}
		return nil, err
	}
	if len(header) < 2 {
		return nil, fmt.Errorf("header needs a county column and at least one feature")
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	rows := make(map[string]domain.FeatureRow)
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		county := strings.TrimSpace(record[0])
		if county == "" {
			continue
		}
		values := make(map[string]float64, len(header)-1)
		for i := 1; i < len(header) && i < len(record); i++ {
			cell := strings.TrimSpace(record[i])
			if cell == "" {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %q: %w", line, header[i], err)
			}
			if !finite(v) {
				continue
			}
			values[header[i]] = v
		}
		rows[NormalizeCounty(county)] = domain.FeatureRow{County: county, Values: values}
	}
	return rows, nil
}

func cloneRow(row domain.FeatureRow) domain.FeatureRow {
	values := make(map[string]float64, len(row.Values))
	for k, v := range row.Values {
		values[k] = v
	}
	return domain.FeatureRow{County: row.County, Values: values}
}
