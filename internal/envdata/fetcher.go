// Package envdata looks up the current weather and soil features of a
// county, from the remote environmental data service or the bundled table.
package envdata

import (
	"context"
	"errors"
	"math"
	"strings"

	"mkulima/internal/domain"
)

var ErrCountyNotFound = errors.New("no environmental data found for county")

type Fetcher interface {
	Fetch(ctx context.Context, county string) (domain.FeatureRow, error)
}

// Reloader is implemented by fetchers backed by data that can change on disk.
type Reloader interface {
	Reload() error
}

// NormalizeCounty lowercases a county name and collapses inner whitespace.
func NormalizeCounty(county string) string {
	return strings.Join(strings.Fields(strings.ToLower(county)), " ")
}

// finite reports whether v can be used as a feature value. NaN and Inf cells
// are treated as missing.
func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
