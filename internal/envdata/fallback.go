package envdata

import (
	"context"
	"errors"
	"log"

	"mkulima/internal/domain"
)

// FallbackFetcher asks Primary first and Secondary when Primary fails for
// any reason other than an unknown county.
type FallbackFetcher struct {
	Primary   Fetcher
	Secondary Fetcher
}

func (f FallbackFetcher) Fetch(ctx context.Context, county string) (domain.FeatureRow, error) {
	if f.Primary == nil {
		return f.Secondary.Fetch(ctx, county)
	}
	row, err := f.Primary.Fetch(ctx, county)
	if err == nil || f.Secondary == nil || errors.Is(err, ErrCountyNotFound) {
		return row, err
	}
	log.Printf("envdata primary failed county=%q, using fallback: %v", county, err)
	return f.Secondary.Fetch(ctx, county)
}

func (f FallbackFetcher) Reload() error {
	var errs []error
	for _, member := range []Fetcher{f.Primary, f.Secondary} {
		if r, ok := member.(Reloader); ok {
			errs = append(errs, r.Reload())
		}
	}
	return errors.Join(errs...)
}
