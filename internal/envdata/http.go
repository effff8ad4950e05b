package envdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"

	"mkulima/internal/domain"
	"mkulima/internal/httpx"
)

const (
	breakerFailures = 5
	breakerOpen     = 30 * time.Second
	breakerInterval = 60 * time.Second
)

// HTTPFetcher reads county features from the remote environmental data
// service at GET {base}/counties/{county}. The response is a flat JSON object
// of feature name to number, optionally carrying "County".
type HTTPFetcher struct {
	client  *resty.Client
	breaker *gobreaker.CircuitBreaker
	retries int

	newBackOff func() backoff.BackOff
}

func NewHTTPFetcher(baseURL string, retries int) *HTTPFetcher {
	if retries < 1 {
		retries = 1
	}
	client := resty.NewWithClient(httpx.ExternalHTTPClient()).
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Accept", "application/json")

	return &HTTPFetcher{
		client:  client,
		retries: retries,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:     "envdata",
			Interval: breakerInterval,
			Timeout:  breakerOpen,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= breakerFailures
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrCountyNotFound)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Printf("envdata breaker name=%s from=%s to=%s", name, from, to)
			},
		}),
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, county string) (domain.FeatureRow, error) {
	res, err := f.breaker.Execute(func() (interface{}, error) {
		var row domain.FeatureRow
		op := func() error {
			var err error
			row, err = f.fetchOnce(ctx, county)
			return err
		}
		bo := backoff.WithContext(backoff.WithMaxRetries(f.newBackOff(), uint64(f.retries-1)), ctx)
		if err := backoff.Retry(op, bo); err != nil {
			return nil, err
		}
		return row, nil
	})
	if err != nil {
		return domain.FeatureRow{}, err
	}
	return res.(domain.FeatureRow), nil
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, county string) (domain.FeatureRow, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		SetPathParam("county", strings.TrimSpace(county)).
		Get("/counties/{county}")
	if err != nil {
		log.Printf("envdata http error county=%q: %v", county, err)
		if ctx.Err() != nil {
			return domain.FeatureRow{}, backoff.Permanent(err)
		}
		return domain.FeatureRow{}, fmt.Errorf("environmental data request: %w", err)
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusNotFound:
		return domain.FeatureRow{}, backoff.Permanent(fmt.Errorf("%w: %s", ErrCountyNotFound, county))
	case code >= 500 || code == http.StatusTooManyRequests:
		return domain.FeatureRow{}, fmt.Errorf("environmental data service status=%d", code)
	case code >= 300:
		return domain.FeatureRow{}, backoff.Permanent(fmt.Errorf("environmental data service status=%d", code))
	}

	row, err := decodeFeatureRow(county, resp.Body())
	if err != nil {
		return domain.FeatureRow{}, backoff.Permanent(err)
	}
	return row, nil
}

func decodeFeatureRow(county string, body []byte) (domain.FeatureRow, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return domain.FeatureRow{}, fmt.Errorf("parse environmental data: %w", err)
	}

	row := domain.FeatureRow{County: strings.TrimSpace(county), Values: make(map[string]float64, len(raw))}
	for key, val := range raw {
		if strings.EqualFold(key, "county") {
			var name string
			if json.Unmarshal(val, &name) == nil && name != "" {
				row.County = name
			}
			continue
		}
		var num float64
		if err := json.Unmarshal(val, &num); err == nil {
			if finite(num) {
				row.Values[key] = num
			}
			continue
		}
		var text string
		if err := json.Unmarshal(val, &text); err == nil {
			if num, err := strconv.ParseFloat(strings.TrimSpace(text), 64); err == nil && finite(num) {
				row.Values[key] = num
			}
		}
	}
	if len(row.Values) == 0 {
		return domain.FeatureRow{}, fmt.Errorf("%w: %s", ErrCountyNotFound, county)
	}
	return row, nil
}
