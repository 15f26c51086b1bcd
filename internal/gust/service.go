// Package gust answers max-gust queries for an event location and time,
// reading observations from the local cache and filling it from the weather
// API when the cached range is missing or incomplete.
package gust

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/gust-correlation-etl/internal/domain"
	"github.com/couchcryptid/gust-correlation-etl/internal/observability"
	"golang.org/x/sync/singleflight"
)

// Lookup kinds and results for the cache_lookups_total metric.
const (
	kindStation    = "station"
	kindTimeseries = "timeseries"
	kindRadius     = "radius"

	resultHit     = "hit"
	resultMiss    = "miss"
	resultRefresh = "refresh"
)

// Service is safe for concurrent use when its store is. Fetches for the same
// station or the same radius query are collapsed into one API call and one
// cache write.
type Service struct {
	store   domain.ObservationStore
	api     domain.WeatherAPI
	mode    domain.CompletenessMode
	flight  singleflight.Group
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewService creates a Service over a bound cache and a weather API client.
func NewService(store domain.ObservationStore, api domain.WeatherAPI, mode domain.CompletenessMode, metrics *observability.Metrics, logger *slog.Logger) *Service {
	return &Service{
		store:   store,
		api:     api,
		mode:    mode,
		metrics: metrics,
		logger:  logger,
	}
}

// MaxGust builds the gust table for an event at (lat, lon) with reference
// instant ref. Observations are read for every station within the largest
// distance window over the span of the largest time window.
func (s *Service) MaxGust(ctx context.Context, lat, lon float64, ref domain.Instant, w domain.Windows) (domain.GustTable, error) {
	if ref.IsZero() {
		return nil, domain.Validationf("reference time is required")
	}
	start, end := w.Span(ref)
	stations, err := s.RadiusObservations(ctx, lat, lon, w.MaxMiles(), start, end)
	if err != nil {
		return nil, err
	}
	return domain.ComputeMaxGust(w, ref, stations), nil
}

// ResolveStation returns the cached station, fetching and registering its
// metadata on a miss. The result is always re-read from the cache so callers
// see the stored shape. An identifier the API rejects yields an
// *domain.UnknownStationError.
func (s *Service) ResolveStation(ctx context.Context, id string) (domain.Station, error) {
	if id == "" {
		return domain.Station{}, domain.Validationf("station id is required")
	}
	st, found, err := s.store.GetStation(ctx, id)
	if err != nil {
		return domain.Station{}, err
	}
	if found {
		s.metrics.CacheLookups.WithLabelValues(kindStation, resultHit).Inc()
		return st, nil
	}
	s.metrics.CacheLookups.WithLabelValues(kindStation, resultMiss).Inc()

	v, err, _ := s.flight.Do("station:"+id, func() (any, error) {
		return s.fetchStation(ctx, id)
	})
	if err != nil {
		return domain.Station{}, err
	}
	return v.(domain.Station), nil
}

func (s *Service) fetchStation(ctx context.Context, id string) (domain.Station, error) {
	d, err := s.api.StationMetadata(ctx, id)
	if err != nil {
		return domain.Station{}, fmt.Errorf("fetch metadata for %s: %w", id, err)
	}
	switch d.Summary.ResponseCode {
	case domain.ResponseCodeOK:
	case domain.ResponseCodeNoResults:
		return domain.Station{}, &domain.UnknownStationError{StationID: id}
	default:
		return domain.Station{}, responseError("metadata", d)
	}
	if len(d.Stations) == 0 {
		return domain.Station{}, &domain.UnknownStationError{StationID: id}
	}

	stations := make([]domain.Station, len(d.Stations))
	for i, ss := range d.Stations {
		stations[i] = ss.Station
	}
	if err := s.store.AddStations(ctx, stations); err != nil {
		return domain.Station{}, fmt.Errorf("register station %s: %w", id, err)
	}

	st, found, err := s.store.GetStation(ctx, id)
	if err != nil {
		return domain.Station{}, err
	}
	if !found {
		return domain.Station{}, domain.Structuralf("metadata for %s did not include that station", id)
	}
	s.logger.Debug("station registered", "station", id, "name", st.Name)
	return st, nil
}

// StationObservations returns one station's observations in [start, end],
// refreshing the whole range from the API when the cached range fails the
// completeness check.
func (s *Service) StationObservations(ctx context.Context, id string, start, end domain.Instant) ([]domain.Observation, error) {
	if err := checkRange(start, end); err != nil {
		return nil, err
	}
	if _, err := s.ResolveStation(ctx, id); err != nil {
		return nil, err
	}

	obs, err := s.store.GetObservations(ctx, id, start, end)
	if err != nil {
		return nil, err
	}
	if s.mode.IsComplete(obs, start, end) {
		s.metrics.CacheLookups.WithLabelValues(kindTimeseries, resultHit).Inc()
		return obs, nil
	}
	s.metrics.CacheLookups.WithLabelValues(kindTimeseries, resultRefresh).Inc()

	key := fmt.Sprintf("ts:%s|%s|%s", id, start.Compact(), end.Compact())
	if _, err, _ := s.flight.Do(key, func() (any, error) {
		return nil, s.refillStation(ctx, id, start, end)
	}); err != nil {
		return nil, err
	}
	return s.store.GetObservations(ctx, id, start, end)
}

func (s *Service) refillStation(ctx context.Context, id string, start, end domain.Instant) error {
	d, err := s.api.TimeseriesByStation(ctx, id, start, end)
	if err != nil {
		return fmt.Errorf("fetch timeseries for %s: %w", id, err)
	}
	return s.storeDataset(ctx, d)
}

// RadiusObservations returns every station within miles of (lat, lon) with
// its observations in [start, end]. The cache answers only when an earlier
// radius fetch covered the whole circle and span; a station cached by any
// other query does not stand in for the stations around it. Otherwise the
// radius and range are fetched, stored, recorded as covered and re-read.
// Distances are computed from the cached station coordinates.
func (s *Service) RadiusObservations(ctx context.Context, lat, lon, miles float64, start, end domain.Instant) ([]domain.StationObservations, error) {
	if err := checkPoint(lat, lon, miles); err != nil {
		return nil, err
	}
	if err := checkRange(start, end); err != nil {
		return nil, err
	}

	covered, err := s.store.Covered(ctx, lat, lon, miles, start, end)
	if err != nil {
		return nil, err
	}
	if covered {
		s.metrics.CacheLookups.WithLabelValues(kindRadius, resultHit).Inc()
		return s.readRadius(ctx, lat, lon, miles, start, end)
	}
	s.metrics.CacheLookups.WithLabelValues(kindRadius, resultMiss).Inc()

	key := fmt.Sprintf("rad:%g,%g,%g|%s|%s", lat, lon, miles, start.Compact(), end.Compact())
	if _, err, _ := s.flight.Do(key, func() (any, error) {
		return nil, s.refillRadius(ctx, lat, lon, miles, start, end)
	}); err != nil {
		return nil, err
	}

	stations, err := s.readRadius(ctx, lat, lon, miles, start, end)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("radius refreshed",
		"latitude", lat,
		"longitude", lon,
		"miles", miles,
		"start", start.Compact(),
		"end", end.Compact(),
		"stations", len(stations),
	)
	return stations, nil
}

func (s *Service) refillRadius(ctx context.Context, lat, lon, miles float64, start, end domain.Instant) error {
	d, err := s.api.TimeseriesByRadius(ctx, lat, lon, miles, start, end)
	if err != nil {
		return fmt.Errorf("fetch timeseries within %g mi of %g,%g: %w", miles, lat, lon, err)
	}
	if err := s.storeDataset(ctx, d); err != nil {
		return err
	}
	// A no-results answer is complete too: the region has no stations.
	return s.store.AddCoverage(ctx, domain.Coverage{
		Latitude:  lat,
		Longitude: lon,
		Miles:     miles,
		Start:     start,
		End:       end,
	})
}

// storeDataset writes a timeseries response into the cache. A no-results
// response stores nothing; any other non-success code is an error.
func (s *Service) storeDataset(ctx context.Context, d *domain.Dataset) error {
	switch d.Summary.ResponseCode {
	case domain.ResponseCodeOK:
	case domain.ResponseCodeNoResults:
		return nil
	default:
		return responseError("timeseries", d)
	}
	if len(d.Stations) == 0 {
		return nil
	}
	if err := s.store.AddObservations(ctx, d); err != nil {
		return fmt.Errorf("store observations: %w", err)
	}
	return nil
}

// readRadius reads the cached stations within the radius and their
// observations.
func (s *Service) readRadius(ctx context.Context, lat, lon, miles float64, start, end domain.Instant) ([]domain.StationObservations, error) {
	nearby, err := s.store.StationsWithin(ctx, lat, lon, miles)
	if err != nil {
		return nil, err
	}
	out := make([]domain.StationObservations, 0, len(nearby))
	for _, ns := range nearby {
		obs, err := s.store.GetObservations(ctx, ns.Station.ID, start, end)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.StationObservations{
			Station:      ns.Station,
			Distance:     ns.Distance,
			Observations: obs,
		})
	}
	return out, nil
}

func responseError(endpoint string, d *domain.Dataset) error {
	return &domain.APIError{
		Endpoint:     endpoint,
		ResponseCode: d.Summary.ResponseCode,
		Message:      d.Summary.ResponseMessage,
	}
}

func checkRange(start, end domain.Instant) error {
	if start.IsZero() || end.IsZero() {
		return domain.Validationf("start and end times are required")
	}
	if end.Before(start) {
		return domain.Validationf("end %s is before start %s", end, start)
	}
	return nil
}

func checkPoint(lat, lon, miles float64) error {
	if lat < -90 || lat > 90 {
		return domain.Validationf("latitude %g out of range", lat)
	}
	if lon < -180 || lon > 180 {
		return domain.Validationf("longitude %g out of range", lon)
	}
	if miles <= 0 {
		return domain.Validationf("radius must be positive, got %g", miles)
	}
	return nil
}
