package domain

import "context"

// WeatherAPI is the external station and time-series provider. Implementations
// return the decoded response including its SUMMARY block; callers interpret
// the response code.
type WeatherAPI interface {
	// StationMetadata looks up one station by identifier.
	StationMetadata(ctx context.Context, stationID string) (*Dataset, error)

	// TimeseriesByStation returns one station's observations in [start, end].
	TimeseriesByStation(ctx context.Context, stationID string, start, end Instant) (*Dataset, error)

	// TimeseriesByRadius returns observations for every station within miles of
	// (lat, lon) in [start, end]. Each station series carries its distance.
	TimeseriesByRadius(ctx context.Context, lat, lon, miles float64, start, end Instant) (*Dataset, error)
}

// ObservationStore is the local station and observation cache.
type ObservationStore interface {
	// GetStation returns the stored station. found is false when the
	// identifier is not cached; that is not an error.
	GetStation(ctx context.Context, id string) (station Station, found bool, err error)

	// AddStations registers stations, ignoring identifiers already stored.
	AddStations(ctx context.Context, stations []Station) error

	// AddObservations stores every series in d, registering unknown stations
	// first. Rows already stored for a (station, timestamp) are left as is.
	AddObservations(ctx context.Context, d *Dataset) error

	// GetObservations returns one station's observations in [start, end]
	// ordered by time. An empty result is not an error.
	GetObservations(ctx context.Context, stationID string, start, end Instant) ([]Observation, error)

	// StationsWithin returns cached stations within miles of (lat, lon),
	// nearest first.
	StationsWithin(ctx context.Context, lat, lon, miles float64) ([]NearbyStation, error)

	// AddCoverage records that a radius query's full answer is stored.
	AddCoverage(ctx context.Context, cov Coverage) error

	// Covered reports whether a recorded coverage contains the query circle
	// and span.
	Covered(ctx context.Context, lat, lon, miles float64, start, end Instant) (bool, error)
}
