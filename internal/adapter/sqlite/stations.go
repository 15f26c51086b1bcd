package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/couchcryptid/gust-correlation-etl/internal/domain"
)

const stationColumns = `id, name, latitude, longitude, elevation, state, mnet_id, status, timezone,
	period_of_record_start, period_of_record_stop, sensor_variables`

const insertStation = `INSERT OR IGNORE INTO station (` + stationColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// AddStation registers one station. Re-adding a known identifier is a no-op.
func (c *Cache) AddStation(ctx context.Context, s domain.Station) error {
	return c.AddStations(ctx, []domain.Station{s})
}

// AddStations registers a batch of stations in one transaction, ignoring
// identifiers already present.
func (c *Cache) AddStations(ctx context.Context, stations []domain.Station) error {
	if len(stations) == 0 {
		return domain.Validationf("no stations to add")
	}
	for _, s := range stations {
		if s.ID == "" {
			return domain.Validationf("station without identifier")
		}
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin add stations: %w", err)
	}
	defer tx.Rollback()

	added := 0
	for _, s := range stations {
		ok, err := insertStationRow(ctx, tx, s)
		if err != nil {
			return err
		}
		if ok {
			added++
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing stations: %w", err)
	}
	c.logger.Debug("stations added", "requested", len(stations), "inserted", added)
	return nil
}

// insertStationRow reports whether a new row was written.
func insertStationRow(ctx context.Context, ex execer, s domain.Station) (bool, error) {
	var sensors any
	if len(s.SensorVariables) > 0 {
		sensors = []byte(s.SensorVariables)
	}
	res, err := ex.ExecContext(ctx, insertStation,
		s.ID, nullString(s.Name), s.Latitude, s.Longitude, s.Elevation,
		nullString(s.State), nullString(s.Network), nullString(s.Status), nullString(s.Timezone),
		nullInstant(s.RecordStart), nullInstant(s.RecordEnd), sensors,
	)
	if err != nil {
		return false, fmt.Errorf("inserting station %s: %w", s.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("inserting station %s: %w", s.ID, err)
	}
	return n > 0, nil
}

// GetStation returns the stored station. found is false when the identifier
// is not cached.
func (c *Cache) GetStation(ctx context.Context, id string) (station domain.Station, found bool, err error) {
	row := c.db.QueryRowContext(ctx, "SELECT "+stationColumns+" FROM station WHERE id = ?", id)
	s, err := scanStation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Station{}, false, nil
	}
	if err != nil {
		return domain.Station{}, false, fmt.Errorf("querying station %s: %w", id, err)
	}
	return s, true, nil
}

// StationsWithin returns cached stations within miles of (lat, lon), nearest
// first, ties broken by identifier. A bounding box prefilters in SQL; the
// haversine distance decides.
func (c *Cache) StationsWithin(ctx context.Context, lat, lon, miles float64) ([]domain.NearbyStation, error) {
	box := domain.BoundingBoxAround(lat, lon, miles)
	rows, err := c.db.QueryContext(ctx,
		"SELECT "+stationColumns+` FROM station
		WHERE latitude BETWEEN ? AND ?
		  AND longitude BETWEEN ? AND ?`,
		box.MinLat, box.MaxLat, box.MinLon, box.MaxLon)
	if err != nil {
		return nil, fmt.Errorf("querying stations near %.4f,%.4f: %w", lat, lon, err)
	}
	defer rows.Close()

	var nearby []domain.NearbyStation
	for rows.Next() {
		s, err := scanStation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning station: %w", err)
		}
		d := domain.HaversineMiles(lat, lon, s.Latitude, s.Longitude)
		if d <= miles {
			nearby = append(nearby, domain.NearbyStation{Station: s, Distance: d})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("querying stations near %.4f,%.4f: %w", lat, lon, err)
	}

	sort.Slice(nearby, func(i, j int) bool {
		if nearby[i].Distance != nearby[j].Distance {
			return nearby[i].Distance < nearby[j].Distance
		}
		return nearby[i].Station.ID < nearby[j].Station.ID
	})
	return nearby, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStation(row scanner) (domain.Station, error) {
	var (
		s                                      domain.Station
		name, state, network, status, timezone sql.NullString
		lat, lon, elev                         sql.NullFloat64
		start, stop                            sql.NullString
		sensors                                []byte
	)
	if err := row.Scan(&s.ID, &name, &lat, &lon, &elev, &state, &network, &status, &timezone,
		&start, &stop, &sensors); err != nil {
		return domain.Station{}, err
	}
	s.Name = name.String
	s.Latitude = lat.Float64
	s.Longitude = lon.Float64
	s.Elevation = elev.Float64
	s.State = state.String
	s.Network = network.String
	s.Status = status.String
	s.Timezone = timezone.String
	if len(sensors) > 0 {
		s.SensorVariables = append([]byte(nil), sensors...)
	}
	var err error
	if s.RecordStart, err = parseStored(start); err != nil {
		return domain.Station{}, err
	}
	if s.RecordEnd, err = parseStored(stop); err != nil {
		return domain.Station{}, err
	}
	return s, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInstant(i domain.Instant) any {
	if i.IsZero() {
		return nil
	}
	return formatTimestamp(i)
}

func formatTimestamp(i domain.Instant) string {
	return i.Time().Format(timestampLayout)
}

func parseStored(s sql.NullString) (domain.Instant, error) {
	if !s.Valid || s.String == "" {
		return domain.Instant{}, nil
	}
	in, err := domain.ParseInstant(s.String)
	if err != nil {
		return domain.Instant{}, fmt.Errorf("stored timestamp %q: %w", s.String, err)
	}
	return in, nil
}
