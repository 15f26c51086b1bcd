package sqlite

import (
	"context"
	"fmt"

	"github.com/couchcryptid/gust-correlation-etl/internal/domain"
)

const createCoverage = `CREATE TABLE IF NOT EXISTS coverage (
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			miles REAL NOT NULL,
			start TEXT NOT NULL,
			stop TEXT NOT NULL
		)`

// AddCoverage records that the complete API answer for a radius query over
// cov's span is stored.
func (c *Cache) AddCoverage(ctx context.Context, cov domain.Coverage) error {
	if cov.Miles <= 0 || cov.Start.IsZero() || cov.End.IsZero() {
		return domain.Validationf("coverage needs a positive radius and a span")
	}
	_, err := c.db.ExecContext(ctx,
		"INSERT INTO coverage (latitude, longitude, miles, start, stop) VALUES (?, ?, ?, ?, ?)",
		cov.Latitude, cov.Longitude, cov.Miles, formatTimestamp(cov.Start), formatTimestamp(cov.End))
	if err != nil {
		return fmt.Errorf("recording coverage: %w", err)
	}
	return nil
}

// Covered reports whether a recorded coverage contains the circle of miles
// around (lat, lon) over [start, end].
func (c *Cache) Covered(ctx context.Context, lat, lon, miles float64, start, end domain.Instant) (bool, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT latitude, longitude, miles FROM coverage
		WHERE start <= ? AND stop >= ? AND miles >= ?`,
		formatTimestamp(start), formatTimestamp(end), miles)
	if err != nil {
		return false, fmt.Errorf("querying coverage: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		cov := domain.Coverage{Start: start, End: end}
		if err := rows.Scan(&cov.Latitude, &cov.Longitude, &cov.Miles); err != nil {
			return false, fmt.Errorf("scanning coverage: %w", err)
		}
		if cov.Contains(lat, lon, miles, start, end) {
			return true, nil
		}
	}
	return false, rows.Err()
}
