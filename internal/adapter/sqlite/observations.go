package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/couchcryptid/gust-correlation-etl/internal/domain"
)

// AddObservations stores every station series in d. Unknown stations are
// registered first. Rows are keyed on (station, timestamp) and inserted with
// "ignore duplicate" semantics, so the first write wins and re-adding a batch
// changes nothing.
func (c *Cache) AddObservations(ctx context.Context, d *domain.Dataset) error {
	if d == nil || (d.Summary == (domain.Summary{}) && len(d.Stations) == 0) {
		return domain.Validationf("no observation data provided")
	}
	if len(d.Stations) == 0 {
		c.logger.Debug("dataset has no stations, nothing to store",
			"response_code", d.Summary.ResponseCode,
			"message", d.Summary.ResponseMessage,
		)
		return nil
	}

	fields := c.schema.Fields()
	insert := insertObservation(fields)

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin add observations: %w", err)
	}
	defer tx.Rollback()

	if err := insertUnits(ctx, tx, d.Units); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("preparing observation insert: %w", err)
	}
	defer stmt.Close()

	written := 0
	for _, st := range d.Stations {
		if st.Station.ID == "" {
			return domain.Structuralf("station series without identifier")
		}
		rows, err := c.rowsFor(st, fields)
		if err != nil {
			return err
		}
		registered, err := insertStationRow(ctx, tx, st.Station)
		if err != nil {
			return err
		}
		if registered {
			c.logger.Debug("station auto-registered", "station", st.Station.ID)
		}
		for _, args := range rows {
			res, err := stmt.ExecContext(ctx, args...)
			if err != nil {
				return fmt.Errorf("inserting observation for %s: %w", st.Station.ID, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				written++
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing observations: %w", err)
	}
	c.logger.Debug("observations added", "stations", len(d.Stations), "inserted", written)
	return nil
}

// rowsFor converts one station series into insert arguments ordered as
// (timestamp, station_id, fields...).
func (c *Cache) rowsFor(st domain.StationSeries, fields []domain.Field) ([][]any, error) {
	n := st.Series.Len()
	names := make([]string, 0, len(st.Series.Variables))
	for name := range st.Series.Variables {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if name == domain.DateTimeField {
			continue
		}
		if len(st.Series.Variables[name]) != n {
			return nil, domain.Structuralf("station %s: %s has %d values for %d timestamps",
				st.Station.ID, name, len(st.Series.Variables[name]), n)
		}
		if _, ok := c.schema.Lookup(name); !ok {
			if c.strict {
				return nil, domain.Structuralf("station %s: unrecognized field %s", st.Station.ID, name)
			}
			c.logger.Debug("dropping unrecognized field", "station", st.Station.ID, "field", name)
		}
	}

	rows := make([][]any, n)
	for i := 0; i < n; i++ {
		at, err := domain.ParseInstant(st.Series.DateTime[i])
		if err != nil {
			return nil, fmt.Errorf("%w: station %s: %w", domain.ErrStructural, st.Station.ID, err)
		}
		args := make([]any, 0, len(fields)+2)
		args = append(args, formatTimestamp(at), st.Station.ID)
		for _, f := range fields {
			values, ok := st.Series.Variables[f.Name]
			if !ok {
				args = append(args, nil)
				continue
			}
			v, err := f.Coerce(values[i])
			if err != nil {
				return nil, fmt.Errorf("station %s at %s: %w", st.Station.ID, at, err)
			}
			args = append(args, v)
		}
		rows[i] = args
	}
	return rows, nil
}

func insertObservation(fields []domain.Field) string {
	cols := []string{"timestamp", "station_id"}
	for _, f := range fields {
		cols = append(cols, quote(f.Name))
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	return "INSERT OR IGNORE INTO observation (" + strings.Join(cols, ", ") + ") VALUES (" + marks + ")"
}

func insertUnits(ctx context.Context, ex execer, units map[string]string) error {
	for variable, unit := range units {
		if _, err := ex.ExecContext(ctx, "INSERT OR IGNORE INTO units (variable, units) VALUES (?, ?)", variable, unit); err != nil {
			return fmt.Errorf("inserting units for %s: %w", variable, err)
		}
	}
	return nil
}

// GetObservations returns the station's observations with timestamps in
// [start, end], ordered by time. No match yields an empty slice.
func (c *Cache) GetObservations(ctx context.Context, stationID string, start, end domain.Instant) ([]domain.Observation, error) {
	if stationID == "" {
		return nil, domain.Validationf("station identifier required")
	}
	fields := c.schema.Fields()
	cols := make([]string, 0, len(fields))
	for _, f := range fields {
		cols = append(cols, quote(f.Name))
	}
	query := "SELECT timestamp"
	if len(cols) > 0 {
		query += ", " + strings.Join(cols, ", ")
	}
	query += " FROM observation WHERE station_id = ? AND timestamp BETWEEN ? AND ? ORDER BY timestamp"

	rows, err := c.db.QueryContext(ctx, query, stationID, formatTimestamp(start), formatTimestamp(end))
	if err != nil {
		return nil, fmt.Errorf("querying observations for %s: %w", stationID, err)
	}
	defer rows.Close()

	out := []domain.Observation{}
	for rows.Next() {
		var ts string
		values := make([]any, len(fields))
		dest := make([]any, 0, len(fields)+1)
		dest = append(dest, &ts)
		for i := range values {
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning observation for %s: %w", stationID, err)
		}
		at, err := parseStored(sql.NullString{String: ts, Valid: true})
		if err != nil {
			return nil, err
		}
		obs := domain.Observation{StationID: stationID, Time: at, Fields: make(map[string]any, len(fields))}
		for i, f := range fields {
			obs.Fields[f.Name] = normalize(f.Kind, values[i])
		}
		out = append(out, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("querying observations for %s: %w", stationID, err)
	}
	return out, nil
}

// normalize maps driver values onto the Observation field types.
func normalize(kind domain.Kind, v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(x)
	case int64:
		if kind == domain.KindReal {
			return float64(x)
		}
		return x
	default:
		return x
	}
}
