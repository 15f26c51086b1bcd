// Package sqlite implements the on-disk observation cache: stations, their
// observations, and the units of each stored variable, in a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/gust-correlation-etl/internal/domain"
	_ "modernc.org/sqlite"
)

const (
	tableUnits       = "units"
	tableStation     = "station"
	tableObservation = "observation"

	// timestampLayout is fixed-width UTC so string order is time order.
	timestampLayout = "2006-01-02T15:04:05Z"
)

// Options tune a Cache handle.
type Options struct {
	// StrictSchema rejects observation batches carrying fields the cache
	// schema does not know. When false those fields are dropped.
	StrictSchema bool
	Logger       *slog.Logger
}

// Cache is a bound handle to one cache file. It is not safe to share one file
// between processes.
type Cache struct {
	db     *sql.DB
	path   string
	schema domain.Schema
	strict bool
	logger *slog.Logger
}

// Create makes a new cache file at path and provisions it with schema.
// The path must not exist.
func Create(ctx context.Context, path string, schema domain.Schema, opts Options) (*Cache, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, domain.Preconditionf(domain.ErrAlreadyExists, "cache file %s", path)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, domain.Preconditionf(domain.ErrAlreadyExists, "cache file %s", path)
		}
		return nil, fmt.Errorf("creating cache file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("creating cache file: %w", err)
	}

	c, err := connect(path, opts)
	if err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	if err := c.Provision(ctx, schema); err != nil {
		_ = c.Close()
		_ = os.Remove(path)
		return nil, err
	}
	c.logger.Info("cache created", "path", path, "fields", schema.Len())
	return c, nil
}

// Open binds to an existing, provisioned cache file. It never creates one.
func Open(ctx context.Context, path string, opts Options) (*Cache, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, domain.Preconditionf(domain.ErrNotExist, "cache file %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("stat cache file: %w", err)
	}
	if info.IsDir() {
		return nil, domain.Validationf("cache path %s is a directory", path)
	}

	c, err := connect(path, opts)
	if err != nil {
		return nil, err
	}
	existing, err := c.existingTables(ctx)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	if len(existing) < 3 {
		_ = c.Close()
		return nil, domain.Preconditionf(domain.ErrNotExist, "cache file %s is not provisioned", path)
	}
	if c.schema, err = c.readSchema(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	// Caches provisioned before coverage was tracked gain the table here.
	if _, err := c.db.ExecContext(ctx, createCoverage); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("provisioning coverage table: %w", err)
	}
	c.logger.Debug("cache opened", "path", path, "fields", c.schema.Len())
	return c, nil
}

func connect(path string, opts Options) (*Cache, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	// One connection: the cache is a single-process, single-writer store.
	db.SetMaxOpenConns(1)

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cache{db: db, path: path, strict: opts.StrictSchema, logger: logger}, nil
}

// Provision creates the units, station, coverage and observation tables. It fails if
// any of them already exists.
func (c *Cache) Provision(ctx context.Context, schema domain.Schema) error {
	existing, err := c.existingTables(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return domain.Preconditionf(domain.ErrAlreadyExists, "tables %s in %s", strings.Join(existing, ", "), c.path)
	}
	if _, ok := schema.Lookup(domain.GustField); !ok {
		return domain.Validationf("schema must include %s", domain.GustField)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin provision: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range provisionStatements(schema) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("provisioning cache schema: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing provision: %w", err)
	}
	c.schema = schema
	return nil
}

func provisionStatements(schema domain.Schema) []string {
	var cols strings.Builder
	for _, f := range schema.Fields() {
		fmt.Fprintf(&cols, "\t\t\t%s %s,\n", quote(f.Name), f.Kind)
	}
	return []string{
		`CREATE TABLE units (
			variable TEXT PRIMARY KEY,
			units TEXT
		)`,
		`CREATE TABLE station (
			id TEXT PRIMARY KEY,
			name TEXT,
			latitude REAL,
			longitude REAL,
			elevation REAL,
			state TEXT,
			mnet_id TEXT,
			status TEXT,
			timezone TEXT,
			period_of_record_start TEXT,
			period_of_record_stop TEXT,
			sensor_variables BLOB,
			UNIQUE(id)
		)`,
		`CREATE INDEX idx_station_coords ON station(latitude, longitude)`,
		createCoverage,
		"CREATE TABLE observation (\n\t\t\ttimestamp TEXT NOT NULL,\n" + cols.String() +
			`			station_id TEXT NOT NULL,
			PRIMARY KEY(station_id, timestamp),
			FOREIGN KEY(station_id) REFERENCES station(id)
		)`,
	}
}

func (c *Cache) existingTables(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name IN (?, ?, ?) ORDER BY name",
		tableObservation, tableStation, tableUnits)
	if err != nil {
		return nil, fmt.Errorf("checking cache tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("checking cache tables: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// readSchema recovers the observation fields from the table definition.
func (c *Cache) readSchema(ctx context.Context) (domain.Schema, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT name, type FROM pragma_table_info(?)", tableObservation)
	if err != nil {
		return domain.Schema{}, fmt.Errorf("reading observation schema: %w", err)
	}
	defer rows.Close()

	var fields []domain.Field
	for rows.Next() {
		var name, kind string
		if err := rows.Scan(&name, &kind); err != nil {
			return domain.Schema{}, fmt.Errorf("reading observation schema: %w", err)
		}
		if name == "timestamp" || name == "station_id" {
			continue
		}
		fields = append(fields, domain.Field{Name: name, Kind: domain.Kind(strings.ToUpper(kind))})
	}
	if err := rows.Err(); err != nil {
		return domain.Schema{}, fmt.Errorf("reading observation schema: %w", err)
	}
	schema, err := domain.NewSchema(fields...)
	if err != nil {
		return domain.Schema{}, fmt.Errorf("%w: cache %s has an unrecognized observation table: %w", domain.ErrStructural, c.path, err)
	}
	return schema, nil
}

// Schema returns the observation fields this cache stores.
func (c *Cache) Schema() domain.Schema { return c.schema }

// Path returns the cache file path.
func (c *Cache) Path() string { return c.path }

// Stats holds row counts.
type Stats struct {
	Stations     int
	Observations int
}

// Counts returns the number of station and observation rows.
func (c *Cache) Counts(ctx context.Context) (Stats, error) {
	var s Stats
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM station").Scan(&s.Stations); err != nil {
		return Stats{}, fmt.Errorf("counting stations: %w", err)
	}
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM observation").Scan(&s.Observations); err != nil {
		return Stats{}, fmt.Errorf("counting observations: %w", err)
	}
	return s, nil
}

// Units returns the stored variable units.
func (c *Cache) Units(ctx context.Context) (map[string]string, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT variable, units FROM units")
	if err != nil {
		return nil, fmt.Errorf("querying units: %w", err)
	}
	defer rows.Close()

	units := make(map[string]string)
	for rows.Next() {
		var variable string
		var unit sql.NullString
		if err := rows.Scan(&variable, &unit); err != nil {
			return nil, fmt.Errorf("scanning units: %w", err)
		}
		units[variable] = unit.String
	}
	return units, rows.Err()
}

// CheckReadiness pings the database.
func (c *Cache) CheckReadiness(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close releases the connection. The handle must not be used afterwards.
func (c *Cache) Close() error {
	return c.db.Close()
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
