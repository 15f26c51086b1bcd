// Package csvio reads events from and writes gust reports to CSV exports of
// the event spreadsheets.
package csvio

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/gust-correlation-etl/internal/config"
	"github.com/couchcryptid/gust-correlation-etl/internal/domain"
)

// ReaderOptions name the event columns and how the time cells are encoded.
type ReaderOptions struct {
	// IDColumn is optional; events without one get a derived ID.
	IDColumn  string
	LatColumn string
	LonColumn string
	// TimeColumn holds the event time, or only the clock part when DateColumn is set.
	TimeColumn string
	DateColumn string
	// TimeLayout is a Go time layout, LayoutSerial, or empty to accept
	// ISO-8601, compact and serial values.
	TimeLayout string
	Location   *time.Location
}

// OptionsFromConfig maps the CSV settings in cfg.
func OptionsFromConfig(cfg *config.Config) ReaderOptions {
	return ReaderOptions{
		IDColumn:   cfg.CSVIDColumn,
		LatColumn:  cfg.CSVLatColumn,
		LonColumn:  cfg.CSVLonColumn,
		TimeColumn: cfg.CSVTimeColumn,
		DateColumn: cfg.CSVDateColumn,
		TimeLayout: cfg.EventTimeLayout,
		Location:   cfg.EventTimezone,
	}
}

// Reader yields one event per CSV data row. It implements pipeline.BatchExtractor.
type Reader struct {
	csv    *csv.Reader
	closer io.Closer
	header []string
	idCol  int
	latCol int
	lonCol int
	timCol int
	datCol int
	times  timeParser
	logger *slog.Logger
}

// Open opens an events CSV file and reads its header row.
func Open(path string, opts ReaderOptions, logger *slog.Logger) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open events: %w", err)
	}
	r, err := NewReader(f, opts, logger)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// NewReader reads the header row from src and resolves the configured columns.
func NewReader(src io.Reader, opts ReaderOptions, logger *slog.Logger) (*Reader, error) {
	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, domain.Validationf("events file has no header row")
		}
		return nil, fmt.Errorf("%w: read header: %w", domain.ErrStructural, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	r := &Reader{
		csv:    cr,
		header: header,
		times:  timeParser{layout: opts.TimeLayout, loc: loc},
		logger: logger,
	}

	cols := []struct {
		name     string
		required bool
		dst      *int
	}{
		{opts.IDColumn, false, &r.idCol},
		{opts.LatColumn, true, &r.latCol},
		{opts.LonColumn, true, &r.lonCol},
		{opts.TimeColumn, true, &r.timCol},
		{opts.DateColumn, false, &r.datCol},
	}
	for _, c := range cols {
		*c.dst = -1
		if c.name == "" {
			if c.required {
				return nil, domain.Validationf("event column name is required")
			}
			continue
		}
		idx := columnIndex(header, c.name)
		if idx < 0 {
			return nil, domain.Validationf("column %q not found in header", c.name)
		}
		*c.dst = idx
	}
	return r, nil
}

// Header returns the source header row.
func (r *Reader) Header() []string {
	return append([]string(nil), r.header...)
}

// ExtractBatch reads up to batchSize events. It returns io.EOF, alongside
// the final events if any, once the file is exhausted. Rows whose cells are
// all blank are skipped.
func (r *Reader) ExtractBatch(ctx context.Context, batchSize int) ([]domain.Event, error) {
	events := make([]domain.Event, 0, batchSize)
	for len(events) < batchSize {
		if err := ctx.Err(); err != nil {
			return events, err
		}
		record, err := r.csv.Read()
		if errors.Is(err, io.EOF) {
			return events, io.EOF
		}
		if err != nil {
			return events, fmt.Errorf("%w: %w", domain.ErrStructural, err)
		}
		line, _ := r.csv.FieldPos(0)
		if blank(record) {
			r.logger.Debug("skipping blank row", "line", line)
			continue
		}
		ev, err := r.parseRow(record)
		if err != nil {
			return events, fmt.Errorf("line %d: %w", line, err)
		}
		ev.Line = line
		events = append(events, ev)
	}
	return events, nil
}

func (r *Reader) parseRow(record []string) (domain.Event, error) {
	lat, err := r.float(record, r.latCol)
	if err != nil {
		return domain.Event{}, err
	}
	lon, err := r.float(record, r.lonCol)
	if err != nil {
		return domain.Event{}, err
	}

	var at domain.Instant
	if r.datCol >= 0 {
		at, err = r.times.parse(cell(record, r.datCol), cell(record, r.timCol))
	} else {
		at, err = r.times.parse(cell(record, r.timCol), "")
	}
	if err != nil {
		return domain.Event{}, err
	}

	ev := domain.Event{
		Latitude:  lat,
		Longitude: lon,
		Time:      at,
		Row:       record,
	}
	if r.idCol >= 0 {
		ev.ID = strings.TrimSpace(cell(record, r.idCol))
	}
	if ev.ID == "" {
		ev.ID = domain.GenerateEventID(lat, lon, at)
	}
	return ev, ev.Validate()
}

func (r *Reader) float(record []string, col int) (float64, error) {
	s := strings.TrimSpace(cell(record, col))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, domain.Validationf("column %q: %q is not a number", r.header[col], s)
	}
	return v, nil
}

// Close releases the underlying file, if the reader owns one.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

func columnIndex(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), strings.TrimSpace(name)) {
			return i
		}
	}
	return -1
}

func cell(record []string, col int) string {
	if col < 0 || col >= len(record) {
		return ""
	}
	return record[col]
}

func blank(record []string) bool {
	for _, c := range record {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
