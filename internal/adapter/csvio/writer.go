package csvio

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/couchcryptid/gust-correlation-etl/internal/domain"
)

// Writer appends one output row per report: the event's source columns
// followed by the flattened gust table. It implements pipeline.BatchLoader.
type Writer struct {
	csv    *csv.Writer
	closer io.Closer
	width  int
}

// Create creates (or truncates) the output file and writes the header row.
func Create(path string, sourceHeader []string, w domain.Windows) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}
	wr, err := NewWriter(f, sourceHeader, w)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	wr.closer = f
	return wr, nil
}

// NewWriter writes the header row to dst: the source header, then one column
// per result field of every cell.
func NewWriter(dst io.Writer, sourceHeader []string, w domain.Windows) (*Writer, error) {
	wr := &Writer{csv: csv.NewWriter(dst), width: len(sourceHeader)}
	header := append(append([]string(nil), sourceHeader...), w.FlattenHeader()...)
	if err := wr.csv.Write(header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	wr.csv.Flush()
	if err := wr.csv.Error(); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	return wr, nil
}

// LoadBatch writes the reports and flushes, so every loaded report is on
// disk before the pipeline moves on.
func (w *Writer) LoadBatch(_ context.Context, reports []domain.GustReport) error {
	for _, r := range reports {
		// Ragged source rows are padded or cut to the header width.
		row := make([]string, w.width)
		copy(row, r.Event.Row)
		row = append(row, r.Table.Flatten()...)
		if err := w.csv.Write(row); err != nil {
			return fmt.Errorf("write report for %s: %w", r.Event.ID, err)
		}
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return fmt.Errorf("flush reports: %w", err)
	}
	return nil
}

// Close flushes and releases the underlying file, if the writer owns one.
func (w *Writer) Close() error {
	w.csv.Flush()
	err := w.csv.Error()
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
