package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/gust-correlation-etl/internal/domain"
)

// Aggregator computes the gust table around a location and reference instant.
type Aggregator interface {
	MaxGust(ctx context.Context, lat, lon float64, ref domain.Instant, w domain.Windows) (domain.GustTable, error)
}

// GustTransformer implements Transformer on top of an Aggregator.
type GustTransformer struct {
	aggregator Aggregator
	windows    domain.Windows
	offset     time.Duration
	logger     *slog.Logger
}

// NewTransformer creates a GustTransformer. offset shifts each event time to
// the reference instant the windows are centred on.
func NewTransformer(aggregator Aggregator, windows domain.Windows, offset time.Duration, logger *slog.Logger) *GustTransformer {
	return &GustTransformer{
		aggregator: aggregator,
		windows:    windows,
		offset:     offset,
		logger:     logger,
	}
}

func (t *GustTransformer) Transform(ctx context.Context, ev domain.Event) (domain.GustReport, error) {
	if err := ev.Validate(); err != nil {
		return domain.GustReport{}, err
	}
	ref := ev.Time.Add(t.offset)

	table, err := t.aggregator.MaxGust(ctx, ev.Latitude, ev.Longitude, ref, t.windows)
	if err != nil {
		return domain.GustReport{}, err
	}

	attrs := []any{"event_id", ev.ID, "reference", ref.String()}
	if n := len(table); n > 0 && len(table[n-1]) > 0 {
		widest := table[n-1][len(table[n-1])-1]
		attrs = append(attrs, "max_gust", widest.MaxGust, "station", widest.StationID)
	}
	t.logger.Debug("event correlated", attrs...)
	return domain.NewGustReport(ev, ref, t.windows, table), nil
}
