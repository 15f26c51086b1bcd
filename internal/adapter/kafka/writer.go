package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/gust-correlation-etl/internal/config"
	"github.com/couchcryptid/gust-correlation-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer produces gust reports to a Kafka topic.
// It implements pipeline.BatchLoader.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// LoadBatch serializes and publishes the reports in a single WriteMessages
// call. Reports are keyed by event ID, so a replayed event lands on the same
// partition as its first report.
func (w *Writer) LoadBatch(ctx context.Context, reports []domain.GustReport) error {
	if len(reports) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(reports))
	for i := range reports {
		msg, err := serializeToMessage(reports[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d reports: %w", len(msgs), err)
	}
	w.logger.Debug("reports published", "topic", w.writer.Topic, "count", len(msgs),
		"first_event", reports[0].Event.ID, "last_event", reports[len(reports)-1].Event.ID)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// Report header keys. Consumers can route or filter on the correlation
// parameters and the headline gust without decoding the value.
const (
	headerEventID         = "event_id"
	headerReferenceTime   = "reference_time"
	headerTimeWindows     = "time_windows"
	headerDistanceWindows = "distance_windows"
	headerPeakGust        = "peak_gust"
	headerPeakStation     = "peak_station"
	headerProcessedAt     = "processed_at"
)

// serializeToMessage marshals a GustReport into a Kafka message.
func serializeToMessage(report domain.GustReport) (kafkago.Message, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize gust report %s: %w", report.Event.ID, err)
	}
	return kafkago.Message{
		Key:     []byte(report.Event.ID),
		Value:   data,
		Headers: reportHeaders(report),
	}, nil
}

// reportHeaders describes the report envelope. The peak headers come from the
// widest cell, which bounds every other cell, and are omitted when no station
// reported a gust.
func reportHeaders(report domain.GustReport) []kafkago.Header {
	h := []kafkago.Header{
		{Key: headerEventID, Value: []byte(report.Event.ID)},
		{Key: headerReferenceTime, Value: []byte(report.Reference.String())},
		{Key: headerTimeWindows, Value: []byte(joinFloats(report.Windows.Hours()))},
		{Key: headerDistanceWindows, Value: []byte(joinFloats(report.Windows.Miles()))},
	}
	if peak, ok := widestCell(report.Table); ok && peak.Count > 0 {
		h = append(h,
			kafkago.Header{Key: headerPeakGust, Value: []byte(strconv.FormatFloat(peak.MaxGust, 'f', -1, 64))},
			kafkago.Header{Key: headerPeakStation, Value: []byte(peak.StationID)},
		)
	}
	return append(h, kafkago.Header{Key: headerProcessedAt, Value: []byte(report.ProcessedAt.Format(time.RFC3339))})
}

func widestCell(t domain.GustTable) (domain.Cell, bool) {
	if len(t) == 0 || len(t[len(t)-1]) == 0 {
		return domain.Cell{}, false
	}
	last := t[len(t)-1]
	return last[len(last)-1], true
}

func joinFloats(vals []float64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, ",")
}
