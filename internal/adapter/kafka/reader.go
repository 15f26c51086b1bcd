package kafka

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/gust-correlation-etl/internal/config"
	"github.com/couchcryptid/gust-correlation-etl/internal/domain"
	"github.com/couchcryptid/gust-correlation-etl/internal/observability"
	kafkago "github.com/segmentio/kafka-go"
)

// Reader consumes event messages from a Kafka topic as a consumer group member.
// It implements pipeline.BatchExtractor.
type Reader struct {
	reader        *kafkago.Reader
	flushInterval time.Duration
	metrics       *observability.Metrics
	logger        *slog.Logger
}

// NewReader creates a Kafka consumer for the configured source topic.
func NewReader(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    cfg.KafkaSourceTopic,
		GroupID:  cfg.KafkaGroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Reader{
		reader:        r,
		flushInterval: cfg.BatchFlushInterval,
		metrics:       metrics,
		logger:        logger,
	}
}

// ExtractBatch blocks for the first message, then collects up to batchSize
// messages or whatever arrives within the flush interval. Malformed messages
// are logged, counted and skipped; their offsets are committed together with
// the next good event so a skip never commits past unprocessed work.
func (r *Reader) ExtractBatch(ctx context.Context, batchSize int) ([]domain.Event, error) {
	first, err := r.reader.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}
	msgs := []kafkago.Message{first}

	flushCtx, cancel := context.WithTimeout(ctx, r.flushInterval)
	defer cancel()
	for len(msgs) < batchSize {
		msg, err := r.reader.FetchMessage(flushCtx)
		if err != nil {
			break
		}
		msgs = append(msgs, msg)
	}

	events, orphans := r.mapBatch(msgs)
	if len(orphans) > 0 {
		if err := r.reader.CommitMessages(ctx, orphans...); err != nil {
			r.logger.Warn("commit skipped messages failed", "error", err, "count", len(orphans))
		}
	}
	return events, nil
}

// mapBatch converts messages to events. Each event commits itself and any
// skipped messages before it; skips after the last good event are attached to
// it. orphans is non-empty only when no message in the batch was usable.
func (r *Reader) mapBatch(msgs []kafkago.Message) (events []domain.Event, orphans []kafkago.Message) {
	var commits [][]kafkago.Message
	var pending []kafkago.Message
	for _, msg := range msgs {
		ev, err := mapMessageToEvent(msg)
		if err != nil {
			r.metrics.EventsSkipped.Inc()
			r.logger.Warn("skipping malformed event message",
				"error", err,
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
			)
			pending = append(pending, msg)
			continue
		}
		events = append(events, ev)
		commits = append(commits, append(pending, msg))
		pending = nil
	}
	if len(events) == 0 {
		return nil, pending
	}
	last := len(commits) - 1
	commits[last] = append(commits[last], pending...)

	for i := range events {
		toCommit := commits[i]
		events[i].Commit = func(ctx context.Context) error {
			return r.reader.CommitMessages(ctx, toCommit...)
		}
	}
	return events, nil
}

func (r *Reader) Close() error {
	return r.reader.Close()
}

// mapMessageToEvent decodes a message value and records its source position.
func mapMessageToEvent(msg kafkago.Message) (domain.Event, error) {
	ev, err := domain.ParseEventJSON(msg.Value)
	if err != nil {
		return domain.Event{}, err
	}
	ev.Topic = msg.Topic
	ev.Partition = msg.Partition
	ev.Offset = msg.Offset
	return ev, nil
}
