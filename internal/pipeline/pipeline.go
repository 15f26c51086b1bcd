package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/gust-correlation-etl/internal/domain"
	"github.com/couchcryptid/gust-correlation-etl/internal/observability"
)

// BatchExtractor reads up to batchSize events from the source. A finite source
// returns io.EOF once exhausted, possibly together with a final partial batch.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.Event, error)
}

// Transformer computes the gust report for one event.
type Transformer interface {
	Transform(ctx context.Context, ev domain.Event) (domain.GustReport, error)
}

// BatchLoader writes multiple gust reports to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, reports []domain.GustReport) error
}

// Pipeline orchestrates the extract-transform-load loop.
type Pipeline struct {
	extractor   BatchExtractor
	transformer Transformer
	loader      BatchLoader
	logger      *slog.Logger
	metrics     *observability.Metrics
	ready       atomic.Bool
	batchSize   int
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, t Transformer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		batchSize:   batchSize,
	}
}

// CheckReadiness returns nil once the pipeline has loaded at least one batch,
// or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not loaded any reports yet")
	}
	return nil
}

// Run executes the batch loop until the source is exhausted or the context is
// cancelled, both of which return nil. When an event fails to aggregate, the
// reports already computed for its batch are loaded first and then the error
// is returned; the run does not continue past it.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	// Exponential backoff for source outages: start at 200ms, double, cap at 5s.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		done, err := p.processBatch(ctx, &backoff, maxBackoff)
		if err != nil {
			return err
		}
		if done {
			p.logger.Info("pipeline finished")
			return nil
		}
	}
}

// processBatch runs one extract-transform-load cycle. done is true when the
// source is exhausted or the context is cancelled.
func (p *Pipeline) processBatch(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) (done bool, err error) {
	start := time.Now()

	batch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	exhausted := errors.Is(err, io.EOF)
	if err != nil && !exhausted {
		if ctx.Err() != nil {
			return true, nil
		}
		if isPermanent(err) {
			// Rows read before the bad one are still correlated and loaded.
			extractErr := fmt.Errorf("extract batch: %w", err)
			if len(batch) > 0 {
				p.metrics.EventsConsumed.Add(float64(len(batch)))
				if loadErr := p.transformAndLoad(ctx, batch); loadErr != nil {
					return true, errors.Join(loadErr, extractErr)
				}
			}
			return true, extractErr
		}
		p.logger.Error("extract batch failed", "error", err)
		return !p.backoffOrStop(ctx, backoff, maxBackoff), nil
	}

	if len(batch) == 0 {
		return exhausted || ctx.Err() != nil, nil
	}

	p.metrics.EventsConsumed.Add(float64(len(batch)))
	p.metrics.BatchSize.Observe(float64(len(batch)))
	*backoff = 200 * time.Millisecond

	if err := p.transformAndLoad(ctx, batch); err != nil {
		return true, err
	}
	p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
	p.ready.Store(true)
	return exhausted, nil
}

// transformAndLoad aggregates each event in order. On the first failure the
// reports computed so far are loaded and committed, then the failure is
// returned.
func (p *Pipeline) transformAndLoad(ctx context.Context, batch []domain.Event) error {
	reports := make([]domain.GustReport, 0, len(batch))

	var failure error
	for _, ev := range batch {
		report, err := p.transformer.Transform(ctx, ev)
		if err != nil {
			p.metrics.AggregationErrors.Inc()
			p.logger.Error("aggregation failed",
				"error", err,
				"event_id", ev.ID,
				"line", ev.Line,
				"topic", ev.Topic,
				"partition", ev.Partition,
				"offset", ev.Offset,
			)
			failure = fmt.Errorf("event %s: %w", ev.ID, err)
			break
		}
		reports = append(reports, report)
	}

	if len(reports) > 0 {
		if err := p.loader.LoadBatch(ctx, reports); err != nil {
			p.logger.Error("load batch failed", "error", err, "batch_size", len(reports))
			return errors.Join(failure, fmt.Errorf("load batch: %w", err))
		}
		p.metrics.ReportsProduced.Add(float64(len(reports)))
		for _, r := range reports {
			p.commitOffset(ctx, r.Event)
		}
	}
	return failure
}

// isPermanent reports whether a source error will recur on retry.
func isPermanent(err error) bool {
	return errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrStructural) ||
		errors.Is(err, domain.ErrPrecondition)
}

// backoffOrStop checks for context cancellation, sleeps with the current backoff,
// and advances the backoff. Returns false if the pipeline should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !sleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = nextBackoff(*backoff, maxBackoff)
	return true
}

// commitOffset commits the source position if a commit function is available.
func (p *Pipeline) commitOffset(ctx context.Context, ev domain.Event) {
	if ev.Commit == nil {
		return
	}
	if err := ev.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", ev.Topic, "partition", ev.Partition, "offset", ev.Offset)
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
