package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/gust-correlation-etl/internal/adapter/csvio"
	"github.com/couchcryptid/gust-correlation-etl/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/gust-correlation-etl/internal/adapter/kafka"
	"github.com/couchcryptid/gust-correlation-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/gust-correlation-etl/internal/adapter/synoptic"
	"github.com/couchcryptid/gust-correlation-etl/internal/config"
	"github.com/couchcryptid/gust-correlation-etl/internal/domain"
	"github.com/couchcryptid/gust-correlation-etl/internal/gust"
	"github.com/couchcryptid/gust-correlation-etl/internal/observability"
	"github.com/couchcryptid/gust-correlation-etl/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	if err := run(cfg, logger); err != nil {
		logger.Error("correlation run failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cache, err := openCache(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeWith(logger, "cache", cache)

	mode, err := domain.ParseCompletenessMode(cfg.CompletenessMode)
	if err != nil {
		return err
	}
	windows, err := domain.NewWindows(cfg.TimeWindows, cfg.DistanceWindows)
	if err != nil {
		return err
	}

	api := synoptic.NewCachedClient(
		synoptic.NewClient(cfg, metrics, logger).WithVariables(cache.Schema().Variables()),
		cfg.APICacheSize, metrics)
	svc := gust.NewService(cache, api, mode, metrics, logger)

	source, header, err := openSource(cfg, metrics, logger)
	if err != nil {
		return err
	}
	defer closeWith(logger, "event source", source)

	sink, err := openSink(cfg, header, windows, logger)
	if err != nil {
		return err
	}
	defer closeWith(logger, "report sink", sink)

	transformer := pipeline.NewTransformer(svc, windows, cfg.TimeWindowOffset, logger)
	p := pipeline.New(source, transformer, sink, logger, metrics, cfg.BatchSize)

	logger.Info("correlation run starting",
		"source", cfg.EventSource,
		"sink", cfg.ReportSink,
		"cache", cache.Path(),
		"completeness", mode,
		"time_windows", cfg.TimeWindows,
		"distance_windows", cfg.DistanceWindows,
	)

	var srv *httpadapter.Server
	if cfg.HTTPAddr != "" {
		srv = httpadapter.NewServer(cfg.HTTPAddr, logger, p, cache)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
	}

	runErr := p.Run(ctx)
	logger.Info("shutting down")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
	}
	if runErr != nil {
		return runErr
	}

	logger.Info("shutdown complete")
	return nil
}

func openCache(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sqlite.Cache, error) {
	opts := sqlite.Options{StrictSchema: cfg.CacheStrictSchema, Logger: logger}
	cache, err := sqlite.Open(ctx, cfg.CachePath, opts)
	if errors.Is(err, domain.ErrNotExist) && cfg.CacheCreateIfMissing {
		if _, statErr := os.Stat(cfg.CachePath); errors.Is(statErr, os.ErrNotExist) {
			return sqlite.Create(ctx, cfg.CachePath, domain.DefaultSchema(), opts)
		}
	}
	return cache, err
}

type eventSource interface {
	pipeline.BatchExtractor
	io.Closer
}

type reportSink interface {
	pipeline.BatchLoader
	io.Closer
}

// openSource returns the event source and the header of the columns its
// events carry in Row.
func openSource(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) (eventSource, []string, error) {
	switch cfg.EventSource {
	case config.EndpointKafka:
		return kafkaadapter.NewReader(cfg, metrics, logger), domain.EventMessageHeader, nil
	case config.EndpointCSV:
		r, err := csvio.Open(cfg.InputCSV, csvio.OptionsFromConfig(cfg), logger)
		if err != nil {
			return nil, nil, err
		}
		return r, r.Header(), nil
	}
	return nil, nil, fmt.Errorf("unsupported event source %q", cfg.EventSource)
}

func openSink(cfg *config.Config, header []string, w domain.Windows, logger *slog.Logger) (reportSink, error) {
	switch cfg.ReportSink {
	case config.EndpointKafka:
		return kafkaadapter.NewWriter(cfg, logger), nil
	case config.EndpointCSV:
		return csvio.Create(cfg.OutputCSV, header, w)
	}
	return nil, fmt.Errorf("unsupported report sink %q", cfg.ReportSink)
}

func closeWith(logger *slog.Logger, name string, c io.Closer) {
	if err := c.Close(); err != nil {
		logger.Error(name+" close error", "error", err)
	}
}
