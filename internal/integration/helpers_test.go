//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/gust-correlation-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/gust-correlation-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const kafkaImage = "confluentinc/confluent-local:7.5.0"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker for the lifetime of the test.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, kafkaImage, tckafka.WithClusterID("gust-test"))
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "start kafka container")

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	cc, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer cc.Close()

	require.NoError(t, cc.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

func newCache(t *testing.T) *sqlite.Cache {
	t.Helper()
	cache, err := sqlite.Create(context.Background(), filepath.Join(t.TempDir(), "weather.db"), domain.DefaultSchema(), sqlite.Options{StrictSchema: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

// santaRosaAPI serves one station two miles north of (38.5, -122.8) with a
// 20 mph baseline every ten minutes and a 35 mph peak at 23:00Z.
type santaRosaAPI struct {
	mu    sync.Mutex
	calls int
}

func (a *santaRosaAPI) StationMetadata(context.Context, string) (*domain.Dataset, error) {
	return &domain.Dataset{Summary: domain.Summary{ResponseCode: domain.ResponseCodeNoResults}}, nil
}

func (a *santaRosaAPI) TimeseriesByStation(context.Context, string, domain.Instant, domain.Instant) (*domain.Dataset, error) {
	return &domain.Dataset{Summary: domain.Summary{ResponseCode: domain.ResponseCodeNoResults}}, nil
}

func (a *santaRosaAPI) TimeseriesByRadius(_ context.Context, _, _, _ float64, start, end domain.Instant) (*domain.Dataset, error) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()

	peak, _ := domain.ParseCompact("201910092300")
	series := domain.Series{Variables: map[string][]any{}}
	for at := start; !at.After(end); at = at.Add(10 * time.Minute) {
		g := "20"
		if at.Equal(peak) {
			g = "35"
		}
		series.DateTime = append(series.DateTime, at.String())
		series.Variables[domain.GustField] = append(series.Variables[domain.GustField], json.Number(g))
	}
	return &domain.Dataset{
		Summary: domain.Summary{NumberOfObjects: 1, ResponseCode: domain.ResponseCodeOK},
		Stations: []domain.StationSeries{{
			Station: domain.Station{ID: "KSTS", Name: "Santa Rosa", Latitude: 38.529, Longitude: -122.8},
			Series:  series,
		}},
	}, nil
}
