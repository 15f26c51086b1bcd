package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	defaultBroker = "localhost:9092"
	testToken     = "test-token"
)

// setRequired sets the variables Load refuses to run without.
func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("SYNOPTIC_TOKEN", testToken)
	t.Setenv("INPUT_CSV", "events.csv")
	t.Setenv("OUTPUT_CSV", "gusts.csv")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{defaultBroker}, cfg.KafkaBrokers)
	assert.Equal(t, "fire-events", cfg.KafkaSourceTopic)
	assert.Equal(t, "gust-reports", cfg.KafkaSinkTopic)
	assert.Equal(t, "gust-correlation-etl", cfg.KafkaGroupID)
	assert.Empty(t, cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.BatchFlushInterval)

	assert.Equal(t, "https://api.synopticdata.com/v2", cfg.SynopticAPIRoot)
	assert.Equal(t, testToken, cfg.SynopticToken)
	assert.Equal(t, "english", cfg.SynopticUnits)
	assert.Equal(t, 10*time.Second, cfg.SynopticTimeout)
	assert.Equal(t, 1000, cfg.APICacheSize)

	assert.Equal(t, "weather.db", cfg.CachePath)
	assert.False(t, cfg.CacheCreateIfMissing)
	assert.False(t, cfg.CacheStrictSchema)
	assert.Equal(t, "first-interval", cfg.CompletenessMode)

	assert.Equal(t, []float64{1, 2}, cfg.TimeWindows)
	assert.Equal(t, []float64{4, 8}, cfg.DistanceWindows)
	assert.Zero(t, cfg.TimeWindowOffset)

	assert.Equal(t, EndpointCSV, cfg.EventSource)
	assert.Equal(t, EndpointCSV, cfg.ReportSink)
	assert.Equal(t, "latitude", cfg.CSVLatColumn)
	assert.Equal(t, "longitude", cfg.CSVLonColumn)
	assert.Equal(t, "time", cfg.CSVTimeColumn)
	assert.Empty(t, cfg.CSVIDColumn)
	assert.Equal(t, time.UTC, cfg.EventTimezone)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("SYNOPTIC_TOKEN", testToken)
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_SOURCE_TOPIC", "custom-source")
	t.Setenv("KAFKA_SINK_TOPIC", "custom-sink")
	t.Setenv("KAFKA_GROUP_ID", "custom-group")
	t.Setenv("EVENT_SOURCE", "KAFKA")
	t.Setenv("REPORT_SINK", "kafka")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("BATCH_SIZE", "100")
	t.Setenv("BATCH_FLUSH_INTERVAL", "1s")
	t.Setenv("SYNOPTIC_TIMEOUT", "3s")
	t.Setenv("SYNOPTIC_UNITS", "metric")
	t.Setenv("API_CACHE_SIZE", "0")
	t.Setenv("CACHE_PATH", "/tmp/weather.db")
	t.Setenv("CACHE_CREATE_IF_MISSING", "true")
	t.Setenv("CACHE_STRICT_SCHEMA", "true")
	t.Setenv("COMPLETENESS_MODE", "gap-scan")
	t.Setenv("TIME_WINDOWS", "0.5, 1, 3")
	t.Setenv("DISTANCE_WINDOWS", "2,5")
	t.Setenv("TIME_WINDOW_OFFSET", "-30m")
	t.Setenv("EVENT_TIMEZONE", "America/Los_Angeles")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "custom-source", cfg.KafkaSourceTopic)
	assert.Equal(t, "custom-sink", cfg.KafkaSinkTopic)
	assert.Equal(t, "custom-group", cfg.KafkaGroupID)
	assert.Equal(t, EndpointKafka, cfg.EventSource)
	assert.Equal(t, EndpointKafka, cfg.ReportSink)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 1*time.Second, cfg.BatchFlushInterval)
	assert.Equal(t, 3*time.Second, cfg.SynopticTimeout)
	assert.Equal(t, "metric", cfg.SynopticUnits)
	assert.Equal(t, 0, cfg.APICacheSize)
	assert.Equal(t, "/tmp/weather.db", cfg.CachePath)
	assert.True(t, cfg.CacheCreateIfMissing)
	assert.True(t, cfg.CacheStrictSchema)
	assert.Equal(t, "gap-scan", cfg.CompletenessMode)
	assert.Equal(t, []float64{0.5, 1, 3}, cfg.TimeWindows)
	assert.Equal(t, []float64{2, 5}, cfg.DistanceWindows)
	assert.Equal(t, -30*time.Minute, cfg.TimeWindowOffset)
	assert.Equal(t, "America/Los_Angeles", cfg.EventTimezone.String())
}

func TestLoad_MissingToken(t *testing.T) {
	t.Setenv("INPUT_CSV", "events.csv")
	t.Setenv("OUTPUT_CSV", "gusts.csv")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SYNOPTIC_TOKEN")
}

func TestLoad_CSVSourceNeedsInput(t *testing.T) {
	t.Setenv("SYNOPTIC_TOKEN", testToken)
	t.Setenv("OUTPUT_CSV", "gusts.csv")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INPUT_CSV")
}

func TestLoad_CSVSinkNeedsOutput(t *testing.T) {
	t.Setenv("SYNOPTIC_TOKEN", testToken)
	t.Setenv("INPUT_CSV", "events.csv")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OUTPUT_CSV")
}

func TestLoad_InvalidSource(t *testing.T) {
	setRequired(t)
	t.Setenv("EVENT_SOURCE", "xlsx")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EVENT_SOURCE")
}

func TestLoad_InvalidShutdownTimeout(t *testing.T) {
	setRequired(t)
	t.Setenv("SHUTDOWN_TIMEOUT", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_InvalidBatchSize(t *testing.T) {
	setRequired(t)
	t.Setenv("BATCH_SIZE", "0")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BATCH_SIZE")
}

func TestLoad_InvalidBatchFlushInterval(t *testing.T) {
	setRequired(t)
	t.Setenv("BATCH_FLUSH_INTERVAL", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BATCH_FLUSH_INTERVAL")
}

func TestLoad_InvalidSynopticTimeout(t *testing.T) {
	setRequired(t)
	t.Setenv("SYNOPTIC_TIMEOUT", "-1s")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SYNOPTIC_TIMEOUT")
}

func TestLoad_InvalidWindows(t *testing.T) {
	setRequired(t)
	t.Setenv("TIME_WINDOWS", "1,two")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TIME_WINDOWS")
}

func TestLoad_EmptyWindows(t *testing.T) {
	setRequired(t)
	t.Setenv("DISTANCE_WINDOWS", " , ")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DISTANCE_WINDOWS")
}

func TestLoad_InvalidCompletenessMode(t *testing.T) {
	setRequired(t)
	t.Setenv("COMPLETENESS_MODE", "always")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COMPLETENESS_MODE")
}

func TestLoad_InvalidBool(t *testing.T) {
	setRequired(t)
	t.Setenv("CACHE_STRICT_SCHEMA", "maybe")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CACHE_STRICT_SCHEMA")
}

func TestLoad_InvalidTimezone(t *testing.T) {
	setRequired(t)
	t.Setenv("EVENT_TIMEZONE", "Mars/Olympus_Mons")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EVENT_TIMEZONE")
}
