package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // EVENT_TIMEZONE must resolve in minimal containers

	"github.com/couchcryptid/gust-correlation-etl/internal/domain"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Source and sink kinds for EVENT_SOURCE and REPORT_SINK.
const (
	EndpointCSV   = "csv"
	EndpointKafka = "kafka"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	// Synoptic API configuration.
	SynopticAPIRoot string
	SynopticToken   string
	SynopticUnits   string
	SynopticTimeout time.Duration
	APICacheSize    int

	// Observation cache.
	CachePath            string
	CacheCreateIfMissing bool
	CacheStrictSchema    bool
	CompletenessMode     string

	// Aggregation windows.
	TimeWindows      []float64
	DistanceWindows  []float64
	TimeWindowOffset time.Duration

	// Event source and report sink.
	EventSource     string
	ReportSink      string
	InputCSV        string
	OutputCSV       string
	CSVIDColumn     string
	CSVLatColumn    string
	CSVLonColumn    string
	CSVTimeColumn   string
	CSVDateColumn   string
	EventTimeLayout string
	EventTimezone   *time.Location
}

// Load reads configuration from environment variables, applying defaults where unset.
// A .env file in the working directory is read first if present; variables already
// set in the environment win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	synopticTimeout, err := parsePositiveDuration("SYNOPTIC_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	offset, err := time.ParseDuration(sharedcfg.EnvOrDefault("TIME_WINDOW_OFFSET", "0s"))
	if err != nil {
		return nil, errors.New("invalid TIME_WINDOW_OFFSET")
	}

	timeWindows, err := parseFloatList("TIME_WINDOWS", "1,2")
	if err != nil {
		return nil, err
	}
	distanceWindows, err := parseFloatList("DISTANCE_WINDOWS", "4,8")
	if err != nil {
		return nil, err
	}

	createIfMissing, err := parseBool("CACHE_CREATE_IF_MISSING", false)
	if err != nil {
		return nil, err
	}
	strictSchema, err := parseBool("CACHE_STRICT_SCHEMA", false)
	if err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(sharedcfg.EnvOrDefault("EVENT_TIMEZONE", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("invalid EVENT_TIMEZONE: %w", err)
	}

	cfg := &Config{
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "fire-events"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "gust-reports"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "gust-correlation-etl"),
		HTTPAddr:           os.Getenv("HTTP_ADDR"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		SynopticAPIRoot: sharedcfg.EnvOrDefault("SYNOPTIC_API_ROOT", "https://api.synopticdata.com/v2"),
		SynopticToken:   os.Getenv("SYNOPTIC_TOKEN"),
		SynopticUnits:   sharedcfg.EnvOrDefault("SYNOPTIC_UNITS", "english"),
		SynopticTimeout: synopticTimeout,
		APICacheSize:    parseCacheSize(),

		CachePath:            sharedcfg.EnvOrDefault("CACHE_PATH", "weather.db"),
		CacheCreateIfMissing: createIfMissing,
		CacheStrictSchema:    strictSchema,
		CompletenessMode:     sharedcfg.EnvOrDefault("COMPLETENESS_MODE", "first-interval"),

		TimeWindows:      timeWindows,
		DistanceWindows:  distanceWindows,
		TimeWindowOffset: offset,

		EventSource:     strings.ToLower(sharedcfg.EnvOrDefault("EVENT_SOURCE", EndpointCSV)),
		ReportSink:      strings.ToLower(sharedcfg.EnvOrDefault("REPORT_SINK", EndpointCSV)),
		InputCSV:        os.Getenv("INPUT_CSV"),
		OutputCSV:       os.Getenv("OUTPUT_CSV"),
		CSVIDColumn:     os.Getenv("CSV_ID_COLUMN"),
		CSVLatColumn:    sharedcfg.EnvOrDefault("CSV_LAT_COLUMN", "latitude"),
		CSVLonColumn:    sharedcfg.EnvOrDefault("CSV_LON_COLUMN", "longitude"),
		CSVTimeColumn:   sharedcfg.EnvOrDefault("CSV_TIME_COLUMN", "time"),
		CSVDateColumn:   os.Getenv("CSV_DATE_COLUMN"),
		EventTimeLayout: os.Getenv("EVENT_TIME_LAYOUT"),
		EventTimezone:   loc,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.SynopticToken == "" {
		return errors.New("SYNOPTIC_TOKEN is required")
	}
	if c.CachePath == "" {
		return errors.New("CACHE_PATH is required")
	}
	if _, err := domain.ParseCompletenessMode(c.CompletenessMode); err != nil {
		return fmt.Errorf("invalid COMPLETENESS_MODE: %w", err)
	}

	usesKafka := false
	switch c.EventSource {
	case EndpointCSV:
		if c.InputCSV == "" {
			return errors.New("INPUT_CSV is required when EVENT_SOURCE is csv")
		}
	case EndpointKafka:
		usesKafka = true
		if c.KafkaSourceTopic == "" {
			return errors.New("KAFKA_SOURCE_TOPIC is required")
		}
	default:
		return fmt.Errorf("invalid EVENT_SOURCE %q", c.EventSource)
	}
	switch c.ReportSink {
	case EndpointCSV:
		if c.OutputCSV == "" {
			return errors.New("OUTPUT_CSV is required when REPORT_SINK is csv")
		}
	case EndpointKafka:
		usesKafka = true
		if c.KafkaSinkTopic == "" {
			return errors.New("KAFKA_SINK_TOPIC is required")
		}
	default:
		return fmt.Errorf("invalid REPORT_SINK %q", c.ReportSink)
	}
	if usesKafka && len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS is required")
	}
	return nil
}

func parseCacheSize() int {
	if s := os.Getenv("API_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			return n
		}
	}
	return 1000
}

func parsePositiveDuration(name, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(name, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return d, nil
}

func parseBool(name string, def bool) (bool, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s", name)
	}
	return v, nil
}

// parseFloatList reads a comma-separated list such as "1,2,4". Ordering and
// positivity are checked by domain.NewWindows.
func parseFloatList(name, def string) ([]float64, error) {
	raw := sharedcfg.EnvOrDefault(name, def)
	var out []float64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %q is not a number", name, part)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s is empty", name)
	}
	return out, nil
}
