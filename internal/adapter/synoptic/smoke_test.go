//go:build synoptic

package synoptic

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/couchcryptid/gust-correlation-etl/internal/domain"
	"github.com/couchcryptid/gust-correlation-etl/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests hit the real Synoptic API and require a valid SYNOPTIC_TOKEN env var.
// Run with: go test -tags=synoptic ./internal/adapter/synoptic/ -v -count=1

func smokeClient(t *testing.T) *Client {
	t.Helper()
	token := os.Getenv("SYNOPTIC_TOKEN")
	if token == "" {
		t.Fatal("SYNOPTIC_TOKEN must be set to run smoke tests")
	}
	return &Client{
		token:      token,
		units:      "english",
		httpClient: &http.Client{Timeout: 20 * time.Second},
		baseURL:    "https://api.synopticdata.com/v2",
		metrics:    observability.NewMetricsForTesting(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestSmoke_StationMetadata(t *testing.T) {
	c := smokeClient(t)

	d, err := c.StationMetadata(context.Background(), "KSTS")
	require.NoError(t, err)

	require.Len(t, d.Stations, 1)
	st := d.Stations[0].Station
	assert.InDelta(t, 38.5, st.Latitude, 0.1, "lat should be near Santa Rosa")
	assert.InDelta(t, -122.8, st.Longitude, 0.1, "lon should be near Santa Rosa")
}

func TestSmoke_TimeseriesByRadius(t *testing.T) {
	c := smokeClient(t)
	start, err := domain.ParseCompact("201910092200")
	require.NoError(t, err)

	d, err := c.TimeseriesByRadius(context.Background(), 38.5, -122.8, 5, start, start.Add(2*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, domain.ResponseCodeOK, d.Summary.ResponseCode)
	assert.NotEmpty(t, d.Stations)
}
