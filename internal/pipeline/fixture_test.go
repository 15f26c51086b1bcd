package pipeline_test

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/couchcryptid/gust-correlation-etl/internal/adapter/csvio"
	"github.com/couchcryptid/gust-correlation-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/gust-correlation-etl/internal/domain"
	"github.com/couchcryptid/gust-correlation-etl/internal/gust"
	"github.com/couchcryptid/gust-correlation-etl/internal/observability"
	"github.com/couchcryptid/gust-correlation-etl/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// radiusAPI answers every radius query near Santa Rosa with one station
// reporting 20 mph every 10 minutes and 35 mph at 23:00Z, and has no stations
// anywhere else.
type radiusAPI struct {
	calls int
}

func (a *radiusAPI) StationMetadata(context.Context, string) (*domain.Dataset, error) {
	return &domain.Dataset{Summary: domain.Summary{ResponseCode: domain.ResponseCodeNoResults}}, nil
}

func (a *radiusAPI) TimeseriesByStation(context.Context, string, domain.Instant, domain.Instant) (*domain.Dataset, error) {
	return &domain.Dataset{Summary: domain.Summary{ResponseCode: domain.ResponseCodeNoResults}}, nil
}

func (a *radiusAPI) TimeseriesByRadius(_ context.Context, lat, _, _ float64, start, end domain.Instant) (*domain.Dataset, error) {
	a.calls++
	if lat != 38.5 {
		return &domain.Dataset{Summary: domain.Summary{ResponseCode: domain.ResponseCodeNoResults}}, nil
	}
	peak, _ := domain.ParseCompact("201910092300")
	series := domain.Series{Variables: map[string][]any{}}
	for at := start; !at.After(end); at = at.Add(10 * time.Minute) {
		g := 20.0
		if at.Equal(peak) {
			g = 35
		}
		series.DateTime = append(series.DateTime, at.String())
		series.Variables[domain.GustField] = append(series.Variables[domain.GustField], json.Number(strconv.FormatFloat(g, 'f', -1, 64)))
	}
	return &domain.Dataset{
		Summary: domain.Summary{NumberOfObjects: 1, ResponseCode: domain.ResponseCodeOK},
		Stations: []domain.StationSeries{{
			Station: domain.Station{ID: "KSTS", Name: "Santa Rosa", Latitude: 38.54, Longitude: -122.8},
			Series:  series,
		}},
	}, nil
}

func TestPipeline_IgnitionSpreadsheetFixture(t *testing.T) {
	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	dir := t.TempDir()

	cache, err := sqlite.Create(context.Background(), filepath.Join(dir, "weather.db"), domain.DefaultSchema(), sqlite.Options{StrictSchema: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	reader, err := csvio.Open(filepath.Join("testdata", "ignitions.csv"), csvio.ReaderOptions{
		IDColumn:   "ignition_id",
		LatColumn:  "latitude",
		LonColumn:  "longitude",
		DateColumn: "date",
		TimeColumn: "time",
		Location:   la,
	}, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = reader.Close() })

	w := testWindows(t)
	out := filepath.Join(dir, "gusts.csv")
	writer, err := csvio.Create(out, reader.Header(), w)
	require.NoError(t, err)

	api := &radiusAPI{}
	metrics := observability.NewMetricsForTesting()
	svc := gust.NewService(cache, api, domain.FirstInterval, metrics, discardLogger())
	p := pipeline.New(reader, pipeline.NewTransformer(svc, w, 0, discardLogger()), writer, discardLogger(), metrics, 2)

	require.NoError(t, p.Run(context.Background()))
	require.NoError(t, writer.Close())

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)

	header := rows[0]
	col := func(name string) int {
		for i, h := range header {
			if h == name {
				return i
			}
		}
		t.Fatalf("column %s not in output header", name)
		return -1
	}

	for _, row := range rows[1:3] {
		assert.Equal(t, "KSTS", row[col("t1h_g4mi_stid")], row[0])
		assert.Equal(t, "35", row[col("t1h_g4mi_max_gust")], row[0])
		assert.Equal(t, "2019-10-09T23:00:00Z", row[col("t2h_g8mi_time")], row[0])
		assert.Equal(t, "6", row[col("t1h_g8mi_count")], row[0])
		assert.Equal(t, "12", row[col("t2h_g8mi_count")], row[0])
	}
	assert.Equal(t, "IGN-003", rows[3][0])
	assert.Equal(t, "", rows[3][col("t2h_g8mi_stid")], "no stations in range")
	assert.Equal(t, "0", rows[3][col("t2h_g8mi_count")])
	assert.Equal(t, "unknown", rows[3][col("cause")])

	assert.Equal(t, 2, api.calls, "the second Santa Rosa event is served from the cache")
}
