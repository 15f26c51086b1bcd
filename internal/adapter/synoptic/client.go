// Package synoptic is a client for the Synoptic Data weather API
// (station metadata and observation time series).
package synoptic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/gust-correlation-etl/internal/config"
	"github.com/couchcryptid/gust-correlation-etl/internal/domain"
	"github.com/couchcryptid/gust-correlation-etl/internal/observability"
)

const (
	endpointMetadata   = "metadata"
	endpointTimeseries = "timeseries"

	// maxErrorBody bounds how much of a failed response is kept in the error.
	maxErrorBody = 512
)

// Client implements domain.WeatherAPI against the Synoptic REST API.
type Client struct {
	token      string
	units      string
	vars       string
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Synoptic client from the API root, token, units and
// timeout in cfg.
func NewClient(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		token: cfg.SynopticToken,
		units: cfg.SynopticUnits,
		httpClient: &http.Client{
			Timeout: cfg.SynopticTimeout,
		},
		baseURL: strings.TrimRight(cfg.SynopticAPIRoot, "/"),
		metrics: metrics,
		logger:  logger,
	}
}

// WithVariables limits timeseries requests to the named Synoptic variables.
// An empty list requests every variable a station reports.
func (c *Client) WithVariables(vars []string) *Client {
	c.vars = strings.Join(vars, ",")
	return c
}

// StationMetadata looks up one station, including its sensor variables.
func (c *Client) StationMetadata(ctx context.Context, stationID string) (*domain.Dataset, error) {
	params := url.Values{
		"token":      {c.token},
		"stid":       {stationID},
		"sensorvars": {"1"},
	}
	return c.doRequest(ctx, "stations/metadata", endpointMetadata, params)
}

// TimeseriesByStation fetches one station's observations in [start, end].
func (c *Client) TimeseriesByStation(ctx context.Context, stationID string, start, end domain.Instant) (*domain.Dataset, error) {
	params := c.timeseriesParams(start, end)
	params.Set("stid", stationID)
	return c.doRequest(ctx, "stations/timeseries", endpointTimeseries, params)
}

// TimeseriesByRadius fetches observations from every station within miles of
// (lat, lon) in [start, end].
func (c *Client) TimeseriesByRadius(ctx context.Context, lat, lon, miles float64, start, end domain.Instant) (*domain.Dataset, error) {
	params := c.timeseriesParams(start, end)
	params.Set("radius", RadiusParam(lat, lon, miles))
	return c.doRequest(ctx, "stations/timeseries", endpointTimeseries, params)
}

// RadiusParam renders the "lat,lon,miles" radius argument.
func RadiusParam(lat, lon, miles float64) string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return f(lat) + "," + f(lon) + "," + f(miles)
}

func (c *Client) timeseriesParams(start, end domain.Instant) url.Values {
	params := url.Values{
		"token": {c.token},
		"start": {start.Compact()},
		"end":   {end.Compact()},
	}
	if c.units != "" {
		params.Set("units", c.units)
	}
	if c.vars != "" {
		params.Set("vars", c.vars)
	}
	return params
}

func (c *Client) doRequest(ctx context.Context, path, endpoint string, params url.Values) (*domain.Dataset, error) {
	fullURL := c.baseURL + "/" + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.APIDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.APIRequests.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("synoptic %s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.APIRequests.WithLabelValues(endpoint, "error").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &domain.APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	d, err := DecodeResponse(resp.Body)
	if err != nil {
		c.metrics.APIRequests.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("synoptic %s: %w", endpoint, err)
	}

	outcome := "success"
	if d.Summary.ResponseCode != domain.ResponseCodeOK {
		outcome = "no_results"
	}
	c.metrics.APIRequests.WithLabelValues(endpoint, outcome).Inc()
	c.logger.Debug("synoptic request",
		"endpoint", endpoint,
		"stid", params.Get("stid"),
		"radius", params.Get("radius"),
		"start", params.Get("start"),
		"end", params.Get("end"),
		"response_code", d.Summary.ResponseCode,
		"stations", len(d.Stations),
		"duration", time.Since(start),
	)
	return d, nil
}

// Synoptic API response types.

type response struct {
	Summary  summary           `json:"SUMMARY"`
	Units    map[string]string `json:"UNITS"`
	Stations []station         `json:"STATION"`
}

type summary struct {
	NumberOfObjects int    `json:"NUMBER_OF_OBJECTS"`
	ResponseCode    int    `json:"RESPONSE_CODE"`
	ResponseMessage string `json:"RESPONSE_MESSAGE"`
}

type station struct {
	STID            string                     `json:"STID"`
	Name            string                     `json:"NAME"`
	Latitude        flexFloat                  `json:"LATITUDE"`
	Longitude       flexFloat                  `json:"LONGITUDE"`
	Elevation       flexFloat                  `json:"ELEVATION"`
	State           string                     `json:"STATE"`
	Network         flexString                 `json:"MNET_ID"`
	Status          string                     `json:"STATUS"`
	Timezone        string                     `json:"TIMEZONE"`
	PeriodOfRecord  *periodOfRecord            `json:"PERIOD_OF_RECORD"`
	SensorVariables json.RawMessage            `json:"SENSOR_VARIABLES"`
	Distance        flexFloat                  `json:"DISTANCE"`
	Observations    map[string]json.RawMessage `json:"OBSERVATIONS"`
}

type periodOfRecord struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// flexFloat accepts a JSON number, a numeric string, or null.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", data)
	}
	*f = flexFloat(v)
	return nil
}

// flexString accepts a JSON string or number.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = ""
		return nil
	}
	*s = flexString(strings.Trim(string(data), `"`))
	return nil
}

// DecodeResponse decodes a Synoptic JSON response body, such as a saved
// timeseries sample.
func DecodeResponse(r io.Reader) (*domain.Dataset, error) {
	var raw response
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	d := &domain.Dataset{
		Summary: domain.Summary{
			NumberOfObjects: raw.Summary.NumberOfObjects,
			ResponseCode:    raw.Summary.ResponseCode,
			ResponseMessage: raw.Summary.ResponseMessage,
		},
		Units: raw.Units,
	}
	if raw.Summary.ResponseCode != domain.ResponseCodeOK {
		return d, nil
	}
	for _, st := range raw.Stations {
		series, err := decodeSeries(st.STID, st.Observations)
		if err != nil {
			return nil, err
		}
		d.Stations = append(d.Stations, domain.StationSeries{
			Station:  st.toDomain(),
			Distance: float64(st.Distance),
			Series:   series,
		})
	}
	return d, nil
}

func (s station) toDomain() domain.Station {
	out := domain.Station{
		ID:        s.STID,
		Name:      s.Name,
		Latitude:  float64(s.Latitude),
		Longitude: float64(s.Longitude),
		Elevation: float64(s.Elevation),
		State:     s.State,
		Network:   string(s.Network),
		Status:    s.Status,
		Timezone:  s.Timezone,
	}
	if len(s.SensorVariables) > 0 && string(s.SensorVariables) != "null" {
		out.SensorVariables = s.SensorVariables
	}
	if s.PeriodOfRecord != nil {
		// Unparseable bounds are left unset; they are informational only.
		out.RecordStart, _ = domain.ParseInstant(s.PeriodOfRecord.Start)
		out.RecordEnd, _ = domain.ParseInstant(s.PeriodOfRecord.End)
	}
	return out
}

// decodeSeries splits OBSERVATIONS into the shared date_time array and the
// per-variable arrays. Numbers stay json.Number so the schema decides the
// storage class.
func decodeSeries(stid string, obs map[string]json.RawMessage) (domain.Series, error) {
	series := domain.Series{Variables: make(map[string][]any, len(obs))}
	for name, raw := range obs {
		if name == domain.DateTimeField {
			if err := json.Unmarshal(raw, &series.DateTime); err != nil {
				return domain.Series{}, domain.Structuralf("station %s: date_time is not a string array", stid)
			}
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var values []any
		if err := dec.Decode(&values); err != nil {
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &typeErr) {
				return domain.Series{}, domain.Structuralf("station %s: %s is not an array", stid, name)
			}
			return domain.Series{}, fmt.Errorf("decode %s for %s: %w", name, stid, err)
		}
		series.Variables[name] = values
	}
	if len(series.Variables) > 0 && series.DateTime == nil {
		return domain.Series{}, domain.Structuralf("station %s: observations without date_time", stid)
	}
	return series, nil
}
