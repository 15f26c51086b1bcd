package domain

import (
	"encoding/json"
	"math"
)

// Station is a weather-reporting site as stored in the observation cache.
type Station struct {
	ID              string          `json:"stid"`
	Name            string          `json:"name,omitempty"`
	Latitude        float64         `json:"latitude"`
	Longitude       float64         `json:"longitude"`
	Elevation       float64         `json:"elevation,omitempty"`
	State           string          `json:"state,omitempty"`
	Network         string          `json:"mnet_id,omitempty"`
	Status          string          `json:"status,omitempty"`
	Timezone        string          `json:"timezone,omitempty"`
	RecordStart     Instant         `json:"period_of_record_start"`
	RecordEnd       Instant         `json:"period_of_record_end"`
	SensorVariables json.RawMessage `json:"sensor_variables,omitempty"`
}

// NearbyStation is a cached station and its distance in miles from a query point.
type NearbyStation struct {
	Station  Station
	Distance float64
}

// StationObservations pairs a station with its distance from a query point
// and its observations ordered by timestamp.
type StationObservations struct {
	Station      Station
	Distance     float64
	Observations []Observation
}

// Observation is one reading from one station. Fields holds the sensor values
// keyed by schema field name; values are float64, int64, string, or nil.
type Observation struct {
	StationID string
	Time      Instant
	Fields    map[string]any
}

// Float returns the named field as a float64. The second result is false when
// the field is absent, null, or not numeric.
func (o Observation) Float(name string) (float64, bool) {
	switch v := o.Fields[name].(type) {
	case float64:
		if math.IsNaN(v) {
			return 0, false
		}
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

// Gust returns the wind-gust reading, if any.
func (o Observation) Gust() (float64, bool) {
	return o.Float(GustField)
}
