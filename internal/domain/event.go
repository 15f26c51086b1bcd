package domain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Event is an ignition or outage record: a location and a canonical time.
// Row carries the source columns so a sink can echo them next to the results.
type Event struct {
	ID        string
	Latitude  float64
	Longitude float64
	Time      Instant
	Row       []string

	// Source position, for logging.
	Topic     string
	Partition int
	Offset    int64
	Line      int

	Commit func(ctx context.Context) error
}

// Validate checks the coordinates and time.
func (e Event) Validate() error {
	switch {
	case e.Latitude < -90 || e.Latitude > 90:
		return Validationf("event %s: latitude %v out of range", e.ID, e.Latitude)
	case e.Longitude < -180 || e.Longitude > 180:
		return Validationf("event %s: longitude %v out of range", e.ID, e.Longitude)
	case e.Time.IsZero():
		return Validationf("event %s: missing time", e.ID)
	}
	return nil
}

// EventMessageHeader names the Row columns of an event decoded by
// ParseEventJSON.
var EventMessageHeader = []string{"id", "latitude", "longitude", "time"}

// eventMessage is the JSON shape of an event on the source topic.
type eventMessage struct {
	ID        string   `json:"id"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Time      string   `json:"time"`
}

// ParseEventJSON decodes an event message. The time accepts any shape
// ParseInstant accepts.
func ParseEventJSON(data []byte) (Event, error) {
	var m eventMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return Event{}, fmt.Errorf("%w: decode event: %w", ErrValidation, err)
	}
	if m.Latitude == nil || m.Longitude == nil {
		return Event{}, Validationf("event %q: missing coordinates", m.ID)
	}
	t, err := ParseInstant(m.Time)
	if err != nil {
		return Event{}, fmt.Errorf("event %q: %w", m.ID, err)
	}
	ev := Event{ID: m.ID, Latitude: *m.Latitude, Longitude: *m.Longitude, Time: t}
	if ev.ID == "" {
		ev.ID = GenerateEventID(ev.Latitude, ev.Longitude, ev.Time)
	}
	ev.Row = []string{
		ev.ID,
		strconv.FormatFloat(ev.Latitude, 'f', -1, 64),
		strconv.FormatFloat(ev.Longitude, 'f', -1, 64),
		ev.Time.String(),
	}
	return ev, ev.Validate()
}

// GenerateEventID derives a deterministic ID from location and time, so
// replaying the same source row yields the same report key.
func GenerateEventID(lat, lon float64, t Instant) string {
	input := fmt.Sprintf("%.4f|%.4f|%s", lat, lon, t.Compact())
	hash := sha256.Sum256([]byte(input))
	return "evt-" + hex.EncodeToString(hash[:8])
}

// GustReport is the aggregation result for one event.
type GustReport struct {
	Event       Event
	Reference   Instant
	Windows     Windows
	Table       GustTable
	ProcessedAt time.Time
}

// NewGustReport stamps a report with the package clock.
func NewGustReport(ev Event, ref Instant, w Windows, table GustTable) GustReport {
	return GustReport{
		Event:       ev,
		Reference:   ref,
		Windows:     w,
		Table:       table,
		ProcessedAt: clock.Now().UTC(),
	}
}

type reportMessage struct {
	EventID     string    `json:"event_id"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	EventTime   Instant   `json:"event_time"`
	Reference   Instant   `json:"reference_time"`
	TimeWindows []float64 `json:"time_windows_hours"`
	Distances   []float64 `json:"distance_windows_miles"`
	Cells       [][]Cell  `json:"cells"`
	ProcessedAt time.Time `json:"processed_at"`
}

// MarshalJSON renders the report as published on the sink topic.
func (r GustReport) MarshalJSON() ([]byte, error) {
	return json.Marshal(reportMessage{
		EventID:     r.Event.ID,
		Latitude:    r.Event.Latitude,
		Longitude:   r.Event.Longitude,
		EventTime:   r.Event.Time,
		Reference:   r.Reference,
		TimeWindows: r.Windows.Hours(),
		Distances:   r.Windows.Miles(),
		Cells:       r.Table,
		ProcessedAt: r.ProcessedAt,
	})
}
