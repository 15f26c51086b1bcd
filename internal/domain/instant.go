package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"
)

// CompactLayout is the YYYYMMDDHHMM UTC format the Synoptic API expects for
// start/end parameters.
const CompactLayout = "200601021504"

// isoLayouts are tried in order before falling back to the compact format.
// Layouts without a zone designator are read in the caller's location.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Instant is an immutable point in time held in UTC. The zero value is "none".
type Instant struct {
	t time.Time
}

// TimeParseError reports a string that matches none of the recognized time shapes.
type TimeParseError struct {
	Input string
}

func (e *TimeParseError) Error() string {
	return fmt.Sprintf("invalid time string format for %q", e.Input)
}

// Is makes TimeParseError match ErrValidation.
func (e *TimeParseError) Is(target error) bool {
	return target == ErrValidation
}

// ParseInstant reads an ISO-8601 timestamp, falling back to the compact
// YYYYMMDDHHMM form.
func ParseInstant(s string) (Instant, error) {
	return ParseInstantIn(s, time.UTC)
}

// ParseInstantIn is ParseInstant with zoneless ISO timestamps read as wall
// clock time in loc. Compact strings are always UTC.
func ParseInstantIn(s string, loc *time.Location) (Instant, error) {
	if loc == nil {
		loc = time.UTC
	}
	s = strings.TrimSpace(s)
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return InstantFromTime(t), nil
		}
	}
	return ParseCompact(s)
}

// ParseCompact reads a 12-digit YYYYMMDDHHMM UTC string.
func ParseCompact(s string) (Instant, error) {
	s = strings.TrimSpace(s)
	if len(s) != len(CompactLayout) {
		return Instant{}, &TimeParseError{Input: s}
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return Instant{}, &TimeParseError{Input: s}
		}
	}
	t, err := time.Parse(CompactLayout, s)
	if err != nil {
		return Instant{}, &TimeParseError{Input: s}
	}
	return InstantFromTime(t), nil
}

// InstantFromComponents builds an Instant from a calendar tuple in loc
// (UTC when loc is nil). Out-of-range components are rejected rather than
// normalized.
func InstantFromComponents(year, month, day, hour, minute int, loc *time.Location) (Instant, error) {
	if loc == nil {
		loc = time.UTC
	}
	switch {
	case year < 1 || year > 9999:
		return Instant{}, Validationf("year %d out of range", year)
	case month < 1 || month > 12:
		return Instant{}, Validationf("month %d out of range", month)
	case hour < 0 || hour > 23:
		return Instant{}, Validationf("hour %d out of range", hour)
	case minute < 0 || minute > 59:
		return Instant{}, Validationf("minute %d out of range", minute)
	}
	if last := daysIn(year, time.Month(month)); day < 1 || day > last {
		return Instant{}, Validationf("day %d out of range for %04d-%02d", day, year, month)
	}
	return InstantFromTime(time.Date(year, time.Month(month), day, hour, minute, 0, 0, loc)), nil
}

// InstantFromTime wraps t, converting it to UTC.
func InstantFromTime(t time.Time) Instant {
	if t.IsZero() {
		return Instant{}
	}
	return Instant{t: t.UTC()}
}

// InstantFromSpreadsheetSerial converts a 1900-system spreadsheet serial day
// number (days since 1899-12-30, fraction = time of day) read as local time in loc.
func InstantFromSpreadsheetSerial(serial float64, loc *time.Location) (Instant, error) {
	if math.IsNaN(serial) || serial < 1 || serial >= 2958466 {
		return Instant{}, Validationf("spreadsheet serial %v out of range", serial)
	}
	if loc == nil {
		loc = time.UTC
	}
	// Serials below 61 predate the phantom 1900-02-29.
	base := time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)
	if serial < 61 {
		base = base.AddDate(0, 0, 1)
	}
	days := math.Floor(serial)
	secs := math.Round((serial - days) * 86400)
	wall := base.AddDate(0, 0, int(days)).Add(time.Duration(secs) * time.Second)
	local := time.Date(wall.Year(), wall.Month(), wall.Day(), wall.Hour(), wall.Minute(), wall.Second(), 0, loc)
	return InstantFromTime(local), nil
}

// RandomInstantBetween draws an instant uniformly in [start, end) at one-second resolution.
func RandomInstantBetween(rng *rand.Rand, start, end Instant) (Instant, error) {
	span := end.Sub(start)
	secs := int64(span / time.Second)
	if secs <= 0 {
		return Instant{}, Validationf("random time range %s..%s is empty", start, end)
	}
	return start.Add(time.Duration(rng.Int64N(secs)) * time.Second), nil
}

// Time returns the UTC time.Time.
func (i Instant) Time() time.Time { return i.t }

// IsZero reports whether i is unset.
func (i Instant) IsZero() bool { return i.t.IsZero() }

// Compact renders YYYYMMDDHHMM in UTC.
func (i Instant) Compact() string { return i.t.Format(CompactLayout) }

// String renders RFC 3339 in UTC, or "" for the zero value.
func (i Instant) String() string {
	if i.t.IsZero() {
		return ""
	}
	return i.t.Format(time.RFC3339)
}

// Sub returns i - o.
func (i Instant) Sub(o Instant) time.Duration { return i.t.Sub(o.t) }

// Add returns i + d.
func (i Instant) Add(d time.Duration) Instant { return Instant{t: i.t.Add(d)} }

func (i Instant) Before(o Instant) bool { return i.t.Before(o.t) }
func (i Instant) After(o Instant) bool  { return i.t.After(o.t) }
func (i Instant) Equal(o Instant) bool  { return i.t.Equal(o.t) }

// MarshalJSON encodes the RFC 3339 form, or null for the zero value.
func (i Instant) MarshalJSON() ([]byte, error) {
	if i.t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(i.String())
}

// UnmarshalJSON accepts any shape ParseInstant accepts, or null.
func (i *Instant) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*i = Instant{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: instant must be a string: %w", ErrValidation, err)
	}
	parsed, err := ParseInstant(s)
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
