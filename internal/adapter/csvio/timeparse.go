package csvio

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/gust-correlation-etl/internal/domain"
)

// LayoutSerial selects spreadsheet serial day numbers as the time encoding.
const LayoutSerial = "serial"

// timeParser turns the time cells of one row into an Instant. Local wall
// clock values are read in loc.
type timeParser struct {
	layout string
	loc    *time.Location
}

// parse reads a single time cell, or a date cell and a clock cell when the
// export splits them into two columns.
func (p timeParser) parse(date, clock string) (domain.Instant, error) {
	date, clock = strings.TrimSpace(date), strings.TrimSpace(clock)
	if date == "" {
		return domain.Instant{}, domain.Validationf("empty time")
	}
	if clock == "" {
		return p.single(date)
	}
	if p.layout != "" && p.layout != LayoutSerial {
		return p.single(date + " " + clock)
	}

	d, dateIsSerial := parseSerial(date)
	c, clockIsSerial := parseSerial(clock)
	switch {
	case dateIsSerial && clockIsSerial:
		// Exports disagree on which column carries the full date-time.
		switch {
		case d != math.Trunc(d):
			return domain.InstantFromSpreadsheetSerial(d, p.loc)
		case c >= 1:
			return domain.InstantFromSpreadsheetSerial(c, p.loc)
		default:
			return domain.InstantFromSpreadsheetSerial(d+c, p.loc)
		}
	case dateIsSerial:
		h, m, err := parseClock(clock)
		if err != nil {
			return domain.Instant{}, err
		}
		return domain.InstantFromSpreadsheetSerial(math.Trunc(d)+(float64(h)*60+float64(m))/1440, p.loc)
	case strings.Contains(date, "/"):
		return p.slashed(date, clock)
	default:
		return p.single(date + " " + clock)
	}
}

func (p timeParser) single(s string) (domain.Instant, error) {
	switch p.layout {
	case "":
		in, err := domain.ParseInstantIn(s, p.loc)
		if err == nil {
			return in, nil
		}
		if serial, ok := parseSerial(s); ok {
			return domain.InstantFromSpreadsheetSerial(serial, p.loc)
		}
		return domain.Instant{}, err
	case LayoutSerial:
		serial, ok := parseSerial(s)
		if !ok {
			return domain.Instant{}, domain.Validationf("%q is not a spreadsheet serial", s)
		}
		return domain.InstantFromSpreadsheetSerial(serial, p.loc)
	default:
		t, err := time.ParseInLocation(p.layout, s, p.loc)
		if err != nil {
			return domain.Instant{}, &domain.TimeParseError{Input: s}
		}
		return domain.InstantFromTime(t), nil
	}
}

// slashed reads a Y/M/D or M/D/Y date with an H:MM clock. The four-digit
// component decides which.
func (p timeParser) slashed(date, clock string) (domain.Instant, error) {
	parts := strings.Split(date, "/")
	if len(parts) != 3 {
		return domain.Instant{}, &domain.TimeParseError{Input: date}
	}
	n := make([]int, 3)
	for i, s := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return domain.Instant{}, &domain.TimeParseError{Input: date}
		}
		n[i] = v
	}
	year, month, day := n[0], n[1], n[2]
	if len(strings.TrimSpace(parts[2])) == 4 {
		year, month, day = n[2], n[0], n[1]
	}
	h, m, err := parseClock(clock)
	if err != nil {
		return domain.Instant{}, err
	}
	return domain.InstantFromComponents(year, month, day, h, m, p.loc)
}

func parseClock(s string) (hour, minute int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, 0, &domain.TimeParseError{Input: s}
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, &domain.TimeParseError{Input: s}
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, &domain.TimeParseError{Input: s}
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, domain.Validationf("clock %q out of range", s)
	}
	return hour, minute, nil
}

func parseSerial(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
