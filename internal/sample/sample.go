// Package sample draws control samples: random source events re-timed to
// random instants, so their gusts can be compared with the real events'.
package sample

import (
	"encoding/csv"
	"fmt"
	"io"
	"math/rand/v2"

	"github.com/couchcryptid/gust-correlation-etl/internal/domain"
)

// TimeColumn is appended to the source header and holds the drawn instant.
const TimeColumn = "control_time"

// Draw picks n events uniformly with replacement and gives each a random
// instant in [start, end). Drawn events get fresh IDs derived from their new
// time.
func Draw(rng *rand.Rand, events []domain.Event, n int, start, end domain.Instant) ([]domain.Event, error) {
	if n < 0 {
		return nil, domain.Validationf("sample size %d is negative", n)
	}
	if n > 0 && len(events) == 0 {
		return nil, domain.Validationf("no events to sample from")
	}
	out := make([]domain.Event, 0, n)
	for range n {
		src := events[rng.IntN(len(events))]
		at, err := domain.RandomInstantBetween(rng, start, end)
		if err != nil {
			return nil, err
		}
		ev := src
		ev.Time = at
		ev.ID = domain.GenerateEventID(ev.Latitude, ev.Longitude, at)
		ev.Row = append([]string(nil), src.Row...)
		ev.Commit = nil
		out = append(out, ev)
	}
	return out, nil
}

// WriteCSV writes the source header plus TimeColumn, then one row per event.
// Rows are padded or cut to the header width.
func WriteCSV(dst io.Writer, header []string, events []domain.Event) error {
	w := csv.NewWriter(dst)
	if err := w.Write(append(append([]string(nil), header...), TimeColumn)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, ev := range events {
		row := make([]string, len(header), len(header)+1)
		copy(row, ev.Row)
		if err := w.Write(append(row, ev.Time.String())); err != nil {
			return fmt.Errorf("write sample %s: %w", ev.ID, err)
		}
	}
	w.Flush()
	return w.Error()
}
