package domain

import (
	"fmt"
	"strconv"
	"time"
)

// Windows is an ascending tuple of time-window widths (hours) and an ascending
// tuple of distance radii (miles). Each time window is centred on the
// reference instant: an observation at offset d qualifies for width t when
// -t/2 <= d < t/2.
type Windows struct {
	hours []float64
	miles []float64
}

// NewWindows validates that both tuples are non-empty, positive and strictly
// ascending. The tuples are not sorted.
func NewWindows(hours, miles []float64) (Windows, error) {
	if err := checkAscending("time", hours); err != nil {
		return Windows{}, err
	}
	if err := checkAscending("distance", miles); err != nil {
		return Windows{}, err
	}
	return Windows{
		hours: append([]float64(nil), hours...),
		miles: append([]float64(nil), miles...),
	}, nil
}

func checkAscending(kind string, vals []float64) error {
	if len(vals) == 0 {
		return Validationf("%s windows must not be empty", kind)
	}
	for i, v := range vals {
		if v <= 0 {
			return Validationf("%s window %v must be positive", kind, v)
		}
		if i > 0 && v <= vals[i-1] {
			return Validationf("%s windows must be strictly ascending: %v", kind, vals)
		}
	}
	return nil
}

// Hours returns a copy of the time-window widths.
func (w Windows) Hours() []float64 { return append([]float64(nil), w.hours...) }

// Miles returns a copy of the distance radii.
func (w Windows) Miles() []float64 { return append([]float64(nil), w.miles...) }

// MaxMiles is the largest distance radius.
func (w Windows) MaxMiles() float64 { return w.miles[len(w.miles)-1] }

// Span returns the inclusive fetch range covering the widest time window.
func (w Windows) Span(ref Instant) (start, end Instant) {
	half := halfWidth(w.hours[len(w.hours)-1])
	return ref.Add(-half), ref.Add(half)
}

func halfWidth(hours float64) time.Duration {
	return time.Duration(hours * float64(time.Hour) / 2)
}

// Cell is the best match for one (time window, distance window) pair.
// A cell with no qualifying observation stays at the zero value.
type Cell struct {
	StationID string  `json:"stid"`
	Distance  float64 `json:"distance"`
	Time      Instant `json:"time"`
	MaxGust   float64 `json:"max_gust"`
	Count     int     `json:"count"`
}

// GustTable is indexed [time window][distance window].
type GustTable [][]Cell

// NewGustTable allocates an m x n table of empty cells.
func NewGustTable(w Windows) GustTable {
	table := make(GustTable, len(w.hours))
	for i := range table {
		table[i] = make([]Cell, len(w.miles))
	}
	return table
}

// ComputeMaxGust scans every observation of every station against every
// window pair. A qualifying observation increments the cell count and replaces
// the cell's best match when its gust is >= the current maximum, so among
// equal gusts the later-scanned observation wins. Stations are scanned in the
// order given, observations in time order.
func ComputeMaxGust(w Windows, ref Instant, stations []StationObservations) GustTable {
	table := NewGustTable(w)
	halves := make([]time.Duration, len(w.hours))
	for i, h := range w.hours {
		halves[i] = halfWidth(h)
	}

	for _, so := range stations {
		for _, obs := range so.Observations {
			gust, ok := obs.Gust()
			if !ok {
				continue
			}
			offset := obs.Time.Sub(ref)
			for i, half := range halves {
				if offset < -half || offset >= half {
					continue
				}
				for j, radius := range w.miles {
					if so.Distance > radius {
						continue
					}
					cell := &table[i][j]
					cell.Count++
					if gust >= cell.MaxGust {
						cell.StationID = so.Station.ID
						cell.Distance = so.Distance
						cell.Time = obs.Time
						cell.MaxGust = gust
					}
				}
			}
		}
	}
	return table
}

// CellFields is the number of values each cell contributes to Flatten.
const CellFields = 5

// Flatten renders the table row-major (time window outer, distance window
// inner), five values per cell: station, distance, time, max gust, count.
func (t GustTable) Flatten() []string {
	var out []string
	for _, row := range t {
		for _, c := range row {
			out = append(out,
				c.StationID,
				formatFloat(c.Distance),
				c.Time.String(),
				formatFloat(c.MaxGust),
				strconv.Itoa(c.Count),
			)
		}
	}
	return out
}

// FlattenHeader names the columns produced by Flatten, e.g. "t1h_g4mi_stid".
func (w Windows) FlattenHeader() []string {
	suffixes := [CellFields]string{"stid", "distance", "time", "max_gust", "count"}
	out := make([]string, 0, len(w.hours)*len(w.miles)*CellFields)
	for _, h := range w.hours {
		for _, g := range w.miles {
			for _, s := range suffixes {
				out = append(out, fmt.Sprintf("t%sh_g%smi_%s", formatFloat(h), formatFloat(g), s))
			}
		}
	}
	return out
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
