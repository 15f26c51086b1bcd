package domain

import (
	"fmt"
	"sort"
	"time"
)

// CompletenessMode selects how a cached range is judged complete.
type CompletenessMode string

const (
	// FirstInterval infers the sampling interval from the first two
	// observations and compares the observation count to range/interval.
	// Irregular sampling fools it; kept for compatibility with existing caches.
	FirstInterval CompletenessMode = "first-interval"

	// GapScan rejects the range when any gap, including the leading and
	// trailing ones, exceeds 1.5x the median sampling interval.
	GapScan CompletenessMode = "gap-scan"
)

// ParseCompletenessMode validates a mode name.
func ParseCompletenessMode(s string) (CompletenessMode, error) {
	switch m := CompletenessMode(s); m {
	case FirstInterval, GapScan:
		return m, nil
	default:
		return "", fmt.Errorf("%w: unknown completeness mode %q", ErrValidation, s)
	}
}

// IsComplete reports whether obs (ordered by time) plausibly covers
// [start, end]. An empty slice is incomplete; a single observation is complete.
func (m CompletenessMode) IsComplete(obs []Observation, start, end Instant) bool {
	switch len(obs) {
	case 0:
		return false
	case 1:
		return true
	}
	if m == GapScan {
		return gapScanComplete(obs, start, end)
	}
	return firstIntervalComplete(obs, start, end)
}

func firstIntervalComplete(obs []Observation, start, end Instant) bool {
	interval := obs[1].Time.Sub(obs[0].Time)
	if interval <= 0 {
		return false
	}
	ticks := int(end.Sub(start) / interval)
	diff := len(obs) - ticks
	return diff >= -1 && diff <= 1
}

func gapScanComplete(obs []Observation, start, end Instant) bool {
	gaps := make([]time.Duration, 0, len(obs)-1)
	for i := 1; i < len(obs); i++ {
		gaps = append(gaps, obs[i].Time.Sub(obs[i-1].Time))
	}
	sorted := append([]time.Duration(nil), gaps...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	median := sorted[len(sorted)/2]
	if median <= 0 {
		return false
	}
	limit := median * 3 / 2

	if obs[0].Time.Sub(start) > limit || end.Sub(obs[len(obs)-1].Time) > limit {
		return false
	}
	for _, g := range gaps {
		if g > limit {
			return false
		}
	}
	return true
}
