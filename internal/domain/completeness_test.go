package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func every(start Instant, step time.Duration, n int) []Observation {
	out := make([]Observation, n)
	for i := range out {
		out[i] = Observation{Time: start.Add(time.Duration(i) * step)}
	}
	return out
}

func TestFirstIntervalCompleteness(t *testing.T) {
	start := mustInstant(t, "2019-10-09T22:00:00Z")
	end := start.Add(2 * time.Hour)

	tests := []struct {
		name string
		obs  []Observation
		want bool
	}{
		{"empty", nil, false},
		{"single observation", every(start, 0, 1), true},
		{"full range", every(start, 10*time.Minute, 13), true},
		{"one short", every(start, 10*time.Minute, 11), true},
		{"half missing", every(start, 10*time.Minute, 6), false},
		{"duplicate timestamps", every(start, 0, 3), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FirstInterval.IsComplete(tc.obs, start, end))
		})
	}

	t.Run("irregular sampling fools it", func(t *testing.T) {
		// The rate doubles after the first interval, so the count lines up
		// even though the last 55 minutes are missing.
		obs := every(start, 10*time.Minute, 2)
		obs = append(obs, every(start.Add(15*time.Minute), 5*time.Minute, 11)...)
		assert.True(t, FirstInterval.IsComplete(obs, start, end))
		assert.False(t, GapScan.IsComplete(obs, start, end))
	})
}

func TestGapScanCompleteness(t *testing.T) {
	start := mustInstant(t, "2019-10-09T22:00:00Z")
	end := start.Add(2 * time.Hour)

	assert.True(t, GapScan.IsComplete(every(start, 10*time.Minute, 13), start, end))
	assert.False(t, GapScan.IsComplete(every(start.Add(time.Hour), 10*time.Minute, 7), start, end), "leading gap")
	assert.False(t, GapScan.IsComplete(every(start, 10*time.Minute, 7), start, end), "trailing gap")

	holes := every(start, 10*time.Minute, 13)
	holes = append(holes[:4], holes[8:]...)
	assert.False(t, GapScan.IsComplete(holes, start, end), "interior gap")
}

func TestParseCompletenessMode(t *testing.T) {
	m, err := ParseCompletenessMode("gap-scan")
	require.NoError(t, err)
	assert.Equal(t, GapScan, m)

	_, err = ParseCompletenessMode("exact")
	assert.ErrorIs(t, err, ErrValidation)
}
