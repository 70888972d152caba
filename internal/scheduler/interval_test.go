package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIntervalDurations(t *testing.T) {
	cases := map[string]time.Duration{
		"2d":      48 * time.Hour,
		"1d12h":   36 * time.Hour,
		"1d2h30m": 26*time.Hour + 30*time.Minute,
		"4h":      4 * time.Hour,
		"2h45m":   2*time.Hour + 45*time.Minute,
		"30m":     30 * time.Minute,
	}
	for in, want := range cases {
		got, err := ParseInterval(in)
		require.NoError(t, err, in)
		assert.False(t, got.Daily, in)
		assert.Equal(t, want, got.Every, in)
	}
}

func TestParseIntervalTimeOfDay(t *testing.T) {
	got, err := ParseInterval("12:00")
	require.NoError(t, err)
	assert.True(t, got.Daily)
	assert.Equal(t, 12, got.Hour)
	assert.Equal(t, 0, got.Minute)

	got, err = ParseInterval("6:30")
	require.NoError(t, err)
	assert.True(t, got.Daily)
	assert.Equal(t, 6, got.Hour)
	assert.Equal(t, 30, got.Minute)
}

func TestParseIntervalInvalid(t *testing.T) {
	for _, in := range []string{"", "12", "h", "0m", "25:00", "12:75", "1w", "12h5s"} {
		_, err := ParseInterval(in)
		assert.Error(t, err, in)
	}
}
