package util

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTime(t *testing.T) {
	got, ok := ParseTime("2024-03-05T16:00:00Z")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 5, 16, 0, 0, 0, time.UTC), got.UTC())

	got, ok = ParseTime("2024-03-05T16:00:00.250Z")
	require.True(t, ok)
	assert.Equal(t, 250*time.Millisecond, time.Duration(got.Nanosecond()))

	ts := time.Date(2024, 3, 5, 16, 0, 0, 0, time.UTC)
	got, ok = ParseTime(strconv.FormatInt(ts.Unix(), 10))
	require.True(t, ok)
	assert.True(t, got.Equal(ts))

	_, ok = ParseTime("yesterday")
	assert.False(t, ok)
}

func TestUnixAuto(t *testing.T) {
	ts := time.Date(2024, 3, 5, 16, 30, 0, 0, time.UTC)
	assert.True(t, UnixAuto(ts.Unix()).Equal(ts))
	assert.True(t, UnixAuto(ts.UnixMilli()).Equal(ts))
}

func TestDefaults(t *testing.T) {
	def := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, def, ParseTimeDefault("", def))
	assert.Equal(t, 7, ParseIntDefault("x", 7))
	assert.Equal(t, 3, ParseIntDefault("3", 7))
}
