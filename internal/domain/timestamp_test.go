package domain

import (
	"math"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 { return &v }

func TestToEventTime(t *testing.T) {
	t.Run("valid epoch millis", func(t *testing.T) {
		got, ok := ToEventTime(int64Ptr(1700000000000))
		require.True(t, ok)
		assert.True(t, got.Equal(time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)))
		assert.Equal(t, time.Local, got.Location())
	})

	t.Run("keeps milliseconds", func(t *testing.T) {
		got, ok := ToEventTime(int64Ptr(1700000000123))
		require.True(t, ok)
		assert.Equal(t, int64(1700000000123), got.UnixMilli())
	})

	t.Run("epoch zero", func(t *testing.T) {
		got, ok := ToEventTime(int64Ptr(0))
		require.True(t, ok)
		assert.Equal(t, int64(0), got.Unix())
	})

	t.Run("pre-epoch", func(t *testing.T) {
		got, ok := ToEventTime(int64Ptr(-86400000))
		require.True(t, ok)
		assert.True(t, got.Equal(time.Date(1969, 12, 31, 0, 0, 0, 0, time.UTC)))
	})
}

func TestToEventTime_RoundTrip(t *testing.T) {
	values := []int64{
		0,
		1,
		999,
		1700000000000,
		1700000000999,
		time.Date(1, 1, 1, 0, 0, 0, 0, time.Local).UnixMilli(),
		time.Date(9999, 12, 31, 23, 59, 59, 999e6, time.Local).UnixMilli(),
		-1234567,
	}
	for _, v := range values {
		got, ok := ToEventTime(int64Ptr(v))
		require.True(t, ok, "value %d", v)
		diff := got.UnixMilli() - v
		assert.Less(t, absInt64(diff), int64(1000), "value %d", v)
	}
}

func TestToEventTime_Fallback(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	SetClock(clockwork.NewFakeClockAt(fixed))
	defer SetClock(nil)

	tests := []struct {
		name string
		ms   *int64
	}{
		{"nil", nil},
		{"beyond year 9999", int64Ptr(time.Date(10000, 1, 1, 0, 0, 0, 0, time.Local).UnixMilli())},
		{"before year 1", int64Ptr(time.Date(1, 1, 1, 0, 0, 0, 0, time.Local).UnixMilli() - 1)},
		{"max int64", int64Ptr(math.MaxInt64)},
		{"min int64", int64Ptr(math.MinInt64)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ToEventTime(tt.ms)
			assert.False(t, ok)
			assert.True(t, got.Equal(fixed))
		})
	}
}

func TestToEventTime_RangeUsesLocalYear(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	SetClock(clockwork.NewFakeClockAt(fixed))
	defer SetClock(nil)

	lastUTCMilli := time.Date(9999, 12, 31, 23, 0, 0, 0, time.UTC).UnixMilli()
	firstUTCMilli := time.Date(1, 1, 1, 1, 0, 0, 0, time.UTC).UnixMilli()

	tests := []struct {
		name string
		loc  *time.Location
		ms   int64
		ok   bool
	}{
		{"east of utc crosses into year 10000", time.FixedZone("JST", 9*60*60), lastUTCMilli, false},
		{"west of utc stays in year 9999", time.FixedZone("PST", -8*60*60), lastUTCMilli, true},
		{"west of utc crosses into year 0", time.FixedZone("PST", -8*60*60), firstUTCMilli, false},
		{"east of utc stays in year 1", time.FixedZone("JST", 9*60*60), firstUTCMilli, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev := time.Local
			time.Local = tt.loc
			defer func() { time.Local = prev }()

			got, ok := ToEventTime(int64Ptr(tt.ms))
			assert.Equal(t, tt.ok, ok)
			if !tt.ok {
				assert.True(t, got.Equal(fixed))
				return
			}
			assert.Equal(t, tt.ms, got.UnixMilli())
			assert.Equal(t, tt.loc, got.Location())
			assert.GreaterOrEqual(t, got.Year(), 1)
			assert.LessOrEqual(t, got.Year(), 9999)
		})
	}
}

func TestToEventTime_FallbackUsesRealClock(t *testing.T) {
	before := time.Now()
	got, ok := ToEventTime(nil)
	after := time.Now()

	assert.False(t, ok)
	assert.False(t, got.Before(before.Add(-time.Second)))
	assert.False(t, got.After(after.Add(time.Second)))
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
