package timezone

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestConverter(t *testing.T, sink Sink) *Converter {
	t.Helper()
	conv, err := NewConverter("Asia/Jakarta", zap.NewNop(), sink)
	require.NoError(t, err)
	return conv
}

func TestNewConverterRejectsBadAdminZone(t *testing.T) {
	_, err := NewConverter("Not/AZone", zap.NewNop(), nil)
	assert.Error(t, err)
}

func TestToZoneSameInstant(t *testing.T) {
	conv := newTestConverter(t, nil)

	// Jakarta is UTC+7, Tokyo UTC+9: 10:00 WIB is 12:00 JST.
	date, clock, err := conv.ToZone("2026-03-02", "10:00:00", "Asia/Jakarta", "Asia/Tokyo")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-02", date)
	assert.Equal(t, "12:00:00", clock)
}

func TestToZoneCrossesDateBoundary(t *testing.T) {
	conv := newTestConverter(t, nil)

	// 23:30 in Jakarta is already the next day in Tokyo.
	date, clock, err := conv.ToZone("2026-03-02", "23:30:00", "Asia/Jakarta", "Asia/Tokyo")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-03", date)
	assert.Equal(t, "01:30:00", clock)

	// And the previous day going far enough west.
	date, clock, err = conv.ToZone("2026-03-02", "01:00:00", "Asia/Jakarta", "America/New_York")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01", date)
	assert.Equal(t, "13:00:00", clock)
}

func TestToZoneInvalidZoneFallsBackToAdmin(t *testing.T) {
	sink := NewRingSink(8)
	conv := newTestConverter(t, sink)

	date, clock, err := conv.ToZone("2026-03-02", "10:00:00", "Asia/Jakarta", "Mars/OlympusMons")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-02", date)
	assert.Equal(t, "10:00:00", clock)

	events := sink.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, EventZoneFallback, events[0].Kind)
	assert.Equal(t, "Mars/OlympusMons", events[0].SourceZone)
}

func TestIsPastUsesObserverWallClock(t *testing.T) {
	conv := newTestConverter(t, nil)

	// Frozen now: 2026-03-02 23:45 in Jakarta.
	jakarta, err := time.LoadLocation("Asia/Jakarta")
	require.NoError(t, err)
	now := time.Date(2026, 3, 2, 23, 45, 0, 0, jakarta)
	conv = conv.WithNow(func() time.Time { return now })

	// Class ends 23:30 admin time: already over for an admin observer.
	past, err := conv.IsPast("2026-03-02", "23:30:00", "Asia/Jakarta", "Asia/Jakarta")
	require.NoError(t, err)
	assert.True(t, past)

	// For a student two hours west (Karachi, UTC+5) the local clock reads
	// 21:45, so the 23:30 wall-clock moment has not passed yet.
	past, err = conv.IsPast("2026-03-02", "23:30:00", "Asia/Jakarta", "Asia/Karachi")
	require.NoError(t, err)
	assert.False(t, past)
}

func TestIsPastRecordsEvents(t *testing.T) {
	sink := NewRingSink(2)
	conv := newTestConverter(t, sink)

	for i := 0; i < 5; i++ {
		_, err := conv.IsPast("2026-01-01", "09:00:00", "Asia/Jakarta", "Asia/Jakarta")
		require.NoError(t, err)
	}

	// Sink stays bounded at its capacity.
	events := sink.Events()
	assert.Len(t, events, 2)
	for _, e := range events {
		assert.Equal(t, EventIsPast, e.Kind)
	}
}

func TestNowInAdminZone(t *testing.T) {
	conv := newTestConverter(t, nil)
	jakarta, err := time.LoadLocation("Asia/Jakarta")
	require.NoError(t, err)
	conv = conv.WithNow(func() time.Time {
		return time.Date(2026, 3, 2, 8, 5, 9, 0, jakarta)
	})

	date, clock := conv.NowInAdminZone()
	assert.Equal(t, "2026-03-02", date)
	assert.Equal(t, "08:05:09", clock)
}
