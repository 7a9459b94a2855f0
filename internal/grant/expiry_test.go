package grant

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Skipf("time zone %s not available: %v", name, err)
	}
	return loc
}

func TestComputeExpiry_OneHourDuration(t *testing.T) {
	t.Parallel()

	// Same result whatever zone the site is configured in.
	for _, loc := range []*time.Location{time.UTC, time.FixedZone("X", -7*3600), time.FixedZone("Y", 5*3600+1800)} {
		got, err := ComputeExpiry(Duration{Hours: 1}, testNow, loc)
		require.NoError(t, err)
		assert.Equal(t, testNow.Add(time.Hour), got)
		assert.Equal(t, time.UTC, got.Location())
	}
}

func TestComputeExpiry_Duration(t *testing.T) {
	t.Parallel()

	got, err := ComputeExpiry(Duration{Days: 2, Hours: 3, Minutes: 15}, testNow, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(51*time.Hour+15*time.Minute), got)

	zero, err := ComputeExpiry(Duration{}, testNow, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, testNow, zero)
}

func TestComputeExpiry_DaysAreCalendarDaysInSiteZone(t *testing.T) {
	t.Parallel()

	berlin := mustLoad(t, "Europe/Berlin")
	// 2026-10-24 12:00 local; DST ends on 2026-10-25, so one calendar day
	// later is 25 hours away.
	issued := time.Date(2026, 10, 24, 12, 0, 0, 0, berlin)

	got, err := ComputeExpiry(Duration{Days: 1}, issued, berlin)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 25, 12, 0, 0, 0, berlin).UTC(), got)
	assert.Equal(t, 25*time.Hour, got.Sub(issued))
}

func TestComputeExpiry_NegativeDuration(t *testing.T) {
	t.Parallel()

	for _, d := range []Duration{{Days: -1}, {Hours: -1}, {Minutes: -5}} {
		_, err := ComputeExpiry(d, testNow, time.UTC)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrValidation), "got %v", err)

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "duration", verr.Field)
	}
}

func TestComputeExpiry_AbsoluteDate(t *testing.T) {
	t.Parallel()

	newYork := mustLoad(t, "America/New_York")

	got, err := ComputeExpiry(AbsoluteDate("2026-10-20T09:30"), testNow, newYork)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 20, 13, 30, 0, 0, time.UTC), got)

	got, err = ComputeExpiry(AbsoluteDate("2026-10-20T09:30:15"), testNow, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 20, 9, 30, 15, 0, time.UTC), got)
}

func TestComputeExpiry_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		spec ExpirySpec
		loc  *time.Location
	}{
		{"nil spec", nil, time.UTC},
		{"nil location", Duration{Hours: 1}, nil},
		{"empty date", AbsoluteDate(""), time.UTC},
		{"garbage date", AbsoluteDate("next tuesday"), time.UTC},
		{"date only", AbsoluteDate("2026-10-20"), time.UTC},
		{"bad month", AbsoluteDate("2026-13-20T10:00"), time.UTC},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ComputeExpiry(tt.spec, testNow, tt.loc)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}
