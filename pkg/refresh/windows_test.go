package refresh

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raterudder/leneda/pkg/types"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestComputeWindows(t *testing.T) {
	ws := ComputeWindows(friday)

	assert.Equal(t, day(2024, time.March, 14), ws.Yesterday.Start)
	assert.Equal(t, day(2024, time.March, 15).Add(-time.Second), ws.Yesterday.End)

	assert.Equal(t, day(2024, time.March, 11), ws.ThisWeek.Start)
	assert.Equal(t, ws.Yesterday.End, ws.ThisWeek.End)

	assert.Equal(t, day(2024, time.March, 4), ws.LastWeek.Start)
	assert.Equal(t, day(2024, time.March, 11).Add(-time.Second), ws.LastWeek.End)

	assert.Equal(t, day(2024, time.March, 1), ws.ThisMonth.Start)
	assert.Equal(t, ws.Yesterday.End, ws.ThisMonth.End)

	assert.Equal(t, day(2024, time.February, 1), ws.LastMonth.Start)
	assert.Equal(t, day(2024, time.March, 1).Add(-time.Second), ws.LastMonth.End)

	assert.Equal(t, day(2024, time.January, 1), ws.ThisYear.Start)
	assert.Equal(t, friday, ws.ThisYear.End)
	assert.Equal(t, day(2023, time.January, 1), ws.LastYear.Start)
	assert.Equal(t, day(2024, time.January, 1).Add(-time.Second), ws.LastYear.End)

	for _, w := range ws.Steady() {
		assert.False(t, w.Empty(), w.Name)
		assert.True(t, w.End.Before(day(2024, time.March, 15)), w.Name)
	}
}

func TestComputeWindowsIdempotent(t *testing.T) {
	assert.Equal(t, ComputeWindows(friday), ComputeWindows(friday))

	// the same instant in another zone gives the same windows
	cet := time.FixedZone("CET", 3600)
	assert.Equal(t, ComputeWindows(friday), ComputeWindows(friday.In(cet)))
}

func TestComputeWindowsFirstDays(t *testing.T) {
	t.Run("monday", func(t *testing.T) {
		ws := ComputeWindows(day(2024, time.March, 11).Add(3 * time.Hour))
		assert.True(t, ws.ThisWeek.Empty())
		assert.False(t, ws.LastWeek.Empty())
		assert.Equal(t, day(2024, time.March, 4), ws.LastWeek.Start)
		assert.False(t, ws.ThisMonth.Empty())
	})

	t.Run("first of month", func(t *testing.T) {
		ws := ComputeWindows(day(2024, time.March, 1).Add(time.Hour))
		assert.True(t, ws.ThisMonth.Empty())
		assert.Equal(t, day(2024, time.February, 29), ws.Yesterday.Start)
		assert.Equal(t, day(2024, time.February, 1), ws.LastMonth.Start)
	})

	t.Run("new year", func(t *testing.T) {
		ws := ComputeWindows(day(2025, time.January, 1).Add(time.Hour))
		assert.Equal(t, day(2024, time.December, 1), ws.LastMonth.Start)
		assert.Equal(t, day(2024, time.December, 31), ws.Yesterday.Start)
		assert.Equal(t, day(2024, time.January, 1), ws.LastYear.Start)
	})
}

func TestWindowsPeriods(t *testing.T) {
	a := ComputeWindows(friday).Periods()
	b := ComputeWindows(friday.Add(time.Hour)).Periods()
	assert.Equal(t, a, b)

	c := ComputeWindows(friday.Add(24 * time.Hour)).Periods()
	assert.False(t, a[types.WindowYesterday].Equal(c[types.WindowYesterday]))
	assert.True(t, a[types.WindowThisMonth].Equal(c[types.WindowThisMonth]))

	_, ok := ComputeWindows(friday).Get(types.WindowCustom)
	require.False(t, ok)
}
