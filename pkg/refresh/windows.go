package refresh

import (
	"time"

	"github.com/raterudder/leneda/pkg/types"
)

// SteadyWindows are the windows served from the snapshot, in display order.
var SteadyWindows = []types.WindowName{
	types.WindowYesterday,
	types.WindowThisWeek,
	types.WindowLastWeek,
	types.WindowThisMonth,
	types.WindowLastMonth,
}

// Windows holds every named window of one cycle. It is computed once from a
// single reading of the clock so that all fetches in the cycle agree.
type Windows struct {
	Now       time.Time
	Yesterday types.TimeWindow
	ThisWeek  types.TimeWindow
	LastWeek  types.TimeWindow
	ThisMonth types.TimeWindow
	LastMonth types.TimeWindow
	ThisYear  types.TimeWindow
	LastYear  types.TimeWindow
}

// ComputeWindows returns the windows for now, evaluated in UTC. To-date
// windows end at the end of yesterday since the provider publishes with a
// delay; on the first day of a week or month they are empty.
func ComputeWindows(now time.Time) Windows {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	endOfYesterday := today.Add(-time.Second)

	weekStart := today.AddDate(0, 0, -((int(today.Weekday()) + 6) % 7))
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	yearStart := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)

	return Windows{
		Now: now,
		Yesterday: types.TimeWindow{
			Name:   types.WindowYesterday,
			Start:  today.AddDate(0, 0, -1),
			End:    endOfYesterday,
			Period: types.PeriodDay,
		},
		ThisWeek: types.TimeWindow{
			Name:   types.WindowThisWeek,
			Start:  weekStart,
			End:    endOfYesterday,
			Period: types.PeriodWeek,
		},
		LastWeek: types.TimeWindow{
			Name:   types.WindowLastWeek,
			Start:  weekStart.AddDate(0, 0, -7),
			End:    weekStart.Add(-time.Second),
			Period: types.PeriodWeek,
		},
		ThisMonth: types.TimeWindow{
			Name:   types.WindowThisMonth,
			Start:  monthStart,
			End:    endOfYesterday,
			Period: types.PeriodMonth,
		},
		LastMonth: types.TimeWindow{
			Name:   types.WindowLastMonth,
			Start:  monthStart.AddDate(0, -1, 0),
			End:    monthStart.Add(-time.Second),
			Period: types.PeriodMonth,
		},
		ThisYear: types.TimeWindow{
			Name:   types.WindowThisYear,
			Start:  yearStart,
			End:    now,
			Period: types.PeriodYear,
		},
		LastYear: types.TimeWindow{
			Name:   types.WindowLastYear,
			Start:  yearStart.AddDate(-1, 0, 0),
			End:    yearStart.Add(-time.Second),
			Period: types.PeriodYear,
		},
	}
}

// Get returns the window with the given name.
func (w Windows) Get(name types.WindowName) (types.TimeWindow, bool) {
	switch name {
	case types.WindowYesterday:
		return w.Yesterday, true
	case types.WindowThisWeek:
		return w.ThisWeek, true
	case types.WindowLastWeek:
		return w.LastWeek, true
	case types.WindowThisMonth:
		return w.ThisMonth, true
	case types.WindowLastMonth:
		return w.LastMonth, true
	case types.WindowThisYear:
		return w.ThisYear, true
	case types.WindowLastYear:
		return w.LastYear, true
	}
	return types.TimeWindow{}, false
}

// Steady returns the snapshot windows in display order.
func (w Windows) Steady() []types.TimeWindow {
	out := make([]types.TimeWindow, 0, len(SteadyWindows))
	for _, name := range SteadyWindows {
		tw, _ := w.Get(name)
		out = append(out, tw)
	}
	return out
}

// Periods returns the calendar period of every steady window.
func (w Windows) Periods() map[types.WindowName]types.PeriodFingerprint {
	out := make(map[types.WindowName]types.PeriodFingerprint, len(SteadyWindows))
	for _, tw := range w.Steady() {
		out[tw.Name] = tw.Fingerprint()
	}
	return out
}
