package types

import "time"

// WindowName identifies a named time range.
type WindowName string

const (
	WindowYesterday WindowName = "yesterday"
	WindowThisWeek  WindowName = "this_week"
	WindowLastWeek  WindowName = "last_week"
	WindowThisMonth WindowName = "this_month"
	WindowLastMonth WindowName = "last_month"
	WindowThisYear  WindowName = "this_year"
	WindowLastYear  WindowName = "last_year"
	WindowCustom    WindowName = "custom"
)

// PeriodKind is the calendar unit a window belongs to.
type PeriodKind int

const (
	PeriodNone PeriodKind = iota
	PeriodDay
	PeriodWeek
	PeriodMonth
	PeriodYear
)

func (k PeriodKind) String() string {
	switch k {
	case PeriodDay:
		return "day"
	case PeriodWeek:
		return "week"
	case PeriodMonth:
		return "month"
	case PeriodYear:
		return "year"
	default:
		return "none"
	}
}

// PeriodFingerprint identifies the calendar period a value was computed for.
// Two fingerprints are equal when they name the same kind of period starting
// at the same instant.
type PeriodFingerprint struct {
	Kind  PeriodKind `json:"kind"`
	Start time.Time  `json:"start"`
}

// IsZero reports whether the fingerprint names no period.
func (f PeriodFingerprint) IsZero() bool {
	return f.Kind == PeriodNone && f.Start.IsZero()
}

// Equal compares fingerprints structurally.
func (f PeriodFingerprint) Equal(o PeriodFingerprint) bool {
	return f.Kind == o.Kind && f.Start.Equal(o.Start)
}

// TimeWindow is a closed [Start, End] range in UTC.
type TimeWindow struct {
	Name   WindowName `json:"name"`
	Start  time.Time  `json:"start"`
	End    time.Time  `json:"end"`
	Period PeriodKind `json:"-"`
}

// Empty reports whether the window contains no instants, which happens for
// to-date windows on the first day of their period.
func (w TimeWindow) Empty() bool {
	return w.End.Before(w.Start)
}

// Duration returns the length of the window.
func (w TimeWindow) Duration() time.Duration {
	if w.Empty() {
		return 0
	}
	return w.End.Sub(w.Start)
}

// Fingerprint returns the calendar period identity of the window.
func (w TimeWindow) Fingerprint() PeriodFingerprint {
	return PeriodFingerprint{Kind: w.Period, Start: w.Start}
}
