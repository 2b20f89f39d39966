package snapshot

import (
	"sync/atomic"
	"time"

	"github.com/raterudder/leneda/pkg/types"
)

// Store publishes snapshots. Readers always see a complete snapshot.
type Store struct {
	table Table
	cur   atomic.Pointer[Snapshot]
}

// NewStore returns a store holding an empty snapshot.
func NewStore(table Table) *Store {
	s := &Store{table: table}
	s.cur.Store(Empty())
	return s
}

// Load returns the published snapshot.
func (s *Store) Load() *Snapshot {
	return s.cur.Load()
}

// Publish replaces the published snapshot, used when restoring persisted
// state.
func (s *Store) Publish(snap *Snapshot) {
	if snap == nil {
		snap = Empty()
	}
	s.cur.Store(snap)
}

// Begin returns a private copy of the published snapshot. periods gives the
// current calendar period of each named window for this cycle.
func (s *Store) Begin(now time.Time, periods map[types.WindowName]types.PeriodFingerprint) *Working {
	return &Working{
		table:   s.table,
		now:     now,
		periods: periods,
		entries: s.cur.Load().Entries(),
	}
}

// Commit publishes the working copy. The working copy must not be used
// afterwards.
func (s *Store) Commit(w *Working) *Snapshot {
	snap := &Snapshot{entries: w.entries, time: w.now}
	w.entries = nil
	s.cur.Store(snap)
	return snap
}

// Stats counts what a cycle did to the working copy.
type Stats struct {
	Updated   int
	Retained  int
	Defaulted int
	Reset     int
	Dropped   int
}

// Working is a mutable copy of a snapshot. It is not safe for concurrent use.
type Working struct {
	table   Table
	now     time.Time
	periods map[types.WindowName]types.PeriodFingerprint
	entries map[string]Entry
	stats   Stats
}

func (w *Working) period(spec KeySpec) types.PeriodFingerprint {
	if spec.Window == "" {
		return types.PeriodFingerprint{}
	}
	return w.periods[spec.Window]
}

// Set records a successful non-empty result.
func (w *Working) Set(key string, v float64, sample time.Time) {
	spec := w.table.Spec(key)
	w.entries[key] = Entry{
		Value:      &v,
		SampleTime: sample,
		UpdatedAt:  w.now,
		Period:     w.period(spec),
		Measured:   true,
	}
	w.stats.Updated++
}

// Derive records a computed value. A nil value leaves an unset key unset and
// keeps a known value within its calendar period.
func (w *Working) Derive(key string, v *float64) {
	if v != nil {
		w.Set(key, *v, time.Time{})
		return
	}
	if cur, ok := w.entries[key]; ok {
		w.keep(key, cur)
	}
}

// Empty records a successful result without data. An unset key takes its
// neutral default. A known key keeps its value unless its calendar period
// rolled over, in which case it takes the neutral default of the new period.
func (w *Working) Empty(key string) {
	w.fallback(key)
}

// Fail records a failed fetch. It follows the same rule as Empty.
func (w *Working) Fail(key string) {
	w.fallback(key)
}

func (w *Working) fallback(key string) {
	cur, ok := w.entries[key]
	if !ok {
		spec := w.table.Spec(key)
		w.entries[key] = Entry{Value: spec.Kind.neutral(), UpdatedAt: w.now, Period: w.period(spec)}
		w.stats.Defaulted++
		return
	}
	w.keep(key, cur)
}

func (w *Working) keep(key string, cur Entry) {
	spec := w.table.Spec(key)
	fp := w.period(spec)
	if spec.Window != "" && !cur.Period.Equal(fp) {
		w.entries[key] = Entry{Value: spec.Kind.neutral(), UpdatedAt: w.now, Period: fp}
		w.stats.Reset++
		return
	}
	w.stats.Retained++
}

// Drop removes key from the working copy.
func (w *Working) Drop(key string) {
	if _, ok := w.entries[key]; !ok {
		return
	}
	delete(w.entries, key)
	w.stats.Dropped++
}

// Value returns the current working value for key.
func (w *Working) Value(key string) *float64 {
	e, ok := w.entries[key]
	if !ok || e.Value == nil {
		return nil
	}
	v := *e.Value
	return &v
}

// Measured returns the working value for key only if it came from a
// successful fetch, and nil while it holds a neutral default.
func (w *Working) Measured(key string) *float64 {
	e, ok := w.entries[key]
	if !ok || !e.Measured {
		return nil
	}
	return w.Value(key)
}

// Stats returns the counters accumulated so far.
func (w *Working) Stats() Stats {
	return w.stats
}
