// Package snapshot holds the derived metrics published to readers. A
// published Snapshot is never mutated; a refresh cycle edits a Working copy
// and replaces the published snapshot in one step.
package snapshot

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/raterudder/leneda/pkg/types"
)

// Entry is the state of one key.
type Entry struct {
	// Value is nil for instantaneous keys that have never seen a sample.
	Value *float64 `json:"value"`
	// SampleTime is the start of the sample chosen as representative value
	// for keys derived from raw series.
	SampleTime time.Time `json:"sampleTime,omitzero"`
	// UpdatedAt is when the value was last written.
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
	// Period is the calendar period the value belongs to.
	Period types.PeriodFingerprint `json:"period,omitzero"`
	// Measured is false while Value is a neutral default.
	Measured bool `json:"measured,omitempty"`
}

func (e Entry) clone() Entry {
	if e.Value != nil {
		v := *e.Value
		e.Value = &v
	}
	return e
}

// Snapshot is an immutable key to value mapping.
type Snapshot struct {
	entries map[string]Entry
	time    time.Time
}

// Empty returns a snapshot without keys.
func Empty() *Snapshot {
	return &Snapshot{entries: map[string]Entry{}}
}

// New returns a snapshot holding a copy of entries.
func New(at time.Time, entries map[string]Entry) *Snapshot {
	s := &Snapshot{entries: make(map[string]Entry, len(entries)), time: at}
	for k, e := range entries {
		s.entries[k] = e.clone()
	}
	return s
}

// Time returns when the snapshot was committed. It is zero for a snapshot
// that was never committed.
func (s *Snapshot) Time() time.Time {
	return s.time
}

// Len returns the number of keys.
func (s *Snapshot) Len() int {
	return len(s.entries)
}

// Get returns a copy of the entry for key.
func (s *Snapshot) Get(key string) (Entry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return Entry{}, false
	}
	return e.clone(), true
}

// Value returns a copy of the value for key, or nil when unset or null.
func (s *Snapshot) Value(key string) *float64 {
	e, _ := s.Get(key)
	return e.Value
}

// Float returns the value for key or 0 when it is unset or null.
func (s *Snapshot) Float(key string) float64 {
	if v := s.Value(key); v != nil {
		return *v
	}
	return 0
}

// Keys returns every key in sorted order.
func (s *Snapshot) Keys() []string {
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Entries returns a copy of every entry.
func (s *Snapshot) Entries() map[string]Entry {
	out := make(map[string]Entry, len(s.entries))
	for k, e := range s.entries {
		out[k] = e.clone()
	}
	return out
}

type snapshotJSON struct {
	Time    time.Time        `json:"time"`
	Entries map[string]Entry `json:"entries"`
}

// MarshalJSON implements json.Marshaler
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(snapshotJSON{Time: s.time, Entries: s.entries})
}

// UnmarshalJSON implements json.Unmarshaler
func (s *Snapshot) UnmarshalJSON(b []byte) error {
	var raw snapshotJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw.Entries == nil {
		raw.Entries = map[string]Entry{}
	}
	s.time = raw.Time
	s.entries = raw.Entries
	return nil
}
