package snapshot

import "github.com/raterudder/leneda/pkg/types"

// ValueKind decides the neutral default of a key.
type ValueKind int

const (
	// Cumulative keys hold energy totals and default to 0.0.
	Cumulative ValueKind = iota
	// Instant keys hold a representative sample and default to null.
	Instant
)

func (k ValueKind) neutral() *float64 {
	if k == Cumulative {
		return types.Float(0)
	}
	return nil
}

// KeySpec describes one key. Window is the named window whose calendar
// period the key belongs to; an empty Window means the key never rolls over.
type KeySpec struct {
	Kind   ValueKind
	Window types.WindowName
}

// Table maps every known key to its spec.
type Table map[string]KeySpec

// Spec returns the spec for key. Unknown keys are instantaneous and never
// roll over.
func (t Table) Spec(key string) KeySpec {
	if s, ok := t[key]; ok {
		return s
	}
	return KeySpec{Kind: Instant}
}
