// Package calc derives metrics from fetched series. Every function is pure.
package calc

import (
	"math"
	"sort"
	"time"

	"github.com/raterudder/leneda/pkg/types"
)

// SampleHours is the length of one native sample in hours. Exceedance
// integrates kW samples into kWh with it.
const SampleHours = 0.25

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

// SumAggregated returns the window total of an aggregated series. All
// sub-sums are added except for hourly aggregation, where only the most
// recent sub-sum counts. ok is false when the series has no numeric value.
func SumAggregated(s types.AggregatedSeries, g types.Granularity) (float64, bool) {
	if g == types.GranularityHour {
		for i := len(s.Items) - 1; i >= 0; i-- {
			if v := s.Items[i].Value; v != nil {
				return *v, true
			}
		}
		return 0, false
	}
	var sum float64
	var ok bool
	for _, it := range s.Items {
		if it.Value == nil {
			continue
		}
		sum += *it.Value
		ok = true
	}
	return sum, ok
}

// SumRaw adds every numeric sample and rounds to 4 places. ok is false when
// there is nothing to add.
func SumRaw(s types.RawSeries) (float64, bool) {
	if s.Empty() {
		return 0, false
	}
	var sum float64
	var ok bool
	for _, it := range s.Items {
		if it.Value == nil {
			continue
		}
		sum += *it.Value
		ok = true
	}
	return Round(sum, 4), ok
}

// Peak returns the sample with the highest value. The earliest sample wins
// ties.
func Peak(s types.RawSeries) (types.RawItem, bool) {
	var best types.RawItem
	var ok bool
	for _, it := range s.Items {
		if it.Value == nil {
			continue
		}
		if !ok || *it.Value > *best.Value {
			best = it
			ok = true
		}
	}
	return best, ok
}

// SelfConsumption returns production minus export rounded to 4 places, or nil
// unless both are known.
func SelfConsumption(production, exported *float64) *float64 {
	if production == nil || exported == nil {
		return nil
	}
	v := Round(*production-*exported, 4)
	return &v
}

// Exceedance returns the energy in kWh drawn above referenceKW. For every
// consumption sample the concurrent production is subtracted, missing
// production counts as zero, and the positive excess over the reference is
// integrated over one sample. Consumption samples that are not numbers are
// skipped.
func Exceedance(referenceKW float64, consumption, production []types.RawItem) float64 {
	prod := make(map[int64]float64, len(production))
	for _, it := range production {
		if it.Value != nil {
			prod[it.StartedAt.UnixNano()] += *it.Value
		}
	}

	var total float64
	for _, it := range consumption {
		if it.Value == nil || math.IsNaN(*it.Value) {
			continue
		}
		net := math.Max(0, *it.Value-prod[it.StartedAt.UnixNano()])
		if net > referenceKW {
			total += (net - referenceKW) * SampleHours
		}
	}
	return Round(total, 4)
}

// SumLayers adds the layer totals that are known. ok is false only when no
// layer is known.
func SumLayers(layers []*float64) (float64, bool) {
	var sum float64
	var ok bool
	for _, v := range layers {
		if v == nil {
			continue
		}
		sum += *v
		ok = true
	}
	return sum, ok
}

// MergeByTimestamp sums several raw series sample-by-sample keyed on the
// sample start. The result is sorted by time. Non-numeric samples do not
// contribute but still create their timestamp.
func MergeByTimestamp(series ...[]types.RawItem) []types.RawItem {
	type slot struct {
		at  time.Time
		sum float64
		ok  bool
	}
	slots := make(map[int64]*slot)
	for _, items := range series {
		for _, it := range items {
			k := it.StartedAt.UnixNano()
			s, found := slots[k]
			if !found {
				s = &slot{at: it.StartedAt}
				slots[k] = s
			}
			if it.Value != nil {
				s.sum += *it.Value
				s.ok = true
			}
		}
	}

	out := make([]types.RawItem, 0, len(slots))
	for _, s := range slots {
		item := types.RawItem{StartedAt: s.at}
		if s.ok {
			item.Value = types.Float(Round(s.sum, 4))
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}
