package types

import "time"

// Granularity is the provider-side aggregation level.
type Granularity string

const (
	GranularityHour     Granularity = "Hour"
	GranularityDay      Granularity = "Day"
	GranularityWeek     Granularity = "Week"
	GranularityMonth    Granularity = "Month"
	GranularityInfinite Granularity = "Infinite"
)

// Valid reports whether the provider accepts the granularity.
func (g Granularity) Valid() bool {
	switch g {
	case GranularityHour, GranularityDay, GranularityWeek, GranularityMonth, GranularityInfinite:
		return true
	}
	return false
}

// RawItem is a single native-resolution sample. Value is nil when the
// provider returned something that is not a number.
type RawItem struct {
	Value      *float64  `json:"value"`
	StartedAt  time.Time `json:"startedAt"`
	Type       string    `json:"type,omitempty"`
	Version    int       `json:"version,omitempty"`
	Calculated bool      `json:"calculated,omitempty"`
}

// RawSeries is the result of a time-series fetch.
type RawSeries struct {
	MeteringPoint  string    `json:"meteringPointCode"`
	Code           ObisCode  `json:"obisCode"`
	IntervalLength string    `json:"intervalLength"`
	Unit           string    `json:"unit"`
	Items          []RawItem `json:"items"`
}

// Empty reports whether the series carries no data. A response without an
// identity means the meter does not support the code.
func (s RawSeries) Empty() bool {
	if s.MeteringPoint == "" && s.Code == "" {
		return true
	}
	return len(s.Items) == 0
}

// AggregatedItem is one provider-side sub-sum.
type AggregatedItem struct {
	Value     *float64  `json:"value"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt"`
}

// AggregatedSeries is the result of an aggregated fetch.
type AggregatedSeries struct {
	Unit  string           `json:"unit"`
	Items []AggregatedItem `json:"aggregatedTimeSeries"`
}

// Empty reports whether the series carries no numeric sub-sum.
func (s AggregatedSeries) Empty() bool {
	for _, it := range s.Items {
		if it.Value != nil {
			return false
		}
	}
	return true
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// DataAccessRequest asks the provider to grant another energy id access to
// metering data.
type DataAccessRequest struct {
	FromEnergyID       string   `json:"from_energy_id"`
	FromName           string   `json:"from_name"`
	MeteringPointCodes []string `json:"metering_point_codes"`
	ObisCodes          []string `json:"obis_codes"`
}
