package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/raterudder/leneda/pkg/calc"
	"github.com/raterudder/leneda/pkg/log"
	"github.com/raterudder/leneda/pkg/types"
)

// ErrUnknownRange is returned for a range name that is not served.
var ErrUnknownRange = errors.New("unknown range")

// liveMonthThreshold is the window length above which live fetches are
// aggregated by month instead of collapsed into one value.
const liveMonthThreshold = 35 * 24 * time.Hour

// defaultLiveReferenceKW is used for live exceedance when no reference power
// is configured.
const defaultLiveReferenceKW = 5.0

// RangeTotals are the dashboard totals of one window.
type RangeTotals struct {
	Range         types.WindowName `json:"range"`
	MeteringPoint string           `json:"metering_point"`
	Start         time.Time        `json:"start"`
	End           time.Time        `json:"end"`
	Consumption   float64          `json:"consumption"`
	Production    float64          `json:"production"`
	Exported      float64          `json:"exported"`
	SelfConsumed  float64          `json:"self_consumed"`
	Shared        float64          `json:"shared"`
	SharedWithMe  float64          `json:"shared_with_me"`
	GasEnergy     float64          `json:"gas_energy"`
	GasVolume     float64          `json:"gas_volume"`
	PeakPowerKW   float64          `json:"peak_power_kw"`
	ExceedanceKWh float64          `json:"exceedance_kwh"`
}

// IsLiveRange reports whether a named range is fetched live instead of read
// from the snapshot.
func IsLiveRange(name types.WindowName) bool {
	return name == types.WindowThisYear || name == types.WindowLastYear
}

// Range returns the totals of a named window. Steady windows are served from
// the snapshot; this_year and last_year are fetched live.
func (e *Engine) Range(ctx context.Context, name types.WindowName) (RangeTotals, error) {
	ws := e.Windows()
	w, ok := ws.Get(name)
	if !ok {
		return RangeTotals{}, fmt.Errorf("%w: %q", ErrUnknownRange, name)
	}
	if IsLiveRange(name) {
		return e.LiveRange(ctx, w)
	}

	snap := e.Snapshot()
	rt := RangeTotals{
		Range:         name,
		MeteringPoint: e.router.Primary(),
		Start:         w.Start,
		End:           w.End,
		Consumption:   snap.Float(ConsumptionKeys[name]),
		Production:    snap.Float(ProductionKeys[name]),
		Exported:      snap.Float(ExportedKeys[name]),
		SelfConsumed:  snap.Float(SelfConsumedKeys[name]),
		Shared:        snap.Float(SharedKeys[name]),
		SharedWithMe:  snap.Float(SharedWithMeKeys[name]),
		GasEnergy:     snap.Float(GasEnergyKeys[name]),
		GasVolume:     snap.Float(GasVolumeKeys[name]),
		PeakPowerKW:   snap.Float(PeakKey(types.ObisActiveConsumption)),
	}
	if key, ok := ExceedanceKeys[name]; ok {
		rt.ExceedanceKWh = snap.Float(key)
	}
	return rt, nil
}

func liveGranularity(w types.TimeWindow) types.Granularity {
	if w.Duration() > liveMonthThreshold {
		return types.GranularityMonth
	}
	return types.GranularityInfinite
}

// LiveRange fetches the totals of an arbitrary window directly from the
// provider, bypassing the snapshot. Only a failed consumption fetch fails the
// call; other parts count as zero when they fail.
func (e *Engine) LiveRange(ctx context.Context, w types.TimeWindow) (RangeTotals, error) {
	if w.Name == "" {
		w.Name = types.WindowCustom
	}
	rt := RangeTotals{
		Range:         w.Name,
		MeteringPoint: e.router.Primary(),
		Start:         w.Start,
		End:           w.End,
	}
	if w.Empty() {
		return rt, nil
	}

	g := liveGranularity(w)
	consumption := e.router.ConsumptionMeter()
	production := e.router.ProductionMeters()

	p := newPlanner()
	consumptionID := p.task(OpAggregated, consumption, types.ObisActiveConsumption, w, g)
	rawID := p.task(OpRaw, consumption, types.ObisActiveConsumption, w, "")
	var productionIDs, exportIDs, sharedIDs []string
	for _, m := range production {
		productionIDs = append(productionIDs, p.task(OpAggregated, m, types.ObisActiveProduction, w, g))
		exportIDs = append(exportIDs, p.task(OpAggregated, m, types.ObisExport, w, g))
		for _, c := range types.ProductionLayers() {
			sharedIDs = append(sharedIDs, p.task(OpAggregated, m, c, w, g))
		}
	}
	var receivedIDs []string
	for _, c := range types.ConsumptionLayers() {
		receivedIDs = append(receivedIDs, p.task(OpAggregated, consumption, c, w, g))
	}

	outcomes := Execute(ctx, e.fetcher, p.plan.Tasks, e.concurrency)

	c := outcomes[consumptionID]
	if c.Kind == OutcomeFailed {
		return RangeTotals{}, fmt.Errorf("failed to fetch consumption: %w", c.Err)
	}
	rt.Consumption, _ = calc.SumAggregated(c.Aggregated, g)

	sum := func(ids []string) float64 {
		var total float64
		for _, id := range ids {
			o := outcomes[id]
			if o.Kind == OutcomeFailed {
				log.Ctx(ctx).WarnContext(ctx, "live fetch failed, counting as zero",
					slog.String("meter", o.Task.Meter),
					slog.String("obis", string(o.Task.Code)),
					slog.Any("error", o.Err),
				)
				continue
			}
			if v, ok := calc.SumAggregated(o.Aggregated, g); ok {
				total += v
			}
		}
		return calc.Round(total, 4)
	}
	rt.Production = sum(productionIDs)
	rt.Exported = sum(exportIDs)
	rt.Shared = sum(sharedIDs)
	rt.SharedWithMe = sum(receivedIDs)
	rt.SelfConsumed = calc.Round(math.Max(0, rt.Production-rt.Exported), 4)

	if raw := outcomes[rawID]; raw.Kind == OutcomeOK {
		if peak, ok := calc.Peak(raw.Raw); ok {
			rt.PeakPowerKW = calc.Round(*peak.Value, 2)
		}
		kw, ok, _ := e.referenceKW(ctx)
		if !ok {
			kw = defaultLiveReferenceKW
		}
		rt.ExceedanceKWh = calc.Exceedance(kw, raw.Raw.Items, nil)
	}
	return rt, nil
}

// Timeseries is a raw series prepared for charting.
type Timeseries struct {
	Obis     types.ObisCode  `json:"obis"`
	Unit     string          `json:"unit"`
	Interval string          `json:"interval"`
	Items    []types.RawItem `json:"items"`
}

// MeterTimeseries is the raw series of one meter.
type MeterTimeseries struct {
	MeterID  string          `json:"meter_id"`
	Unit     string          `json:"unit"`
	Interval string          `json:"interval"`
	Items    []types.RawItem `json:"items"`
}

func newMeterTimeseries(meterID string, code types.ObisCode, s types.RawSeries) MeterTimeseries {
	mt := MeterTimeseries{
		MeterID:  meterID,
		Unit:     s.Unit,
		Interval: s.IntervalLength,
		Items:    s.Items,
	}
	if mt.Unit == "" {
		mt.Unit = code.Unit()
	}
	if mt.Interval == "" {
		mt.Interval = "PT15M"
	}
	if mt.Items == nil {
		mt.Items = []types.RawItem{}
	}
	return mt
}

// Timeseries fetches the raw series of code over w. Production codes with
// several production meters are summed across meters by timestamp.
func (e *Engine) Timeseries(ctx context.Context, code types.ObisCode, w types.TimeWindow) (Timeseries, error) {
	production := e.router.ProductionMeters()
	if code.IsProduction() && len(production) > 1 {
		per, err := e.PerMeterTimeseries(ctx, code, w)
		if err != nil {
			return Timeseries{}, err
		}
		ts := Timeseries{Obis: code, Unit: code.Unit(), Interval: "PT15M"}
		series := make([][]types.RawItem, 0, len(per))
		for _, mt := range per {
			ts.Unit = mt.Unit
			ts.Interval = mt.Interval
			series = append(series, mt.Items)
		}
		ts.Items = calc.MergeByTimestamp(series...)
		return ts, nil
	}

	meterID := e.router.MeterFor(code)
	s, err := e.fetcher.FetchRaw(ctx, meterID, code, w)
	if err != nil {
		return Timeseries{}, fmt.Errorf("failed to fetch %s: %w", code, err)
	}
	mt := newMeterTimeseries(meterID, code, s)
	return Timeseries{Obis: code, Unit: mt.Unit, Interval: mt.Interval, Items: mt.Items}, nil
}

// PerMeterTimeseries fetches the raw series of code over w from every
// production meter. A meter that fails contributes an empty series; the call
// fails only if every meter failed.
func (e *Engine) PerMeterTimeseries(ctx context.Context, code types.ObisCode, w types.TimeWindow) ([]MeterTimeseries, error) {
	production := e.router.ProductionMeters()
	p := newPlanner()
	ids := make([]string, len(production))
	for i, m := range production {
		ids[i] = p.task(OpRaw, m, code, w, "")
	}
	outcomes := Execute(ctx, e.fetcher, p.plan.Tasks, e.concurrency)

	out := make([]MeterTimeseries, 0, len(production))
	var firstErr error
	failed := 0
	for i, m := range production {
		o := outcomes[ids[i]]
		if o.Kind == OutcomeFailed {
			log.Ctx(ctx).ErrorContext(ctx, "failed to fetch meter timeseries",
				slog.String("meter", m),
				slog.String("obis", string(code)),
				slog.Any("error", o.Err),
			)
			failed++
			if firstErr == nil {
				firstErr = o.Err
			}
		}
		out = append(out, newMeterTimeseries(m, code, o.Raw))
	}
	if failed == len(production) && firstErr != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", code, firstErr)
	}
	return out, nil
}
