package refresh

import (
	"fmt"

	"github.com/raterudder/leneda/pkg/meters"
	"github.com/raterudder/leneda/pkg/types"
)

// Op is the provider operation a task performs.
type Op int

const (
	OpRaw Op = iota
	OpAggregated
)

func (o Op) String() string {
	if o == OpAggregated {
		return "aggregated"
	}
	return "raw"
}

// steadyGranularity collapses a steady window server-side.
const steadyGranularity = types.GranularityInfinite

// Task is one fetch. Tasks with the same ID are the same request.
type Task struct {
	ID          string
	Op          Op
	Meter       string
	Code        types.ObisCode
	Window      types.TimeWindow
	Granularity types.Granularity
}

func newTask(op Op, meter string, code types.ObisCode, w types.TimeWindow, g types.Granularity) Task {
	id := fmt.Sprintf("%s|%s|%s|%s", op, meter, code, w.Name)
	if op == OpAggregated {
		id += "|" + string(g)
	}
	return Task{ID: id, Op: op, Meter: meter, Code: code, Window: w, Granularity: g}
}

// Reducer turns the outcomes of a binding's tasks into one value.
type Reducer int

const (
	// ReduceSum adds the totals of every task that returned data.
	ReduceSum Reducer = iota
	// ReducePeak picks the highest sample of a single raw task.
	ReducePeak
	// ReduceExceedance integrates consumption above the reference power. The
	// first task is consumption, the rest are production.
	ReduceExceedance
	// ReduceLayers adds the sharing layers that returned data.
	ReduceLayers
)

// Binding ties a snapshot key to the tasks whose outcomes produce it. A
// binding without tasks belongs to an empty window.
type Binding struct {
	Key    string
	Reduce Reducer
	Tasks  []string
}

// Derivation computes a key from two keys after the fold.
type Derivation struct {
	Key        string
	Production string
	Exported   string
}

// Plan is an inspectable fetch plan: deduplicated tasks plus the bindings
// that consume their outcomes. Drops are keys no longer produced that are
// removed from the snapshot.
type Plan struct {
	Tasks       []Task
	Bindings    []Binding
	Derivations []Derivation
	Drops       []string
}

type planner struct {
	plan Plan
	seen map[string]bool
}

func newPlanner() *planner {
	return &planner{seen: map[string]bool{}}
}

func (p *planner) task(op Op, meter string, code types.ObisCode, w types.TimeWindow, g types.Granularity) string {
	t := newTask(op, meter, code, w, g)
	if !p.seen[t.ID] {
		p.seen[t.ID] = true
		p.plan.Tasks = append(p.plan.Tasks, t)
	}
	return t.ID
}

func (p *planner) bind(key string, r Reducer, ids ...string) {
	p.plan.Bindings = append(p.plan.Bindings, Binding{Key: key, Reduce: r, Tasks: ids})
}

// sum binds key to the aggregated totals of code on every meter.
func (p *planner) sum(key string, w types.TimeWindow, code types.ObisCode, meterIDs ...string) {
	var ids []string
	if !w.Empty() {
		for _, m := range meterIDs {
			ids = append(ids, p.task(OpAggregated, m, code, w, steadyGranularity))
		}
	}
	p.bind(key, ReduceSum, ids...)
}

// layers binds key to the aggregated totals of every code on every meter.
func (p *planner) layers(key string, w types.TimeWindow, codes []types.ObisCode, meterIDs ...string) {
	var ids []string
	if !w.Empty() {
		for _, m := range meterIDs {
			for _, c := range codes {
				ids = append(ids, p.task(OpAggregated, m, c, w, steadyGranularity))
			}
		}
	}
	p.bind(key, ReduceLayers, ids...)
}

// BuildPlan returns the main fetch plan of a cycle. Exceedance tasks are only
// planned when withExceedance is set; otherwise the exceedance keys are
// dropped.
func BuildPlan(r *meters.Router, ws Windows, withExceedance bool) Plan {
	p := newPlanner()
	consumption := r.ConsumptionMeter()
	production := r.ProductionMeters()

	// representative sample of yesterday for every electricity code
	for _, info := range types.ObisCatalogue() {
		if info.Code.IsGas() {
			continue
		}
		id := p.task(OpRaw, r.MeterFor(info.Code), info.Code, ws.Yesterday, "")
		p.bind(PeakKey(info.Code), ReducePeak, id)
	}

	for _, w := range ws.Steady() {
		p.sum(ConsumptionKeys[w.Name], w, types.ObisActiveConsumption, consumption)
		p.sum(ProductionKeys[w.Name], w, types.ObisActiveProduction, production...)
		p.sum(ExportedKeys[w.Name], w, types.ObisExport, production...)
		p.plan.Derivations = append(p.plan.Derivations, Derivation{
			Key:        SelfConsumedKeys[w.Name],
			Production: ProductionKeys[w.Name],
			Exported:   ExportedKeys[w.Name],
		})
	}

	if gas, ok := r.GasMeter(); ok {
		// the provider does not aggregate gas consistently so it is summed
		// from raw samples
		gasFamilies := []struct {
			code types.ObisCode
			keys WindowKeys
		}{
			{types.ObisGasEnergy, GasEnergyKeys},
			{types.ObisGasVolume, GasVolumeKeys},
			{types.ObisGasStdVolume, GasStdVolumeKeys},
		}
		for _, f := range gasFamilies {
			for _, w := range ws.Steady() {
				var ids []string
				if !w.Empty() {
					ids = append(ids, p.task(OpRaw, gas, f.code, w, ""))
				}
				p.bind(f.keys[w.Name], ReduceSum, ids...)
			}
			p.bind(PeakKey(f.code), ReducePeak, p.task(OpRaw, gas, f.code, ws.Yesterday, ""))
		}
	}

	if withExceedance {
		for _, w := range []types.TimeWindow{ws.Yesterday, ws.ThisMonth, ws.LastMonth} {
			var ids []string
			if !w.Empty() {
				ids = append(ids, p.task(OpRaw, consumption, types.ObisActiveConsumption, w, ""))
				for _, m := range production {
					ids = append(ids, p.task(OpRaw, m, types.ObisActiveProduction, w, ""))
				}
			}
			p.bind(ExceedanceKeys[w.Name], ReduceExceedance, ids...)
		}
	} else {
		for _, w := range []types.TimeWindow{ws.Yesterday, ws.ThisMonth, ws.LastMonth} {
			p.plan.Drops = append(p.plan.Drops, ExceedanceKeys[w.Name])
		}
	}

	return p.plan
}

// BuildSharingPlan returns the energy-sharing batch: per window the four
// layers of each direction summed, plus last month's layers individually.
func BuildSharingPlan(r *meters.Router, ws Windows) Plan {
	p := newPlanner()
	consumption := r.ConsumptionMeter()
	production := r.ProductionMeters()

	for _, w := range ws.Steady() {
		p.layers(SharedWithMeKeys[w.Name], w, types.ConsumptionLayers(), consumption)
		p.layers(SharedKeys[w.Name], w, types.ProductionLayers(), production...)
	}

	last := ws.LastMonth
	for i, code := range types.ConsumptionLayers() {
		p.sum(ConsumptionLayerKeys[i], last, code, consumption)
	}
	p.sum(ConsumptionRemainder, last, types.ObisConsumptionRemaining, consumption)
	for i, code := range types.ProductionLayers() {
		p.sum(ProductionLayerKeys[i], last, code, production...)
	}
	p.sum(ProductionRemainder, last, types.ObisProductionRemaining, production...)

	return p.plan
}
