package refresh

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/raterudder/leneda/pkg/calc"
	"github.com/raterudder/leneda/pkg/leneda"
	"github.com/raterudder/leneda/pkg/log"
	"github.com/raterudder/leneda/pkg/snapshot"
	"github.com/raterudder/leneda/pkg/types"
)

var errMissingOutcome = errors.New("no outcome for task")

// result is what a reducer produced for one key.
type result struct {
	kind   OutcomeKind
	value  float64
	sample time.Time
	err    error
}

func okResult(v float64, sample time.Time) result {
	return result{kind: OutcomeOK, value: v, sample: sample}
}

// reduce applies a binding's reducer to its outcomes. referenceKW is only used
// by exceedance bindings.
func reduce(b Binding, outcomes map[string]Outcome, referenceKW float64) result {
	if len(b.Tasks) == 0 {
		return result{kind: OutcomeEmpty}
	}
	outs := make([]Outcome, len(b.Tasks))
	for i, id := range b.Tasks {
		o, ok := outcomes[id]
		if !ok {
			o = Outcome{Kind: OutcomeFailed, Err: errMissingOutcome}
		}
		outs[i] = o
	}
	switch b.Reduce {
	case ReducePeak:
		return reducePeak(outs[0])
	case ReduceExceedance:
		return reduceExceedance(outs[0], outs[1:], referenceKW)
	case ReduceLayers:
		return reduceLayers(outs)
	default:
		return reduceSum(outs)
	}
}

// reduceSum adds every outcome with data. Failed outcomes are left out of the
// sum; only when nothing had data does a failure decide the result.
func reduceSum(outs []Outcome) result {
	var (
		sum    float64
		have   bool
		failed error
	)
	for _, o := range outs {
		switch o.Kind {
		case OutcomeOK:
			var v float64
			var ok bool
			if o.Task.Op == OpAggregated {
				v, ok = calc.SumAggregated(o.Aggregated, o.Task.Granularity)
			} else {
				v, ok = calc.SumRaw(o.Raw)
			}
			if ok {
				sum += v
				have = true
			}
		case OutcomeFailed:
			if failed == nil {
				failed = o.Err
			}
		}
	}
	switch {
	case have:
		return okResult(calc.Round(sum, 4), time.Time{})
	case failed != nil:
		return result{kind: OutcomeFailed, err: failed}
	default:
		return result{kind: OutcomeEmpty}
	}
}

// reduceLayers adds the known layers; a layer without data counts as zero.
func reduceLayers(outs []Outcome) result {
	layers := make([]*float64, len(outs))
	var failed error
	for i, o := range outs {
		switch o.Kind {
		case OutcomeOK:
			if v, ok := calc.SumAggregated(o.Aggregated, o.Task.Granularity); ok {
				layers[i] = &v
			}
		case OutcomeFailed:
			if failed == nil {
				failed = o.Err
			}
		}
	}
	if sum, ok := calc.SumLayers(layers); ok {
		return okResult(calc.Round(sum, 4), time.Time{})
	}
	if failed != nil {
		return result{kind: OutcomeFailed, err: failed}
	}
	return result{kind: OutcomeEmpty}
}

func reducePeak(o Outcome) result {
	switch o.Kind {
	case OutcomeFailed:
		return result{kind: OutcomeFailed, err: o.Err}
	case OutcomeEmpty:
		return result{kind: OutcomeEmpty}
	}
	peak, ok := calc.Peak(o.Raw)
	if !ok {
		return result{kind: OutcomeEmpty}
	}
	return okResult(*peak.Value, peak.StartedAt)
}

func reduceExceedance(consumption Outcome, production []Outcome, referenceKW float64) result {
	switch consumption.Kind {
	case OutcomeFailed:
		return result{kind: OutcomeFailed, err: consumption.Err}
	case OutcomeEmpty:
		return result{kind: OutcomeEmpty}
	}
	// without every production series the net consumption is unknown
	var series [][]types.RawItem
	for _, o := range production {
		switch o.Kind {
		case OutcomeFailed:
			return result{kind: OutcomeFailed, err: o.Err}
		case OutcomeOK:
			series = append(series, o.Raw.Items)
		}
	}
	return okResult(calc.Exceedance(referenceKW, consumption.Raw.Items, calc.MergeByTimestamp(series...)), time.Time{})
}

// Fold applies every binding of the plan to the working copy following the
// snapshot merge rule, then runs the derivations. A derivation only uses
// measured operands, never a neutral default.
func Fold(ctx context.Context, p Plan, outcomes map[string]Outcome, w *snapshot.Working, referenceKW float64) {
	for _, b := range p.Bindings {
		res := reduce(b, outcomes, referenceKW)
		switch res.kind {
		case OutcomeOK:
			w.Set(b.Key, res.value, res.sample)
		case OutcomeEmpty:
			log.Ctx(ctx).DebugContext(ctx, "no data for key", slog.String("key", b.Key))
			w.Empty(b.Key)
		default:
			if leneda.IsAuth(res.err) {
				log.Ctx(ctx).ErrorContext(ctx, "leneda rejected credentials, keeping previous value", slog.String("key", b.Key))
			} else {
				log.Ctx(ctx).WarnContext(ctx, "fetch failed, keeping previous value", slog.String("key", b.Key), slog.Any("error", res.err))
			}
			w.Fail(b.Key)
		}
	}
	for _, d := range p.Derivations {
		w.Derive(d.Key, calc.SelfConsumption(w.Measured(d.Production), w.Measured(d.Exported)))
	}
	for _, key := range p.Drops {
		w.Drop(key)
	}
}
