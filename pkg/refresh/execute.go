package refresh

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/raterudder/leneda/pkg/types"
)

// Fetcher is the metering API as the engine sees it.
type Fetcher interface {
	FetchRaw(ctx context.Context, meterID string, code types.ObisCode, w types.TimeWindow) (types.RawSeries, error)
	FetchAggregated(ctx context.Context, meterID string, code types.ObisCode, w types.TimeWindow, g types.Granularity) (types.AggregatedSeries, error)
}

// OutcomeKind classifies the result of a task.
type OutcomeKind int

const (
	OutcomeOK OutcomeKind = iota
	OutcomeEmpty
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeEmpty:
		return "empty"
	default:
		return "failed"
	}
}

// Outcome is the typed result of one task.
type Outcome struct {
	Task       Task
	Kind       OutcomeKind
	Raw        types.RawSeries
	Aggregated types.AggregatedSeries
	Err        error
}

// Execute runs every task concurrently with at most limit in flight and
// returns the outcomes keyed by task ID. A failing task never cancels the
// others.
func Execute(ctx context.Context, f Fetcher, tasks []Task, limit int) map[string]Outcome {
	results := make([]Outcome, len(tasks))
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, t := range tasks {
		g.Go(func() error {
			results[i] = runTask(ctx, f, t)
			return nil
		})
	}
	// tasks report failure through their outcome
	_ = g.Wait()

	out := make(map[string]Outcome, len(results))
	for _, o := range results {
		out[o.Task.ID] = o
	}
	return out
}

func runTask(ctx context.Context, f Fetcher, t Task) Outcome {
	o := Outcome{Task: t}
	if err := ctx.Err(); err != nil {
		o.Kind = OutcomeFailed
		o.Err = err
		return o
	}
	var empty bool
	switch t.Op {
	case OpAggregated:
		o.Aggregated, o.Err = f.FetchAggregated(ctx, t.Meter, t.Code, t.Window, t.Granularity)
		empty = o.Aggregated.Empty()
	default:
		o.Raw, o.Err = f.FetchRaw(ctx, t.Meter, t.Code, t.Window)
		empty = o.Raw.Empty()
	}
	switch {
	case o.Err != nil:
		o.Kind = OutcomeFailed
	case empty:
		o.Kind = OutcomeEmpty
	default:
		o.Kind = OutcomeOK
	}
	return o
}

// Counts tallies outcomes by kind.
type Counts struct {
	OK     int
	Empty  int
	Failed int
}

// CountOutcomes tallies outcomes by kind.
func CountOutcomes(outcomes map[string]Outcome) Counts {
	var c Counts
	for _, o := range outcomes {
		switch o.Kind {
		case OutcomeOK:
			c.OK++
		case OutcomeEmpty:
			c.Empty++
		default:
			c.Failed++
		}
	}
	return c
}
