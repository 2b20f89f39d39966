package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/raterudder/leneda/pkg/log"
	"github.com/raterudder/leneda/pkg/meters"
	"github.com/raterudder/leneda/pkg/snapshot"
	"github.com/raterudder/leneda/pkg/types"
)

func init() {
	log.SetDefaultLogLevel(slog.LevelError)
}

var errBoom = errors.New("boom")

// friday is a mid-week, mid-month instant.
var friday = time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)

func fkey(meter string, code types.ObisCode, w types.WindowName) string {
	return fmt.Sprintf("%s|%s|%s", meter, code, w)
}

type fakeFetcher struct {
	mu    sync.Mutex
	raw   map[string]types.RawSeries
	agg   map[string]types.AggregatedSeries
	errs  map[string]error
	calls map[string]int
	grans map[string]types.Granularity
	delay time.Duration
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		raw:   map[string]types.RawSeries{},
		agg:   map[string]types.AggregatedSeries{},
		errs:  map[string]error{},
		calls: map[string]int{},
		grans: map[string]types.Granularity{},
	}
}

func (f *fakeFetcher) setRaw(meter string, code types.ObisCode, w types.TimeWindow, values ...float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw[fkey(meter, code, w.Name)] = rawSeries(meter, code, w.Start, values...)
}

func (f *fakeFetcher) setAgg(meter string, code types.ObisCode, w types.WindowName, values ...float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.agg[fkey(meter, code, w)] = aggSeries(values...)
}

func (f *fakeFetcher) setErr(meter string, code types.ObisCode, w types.WindowName, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, fkey(meter, code, w))
		return
	}
	f.errs[fkey(meter, code, w)] = err
}

func (f *fakeFetcher) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw = map[string]types.RawSeries{}
	f.agg = map[string]types.AggregatedSeries{}
	f.errs = map[string]error{}
}

func (f *fakeFetcher) count(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[prefix]
}

func (f *fakeFetcher) wait(ctx context.Context) error {
	if f.delay == 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(f.delay):
		return nil
	}
}

func (f *fakeFetcher) FetchRaw(ctx context.Context, meterID string, code types.ObisCode, w types.TimeWindow) (types.RawSeries, error) {
	if err := f.wait(ctx); err != nil {
		return types.RawSeries{}, err
	}
	k := fkey(meterID, code, w.Name)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["raw|"+k]++
	f.calls["raw"]++
	if err := f.errs[k]; err != nil {
		return types.RawSeries{}, err
	}
	return f.raw[k], nil
}

func (f *fakeFetcher) FetchAggregated(ctx context.Context, meterID string, code types.ObisCode, w types.TimeWindow, g types.Granularity) (types.AggregatedSeries, error) {
	if err := f.wait(ctx); err != nil {
		return types.AggregatedSeries{}, err
	}
	k := fkey(meterID, code, w.Name)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["agg|"+k]++
	f.calls["agg"]++
	f.grans[k] = g
	if err := f.errs[k]; err != nil {
		return types.AggregatedSeries{}, err
	}
	return f.agg[k], nil
}

func rawSeries(meter string, code types.ObisCode, start time.Time, values ...float64) types.RawSeries {
	s := types.RawSeries{
		MeteringPoint:  meter,
		Code:           code,
		IntervalLength: "PT15M",
		Unit:           code.Unit(),
	}
	for i, v := range values {
		s.Items = append(s.Items, types.RawItem{
			Value:     types.Float(v),
			StartedAt: start.Add(time.Duration(i) * 15 * time.Minute),
			Type:      "Actual",
		})
	}
	return s
}

func aggSeries(values ...float64) types.AggregatedSeries {
	s := types.AggregatedSeries{Unit: types.UnitKWh}
	for _, v := range values {
		s.Items = append(s.Items, types.AggregatedItem{Value: types.Float(v)})
	}
	return s
}

func mustRouter(ms ...types.MeterConfig) *meters.Router {
	r, err := meters.NewRouter(ms)
	if err != nil {
		panic(err)
	}
	return r
}

func singleRouter() *meters.Router {
	return mustRouter(types.NewMeterConfig("LU0001", types.RoleConsumption, types.RoleProduction))
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memPersister struct {
	mu    sync.Mutex
	snaps map[string]*snapshot.Snapshot
	saves int
}

func (m *memPersister) SaveSnapshot(_ context.Context, groupID string, snap *snapshot.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snaps == nil {
		m.snaps = map[string]*snapshot.Snapshot{}
	}
	m.snaps[groupID] = snap
	m.saves++
	return nil
}

func (m *memPersister) LoadSnapshot(_ context.Context, groupID string) (*snapshot.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snaps[groupID], nil
}
