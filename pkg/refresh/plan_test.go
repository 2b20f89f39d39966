package refresh

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raterudder/leneda/pkg/types"
)

func bindingFor(p Plan, key string) (Binding, bool) {
	for _, b := range p.Bindings {
		if b.Key == key {
			return b, true
		}
	}
	return Binding{}, false
}

func TestBuildPlanSingleMeter(t *testing.T) {
	ws := ComputeWindows(friday)

	p := BuildPlan(singleRouter(), ws, false)
	// 14 raw yesterday peaks plus 3 aggregated codes over 5 windows
	assert.Len(t, p.Tasks, 29)
	assert.Len(t, p.Bindings, 29)
	assert.Len(t, p.Derivations, 5)

	ids := map[string]bool{}
	for _, task := range p.Tasks {
		require.False(t, ids[task.ID], "duplicate task %s", task.ID)
		ids[task.ID] = true
		assert.False(t, task.Code.IsGas())
		if task.Op == OpAggregated {
			assert.Equal(t, types.GranularityInfinite, task.Granularity)
		}
	}

	b, ok := bindingFor(p, ConsumptionKeys[types.WindowThisMonth])
	require.True(t, ok)
	assert.Equal(t, ReduceSum, b.Reduce)
	assert.Equal(t, []string{"aggregated|LU0001|1-1:1.29.0|this_month|Infinite"}, b.Tasks)

	_, ok = bindingFor(p, ExceedanceKeys[types.WindowYesterday])
	assert.False(t, ok)
	assert.ElementsMatch(t, []string{
		ExceedanceKeys[types.WindowYesterday],
		ExceedanceKeys[types.WindowThisMonth],
		ExceedanceKeys[types.WindowLastMonth],
	}, p.Drops)
}

func TestBuildPlanExceedanceDedup(t *testing.T) {
	ws := ComputeWindows(friday)
	p := BuildPlan(singleRouter(), ws, true)

	// yesterday's raw consumption and production are shared with the peaks
	assert.Len(t, p.Tasks, 33)
	assert.Empty(t, p.Drops)
	for _, w := range []types.WindowName{types.WindowYesterday, types.WindowThisMonth, types.WindowLastMonth} {
		b, ok := bindingFor(p, ExceedanceKeys[w])
		require.True(t, ok, w)
		assert.Equal(t, ReduceExceedance, b.Reduce)
		assert.Len(t, b.Tasks, 2)
	}

	peak, _ := bindingFor(p, PeakKey(types.ObisActiveConsumption))
	yesterday, _ := bindingFor(p, ExceedanceKeys[types.WindowYesterday])
	assert.Equal(t, peak.Tasks[0], yesterday.Tasks[0])
}

func TestBuildPlanMultiMeter(t *testing.T) {
	r := mustRouter(
		types.NewMeterConfig("LU-C", types.RoleConsumption),
		types.NewMeterConfig("LU-P1", types.RoleProduction),
		types.NewMeterConfig("LU-P2", types.RoleProduction),
		types.NewMeterConfig("LU-G", types.RoleGas),
	)
	ws := ComputeWindows(friday)
	p := BuildPlan(r, ws, false)

	// 14 peaks, 5 consumption, 10 production, 10 export, 15 gas raw
	assert.Len(t, p.Tasks, 54)

	b, ok := bindingFor(p, ProductionKeys[types.WindowYesterday])
	require.True(t, ok)
	assert.Equal(t, []string{
		"aggregated|LU-P1|1-1:2.29.0|yesterday|Infinite",
		"aggregated|LU-P2|1-1:2.29.0|yesterday|Infinite",
	}, b.Tasks)

	b, ok = bindingFor(p, GasEnergyKeys[types.WindowLastWeek])
	require.True(t, ok)
	assert.Equal(t, []string{"raw|LU-G|7-20:99.33.17|last_week"}, b.Tasks)

	b, ok = bindingFor(p, PeakKey(types.ObisGasVolume))
	require.True(t, ok)
	assert.Equal(t, ReducePeak, b.Reduce)

	b, ok = bindingFor(p, PeakKey(types.ObisActiveProduction))
	require.True(t, ok)
	assert.Equal(t, []string{"raw|LU-P1|1-1:2.29.0|yesterday"}, b.Tasks)
}

func TestBuildPlanEmptyWindow(t *testing.T) {
	ws := ComputeWindows(day(2024, time.March, 11).Add(8 * time.Hour))
	p := BuildPlan(singleRouter(), ws, false)
	assert.Len(t, p.Tasks, 26)

	b, ok := bindingFor(p, ConsumptionKeys[types.WindowThisWeek])
	require.True(t, ok)
	assert.Empty(t, b.Tasks)
}

func TestBuildSharingPlan(t *testing.T) {
	ws := ComputeWindows(friday)
	p := BuildSharingPlan(singleRouter(), ws)

	// 8 layers over 5 windows plus the two last-month remainders
	assert.Len(t, p.Tasks, 42)
	assert.Len(t, p.Bindings, 20)
	assert.Empty(t, p.Derivations)

	b, ok := bindingFor(p, SharedWithMeKeys[types.WindowYesterday])
	require.True(t, ok)
	assert.Equal(t, ReduceLayers, b.Reduce)
	assert.Len(t, b.Tasks, 4)

	b, ok = bindingFor(p, ConsumptionRemainder)
	require.True(t, ok)
	assert.Equal(t, []string{"aggregated|LU0001|1-65:1.29.9|last_month|Infinite"}, b.Tasks)
}
