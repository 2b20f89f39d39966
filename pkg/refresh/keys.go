package refresh

import (
	"github.com/raterudder/leneda/pkg/snapshot"
	"github.com/raterudder/leneda/pkg/types"
)

// WindowKeys names the snapshot key of a metric for each steady window.
type WindowKeys map[types.WindowName]string

var (
	ConsumptionKeys = WindowKeys{
		types.WindowYesterday: "c_04_yesterday_consumption",
		types.WindowThisWeek:  "c_05_weekly_consumption",
		types.WindowLastWeek:  "c_06_last_week_consumption",
		types.WindowThisMonth: "c_07_monthly_consumption",
		types.WindowLastMonth: "c_08_previous_month_consumption",
	}
	ProductionKeys = WindowKeys{
		types.WindowYesterday: "p_04_yesterday_production",
		types.WindowThisWeek:  "p_05_weekly_production",
		types.WindowLastWeek:  "p_06_last_week_production",
		types.WindowThisMonth: "p_07_monthly_production",
		types.WindowLastMonth: "p_08_previous_month_production",
	}
	ExportedKeys = WindowKeys{
		types.WindowYesterday: "p_09_yesterday_exported",
		types.WindowThisWeek:  "p_17_weekly_exported",
		types.WindowLastWeek:  "p_10_last_week_exported",
		types.WindowThisMonth: "p_15_monthly_exported",
		types.WindowLastMonth: "p_11_last_month_exported",
	}
	SelfConsumedKeys = WindowKeys{
		types.WindowYesterday: "p_12_yesterday_self_consumed",
		types.WindowThisWeek:  "p_18_weekly_self_consumed",
		types.WindowLastWeek:  "p_13_last_week_self_consumed",
		types.WindowThisMonth: "p_16_monthly_self_consumed",
		types.WindowLastMonth: "p_14_last_month_self_consumed",
	}
	GasEnergyKeys = WindowKeys{
		types.WindowYesterday: "g_01_yesterday_consumption",
		types.WindowThisWeek:  "g_02_weekly_consumption",
		types.WindowLastWeek:  "g_03_last_week_consumption",
		types.WindowThisMonth: "g_04_monthly_consumption",
		types.WindowLastMonth: "g_05_last_month_consumption",
	}
	GasVolumeKeys = WindowKeys{
		types.WindowYesterday: "g_10_yesterday_volume",
		types.WindowThisWeek:  "g_11_weekly_volume",
		types.WindowLastWeek:  "g_12_last_week_volume",
		types.WindowThisMonth: "g_13_monthly_volume",
		types.WindowLastMonth: "g_14_last_month_volume",
	}
	GasStdVolumeKeys = WindowKeys{
		types.WindowYesterday: "g_20_yesterday_std_volume",
		types.WindowThisWeek:  "g_21_weekly_std_volume",
		types.WindowLastWeek:  "g_22_last_week_std_volume",
		types.WindowThisMonth: "g_23_monthly_std_volume",
		types.WindowLastMonth: "g_24_last_month_std_volume",
	}
	SharedKeys = WindowKeys{
		types.WindowYesterday: "s_sent_yesterday",
		types.WindowThisWeek:  "s_sent_weekly",
		types.WindowLastWeek:  "s_sent_last_week",
		types.WindowThisMonth: "s_sent_monthly",
		types.WindowLastMonth: "s_sent_last_month",
	}
	SharedWithMeKeys = WindowKeys{
		types.WindowYesterday: "s_received_yesterday",
		types.WindowThisWeek:  "s_received_weekly",
		types.WindowLastWeek:  "s_received_last_week",
		types.WindowThisMonth: "s_received_monthly",
		types.WindowLastMonth: "s_received_last_month",
	}
	// ExceedanceKeys has no week entries.
	ExceedanceKeys = WindowKeys{
		types.WindowYesterday: "yesterdays_power_usage_over_reference",
		types.WindowThisMonth: "current_month_power_usage_over_reference",
		types.WindowLastMonth: "last_month_power_usage_over_reference",
	}
)

// Per-layer sharing totals of last month.
var (
	ConsumptionLayerKeys = []string{"s_c_l1_last_month", "s_c_l2_last_month", "s_c_l3_last_month", "s_c_l4_last_month"}
	ConsumptionRemainder = "s_c_rem_last_month"
	ProductionLayerKeys  = []string{"s_p_l1_last_month", "s_p_l2_last_month", "s_p_l3_last_month", "s_p_l4_last_month"}
	ProductionRemainder  = "s_p_rem_last_month"
)

// PeakKey is the key holding the representative sample of a code. Peaks are
// instantaneous and never roll over.
func PeakKey(code types.ObisCode) string {
	return string(code)
}

// KeyTable returns the kind and window of every key the engine writes.
func KeyTable() snapshot.Table {
	t := snapshot.Table{}
	for _, family := range []WindowKeys{
		ConsumptionKeys, ProductionKeys, ExportedKeys, SelfConsumedKeys,
		GasEnergyKeys, GasVolumeKeys, GasStdVolumeKeys,
		SharedKeys, SharedWithMeKeys, ExceedanceKeys,
	} {
		for w, key := range family {
			t[key] = snapshot.KeySpec{Kind: snapshot.Cumulative, Window: w}
		}
	}
	for _, key := range append(append([]string{ConsumptionRemainder, ProductionRemainder}, ConsumptionLayerKeys...), ProductionLayerKeys...) {
		t[key] = snapshot.KeySpec{Kind: snapshot.Cumulative, Window: types.WindowLastMonth}
	}
	for _, info := range types.ObisCatalogue() {
		t[PeakKey(info.Code)] = snapshot.KeySpec{Kind: snapshot.Instant}
	}
	return t
}
