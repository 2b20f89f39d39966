package sensor

import (
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raterudder/leneda/pkg/log"
	"github.com/raterudder/leneda/pkg/meters"
	"github.com/raterudder/leneda/pkg/refresh"
	"github.com/raterudder/leneda/pkg/snapshot"
	"github.com/raterudder/leneda/pkg/types"
)

func init() {
	log.SetDefaultLogLevel(slog.LevelError)
}

func keys(ds []Descriptor) map[string]Descriptor {
	m := map[string]Descriptor{}
	for _, d := range ds {
		m[d.Key] = d
	}
	return m
}

func TestCatalogueUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, d := range Catalogue() {
		assert.False(t, seen[d.Key], "duplicate %s", d.Key)
		seen[d.Key] = true
		assert.NotEmpty(t, d.Name, d.Key)
		assert.NotEmpty(t, d.Unit, d.Key)
	}

	// every key the engine writes is described
	for key := range refresh.KeyTable() {
		_, ok := Lookup(key)
		assert.True(t, ok, key)
	}
}

func TestDescriptorClasses(t *testing.T) {
	tests := []struct {
		key         string
		unit        string
		deviceClass DeviceClass
		stateClass  StateClass
		icon        string
	}{
		{"c_04_yesterday_consumption", "kWh", DeviceClassEnergy, StateClassTotalIncreasing, "mdi:chart-bar"},
		{"1-1:1.29.0", "kW", DeviceClassPower, StateClassMeasurement, "mdi:flash"},
		{"1-1:3.29.0", "kVAR", DeviceClassReactivePower, StateClassMeasurement, "mdi:flash"},
		{"7-20:99.33.17", "kWh", DeviceClassEnergy, StateClassTotalIncreasing, "mdi:fire"},
		{"7-1:99.23.15", "m³", DeviceClassGas, StateClassTotalIncreasing, "mdi:fire"},
		{"g_01_yesterday_consumption", "kWh", DeviceClassEnergy, StateClassTotalIncreasing, "mdi:fire"},
		{"g_20_yesterday_std_volume", "Nm³", DeviceClassGas, StateClassTotalIncreasing, "mdi:fire"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			d, ok := Lookup(tt.key)
			require.True(t, ok)
			assert.Equal(t, tt.unit, d.Unit)
			assert.Equal(t, tt.deviceClass, d.DeviceClass)
			assert.Equal(t, tt.stateClass, d.StateClass)
			assert.Equal(t, tt.icon, d.Icon)
		})
	}

	d, _ := Lookup("1-65:1.29.3")
	assert.Equal(t, "Yesterday's Peak Consumption Covered (L2)", d.Name)
	d, _ = Lookup("p_11_last_month_exported")
	assert.Equal(t, "Last Month's Exported Energy", d.Name)
	d, _ = Lookup("g_13_monthly_volume")
	assert.Equal(t, "GAS - Current Month's Volume (m³)", d.Name)
}

func TestSelect(t *testing.T) {
	consumer, err := meters.NewRouter([]types.MeterConfig{types.NewMeterConfig("LU-C", types.RoleConsumption)})
	require.NoError(t, err)
	got := keys(Select(consumer, false))
	assert.Contains(t, got, "c_04_yesterday_consumption")
	assert.Contains(t, got, "s_received_monthly")
	assert.NotContains(t, got, "p_04_yesterday_production")
	assert.NotContains(t, got, "g_01_yesterday_consumption")
	assert.NotContains(t, got, "yesterdays_power_usage_over_reference")

	full, err := meters.NewRouter([]types.MeterConfig{
		types.NewMeterConfig("LU-C", types.RoleConsumption, types.RoleProduction),
		types.NewMeterConfig("LU-G", types.RoleGas),
	})
	require.NoError(t, err)
	got = keys(Select(full, true))
	assert.Contains(t, got, "p_18_weekly_self_consumed")
	assert.Contains(t, got, "g_24_last_month_std_volume")
	assert.Contains(t, got, "7-1:99.23.17")
	assert.Contains(t, got, "current_month_power_usage_over_reference")
	assert.Len(t, got, len(Catalogue()))
}

func TestBuild(t *testing.T) {
	sample := time.Date(2024, time.March, 14, 18, 15, 0, 0, time.UTC)
	updated := time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)
	snap := snapshot.New(updated, map[string]snapshot.Entry{
		"c_04_yesterday_consumption": {Value: types.Float(12.5), UpdatedAt: updated},
		"1-1:1.29.0":                 {Value: types.Float(7), SampleTime: sample, UpdatedAt: updated},
		"1-1:3.29.0":                 {UpdatedAt: updated},
	})

	c, _ := Lookup("c_04_yesterday_consumption")
	p, _ := Lookup("1-1:1.29.0")
	r, _ := Lookup("1-1:3.29.0")
	m, _ := Lookup("c_08_previous_month_consumption")
	mp := "LU0000000000000000000000779999999X"
	sensors := Build(mp, []Descriptor{c, p, r, m}, snap)
	require.Len(t, sensors, 4)

	assert.Equal(t, mp+"_c_04_yesterday_consumption_v3", sensors[0].UniqueID)
	assert.Equal(t, "LU0000000000000000000000079999999X", sensors[0].DeviceID)
	assert.Equal(t, 12.5, *sensors[0].Value)
	assert.Nil(t, sensors[0].PeakTimestamp)

	require.NotNil(t, sensors[1].PeakTimestamp)
	assert.Equal(t, sample, *sensors[1].PeakTimestamp)

	assert.Nil(t, sensors[2].Value)
	assert.Nil(t, sensors[3].Value)
	assert.True(t, sensors[3].UpdatedAt.IsZero())

	b, err := json.Marshal(sensors[1])
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"key": "1-1:1.29.0",
		"name": "Yesterday's Peak Active Consumption",
		"unit": "kW",
		"device_class": "power",
		"state_class": "measurement",
		"icon": "mdi:flash",
		"unique_id": "`+mp+`_1-1:1.29.0_v3",
		"device_id": "LU0000000000000000000000079999999X",
		"value": 7,
		"peak_timestamp": "2024-03-14T18:15:00Z",
		"updated_at": "2024-03-15T10:00:00Z"
	}`, string(b))
}

func TestAll(t *testing.T) {
	snap := snapshot.New(time.Now(), map[string]snapshot.Entry{
		"p_04_yesterday_production": {Value: types.Float(3)},
		"custom_key":                {Value: types.Float(1)},
	})
	sensors := All("LU1", snap)
	require.Len(t, sensors, 2)
	assert.Equal(t, "custom_key", sensors[0].Key)
	assert.Equal(t, "custom_key", sensors[0].Name)
	assert.Equal(t, "kWh", sensors[0].Unit)
	assert.Equal(t, "Yesterday's Production", sensors[1].Name)
	assert.Equal(t, "LU1", sensors[1].DeviceID)
}
