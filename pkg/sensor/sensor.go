// Package sensor turns snapshot keys into named, unit-tagged sensor records.
package sensor

import (
	"strings"
	"time"

	"github.com/raterudder/leneda/pkg/meters"
	"github.com/raterudder/leneda/pkg/refresh"
	"github.com/raterudder/leneda/pkg/snapshot"
	"github.com/raterudder/leneda/pkg/types"
)

// DeviceClass tags what a sensor measures.
type DeviceClass string

const (
	DeviceClassPower         DeviceClass = "power"
	DeviceClassEnergy        DeviceClass = "energy"
	DeviceClassReactivePower DeviceClass = "reactive_power"
	DeviceClassGas           DeviceClass = "gas"
)

// StateClass tells consumers whether values are totals or readings.
type StateClass string

const (
	StateClassMeasurement     StateClass = "measurement"
	StateClassTotalIncreasing StateClass = "total_increasing"
)

const (
	iconFlash = "mdi:flash"
	iconChart = "mdi:chart-bar"
	iconFire  = "mdi:fire"
)

// Descriptor is the fixed metadata of the sensor exposing a snapshot key.
type Descriptor struct {
	Key         string      `json:"key"`
	Name        string      `json:"name"`
	Unit        string      `json:"unit"`
	DeviceClass DeviceClass `json:"device_class,omitempty"`
	StateClass  StateClass  `json:"state_class"`
	Icon        string      `json:"icon"`
	// Peak sensors carry the timestamp of their representative sample.
	Peak bool `json:"-"`
}

// Sensor is a descriptor bound to its current value.
type Sensor struct {
	Descriptor
	UniqueID      string     `json:"unique_id"`
	DeviceID      string     `json:"device_id"`
	Value         *float64   `json:"value"`
	PeakTimestamp *time.Time `json:"peak_timestamp,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at,omitzero"`
}

func energy(key, name string) Descriptor {
	d := Descriptor{
		Key:         key,
		Name:        name,
		Unit:        types.UnitKWh,
		DeviceClass: DeviceClassEnergy,
		StateClass:  StateClassTotalIncreasing,
		Icon:        iconChart,
	}
	if strings.HasPrefix(key, "g_") {
		d.Icon = iconFire
	}
	return d
}

func gasVolume(key, name, unit string) Descriptor {
	return Descriptor{
		Key:         key,
		Name:        name,
		Unit:        unit,
		DeviceClass: DeviceClassGas,
		StateClass:  StateClassTotalIncreasing,
		Icon:        iconFire,
	}
}

// peak describes the yesterday sample of a code, classified by its unit.
func peak(code types.ObisCode, name string) Descriptor {
	d := Descriptor{
		Key:        refresh.PeakKey(code),
		Name:       name,
		Unit:       code.Unit(),
		StateClass: StateClassMeasurement,
		Icon:       iconFlash,
		Peak:       true,
	}
	switch {
	case code == types.ObisGasEnergy:
		d.DeviceClass = DeviceClassEnergy
		d.StateClass = StateClassTotalIncreasing
		d.Icon = iconFire
	case code.IsGas():
		d.DeviceClass = DeviceClassGas
		d.StateClass = StateClassTotalIncreasing
		d.Icon = iconFire
	case d.Unit == types.UnitKW:
		d.DeviceClass = DeviceClassPower
	case d.Unit == types.UnitKWh:
		d.DeviceClass = DeviceClassEnergy
		d.StateClass = StateClassTotalIncreasing
	case d.Unit == types.UnitKVAR:
		d.DeviceClass = DeviceClassReactivePower
	}
	return d
}

var windowLabels = map[types.WindowName]string{
	types.WindowYesterday: "Yesterday's",
	types.WindowThisWeek:  "Current Week's",
	types.WindowLastWeek:  "Last Week's",
	types.WindowThisMonth: "Current Month's",
	types.WindowLastMonth: "Last Month's",
}

func family(keys refresh.WindowKeys, what string, build func(key, name string) Descriptor) []Descriptor {
	var out []Descriptor
	for _, w := range refresh.SteadyWindows {
		key, ok := keys[w]
		if !ok {
			continue
		}
		out = append(out, build(key, windowLabels[w]+" "+what))
	}
	return out
}

func consumptionGroup() []Descriptor {
	out := []Descriptor{
		energy(refresh.ConsumptionKeys[types.WindowYesterday], "Yesterday's Consumption"),
		energy(refresh.ConsumptionKeys[types.WindowThisWeek], "Current Week Consumption"),
		energy(refresh.ConsumptionKeys[types.WindowLastWeek], "Last Week's Consumption"),
		energy(refresh.ConsumptionKeys[types.WindowThisMonth], "Current Month Consumption"),
		energy(refresh.ConsumptionKeys[types.WindowLastMonth], "Previous Month's Consumption"),
		peak(types.ObisActiveConsumption, "Yesterday's Peak Active Consumption"),
		peak(types.ObisReactiveConsumption, "Yesterday's Peak Reactive Consumption"),
	}
	for i, code := range types.ConsumptionLayers() {
		out = append(out, peak(code, "Yesterday's Peak Consumption Covered (L"+layer(i)+")"))
	}
	out = append(out, peak(types.ObisConsumptionRemaining, "Yesterday's Peak Remaining Consumption"))
	for i, key := range refresh.ConsumptionLayerKeys {
		out = append(out, energy(key, "Last Month's Consumption Covered (L"+layer(i)+")"))
	}
	out = append(out, energy(refresh.ConsumptionRemainder, "Last Month's Remaining Consumption"))
	out = append(out, family(refresh.SharedWithMeKeys, "Energy Shared With Me", energy)...)
	return out
}

func productionGroup() []Descriptor {
	out := []Descriptor{
		energy(refresh.ProductionKeys[types.WindowYesterday], "Yesterday's Production"),
		energy(refresh.ProductionKeys[types.WindowThisWeek], "Current Week Production"),
		energy(refresh.ProductionKeys[types.WindowLastWeek], "Last Week's Production"),
		energy(refresh.ProductionKeys[types.WindowThisMonth], "Current Month Production"),
		energy(refresh.ProductionKeys[types.WindowLastMonth], "Previous Month's Production"),
		peak(types.ObisActiveProduction, "Yesterday's Peak Active Production"),
		peak(types.ObisReactiveProduction, "Yesterday's Peak Reactive Production"),
	}
	for i, code := range types.ProductionLayers() {
		out = append(out, peak(code, "Yesterday's Peak Production Shared (L"+layer(i)+")"))
	}
	out = append(out, peak(types.ObisProductionRemaining, "Yesterday's Peak Remaining Production"))
	out = append(out, family(refresh.ExportedKeys, "Exported Energy", energy)...)
	out = append(out, family(refresh.SelfConsumedKeys, "Locally Used Energy", energy)...)
	for i, key := range refresh.ProductionLayerKeys {
		out = append(out, energy(key, "Last Month's Production Shared (L"+layer(i)+")"))
	}
	out = append(out, energy(refresh.ProductionRemainder, "Last Month's Remaining Production"))
	out = append(out, family(refresh.SharedKeys, "Energy Shared", energy)...)
	return out
}

func gasGroup() []Descriptor {
	out := family(refresh.GasEnergyKeys, "Energy", func(key, name string) Descriptor {
		return energy(key, "GAS - "+name)
	})
	out = append(out, family(refresh.GasVolumeKeys, "Volume (m³)", func(key, name string) Descriptor {
		return gasVolume(key, "GAS - "+name, types.UnitM3)
	})...)
	out = append(out, family(refresh.GasStdVolumeKeys, "Standard Volume (Nm³)", func(key, name string) Descriptor {
		return gasVolume(key, "GAS - "+name, types.UnitNm3)
	})...)
	return append(out,
		peak(types.ObisGasEnergy, "GAS - Yesterday's Peak Consumed Energy"),
		peak(types.ObisGasVolume, "GAS - Yesterday's Peak Consumed Volume"),
		peak(types.ObisGasStdVolume, "GAS - Yesterday's Peak Consumed Standard Volume"),
	)
}

func exceedanceGroup() []Descriptor {
	return []Descriptor{
		energy(refresh.ExceedanceKeys[types.WindowYesterday], "Yesterday's Power Usage Over Reference"),
		energy(refresh.ExceedanceKeys[types.WindowThisMonth], "Current Month's Power Usage Over Reference"),
		energy(refresh.ExceedanceKeys[types.WindowLastMonth], "Last Month's Power Usage Over Reference"),
	}
}

func layer(i int) string {
	return string(rune('1' + i))
}

// Catalogue returns every descriptor.
func Catalogue() []Descriptor {
	var out []Descriptor
	out = append(out, consumptionGroup()...)
	out = append(out, productionGroup()...)
	out = append(out, gasGroup()...)
	out = append(out, exceedanceGroup()...)
	return out
}

var lookup = func() map[string]Descriptor {
	m := map[string]Descriptor{}
	for _, d := range Catalogue() {
		m[d.Key] = d
	}
	return m
}()

// Lookup returns the descriptor of key. Unknown keys are described as
// energy totals named after the key.
func Lookup(key string) (Descriptor, bool) {
	d, ok := lookup[key]
	if !ok {
		return energy(key, key), false
	}
	return d, true
}

// Select returns the sensors a meter group exposes: consumption always,
// production when a meter declares it, gas when a gas meter exists and
// exceedance when a reference power is configured.
func Select(r *meters.Router, withExceedance bool) []Descriptor {
	out := consumptionGroup()
	if r.HasRole(types.RoleProduction) {
		out = append(out, productionGroup()...)
	}
	if _, ok := r.GasMeter(); ok {
		out = append(out, gasGroup()...)
	}
	if withExceedance {
		out = append(out, exceedanceGroup()...)
	}
	return out
}

// DeviceID groups the production and consumption metering points of one
// physical meter under the consumption point's id.
func DeviceID(meteringPoint string) string {
	if len(meteringPoint) >= 34 && strings.HasPrefix(meteringPoint, "LU") && strings.Contains(meteringPoint, "779999999") {
		return strings.Replace(meteringPoint, "779999999", "079999999", 1)
	}
	return meteringPoint
}

// UniqueID is the stable id of a sensor.
func UniqueID(meteringPoint, key string) string {
	return meteringPoint + "_" + key + "_v3"
}

func bind(meteringPoint string, d Descriptor, snap *snapshot.Snapshot) Sensor {
	s := Sensor{
		Descriptor: d,
		UniqueID:   UniqueID(meteringPoint, d.Key),
		DeviceID:   DeviceID(meteringPoint),
	}
	if e, ok := snap.Get(d.Key); ok {
		s.Value = e.Value
		s.UpdatedAt = e.UpdatedAt
		if d.Peak && !e.SampleTime.IsZero() {
			at := e.SampleTime
			s.PeakTimestamp = &at
		}
	}
	return s
}

// Build binds each descriptor to its current snapshot value. Keys that were
// never written have a nil value.
func Build(meteringPoint string, ds []Descriptor, snap *snapshot.Snapshot) []Sensor {
	out := make([]Sensor, 0, len(ds))
	for _, d := range ds {
		out = append(out, bind(meteringPoint, d, snap))
	}
	return out
}

// All returns a sensor for every key in the snapshot, sorted by key.
func All(meteringPoint string, snap *snapshot.Snapshot) []Sensor {
	keys := snap.Keys()
	out := make([]Sensor, 0, len(keys))
	for _, k := range keys {
		d, _ := Lookup(k)
		out = append(out, bind(meteringPoint, d, snap))
	}
	return out
}
