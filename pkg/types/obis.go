package types

import "strings"

// ObisCode is the provider's identifier for a metered quantity and direction.
type ObisCode string

const (
	ObisActiveConsumption   ObisCode = "1-1:1.29.0"
	ObisActiveProduction    ObisCode = "1-1:2.29.0"
	ObisReactiveConsumption ObisCode = "1-1:3.29.0"
	ObisReactiveProduction  ObisCode = "1-1:4.29.0"

	// sharing layers are numbered by the provider in the order 1, 3, 2, 4
	ObisConsumptionCoveredL1 ObisCode = "1-65:1.29.1"
	ObisConsumptionCoveredL2 ObisCode = "1-65:1.29.3"
	ObisConsumptionCoveredL3 ObisCode = "1-65:1.29.2"
	ObisConsumptionCoveredL4 ObisCode = "1-65:1.29.4"
	ObisConsumptionRemaining ObisCode = "1-65:1.29.9"
	ObisProductionSharedL1   ObisCode = "1-65:2.29.1"
	ObisProductionSharedL2   ObisCode = "1-65:2.29.3"
	ObisProductionSharedL3   ObisCode = "1-65:2.29.2"
	ObisProductionSharedL4   ObisCode = "1-65:2.29.4"
	ObisProductionRemaining  ObisCode = "1-65:2.29.9"

	ObisGasVolume    ObisCode = "7-1:99.23.15"
	ObisGasStdVolume ObisCode = "7-1:99.23.17"
	ObisGasEnergy    ObisCode = "7-20:99.33.17"

	// ObisExport is the code whose aggregate is the energy fed into the grid.
	ObisExport = ObisProductionRemaining
)

// Units reported by the provider.
const (
	UnitKW   = "kW"
	UnitKVAR = "kVAR"
	UnitKWh  = "kWh"
	UnitM3   = "m³"
	UnitNm3  = "Nm³"
)

// ObisInfo describes a code from the catalogue.
type ObisInfo struct {
	Code ObisCode `json:"code"`
	Name string   `json:"name"`
	Unit string   `json:"unit"`
}

var obisCatalogue = []ObisInfo{
	{ObisActiveConsumption, "01 - Measured Active Consumption", UnitKW},
	{ObisActiveProduction, "02 - Measured Active Production", UnitKW},
	{ObisReactiveConsumption, "03 - Measured Reactive Consumption", UnitKVAR},
	{ObisReactiveProduction, "04 - Measured Reactive Production", UnitKVAR},
	{ObisConsumptionCoveredL1, "05 - Consumption Covered by Production (Layer 1)", UnitKW},
	{ObisConsumptionCoveredL2, "06 - Consumption Covered by Production (Layer 2)", UnitKW},
	{ObisConsumptionCoveredL3, "07 - Consumption Covered by Production (Layer 3)", UnitKW},
	{ObisConsumptionCoveredL4, "08 - Consumption Covered by Production (Layer 4)", UnitKW},
	{ObisConsumptionRemaining, "09 - Remaining Consumption After Sharing", UnitKW},
	{ObisProductionSharedL1, "10 - Production Shared (Layer 1)", UnitKW},
	{ObisProductionSharedL2, "11 - Production Shared (Layer 2)", UnitKW},
	{ObisProductionSharedL3, "12 - Production Shared (Layer 3)", UnitKW},
	{ObisProductionSharedL4, "13 - Production Shared (Layer 4)", UnitKW},
	{ObisProductionRemaining, "14 - Remaining Production After Sharing", UnitKW},
	{ObisGasVolume, "20 - GAS - Measured Consumed Volume", UnitM3},
	{ObisGasStdVolume, "21 - GAS - Measured Consumed Standard Volume", UnitNm3},
	{ObisGasEnergy, "22 - GAS - Measured Consumed Energy", UnitKWh},
}

// ObisCatalogue returns every known code in display order.
func ObisCatalogue() []ObisInfo {
	return append([]ObisInfo(nil), obisCatalogue...)
}

// LookupObis returns the catalogue entry for the code.
func LookupObis(code ObisCode) (ObisInfo, bool) {
	for _, info := range obisCatalogue {
		if info.Code == code {
			return info, true
		}
	}
	return ObisInfo{}, false
}

// IsGas reports whether the code belongs to the gas namespace.
func (c ObisCode) IsGas() bool {
	return strings.HasPrefix(string(c), "7-")
}

// IsProduction reports whether the code measures production or export.
func (c ObisCode) IsProduction() bool {
	s := string(c)
	return strings.HasPrefix(s, "1-1:2.") ||
		strings.HasPrefix(s, "1-1:4.") ||
		strings.HasPrefix(s, "1-65:2.")
}

// Role returns the meter role that serves this code.
func (c ObisCode) Role() MeterRole {
	switch {
	case c.IsGas():
		return RoleGas
	case c.IsProduction():
		return RoleProduction
	default:
		return RoleConsumption
	}
}

// Unit returns the catalogue unit or kW for unknown codes.
func (c ObisCode) Unit() string {
	if info, ok := LookupObis(c); ok {
		return info.Unit
	}
	return UnitKW
}

// ConsumptionLayers returns the four consumption-side sharing layer codes
// ordered by layer number.
func ConsumptionLayers() []ObisCode {
	return []ObisCode{ObisConsumptionCoveredL1, ObisConsumptionCoveredL2, ObisConsumptionCoveredL3, ObisConsumptionCoveredL4}
}

// ProductionLayers returns the four production-side sharing layer codes
// ordered by layer number.
func ProductionLayers() []ObisCode {
	return []ObisCode{ObisProductionSharedL1, ObisProductionSharedL2, ObisProductionSharedL3, ObisProductionSharedL4}
}
