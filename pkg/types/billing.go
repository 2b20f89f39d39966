package types

import "fmt"

// CurrentBillingConfigVersion is the current version of the billing config.
// Increment this value when adding fields that need migrating.
const CurrentBillingConfigVersion = 2

// FeedInRate is the compensation scheme for one production meter.
type FeedInRate struct {
	MeterID      string  `json:"meter_id"`
	Mode         string  `json:"mode"`
	Tariff       float64 `json:"tariff"`
	SensorEntity string  `json:"sensor_entity,omitempty"`
}

// MeterFee is an extra monthly charge attached to a meter.
type MeterFee struct {
	MeterID string  `json:"meter_id"`
	Label   string  `json:"label"`
	Fee     float64 `json:"fee"`
}

// BillingConfig holds the tariff parameters used by the dashboard's cost
// view. Rates are per kWh, fees are per month and vat rates are decimals.
type BillingConfig struct {
	EnergyFixedFee      float64 `json:"energy_fixed_fee"`
	EnergyVariableRate  float64 `json:"energy_variable_rate"`
	NetworkMeteringRate float64 `json:"network_metering_rate"`
	NetworkPowerRefRate float64 `json:"network_power_ref_rate"`
	NetworkVariableRate float64 `json:"network_variable_rate"`

	// ReferencePowerKW is the contracted reference power. Consumption above
	// it is charged at ExceedanceRate.
	ReferencePowerKW float64 `json:"reference_power_kw"`
	ExceedanceRate   float64 `json:"exceedance_rate"`

	FeedInTariff     float64      `json:"feed_in_tariff"`
	FeedInRates      []FeedInRate `json:"feed_in_rates"`
	MeterMonthlyFees []MeterFee   `json:"meter_monthly_fees"`

	GasFixedFee            float64 `json:"gas_fixed_fee"`
	GasVariableRate        float64 `json:"gas_variable_rate"`
	GasNetworkFee          float64 `json:"gas_network_fee"`
	GasNetworkVariableRate float64 `json:"gas_network_variable_rate"`
	GasTaxRate             float64 `json:"gas_tax_rate"`
	GasVATRate             float64 `json:"gas_vat_rate"`

	CompensationFundRate float64 `json:"compensation_fund_rate"`
	ElectricityTaxRate   float64 `json:"electricity_tax_rate"`
	VATRate              float64 `json:"vat_rate"`
	Currency             string  `json:"currency"`

	// legacy single feed-in settings, replaced by FeedInRates in version 2
	FeedInMode         string `json:"feed_in_mode,omitempty"`
	FeedInSensorEntity string `json:"feed_in_sensor_entity,omitempty"`
}

// DefaultBillingConfig returns the Luxembourg residential defaults.
func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		EnergyFixedFee:         1.50,
		EnergyVariableRate:     0.1500,
		NetworkMeteringRate:    5.90,
		NetworkPowerRefRate:    19.27,
		NetworkVariableRate:    0.0510,
		ReferencePowerKW:       5.0,
		ExceedanceRate:         0.1139,
		FeedInTariff:           0.08,
		FeedInRates:            []FeedInRate{},
		MeterMonthlyFees:       []MeterFee{},
		GasFixedFee:            6.50,
		GasVariableRate:        0.0550,
		GasNetworkFee:          4.80,
		GasNetworkVariableRate: 0.0120,
		GasTaxRate:             0.0010,
		GasVATRate:             0.08,
		CompensationFundRate:   0.0010,
		ElectricityTaxRate:     0.0010,
		VATRate:                0.08,
		Currency:               "EUR",
	}
}

// MigrateBillingConfig migrates the config to the current version.
// productionMeters is used to distribute legacy feed-in settings.
// It returns the migrated config, whether anything changed, and an error if
// migration failed.
func MigrateBillingConfig(c BillingConfig, currentVersion int, productionMeters []string) (BillingConfig, bool, error) {
	if currentVersion >= CurrentBillingConfigVersion {
		return c, false, nil
	}

	migrated := false
	for version := currentVersion + 1; version <= CurrentBillingConfigVersion; version++ {
		switch version {
		case 1:
			// version 1: initial
			d := DefaultBillingConfig()
			fill := func(v *float64, def float64) {
				if *v == 0 {
					*v = def
					migrated = true
				}
			}
			fill(&c.EnergyFixedFee, d.EnergyFixedFee)
			fill(&c.EnergyVariableRate, d.EnergyVariableRate)
			fill(&c.NetworkMeteringRate, d.NetworkMeteringRate)
			fill(&c.NetworkPowerRefRate, d.NetworkPowerRefRate)
			fill(&c.NetworkVariableRate, d.NetworkVariableRate)
			fill(&c.ReferencePowerKW, d.ReferencePowerKW)
			fill(&c.ExceedanceRate, d.ExceedanceRate)
			fill(&c.FeedInTariff, d.FeedInTariff)
			fill(&c.GasFixedFee, d.GasFixedFee)
			fill(&c.GasVariableRate, d.GasVariableRate)
			fill(&c.GasNetworkFee, d.GasNetworkFee)
			fill(&c.GasNetworkVariableRate, d.GasNetworkVariableRate)
			fill(&c.GasTaxRate, d.GasTaxRate)
			fill(&c.GasVATRate, d.GasVATRate)
			fill(&c.CompensationFundRate, d.CompensationFundRate)
			fill(&c.ElectricityTaxRate, d.ElectricityTaxRate)
			fill(&c.VATRate, d.VATRate)
			if c.Currency == "" {
				c.Currency = d.Currency
				migrated = true
			}
		case 2:
			// version 2: per production meter feed-in rates
			if c.FeedInMode == "" && c.FeedInSensorEntity == "" {
				continue
			}
			if len(c.FeedInRates) == 0 {
				mode := c.FeedInMode
				if mode == "" {
					mode = "fixed"
				}
				for _, id := range productionMeters {
					c.FeedInRates = append(c.FeedInRates, FeedInRate{
						MeterID:      id,
						Mode:         mode,
						Tariff:       c.FeedInTariff,
						SensorEntity: c.FeedInSensorEntity,
					})
				}
			}
			c.FeedInMode = ""
			c.FeedInSensorEntity = ""
			migrated = true
		default:
			return c, false, fmt.Errorf("unknown billing config version: %d", version)
		}
	}

	return c, migrated, nil
}
