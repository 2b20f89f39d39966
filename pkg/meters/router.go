// Package meters decides which metering point serves each measurement code.
package meters

import (
	"errors"
	"fmt"

	"github.com/raterudder/leneda/pkg/types"
)

// MaxExtraMeters is the number of meter slots besides the primary meter.
const MaxExtraMeters = 9

// Router maps measurement codes to metering points. It is a pure function of
// the configured meter list: configuration order decides which meter is
// first when several share a role.
type Router struct {
	meters      []types.MeterConfig
	consumption string
	production  []string
	gas         []string
}

// NewRouter validates the meter list and returns a router. The first meter is
// the primary meter and stands in for consumption and production when no
// meter declares those roles.
func NewRouter(meters []types.MeterConfig) (*Router, error) {
	if len(meters) == 0 {
		return nil, errors.New("at least one metering point is required")
	}
	if len(meters) > MaxExtraMeters+1 {
		return nil, fmt.Errorf("at most %d additional metering points are supported, got %d", MaxExtraMeters, len(meters)-1)
	}

	r := &Router{}
	seen := make(map[string]bool, len(meters))
	for i, m := range meters {
		if m.ID == "" {
			return nil, fmt.Errorf("metering point %d has no id", i)
		}
		if seen[m.ID] {
			return nil, fmt.Errorf("metering point %s configured twice", m.ID)
		}
		seen[m.ID] = true
		r.meters = append(r.meters, types.NewMeterConfig(m.ID, m.RoleList()...))

		if m.Has(types.RoleConsumption) && r.consumption == "" {
			r.consumption = m.ID
		}
		if m.Has(types.RoleProduction) {
			r.production = append(r.production, m.ID)
		}
		if m.Has(types.RoleGas) {
			r.gas = append(r.gas, m.ID)
		}
	}

	primary := meters[0].ID
	if r.consumption == "" {
		r.consumption = primary
	}
	if len(r.production) == 0 {
		r.production = []string{primary}
	}
	return r, nil
}

// Primary returns the id of the first configured meter, which identifies the
// meter group.
func (r *Router) Primary() string {
	return r.meters[0].ID
}

// Meters returns the configured meters in order.
func (r *Router) Meters() []types.MeterConfig {
	return append([]types.MeterConfig(nil), r.meters...)
}

// MeterFor returns the meter that serves the code. Gas codes fall back to the
// consumption meter when no gas meter is configured.
func (r *Router) MeterFor(code types.ObisCode) string {
	switch code.Role() {
	case types.RoleGas:
		if len(r.gas) > 0 {
			return r.gas[0]
		}
		return r.consumption
	case types.RoleProduction:
		return r.production[0]
	default:
		return r.consumption
	}
}

// ConsumptionMeter returns the meter used for consumption codes.
func (r *Router) ConsumptionMeter() string {
	return r.consumption
}

// ProductionMeters returns every production meter in configuration order.
func (r *Router) ProductionMeters() []string {
	return append([]string(nil), r.production...)
}

// GasMeter returns the first gas meter, if any.
func (r *Router) GasMeter() (string, bool) {
	if len(r.gas) == 0 {
		return "", false
	}
	return r.gas[0], true
}

// HasRole reports whether any meter explicitly declares the role.
func (r *Router) HasRole(role types.MeterRole) bool {
	for _, m := range r.meters {
		if m.Has(role) {
			return true
		}
	}
	return false
}
