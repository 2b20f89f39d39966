package types

import (
	"encoding/json"
	"fmt"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// MeterRole tags what a physical meter measures.
type MeterRole string

const (
	RoleConsumption MeterRole = "consumption"
	RoleProduction  MeterRole = "production"
	RoleGas         MeterRole = "gas"
)

var roleOrder = []MeterRole{RoleConsumption, RoleProduction, RoleGas}

// ParseMeterRole parses a role name, ignoring case and surrounding space.
func ParseMeterRole(s string) (MeterRole, error) {
	r := MeterRole(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RoleConsumption, RoleProduction, RoleGas:
		return r, nil
	}
	return "", fmt.Errorf("unknown meter role: %q", s)
}

// MeterConfig is one configured metering point.
type MeterConfig struct {
	ID    string
	Roles mapset.Set[MeterRole]
}

// NewMeterConfig returns a meter with the given roles.
func NewMeterConfig(id string, roles ...MeterRole) MeterConfig {
	return MeterConfig{
		ID:    id,
		Roles: mapset.NewSet(roles...),
	}
}

// Has reports whether the meter carries the role.
func (m MeterConfig) Has(r MeterRole) bool {
	return m.Roles != nil && m.Roles.Contains(r)
}

// RoleList returns the roles in a stable order.
func (m MeterConfig) RoleList() []MeterRole {
	var out []MeterRole
	for _, r := range roleOrder {
		if m.Has(r) {
			out = append(out, r)
		}
	}
	return out
}

type meterConfigJSON struct {
	ID    string      `json:"id"`
	Types []MeterRole `json:"types"`
}

// MarshalJSON implements json.Marshaler
func (m MeterConfig) MarshalJSON() ([]byte, error) {
	types := m.RoleList()
	if types == nil {
		types = []MeterRole{}
	}
	return json.Marshal(meterConfigJSON{ID: m.ID, Types: types})
}

// UnmarshalJSON implements json.Unmarshaler
func (m *MeterConfig) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID    string   `json:"id"`
		Types []string `json:"types"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	roles := mapset.NewSet[MeterRole]()
	for _, t := range raw.Types {
		r, err := ParseMeterRole(t)
		if err != nil {
			return err
		}
		roles.Add(r)
	}
	m.ID = raw.ID
	m.Roles = roles
	return nil
}
