package meters

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/levenlabs/go-lflag"

	"github.com/raterudder/leneda/pkg/types"
)

// fileConfig is the layout of the meters file:
//
//	[[meter]]
//	id = "LU0000010637000000000000070232"
//	roles = ["production", "gas"]
type fileConfig struct {
	Meters []fileMeter `toml:"meter"`
}

type fileMeter struct {
	ID    string   `toml:"id"`
	Roles []string `toml:"roles"`
}

// Configured sets up flags for the meter list and returns a router that is
// populated once flags are parsed.
func Configured() *Router {
	r := &Router{}
	primary := lflag.String("metering-point", "", "Primary metering point id")
	roles := lflag.String("metering-point-roles", "consumption", "Comma separated roles of the primary metering point (consumption, production, gas)")
	file := lflag.String("meters-file", "", "Optional TOML file with up to 9 additional metering points")

	lflag.Do(func() {
		primaryRoles, err := ParseRoles(*roles)
		if err != nil {
			panic(fmt.Sprintf("invalid metering-point-roles: %v", err))
		}
		meters := []types.MeterConfig{types.NewMeterConfig(*primary, primaryRoles...)}
		if *file != "" {
			extra, err := LoadFile(*file)
			if err != nil {
				panic(fmt.Sprintf("failed to load meters file: %v", err))
			}
			meters = append(meters, extra...)
		}
		built, err := NewRouter(meters)
		if err != nil {
			panic(fmt.Sprintf("invalid meter configuration: %v", err))
		}
		*r = *built
	})

	return r
}

// ParseRoles parses a comma separated role list. Empty entries are ignored.
func ParseRoles(s string) ([]types.MeterRole, error) {
	var out []types.MeterRole
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		r, err := types.ParseMeterRole(part)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// LoadFile reads additional meters from a TOML file.
func LoadFile(path string) ([]types.MeterConfig, error) {
	var cfg fileConfig
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown keys in %s: %v", path, undecoded)
	}
	if len(cfg.Meters) > MaxExtraMeters {
		return nil, fmt.Errorf("%s lists %d metering points, at most %d are supported", path, len(cfg.Meters), MaxExtraMeters)
	}
	out := make([]types.MeterConfig, 0, len(cfg.Meters))
	for _, m := range cfg.Meters {
		roles, err := ParseRoles(strings.Join(m.Roles, ","))
		if err != nil {
			return nil, fmt.Errorf("metering point %s: %w", m.ID, err)
		}
		out = append(out, types.NewMeterConfig(strings.TrimSpace(m.ID), roles...))
	}
	return out, nil
}
