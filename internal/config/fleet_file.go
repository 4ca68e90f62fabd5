package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/linkfleet/fleetctl/internal/fleet"
)

// fleetFile is the top-level TOML structure of an optional fleet override:
//
//	[[services]]
//	name = "auth_service"
//	port = 8202
//	command = "python -m uvicorn microservices.auth_service.main:app --port 8202"
//	dev_command = "... --reload"
type fleetFile struct {
	Services []fleet.Service `toml:"services" mapstructure:"services"`
}

// LoadFleet parses a TOML fleet table. It returns the validated fleet plus
// warnings for ports outside the platform's conventional 8200-8299 range
// (allowed, but usually a typo).
func LoadFleet(path string) (*fleet.Fleet, []string, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("config: read fleet file %s: %w", path, err)
	}
	var fc fleetFile
	if err := v.Unmarshal(&fc); err != nil {
		return nil, nil, fmt.Errorf("config: parse fleet file %s: %w", path, err)
	}
	f, err := fleet.New(fc.Services)
	if err != nil {
		return nil, nil, err
	}
	var warnings []string
	for _, s := range fc.Services {
		if !fleet.PortInRecommendedRange(s.Port) {
			warnings = append(warnings,
				fmt.Sprintf("%s: port %d is outside the recommended range (8200-8299)", s.Name, s.Port))
		}
	}
	return f, warnings, nil
}
