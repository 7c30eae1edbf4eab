package config

import (
	"fmt"

	"github.com/example/sfg/internal/core/asset"
)

// HardwareProfile holds the timing constants of one vehicle generation.
type HardwareProfile struct {
	Name string
	// TriggerDelay is the fixed lag, in seconds, between the logged trigger
	// and the acoustic transmit.
	TriggerDelay float64
	// TATUnitsPerSecond converts logged turn-around time to seconds.
	TATUnitsPerSecond float64
}

var profiles = map[string]HardwareProfile{
	"sv2": {Name: "sv2", TriggerDelay: 0.10, TATUnitsPerSecond: 1000},
	"sv3": {Name: "sv3", TriggerDelay: 0.13, TATUnitsPerSecond: 1000},
}

// Profile returns the named hardware profile.
func Profile(name string) (HardwareProfile, error) {
	p, ok := profiles[name]
	if !ok {
		return HardwareProfile{}, fmt.Errorf("%w: unknown hardware generation %q", asset.ErrConfig, name)
	}
	return p, nil
}

// Hardware returns the profile selected by the global config.
func (c *PipelineConfig) Hardware() (HardwareProfile, error) {
	return Profile(c.Global.Hardware)
}
