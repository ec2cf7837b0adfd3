package navigation

import (
	"errors"
	"fmt"
)

// Fluent names used in the transition scope.
const (
	Location     = "location"
	NextLocation = "location'"
	Move         = "move"
	Velocity     = "velocity"
	Drift        = "drift"
)

// ErrConfig is returned for an unusable navigation configuration.
var ErrConfig = errors.New("navigation: invalid config")

// #region config
// Config describes a 2-D navigation problem: an agent moves towards Goal,
// slowed down near Center, inside an axis-aligned box.
type Config struct {
	Goal          [2]float64 `yaml:"goal" json:"goal"`
	Center        [2]float64 `yaml:"center" json:"center"`
	Start         [2]float64 `yaml:"start" json:"start"`
	Lower         [2]float64 `yaml:"lower" json:"lower"`
	Upper         [2]float64 `yaml:"upper" json:"upper"`
	VelocityNoise float64    `yaml:"velocity_noise" json:"velocity_noise"`
	DriftNoise    float64    `yaml:"drift_noise" json:"drift_noise"`
	LocationNoise float64    `yaml:"location_noise" json:"location_noise"`
	Seed          uint64     `yaml:"seed" json:"seed"`
}

// DefaultConfig returns the standard 10x10 navigation grid.
func DefaultConfig() Config {
	return Config{
		Goal:          [2]float64{8, 9},
		Center:        [2]float64{5, 5},
		Start:         [2]float64{1, 1},
		Lower:         [2]float64{0, 0},
		Upper:         [2]float64{10, 10},
		VelocityNoise: 0.05,
		DriftNoise:    0.02,
		LocationNoise: 0.01,
		Seed:          1,
	}
}

// Validate checks bounds and noise scales.
func (c Config) Validate() error {
	for k := 0; k < 2; k++ {
		if c.Lower[k] >= c.Upper[k] {
			return fmt.Errorf("%w: lower %v not below upper %v", ErrConfig, c.Lower, c.Upper)
		}
	}
	if c.VelocityNoise <= 0 || c.DriftNoise <= 0 || c.LocationNoise <= 0 {
		return fmt.Errorf("%w: noise scales must be positive", ErrConfig)
	}
	return nil
}

// #endregion config
