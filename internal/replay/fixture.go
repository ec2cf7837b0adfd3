package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/mrm-sim/internal/navigation"
	"github.com/danielpatrickdp/mrm-sim/internal/planner"
	"github.com/danielpatrickdp/mrm-sim/internal/policy"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture. It pins
// every seed and configuration needed to reproduce a planner run.
type Fixture struct {
	Description string            `json:"description"`
	Navigation  navigation.Config `json:"navigation"`
	Policy      policy.Config     `json:"policy"`
	Params      []float64         `json:"params,omitempty"` // starting policy parameters; empty keeps the seeded init
	Planner     planner.Config    `json:"planner"`
	Epochs      int               `json:"epochs"`
	Expected    FixtureExpected   `json:"expected"`
}

// FixtureExpected holds the optional expectations checked after replay.
type FixtureExpected struct {
	MeanReturn *float64 `json:"mean_return,omitempty"`
	Tolerance  float64  `json:"tolerance"`
	Actions    []string `json:"actions,omitempty"` // per-epoch planner actions
}

// DefaultFixture returns a small random search fixture on the default navigation grid.
func DefaultFixture() Fixture {
	cfg := planner.DefaultConfig(planner.KindRandomSearch)
	cfg.Batch = 16
	cfg.Horizon = 20
	pol := policy.DefaultConfig()
	pol.Horizon = cfg.Horizon
	return Fixture{
		Description: "random search on the default navigation grid",
		Navigation:  navigation.DefaultConfig(),
		Policy:      pol,
		Planner:     cfg,
		Epochs:      5,
		Expected:    FixtureExpected{Tolerance: 1e-6},
	}
}

// Validate checks that the fixture can be replayed.
func (f *Fixture) Validate() error {
	if f.Epochs <= 0 {
		return fmt.Errorf("fixture: epochs must be positive, got %d", f.Epochs)
	}
	if err := f.Navigation.Validate(); err != nil {
		return fmt.Errorf("fixture: %w", err)
	}
	if err := f.Planner.Validate(); err != nil {
		return fmt.Errorf("fixture: %w", err)
	}
	if n := len(f.Expected.Actions); n > 0 && n != f.Epochs {
		return fmt.Errorf("fixture: %d expected actions for %d epochs", n, f.Epochs)
	}
	return nil
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// WriteFixture writes f as indented JSON.
func WriteFixture(path string, f *Fixture) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write fixture %s: %w", path, err)
	}
	return nil
}

// #endregion fixture-loader
