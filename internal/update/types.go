package update

import "errors"

// ErrBlocks is returned when block sizes do not cover the parameter vector.
var ErrBlocks = errors.New("update: blocks do not match parameters")

// #region update-config
// Config holds the perturbation scale and the norm clamps for Propose.
type Config struct {
	Step                 float64 `yaml:"step" json:"step"`                                         // scale applied to unit noise (default 0.05)
	MaxDeltaNormPerBlock float64 `yaml:"max_delta_norm_per_block" json:"max_delta_norm_per_block"` // L2 clamp per block (default 0.5)
	MaxParamNorm         float64 `yaml:"max_param_norm" json:"max_param_norm"`                     // post-update L2 cap on the full vector (0 = disabled)
}

// DefaultConfig returns the defaults used by the random search planner.
func DefaultConfig() Config {
	return Config{
		Step:                 0.05,
		MaxDeltaNormPerBlock: 0.5,
		MaxParamNorm:         10,
	}
}

// #endregion update-config

// #region metrics
// BlockMetric captures per-block telemetry from one proposal.
type BlockMetric struct {
	Index     int
	DeltaNorm float64
	Clamped   bool
}

// Metrics captures telemetry from one proposal.
type Metrics struct {
	DeltaNorm    float64 // L2 norm of candidate - current
	ParamNorm    float64 // L2 norm of the candidate
	Capped       bool    // MaxParamNorm rescaled the candidate
	BlocksHit    []int
	BlockMetrics []BlockMetric
}

// #endregion metrics

// #region proposal
// Proposal bundles the candidate parameters and their metrics.
type Proposal struct {
	Params  []float64
	Metrics Metrics
}

// #endregion proposal
