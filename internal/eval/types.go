package eval

// #region eval-config
// EvalConfig holds thresholds for trajectory validation.
type EvalConfig struct {
	ReturnFloor         float64 `yaml:"return_floor" json:"return_floor"`                     // fail if mean total return falls below this
	MaxReturnStd        float64 `yaml:"max_return_std" json:"max_return_std"`                 // fail if return spread exceeds this (0 = disabled)
	RewardToGoTolerance float64 `yaml:"reward_to_go_tolerance" json:"reward_to_go_tolerance"` // relative tolerance for reward_to_go[:, 0] vs total return
	LogProbFloor        float64 `yaml:"log_prob_floor" json:"log_prob_floor"`                 // warn if mean log prob falls below this
}

// DefaultEvalConfig returns thresholds suited to the navigation domain.
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{
		ReturnFloor:         -1e6,
		MaxReturnStd:        0,
		RewardToGoTolerance: 1e-4,
		LogProbFloor:        -50,
	}
}

// #endregion eval-config

// #region eval-metric
// EvalMetric captures a single validation check result.
type EvalMetric struct {
	Name  string
	Value float64
	Pass  bool
}

// #endregion eval-metric

// #region summary
// Summary holds batch statistics of one trajectory.
type Summary struct {
	Batch       int
	Horizon     int
	MeanReturn  float64
	StdReturn   float64
	MeanLogProb float64
	Finite      bool
}

// #endregion summary

// #region eval-result
// EvalResult is the output of trajectory validation.
type EvalResult struct {
	Passed  bool
	Metrics []EvalMetric
	Summary Summary
	Reason  string
}

// #endregion eval-result
