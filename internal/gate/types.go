package gate

// #region veto-type
// VetoType enumerates hard veto categories.
type VetoType string

const (
	VetoNonFinite VetoType = "non_finite"
	VetoDeltaNorm VetoType = "delta_norm"
	VetoParamNorm VetoType = "param_norm"
	VetoEval      VetoType = "eval_failed"
)

// #endregion veto-type

// #region veto-signal
// VetoSignal represents a detected hard veto condition.
type VetoSignal struct {
	Type   VetoType
	Reason string
}

// #endregion veto-signal

// #region gate-config
// GateConfig holds thresholds for gate decisions.
type GateConfig struct {
	MaxDeltaNorm   float64 `yaml:"max_delta_norm" json:"max_delta_norm"`   // max L2 norm of a parameter step
	MaxParamNorm   float64 `yaml:"max_param_norm" json:"max_param_norm"`   // max L2 norm of candidate parameters (0 = disabled)
	MinImprovement float64 `yaml:"min_improvement" json:"min_improvement"` // candidate mean return must beat incumbent by this
}

// DefaultGateConfig returns defaults matching update.DefaultConfig.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		MaxDeltaNorm:   2.0,
		MaxParamNorm:   10.0,
		MinImprovement: 0,
	}
}

// #endregion gate-config

// #region gate-decision
// GateDecision is the output of the gate evaluation.
type GateDecision struct {
	Action      string // "commit" | "reject"
	Reason      string
	Vetoed      bool
	VetoSignals []VetoSignal // non-empty if vetoed
	Improvement float64      // candidate - incumbent mean return
	SoftScore   float64      // 0-1 composite of soft signals (for logging)
}

// #endregion gate-decision
