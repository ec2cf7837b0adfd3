package gate

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/mrm-sim/internal/eval"
	"github.com/danielpatrickdp/mrm-sim/internal/update"
)

// #region gate
// Gate decides whether a candidate policy replaces the incumbent.
type Gate struct {
	config GateConfig
}

// NewGate creates a gate with the given configuration.
func NewGate(config GateConfig) *Gate {
	return &Gate{config: config}
}

// Evaluate checks hard vetoes first, then requires the candidate's mean
// return to improve on the incumbent's by at least MinImprovement.
func (g *Gate) Evaluate(
	incumbent eval.Summary,
	candidate eval.EvalResult,
	metrics update.Metrics,
) GateDecision {
	var vetoes []VetoSignal

	// --- Hard veto pass ---

	// 1. Non-finite rewards or log probs
	if !candidate.Summary.Finite || math.IsNaN(candidate.Summary.MeanReturn) {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoNonFinite,
			Reason: "candidate rollout produced non-finite values",
		})
	}

	// 2. Eval harness failure
	if !candidate.Passed {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoEval,
			Reason: candidate.Reason,
		})
	}

	// 3. Step size exceeds cap
	if metrics.DeltaNorm > g.config.MaxDeltaNorm {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoDeltaNorm,
			Reason: fmt.Sprintf("delta norm %.4f exceeds cap %.4f", metrics.DeltaNorm, g.config.MaxDeltaNorm),
		})
	}

	// 4. Parameter norm exceeds cap
	if g.config.MaxParamNorm > 0 && metrics.ParamNorm > g.config.MaxParamNorm {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoParamNorm,
			Reason: fmt.Sprintf("param norm %.4f exceeds cap %.4f", metrics.ParamNorm, g.config.MaxParamNorm),
		})
	}

	if len(vetoes) > 0 {
		return GateDecision{
			Action:      "reject",
			Reason:      fmt.Sprintf("hard veto: %s", vetoes[0].Reason),
			Vetoed:      true,
			VetoSignals: vetoes,
		}
	}

	// --- Improvement check ---
	improvement := candidate.Summary.MeanReturn - incumbent.MeanReturn
	if math.IsNaN(incumbent.MeanReturn) || math.IsInf(incumbent.MeanReturn, -1) {
		improvement = math.Inf(1)
	}
	softScore := computeSoftScore(incumbent, candidate.Summary, metrics)

	if improvement <= g.config.MinImprovement {
		return GateDecision{
			Action:      "reject",
			Reason:      fmt.Sprintf("no improvement: %.4f <= %.4f", improvement, g.config.MinImprovement),
			Improvement: improvement,
			SoftScore:   softScore,
		}
	}

	return GateDecision{
		Action:      "commit",
		Reason:      fmt.Sprintf("passed gate: improvement=%.4f soft_score=%.4f", improvement, softScore),
		Improvement: improvement,
		SoftScore:   softScore,
	}
}

// #endregion gate

// #region helpers
// computeSoftScore produces a 0-1 composite from return spread, step size
// and clamped blocks. Logged but does not block.
func computeSoftScore(incumbent, candidate eval.Summary, metrics update.Metrics) float64 {
	var score float64

	// Spread component: a tighter return distribution than the incumbent (weight 0.4)
	switch {
	case candidate.StdReturn <= incumbent.StdReturn:
		score += 0.4
	case candidate.StdReturn > 0:
		score += 0.4 * incumbent.StdReturn / candidate.StdReturn
	}

	// Step component: smaller steps are more stable (weight 0.3)
	if metrics.DeltaNorm < 1.0 {
		score += 0.3 * (1.0 - metrics.DeltaNorm)
	}

	// Clamp component: fewer clamped blocks = more trustworthy (weight 0.3)
	clamped := 0
	for _, b := range metrics.BlockMetrics {
		if b.Clamped {
			clamped++
		}
	}
	switch clamped {
	case 0:
		score += 0.3
	case 1:
		score += 0.15
	}

	return score
}

// #endregion helpers
