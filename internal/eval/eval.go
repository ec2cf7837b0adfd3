package eval

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/danielpatrickdp/mrm-sim/internal/mrm"
	"github.com/danielpatrickdp/mrm-sim/internal/tensor"
)

// #region eval-harness
// EvalHarness validates rollout trajectories and summarizes their returns.
type EvalHarness struct {
	config EvalConfig
}

// NewEvalHarness creates an eval harness with the given configuration.
func NewEvalHarness(config EvalConfig) *EvalHarness {
	return &EvalHarness{config: config}
}

// Summarize computes batch statistics without running any checks.
func Summarize(tr mrm.Trajectory) Summary {
	returns := tr.TotalReturn().Data()
	mean, std := stat.MeanStdDev(returns, nil)
	if len(returns) < 2 {
		std = 0
	}
	return Summary{
		Batch:       len(returns),
		Horizon:     tr.Horizon(),
		MeanReturn:  mean,
		StdReturn:   std,
		MeanLogProb: stat.Mean(tr.LogProbs.Data(), nil),
		Finite:      tr.Rewards.IsFinite() && tr.LogProbs.IsFinite(),
	}
}

// Run validates a trajectory. rewardToGo may be nil, in which case the
// consistency check is skipped.
func (h *EvalHarness) Run(tr mrm.Trajectory, rewardToGo *tensor.Tensor) EvalResult {
	summary := Summarize(tr)
	var metrics []EvalMetric
	var failReasons []string

	check := func(name string, value float64, pass bool, blocking bool, reason string) {
		metrics = append(metrics, EvalMetric{Name: name, Value: value, Pass: pass})
		if !pass && blocking {
			failReasons = append(failReasons, reason)
		}
	}

	// 1. Finiteness of rewards and log probs
	finite := 0.0
	if summary.Finite {
		finite = 1
	}
	check("finite", finite, summary.Finite, true, "non-finite rewards or log probs")

	// 2. Mean return floor
	check("mean_return", summary.MeanReturn, summary.MeanReturn >= h.config.ReturnFloor, true,
		fmt.Sprintf("mean return %.4f below floor %.4f", summary.MeanReturn, h.config.ReturnFloor))

	// 3. Return spread
	stdPass := h.config.MaxReturnStd <= 0 || summary.StdReturn <= h.config.MaxReturnStd
	check("std_return", summary.StdReturn, stdPass, true,
		fmt.Sprintf("return std %.4f exceeds %.4f", summary.StdReturn, h.config.MaxReturnStd))

	// 4. Reward-to-go consistency
	if rewardToGo != nil {
		gap := rewardToGoGap(tr, rewardToGo)
		check("reward_to_go_gap", gap, gap <= h.config.RewardToGoTolerance, true,
			fmt.Sprintf("reward-to-go gap %.6f exceeds %.6f", gap, h.config.RewardToGoTolerance))
	}

	// 5. Log prob floor: informational only
	check("mean_log_prob", summary.MeanLogProb, summary.MeanLogProb >= h.config.LogProbFloor, false, "")

	passed := len(failReasons) == 0
	reason := "all checks passed"
	if !passed {
		reason = fmt.Sprintf("eval failed: %s", failReasons[0])
		if len(failReasons) > 1 {
			reason = fmt.Sprintf("eval failed: %d checks: %s", len(failReasons), failReasons[0])
		}
	}

	return EvalResult{
		Passed:  passed,
		Metrics: metrics,
		Summary: summary,
		Reason:  reason,
	}
}

// #endregion eval-harness

// #region helpers
// rewardToGoGap is the largest relative difference between the first
// reward-to-go entry and the total return of each row.
func rewardToGoGap(tr mrm.Trajectory, rewardToGo *tensor.Tensor) float64 {
	if !tensor.SameShape(rewardToGo.Shape(), tr.Rewards.Shape()) {
		return math.Inf(1)
	}
	total := tr.TotalReturn()
	var gap float64
	for b := 0; b < total.Batch(); b++ {
		want := total.At(b, 0)
		d := math.Abs(rewardToGo.At(b, 0, 0)-want) / (1 + math.Abs(want))
		if math.IsNaN(d) {
			return math.Inf(1)
		}
		gap = math.Max(gap, d)
	}
	return gap
}

// #endregion helpers
