package eval

import (
	"math"
	"testing"

	"github.com/danielpatrickdp/mrm-sim/internal/mrm"
	"github.com/danielpatrickdp/mrm-sim/internal/tensor"
)

// makeTrajectory builds a [batch, horizon, 1] trajectory where row b earns
// reward per step rewards[b] and every step has log prob logProb.
func makeTrajectory(t *testing.T, horizon int, rewards []float64, logProb float64) mrm.Trajectory {
	t.Helper()
	batch := len(rewards)
	r := make([]float64, 0, batch*horizon)
	for _, v := range rewards {
		for i := 0; i < horizon; i++ {
			r = append(r, v)
		}
	}
	rt, err := tensor.New(tensor.Float32, []int{batch, horizon, 1}, r)
	if err != nil {
		t.Fatalf("rewards: %v", err)
	}
	return mrm.Trajectory{
		Rewards:  rt,
		LogProbs: tensor.Full(tensor.Float32, logProb, batch, horizon, 1),
	}
}

func metric(result EvalResult, name string) (EvalMetric, bool) {
	for _, m := range result.Metrics {
		if m.Name == name {
			return m, true
		}
	}
	return EvalMetric{}, false
}

func TestEvalPassesOnCleanTrajectory(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	tr := makeTrajectory(t, 4, []float64{-1, -2, -3}, -0.5)
	rtg, _ := tr.Rewards.ReverseCumsum()

	result := h.Run(tr, rtg)
	if !result.Passed {
		t.Fatalf("expected pass, got fail: %s", result.Reason)
	}
	if len(result.Metrics) != 5 {
		t.Fatalf("expected 5 metrics, got %d", len(result.Metrics))
	}
}

func TestSummarize(t *testing.T) {
	tr := makeTrajectory(t, 5, []float64{-1, -3}, -0.25)
	s := Summarize(tr)

	if s.Batch != 2 || s.Horizon != 5 {
		t.Fatalf("unexpected dims %d x %d", s.Batch, s.Horizon)
	}
	// Returns are -5 and -15.
	if s.MeanReturn != -10 {
		t.Fatalf("expected mean return -10, got %v", s.MeanReturn)
	}
	if math.Abs(s.StdReturn-math.Sqrt(50)) > 1e-9 {
		t.Fatalf("expected sample std sqrt(50), got %v", s.StdReturn)
	}
	if s.MeanLogProb != -0.25 {
		t.Fatalf("expected mean log prob -0.25, got %v", s.MeanLogProb)
	}
	if !s.Finite {
		t.Fatal("expected finite summary")
	}
}

func TestSummarizeSingleRowHasZeroStd(t *testing.T) {
	s := Summarize(makeTrajectory(t, 3, []float64{-2}, 0))
	if s.StdReturn != 0 {
		t.Fatalf("expected zero std for a single row, got %v", s.StdReturn)
	}
}

func TestEvalFailsOnNonFinite(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	tr := makeTrajectory(t, 2, []float64{-1, math.NaN()}, -1)

	result := h.Run(tr, nil)
	if result.Passed {
		t.Fatal("expected fail on NaN rewards")
	}
	if m, ok := metric(result, "finite"); !ok || m.Pass {
		t.Fatalf("expected failing finite metric, got %+v", m)
	}
}

func TestEvalFailsBelowReturnFloor(t *testing.T) {
	config := DefaultEvalConfig()
	config.ReturnFloor = -5
	h := NewEvalHarness(config)

	result := h.Run(makeTrajectory(t, 10, []float64{-1, -1}, 0), nil)
	if result.Passed {
		t.Fatal("expected fail below return floor")
	}
	if m, _ := metric(result, "mean_return"); m.Pass {
		t.Fatal("expected mean_return metric to fail")
	}
}

func TestEvalFailsOnReturnSpread(t *testing.T) {
	config := DefaultEvalConfig()
	config.MaxReturnStd = 1
	h := NewEvalHarness(config)

	result := h.Run(makeTrajectory(t, 4, []float64{0, -10}, 0), nil)
	if result.Passed {
		t.Fatal("expected fail on large return spread")
	}
}

func TestEvalFailsOnInconsistentRewardToGo(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	tr := makeTrajectory(t, 3, []float64{-1}, 0)
	wrong := tensor.Full(tensor.Float32, 7, 1, 3, 1)

	result := h.Run(tr, wrong)
	if result.Passed {
		t.Fatal("expected fail on inconsistent reward-to-go")
	}
	if m, ok := metric(result, "reward_to_go_gap"); !ok || m.Pass {
		t.Fatalf("expected failing reward_to_go_gap metric, got %+v", m)
	}
}

func TestEvalLogProbInformationalOnly(t *testing.T) {
	config := DefaultEvalConfig()
	config.LogProbFloor = -1
	h := NewEvalHarness(config)

	result := h.Run(makeTrajectory(t, 2, []float64{-1}, -10), nil)
	if !result.Passed {
		t.Fatalf("log prob check should be informational: %s", result.Reason)
	}
	if m, _ := metric(result, "mean_log_prob"); m.Pass {
		t.Fatal("mean_log_prob metric should show pass=false below floor")
	}
}
