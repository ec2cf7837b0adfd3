package planner

import (
	"context"
	"fmt"
	"io"
	"time"

	"gonum.org/v1/gonum/stat"
)

// #region evaluate
// Evaluate keeps the policy fixed and collects rollout statistics per epoch.
type Evaluate struct {
	*base
	returns []float64
}

func (p *Evaluate) Kind() Kind { return KindEvaluate }

// Build wires the model.
func (p *Evaluate) Build(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.build(); err != nil {
		return err
	}
	p.deps.Logger.Info("planner built", "kind", p.Kind())
	return nil
}

// Run simulates epochs rollouts of the fixed policy.
func (p *Evaluate) Run(ctx context.Context, epochs int, callbacks Callbacks) ([]EpochResult, error) {
	if err := p.checkRun(epochs); err != nil {
		return nil, err
	}
	results := make([]EpochResult, 0, epochs)
	for epoch := 1; epoch <= epochs; epoch++ {
		if err := callbacks.fire(EventEpochStart, EpochResult{Epoch: epoch}); err != nil {
			return results, err
		}
		start := time.Now()
		_, evalResult, err := p.simulate(ctx)
		if err != nil {
			return results, fmt.Errorf("epoch %d: %w", epoch, err)
		}
		p.returns = append(p.returns, evalResult.Summary.MeanReturn)

		r := EpochResult{
			Epoch:      epoch,
			Action:     "evaluate",
			Reason:     evalResult.Reason,
			Candidate:  evalResult.Summary,
			Best:       evalResult.Summary,
			EvalResult: &evalResult,
			Elapsed:    time.Since(start),
		}
		results = append(results, r)
		p.deps.Logger.Info("epoch", "epoch", epoch, "mean_return", r.Candidate.MeanReturn, "passed", evalResult.Passed)
		if err := callbacks.fire(EventEpochEnd, r); err != nil {
			return results, err
		}
	}
	return results, nil
}

// Overall returns the mean and standard deviation of per-epoch mean returns.
func (p *Evaluate) Overall() (mean, std float64) {
	if len(p.returns) == 0 {
		return 0, 0
	}
	mean, std = stat.MeanStdDev(p.returns, nil)
	if len(p.returns) < 2 {
		std = 0
	}
	return mean, std
}

// Summary writes the planner configuration and collected statistics.
func (p *Evaluate) Summary(w io.Writer) error {
	if err := p.summaryHeader(w); err != nil {
		return err
	}
	mean, std := p.Overall()
	_, err := fmt.Fprintf(w, "epochs:             %d\nmean return:        %.4f ± %.4f\n", len(p.returns), mean, std)
	return err
}

// #endregion evaluate
