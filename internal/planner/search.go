package planner

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"time"

	"github.com/danielpatrickdp/mrm-sim/internal/eval"
	"github.com/danielpatrickdp/mrm-sim/internal/gate"
	"github.com/danielpatrickdp/mrm-sim/internal/logging"
	"github.com/danielpatrickdp/mrm-sim/internal/update"
)

// #region random-search
// RandomSearch is a derivative-free hill climber over policy parameters.
// Each epoch runs propose → rollout → eval → gate → commit/reject.
type RandomSearch struct {
	*base
	policy Tunable
	gate   *gate.Gate
	src    rand.Source
	best   eval.Summary
	params []float64
}

func (p *RandomSearch) Kind() Kind { return KindRandomSearch }

// Build wires the model and evaluates the starting parameters as the incumbent.
func (p *RandomSearch) Build(ctx context.Context) error {
	if err := p.build(); err != nil {
		return err
	}
	p.gate = gate.NewGate(p.cfg.Gate)
	p.src = rand.NewPCG(p.cfg.Seed, p.cfg.Seed^0x2545f4914f6cdd1d)
	p.params = p.policy.Params()

	_, baseline, err := p.simulate(ctx)
	if err != nil {
		return fmt.Errorf("baseline rollout: %w", err)
	}
	p.best = baseline.Summary
	p.deps.Logger.Info("planner built",
		"kind", p.Kind(), "params", len(p.params), "baseline_return", p.best.MeanReturn)
	return nil
}

// Run executes epochs of random search. On return the policy holds the
// best parameters found.
func (p *RandomSearch) Run(ctx context.Context, epochs int, callbacks Callbacks) ([]EpochResult, error) {
	if err := p.checkRun(epochs); err != nil {
		return nil, err
	}
	results := make([]EpochResult, 0, epochs)
	defer func() { _ = p.policy.SetParams(p.params) }()

	for epoch := 1; epoch <= epochs; epoch++ {
		if err := callbacks.fire(EventEpochStart, EpochResult{Epoch: epoch, Best: p.best, Params: p.Params()}); err != nil {
			return results, err
		}
		r, err := p.epoch(ctx, epoch)
		if err != nil {
			return results, fmt.Errorf("epoch %d: %w", epoch, err)
		}
		results = append(results, r)
		p.deps.Logger.Info("epoch", "epoch", epoch, "action", r.Action,
			"candidate_return", r.Candidate.MeanReturn, "best_return", r.Best.MeanReturn)
		if err := callbacks.fire(EventEpochEnd, r); err != nil {
			return results, err
		}
	}
	return results, nil
}

func (p *RandomSearch) epoch(ctx context.Context, epoch int) (EpochResult, error) {
	start := time.Now()

	// 1. Propose
	noise := update.Noise(p.src, len(p.params))
	proposal, err := update.Propose(p.params, p.policy.Blocks(), noise, p.cfg.Update)
	if err != nil {
		return EpochResult{}, err
	}
	p.deps.Logger.Debug("proposal", "epoch", epoch,
		"delta_norm", proposal.Metrics.DeltaNorm, "param_norm", proposal.Metrics.ParamNorm,
		"blocks_hit", proposal.Metrics.BlocksHit)
	p.deps.Logger.Log(ctx, logging.LevelTrace, "proposal params", "epoch", epoch, "params", proposal.Params)

	// 2. Rollout
	if err := p.policy.SetParams(proposal.Params); err != nil {
		return EpochResult{}, err
	}
	_, evalResult, err := p.simulate(ctx)
	if err != nil {
		return EpochResult{}, err
	}

	result := EpochResult{
		Epoch:         epoch,
		Candidate:     evalResult.Summary,
		UpdateMetrics: &proposal.Metrics,
		EvalResult:    &evalResult,
	}

	// 3. Eval
	if !evalResult.Passed {
		result.Action = "eval_rollback"
		result.Reason = evalResult.Reason
		return p.finish(result, start), nil
	}

	// 4. Gate
	decision := p.gate.Evaluate(p.best, evalResult, proposal.Metrics)
	result.GateDecision = &decision
	result.Reason = decision.Reason
	if decision.Action != "commit" {
		result.Action = "gate_reject"
		return p.finish(result, start), nil
	}

	// 5. Commit
	result.Action = "commit"
	p.params = proposal.Params
	p.best = evalResult.Summary
	return p.finish(result, start), nil
}

func (p *RandomSearch) finish(r EpochResult, start time.Time) EpochResult {
	r.Best = p.best
	r.Params = p.Params()
	r.Elapsed = time.Since(start)
	return r
}

// Best returns the incumbent's rollout statistics.
func (p *RandomSearch) Best() eval.Summary { return p.best }

// Params returns a copy of the incumbent parameters.
func (p *RandomSearch) Params() []float64 {
	return append([]float64(nil), p.params...)
}

// Summary writes the planner configuration and its current incumbent.
func (p *RandomSearch) Summary(w io.Writer) error {
	if err := p.summaryHeader(w); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "parameters:         %d\nstep:               %g\nbest mean return:   %.4f\n",
		len(p.policy.Params()), p.cfg.Update.Step, p.best.MeanReturn)
	return err
}

// #endregion random-search
