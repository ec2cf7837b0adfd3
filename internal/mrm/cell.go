// Package mrm implements the Markov recurrent model: a one-step simulation
// cell and the rollout driver that unrolls it over a fixed horizon.
package mrm

import (
	"fmt"

	"github.com/danielpatrickdp/mrm-sim/internal/fluent"
	"github.com/danielpatrickdp/mrm-sim/internal/tensor"
)

// OutputDType is the single precision every cell output is normalized to.
const OutputDType = tensor.Float32

// #region cell
// Cell computes one MDP transition. It holds no mutable state: each Step is a
// function of its arguments and the collaborators' parameters.
type Cell struct {
	model  TransitionModel
	policy Policy
	batch  int
}

// NewCell binds a transition model and a policy for a fixed batch size.
func NewCell(model TransitionModel, policy Policy, batch int) (*Cell, error) {
	if batch <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBatch, batch)
	}
	return &Cell{model: model, policy: policy, batch: batch}, nil
}

// BatchSize returns the number of rows simulated in parallel.
func (c *Cell) BatchSize() int { return c.batch }

// StateSize returns the per-variable state shapes.
func (c *Cell) StateSize() Sizes { return c.model.StateSize() }

// ActionSize returns the per-variable action shapes.
func (c *Cell) ActionSize() Sizes { return c.model.ActionSize() }

// IntermSize returns the per-variable intermediate fluent shapes.
func (c *Cell) IntermSize() Sizes { return c.model.IntermSize() }

// OutputSize returns (state, action, interm, 1, 1).
func (c *Cell) OutputSize() OutputSize {
	return OutputSize{
		State:   c.StateSize(),
		Action:  c.ActionSize(),
		Interm:  c.IntermSize(),
		Reward:  1,
		LogProb: 1,
	}
}

// InitialState delegates to the transition model.
func (c *Cell) InitialState() ([]*tensor.Tensor, error) {
	state, err := c.model.InitialState(c.batch)
	if err != nil {
		return nil, fmt.Errorf("initial state: %w", err)
	}
	if err := c.checkTensors("initial state", state, c.StateSize()); err != nil {
		return nil, err
	}
	return state, nil
}

// #endregion cell

// #region step
// Step simulates one transition. input is [batch, 2] holding
// (timestep, stop flag). The returned next state equals output.NextState.
func (c *Cell) Step(input *tensor.Tensor, state []*tensor.Tensor) (CellOutput, []*tensor.Tensor, error) {
	if !tensor.SameShape(input.Shape(), []int{c.batch, 2}) {
		return CellOutput{}, nil, fmt.Errorf("%w: got %v, want [%d 2]", ErrMalformedInput, input.Shape(), c.batch)
	}
	parts, err := input.SplitFeatures(1, 1)
	if err != nil {
		return CellOutput{}, nil, fmt.Errorf("split input: %w", err)
	}
	timestep, stopFlag := parts[0], parts[1]

	if err := c.checkTensors("state", state, c.StateSize()); err != nil {
		return CellOutput{}, nil, err
	}

	// 1. Action
	action, err := c.policy.Act(state, input)
	if err != nil {
		return CellOutput{}, nil, fmt.Errorf("policy: %w", err)
	}
	if err := c.checkTensors("action", action, c.ActionSize()); err != nil {
		return CellOutput{}, nil, err
	}

	// 2. Transition
	scope, err := c.model.TransitionScope(state, action)
	if err != nil {
		return CellOutput{}, nil, fmt.Errorf("transition scope: %w", err)
	}
	scope[fluent.Timestep] = timestep
	scope[fluent.StopFlag] = stopFlag

	interms, next, err := c.model.Sample(scope, c.batch)
	if err != nil {
		return CellOutput{}, nil, fmt.Errorf("sample: %w", err)
	}
	if err := c.checkFluents("interm", interms, c.IntermSize()); err != nil {
		return CellOutput{}, nil, err
	}
	if err := c.checkFluents("next state", next, c.StateSize()); err != nil {
		return CellOutput{}, nil, err
	}

	// 3. Log-probability of this step's draws
	logProb, err := c.logProb(interms, next)
	if err != nil {
		return CellOutput{}, nil, err
	}

	// 4. Reward sees the realized next state
	scope.Update(next)
	reward, err := c.model.Reward(scope)
	if err != nil {
		return CellOutput{}, nil, fmt.Errorf("reward: %w", err)
	}
	if !tensor.SameShape(reward.Shape(), []int{c.batch, 1}) {
		return CellOutput{}, nil, fmt.Errorf("%w: reward %v, want [%d 1]", ErrShapeMismatch, reward.Shape(), c.batch)
	}

	nextState := values(next)
	output := CellOutput{
		NextState: nextState,
		Action:    normalize(action),
		Interms:   values(interms),
		Reward:    reward.Cast(OutputDType),
		LogProb:   logProb.Cast(OutputDType),
	}
	return output, nextState, nil
}

// logProb sums every interm and next-state log-probability per batch row.
func (c *Cell) logProb(interms, next []fluent.Triple) (*tensor.Tensor, error) {
	total := tensor.Zeros(tensor.Float64, c.batch, 1)
	for _, group := range [][]fluent.Triple{interms, next} {
		if len(group) == 0 {
			continue
		}
		lps := make([]*tensor.Tensor, len(group))
		for i, f := range group {
			lps[i] = f.LogProb
		}
		joined, err := tensor.ConcatFeatures(lps...)
		if err != nil {
			return nil, fmt.Errorf("concat log probs: %w", err)
		}
		total, err = tensor.Add(total, joined.SumFeatures())
		if err != nil {
			return nil, fmt.Errorf("accumulate log probs: %w", err)
		}
	}
	return total, nil
}

// #endregion step

// #region validation
func (c *Cell) checkTensors(what string, ts []*tensor.Tensor, sizes Sizes) error {
	if len(ts) != len(sizes) {
		return fmt.Errorf("%w: %s has %d variables, want %d", ErrShapeMismatch, what, len(ts), len(sizes))
	}
	for i, t := range ts {
		want := tensor.BatchShape(c.batch, sizes[i])
		if t == nil || !tensor.SameShape(t.Shape(), want) {
			return fmt.Errorf("%w: %s[%d] is %v, want %v", ErrShapeMismatch, what, i, shapeOf(t), want)
		}
	}
	return nil
}

func (c *Cell) checkFluents(what string, fs []fluent.Triple, sizes Sizes) error {
	ts := make([]*tensor.Tensor, len(fs))
	for i, f := range fs {
		ts[i] = f.Value
		if !f.Stochastic() {
			return fmt.Errorf("%w: %s fluent %q", ErrMissingLogProb, what, f.Name)
		}
		if !tensor.SameShape(f.LogProb.Shape(), []int{c.batch, 1}) {
			return fmt.Errorf("%w: %s fluent %q log prob %v, want [%d 1]", ErrShapeMismatch, what, f.Name, f.LogProb.Shape(), c.batch)
		}
	}
	return c.checkTensors(what, ts, sizes)
}

func shapeOf(t *tensor.Tensor) []int {
	if t == nil {
		return nil
	}
	return t.Shape()
}

// #endregion validation

// #region outputs
func values(fs []fluent.Triple) []*tensor.Tensor {
	ts := make([]*tensor.Tensor, len(fs))
	for i, f := range fs {
		ts[i] = f.Value
	}
	return normalize(ts)
}

func normalize(ts []*tensor.Tensor) []*tensor.Tensor {
	out := make([]*tensor.Tensor, len(ts))
	for i, t := range ts {
		out[i] = t.Cast(OutputDType)
	}
	return out
}

// #endregion outputs
