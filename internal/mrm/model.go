package mrm

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/danielpatrickdp/mrm-sim/internal/tensor"
)

const tracerName = "github.com/danielpatrickdp/mrm-sim/internal/mrm"

// #region model
// Model is the rollout driver. It builds per-step inputs and unrolls a Cell
// over a horizon. It keeps no state between calls.
type Model struct {
	cell   *Cell
	tracer trace.Tracer
}

// NewModel builds a rollout driver around a fresh Cell.
func NewModel(model TransitionModel, policy Policy, batch int) (*Model, error) {
	cell, err := NewCell(model, policy, batch)
	if err != nil {
		return nil, err
	}
	return &Model{cell: cell, tracer: otel.Tracer(tracerName)}, nil
}

// Cell returns the underlying simulation cell.
func (m *Model) Cell() *Cell { return m.cell }

// BatchSize returns the number of rows simulated in parallel.
func (m *Model) BatchSize() int { return m.cell.batch }

// OutputSize returns the cell's output size.
func (m *Model) OutputSize() OutputSize { return m.cell.OutputSize() }

// #endregion model

// #region inputs
// Timesteps returns [batch, horizon, 1] holding horizon-1, ..., 0 in every row.
func (m *Model) Timesteps(horizon int) (*tensor.Tensor, error) {
	if horizon <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidHorizon, horizon)
	}
	batch := m.cell.batch
	data := make([]float64, batch*horizon)
	for b := 0; b < batch; b++ {
		for t := 0; t < horizon; t++ {
			data[b*horizon+t] = float64(horizon - 1 - t)
		}
	}
	return tensor.New(OutputDType, []int{batch, horizon, 1}, data)
}

// StopFlags returns a constant [batch, horizon, 1] tensor: zeros for
// FullyReparameterized, ones for NotReparameterized.
func (m *Model) StopFlags(horizon int, reparam ReparameterizationType) (*tensor.Tensor, error) {
	if horizon <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidHorizon, horizon)
	}
	return tensor.Full(OutputDType, reparam.StopFlag(), m.cell.batch, horizon, 1), nil
}

// Inputs concatenates timesteps and stop flags channel-wise into [batch, horizon, 2].
func (m *Model) Inputs(timesteps, flags *tensor.Tensor) (*tensor.Tensor, error) {
	shape := timesteps.Shape()
	if len(shape) != 3 || shape[0] != m.cell.batch || shape[2] != 1 {
		return nil, fmt.Errorf("%w: timesteps %v, want [%d horizon 1]", ErrShapeMismatch, shape, m.cell.batch)
	}
	if !tensor.SameShape(flags.Shape(), shape) {
		return nil, fmt.Errorf("%w: stop flags %v, timesteps %v", ErrShapeMismatch, flags.Shape(), shape)
	}

	rows := shape[0] * shape[1]
	ts, err := timesteps.Reshape(rows, 1)
	if err != nil {
		return nil, err
	}
	fs, err := flags.Reshape(rows, 1)
	if err != nil {
		return nil, err
	}
	joined, err := tensor.ConcatFeatures(ts, fs)
	if err != nil {
		return nil, fmt.Errorf("concat inputs: %w", err)
	}
	return joined.Reshape(shape[0], shape[1], 2)
}

// #endregion inputs

// #region describe-execute
// Describe assembles the inputs of a rollout without simulating anything.
func (m *Model) Describe(horizon int, reparam ReparameterizationType) (Rollout, error) {
	timesteps, err := m.Timesteps(horizon)
	if err != nil {
		return Rollout{}, err
	}
	flags, err := m.StopFlags(horizon, reparam)
	if err != nil {
		return Rollout{}, err
	}
	inputs, err := m.Inputs(timesteps, flags)
	if err != nil {
		return Rollout{}, err
	}
	return Rollout{horizon: horizon, reparam: reparam, inputs: inputs}, nil
}

// Execute runs a described rollout from initialState.
func (m *Model) Execute(ctx context.Context, r Rollout, initialState []*tensor.Tensor) (Trajectory, error) {
	if r.inputs == nil {
		return Trajectory{}, fmt.Errorf("%w: empty rollout description", ErrInvalidHorizon)
	}
	return m.Trajectory(ctx, initialState, r.inputs)
}

// #endregion describe-execute

// #region trajectory
// Trajectory unrolls the cell over inputs[:, t, :] for t = 0..horizon-1,
// feeding each step's next state into the following step. Cancellation
// discards the whole trajectory.
func (m *Model) Trajectory(ctx context.Context, initialState []*tensor.Tensor, inputs *tensor.Tensor) (tr Trajectory, err error) {
	shape := inputs.Shape()
	if len(shape) != 3 || shape[0] != m.cell.batch || shape[2] != 2 {
		return Trajectory{}, fmt.Errorf("%w: inputs %v, want [%d horizon 2]", ErrMalformedInput, shape, m.cell.batch)
	}
	horizon := shape[1]

	ctx, span := m.tracer.Start(ctx, "mrm.trajectory", trace.WithAttributes(
		attribute.Int("mrm.horizon", horizon),
		attribute.Int("mrm.batch", m.cell.batch),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	outputs := make([]CellOutput, 0, horizon)
	state := initialState
	for t := 0; t < horizon; t++ {
		if err := ctx.Err(); err != nil {
			return Trajectory{}, fmt.Errorf("trajectory step %d: %w", t, err)
		}
		input, err := inputs.Step(t)
		if err != nil {
			return Trajectory{}, err
		}
		out, next, err := m.cell.Step(input, state)
		if err != nil {
			return Trajectory{}, fmt.Errorf("trajectory step %d: %w", t, err)
		}
		outputs = append(outputs, out)
		state = next
	}

	return stackOutputs(initialState, outputs)
}

// RewardToGo returns suffix sums of rewards along the horizon axis.
// Shape and dtype are preserved.
func (m *Model) RewardToGo(rewards *tensor.Tensor) (*tensor.Tensor, error) {
	q, err := rewards.ReverseCumsum()
	if err != nil {
		return nil, fmt.Errorf("reward to go: %w", err)
	}
	return q, nil
}

func stackOutputs(initialState []*tensor.Tensor, outputs []CellOutput) (Trajectory, error) {
	first := outputs[0]
	tr := Trajectory{InitialState: initialState}

	var err error
	if tr.States, err = stackChannel(outputs, len(first.NextState), func(o CellOutput) []*tensor.Tensor { return o.NextState }); err != nil {
		return Trajectory{}, fmt.Errorf("stack states: %w", err)
	}
	if tr.Interms, err = stackChannel(outputs, len(first.Interms), func(o CellOutput) []*tensor.Tensor { return o.Interms }); err != nil {
		return Trajectory{}, fmt.Errorf("stack interms: %w", err)
	}
	if tr.Actions, err = stackChannel(outputs, len(first.Action), func(o CellOutput) []*tensor.Tensor { return o.Action }); err != nil {
		return Trajectory{}, fmt.Errorf("stack actions: %w", err)
	}

	rewards := make([]*tensor.Tensor, len(outputs))
	logProbs := make([]*tensor.Tensor, len(outputs))
	for t, o := range outputs {
		rewards[t] = o.Reward
		logProbs[t] = o.LogProb
	}
	if tr.Rewards, err = tensor.Stack(rewards); err != nil {
		return Trajectory{}, fmt.Errorf("stack rewards: %w", err)
	}
	if tr.LogProbs, err = tensor.Stack(logProbs); err != nil {
		return Trajectory{}, fmt.Errorf("stack log probs: %w", err)
	}
	return tr, nil
}

func stackChannel(outputs []CellOutput, n int, pick func(CellOutput) []*tensor.Tensor) ([]*tensor.Tensor, error) {
	stacked := make([]*tensor.Tensor, n)
	steps := make([]*tensor.Tensor, len(outputs))
	for i := 0; i < n; i++ {
		for t, o := range outputs {
			steps[t] = pick(o)[i]
		}
		s, err := tensor.Stack(steps)
		if err != nil {
			return nil, err
		}
		stacked[i] = s
	}
	return stacked, nil
}

// #endregion trajectory
