package mrm

import (
	"errors"
	"fmt"

	"github.com/danielpatrickdp/mrm-sim/internal/fluent"
	"github.com/danielpatrickdp/mrm-sim/internal/tensor"
)

// #region errors
var (
	// ErrMalformedInput is returned when a per-step input is not [batch, 2].
	ErrMalformedInput = errors.New("mrm: malformed step input")
	// ErrShapeMismatch is returned when a tensor disagrees with the size metadata.
	ErrShapeMismatch = errors.New("mrm: shape mismatch")
	// ErrInvalidHorizon is returned for a non-positive horizon.
	ErrInvalidHorizon = errors.New("mrm: horizon must be positive")
	// ErrInvalidBatch is returned for a non-positive batch size.
	ErrInvalidBatch = errors.New("mrm: batch size must be positive")
	// ErrMissingLogProb is returned when a sampled fluent has no log-probability.
	ErrMissingLogProb = errors.New("mrm: sampled fluent without log-probability")
)

// #endregion errors

// #region shapes
// Shape is the per-row shape of one fluent variable, excluding the batch axis.
type Shape []int

// Sizes lists one Shape per variable, in declaration order.
type Sizes []Shape

// OutputSize describes the five channels a simulation step emits.
type OutputSize struct {
	State   Sizes
	Action  Sizes
	Interm  Sizes
	Reward  int
	LogProb int
}

// #endregion shapes

// #region reparameterization
// ReparameterizationType selects the sampling discipline of a whole rollout.
type ReparameterizationType int

const (
	// FullyReparameterized draws are deterministic functions of parameters and noise.
	FullyReparameterized ReparameterizationType = iota
	// NotReparameterized draws rely on score-function estimation via log-probabilities.
	NotReparameterized
)

func (r ReparameterizationType) String() string {
	switch r {
	case FullyReparameterized:
		return "fully_reparameterized"
	case NotReparameterized:
		return "not_reparameterized"
	default:
		return fmt.Sprintf("reparameterization(%d)", int(r))
	}
}

// StopFlag is the per-step scalar that surfaces the discipline to collaborators.
func (r ReparameterizationType) StopFlag() float64 {
	if r == NotReparameterized {
		return 1
	}
	return 0
}

// ParseReparameterization maps a config string to a ReparameterizationType.
func ParseReparameterization(s string) (ReparameterizationType, error) {
	switch s {
	case "fully_reparameterized", "reparameterized", "":
		return FullyReparameterized, nil
	case "not_reparameterized", "score_function":
		return NotReparameterized, nil
	default:
		return 0, fmt.Errorf("unknown reparameterization type %q", s)
	}
}

// #endregion reparameterization

// #region collaborators
// TransitionModel produces initial states, stochastic transitions and rewards.
type TransitionModel interface {
	StateSize() Sizes
	ActionSize() Sizes
	IntermSize() Sizes

	// InitialState returns one [batch]+shape tensor per state variable.
	InitialState(batch int) ([]*tensor.Tensor, error)
	// TransitionScope binds the current state and action into a fresh scope.
	TransitionScope(state, action []*tensor.Tensor) (fluent.Scope, error)
	// Sample draws intermediate and next-state fluents; each carries a [batch,1] log-probability.
	Sample(scope fluent.Scope, batch int) (interms, next []fluent.Triple, err error)
	// Reward evaluates the [batch,1] reward against a scope holding the next state.
	Reward(scope fluent.Scope) (*tensor.Tensor, error)
}

// Policy maps the current state and the [batch,2] (timestep, stop flag) input to an action.
type Policy interface {
	Act(state []*tensor.Tensor, input *tensor.Tensor) ([]*tensor.Tensor, error)
}

// #endregion collaborators

// #region outputs
// CellOutput is the result of one simulation step.
type CellOutput struct {
	NextState []*tensor.Tensor
	Action    []*tensor.Tensor
	Interms   []*tensor.Tensor
	Reward    *tensor.Tensor
	LogProb   *tensor.Tensor
}

// Trajectory is a horizon-stacked rollout. Every stacked tensor is
// [batch, horizon]+shape with index 0 the first simulated step.
type Trajectory struct {
	InitialState []*tensor.Tensor
	States       []*tensor.Tensor
	Interms      []*tensor.Tensor
	Actions      []*tensor.Tensor
	Rewards      *tensor.Tensor
	LogProbs     *tensor.Tensor
}

// Horizon returns the number of simulated steps.
func (tr Trajectory) Horizon() int {
	return tr.Rewards.Shape()[1]
}

// TotalReturn returns the [batch,1] undiscounted return of every rollout row.
func (tr Trajectory) TotalReturn() *tensor.Tensor {
	return tr.Rewards.SumFeatures()
}

// Rollout is an immutable description of one horizon-length unroll,
// produced by Model.Describe and consumed by Model.Execute.
type Rollout struct {
	horizon int
	reparam ReparameterizationType
	inputs  *tensor.Tensor
}

// Horizon returns the number of steps the rollout describes.
func (r Rollout) Horizon() int { return r.horizon }

// Reparameterization returns the rollout's sampling discipline.
func (r Rollout) Reparameterization() ReparameterizationType { return r.reparam }

// Inputs returns the [batch, horizon, 2] per-step inputs.
func (r Rollout) Inputs() *tensor.Tensor { return r.inputs }

// #endregion outputs
