package mrm

import (
	"math/rand/v2"

	"github.com/danielpatrickdp/mrm-sim/internal/fluent"
	"github.com/danielpatrickdp/mrm-sim/internal/tensor"
)

// walkModel is a small transition model with mixed native dtypes:
// a float position (2,), an int step counter (), a float noise
// intermediate (2,) and a bool "moved" intermediate ().
type walkModel struct {
	sigma      float64
	rng        *rand.Rand
	rewardName string
	dropLogP   bool
}

func newWalkModel(sigma float64, seed uint64) *walkModel {
	return &walkModel{
		sigma:      sigma,
		rng:        rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		rewardName: "position'",
	}
}

func (m *walkModel) StateSize() Sizes  { return Sizes{{2}, {}} }
func (m *walkModel) ActionSize() Sizes { return Sizes{{2}} }
func (m *walkModel) IntermSize() Sizes { return Sizes{{2}, {}} }

func (m *walkModel) InitialState(batch int) ([]*tensor.Tensor, error) {
	return []*tensor.Tensor{
		tensor.Zeros(tensor.Float64, batch, 2),
		tensor.Zeros(tensor.Int32, batch, 1),
	}, nil
}

func (m *walkModel) TransitionScope(state, action []*tensor.Tensor) (fluent.Scope, error) {
	return fluent.Scope{
		"position": state[0],
		"steps":    state[1],
		"move":     action[0],
	}, nil
}

func (m *walkModel) Sample(scope fluent.Scope, batch int) ([]fluent.Triple, []fluent.Triple, error) {
	pos, err := scope.Lookup("position")
	if err != nil {
		return nil, nil, err
	}
	steps, err := scope.Lookup("steps")
	if err != nil {
		return nil, nil, err
	}
	move, err := scope.Lookup("move")
	if err != nil {
		return nil, nil, err
	}

	noise := make([]float64, batch*2)
	moved := make([]float64, batch)
	next := make([]float64, batch*2)
	count := make([]float64, batch)
	for b := 0; b < batch; b++ {
		for k := 0; k < 2; k++ {
			i := b*2 + k
			if m.sigma > 0 {
				noise[i] = m.rng.NormFloat64() * m.sigma
			}
			next[i] = pos.At(b, k) + move.At(b, k) + noise[i]
			if move.At(b, k) != 0 {
				moved[b] = 1
			}
		}
		count[b] = steps.At(b, 0) + 1
	}

	noiseT, _ := tensor.New(tensor.Float64, []int{batch, 2}, noise)
	movedT, _ := tensor.New(tensor.Bool, []int{batch, 1}, moved)
	nextT, _ := tensor.New(tensor.Float64, []int{batch, 2}, next)
	countT, _ := tensor.New(tensor.Int32, []int{batch, 1}, count)

	lp := func(v float64) *tensor.Tensor {
		if m.dropLogP {
			return nil
		}
		return tensor.Full(tensor.Float64, v, batch, 1)
	}

	interms := []fluent.Triple{
		{Name: "noise", Value: noiseT, LogProb: lp(-0.5)},
		{Name: "moved", Value: movedT, LogProb: lp(-0.25)},
	}
	nextState := []fluent.Triple{
		{Name: "position'", Value: nextT, LogProb: lp(-1.0)},
		{Name: "steps'", Value: countT, LogProb: lp(0)},
	}
	return interms, nextState, nil
}

func (m *walkModel) Reward(scope fluent.Scope) (*tensor.Tensor, error) {
	next, err := scope.Lookup(m.rewardName)
	if err != nil {
		return nil, err
	}
	return next.SumFeatures(), nil
}

// echoPolicy moves by (timestep, stop flag) so tests can see which input row
// each step received.
type echoPolicy struct {
	width int
}

func (p echoPolicy) Act(state []*tensor.Tensor, input *tensor.Tensor) ([]*tensor.Tensor, error) {
	if p.width == 0 || p.width == 2 {
		return []*tensor.Tensor{input}, nil
	}
	return []*tensor.Tensor{tensor.Zeros(tensor.Float64, input.Batch(), p.width)}, nil
}

func stepInput(batch int, timestep, flag float64) *tensor.Tensor {
	data := make([]float64, 0, batch*2)
	for b := 0; b < batch; b++ {
		data = append(data, timestep, flag)
	}
	t, _ := tensor.New(tensor.Float32, []int{batch, 2}, data)
	return t
}
