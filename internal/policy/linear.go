// Package policy provides a linear reactive policy for the rollout core.
package policy

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/danielpatrickdp/mrm-sim/internal/mrm"
	"github.com/danielpatrickdp/mrm-sim/internal/tensor"
)

// ErrParams is returned when a parameter vector has the wrong length.
var ErrParams = errors.New("policy: parameter length mismatch")

// #region config
// Config holds the policy hyperparameters.
type Config struct {
	Bound     float64 `yaml:"bound" json:"bound"`           // |action| cap per component
	Horizon   int     `yaml:"horizon" json:"horizon"`       // timestep normalizer
	InitScale float64 `yaml:"init_scale" json:"init_scale"` // stddev of initial weights
	Seed      uint64  `yaml:"seed" json:"seed"`
}

// DefaultConfig returns a small random initialization with unit-bounded actions.
func DefaultConfig() Config {
	return Config{Bound: 1, Horizon: 1, InitScale: 0.1, Seed: 7}
}

// #endregion config

// #region linear
// Linear computes action = Bound * tanh(W x + b), where x is the flattened
// state followed by the normalized timestep and the stop flag.
type Linear struct {
	cfg        Config
	stateSize  mrm.Sizes
	actionSize mrm.Sizes
	widths     []int
	inDim      int
	weights    *mat.Dense
	bias       *mat.VecDense
}

// NewLinear builds a policy for the given state and action shapes.
func NewLinear(stateSize, actionSize mrm.Sizes, cfg Config) (*Linear, error) {
	if len(actionSize) == 0 {
		return nil, fmt.Errorf("policy: no action variables")
	}
	if cfg.Bound <= 0 {
		return nil, fmt.Errorf("policy: bound must be positive, got %v", cfg.Bound)
	}

	inDim := 2
	for _, s := range stateSize {
		inDim += width(s)
	}
	widths := make([]int, len(actionSize))
	outDim := 0
	for i, s := range actionSize {
		widths[i] = width(s)
		outDim += widths[i]
	}

	w := mat.NewDense(outDim, inDim, nil)
	if cfg.InitScale > 0 {
		init := distuv.Normal{Mu: 0, Sigma: cfg.InitScale, Src: rand.NewPCG(cfg.Seed, cfg.Seed+1)}
		for i := 0; i < outDim; i++ {
			for j := 0; j < inDim; j++ {
				w.Set(i, j, init.Rand())
			}
		}
	}

	return &Linear{
		cfg:        cfg,
		stateSize:  stateSize,
		actionSize: actionSize,
		widths:     widths,
		inDim:      inDim,
		weights:    w,
		bias:       mat.NewVecDense(outDim, nil),
	}, nil
}

// Act evaluates the policy for every batch row.
func (p *Linear) Act(state []*tensor.Tensor, input *tensor.Tensor) ([]*tensor.Tensor, error) {
	features, err := p.features(state, input)
	if err != nil {
		return nil, err
	}

	var out mat.Dense
	out.Mul(features.Dense(), p.weights.T())
	out.Apply(func(_, j int, v float64) float64 {
		return p.cfg.Bound * math.Tanh(v+p.bias.AtVec(j))
	}, &out)

	joined := tensor.FromDense(tensor.Float32, &out)
	parts, err := joined.SplitFeatures(p.widths...)
	if err != nil {
		return nil, fmt.Errorf("split actions: %w", err)
	}
	actions := make([]*tensor.Tensor, len(parts))
	for i, part := range parts {
		if actions[i], err = part.Reshape(tensor.BatchShape(input.Batch(), p.actionSize[i])...); err != nil {
			return nil, fmt.Errorf("reshape action %d: %w", i, err)
		}
	}
	return actions, nil
}

func (p *Linear) features(state []*tensor.Tensor, input *tensor.Tensor) (*tensor.Tensor, error) {
	if len(state) != len(p.stateSize) {
		return nil, fmt.Errorf("policy: got %d state tensors, want %d", len(state), len(p.stateSize))
	}
	batch := input.Batch()
	if input.Width() != 2 {
		return nil, fmt.Errorf("policy: input width %d, want 2", input.Width())
	}

	horizon := math.Max(1, float64(p.cfg.Horizon))
	in := input.Data()
	for b := 0; b < batch; b++ {
		in[b*2] /= horizon
	}
	scaled, err := tensor.New(input.DType(), []int{batch, 2}, in)
	if err != nil {
		return nil, err
	}

	parts := append(append([]*tensor.Tensor{}, state...), scaled)
	x, err := tensor.ConcatFeatures(parts...)
	if err != nil {
		return nil, fmt.Errorf("policy features: %w", err)
	}
	if x.Width() != p.inDim {
		return nil, fmt.Errorf("policy: feature width %d, want %d", x.Width(), p.inDim)
	}
	return x, nil
}

// #endregion linear

// #region params
// NumParams returns the number of weights plus biases.
func (p *Linear) NumParams() int {
	r, c := p.weights.Dims()
	return r*c + r
}

// Blocks returns parameter block sizes: weights, then biases.
func (p *Linear) Blocks() []int {
	r, c := p.weights.Dims()
	return []int{r * c, r}
}

// Params returns a copy of the weights (row-major) followed by the biases.
func (p *Linear) Params() []float64 {
	r, c := p.weights.Dims()
	out := make([]float64, 0, p.NumParams())
	for i := 0; i < r; i++ {
		out = append(out, p.weights.RawRowView(i)[:c]...)
	}
	return append(out, p.bias.RawVector().Data[:r]...)
}

// SetParams replaces all parameters.
func (p *Linear) SetParams(params []float64) error {
	if len(params) != p.NumParams() {
		return fmt.Errorf("%w: got %d, want %d", ErrParams, len(params), p.NumParams())
	}
	r, c := p.weights.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			p.weights.Set(i, j, params[i*c+j])
		}
		p.bias.SetVec(i, params[r*c+i])
	}
	return nil
}

// Clone returns an independent copy of the policy.
func (p *Linear) Clone() *Linear {
	c := *p
	c.weights = mat.DenseCopyOf(p.weights)
	c.bias = mat.VecDenseCopyOf(p.bias)
	return &c
}

// #endregion params

func width(s mrm.Shape) int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}
