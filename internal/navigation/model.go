// Package navigation is a continuous 2-D navigation domain implementing the
// transition and reward contract of the rollout core.
package navigation

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/danielpatrickdp/mrm-sim/internal/fluent"
	"github.com/danielpatrickdp/mrm-sim/internal/mrm"
	"github.com/danielpatrickdp/mrm-sim/internal/tensor"
)

// #region model
// Model samples noisy navigation transitions. It owns a seeded random source
// and is not safe for concurrent use.
type Model struct {
	cfg Config
	src rand.Source
}

// NewModel validates cfg and seeds the model's random source.
func NewModel(cfg Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Model{cfg: cfg, src: rand.NewPCG(cfg.Seed, cfg.Seed^0xda3e39cb94b95bdb)}, nil
}

// Config returns the model configuration.
func (m *Model) Config() Config { return m.cfg }

func (m *Model) StateSize() mrm.Sizes  { return mrm.Sizes{{2}} }
func (m *Model) ActionSize() mrm.Sizes { return mrm.Sizes{{2}} }
func (m *Model) IntermSize() mrm.Sizes { return mrm.Sizes{{2}, {2}} }

// InitialState places every row at the configured start location.
func (m *Model) InitialState(batch int) ([]*tensor.Tensor, error) {
	data := make([]float64, 0, batch*2)
	for b := 0; b < batch; b++ {
		data = append(data, m.cfg.Start[0], m.cfg.Start[1])
	}
	loc, err := tensor.New(tensor.Float32, []int{batch, 2}, data)
	if err != nil {
		return nil, fmt.Errorf("initial location: %w", err)
	}
	return []*tensor.Tensor{loc}, nil
}

// TransitionScope binds location and move.
func (m *Model) TransitionScope(state, action []*tensor.Tensor) (fluent.Scope, error) {
	if len(state) != 1 || len(action) != 1 {
		return nil, fmt.Errorf("navigation scope: got %d state and %d action tensors", len(state), len(action))
	}
	return fluent.Scope{Location: state[0], Move: action[0]}, nil
}

// #endregion model

// #region sample
// Sample draws velocity, drift and the next location. A zero stop flag
// selects the reparameterized path (mu + sigma*eps); a non-zero one draws
// from the distribution directly.
func (m *Model) Sample(scope fluent.Scope, batch int) ([]fluent.Triple, []fluent.Triple, error) {
	loc, err := scope.Lookup(Location)
	if err != nil {
		return nil, nil, err
	}
	move, err := scope.Lookup(Move)
	if err != nil {
		return nil, nil, err
	}
	stop, err := scope.Lookup(fluent.StopFlag)
	if err != nil {
		return nil, nil, err
	}

	vel := newDraws(batch)
	drift := newDraws(batch)
	next := newDraws(batch)

	for b := 0; b < batch; b++ {
		reparam := stop.At(b, 0) == 0
		pos := []float64{loc.At(b, 0), loc.At(b, 1)}
		decel := deceleration(floats.Distance(pos, m.cfg.Center[:], 2))

		for k := 0; k < 2; k++ {
			v := vel.draw(m, b, k, decel*move.At(b, k), m.cfg.VelocityNoise, reparam)
			d := drift.draw(m, b, k, 0, m.cfg.DriftNoise, reparam)
			mu := clip(pos[k]+v+d, m.cfg.Lower[k], m.cfg.Upper[k])
			next.draw(m, b, k, mu, m.cfg.LocationNoise, reparam)
		}
	}

	interms := []fluent.Triple{vel.triple(Velocity, batch), drift.triple(Drift, batch)}
	nextState := []fluent.Triple{next.triple(NextLocation, batch)}
	return interms, nextState, nil
}

// draws accumulates [batch, 2] samples and their per-row log-probabilities.
type draws struct {
	values  []float64
	logProb []float64
}

func newDraws(batch int) *draws {
	return &draws{values: make([]float64, batch*2), logProb: make([]float64, batch)}
}

func (d *draws) draw(m *Model, b, k int, mu, sigma float64, reparam bool) float64 {
	dist := distuv.Normal{Mu: mu, Sigma: sigma, Src: m.src}
	var x float64
	if reparam {
		eps := distuv.Normal{Mu: 0, Sigma: 1, Src: m.src}.Rand()
		x = mu + sigma*eps
	} else {
		x = dist.Rand()
	}
	d.values[b*2+k] = x
	d.logProb[b] += dist.LogProb(x)
	return x
}

func (d *draws) triple(name string, batch int) fluent.Triple {
	value, _ := tensor.New(tensor.Float64, []int{batch, 2}, d.values)
	lp, _ := tensor.New(tensor.Float64, []int{batch, 1}, d.logProb)
	return fluent.Triple{Name: name, Value: value, LogProb: lp}
}

// #endregion sample

// #region reward
// Reward is the negative Euclidean distance between the next location and the goal.
func (m *Model) Reward(scope fluent.Scope) (*tensor.Tensor, error) {
	next, err := scope.Lookup(NextLocation)
	if err != nil {
		return nil, err
	}
	batch := next.Batch()
	data := make([]float64, batch)
	for b := 0; b < batch; b++ {
		data[b] = -floats.Distance(next.Row(b), m.cfg.Goal[:], 2)
	}
	return tensor.New(tensor.Float64, []int{batch, 1}, data)
}

// #endregion reward

// #region helpers
// deceleration maps distance to the centre onto [0, 1).
func deceleration(d float64) float64 {
	return 2/(1+math.Exp(-2*d)) - 1
}

func clip(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

// #endregion helpers
