package update

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// #region propose
// Propose is a pure function computing a candidate parameter vector from the
// current one and a unit noise vector. Each block's delta is clamped to
// MaxDeltaNormPerBlock, then the whole candidate is capped to MaxParamNorm.
func Propose(current []float64, blocks []int, noise []float64, cfg Config) (Proposal, error) {
	if len(noise) != len(current) {
		return Proposal{}, fmt.Errorf("%w: %d noise values for %d params", ErrBlocks, len(noise), len(current))
	}
	total := 0
	for _, n := range blocks {
		if n < 0 {
			return Proposal{}, fmt.Errorf("%w: negative block size %d", ErrBlocks, n)
		}
		total += n
	}
	if total != len(current) {
		return Proposal{}, fmt.Errorf("%w: blocks cover %d of %d params", ErrBlocks, total, len(current))
	}

	next := append([]float64(nil), current...)
	metrics := Metrics{BlocksHit: []int{}, BlockMetrics: make([]BlockMetric, 0, len(blocks))}

	lo := 0
	for i, n := range blocks {
		hi := lo + n
		delta := append([]float64(nil), noise[lo:hi]...)
		floats.Scale(cfg.Step, delta)

		norm := floats.Norm(delta, 2)
		clamped := false
		if cfg.MaxDeltaNormPerBlock > 0 && norm > cfg.MaxDeltaNormPerBlock {
			floats.Scale(cfg.MaxDeltaNormPerBlock/norm, delta)
			norm = cfg.MaxDeltaNormPerBlock
			clamped = true
		}
		floats.Add(next[lo:hi], delta)

		if norm > 0 {
			metrics.BlocksHit = append(metrics.BlocksHit, i)
		}
		metrics.BlockMetrics = append(metrics.BlockMetrics, BlockMetric{Index: i, DeltaNorm: norm, Clamped: clamped})
		lo = hi
	}

	paramNorm := floats.Norm(next, 2)
	if cfg.MaxParamNorm > 0 && paramNorm > cfg.MaxParamNorm {
		floats.Scale(cfg.MaxParamNorm/paramNorm, next)
		paramNorm = cfg.MaxParamNorm
		metrics.Capped = true
	}
	metrics.ParamNorm = paramNorm

	if len(next) > 0 {
		metrics.DeltaNorm = floats.Distance(next, current, 2)
	}
	return Proposal{Params: next, Metrics: metrics}, nil
}

// #endregion propose

// Noise draws n standard normal values from src.
func Noise(src rand.Source, n int) []float64 {
	dist := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	out := make([]float64, n)
	for i := range out {
		out[i] = dist.Rand()
	}
	return out
}
