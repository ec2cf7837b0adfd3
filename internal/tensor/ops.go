package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// #region feature-ops
// ConcatFeatures joins tensors along the feature axis, flattening each to
// [batch, width] first. The result dtype is the first input's dtype when all
// inputs agree, Float64 otherwise.
func ConcatFeatures(ts ...*Tensor) (*Tensor, error) {
	if len(ts) == 0 {
		return nil, fmt.Errorf("%w: concat of zero tensors", ErrShape)
	}
	batch := ts[0].Batch()
	dtype := ts[0].dtype
	total := 0
	for _, t := range ts {
		if t.Batch() != batch {
			return nil, fmt.Errorf("%w: concat batch %d vs %d", ErrShape, t.Batch(), batch)
		}
		if t.dtype != dtype {
			dtype = Float64
		}
		total += t.Width()
	}

	data := make([]float64, 0, batch*total)
	for b := 0; b < batch; b++ {
		for _, t := range ts {
			w := t.Width()
			data = append(data, t.data[b*w:(b+1)*w]...)
		}
	}
	return &Tensor{shape: []int{batch, total}, dtype: dtype, data: data}, nil
}

// SplitFeatures splits a [batch, Σwidths] tensor into [batch, width_i] parts.
func (t *Tensor) SplitFeatures(widths ...int) ([]*Tensor, error) {
	total := 0
	for _, w := range widths {
		if w <= 0 {
			return nil, fmt.Errorf("%w: split width %d", ErrShape, w)
		}
		total += w
	}
	if total != t.Width() {
		return nil, fmt.Errorf("%w: split widths %v of width %d", ErrShape, widths, t.Width())
	}

	batch := t.Batch()
	parts := make([]*Tensor, len(widths))
	off := 0
	for i, w := range widths {
		data := make([]float64, 0, batch*w)
		for b := 0; b < batch; b++ {
			row := b*total + off
			data = append(data, t.data[row:row+w]...)
		}
		parts[i] = &Tensor{shape: []int{batch, w}, dtype: t.dtype, data: data}
		off += w
	}
	return parts, nil
}

// SumFeatures reduces every batch row to its sum, producing [batch, 1].
func (t *Tensor) SumFeatures() *Tensor {
	batch, w := t.Batch(), t.Width()
	data := make([]float64, batch)
	for b := 0; b < batch; b++ {
		data[b] = floats.Sum(t.data[b*w : (b+1)*w])
	}
	return &Tensor{shape: []int{batch, 1}, dtype: t.dtype, data: data}
}

// Add returns a+b for tensors of identical shape.
func Add(a, b *Tensor) (*Tensor, error) {
	if !SameShape(a.shape, b.shape) {
		return nil, fmt.Errorf("%w: add %v and %v", ErrShape, a.shape, b.shape)
	}
	data := make([]float64, len(a.data))
	floats.AddTo(data, a.data, b.data)
	dtype := a.dtype
	if b.dtype != dtype {
		dtype = Float64
	}
	return &Tensor{shape: a.Shape(), dtype: dtype, data: data}, nil
}

// #endregion feature-ops

// #region time-ops
// Stack joins equally shaped [batch]+s tensors along a new axis 1,
// producing [batch, len(ts)]+s.
func Stack(ts []*Tensor) (*Tensor, error) {
	if len(ts) == 0 {
		return nil, fmt.Errorf("%w: stack of zero tensors", ErrShape)
	}
	first := ts[0]
	for _, t := range ts[1:] {
		if !SameShape(t.shape, first.shape) {
			return nil, fmt.Errorf("%w: stack %v with %v", ErrShape, t.shape, first.shape)
		}
	}

	batch, w, n := first.Batch(), first.Width(), len(ts)
	data := make([]float64, batch*n*w)
	for b := 0; b < batch; b++ {
		for i, t := range ts {
			copy(data[(b*n+i)*w:], t.data[b*w:(b+1)*w])
		}
	}
	shape := append([]int{batch, n}, first.shape[1:]...)
	return &Tensor{shape: shape, dtype: first.dtype, data: data}, nil
}

// Step slices index i of axis 1, turning [batch, n]+s into [batch]+s.
// An empty trailing shape pads to [batch, 1].
func (t *Tensor) Step(i int) (*Tensor, error) {
	if t.Rank() < 2 {
		return nil, fmt.Errorf("%w: step needs rank >= 2, got %v", ErrShape, t.shape)
	}
	n := t.shape[1]
	if i < 0 || i >= n {
		return nil, fmt.Errorf("%w: step %d of %d", ErrIndex, i, n)
	}

	batch := t.Batch()
	w := product(t.shape[2:])
	data := make([]float64, 0, batch*w)
	for b := 0; b < batch; b++ {
		off := (b*n + i) * w
		data = append(data, t.data[off:off+w]...)
	}
	return &Tensor{shape: BatchShape(batch, t.shape[2:]), dtype: t.dtype, data: data}, nil
}

// ReverseCumsum computes suffix sums along axis 1:
// out[:, i, ...] = Σ_{j >= i} t[:, j, ...].
func (t *Tensor) ReverseCumsum() (*Tensor, error) {
	if t.Rank() < 2 {
		return nil, fmt.Errorf("%w: reverse cumsum needs rank >= 2, got %v", ErrShape, t.shape)
	}
	batch, n := t.shape[0], t.shape[1]
	w := product(t.shape[2:])
	data := make([]float64, len(t.data))
	for b := 0; b < batch; b++ {
		for k := 0; k < w; k++ {
			var acc float64
			for i := n - 1; i >= 0; i-- {
				off := (b*n+i)*w + k
				acc += t.data[off]
				data[off] = acc
			}
		}
	}
	return &Tensor{shape: t.Shape(), dtype: t.dtype, data: data}, nil
}

// #endregion time-ops
