// Package tensor implements the small set of dense batch tensors the rollout
// core needs. Every tensor carries a leading batch axis; row-major storage.
package tensor

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// #region tensor
// Tensor is a dense row-major tensor whose first axis is the batch axis.
// Tensors are treated as immutable: every operation returns a fresh value.
type Tensor struct {
	shape []int
	dtype DType
	data  []float64
}

// New copies data into a tensor of the given shape.
func New(dtype DType, shape []int, data []float64) (*Tensor, error) {
	if !validDims(shape) {
		return nil, fmt.Errorf("%w: invalid shape %v", ErrShape, shape)
	}
	if n := product(shape); n != len(data) {
		return nil, fmt.Errorf("%w: shape %v needs %d values, got %d", ErrShape, shape, n, len(data))
	}
	buf := make([]float64, len(data))
	copy(buf, data)
	return &Tensor{shape: append([]int(nil), shape...), dtype: dtype, data: buf}, nil
}

// Full returns a tensor with every element set to value.
// It panics on non-positive dimensions, like mat.NewDense.
func Full(dtype DType, value float64, shape ...int) *Tensor {
	if !validDims(shape) {
		panic(fmt.Sprintf("tensor: invalid shape %v", shape))
	}
	data := make([]float64, product(shape))
	if value != 0 {
		for i := range data {
			data[i] = value
		}
	}
	return &Tensor{shape: append([]int(nil), shape...), dtype: dtype, data: data}
}

// Zeros returns a zero-filled tensor.
func Zeros(dtype DType, shape ...int) *Tensor {
	return Full(dtype, 0, shape...)
}

// FromDense builds a [rows, cols] tensor from a gonum matrix.
func FromDense(dtype DType, m mat.Matrix) *Tensor {
	r, c := m.Dims()
	data := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			data = append(data, m.At(i, j))
		}
	}
	return &Tensor{shape: []int{r, c}, dtype: dtype, data: data}
}

// #endregion tensor

// #region accessors
// Shape returns a copy of the tensor shape.
func (t *Tensor) Shape() []int { return append([]int(nil), t.shape...) }

// DType returns the element type tag.
func (t *Tensor) DType() DType { return t.dtype }

// Rank returns the number of axes.
func (t *Tensor) Rank() int { return len(t.shape) }

// Batch returns the size of the leading axis.
func (t *Tensor) Batch() int { return t.shape[0] }

// Width is the number of elements per batch row.
func (t *Tensor) Width() int { return product(t.shape[1:]) }

// Len is the total number of elements.
func (t *Tensor) Len() int { return len(t.data) }

// Data returns a copy of the flat storage.
func (t *Tensor) Data() []float64 { return append([]float64(nil), t.data...) }

// Row returns a copy of batch row i, flattened.
func (t *Tensor) Row(i int) []float64 {
	w := t.Width()
	return append([]float64(nil), t.data[i*w:(i+1)*w]...)
}

// At returns the element at the given multi-index.
func (t *Tensor) At(idx ...int) float64 {
	if len(idx) != len(t.shape) {
		panic(fmt.Sprintf("tensor: %d indices for rank %d", len(idx), len(t.shape)))
	}
	off := 0
	for i, x := range idx {
		if x < 0 || x >= t.shape[i] {
			panic(fmt.Sprintf("tensor: index %v out of range for shape %v", idx, t.shape))
		}
		off = off*t.shape[i] + x
	}
	return t.data[off]
}

// Dense returns a [batch, width] gonum matrix holding a copy of the data.
func (t *Tensor) Dense() *mat.Dense {
	return mat.NewDense(t.Batch(), t.Width(), t.Data())
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(%s, %v)", t.dtype, t.shape)
}

// #endregion accessors

// #region conversions
// Cast converts values to dtype. Float32 rounds through single precision,
// Int32 truncates toward zero, Bool maps non-zero to 1.
func (t *Tensor) Cast(dtype DType) *Tensor {
	out := &Tensor{shape: t.Shape(), dtype: dtype, data: make([]float64, len(t.data))}
	for i, x := range t.data {
		switch dtype {
		case Float32:
			x = float64(float32(x))
		case Int32:
			x = float64(int32(x))
		case Bool:
			if x != 0 {
				x = 1
			}
		}
		out.data[i] = x
	}
	return out
}

// Reshape returns a tensor with the same data and a new shape.
func (t *Tensor) Reshape(shape ...int) (*Tensor, error) {
	return New(t.dtype, shape, t.data)
}

// IsFinite reports whether every element is neither NaN nor infinite.
func (t *Tensor) IsFinite() bool {
	for _, x := range t.data {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// Sum returns the sum of all elements.
func (t *Tensor) Sum() float64 {
	return floats.Sum(t.data)
}

// Equal reports whether a and b have the same dtype, shape and bit-identical values.
func Equal(a, b *Tensor) bool {
	if a.dtype != b.dtype || !SameShape(a.shape, b.shape) {
		return false
	}
	for i := range a.data {
		if math.Float64bits(a.data[i]) != math.Float64bits(b.data[i]) {
			return false
		}
	}
	return true
}

// #endregion conversions
