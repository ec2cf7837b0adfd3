package tensor

import (
	"errors"
	"fmt"
)

// #region dtype
// DType tags the native element type of a tensor. Storage is always float64;
// the tag records how values were produced and how Cast converts them.
type DType int

const (
	Float32 DType = iota
	Float64
	Int32
	Bool
)

func (d DType) String() string {
	switch d {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Int32:
		return "int32"
	case Bool:
		return "bool"
	default:
		return "unknown"
	}
}

// ParseDType maps a dtype name back to its DType.
func ParseDType(s string) (DType, error) {
	for _, d := range []DType{Float32, Float64, Int32, Bool} {
		if d.String() == s {
			return d, nil
		}
	}
	return 0, fmt.Errorf("tensor: unknown dtype %q", s)
}

// #endregion dtype

// #region errors
var (
	// ErrShape is returned when tensor shapes are incompatible for an operation.
	ErrShape = errors.New("tensor: shape mismatch")
	// ErrIndex is returned for out-of-range slicing.
	ErrIndex = errors.New("tensor: index out of range")
)

// #endregion errors

// #region shape-helpers
// BatchShape returns [batch]+shape. Scalar shapes pad to a trailing width of 1.
func BatchShape(batch int, shape []int) []int {
	if len(shape) == 0 {
		return []int{batch, 1}
	}
	out := make([]int, 0, len(shape)+1)
	out = append(out, batch)
	return append(out, shape...)
}

// SameShape reports whether two shapes are identical.
func SameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func product(dims []int) int {
	n := 1
	for _, d := range dims {
		n *= d
	}
	return n
}

func validDims(dims []int) bool {
	if len(dims) == 0 {
		return false
	}
	for _, d := range dims {
		if d <= 0 {
			return false
		}
	}
	return true
}

// #endregion shape-helpers
