package hwy

import "unsafe"

// This file provides pure Go implementations of the lane operations used by
// the kernels. A Vec holds CurrentWidth() bytes worth of lanes; the backing
// array is sized for the widest level so vectors never touch the heap.

// MaxVectorBytes is the widest vector any dispatch level uses.
const MaxVectorBytes = 64

// Lanes is the set of element types a Vec can hold.
type Lanes interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// Vec is a vector of lanes of type T.
type Vec[T Lanes] struct {
	data [MaxVectorBytes]T
	n    int
}

// NumLanes returns the number of active lanes.
func (v Vec[T]) NumLanes() int { return v.n }

// MaxLanes returns the lane count of a full vector of T at the current level.
func MaxLanes[T Lanes]() int {
	var zero T
	n := currentWidth / int(unsafe.Sizeof(zero))
	return max(1, min(n, MaxVectorBytes))
}

// Load creates a vector by loading data from a slice.
func Load[T Lanes](src []T) Vec[T] {
	var v Vec[T]
	v.n = min(MaxLanes[T](), len(src))
	copy(v.data[:v.n], src)
	return v
}

// Store writes a vector's data to a slice.
func Store[T Lanes](v Vec[T], dst []T) {
	n := min(v.n, len(dst))
	copy(dst[:n], v.data[:n])
}

// Set creates a vector with all lanes set to the same value.
func Set[T Lanes](value T) Vec[T] {
	var v Vec[T]
	v.n = MaxLanes[T]()
	for i := range v.n {
		v.data[i] = value
	}
	return v
}

// Zero creates a vector with all lanes set to zero.
func Zero[T Lanes]() Vec[T] {
	return Vec[T]{n: MaxLanes[T]()}
}

// Add performs element-wise addition.
func Add[T Lanes](a, b Vec[T]) Vec[T] {
	r := Vec[T]{n: min(a.n, b.n)}
	for i := range r.n {
		r.data[i] = a.data[i] + b.data[i]
	}
	return r
}

// Sub performs element-wise subtraction.
func Sub[T Lanes](a, b Vec[T]) Vec[T] {
	r := Vec[T]{n: min(a.n, b.n)}
	for i := range r.n {
		r.data[i] = a.data[i] - b.data[i]
	}
	return r
}

// Mul performs element-wise multiplication.
func Mul[T Lanes](a, b Vec[T]) Vec[T] {
	r := Vec[T]{n: min(a.n, b.n)}
	for i := range r.n {
		r.data[i] = a.data[i] * b.data[i]
	}
	return r
}

// MulAdd computes a*b + c.
func MulAdd[T Lanes](a, b, c Vec[T]) Vec[T] {
	r := Vec[T]{n: min(a.n, b.n, c.n)}
	for i := range r.n {
		r.data[i] = a.data[i]*b.data[i] + c.data[i]
	}
	return r
}

// Min returns element-wise minimum.
func Min[T Lanes](a, b Vec[T]) Vec[T] {
	r := Vec[T]{n: min(a.n, b.n)}
	for i := range r.n {
		r.data[i] = min(a.data[i], b.data[i])
	}
	return r
}

// Max returns element-wise maximum.
func Max[T Lanes](a, b Vec[T]) Vec[T] {
	r := Vec[T]{n: min(a.n, b.n)}
	for i := range r.n {
		r.data[i] = max(a.data[i], b.data[i])
	}
	return r
}

// ReduceSum sums all lanes.
func ReduceSum[T Lanes](v Vec[T]) T {
	var sum T
	for i := range v.n {
		sum += v.data[i]
	}
	return sum
}

// PromoteInt8 sign-extends src into a vector of T.
func PromoteInt8[T Lanes](src []int8) Vec[T] {
	var v Vec[T]
	v.n = min(MaxLanes[T](), len(src))
	for i := range v.n {
		v.data[i] = T(src[i])
	}
	return v
}

// PromoteInt16 sign-extends src into a vector of T.
func PromoteInt16[T Lanes](src []int16) Vec[T] {
	var v Vec[T]
	v.n = min(MaxLanes[T](), len(src))
	for i := range v.n {
		v.data[i] = T(src[i])
	}
	return v
}
