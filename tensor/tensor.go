// Package tensor describes the non-owning tensor views the kernels operate on.
//
// Shapes are stored innermost first: dimension 0 is the channel axis, then
// width, height and batch. A view never allocates or frees its backing data.
package tensor

import (
	"errors"
	"fmt"
	"strings"
)

// MaxRank is the largest rank a View can describe.
const MaxRank = 4

// DType tags the element type of a view. Values follow the ONNX
// TensorProto.DataType enumeration.
type DType int32

const (
	Undefined DType = 0
	Float32   DType = 1
	Uint8     DType = 2
	Int8      DType = 3
	Uint16    DType = 4
	Int16     DType = 5
	Int32     DType = 6
	Int64     DType = 7
)

func (d DType) String() string {
	switch d {
	case Float32:
		return "float32"
	case Uint8:
		return "uint8"
	case Int8:
		return "int8"
	case Uint16:
		return "uint16"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	default:
		return "undefined"
	}
}

// Size returns the width of one element in bytes.
func (d DType) Size() int {
	switch d {
	case Uint8, Int8:
		return 1
	case Uint16, Int16:
		return 2
	case Float32, Int32:
		return 4
	case Int64:
		return 8
	default:
		return 0
	}
}

// Element is the set of Go types a view can carry.
type Element interface {
	~int8 | ~int32
}

// DTypeOf returns the tag for T.
func DTypeOf[T Element]() DType {
	var zero T
	switch any(zero).(type) {
	case int8:
		return Int8
	case int32:
		return Int32
	}
	return Undefined
}

var (
	ErrRank   = errors.New("tensor: rank out of range")
	ErrDims   = errors.New("tensor: dimensions must be positive")
	ErrLength = errors.New("tensor: data length does not match shape")
)

// View is a typed window over externally owned memory.
type View struct {
	Type    DType
	Dims    []int
	Strides []int
	Data    any
}

// New describes data with the given innermost-first dimensions and dense
// strides.
func New[T Element](data []T, dims ...int) (*View, error) {
	if len(dims) == 0 || len(dims) > MaxRank {
		return nil, fmt.Errorf("%w: %d", ErrRank, len(dims))
	}
	count := 1
	for _, d := range dims {
		if d <= 0 {
			return nil, fmt.Errorf("%w: %v", ErrDims, dims)
		}
		count *= d
	}
	if len(data) != count {
		return nil, fmt.Errorf("%w: have %d, shape %v needs %d", ErrLength, len(data), dims, count)
	}
	return &View{
		Type:    DTypeOf[T](),
		Dims:    append([]int(nil), dims...),
		Strides: DenseStrides(dims),
		Data:    data,
	}, nil
}

// Must is like New but panics on error.
func Must[T Element](data []T, dims ...int) *View {
	v, err := New(data, dims...)
	if err != nil {
		panic(err)
	}
	return v
}

// Shape4 allocates a zeroed view of shape [c, w, h, n].
func Shape4[T Element](c, w, h, n int) *View {
	return Must(make([]T, c*w*h*n), c, w, h, n)
}

// DenseStrides returns channel-fastest element strides for dims.
func DenseStrides(dims []int) []int {
	strides := make([]int, len(dims))
	step := 1
	for i, d := range dims {
		strides[i] = step
		step *= d
	}
	return strides
}

// Rank returns the number of stored dimensions.
func (v *View) Rank() int { return len(v.Dims) }

// Dim returns dimension i. Dimensions past the rank read as 1.
func (v *View) Dim(i int) int {
	if i < 0 || i >= len(v.Dims) {
		return 1
	}
	return v.Dims[i]
}

// AxisFromEnd returns the index of the k-th axis counted from the outermost
// one, so AxisFromEnd(0) is the last stored axis.
func (v *View) AxisFromEnd(k int) int {
	return len(v.Dims) - 1 - k
}

// DimFromEnd returns the size of the k-th axis counted from the outermost.
func (v *View) DimFromEnd(k int) int {
	return v.Dim(v.AxisFromEnd(k))
}

func (v *View) Channels() int { return v.Dim(0) }
func (v *View) Width() int    { return v.Dim(1) }
func (v *View) Height() int   { return v.Dim(2) }
func (v *View) Batch() int    { return v.Dim(3) }

// Len returns the element count implied by the shape.
func (v *View) Len() int {
	n := 1
	for _, d := range v.Dims {
		n *= d
	}
	return n
}

// IsDense reports whether the strides are channel-fastest and contiguous.
func (v *View) IsDense() bool {
	if len(v.Strides) == 0 {
		return true
	}
	if len(v.Strides) != len(v.Dims) {
		return false
	}
	step := 1
	for i, d := range v.Dims {
		if v.Strides[i] != step {
			return false
		}
		step *= d
	}
	return true
}

// Int8 returns the backing data as int8, or nil when the view holds
// another type.
func (v *View) Int8() []int8 {
	if v == nil {
		return nil
	}
	s, _ := v.Data.([]int8)
	return s
}

// Int32 returns the backing data as int32, or nil when the view holds
// another type.
func (v *View) Int32() []int32 {
	if v == nil {
		return nil
	}
	s, _ := v.Data.([]int32)
	return s
}

// Offset returns the element index of (c, x, y, n) under dense strides.
func (v *View) Offset(c, x, y, n int) int {
	return ((n*v.Height()+y)*v.Width()+x)*v.Channels() + c
}

func (v *View) String() string {
	if v == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString(v.Type.String())
	b.WriteByte('[')
	for i, d := range v.Dims {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprint(&b, d)
	}
	b.WriteByte(']')
	return b.String()
}
