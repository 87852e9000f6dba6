// Copyright 2025 go-qnn Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package qconv

import (
	"fmt"
	"math"

	"github.com/embedded-nn/go-qnn/tensor"
)

// Extent is a width/height pair.
type Extent struct {
	W, H int
}

// Activation is the inclusive output clamp, in the output's quantized domain.
type Activation struct {
	Min, Max int32
}

// Params configures a convolution.
type Params struct {
	// InputOffset is added to every input value; it is the negated input
	// zero point, so it lies in [-127, 128]. Out-of-bounds taps read the zero
	// point int8(-InputOffset).
	InputOffset int32
	// OutputOffset is added after requantization; the output zero point.
	OutputOffset int32

	Stride   Extent
	Dilation Extent
	Padding  Extent

	Activation Activation

	// Fast allows the vector strategy and the Winograd engine.
	Fast bool
}

// DefaultParams returns unit stride and dilation, no padding, no offsets and
// the full int8 activation range.
func DefaultParams() Params {
	return Params{
		Stride:     Extent{1, 1},
		Dilation:   Extent{1, 1},
		Activation: Activation{math.MinInt8, math.MaxInt8},
	}
}

func (p Params) validate() error {
	switch {
	case p.Stride.W <= 0 || p.Stride.H <= 0:
		return fmt.Errorf("%w: stride %v", ErrParams, p.Stride)
	case p.Dilation.W <= 0 || p.Dilation.H <= 0:
		return fmt.Errorf("%w: dilation %v", ErrParams, p.Dilation)
	case p.Padding.W < 0 || p.Padding.H < 0:
		return fmt.Errorf("%w: padding %v", ErrParams, p.Padding)
	case p.Activation.Min > p.Activation.Max:
		return fmt.Errorf("%w: activation [%d, %d]", ErrParams, p.Activation.Min, p.Activation.Max)
	case p.InputOffset < -math.MaxInt8 || p.InputOffset > -math.MinInt8:
		return fmt.Errorf("%w: input offset %d", ErrParams, p.InputOffset)
	}
	return nil
}

// fill is the widened value of an out-of-bounds tap.
func (p Params) fill() int16 {
	return int16(int8(-p.InputOffset)) + int16(p.InputOffset)
}

// OutputSize returns the output extent along one axis.
func OutputSize(in, kernel, stride, pad, dilation int) int {
	return (in+2*pad-dilation*(kernel-1)-1)/stride + 1
}

// Algorithm identifies the engine a Conv runs.
type Algorithm int

const (
	AlgorithmDirect Algorithm = iota
	AlgorithmWinograd
)

func (a Algorithm) String() string {
	switch a {
	case AlgorithmDirect:
		return "direct"
	case AlgorithmWinograd:
		return "winograd"
	default:
		return "unknown"
	}
}

// geometry is the resolved shape of one convolution.
type geometry struct {
	batch            int
	inC, inW, inH    int
	kC, kW, kH       int
	outC, outW, outH int
	groups           int
}

// rhsCols is the im2col row length for one output position.
func (g geometry) rhsCols() int { return g.kH * g.kW * g.kC }

func checkView(name string, v *tensor.View, want tensor.DType) error {
	if v == nil {
		return fmt.Errorf("%w: %s is nil", ErrShape, name)
	}
	if v.Type != want {
		return fmt.Errorf("%w: %s is %s, want %s", ErrShape, name, v.Type, want)
	}
	if v.Rank() > tensor.MaxRank || !v.IsDense() {
		return fmt.Errorf("%w: %s must be a dense rank<=4 tensor", ErrShape, name)
	}
	for _, d := range v.Dims {
		if d <= 0 {
			return fmt.Errorf("%w: %s has dims %v", ErrShape, name, v.Dims)
		}
	}
	n := v.Len()
	var have int
	switch want {
	case tensor.Int8:
		have = len(v.Int8())
	case tensor.Int32:
		have = len(v.Int32())
	}
	if have != n {
		return fmt.Errorf("%w: %s holds %d elements, shape %v needs %d", ErrShape, name, have, v.Dims, n)
	}
	return nil
}

// geometryOf resolves and validates the shapes of a convolution.
func geometryOf(p Params, input, filter, output *tensor.View) (geometry, error) {
	var g geometry
	for _, c := range []struct {
		name string
		v    *tensor.View
	}{{"input", input}, {"filter", filter}, {"output", output}} {
		if err := checkView(c.name, c.v, tensor.Int8); err != nil {
			return g, err
		}
	}

	g.inC, g.inW, g.inH, g.batch = input.Channels(), input.Width(), input.Height(), input.Batch()
	g.kC, g.kW, g.kH, g.outC = filter.Channels(), filter.Width(), filter.Height(), filter.Batch()

	if g.inC%g.kC != 0 {
		return g, fmt.Errorf("%w: input channels %d, kernel channels %d", ErrGroupMismatch, g.inC, g.kC)
	}
	g.groups = g.inC / g.kC
	if g.outC%g.groups != 0 {
		return g, fmt.Errorf("%w: output channels %d, groups %d", ErrGroupMismatch, g.outC, g.groups)
	}

	g.outW = OutputSize(g.inW, g.kW, p.Stride.W, p.Padding.W, p.Dilation.W)
	g.outH = OutputSize(g.inH, g.kH, p.Stride.H, p.Padding.H, p.Dilation.H)
	if g.outW <= 0 || g.outH <= 0 || g.inW+2*p.Padding.W < p.Dilation.W*(g.kW-1)+1 || g.inH+2*p.Padding.H < p.Dilation.H*(g.kH-1)+1 {
		return g, fmt.Errorf("%w: kernel %dx%d does not fit input %dx%d", ErrShape, g.kW, g.kH, g.inW, g.inH)
	}

	want := [4]int{g.outC, g.outW, g.outH, g.batch}
	have := [4]int{output.Channels(), output.Width(), output.Height(), output.Batch()}
	if have != want {
		return g, fmt.Errorf("%w: output %v, want %v", ErrShape, have, want)
	}
	return g, nil
}

// operands are the raw slices of one Execute call.
type operands struct {
	input, filter []int8
	bias          []int32
	multiplier    []int32
	shift         []int32
	output        []int8
}

// bind checks live tensors against a configured geometry. Bias may be nil.
func (g geometry) bind(p Params, t Tensors) (operands, error) {
	var op operands
	live, err := geometryOf(p, t.Input, t.Filter, t.Output)
	if err != nil {
		return op, err
	}
	if live != g {
		return op, fmt.Errorf("%w: tensors changed shape since configure", ErrShape)
	}
	if t.Bias != nil {
		if err := checkView("bias", t.Bias, tensor.Int32); err != nil {
			return op, err
		}
		if t.Bias.Len() != g.outC {
			return op, fmt.Errorf("%w: bias has %d elements, want %d", ErrShape, t.Bias.Len(), g.outC)
		}
		op.bias = t.Bias.Int32()
	}
	for _, c := range []struct {
		name string
		v    *tensor.View
		dst  *[]int32
	}{{"multiplier", t.Multiplier, &op.multiplier}, {"shift", t.Shift, &op.shift}} {
		if err := checkView(c.name, c.v, tensor.Int32); err != nil {
			return op, err
		}
		if c.v.Len() != g.outC {
			return op, fmt.Errorf("%w: %s has %d elements, want %d", ErrShape, c.name, c.v.Len(), g.outC)
		}
		*c.dst = c.v.Int32()
	}
	op.input = t.Input.Int8()
	op.filter = t.Filter.Int8()
	op.output = t.Output.Int8()
	return op, nil
}

// Tensors is the positional tensor set of one convolution call.
type Tensors struct {
	Input      *tensor.View
	Filter     *tensor.View
	Bias       *tensor.View
	Multiplier *tensor.View
	Shift      *tensor.View
	Output     *tensor.View
}
