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
	"math/rand"
	"testing"

	"github.com/embedded-nn/go-qnn/hwy/contrib/requant"
	"github.com/embedded-nn/go-qnn/tensor"
	"github.com/stretchr/testify/require"
)

// testRNG returns a seeded random number generator for reproducible tests.
func testRNG() *rand.Rand {
	return rand.New(rand.NewSource(99))
}

// convCase describes a convolution by its shapes. kC is inC/groups.
type convCase struct {
	name                 string
	batch, inC, inW, inH int
	outC, kW, kH, groups int
	params               Params
}

func (c convCase) kC() int { return c.inC / c.groups }

func (c convCase) outW() int {
	p := c.params
	return OutputSize(c.inW, c.kW, p.Stride.W, p.Padding.W, p.Dilation.W)
}

func (c convCase) outH() int {
	p := c.params
	return OutputSize(c.inH, c.kH, p.Stride.H, p.Padding.H, p.Dilation.H)
}

func randInt8(rng *rand.Rand, n int) []int8 {
	s := make([]int8, n)
	for i := range s {
		s[i] = int8(rng.Intn(256) - 128)
	}
	return s
}

// newTensors builds random operands for c. Multipliers are normalized and
// shifts fall in [-11, 2] so outputs land inside the int8 range often
// enough to be interesting.
func newTensors(t testing.TB, rng *rand.Rand, c convCase) Tensors {
	t.Helper()
	bias := make([]int32, c.outC)
	mult := make([]int32, c.outC)
	shift := make([]int32, c.outC)
	for i := range c.outC {
		bias[i] = rng.Int31n(20001) - 10000
		mult[i] = 1<<30 + rng.Int31n(1<<30)
		shift[i] = rng.Int31n(14) - 11
	}
	return Tensors{
		Input:      tensor.Must(randInt8(rng, c.batch*c.inH*c.inW*c.inC), c.inC, c.inW, c.inH, c.batch),
		Filter:     tensor.Must(randInt8(rng, c.outC*c.kH*c.kW*c.kC()), c.kC(), c.kW, c.kH, c.outC),
		Bias:       tensor.Must(bias, c.outC),
		Multiplier: tensor.Must(mult, c.outC),
		Shift:      tensor.Must(shift, c.outC),
		Output:     tensor.Must(randInt8(rng, c.batch*c.outH()*c.outW()*c.outC), c.outC, c.outW(), c.outH(), c.batch),
	}
}

// withOutput returns a copy of ts with a fresh output of the same shape.
func withOutput(ts Tensors) Tensors {
	o := ts.Output
	ts.Output = tensor.Must(make([]int8, o.Len()), o.Dims...)
	return ts
}

// referenceConv is a direct nested-loop convolution with no im2col.
func referenceConv(p Params, ts Tensors) []int8 {
	in, f, out := ts.Input, ts.Filter, ts.Output
	inC, inW, inH := in.Channels(), in.Width(), in.Height()
	kC, kW, kH, outC := f.Channels(), f.Width(), f.Height(), f.Batch()
	outW, outH, batch := out.Width(), out.Height(), out.Batch()
	perGroup := outC / (inC / kC)

	input, filter := in.Int8(), f.Int8()
	mult, shift := ts.Multiplier.Int32(), ts.Shift.Int32()
	var bias []int32
	if ts.Bias != nil {
		bias = ts.Bias.Int32()
	}

	res := make([]int8, out.Len())
	for n := range batch {
		for oy := range outH {
			for ox := range outW {
				for oc := range outC {
					grp := oc / perGroup
					var acc int32
					if bias != nil {
						acc = bias[oc]
					}
					for ky := range kH {
						iy := oy*p.Stride.H - p.Padding.H + ky*p.Dilation.H
						for kx := range kW {
							ix := ox*p.Stride.W - p.Padding.W + kx*p.Dilation.W
							for c := range kC {
								// Out-of-bounds taps hold the zero point.
								var v int32
								if iy >= 0 && iy < inH && ix >= 0 && ix < inW {
									v = int32(input[((n*inH+iy)*inW+ix)*inC+grp*kC+c]) + p.InputOffset
								}
								acc += int32(filter[((oc*kH+ky)*kW+kx)*kC+c]) * v
							}
						}
					}
					res[((n*outH+oy)*outW+ox)*outC+oc] = requant.RequantizeInt8(acc, mult[oc], shift[oc],
						p.OutputOffset, p.Activation.Min, p.Activation.Max)
				}
			}
		}
	}
	return res
}

// execute configures, runs and releases one convolution.
func execute(t testing.TB, p Params, ts Tensors, opts ...Option) {
	t.Helper()
	c, err := Configure(p, ts.Input, ts.Filter, ts.Output, opts...)
	require.NoError(t, err)
	defer Release(&c)
	require.NoError(t, c.Execute(ts))
}

func strategies() []Strategy {
	return []Strategy{Scalar, Vector}
}
