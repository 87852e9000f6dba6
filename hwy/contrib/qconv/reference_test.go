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
	"math"
	"testing"

	"github.com/embedded-nn/go-qnn/hwy/contrib/requant"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// floatConv computes the real-valued accumulators of a single-group
// convolution as one matrix product: [positions × rhs] · [rhs × out].
func floatConv(p Params, ts Tensors) *mat.Dense {
	in, f, out := ts.Input, ts.Filter, ts.Output
	inC, inW, inH := in.Channels(), in.Width(), in.Height()
	kW, kH, outC := f.Width(), f.Height(), f.Batch()
	outW, outH, batch := out.Width(), out.Height(), out.Batch()
	rhs := kH * kW * inC
	positions := batch * outH * outW

	input := in.Int8()
	cols := mat.NewDense(positions, rhs, nil)
	for n := range batch {
		for oy := range outH {
			for ox := range outW {
				row := (n*outH+oy)*outW + ox
				for ky := range kH {
					iy := oy*p.Stride.H - p.Padding.H + ky*p.Dilation.H
					for kx := range kW {
						ix := ox*p.Stride.W - p.Padding.W + kx*p.Dilation.W
						if iy < 0 || iy >= inH || ix < 0 || ix >= inW {
							continue
						}
						for c := range inC {
							v := float64(input[((n*inH+iy)*inW+ix)*inC+c]) + float64(p.InputOffset)
							cols.Set(row, (ky*kW+kx)*inC+c, v)
						}
					}
				}
			}
		}
	}

	weights := mat.NewDense(outC, rhs, nil)
	for i, w := range f.Int8() {
		weights.Set(i/rhs, i%rhs, float64(w))
	}

	var acc mat.Dense
	acc.Mul(cols, weights.T())
	if ts.Bias != nil {
		bias := ts.Bias.Int32()
		acc.Apply(func(_, j int, v float64) float64 { return v + float64(bias[j]) }, &acc)
	}
	return &acc
}

func TestFloatReference(t *testing.T) {
	rng := testRNG()
	p := DefaultParams()
	p.Padding = Extent{1, 2}
	p.Stride = Extent{1, 2}
	p.InputOffset = -127
	p.OutputOffset = 3

	// Powers of two so the float scale is exact.
	tc := convCase{"float", 2, 5, 9, 8, 6, 3, 3, 1, p}
	ts := newTensors(t, rng, tc)
	scales := make([]float64, tc.outC)
	for oc := range tc.outC {
		scales[oc] = math.Ldexp(1, -(9 + oc%3))
		m, s, err := requant.QuantizeMultiplier(scales[oc])
		require.NoError(t, err)
		ts.Multiplier.Int32()[oc], ts.Shift.Int32()[oc] = m, s
	}

	acc := floatConv(p, ts)
	for _, algo := range []Algorithm{AlgorithmDirect, AlgorithmWinograd} {
		if algo == AlgorithmWinograd {
			// Winograd needs unit stride.
			p.Stride = Extent{1, 1}
			tc.params = p
			ts = newTensors(t, rng, tc)
			for oc := range tc.outC {
				m, s, _ := requant.QuantizeMultiplier(scales[oc])
				ts.Multiplier.Int32()[oc], ts.Shift.Int32()[oc] = m, s
			}
			acc = floatConv(p, ts)
		}
		execute(t, p, ts, WithAlgorithm(algo))

		out := ts.Output.Int8()
		rows, cols := acc.Dims()
		for r := range rows {
			for c := range cols {
				want := math.Round(acc.At(r, c)*scales[c]) + float64(p.OutputOffset)
				want = math.Max(-128, math.Min(127, want))
				// Two rounding steps may land one away from the real value.
				if got := float64(out[r*cols+c]); math.Abs(got-want) > 1 {
					t.Fatalf("%v: position %d channel %d = %v, float reference %v", algo, r, c, got, want)
				}
			}
		}
	}
}
