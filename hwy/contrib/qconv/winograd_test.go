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
	"slices"
	"testing"

	"github.com/embedded-nn/go-qnn/tensor"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWinogradPreconditions(t *testing.T) {
	base := DefaultParams()
	strided := base
	strided.Stride = Extent{2, 1}
	dilated := base
	dilated.Dilation = Extent{1, 2}

	tests := []struct {
		name string
		c    convCase
	}{
		{"stride", convCase{"", 1, 4, 8, 8, 4, 3, 3, 1, strided}},
		{"dilation", convCase{"", 1, 4, 8, 8, 4, 3, 3, 1, dilated}},
		{"kernel_5x5", convCase{"", 1, 4, 8, 8, 4, 5, 5, 1, base}},
		{"kernel_3x1", convCase{"", 1, 4, 8, 8, 4, 3, 1, 1, base}},
		{"grouped", convCase{"", 1, 4, 8, 8, 4, 3, 3, 2, base}},
	}
	rng := testRNG()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTensors(t, rng, tt.c)
			before := slices.Clone(ts.Output.Int8())

			err := WinogradConv(tt.c.params, ts)
			require.ErrorIs(t, err, ErrUnsupported)
			assert.Equal(t, StatusUnsupported, Status(err))
			assert.Equal(t, before, ts.Output.Int8(), "output written on failure")

			// Fast still falls back to direct for these shapes.
			p := tt.c.params
			p.Fast = true
			c, err := Configure(p, ts.Input, ts.Filter, ts.Output)
			require.NoError(t, err)
			assert.Equal(t, AlgorithmDirect, c.Algorithm())
			Release(&c)
		})
	}
}

func winogradCases() []convCase {
	rng := testRNG()
	var cases []convCase
	for i := range 24 {
		p := DefaultParams()
		p.Padding = Extent{rng.Intn(3), rng.Intn(3)}
		p.InputOffset = rng.Int31n(256) - 127
		p.OutputOffset = rng.Int31n(41) - 20
		if i%4 == 3 {
			p.Activation = Activation{rng.Int31n(60) - 100, rng.Int31n(60) + 20}
		}
		c := convCase{
			batch:  1 + rng.Intn(2),
			inC:    1 + rng.Intn(9),
			inW:    3 + rng.Intn(8),
			inH:    3 + rng.Intn(8),
			outC:   1 + rng.Intn(9),
			kW:     3,
			kH:     3,
			groups: 1,
			params: p,
		}
		c.name = fmt.Sprintf("b%d_c%dx%d_%dx%d_pad%dx%d", c.batch, c.inC, c.outC, c.inW, c.inH, p.Padding.W, p.Padding.H)
		cases = append(cases, c)
	}

	// Wide channels with the multiplier 2^24 and shift -2 of the C test suite.
	wide := DefaultParams()
	wide.Padding = Extent{1, 1}
	cases = append(cases, convCase{"96ch_8x8", 1, 96, 8, 8, 96, 3, 3, 1, wide})
	return cases
}

func TestWinogradMatchesDirect(t *testing.T) {
	rng := testRNG()
	for _, tc := range winogradCases() {
		ts := newTensors(t, rng, tc)
		if tc.inC == 96 {
			for i := range tc.outC {
				ts.Multiplier.Int32()[i] = 0x1000000
				ts.Shift.Int32()[i] = -2
			}
		}
		direct := withOutput(ts)
		execute(t, tc.params, direct, WithAlgorithm(AlgorithmDirect), WithStrategy(Scalar))

		for _, s := range strategies() {
			t.Run(tc.name+"/"+s.Name(), func(t *testing.T) {
				got := withOutput(ts)
				execute(t, tc.params, got, WithAlgorithm(AlgorithmWinograd), WithStrategy(s))
				if diff := cmp.Diff(direct.Output.Int8(), got.Output.Int8()); diff != "" {
					t.Errorf("winograd differs from direct (-direct +winograd):\n%s", diff)
				}
			})
		}
	}
}

func TestWinogradPaddingEquivalence(t *testing.T) {
	// Border outputs of a padded convolution read only zero-point cells on
	// one side; compare them alone so a fill mismatch cannot hide in the
	// interior.
	rng := testRNG()
	p := DefaultParams()
	p.Padding = Extent{1, 1}
	p.InputOffset = 93
	tc := convCase{"pad", 1, 3, 7, 5, 2, 3, 3, 1, p}
	ts := newTensors(t, rng, tc)

	direct := withOutput(ts)
	require.NoError(t, DirectConv(p, direct))
	wino := withOutput(ts)
	require.NoError(t, WinogradConv(p, wino))

	outW, outH := tc.outW(), tc.outH()
	for y := range outH {
		for x := range outW {
			if x != 0 && y != 0 && x != outW-1 && y != outH-1 {
				continue
			}
			for c := range tc.outC {
				i := ts.Output.Offset(c, x, y, 0)
				assert.Equal(t, direct.Output.Int8()[i], wino.Output.Int8()[i], "border cell (%d,%d) channel %d", x, y, c)
			}
		}
	}
}

func TestWinogradNoPadding(t *testing.T) {
	// Even output and no padding reads the input in place.
	rng := testRNG()
	tc := convCase{"raw", 2, 4, 10, 6, 5, 3, 3, 1, DefaultParams()}
	l := layoutWinograd(tc.params, geometry{inW: 10, inH: 6, outW: tc.outW(), outH: tc.outH()})
	require.False(t, l.needPad)

	ts := newTensors(t, rng, tc)
	direct := withOutput(ts)
	require.NoError(t, DirectConv(tc.params, direct))
	require.NoError(t, WinogradConv(tc.params, ts))
	assert.Equal(t, direct.Output.Int8(), ts.Output.Int8())
}

func TestWinogradKernelCache(t *testing.T) {
	rng := testRNG()
	p := DefaultParams()
	p.Fast = true
	p.Padding = Extent{1, 1}
	tc := convCase{"cache", 1, 3, 6, 6, 4, 3, 3, 1, p}
	ts := newTensors(t, rng, tc)

	c, err := Configure(p, ts.Input, ts.Filter, ts.Output)
	require.NoError(t, err)
	defer Release(&c)
	require.Equal(t, AlgorithmWinograd, c.Algorithm())

	check := func(msg string) {
		t.Helper()
		require.NoError(t, c.Execute(ts))
		assert.Equal(t, referenceConv(p, ts), ts.Output.Int8(), msg)
	}
	check("first call")
	check("cached transform")

	// A different filter slice is picked up without a reset.
	ts.Filter = tensor.Must(randInt8(rng, ts.Filter.Len()), ts.Filter.Dims...)
	check("new filter")

	// In-place edits need ResetCache.
	f := ts.Filter.Int8()
	for i := range f {
		f[i] = -f[i] / 2
	}
	c.ResetCache()
	check("reset cache")
}

func TestWinogradLargeBias(t *testing.T) {
	// conv+bias near the int32 limits: the ×4 transform factor must not wrap
	// before it is divided out.
	for _, bias := range []int32{600_000_000, -600_000_000, math.MaxInt32 - 4, math.MinInt32, 1 << 29} {
		t.Run(fmt.Sprint(bias), func(t *testing.T) {
			ts := allOnes()
			ts.Bias = tensor.Must([]int32{bias}, 1)
			ts.Multiplier = tensor.Must([]int32{1 << 30}, 1)
			ts.Shift = tensor.Must([]int32{-25}, 1)
			direct := withOutput(ts)
			execute(t, DefaultParams(), direct, WithAlgorithm(AlgorithmDirect))

			for _, s := range strategies() {
				got := withOutput(ts)
				execute(t, DefaultParams(), got, WithAlgorithm(AlgorithmWinograd), WithStrategy(s))
				if diff := cmp.Diff(direct.Output.Int8(), got.Output.Int8()); diff != "" {
					t.Errorf("%s: winograd differs from direct (-direct +winograd):\n%s", s.Name(), diff)
				}
			}
		})
	}

	// (9 + 600000000) / 2^26 rounds to 9.
	ts := allOnes()
	ts.Bias = tensor.Must([]int32{600_000_000}, 1)
	ts.Multiplier = tensor.Must([]int32{1 << 30}, 1)
	ts.Shift = tensor.Must([]int32{-25}, 1)
	execute(t, DefaultParams(), ts, WithAlgorithm(AlgorithmWinograd))
	assert.Equal(t, []int8{9, 9, 9, 9}, ts.Output.Int8())
}

func TestTransformKernelScale(t *testing.T) {
	// A centered impulse transforms to 4× the textbook G·g·Gᵀ.
	g := geometry{inC: 1, kC: 1, outC: 1, kW: 3, kH: 3}
	filter := []int8{0, 0, 0, 0, 1, 0, 0, 0, 0}
	u := make([]int16, 16)
	transformKernel(u, filter, g)
	assert.Equal(t, []int16{
		0, 0, 0, 0,
		0, 1, -1, 0,
		0, -1, 1, 0,
		0, 0, 0, 0,
	}, u)
}

func TestWinogradScratchPlan(t *testing.T) {
	p := DefaultParams()
	p.Padding = Extent{1, 1}
	g := geometry{batch: 1, inC: 3, inW: 5, inH: 5, kC: 3, kW: 3, kH: 3, outC: 2, outW: 5, outH: 5, groups: 1}
	pl := planWinograd(p, g)

	// 3×3 tiles over a 6×6 even output.
	tiles := 9
	assert.Equal(t, 16*2*3*2, pl.regions[regionKernel].size)
	assert.Equal(t, (tiles*16*3+16*3)*2, pl.regions[regionInput].size)
	assert.Equal(t, tiles*16*2*4, pl.regions[regionDot].size)
	assert.Equal(t, 8*8*3, pl.regions[regionPad].size)
	assert.Equal(t, tiles*2*8*4, pl.regions[regionOutput].size)
	assert.Equal(t, pl.regions[regionPad].off, pl.regions[regionOutput].off)
	assert.False(t, pl.regions[regionDot].overlaps(pl.regions[regionPad]))
}
