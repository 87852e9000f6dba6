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

	"github.com/embedded-nn/go-qnn/hwy/contrib/requant"
)

// F(2,3) transform matrices. winoG is twice the textbook G so every entry is
// an integer; the kernel transform therefore carries a factor of 4.
var (
	winoG = [4][3]int32{
		{2, 0, 0},
		{1, 1, 1},
		{1, -1, 1},
		{0, 0, 2},
	}
	winoBT = [4][4]int32{
		{1, 0, -1, 0},
		{0, 1, 1, 0},
		{0, -1, 1, 0},
		{0, 1, 0, -1},
	}
)

// winogradEligible reports ErrUnsupported unless the convolution is 3×3,
// stride 1, dilation 1 with a single group.
func winogradEligible(p Params, g geometry) error {
	if p.Stride != (Extent{1, 1}) || p.Dilation != (Extent{1, 1}) {
		return fmt.Errorf("%w: winograd needs stride and dilation 1, have %v and %v", ErrUnsupported, p.Stride, p.Dilation)
	}
	if g.kW != 3 || g.kH != 3 {
		return fmt.Errorf("%w: winograd needs a 3x3 kernel, have %dx%d", ErrUnsupported, g.kW, g.kH)
	}
	if g.groups != 1 {
		return fmt.Errorf("%w: winograd needs one group, have %d", ErrUnsupported, g.groups)
	}
	return nil
}

// winoLayout is the tiling of one winograd convolution.
type winoLayout struct {
	tilesW, tilesH int
	// Padded image extent, one tile row and column beyond the even output.
	padW, padH int
	needPad    bool
}

func (l winoLayout) tiles() int { return l.tilesW * l.tilesH }

func roundUpEven(n int) int { return (n + 1) &^ 1 }

func layoutWinograd(p Params, g geometry) winoLayout {
	innerW, innerH := roundUpEven(g.outW), roundUpEven(g.outH)
	return winoLayout{
		tilesW: innerW / 2,
		tilesH: innerH / 2,
		padW:   innerW + 2,
		padH:   innerH + 2,
		needPad: p.Padding != (Extent{}) ||
			g.outW%2 != 0 || g.outH%2 != 0 ||
			g.inW < g.outW+2 || g.inH < g.outH+2,
	}
}

// planWinograd sizes the kernel, input and accumulator regions and, when the
// input needs padding, overlays the padded image with the output transform.
func planWinograd(p Params, g geometry) plan {
	l := layoutWinograd(p, g)
	tiles := l.tiles()

	var pl plan
	pl.add(regionKernel, 16*g.outC*g.inC*2)
	pl.add(regionInput, (tiles*16*g.inC+16*g.inC)*2)
	pl.add(regionDot, tiles*16*g.outC*4)
	outSize := tiles * g.outC * 8 * 4
	if l.needPad {
		pl.union([]regionID{regionPad, regionOutput}, []int{l.padW * l.padH * g.inC, outSize})
	} else {
		pl.add(regionOutput, outSize)
	}
	return pl
}

type winogradRun struct {
	s  Strategy
	p  Params
	g  geometry
	l  winoLayout
	op operands
	a  *Arena
	u  []int16
}

func runWinograd(s Strategy, p Params, g geometry, op operands, a *Arena) error {
	if err := winogradEligible(p, g); err != nil {
		return err
	}

	u, err := a.takeInt16(regionKernel)
	if err != nil {
		return err
	}
	defer a.put(regionKernel)
	if len(u) < 16*g.outC*g.inC {
		return fmt.Errorf("%w: kernel region holds %d, need %d", ErrInvariant, len(u), 16*g.outC*g.inC)
	}

	if !a.kernelCached(op.filter) {
		transformKernel(u, op.filter, g)
		a.setKernelCache(op.filter)
	}

	r := &winogradRun{s: s, p: p, g: g, l: layoutWinograd(p, g), op: op, a: a, u: u}
	for n := range g.batch {
		if err := r.batch(n); err != nil {
			return err
		}
	}
	return nil
}

// transformKernel computes U = G·g·Gᵀ for every (out, in) channel pair.
func transformKernel(u []int16, filter []int8, g geometry) {
	for oc := range g.outC {
		for ic := range g.inC {
			var k [3][3]int32
			for ky := range 3 {
				for kx := range 3 {
					k[ky][kx] = int32(filter[((oc*3+ky)*3+kx)*g.kC+ic])
				}
			}

			var t [4][3]int32
			for i := range 4 {
				for j := range 3 {
					t[i][j] = winoG[i][0]*k[0][j] + winoG[i][1]*k[1][j] + winoG[i][2]*k[2][j]
				}
			}

			dst := u[(oc*g.inC+ic)*16 : (oc*g.inC+ic+1)*16]
			for i := range 4 {
				for j := range 4 {
					dst[i*4+j] = int16(t[i][0]*winoG[j][0] + t[i][1]*winoG[j][1] + t[i][2]*winoG[j][2])
				}
			}
		}
	}
}

func (r *winogradRun) batch(n int) error {
	g, l, a := r.g, r.l, r.a
	defer a.put(regionInput, regionPad, regionDot, regionOutput)

	imgLen := g.inH * g.inW * g.inC
	src, srcW := r.op.input[n*imgLen:(n+1)*imgLen], g.inW

	v, err := a.takeInt16(regionInput)
	if err != nil {
		return err
	}
	if len(v) < (l.tiles()+1)*16*g.inC {
		return fmt.Errorf("%w: input region holds %d, need %d", ErrInvariant, len(v), (l.tiles()+1)*16*g.inC)
	}

	if l.needPad {
		padded, err := a.takeInt8(regionPad)
		if err != nil {
			return err
		}
		if len(padded) < l.padW*l.padH*g.inC {
			return fmt.Errorf("%w: pad region holds %d, need %d", ErrInvariant, len(padded), l.padW*l.padH*g.inC)
		}
		r.pad(padded, src)
		src, srcW = padded, l.padW
	}
	r.transformInput(v, src, srcW)
	a.put(regionPad)

	m, err := a.takeInt32(regionDot)
	if err != nil {
		return err
	}
	r.dot(m, v)
	a.put(regionInput)

	o, err := a.takeInt32(regionOutput)
	if err != nil {
		return err
	}
	r.transformOutput(o, m, n)
	return nil
}

// pad copies one input image into the padded layout, filling every other
// cell with the zero point.
func (r *winogradRun) pad(dst, src []int8) {
	g, l, p := r.g, r.l, r.p
	fill := int8(-p.InputOffset)
	dst = dst[:l.padW*l.padH*g.inC]
	for i := range dst {
		dst[i] = fill
	}

	rowLen := g.inW * g.inC
	for y := range g.inH {
		at := ((y+p.Padding.H)*l.padW + p.Padding.W) * g.inC
		copy(dst[at:at+rowLen], src[y*rowLen:(y+1)*rowLen])
	}
}

// transformInput computes V = Bᵀ·d·B for every tile and input channel. Each
// tile's 4×4 block is first widened, all channels at once, into the staging
// row that follows the tile data.
func (r *winogradRun) transformInput(v []int16, src []int8, srcW int) {
	g, l := r.g, r.l
	off := int16(r.p.InputOffset)
	inC := g.inC
	stage := v[l.tiles()*16*inC : (l.tiles()+1)*16*inC]

	for ty := range l.tilesH {
		for tx := range l.tilesW {
			tile := ty*l.tilesW + tx
			for row := range 4 {
				for col := range 4 {
					at := ((2*ty+row)*srcW + 2*tx + col) * inC
					cell := (row*4 + col) * inC
					r.s.Widen(stage[cell:cell+inC], src[at:at+inC], off)
				}
			}

			for ic := range inC {
				var d [4][4]int32
				for i := range 16 {
					d[i/4][i%4] = int32(stage[i*inC+ic])
				}

				// Row op: t = Bᵀ·d
				var t [4][4]int32
				for i := range 4 {
					for j := range 4 {
						t[i][j] = winoBT[i][0]*d[0][j] + winoBT[i][1]*d[1][j] + winoBT[i][2]*d[2][j] + winoBT[i][3]*d[3][j]
					}
				}

				// Column op: V = t·B
				dst := v[(tile*inC+ic)*16 : (tile*inC+ic+1)*16]
				for i := range 4 {
					for j := range 4 {
						dst[i*4+j] = int16(t[i][0]*winoBT[j][0] + t[i][1]*winoBT[j][1] + t[i][2]*winoBT[j][2] + t[i][3]*winoBT[j][3])
					}
				}
			}
		}
	}
}

// dot accumulates M[tile][oc] = Σ_ic U[oc][ic] ⊙ V[tile][ic].
func (r *winogradRun) dot(m []int32, v []int16) {
	g := r.g
	for tile := range r.l.tiles() {
		for oc := range g.outC {
			acc := m[(tile*g.outC+oc)*16 : (tile*g.outC+oc+1)*16]
			clear(acc)
			for ic := range g.inC {
				r.s.MulAcc(acc,
					r.u[(oc*g.inC+ic)*16:(oc*g.inC+ic+1)*16],
					v[(tile*g.inC+ic)*16:(tile*g.inC+ic+1)*16])
			}
		}
	}
}

// transformOutput computes Y = Aᵀ·M·A per tile and channel, requantizes and
// writes the cells that fall inside the output.
func (r *winogradRun) transformOutput(o, m []int32, n int) {
	g, l, p := r.g, r.l, r.p
	for ty := range l.tilesH {
		for tx := range l.tilesW {
			tile := ty*l.tilesW + tx
			for oc := range g.outC {
				src := m[(tile*g.outC+oc)*16 : (tile*g.outC+oc+1)*16]
				y := o[(tile*g.outC+oc)*8 : (tile*g.outC+oc+1)*8]

				// Row op, 4→2 per row. The sums carry the ×4 kernel factor
				// and can leave int32, so they stay in int64 until it is
				// divided out.
				var t [8]int64
				for i := range 4 {
					t[i*2] = int64(src[i*4]) + int64(src[i*4+1]) + int64(src[i*4+2])
					t[i*2+1] = int64(src[i*4+1]) - int64(src[i*4+2]) - int64(src[i*4+3])
				}
				// Column op, 4→2.
				for j := range 2 {
					y[j] = int32((t[j] + t[2+j] + t[4+j]) / 4)
					y[2+j] = int32((t[2+j] - t[4+j] - t[6+j]) / 4)
				}

				var bias int32
				if r.op.bias != nil {
					bias = r.op.bias[oc]
				}
				for dy := range 2 {
					oy := 2*ty + dy
					if oy >= g.outH {
						continue
					}
					for dx := range 2 {
						ox := 2*tx + dx
						if ox >= g.outW {
							continue
						}
						pos := (n*g.outH+oy)*g.outW + ox
						r.op.output[pos*g.outC+oc] = requant.RequantizeInt8(y[dy*2+dx]+bias,
							r.op.multiplier[oc], r.op.shift[oc],
							p.OutputOffset, p.Activation.Min, p.Activation.Max)
					}
				}
			}
		}
	}
}
