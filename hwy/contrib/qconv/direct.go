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

// alignedCols rounds the im2col row length up to a multiple of 4.
func alignedCols(rhsCols int) int {
	return (rhsCols + 3) &^ 3
}

// planDirect sizes the im2col ping-pong buffer: two int16 columns.
func planDirect(g geometry) plan {
	var p plan
	p.add(regionIm2col, 2*alignedCols(g.rhsCols())*2)
	return p
}

// directRun holds the state of one direct-engine call.
type directRun struct {
	s    Strategy
	p    Params
	g    geometry
	op   operands
	fill int16
}

// runDirect convolves every batch and group through im2col and the 2×2
// blocked kernel.
func runDirect(s Strategy, p Params, g geometry, op operands, a *Arena) error {
	col, err := a.takeInt16(regionIm2col)
	if err != nil {
		return err
	}
	defer a.put(regionIm2col)

	aligned := alignedCols(g.rhsCols())
	if len(col) < 2*aligned {
		return fmt.Errorf("%w: im2col buffer holds %d, need %d", ErrInvariant, len(col), 2*aligned)
	}

	r := &directRun{s: s, p: p, g: g, op: op, fill: p.fill()}
	rhs := g.rhsCols()
	cols := [2][]int16{col[:rhs], col[aligned : aligned+rhs]}
	var pos [2]int

	for n := range g.batch {
		for grp := range g.groups {
			pending := 0
			for oy := range g.outH {
				for ox := range g.outW {
					r.im2col(cols[pending], n, grp, ox, oy)
					pos[pending] = (n*g.outH+oy)*g.outW + ox
					pending++
					if pending == 2 {
						r.kernel2(grp, pos[0], pos[1], cols[0], cols[1])
						pending = 0
					}
				}
			}
			if pending == 1 {
				r.kernel1(grp, pos[0], cols[0])
			}
		}
	}
	return nil
}

// im2col widens the receptive field of output position (ox, oy) in group grp
// into dst, ordered [kH][kW][kC] to match the filter rows.
func (r *directRun) im2col(dst []int16, n, grp, ox, oy int) {
	g, p := r.g, r.p
	off := int16(p.InputOffset)
	i := 0
	for ky := range g.kH {
		iy := oy*p.Stride.H - p.Padding.H + ky*p.Dilation.H
		for kx := range g.kW {
			ix := ox*p.Stride.W - p.Padding.W + kx*p.Dilation.W
			tap := dst[i : i+g.kC]
			if iy < 0 || iy >= g.inH || ix < 0 || ix >= g.inW {
				r.s.Fill(tap, r.fill)
			} else {
				base := ((n*g.inH+iy)*g.inW+ix)*g.inC + grp*g.kC
				r.s.Widen(tap, r.op.input[base:base+g.kC], off)
			}
			i += g.kC
		}
	}
}

func (r *directRun) row(oc int) []int8 {
	rhs := r.g.rhsCols()
	return r.op.filter[oc*rhs : (oc+1)*rhs]
}

func (r *directRun) bias(oc int) int32 {
	if r.op.bias == nil {
		return 0
	}
	return r.op.bias[oc]
}

func (r *directRun) store(pos, oc int, acc int32) {
	r.op.output[pos*r.g.outC+oc] = requant.RequantizeInt8(acc,
		r.op.multiplier[oc], r.op.shift[oc],
		r.p.OutputOffset, r.p.Activation.Min, r.p.Activation.Max)
}

// kernel2 computes two output positions for every channel of group grp.
func (r *directRun) kernel2(grp, pos0, pos1 int, col0, col1 []int16) {
	perGroup := r.g.outC / r.g.groups
	first := grp * perGroup
	last := first + perGroup

	oc := first
	for ; oc+1 < last; oc += 2 {
		b0, b1 := r.bias(oc), r.bias(oc+1)
		c00, c01, c10, c11 := r.s.Dot2x2(r.row(oc), r.row(oc+1), col0, col1)
		r.store(pos0, oc, b0+c00)
		r.store(pos1, oc, b0+c01)
		r.store(pos0, oc+1, b1+c10)
		r.store(pos1, oc+1, b1+c11)
	}

	// Odd channel
	if oc < last {
		b := r.bias(oc)
		a := r.row(oc)
		r.store(pos0, oc, b+r.s.Dot(a, col0))
		r.store(pos1, oc, b+r.s.Dot(a, col1))
	}
}

// kernel1 computes the trailing single output position.
func (r *directRun) kernel1(grp, pos int, col []int16) {
	perGroup := r.g.outC / r.g.groups
	for oc := grp * perGroup; oc < (grp+1)*perGroup; oc++ {
		r.store(pos, oc, r.bias(oc)+r.s.Dot(r.row(oc), col))
	}
}
