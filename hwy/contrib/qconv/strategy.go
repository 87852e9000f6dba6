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

import "github.com/embedded-nn/go-qnn/hwy"

// Strategy is the data-parallel policy the engines run their inner loops
// with. Every implementation must produce identical results; int32
// accumulation wraps the same way in all of them.
type Strategy interface {
	Name() string

	// Widen sets dst[i] = int16(src[i]) + offset for i < len(dst).
	Widen(dst []int16, src []int8, offset int16)

	// Fill sets every element of dst to v.
	Fill(dst []int16, v int16)

	// Dot returns the sum of a[i]*b[i] over len(a).
	Dot(a []int8, b []int16) int32

	// Dot2x2 computes the four dot products of filter rows a0, a1 against
	// im2col columns b0, b1. cXY is row X against column Y.
	Dot2x2(a0, a1 []int8, b0, b1 []int16) (c00, c01, c10, c11 int32)

	// MulAcc adds a[i]*b[i] to acc[i] for i < len(acc).
	MulAcc(acc []int32, a, b []int16)
}

var (
	// Scalar is the portable reference strategy.
	Scalar Strategy = scalarStrategy{}
	// Vector processes CurrentWidth bytes per step through hwy lane ops. The
	// lane ops are the portable Go form, so it is blocked rather than
	// hardware-vectorized.
	Vector Strategy = vectorStrategy{}
)

// SelectStrategy returns Vector when fast is set and the CPU has a vector
// dispatch level, and Scalar otherwise.
func SelectStrategy(fast bool) Strategy {
	if fast && hwy.HasSIMD() {
		return Vector
	}
	return Scalar
}

type scalarStrategy struct{}

func (scalarStrategy) Name() string { return "scalar" }

func (scalarStrategy) Widen(dst []int16, src []int8, offset int16) {
	src = src[:len(dst)]
	for i, v := range src {
		dst[i] = int16(v) + offset
	}
}

func (scalarStrategy) Fill(dst []int16, v int16) {
	for i := range dst {
		dst[i] = v
	}
}

func (scalarStrategy) Dot(a []int8, b []int16) int32 {
	b = b[:len(a)]
	var sum int32
	for i, v := range a {
		sum += int32(v) * int32(b[i])
	}
	return sum
}

func (scalarStrategy) Dot2x2(a0, a1 []int8, b0, b1 []int16) (c00, c01, c10, c11 int32) {
	n := len(a0)
	a1, b0, b1 = a1[:n], b0[:n], b1[:n]
	for i := range n {
		x0, x1 := int32(a0[i]), int32(a1[i])
		y0, y1 := int32(b0[i]), int32(b1[i])
		c00 += x0 * y0
		c01 += x0 * y1
		c10 += x1 * y0
		c11 += x1 * y1
	}
	return
}

func (scalarStrategy) MulAcc(acc []int32, a, b []int16) {
	n := len(acc)
	a, b = a[:n], b[:n]
	for i := range n {
		acc[i] += int32(a[i]) * int32(b[i])
	}
}

type vectorStrategy struct{}

func (vectorStrategy) Name() string { return "vector" }

func (vectorStrategy) Widen(dst []int16, src []int8, offset int16) {
	n := len(dst)
	lanes := hwy.MaxLanes[int16]()
	off := hwy.Set(offset)

	var i int
	for i = 0; i+lanes <= n; i += lanes {
		v := hwy.PromoteInt8[int16](src[i : i+lanes])
		hwy.Store(hwy.Add(v, off), dst[i:])
	}

	// Scalar tail
	for ; i < n; i++ {
		dst[i] = int16(src[i]) + offset
	}
}

func (vectorStrategy) Fill(dst []int16, v int16) {
	n := len(dst)
	lanes := hwy.MaxLanes[int16]()
	splat := hwy.Set(v)

	var i int
	for i = 0; i+lanes <= n; i += lanes {
		hwy.Store(splat, dst[i:])
	}
	for ; i < n; i++ {
		dst[i] = v
	}
}

func (vectorStrategy) Dot(a []int8, b []int16) int32 {
	n := len(a)
	lanes := hwy.MaxLanes[int32]()
	acc := hwy.Zero[int32]()

	var i int
	for i = 0; i+lanes <= n; i += lanes {
		va := hwy.PromoteInt8[int32](a[i : i+lanes])
		vb := hwy.PromoteInt16[int32](b[i : i+lanes])
		acc = hwy.MulAdd(va, vb, acc)
	}
	sum := hwy.ReduceSum(acc)

	for ; i < n; i++ {
		sum += int32(a[i]) * int32(b[i])
	}
	return sum
}

func (vectorStrategy) Dot2x2(a0, a1 []int8, b0, b1 []int16) (c00, c01, c10, c11 int32) {
	n := len(a0)
	lanes := hwy.MaxLanes[int32]()
	acc00 := hwy.Zero[int32]()
	acc01 := hwy.Zero[int32]()
	acc10 := hwy.Zero[int32]()
	acc11 := hwy.Zero[int32]()

	// Each column vector is loaded once and used against both filter rows.
	var i int
	for i = 0; i+lanes <= n; i += lanes {
		x0 := hwy.PromoteInt8[int32](a0[i : i+lanes])
		x1 := hwy.PromoteInt8[int32](a1[i : i+lanes])
		y0 := hwy.PromoteInt16[int32](b0[i : i+lanes])
		y1 := hwy.PromoteInt16[int32](b1[i : i+lanes])
		acc00 = hwy.MulAdd(x0, y0, acc00)
		acc01 = hwy.MulAdd(x0, y1, acc01)
		acc10 = hwy.MulAdd(x1, y0, acc10)
		acc11 = hwy.MulAdd(x1, y1, acc11)
	}
	c00 = hwy.ReduceSum(acc00)
	c01 = hwy.ReduceSum(acc01)
	c10 = hwy.ReduceSum(acc10)
	c11 = hwy.ReduceSum(acc11)

	for ; i < n; i++ {
		x0, x1 := int32(a0[i]), int32(a1[i])
		y0, y1 := int32(b0[i]), int32(b1[i])
		c00 += x0 * y0
		c01 += x0 * y1
		c10 += x1 * y0
		c11 += x1 * y1
	}
	return
}

func (vectorStrategy) MulAcc(acc []int32, a, b []int16) {
	n := len(acc)
	lanes := hwy.MaxLanes[int32]()

	var i int
	for i = 0; i+lanes <= n; i += lanes {
		va := hwy.PromoteInt16[int32](a[i : i+lanes])
		vb := hwy.PromoteInt16[int32](b[i : i+lanes])
		vacc := hwy.Load(acc[i : i+lanes])
		hwy.Store(hwy.MulAdd(va, vb, vacc), acc[i:])
	}
	for ; i < n; i++ {
		acc[i] += int32(a[i]) * int32(b[i])
	}
}
