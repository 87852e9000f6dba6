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
	"unsafe"
)

// regionID names a slice of the scratch arena.
type regionID int

const (
	regionIm2col regionID = iota // direct: two im2col columns, int16
	regionKernel                 // winograd: transformed filter, int16 [out][in][16]
	regionInput                  // winograd: transformed input, int16 [tiles][in][16] + staging
	regionDot                    // winograd: accumulators, int32 [tiles][out][16]
	regionPad                    // winograd: padded input image, int8
	regionOutput                 // winograd: output transform, int32 [tiles][out][8]
	numRegions
)

var regionNames = [numRegions]string{"im2col", "kernel", "input", "dot", "pad", "output"}

func (r regionID) String() string {
	if r < 0 || r >= numRegions {
		return fmt.Sprintf("region(%d)", int(r))
	}
	return regionNames[r]
}

type region struct {
	off, size int
	planned   bool
}

func (r region) overlaps(o region) bool {
	return r.off < o.off+o.size && o.off < r.off+r.size
}

// plan lays regions out back to back with 8-byte alignment.
type plan struct {
	regions [numRegions]region
	size    int
}

func align8(n int) int { return (n + 7) &^ 7 }

func (p *plan) add(id regionID, bytes int) {
	p.regions[id] = region{off: p.size, size: bytes, planned: true}
	p.size = align8(p.size + bytes)
}

// union places regions that are never live at the same time at one offset,
// reserving the largest of their sizes.
func (p *plan) union(ids []regionID, sizes []int) {
	largest := 0
	for i, id := range ids {
		p.regions[id] = region{off: p.size, size: sizes[i], planned: true}
		largest = max(largest, sizes[i])
	}
	p.size = align8(p.size + largest)
}

// Arena is the scratch memory of one configured convolution. Regions are
// borrowed for one phase of an engine and returned before the next phase
// that aliases them.
type Arena struct {
	buf     []uint64
	size    int
	regions [numRegions]region
	active  [numRegions]bool

	// Cached winograd kernel transform, keyed by the filter backing array.
	kernelData *int8
	kernelLen  int
}

// newArena allocates the planned arena. A plan above limit (when non-zero) or
// an allocation panic yields a FatalError.
func newArena(p plan, limit uint64) (a *Arena, err error) {
	if limit > 0 && uint64(p.size) > limit {
		return nil, &FatalError{
			Size: uint64(p.size),
			Err:  fmt.Errorf("%w: exceeds limit of %d bytes", ErrScratchAlloc, limit),
		}
	}

	defer func() {
		if r := recover(); r != nil {
			a = nil
			err = &FatalError{Size: uint64(p.size), Err: fmt.Errorf("%w: %v", ErrScratchAlloc, r)}
		}
	}()

	a = &Arena{
		buf:     make([]uint64, align8(p.size)/8),
		size:    p.size,
		regions: p.regions,
	}
	return a, nil
}

// Size returns the arena size in bytes.
func (a *Arena) Size() int {
	if a == nil {
		return 0
	}
	return a.size
}

func (a *Arena) free() {
	a.buf = nil
	a.size = 0
	a.active = [numRegions]bool{}
	a.kernelData, a.kernelLen = nil, 0
}

// take marks id active and returns its bytes.
func (a *Arena) take(id regionID) ([]byte, error) {
	if a.buf == nil {
		return nil, ErrReleased
	}
	if id < 0 || id >= numRegions || !a.regions[id].planned {
		return nil, fmt.Errorf("%w: region %v not planned", ErrInvariant, id)
	}
	r := a.regions[id]
	for other := range numRegions {
		if a.active[other] && a.regions[other].overlaps(r) {
			return nil, fmt.Errorf("%w: region %v overlaps active region %v", ErrInvariant, id, other)
		}
	}
	if r.off+r.size > len(a.buf)*8 {
		return nil, fmt.Errorf("%w: region %v out of bounds", ErrInvariant, id)
	}
	a.active[id] = true

	all := unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(a.buf))), len(a.buf)*8)
	return all[r.off : r.off+r.size : r.off+r.size], nil
}

// put returns borrowed regions.
func (a *Arena) put(ids ...regionID) {
	for _, id := range ids {
		if id >= 0 && id < numRegions {
			a.active[id] = false
		}
	}
}

func (a *Arena) takeInt8(id regionID) ([]int8, error) {
	b, err := a.take(id)
	if err != nil || len(b) == 0 {
		return nil, err
	}
	return unsafe.Slice((*int8)(unsafe.Pointer(&b[0])), len(b)), nil
}

func (a *Arena) takeInt16(id regionID) ([]int16, error) {
	b, err := a.take(id)
	if err != nil || len(b) == 0 {
		return nil, err
	}
	return unsafe.Slice((*int16)(unsafe.Pointer(&b[0])), len(b)/2), nil
}

func (a *Arena) takeInt32(id regionID) ([]int32, error) {
	b, err := a.take(id)
	if err != nil || len(b) == 0 {
		return nil, err
	}
	return unsafe.Slice((*int32)(unsafe.Pointer(&b[0])), len(b)/4), nil
}

// kernelCached reports whether the kernel region holds the transform of
// filter.
func (a *Arena) kernelCached(filter []int8) bool {
	return a.kernelData != nil && a.kernelData == unsafe.SliceData(filter) && a.kernelLen == len(filter)
}

func (a *Arena) setKernelCache(filter []int8) {
	a.kernelData, a.kernelLen = unsafe.SliceData(filter), len(filter)
}

func (a *Arena) invalidateKernel() {
	a.kernelData, a.kernelLen = nil, 0
}
