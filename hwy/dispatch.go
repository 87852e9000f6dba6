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

// Package hwy detects the data-parallel capability of the running CPU and
// provides portable lane operations that the kernels in hwy/contrib are
// written against.
//
// The dispatch level is fixed at init time. Setting HWY_NO_SIMD forces the
// scalar level, which is useful for testing the portable paths on SIMD
// hardware.
package hwy

import "github.com/embedded-nn/go-qnn/internal/envconfig"

// DispatchLevel identifies the widest instruction set the kernels may target.
type DispatchLevel int

const (
	DispatchScalar DispatchLevel = iota
	DispatchSSE2
	DispatchAVX2
	DispatchAVX512
	DispatchNEON
	DispatchSVE
	DispatchRVV
)

func (l DispatchLevel) String() string {
	switch l {
	case DispatchScalar:
		return "scalar"
	case DispatchSSE2:
		return "sse2"
	case DispatchAVX2:
		return "avx2"
	case DispatchAVX512:
		return "avx512"
	case DispatchNEON:
		return "neon"
	case DispatchSVE:
		return "sve"
	case DispatchRVV:
		return "rvv"
	default:
		return "unknown"
	}
}

var (
	currentLevel DispatchLevel
	currentWidth int
	currentName  string
)

// CurrentLevel returns the dispatch level selected at init.
func CurrentLevel() DispatchLevel { return currentLevel }

// CurrentWidth returns the vector width in bytes for the current level.
func CurrentWidth() int { return currentWidth }

// CurrentName returns a short name for the current level.
func CurrentName() string { return currentName }

// HasSIMD reports whether a vector level was detected.
func HasSIMD() bool { return currentLevel != DispatchScalar }

// NoSimdEnv reports whether HWY_NO_SIMD asks for scalar code.
func NoSimdEnv() bool {
	return envconfig.NoSimd()
}

func setLevel(level DispatchLevel, width int) {
	currentLevel = level
	currentWidth = width
	currentName = level.String()
}

func setScalarMode() {
	// Use 16-byte vectors even in scalar mode for consistency
	setLevel(DispatchScalar, 16)
}
