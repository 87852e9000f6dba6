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

package requant

import (
	"errors"
	"math"
)

// ErrScale is returned by QuantizeMultiplier for scales it cannot encode.
var ErrScale = errors.New("requant: scale must be positive and finite")

func leftShift(shift int32) int32 {
	return max(shift, 0)
}

func rightShift(shift int32) int32 {
	return max(-shift, 0)
}

// Requantize computes round(v * multiplier / 2^31 * 2^shift).
//
// A positive shift is applied to v before the 64-bit multiply; the pre-shift
// wraps in int32. A negative shift is applied to the rounded product as an
// arithmetic right shift followed by a correction that rounds the dropped
// remainder half away from zero.
func Requantize(v, multiplier, shift int32) int32 {
	ls := leftShift(shift)
	rs := rightShift(shift)

	prod := int64(v<<ls) * int64(multiplier)

	// Divide by 2^31 with half of the divisor added to the magnitude.
	const half = int64(1) << 30
	var result int32
	if prod >= 0 {
		result = int32((prod + half) >> 31)
	} else {
		result = int32(-((-prod + half) >> 31))
	}

	if rs == 0 {
		return result
	}
	if rs > 31 {
		rs = 31
	}

	mask := int32(1)<<rs - 1
	remainder := result & mask
	result >>= rs

	threshold := mask >> 1
	if result < 0 {
		threshold++
	}
	if remainder > threshold {
		result++
	}
	return result
}

// ClampToInt8 adds offset to v, clamps the sum to [actMin, actMax] and
// saturates it to the int8 range.
func ClampToInt8(v, offset, actMin, actMax int32) int8 {
	v += offset
	v = max(v, actMin)
	v = min(v, actMax)
	return int8(min(max(v, math.MinInt8), math.MaxInt8))
}

// RequantizeInt8 requantizes an accumulator and narrows it to the output
// tensor's int8 domain.
func RequantizeInt8(v, multiplier, shift, offset, actMin, actMax int32) int8 {
	return ClampToInt8(Requantize(v, multiplier, shift), offset, actMin, actMax)
}

// QuantizeMultiplier encodes a positive real scale as a (multiplier, shift)
// pair with the multiplier normalized into [2^30, 2^31).
func QuantizeMultiplier(scale float64) (multiplier, shift int32, err error) {
	if !(scale > 0) || math.IsInf(scale, 0) {
		return 0, 0, ErrScale
	}

	frac, exp := math.Frexp(scale)
	q := math.Round(frac * (1 << 31))
	if q == 1<<31 {
		q /= 2
		exp++
	}
	if exp < -31 {
		// Too small to represent; everything rounds to zero.
		return 0, 0, nil
	}
	if exp > 30 {
		return 0, 0, ErrScale
	}
	return int32(q), int32(exp), nil
}

// Scale returns the real factor a (multiplier, shift) pair encodes.
func Scale(multiplier, shift int32) float64 {
	return math.Ldexp(float64(multiplier)/(1<<31), int(shift))
}
