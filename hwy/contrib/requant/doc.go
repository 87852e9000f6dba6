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

// Package requant implements the fixed-point requantization used by the
// quantized kernels: an int32 accumulator is scaled by a per-channel
// (multiplier, shift) pair approximating a real factor, rounded, offset by the
// output zero point and narrowed to int8.
//
// # Encoding
//
// A real scale s is encoded as
//
//	s ≈ multiplier / 2^31 * 2^shift
//
// where multiplier is a positive int32 holding a fraction in [0.5, 1) and
// shift is a signed power of two. QuantizeMultiplier produces this encoding.
//
// # Rounding
//
// Requantize rounds half away from zero at both steps: when dividing the
// 64-bit product by 2^31 and when applying a negative shift.
//
//	requant.Requantize(3, 1<<30, 0)  // 2  (3 * 0.5 = 1.5)
//	requant.Requantize(-3, 1<<30, 0) // -2
package requant
