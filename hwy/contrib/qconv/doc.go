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

// Package qconv implements quantized int8 2-D convolution for embedded
// inference.
//
// Two engines share one set of tensor conventions:
//   - Direct: im2col two output positions at a time, multiplied against the
//     filter with a 2×2 blocked int32 kernel. Handles any stride, dilation,
//     padding and group count.
//   - Winograd: F(2,3) minimal filtering for 3×3 kernels with stride 1,
//     dilation 1 and a single group. Its output is bit-identical to Direct.
//
// Both engines run their inner loops through a Strategy, either the scalar
// reference or the lane-blocked vector path backed by the hwy package.
//
// # Tensor layout
//
// Tensors are channel-fastest: dimension 0 is channels, then width, height
// and batch. Filters use dims [kernelChannels, kW, kH, outChannels], so the
// memory order is [out][kH][kW][kernelChannels]. The group count is
// inputChannels / kernelChannels.
//
// # Usage
//
//	p := qconv.DefaultParams()
//	p.Padding = qconv.Extent{W: 1, H: 1}
//	p.Fast = true
//	c, err := qconv.Configure(p, input, filter, output)
//	if err != nil {
//	    return err
//	}
//	defer qconv.Release(&c)
//	err = c.Execute(qconv.Tensors{
//	    Input: input, Filter: filter, Bias: bias,
//	    Multiplier: mult, Shift: shift, Output: output,
//	})
//
// A configured Conv owns its scratch arena and is not safe for concurrent
// Execute calls. Configure one instance per goroutine instead.
package qconv
