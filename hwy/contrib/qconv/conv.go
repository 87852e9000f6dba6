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
	"log/slog"

	"github.com/embedded-nn/go-qnn/internal/envconfig"
	"github.com/embedded-nn/go-qnn/tensor"
)

// Conv is a configured convolution. It owns a scratch arena sized for its
// algorithm and reuses it on every Execute.
type Conv struct {
	params    Params
	geom      geometry
	algorithm Algorithm
	strategy  Strategy
	arena     *Arena
}

type options struct {
	strategy     Strategy
	algorithm    *Algorithm
	scratchLimit uint64
}

// Option adjusts Configure.
type Option func(*options)

// WithStrategy overrides the strategy Configure would select.
func WithStrategy(s Strategy) Option {
	return func(o *options) { o.strategy = s }
}

// WithAlgorithm forces an engine. Forcing AlgorithmWinograd on an
// ineligible convolution makes Configure fail with ErrUnsupported.
func WithAlgorithm(a Algorithm) Option {
	return func(o *options) { o.algorithm = &a }
}

// WithScratchLimit caps the scratch arena in bytes, overriding
// QNN_MAX_SCRATCH. Zero removes the cap.
func WithScratchLimit(n uint64) Option {
	return func(o *options) { o.scratchLimit = n }
}

// Configure validates a convolution, selects its algorithm and strategy and
// allocates its scratch arena.
//
// Winograd is selected when p.Fast is set and the convolution is 3×3 with
// stride 1, dilation 1 and one group; Direct otherwise. Errors wrap the
// package sentinels; a scratch allocation failure is a *FatalError.
func Configure(p Params, input, filter, output *tensor.View, opts ...Option) (*Conv, error) {
	o := options{scratchLimit: envconfig.MaxScratch()}
	for _, opt := range opts {
		opt(&o)
	}

	if err := p.validate(); err != nil {
		return nil, err
	}
	g, err := geometryOf(p, input, filter, output)
	if err != nil {
		return nil, err
	}

	algorithm := AlgorithmDirect
	switch {
	case o.algorithm != nil:
		algorithm = *o.algorithm
		if algorithm == AlgorithmWinograd {
			if err := winogradEligible(p, g); err != nil {
				return nil, err
			}
		} else if algorithm != AlgorithmDirect {
			return nil, fmt.Errorf("%w: algorithm %v", ErrUnsupported, algorithm)
		}
	case p.Fast && winogradEligible(p, g) == nil:
		algorithm = AlgorithmWinograd
	}

	strategy := o.strategy
	if strategy == nil {
		strategy = SelectStrategy(p.Fast)
	}

	var pl plan
	if algorithm == AlgorithmWinograd {
		pl = planWinograd(p, g)
	} else {
		pl = planDirect(g)
	}
	arena, err := newArena(pl, o.scratchLimit)
	if err != nil {
		return nil, err
	}

	slog.Debug("qconv: configured",
		"algorithm", algorithm,
		"strategy", strategy.Name(),
		"scratch", pl.size,
		"input", input,
		"filter", filter,
		"groups", g.groups)

	return &Conv{
		params:    p,
		geom:      g,
		algorithm: algorithm,
		strategy:  strategy,
		arena:     arena,
	}, nil
}

// MustConfigure is like Configure but panics on error.
func MustConfigure(p Params, input, filter, output *tensor.View, opts ...Option) *Conv {
	c, err := Configure(p, input, filter, output, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Execute runs the convolution on live tensors. The tensors must match the
// shapes given to Configure. All checks happen before the output is written,
// so a failed call leaves the output untouched.
func (c *Conv) Execute(t Tensors) error {
	if c == nil || c.arena == nil || c.arena.buf == nil {
		return ErrReleased
	}
	op, err := c.geom.bind(c.params, t)
	if err != nil {
		return err
	}

	switch c.algorithm {
	case AlgorithmWinograd:
		return runWinograd(c.strategy, c.params, c.geom, op, c.arena)
	default:
		return runDirect(c.strategy, c.params, c.geom, op, c.arena)
	}
}

// ResetCache drops the cached winograd kernel transform. Call it after
// modifying filter data in place; a different filter slice is detected
// without it.
func (c *Conv) ResetCache() {
	if c != nil && c.arena != nil {
		c.arena.invalidateKernel()
	}
}

// Algorithm returns the engine Execute runs.
func (c *Conv) Algorithm() Algorithm { return c.algorithm }

// Strategy returns the strategy the engine runs with.
func (c *Conv) Strategy() Strategy { return c.strategy }

// ScratchSize returns the size of the scratch arena in bytes.
func (c *Conv) ScratchSize() int { return c.arena.Size() }

// OutputShape returns the output dims [channels, width, height, batch].
func (c *Conv) OutputShape() [4]int {
	return [4]int{c.geom.outC, c.geom.outW, c.geom.outH, c.geom.batch}
}

// Release frees the scratch arena of *c and sets *c to nil. It is a no-op
// when c or *c is nil.
func Release(c **Conv) {
	if c == nil || *c == nil {
		return
	}
	if (*c).arena != nil {
		(*c).arena.free()
		(*c).arena = nil
	}
	*c = nil
}

// DirectConv runs a single direct convolution with a temporary arena.
func DirectConv(p Params, t Tensors, opts ...Option) error {
	return oneShot(AlgorithmDirect, p, t, opts)
}

// WinogradConv runs a single winograd convolution with a temporary arena. It
// fails with ErrUnsupported, without writing, unless the convolution is 3×3
// with stride 1, dilation 1 and one group.
func WinogradConv(p Params, t Tensors, opts ...Option) error {
	return oneShot(AlgorithmWinograd, p, t, opts)
}

func oneShot(a Algorithm, p Params, t Tensors, opts []Option) error {
	c, err := Configure(p, t.Input, t.Filter, t.Output, append(opts[:len(opts):len(opts)], WithAlgorithm(a))...)
	if err != nil {
		return err
	}
	defer Release(&c)
	return c.Execute(t)
}
