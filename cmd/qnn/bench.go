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

package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"slices"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/embedded-nn/go-qnn/hwy/contrib/qconv"
	"github.com/embedded-nn/go-qnn/tensor"
)

type benchOptions struct {
	channelsIn  int
	channelsOut int
	size        int
	kernel      int
	stride      int
	pad         int
	batch       int
	iters       int
	parallel    int
	seed        int64
}

type benchPath struct {
	algorithm qconv.Algorithm
	strategy  qconv.Strategy
}

func (p benchPath) String() string {
	return p.algorithm.String() + "/" + p.strategy.Name()
}

type benchResult struct {
	path    benchPath
	scratch int
	elapsed time.Duration
	calls   int
	match   bool
}

func newBenchCmd() *cobra.Command {
	var o benchOptions
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Time every convolution path on random data and check they agree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := runBench(o)
			if err != nil {
				return err
			}
			printBench(cmd.OutOrStdout(), o, results)
			if lo.ContainsBy(results, func(r benchResult) bool { return !r.match }) {
				return errors.New("convolution paths disagree")
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVar(&o.channelsIn, "channels-in", 32, "Input channels")
	f.IntVar(&o.channelsOut, "channels-out", 32, "Output channels")
	f.IntVar(&o.size, "size", 16, "Input width and height")
	f.IntVar(&o.kernel, "kernel", 3, "Kernel width and height")
	f.IntVar(&o.stride, "stride", 1, "Stride")
	f.IntVar(&o.pad, "pad", 1, "Padding")
	f.IntVar(&o.batch, "batch", 1, "Batch size")
	f.IntVar(&o.iters, "iters", 20, "Calls per instance")
	f.IntVar(&o.parallel, "parallel", 1, "Independently configured instances run concurrently")
	f.Int64Var(&o.seed, "seed", 1, "Random seed")
	return cmd
}

// benchTensors builds random operands for o. Shifts keep outputs away from
// saturation.
func benchTensors(o benchOptions) (qconv.Params, qconv.Tensors, error) {
	p := qconv.DefaultParams()
	p.Stride = qconv.Extent{W: o.stride, H: o.stride}
	p.Padding = qconv.Extent{W: o.pad, H: o.pad}
	p.InputOffset = 3
	p.OutputOffset = -2

	out := qconv.OutputSize(o.size, o.kernel, o.stride, o.pad, 1)
	if o.channelsIn <= 0 || o.channelsOut <= 0 || o.batch <= 0 || out <= 0 {
		return p, qconv.Tensors{}, fmt.Errorf("invalid shape: %d→%d channels, size %d, kernel %d", o.channelsIn, o.channelsOut, o.size, o.kernel)
	}

	rng := rand.New(rand.NewSource(o.seed))
	int8s := func(n int) []int8 {
		s := make([]int8, n)
		for i := range s {
			s[i] = int8(rng.Intn(256) - 128)
		}
		return s
	}
	bias := make([]int32, o.channelsOut)
	mult := make([]int32, o.channelsOut)
	shift := make([]int32, o.channelsOut)
	for i := range o.channelsOut {
		bias[i] = rng.Int31n(2001) - 1000
		mult[i] = 1<<30 + rng.Int31n(1<<30)
		shift[i] = -8 - rng.Int31n(4)
	}

	var ts qconv.Tensors
	var err error
	if ts.Input, err = tensor.New(int8s(o.batch*o.size*o.size*o.channelsIn), o.channelsIn, o.size, o.size, o.batch); err != nil {
		return p, ts, err
	}
	if ts.Filter, err = tensor.New(int8s(o.channelsOut*o.kernel*o.kernel*o.channelsIn), o.channelsIn, o.kernel, o.kernel, o.channelsOut); err != nil {
		return p, ts, err
	}
	ts.Bias = tensor.Must(bias, o.channelsOut)
	ts.Multiplier = tensor.Must(mult, o.channelsOut)
	ts.Shift = tensor.Must(shift, o.channelsOut)
	ts.Output = tensor.Shape4[int8](o.channelsOut, out, out, o.batch)
	return p, ts, nil
}

func runBench(o benchOptions) ([]benchResult, error) {
	p, ts, err := benchTensors(o)
	if err != nil {
		return nil, err
	}
	o.parallel = max(o.parallel, 1)
	o.iters = max(o.iters, 1)

	paths := []benchPath{
		{qconv.AlgorithmDirect, qconv.Scalar},
		{qconv.AlgorithmDirect, qconv.Vector},
		{qconv.AlgorithmWinograd, qconv.Scalar},
		{qconv.AlgorithmWinograd, qconv.Vector},
	}

	var results []benchResult
	var reference []int8
	for _, path := range paths {
		r, out, err := benchOne(p, ts, path, o)
		if errors.Is(err, qconv.ErrUnsupported) {
			slog.Info("skipping path", "path", path, "reason", err)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%v: %w", path, err)
		}
		if reference == nil {
			reference = out
		}
		r.match = slices.Equal(reference, out)
		results = append(results, r)
	}
	return results, nil
}

// benchOne runs o.parallel instances of one path concurrently and returns
// the output of the first.
func benchOne(p qconv.Params, ts qconv.Tensors, path benchPath, o benchOptions) (benchResult, []int8, error) {
	r := benchResult{path: path, calls: o.parallel * o.iters}
	outputs := make([]qconv.Tensors, o.parallel)
	convs := make([]*qconv.Conv, o.parallel)
	for i := range outputs {
		outputs[i] = ts
		outputs[i].Output = tensor.Shape4[int8](ts.Output.Channels(), ts.Output.Width(), ts.Output.Height(), ts.Output.Batch())

		c, err := qconv.Configure(p, ts.Input, ts.Filter, outputs[i].Output,
			qconv.WithAlgorithm(path.algorithm), qconv.WithStrategy(path.strategy))
		if err != nil {
			for _, c := range convs[:i] {
				qconv.Release(&c)
			}
			return r, nil, err
		}
		convs[i] = c
	}
	defer func() {
		for i := range convs {
			qconv.Release(&convs[i])
		}
	}()
	r.scratch = convs[0].ScratchSize()

	var g errgroup.Group
	start := time.Now()
	for i, c := range convs {
		g.Go(func() error {
			for range o.iters {
				if err := c.Execute(outputs[i]); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return r, nil, err
	}
	r.elapsed = time.Since(start)
	return r, outputs[0].Output.Int8(), nil
}

func printBench(w io.Writer, o benchOptions, results []benchResult) {
	fmt.Fprintf(w, "conv %dx%dx%d -> %d channels, kernel %d, stride %d, pad %d, batch %d, %d instance(s)\n\n",
		o.size, o.size, o.channelsIn, o.channelsOut, o.kernel, o.stride, o.pad, o.batch, max(o.parallel, 1))

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"PATH", "SCRATCH", "CALLS", "TOTAL", "PER CALL", "MATCH"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(lo.Map(results, func(r benchResult, _ int) []string {
		perCall := r.elapsed / time.Duration(max(r.calls, 1))
		return []string{
			r.path.String(),
			strconv.Itoa(r.scratch) + " B",
			strconv.Itoa(r.calls),
			r.elapsed.Round(time.Microsecond).String(),
			perCall.Round(time.Microsecond).String(),
			strconv.FormatBool(r.match),
		}
	}))
	table.Render()
}
