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
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/embedded-nn/go-qnn/internal/cpuinfo"
)

func newCPUInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cpuinfo",
		Short: "Print detected CPU features and the dispatch level",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printCPUInfo(cmd.OutOrStdout(), cpuinfo.Collect())
		},
	}
}

func printCPUInfo(w io.Writer, r cpuinfo.Report) error {
	title := cases.Title(language.English)

	fmt.Fprintf(w, "GOOS:     %s\n", r.GOOS)
	fmt.Fprintf(w, "GOARCH:   %s\n", r.GOARCH)
	fmt.Fprintf(w, "NumCPU:   %d\n", r.NumCPU)
	fmt.Fprintf(w, "Level:    %s\n", title.String(r.Level.String()))
	fmt.Fprintf(w, "Width:    %d bytes\n", r.Width)
	fmt.Fprintf(w, "Name:     %s\n", r.Name)
	if r.NoSimd {
		fmt.Fprintln(w, "Vector dispatch disabled by HWY_NO_SIMD")
	}
	if len(r.Features) == 0 {
		return nil
	}
	fmt.Fprintln(w)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"FEATURE", "PRESENT", "NOTE"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(lo.Map(r.Features, func(f cpuinfo.Feature, _ int) []string {
		return []string{f.Name, strconv.FormatBool(f.Present), f.Note}
	}))
	table.Render()
	return nil
}
