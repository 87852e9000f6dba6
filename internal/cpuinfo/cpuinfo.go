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

// Package cpuinfo reports the CPU features golang.org/x/sys/cpu detects and
// the vector dispatch level the kernels picked from them.
package cpuinfo

import (
	"runtime"

	"golang.org/x/sys/cpu"

	"github.com/embedded-nn/go-qnn/hwy"
)

// Feature is one detected CPU capability.
type Feature struct {
	Name    string
	Present bool
	Note    string
}

// Report is a snapshot of the host and dispatch state.
type Report struct {
	GOOS, GOARCH string
	NumCPU       int
	Level        hwy.DispatchLevel
	Width        int
	Name         string
	NoSimd       bool
	Features     []Feature
}

// Collect returns the current report.
func Collect() Report {
	return Report{
		GOOS:     runtime.GOOS,
		GOARCH:   runtime.GOARCH,
		NumCPU:   runtime.NumCPU(),
		Level:    hwy.CurrentLevel(),
		Width:    hwy.CurrentWidth(),
		Name:     hwy.CurrentName(),
		NoSimd:   hwy.NoSimdEnv(),
		Features: Features(runtime.GOARCH),
	}
}

// Features lists the x/sys/cpu flags relevant to arch. Unknown
// architectures have none.
func Features(arch string) []Feature {
	switch arch {
	case "amd64":
		return []Feature{
			{"SSE2", cpu.X86.HasSSE2, "baseline"},
			{"SSE41", cpu.X86.HasSSE41, ""},
			{"SSE42", cpu.X86.HasSSE42, ""},
			{"AVX", cpu.X86.HasAVX, ""},
			{"AVX2", cpu.X86.HasAVX2, "32-byte lanes"},
			{"FMA", cpu.X86.HasFMA, ""},
			{"AVX512F", cpu.X86.HasAVX512F, "64-byte lanes with AVX512BW"},
			{"AVX512BW", cpu.X86.HasAVX512BW, "byte and word ops"},
			{"AVX512VL", cpu.X86.HasAVX512VL, ""},
			{"AVX512VNNI", cpu.X86.HasAVX512VNNI, "int8 dot products"},
		}
	case "arm64":
		return []Feature{
			{"ASIMD", cpu.ARM64.HasASIMD, "NEON baseline"},
			{"ASIMDDP", cpu.ARM64.HasASIMDDP, "int8 dot products"},
			{"ASIMDHP", cpu.ARM64.HasASIMDHP, "FP16 NEON"},
			{"SVE", cpu.ARM64.HasSVE, "Scalable Vector Extension"},
			{"SVE2", cpu.ARM64.HasSVE2, ""},
			{"ATOMICS", cpu.ARM64.HasATOMICS, "Large System Extensions"},
		}
	case "riscv64":
		return []Feature{
			{"V", cpu.RISCV64.HasV, "vector extension"},
			{"Zba", cpu.RISCV64.HasZba, ""},
			{"Zbb", cpu.RISCV64.HasZbb, ""},
		}
	}
	return nil
}
