//go:build amd64

package hwy

import "golang.org/x/sys/cpu"

func init() {
	// Check if SIMD is disabled via environment variable
	if NoSimdEnv() {
		setScalarMode()
		return
	}

	detectCPUFeatures()
}

func detectCPUFeatures() {
	switch {
	case cpu.X86.HasAVX512F && cpu.X86.HasAVX512BW:
		setLevel(DispatchAVX512, 64)
	case cpu.X86.HasAVX2:
		setLevel(DispatchAVX2, 32)
	default:
		// SSE2 is baseline for amd64
		setLevel(DispatchSSE2, 16)
	}
}
