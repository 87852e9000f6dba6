//go:build arm64

package hwy

import "golang.org/x/sys/cpu"

func init() {
	if NoSimdEnv() {
		setScalarMode()
		return
	}

	detectCPUFeatures()
}

func detectCPUFeatures() {
	// SVE vector length is implementation defined; the kernels only rely on
	// the 128-bit minimum.
	switch {
	case cpu.ARM64.HasSVE:
		setLevel(DispatchSVE, 16)
	default:
		// ASIMD is mandatory on arm64.
		setLevel(DispatchNEON, 16)
	}
}
