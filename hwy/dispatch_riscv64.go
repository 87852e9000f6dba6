//go:build riscv64

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
	if cpu.RISCV64.HasV {
		// VLEN is at least 128 bits for the application profiles.
		setLevel(DispatchRVV, 16)
		return
	}
	setScalarMode()
}
