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
	"errors"
	"fmt"
)

var (
	// ErrGroupMismatch reports channel counts that do not divide into groups.
	ErrGroupMismatch = errors.New("qconv: channels not divisible by groups")
	// ErrUnsupported reports a configuration the requested engine cannot run.
	ErrUnsupported = errors.New("qconv: unsupported configuration")
	// ErrShape reports tensors whose type, layout or dimensions do not agree.
	ErrShape = errors.New("qconv: tensor shape mismatch")
	// ErrParams reports invalid stride, dilation, padding or clamp settings.
	ErrParams = errors.New("qconv: invalid parameters")
	// ErrInvariant reports an internal scratch or buffer inconsistency.
	ErrInvariant = errors.New("qconv: internal invariant violated")
	// ErrReleased is returned by Execute on a released convolution.
	ErrReleased = errors.New("qconv: convolution released")
	// ErrScratchAlloc is wrapped by the FatalError returned when the scratch
	// arena cannot be allocated.
	ErrScratchAlloc = errors.New("qconv: scratch allocation failed")
)

// FatalError is an unrecoverable setup failure. A model whose convolution
// cannot get scratch memory cannot run.
type FatalError struct {
	Size uint64
	Err  error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("qconv: fatal: %v (%d bytes)", e.Err, e.Size)
}

func (e *FatalError) Unwrap() error { return e.Err }

// IsFatal reports whether err contains a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// Status codes returned by Status.
const (
	StatusOK            = 0
	StatusGroupMismatch = -1
	StatusUnsupported   = -2
	StatusShape         = -3
	StatusParams        = -4
	StatusInvariant     = -5
	StatusReleased      = -6
	StatusFatal         = -100
)

// Status maps an error returned by this package to the integer status used by
// graph executors: zero on success, negative on failure.
func Status(err error) int {
	switch {
	case err == nil:
		return StatusOK
	case IsFatal(err):
		return StatusFatal
	case errors.Is(err, ErrGroupMismatch):
		return StatusGroupMismatch
	case errors.Is(err, ErrUnsupported):
		return StatusUnsupported
	case errors.Is(err, ErrShape):
		return StatusShape
	case errors.Is(err, ErrParams):
		return StatusParams
	case errors.Is(err, ErrReleased):
		return StatusReleased
	default:
		return StatusInvariant
	}
}
