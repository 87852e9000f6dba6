// Package envconfig reads the environment variables that tune go-qnn.
//
//   - HWY_NO_SIMD: force the scalar dispatch level
//   - QNN_DEBUG: log level (bool or a numeric verbosity)
//   - QNN_MAX_SCRATCH: upper bound in bytes for a single convolution scratch arena
package envconfig

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Var returns an environment variable stripped of surrounding quotes and spaces.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

// Bool returns a getter that parses key as a boolean. Any non-empty value that
// does not parse counts as true.
func Bool(key string) func() bool {
	return func() bool {
		if s := Var(key); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return false
	}
}

// Uint64 returns a getter that parses key as an unsigned integer.
func Uint64(key string, defaultValue uint64) func() uint64 {
	return func() uint64 {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return n
			}
		}
		return defaultValue
	}
}

var (
	// NoSimd disables every vector dispatch level.
	NoSimd = Bool("HWY_NO_SIMD")
	// MaxScratch caps the scratch arena of a configured convolution. Zero means no cap.
	MaxScratch = Uint64("QNN_MAX_SCRATCH", 0)
)

// LogLevel reads QNN_DEBUG. "1"/"true" selects Debug, other integers scale the
// level the way slog does (each step is 4).
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("QNN_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}
	return level
}

// EnvVar describes one recognized variable.
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap returns the current value of every recognized variable.
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"HWY_NO_SIMD":     {"HWY_NO_SIMD", NoSimd(), "Force scalar kernels"},
		"QNN_DEBUG":       {"QNN_DEBUG", LogLevel(), "Show additional debug information (e.g. QNN_DEBUG=1)"},
		"QNN_MAX_SCRATCH": {"QNN_MAX_SCRATCH", MaxScratch(), "Maximum scratch bytes per convolution (0 = unlimited)"},
	}
}
