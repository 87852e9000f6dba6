package envconfig

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoSimd(t *testing.T) {
	cases := map[string]bool{
		"":      false,
		"0":     false,
		"false": false,
		"1":     true,
		"true":  true,
		"yes":   true,
	}
	for v, want := range cases {
		t.Run(v, func(t *testing.T) {
			t.Setenv("HWY_NO_SIMD", v)
			assert.Equal(t, want, NoSimd())
		})
	}
}

func TestMaxScratch(t *testing.T) {
	t.Setenv("QNN_MAX_SCRATCH", "")
	assert.Equal(t, uint64(0), MaxScratch())

	t.Setenv("QNN_MAX_SCRATCH", "4096")
	assert.Equal(t, uint64(4096), MaxScratch())

	t.Setenv("QNN_MAX_SCRATCH", "'8192'")
	assert.Equal(t, uint64(8192), MaxScratch())

	t.Setenv("QNN_MAX_SCRATCH", "lots")
	assert.Equal(t, uint64(0), MaxScratch())
}

func TestLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":      slog.LevelInfo,
		"false": slog.LevelInfo,
		"1":     slog.LevelDebug,
		"true":  slog.LevelDebug,
		"2":     slog.Level(-8),
		"-1":    slog.LevelWarn,
	}
	for v, want := range cases {
		t.Run(v, func(t *testing.T) {
			t.Setenv("QNN_DEBUG", v)
			assert.Equal(t, want, LogLevel())
		})
	}
}
