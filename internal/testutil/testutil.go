// Package testutil holds helpers shared by the package tests: environment
// gates and deterministic test signals.
package testutil

import (
	"math"
	"os"
	"testing"
)

// SkipUnlessEnv skips the test unless the given env var equals the wanted
// value. Used to gate tests that need real audio or MIDI hardware.
func SkipUnlessEnv(t *testing.T, key, want string) {
	t.Helper()
	if os.Getenv(key) != want {
		t.Skipf("skipped: set %s=%s to run", key, want)
	}
}

// IsCI reports whether running under common CI environments.
func IsCI() bool {
	return os.Getenv("CI") == "true" || os.Getenv("GITHUB_ACTIONS") == "true"
}

// Sine returns one channel of a sine wave with the given period in samples.
func Sine(amplitude float32, period, frames int) []float32 {
	block := make([]float32, frames)
	for i := range block {
		block[i] = amplitude * float32(math.Sin(2*math.Pi*float64(i)/float64(period)))
	}
	return block
}

// Const returns one channel holding a constant value.
func Const(value float32, frames int) []float32 {
	block := make([]float32, frames)
	for i := range block {
		block[i] = value
	}
	return block
}
