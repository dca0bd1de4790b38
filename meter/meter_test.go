package meter

import (
	"math"
	"testing"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestMeasureSilence(t *testing.T) {
	chans := [][]float32{make([]float32, 64), make([]float32, 64)}
	f := Measure(chans, 64)
	if f.Channels != 2 {
		t.Fatalf("channels = %d, want 2", f.Channels)
	}
	for ch := 0; ch < 2; ch++ {
		if f.Peak[ch] != 0 || f.RMS[ch] != 0 {
			t.Errorf("channel %d: peak=%f rms=%f, want silence", ch, f.Peak[ch], f.RMS[ch])
		}
	}
}

func TestMeasureFullScaleSquare(t *testing.T) {
	buf := make([]float32, 128)
	for i := range buf {
		if i%2 == 0 {
			buf[i] = 1
		} else {
			buf[i] = -1
		}
	}
	f := Measure([][]float32{buf}, len(buf))
	if f.Peak[0] != 1 {
		t.Errorf("peak = %f, want 1", f.Peak[0])
	}
	// A full-scale square has RMS 1.
	if !almostEqual(float64(f.RMS[0]), 1, 1e-6) {
		t.Errorf("rms = %f, want 1", f.RMS[0])
	}
}

func TestMeasureSine(t *testing.T) {
	buf := make([]float32, 4800)
	for i := range buf {
		buf[i] = float32(0.5 * math.Sin(2*math.Pi*float64(i)/100))
	}
	f := Measure([][]float32{buf}, len(buf))
	if !almostEqual(float64(f.Peak[0]), 0.5, 1e-3) {
		t.Errorf("peak = %f, want 0.5", f.Peak[0])
	}
	// Sine RMS is amplitude / sqrt(2).
	if !almostEqual(float64(f.RMS[0]), 0.5/math.Sqrt2, 1e-3) {
		t.Errorf("rms = %f, want %f", f.RMS[0], 0.5/math.Sqrt2)
	}
}

func TestMeasureRespectsFrameCount(t *testing.T) {
	buf := make([]float32, 64)
	buf[32] = 1 // beyond the measured range
	f := Measure([][]float32{buf}, 16)
	if f.Peak[0] != 0 {
		t.Errorf("peak = %f, samples beyond frame count leaked in", f.Peak[0])
	}
}

func TestMeasureCapsChannels(t *testing.T) {
	chans := make([][]float32, MaxChannels+4)
	for i := range chans {
		chans[i] = make([]float32, 8)
	}
	f := Measure(chans, 8)
	if f.Channels != MaxChannels {
		t.Errorf("channels = %d, want %d", f.Channels, MaxChannels)
	}
}
