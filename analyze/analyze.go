// Package analyze provides offline signal analysis over captured audio
// blocks: per-channel statistics, silence and clipping detection, and gain
// comparison between two captures. It runs outside the real-time path and
// is free to allocate.
package analyze

import (
	"math"

	timestats "github.com/cwbudde/algo-dsp/stats/time"
)

// Config tunes the detection thresholds.
type Config struct {
	SilenceFloor float64 // RMS at or below this counts as silence
	ClipCeiling  float64 // |sample| above this counts as clipping
}

// DefaultConfig returns thresholds suited to full-scale float audio.
func DefaultConfig() Config {
	return Config{
		SilenceFloor: 0.001, // -60dB
		ClipCeiling:  1.0,
	}
}

// BlockAnalysis is the result of analyzing a capture.
type BlockAnalysis struct {
	Channels   int
	Frames     int
	PerChannel []timestats.Stats
	Silent     bool // every channel at or below the silence floor
	Clipped    bool // any sample above the clip ceiling
}

// Capture accumulates deinterleaved audio for later analysis. Samples are
// widened to float64 on append so the statistics run at full precision.
type Capture struct {
	channels [][]float64
}

// NewCapture creates a capture for the given channel count.
func NewCapture(channels int) *Capture {
	if channels < 1 {
		channels = 1
	}
	c := &Capture{channels: make([][]float64, channels)}
	return c
}

// Append adds frames from per-channel buffers. Channels beyond the capture's
// width are ignored.
func (c *Capture) Append(chans [][]float32, frames int) {
	n := len(chans)
	if n > len(c.channels) {
		n = len(c.channels)
	}
	for ch := 0; ch < n; ch++ {
		src := chans[ch]
		limit := frames
		if limit > len(src) {
			limit = len(src)
		}
		for i := 0; i < limit; i++ {
			c.channels[ch] = append(c.channels[ch], float64(src[i]))
		}
	}
}

// AppendInterleaved adds an interleaved block laid out as the audio ring
// carries it.
func (c *Capture) AppendInterleaved(src []float32, channels int) {
	if channels < 1 {
		return
	}
	frames := len(src) / channels
	n := channels
	if n > len(c.channels) {
		n = len(c.channels)
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < n; ch++ {
			c.channels[ch] = append(c.channels[ch], float64(src[i*channels+ch]))
		}
	}
}

// Frames returns the number of frames captured so far.
func (c *Capture) Frames() int {
	if len(c.channels) == 0 {
		return 0
	}
	return len(c.channels[0])
}

// Reset discards all captured samples but keeps the channel layout.
func (c *Capture) Reset() {
	for ch := range c.channels {
		c.channels[ch] = c.channels[ch][:0]
	}
}

// Analyze computes per-channel statistics and the detection flags.
func (c *Capture) Analyze(cfg Config) *BlockAnalysis {
	res := &BlockAnalysis{
		Channels:   len(c.channels),
		Frames:     c.Frames(),
		PerChannel: make([]timestats.Stats, len(c.channels)),
		Silent:     true,
	}
	for ch, samples := range c.channels {
		stats := timestats.Calculate(samples)
		res.PerChannel[ch] = stats
		if stats.RMS > cfg.SilenceFloor {
			res.Silent = false
		}
		if stats.Peak > cfg.ClipCeiling {
			res.Clipped = true
		}
	}
	return res
}

// RMS returns the combined RMS across all channels.
func (c *Capture) RMS() float64 {
	var energy float64
	var count int
	for _, samples := range c.channels {
		for _, s := range samples {
			energy += s * s
		}
		count += len(samples)
	}
	if count == 0 {
		return 0
	}
	return math.Sqrt(energy / float64(count))
}

// GainChange returns the level difference from in to out in decibels.
// Positive means out is louder. Returns -Inf when out is silent and +Inf
// when a signal appears from a silent input.
func GainChange(in, out *Capture) float64 {
	inRMS, outRMS := in.RMS(), out.RMS()
	switch {
	case inRMS == 0 && outRMS == 0:
		return 0
	case outRMS == 0:
		return math.Inf(-1)
	case inRMS == 0:
		return math.Inf(1)
	}
	return 20 * math.Log10(outRMS/inRMS)
}

// Monitor tracks statistics over an unbounded stream without retaining
// samples, one streaming accumulator per channel.
type Monitor struct {
	streams []*timestats.StreamingStats
	scratch []float64
}

// NewMonitor creates a monitor for the given channel count.
func NewMonitor(channels int) *Monitor {
	if channels < 1 {
		channels = 1
	}
	m := &Monitor{streams: make([]*timestats.StreamingStats, channels)}
	for ch := range m.streams {
		m.streams[ch] = timestats.NewStreamingStats()
	}
	return m
}

// Update feeds frames from per-channel buffers into the accumulators.
func (m *Monitor) Update(chans [][]float32, frames int) {
	n := len(chans)
	if n > len(m.streams) {
		n = len(m.streams)
	}
	for ch := 0; ch < n; ch++ {
		src := chans[ch]
		limit := frames
		if limit > len(src) {
			limit = len(src)
		}
		if cap(m.scratch) < limit {
			m.scratch = make([]float64, limit)
		}
		buf := m.scratch[:limit]
		for i := 0; i < limit; i++ {
			buf[i] = float64(src[i])
		}
		m.streams[ch].Update(buf)
	}
}

// Result returns the current statistics for one channel.
func (m *Monitor) Result(channel int) timestats.Stats {
	if channel < 0 || channel >= len(m.streams) {
		return timestats.Stats{}
	}
	return m.streams[channel].Result()
}

// Reset clears all accumulators.
func (m *Monitor) Reset() {
	for _, s := range m.streams {
		s.Reset()
	}
}
