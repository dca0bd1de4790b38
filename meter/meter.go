// Package meter produces per-block level measurements on the audio thread
// and coalesces them down to UI cadence on the control side.
package meter

import (
	"math"
	"time"
)

// MaxChannels bounds the per-channel arrays in Frame so a frame is a plain
// fixed-size value that moves through the transfer ring without allocation.
const MaxChannels = 8

// Frame is one metering measurement for a processed block.
type Frame struct {
	Channels  int                  `json:"channels"`
	Peak      [MaxChannels]float32 `json:"peak"`
	RMS       [MaxChannels]float32 `json:"rms"`
	Timestamp int64                `json:"timestamp"` // unix nanoseconds
}

// Measure computes peak and RMS for each channel buffer. Safe on the audio
// thread: no allocation, no locks. Channels beyond MaxChannels are ignored.
func Measure(chans [][]float32, frames int) Frame {
	f := Frame{Timestamp: time.Now().UnixNano()}
	n := len(chans)
	if n > MaxChannels {
		n = MaxChannels
	}
	f.Channels = n
	for ch := 0; ch < n; ch++ {
		buf := chans[ch]
		if frames < len(buf) {
			buf = buf[:frames]
		}
		var peak float32
		var sum float64
		for _, s := range buf {
			if s < 0 {
				s = -s
			}
			if s > peak {
				peak = s
			}
			sum += float64(s) * float64(s)
		}
		f.Peak[ch] = peak
		if len(buf) > 0 {
			f.RMS[ch] = float32(math.Sqrt(sum / float64(len(buf))))
		}
	}
	return f
}
