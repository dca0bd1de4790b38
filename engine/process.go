package engine

import "github.com/shaban/dsphost/meter"

// This file is the real-time path. Nothing here may allocate, lock, log, or
// touch the filesystem; the callbacks communicate with the rest of the
// process only through the SPSC rings and atomic counters.

// inputCallback runs on the capture stream's audio thread once per block:
// deinterleave, process through the module, meter, and hand the result to
// the output side through the audio ring.
func (e *Engine) inputCallback(in []float32) {
	frames := len(in) / e.cfg.Channels
	if frames > e.cfg.BlockSize {
		frames = e.cfg.BlockSize
	}
	if frames == 0 {
		return
	}

	deinterleave(in, e.inBufs, e.cfg.Channels, frames)
	e.zeroOut(frames)

	src := e.outBufs
	if !e.safeProcess(e.inBufs, e.outBufs, frames) {
		// Module code panicked: this block is passed through as received.
		src = e.inBufs
	}

	// Metering is drop-on-full: a stalled drain must never stall audio.
	e.frames.TryPush(meter.Measure(src, frames))

	n := frames * e.cfg.Channels
	interleave(src, e.interleaved[:n], e.cfg.Channels, frames)
	if !e.audio.Write(e.interleaved[:n]) {
		e.overflows.Add(1)
	}
}

// outputCallback runs on the playback stream's audio thread: drain the audio
// ring, or emit silence on underflow. Stale or garbage data is never played.
func (e *Engine) outputCallback(out []float32) {
	if !e.duplex {
		e.generateBlock(out)
		return
	}

	n := e.audio.Read(out)
	if n == len(out) {
		return
	}
	if n == 0 {
		e.underflows.Add(1)
	}
	for i := n; i < len(out); i++ {
		out[i] = 0
	}
}

// generateBlock is the metering-only path used when no input device exists:
// the module processes silence so generators keep producing and the meters
// keep moving.
func (e *Engine) generateBlock(out []float32) {
	frames := len(out) / e.cfg.Channels
	if frames > e.cfg.BlockSize {
		frames = e.cfg.BlockSize
	}
	if frames == 0 {
		return
	}

	for ch := 0; ch < e.cfg.Channels; ch++ {
		buf := e.inBufs[ch][:frames]
		for i := range buf {
			buf[i] = 0
		}
	}
	e.zeroOut(frames)

	src := e.outBufs
	if !e.safeProcess(e.inBufs, e.outBufs, frames) {
		src = e.inBufs
	}

	e.frames.TryPush(meter.Measure(src, frames))
	interleave(src, out[:frames*e.cfg.Channels], e.cfg.Channels, frames)
	for i := frames * e.cfg.Channels; i < len(out); i++ {
		out[i] = 0
	}
}

// safeProcess is the boundary into user-supplied module code. A panic in
// there must never unwind across the audio callback frame; it is converted
// into "this block was not processed".
func (e *Engine) safeProcess(in, out [][]float32, frames int) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.panics.Add(1)
			ok = false
		}
	}()
	e.proc.Process(in, out, frames)
	return true
}

func (e *Engine) zeroOut(frames int) {
	for ch := 0; ch < e.cfg.Channels; ch++ {
		buf := e.outBufs[ch][:frames]
		for i := range buf {
			buf[i] = 0
		}
	}
}

func deinterleave(src []float32, dst [][]float32, channels, frames int) {
	for ch := 0; ch < channels; ch++ {
		buf := dst[ch]
		for i := 0; i < frames; i++ {
			buf[i] = src[i*channels+ch]
		}
	}
}

func interleave(src [][]float32, dst []float32, channels, frames int) {
	for ch := 0; ch < channels; ch++ {
		buf := src[ch]
		for i := 0; i < frames; i++ {
			dst[i*channels+ch] = buf[i]
		}
	}
}
