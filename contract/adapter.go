//go:build cgo && (darwin || linux)

package contract

import (
	"runtime"
	"unsafe"
)

/*
#include "abi.h"
*/
import "C"

// Adapter owns one processor instance produced by the module's create()
// together with the contract record and the library it came from. Its
// methods are single indirect calls with no allocation and no locking, so
// they are safe on the audio thread once constructed.
//
// Close invokes the module's own drop() strictly before the library handle
// is released; the reversed order would leave function pointers into
// unmapped memory.
type Adapter struct {
	rec    *C.dsph_contract
	inst   unsafe.Pointer
	lib    *library
	closed bool
}

// Path returns the shared library path this adapter was loaded from.
func (a *Adapter) Path() string {
	return a.lib.path
}

// Process runs one block through the module. in and out hold one buffer per
// channel; frames samples of each are processed. Channel counts beyond
// MaxChannels are truncated. Per-channel pointers cross the boundary in
// fixed-size stack arrays.
//
// The adapter does not guard against panics or faults in module code; the
// engine's boundary wrapper owns that.
func (a *Adapter) Process(in, out [][]float32, frames int) {
	if a.closed || frames == 0 {
		return
	}
	channels := len(out)
	if len(in) < channels {
		channels = len(in)
	}
	if channels > MaxChannels {
		channels = MaxChannels
	}
	if channels == 0 {
		return
	}

	// The pointer arrays themselves contain Go pointers, so the buffers they
	// reference must be pinned for the duration of the call to satisfy the
	// cgo pointer-passing rules.
	var pinner runtime.Pinner
	defer pinner.Unpin()

	var inPtrs, outPtrs [MaxChannels]*C.float
	for ch := 0; ch < channels; ch++ {
		pinner.Pin(&in[ch][0])
		pinner.Pin(&out[ch][0])
		inPtrs[ch] = (*C.float)(unsafe.Pointer(&in[ch][0]))
		outPtrs[ch] = (*C.float)(unsafe.Pointer(&out[ch][0]))
	}

	C.dsph_call_process(a.rec, a.inst,
		(**C.float)(unsafe.Pointer(&inPtrs[0])),
		(**C.float)(unsafe.Pointer(&outPtrs[0])),
		C.uint32_t(channels), C.uint32_t(frames))
}

// SetSampleRate informs the module of the stream sample rate.
func (a *Adapter) SetSampleRate(rate float32) {
	if a.closed {
		return
	}
	C.dsph_call_set_sample_rate(a.rec, a.inst, C.float(rate))
}

// Reset clears the module's processing state (delay lines, envelopes).
func (a *Adapter) Reset() {
	if a.closed {
		return
	}
	C.dsph_call_reset(a.rec, a.inst)
}

// Close destroys the instance through the module's drop() and then unmaps
// the library, in that order. Safe to call more than once.
func (a *Adapter) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	C.dsph_call_drop(a.rec, a.inst)
	a.inst = nil
	a.rec = nil
	return a.lib.close()
}
