package ring

import "sync/atomic"

// Audio is an SPSC queue of interleaved float32 blocks. All block storage is
// allocated once at construction; Write and Read copy sample data in and out
// so neither side ever shares a slice with the other.
//
// The queue is sized so a healthy stream never fills it; when it does fill
// (output callback stalled), Write rejects the block and the producer moves
// on. Read on an empty queue returns 0 and the caller substitutes silence.
type Audio struct {
	slots [][]float32
	lens  []int32
	mask  uint64

	head atomic.Uint64
	tail atomic.Uint64
}

// NewAudio creates an audio queue holding up to capacity blocks of at most
// blockSize interleaved samples each.
func NewAudio(capacity, blockSize int) *Audio {
	if capacity < 2 {
		capacity = 2
	}
	n := 1
	for n < capacity {
		n <<= 1
	}
	a := &Audio{
		slots: make([][]float32, n),
		lens:  make([]int32, n),
		mask:  uint64(n - 1),
	}
	for i := range a.slots {
		a.slots[i] = make([]float32, blockSize)
	}
	return a
}

// Write copies src into the next free slot and reports whether the block was
// accepted. src longer than the configured block size is truncated. Never
// blocks, never allocates.
func (a *Audio) Write(src []float32) bool {
	tail := a.tail.Load()
	if tail-a.head.Load() > a.mask {
		return false
	}
	slot := a.slots[tail&a.mask]
	n := copy(slot, src)
	a.lens[tail&a.mask] = int32(n)
	a.tail.Store(tail + 1)
	return true
}

// Read copies the oldest block into dst and returns the number of samples
// copied, 0 when the queue is empty.
func (a *Audio) Read(dst []float32) int {
	head := a.head.Load()
	if head == a.tail.Load() {
		return 0
	}
	n := int(a.lens[head&a.mask])
	if n > len(dst) {
		n = len(dst)
	}
	copy(dst[:n], a.slots[head&a.mask][:n])
	a.head.Store(head + 1)
	return n
}

// Len returns the number of buffered blocks.
func (a *Audio) Len() int {
	return int(a.tail.Load() - a.head.Load())
}
