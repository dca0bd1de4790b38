package meter

import (
	"context"
	"time"

	"github.com/shaban/dsphost/ring"
)

// DefaultDrainInterval is the cadence at which coalesced frames are
// forwarded. Frames arrive once per processing block (a few milliseconds);
// consumers only care about the latest level.
const DefaultDrainInterval = 33 * time.Millisecond

// Broadcaster receives the surviving frame of each drain tick. Implemented
// by the websocket hub; anything transport-level behind it is not this
// package's concern.
type Broadcaster interface {
	BroadcastMeter(Frame)
}

// Drain periodically empties a frame ring, keeps only the most recent frame,
// and forwards it. A tick that finds the ring empty forwards nothing — stale
// frames are never re-broadcast.
type Drain struct {
	frames   *ring.Ring[Frame]
	sink     Broadcaster
	interval time.Duration
}

// NewDrain creates a drain for the given ring and sink. interval <= 0 uses
// DefaultDrainInterval.
func NewDrain(frames *ring.Ring[Frame], sink Broadcaster, interval time.Duration) *Drain {
	if interval <= 0 {
		interval = DefaultDrainInterval
	}
	return &Drain{frames: frames, sink: sink, interval: interval}
}

// Run drains on a fixed ticker until ctx is cancelled. It is the ring's only
// consumer.
func (d *Drain) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Tick()
		}
	}
}

// Tick performs one drain pass: empty the ring, forward only the newest
// frame if at least one arrived since the previous pass.
func (d *Drain) Tick() {
	var last Frame
	got := false
	for {
		f, ok := d.frames.TryPop()
		if !ok {
			break
		}
		last = f
		got = true
	}
	if got {
		d.sink.BroadcastMeter(last)
	}
}
