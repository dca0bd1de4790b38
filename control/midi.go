package control

import (
	"context"
	"time"

	"github.com/rakyll/portmidi"
	"go.uber.org/zap"
)

// pollInterval bounds the latency of the MIDI pump. Control changes are
// human-rate, so a few milliseconds is plenty.
const pollInterval = 5 * time.Millisecond

// readBatch is the most events drained per poll.
const readBatch = 64

// MIDIDevice describes one endpoint visible to the host.
type MIDIDevice struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Input  bool   `json:"input"`
	Output bool   `json:"output"`
}

// MIDIDevices enumerates all endpoints. portmidi.Initialize must have been
// called.
func MIDIDevices() []MIDIDevice {
	count := portmidi.CountDevices()
	devices := make([]MIDIDevice, 0, count)
	for i := 0; i < count; i++ {
		info := portmidi.Info(portmidi.DeviceID(i))
		if info == nil {
			continue
		}
		devices = append(devices, MIDIDevice{
			ID:     i,
			Name:   info.Name,
			Input:  info.IsInputAvailable,
			Output: info.IsOutputAvailable,
		})
	}
	return devices
}

// Pump polls a MIDI input stream and feeds every event through the surface.
type Pump struct {
	surface *Surface
	stream  *portmidi.Stream
	logger  *zap.Logger
}

// OpenPump opens the named input device, or the default input when id is
// negative.
func OpenPump(surface *Surface, id int, logger *zap.Logger) (*Pump, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	deviceID := portmidi.DeviceID(id)
	if id < 0 {
		deviceID = portmidi.DefaultInputDeviceID()
	}
	stream, err := portmidi.NewInputStream(deviceID, readBatch)
	if err != nil {
		return nil, err
	}
	return &Pump{surface: surface, stream: stream, logger: logger}, nil
}

// Run polls until ctx is cancelled, then closes the stream.
func (p *Pump) Run(ctx context.Context) {
	defer p.stream.Close()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			events, err := p.stream.Read(readBatch)
			if err != nil {
				p.logger.Warn("midi read failed", zap.Error(err))
				continue
			}
			for _, ev := range events {
				if id, value, ok := p.surface.Apply(ev.Status, ev.Data1, ev.Data2); ok {
					p.logger.Debug("midi control change applied",
						zap.String("param", id), zap.Float32("value", value))
				}
			}
		}
	}
}
