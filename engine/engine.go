// Package engine owns the operating system's audio streams and runs the
// steady-state real-time loop: capture, process through the loaded module,
// meter, and play back.
//
// Three execution contexts touch the engine. The audio callbacks run under
// hard real-time constraints and never allocate, lock, or block; everything
// they share with the rest of the process moves through the SPSC rings and
// atomic counters. The control context (Start/Stop, parameter writes) may
// block freely. The metering drain runs on its own periodic schedule and is
// the frame ring's only consumer.
package engine

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
	"go.uber.org/zap"

	"github.com/shaban/dsphost/devices"
	"github.com/shaban/dsphost/meter"
	"github.com/shaban/dsphost/ring"
)

// ErrNoOutputDevice is terminal for the engine until explicit device
// selection exists: no output device means nothing to play through.
var ErrNoOutputDevice = errors.New("no audio output device available; connect an output device or select one in the config")

// Processor is one loaded DSP module as the engine sees it. The contract
// adapter implements it; tests substitute pure Go processors.
//
// Process receives one buffer per channel and must not allocate or block.
// The engine guards every call so a panic inside module code surfaces as an
// unprocessed (passed-through) block, never as an unwind across the
// callback.
type Processor interface {
	Process(in, out [][]float32, frames int)
	SetSampleRate(rate float32)
	Reset()
}

// Config holds the stream configuration. Validation mirrors the bounds the
// audio backends actually accept.
type Config struct {
	SampleRate  float64
	BlockSize   int // frames per processing block
	Channels    int
	InputName   string // empty = system default; missing input degrades to metering-only
	OutputName  string // empty = system default; missing output is fatal
	AudioBlocks int    // audio transfer ring capacity, in blocks
	MeterFrames int    // meter transfer ring capacity, in frames
}

// Validate applies defaults and rejects configurations no backend accepts.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		c.SampleRate = 48000
	} else if c.SampleRate < 8000 {
		return fmt.Errorf("SampleRate must be at least 8000 Hz, got %.0f", c.SampleRate)
	} else if c.SampleRate > 384000 {
		return fmt.Errorf("SampleRate cannot exceed 384000 Hz, got %.0f", c.SampleRate)
	}

	if c.BlockSize <= 0 {
		c.BlockSize = 512
	} else if c.BlockSize < 64 {
		return fmt.Errorf("BlockSize must be at least 64 frames, got %d", c.BlockSize)
	} else if c.BlockSize > 4096 {
		return fmt.Errorf("BlockSize cannot exceed 4096 frames, got %d", c.BlockSize)
	}

	if c.Channels <= 0 {
		c.Channels = 2
	} else if c.Channels > meter.MaxChannels {
		return fmt.Errorf("Channels cannot exceed %d, got %d", meter.MaxChannels, c.Channels)
	}

	if c.AudioBlocks <= 0 {
		c.AudioBlocks = 8
	}
	if c.MeterFrames <= 0 {
		c.MeterFrames = 64
	}
	return nil
}

// Engine drives full-duplex audio through a Processor. All transfer storage
// is allocated at construction; nothing is reallocated while streams run.
type Engine struct {
	cfg    Config
	proc   Processor
	logger *zap.Logger

	sm stateMachine

	// transfer channels, allocated once before any stream opens
	audio  *ring.Audio
	frames *ring.Ring[meter.Frame]

	// audio-thread scratch, preallocated
	inBufs      [][]float32
	outBufs     [][]float32
	interleaved []float32

	mu        sync.Mutex
	inStream  *portaudio.Stream
	outStream *portaudio.Stream
	duplex    bool // input device present

	panics     atomic.Uint64
	underflows atomic.Uint64
	overflows  atomic.Uint64
}

// New creates an engine for the given processor. The config is validated and
// all transfer and scratch storage allocated here; Start only opens streams.
func New(cfg Config, proc Processor, logger *zap.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if proc == nil {
		return nil, errors.New("engine requires a processor")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		cfg:         cfg,
		proc:        proc,
		logger:      logger,
		audio:       ring.NewAudio(cfg.AudioBlocks, cfg.BlockSize*cfg.Channels),
		frames:      ring.New[meter.Frame](cfg.MeterFrames),
		interleaved: make([]float32, cfg.BlockSize*cfg.Channels),
	}
	e.inBufs = make([][]float32, cfg.Channels)
	e.outBufs = make([][]float32, cfg.Channels)
	for ch := 0; ch < cfg.Channels; ch++ {
		e.inBufs[ch] = make([]float32, cfg.BlockSize)
		e.outBufs[ch] = make([]float32, cfg.BlockSize)
	}
	return e, nil
}

// Frames exposes the meter transfer ring for the drain task, its single
// consumer.
func (e *Engine) Frames() *ring.Ring[meter.Frame] {
	return e.frames
}

// State returns the current state and, for Failed, its reason.
func (e *Engine) State() (State, error) {
	return e.sm.current()
}

// Subscribe registers a callback fired on every state transition.
func (e *Engine) Subscribe(fn func(StateChange)) {
	e.sm.subscribe(fn)
}

// PanicCount reports how many processing blocks were passed through because
// module code panicked.
func (e *Engine) PanicCount() uint64 {
	return e.panics.Load()
}

// UnderflowCount reports how many output blocks were filled with silence
// because the audio ring was empty.
func (e *Engine) UnderflowCount() uint64 {
	return e.underflows.Load()
}

// OverflowCount reports how many processed blocks the input side dropped
// because the audio ring was full.
func (e *Engine) OverflowCount() uint64 {
	return e.overflows.Load()
}

// resolveDevices picks the input and output devices from an enumeration.
// A missing output is fatal; a missing input degrades to metering-only.
func (e *Engine) resolveDevices(all devices.AudioDevices) (in, out *devices.AudioDevice, err error) {
	if e.cfg.OutputName != "" {
		out = all.Outputs().ByName(e.cfg.OutputName)
	} else {
		out = all.Outputs().DefaultOutput()
		if out == nil && len(all.Outputs()) > 0 {
			out = &all.Outputs()[0]
		}
	}
	if out == nil {
		return nil, nil, ErrNoOutputDevice
	}

	if e.cfg.InputName != "" {
		in = all.Inputs().ByName(e.cfg.InputName)
	} else {
		in = all.Inputs().DefaultInput()
		if in == nil && len(all.Inputs()) > 0 {
			in = &all.Inputs()[0]
		}
	}
	return in, out, nil
}

// Start opens the audio streams and transitions to Running. PortAudio must
// already be initialized by the caller.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if state, _ := e.sm.current(); state == Running {
		return fmt.Errorf("engine is already running")
	}

	all, err := devices.GetAudio()
	if err != nil {
		e.sm.transition(Failed, err)
		return err
	}

	inDev, outDev, err := e.resolveDevices(all)
	if err != nil {
		// No streams are opened on this path.
		e.sm.transition(Failed, err)
		return err
	}

	e.proc.SetSampleRate(float32(e.cfg.SampleRate))
	e.proc.Reset()

	e.duplex = inDev != nil
	if e.duplex {
		inParams := portaudio.LowLatencyParameters(inDev.Info(), nil)
		inParams.Input.Channels = e.cfg.Channels
		inParams.SampleRate = e.cfg.SampleRate
		inParams.FramesPerBuffer = e.cfg.BlockSize
		e.inStream, err = portaudio.OpenStream(inParams, e.inputCallback)
		if err != nil {
			e.sm.transition(Failed, err)
			return fmt.Errorf("failed to open input stream: %w", err)
		}
	} else {
		e.logger.Warn("no input device available, running metering-only",
			zap.String("output", outDev.Name))
	}

	outParams := portaudio.LowLatencyParameters(nil, outDev.Info())
	outParams.Output.Channels = e.cfg.Channels
	outParams.SampleRate = e.cfg.SampleRate
	outParams.FramesPerBuffer = e.cfg.BlockSize
	e.outStream, err = portaudio.OpenStream(outParams, e.outputCallback)
	if err != nil {
		e.closeStreamsLocked()
		e.sm.transition(Failed, err)
		return fmt.Errorf("failed to open output stream: %w", err)
	}

	if e.inStream != nil {
		if err := e.inStream.Start(); err != nil {
			e.closeStreamsLocked()
			e.sm.transition(Failed, err)
			return fmt.Errorf("failed to start input stream: %w", err)
		}
	}
	if err := e.outStream.Start(); err != nil {
		e.closeStreamsLocked()
		e.sm.transition(Failed, err)
		return fmt.Errorf("failed to start output stream: %w", err)
	}

	e.logger.Info("engine running",
		zap.Float64("sampleRate", e.cfg.SampleRate),
		zap.Int("blockSize", e.cfg.BlockSize),
		zap.Int("channels", e.cfg.Channels),
		zap.Bool("duplex", e.duplex),
		zap.String("output", outDev.Name))
	e.sm.transition(Running, nil)
	return nil
}

// Stop halts and closes the streams and transitions to Stopped. The streams
// are fully stopped before this returns, so the caller may safely tear down
// the processor afterwards.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if state, _ := e.sm.current(); state != Running {
		return nil
	}
	e.closeStreamsLocked()
	e.sm.transition(Stopped, nil)
	e.logger.Info("engine stopped",
		zap.Uint64("panics", e.panics.Load()),
		zap.Uint64("underflows", e.underflows.Load()),
		zap.Uint64("overflows", e.overflows.Load()))
	return nil
}

func (e *Engine) closeStreamsLocked() {
	if e.inStream != nil {
		e.inStream.Stop()
		e.inStream.Close()
		e.inStream = nil
	}
	if e.outStream != nil {
		e.outStream.Stop()
		e.outStream.Close()
		e.outStream = nil
	}
}
