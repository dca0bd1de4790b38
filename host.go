// Package dsphost loads user-compiled DSP modules and runs them against the
// system's audio devices: discovery with cached metadata, a versioned
// loading contract, lock-free parameter and metering transport, and a
// status socket for observers.
package dsphost

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shaban/dsphost/broadcast"
	"github.com/shaban/dsphost/contract"
	"github.com/shaban/dsphost/discovery"
	"github.com/shaban/dsphost/engine"
	"github.com/shaban/dsphost/meter"
	"github.com/shaban/dsphost/param"
	"github.com/shaban/dsphost/ring"
)

// moduleAdapter is what a loaded module looks like to the host. The
// concrete implementation is contract.Adapter.
type moduleAdapter interface {
	engine.Processor
	Path() string
	Close() error
}

// audioEngine is what a running engine looks like to the host. The concrete
// implementation is engine.Engine.
type audioEngine interface {
	Start() error
	Stop() error
	State() (engine.State, error)
	Subscribe(fn func(engine.StateChange))
	Frames() *ring.Ring[meter.Frame]
	PanicCount() uint64
	UnderflowCount() uint64
	OverflowCount() uint64
}

// Host ties the pieces together: discovery feeds the bridge and the loader,
// the loaded module becomes the engine's processor, and the metering drain
// terminates at the status hub. All mutating methods are serialized through
// the Dispatcher; direct calls are safe but may interleave.
type Host struct {
	ID     uuid.UUID
	cfg    *Config
	logger *zap.Logger
	errs   ErrorHandler

	hub *broadcast.Hub

	mu       sync.RWMutex
	bridge   *param.Bridge
	adapter  moduleAdapter
	eng      audioEngine
	listing  *discovery.Result
	watcher  *discovery.Watcher
	running  bool
	drainCtx context.CancelFunc

	// seams for tests; production wiring in NewHost
	discover  func(ctx context.Context) (*discovery.Result, error)
	loadLib   func(path string) (moduleAdapter, error)
	newEngine func(cfg engine.Config, proc engine.Processor) (audioEngine, error)
}

// NewHost creates a host from a validated config. No module is loaded and
// no audio runs until the corresponding operations are dispatched.
func NewHost(cfg *Config, logger *zap.Logger) (*Host, error) {
	if cfg == nil {
		return nil, fmt.Errorf("host requires a config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	hostBinary, err := os.Executable()
	if err != nil {
		hostBinary = ""
	}

	h := &Host{
		ID:     uuid.New(),
		cfg:    cfg,
		logger: logger,
		errs:   NewLogErrorHandler(logger),
		hub:    broadcast.NewHub(cfg.Status.Socket, logger.Named("status")),
	}
	disc := discovery.New(cfg.DiscoveryConfig(hostBinary), logger.Named("discovery"))
	h.discover = disc.Run
	h.loadLib = func(path string) (moduleAdapter, error) { return contract.Load(path) }
	h.newEngine = func(ecfg engine.Config, proc engine.Processor) (audioEngine, error) {
		return engine.New(ecfg, proc, logger.Named("engine"))
	}

	if cfg.Module.Watch {
		w, err := discovery.NewWatcher(cfg.Module.Dir, logger.Named("watch"))
		if err != nil {
			logger.Warn("module watcher unavailable", zap.Error(err))
		} else {
			h.watcher = w
		}
	}

	h.hub.OnConnect(h.greeting)
	return h, nil
}

// SetErrorHandler replaces the background error handler.
func (h *Host) SetErrorHandler(eh ErrorHandler) {
	if eh != nil {
		h.errs = eh
	}
}

// Hub exposes the status hub for mounting on an HTTP mux.
func (h *Host) Hub() *broadcast.Hub { return h.hub }

// Watcher returns the module source watcher, nil when watching is off.
func (h *Host) Watcher() *discovery.Watcher { return h.watcher }

// LoadModule discovers the module's metadata, builds the parameter bridge,
// and loads the shared library. Parameter values from a previously loaded
// module carry over where the IDs still exist.
func (h *Host) LoadModule(ctx context.Context) error {
	listing, err := h.discover(ctx)
	if err != nil {
		return err
	}

	adapter, err := h.loadLib(h.cfg.Module.Artifact)
	if err != nil {
		return err
	}

	h.mu.Lock()
	var previous map[string]float32
	if h.bridge != nil {
		previous = h.bridge.Snapshot()
	}
	if h.adapter != nil {
		// Replacing a loaded module outside Reload; drop the old instance
		// before the new one goes live.
		h.adapter.Close()
	}
	h.listing = listing
	h.bridge = param.NewBridge(listing.Params)
	for id, v := range previous {
		h.bridge.Write(id, v)
	}
	h.adapter = adapter
	h.mu.Unlock()

	if h.watcher != nil {
		h.watcher.Clear()
	}
	h.logger.Info("module loaded",
		zap.String("artifact", adapter.Path()),
		zap.Int("params", len(listing.Params)),
		zap.Bool("fromCache", listing.FromCache))
	return nil
}

// StartEngine opens the audio streams with the loaded module as processor
// and starts the metering drain.
func (h *Host) StartEngine() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.adapter == nil {
		return fmt.Errorf("no module loaded")
	}
	if h.running {
		return fmt.Errorf("engine already running")
	}

	eng, err := h.newEngine(h.cfg.Audio.Resolve(), h.adapter)
	if err != nil {
		return err
	}
	eng.Subscribe(func(change engine.StateChange) {
		reason := ""
		if change.Reason != nil {
			reason = change.Reason.Error()
		}
		h.hub.BroadcastState(change.State.String(), reason)
	})

	if err := eng.Start(); err != nil {
		return err
	}

	drainCtx, cancel := context.WithCancel(context.Background())
	drain := meter.NewDrain(eng.Frames(), h.hub, meter.DefaultDrainInterval)
	go drain.Run(drainCtx)

	h.eng = eng
	h.drainCtx = cancel
	h.running = true
	return nil
}

// StopEngine stops the streams and the metering drain. The module stays
// loaded.
func (h *Host) StopEngine() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopEngineLocked()
}

func (h *Host) stopEngineLocked() error {
	if !h.running {
		return nil
	}
	if h.drainCtx != nil {
		h.drainCtx()
		h.drainCtx = nil
	}
	// The stopped engine is kept so its state (and counters) stay visible
	// through Status; the next Start replaces it.
	err := h.eng.Stop()
	h.running = false
	return err
}

// ReloadModule rebuilds and reloads the module, restarting the engine when
// it was running. Teardown order: streams stop, then the module instance
// drops, then the library unloads.
func (h *Host) ReloadModule(ctx context.Context) error {
	h.mu.Lock()
	wasRunning := h.running
	if err := h.stopEngineLocked(); err != nil {
		h.logger.Warn("engine stop during reload failed", zap.Error(err))
	}
	if h.adapter != nil {
		if err := h.adapter.Close(); err != nil {
			h.logger.Warn("module close during reload failed", zap.Error(err))
		}
		h.adapter = nil
	}
	h.mu.Unlock()

	if err := h.LoadModule(ctx); err != nil {
		return err
	}
	if wasRunning {
		return h.StartEngine()
	}
	return nil
}

// SetOutputDevice switches the output device by name, restarting the
// streams when they are running. An empty name selects the system default.
func (h *Host) SetOutputDevice(name string) error {
	h.mu.Lock()
	h.cfg.Audio.OutputName = name
	wasRunning := h.running
	err := h.stopEngineLocked()
	h.mu.Unlock()
	if err != nil {
		return err
	}
	if wasRunning {
		return h.StartEngine()
	}
	return nil
}

// SetParam writes a parameter value through the bridge. Unknown IDs are
// ignored, matching the bridge's contract.
func (h *Host) SetParam(id string, value float32) {
	h.mu.RLock()
	bridge := h.bridge
	h.mu.RUnlock()
	if bridge != nil {
		bridge.Write(id, value)
	}
}

// Bridge returns the live parameter bridge, nil before a module loads. The
// bridge stays valid until the next load replaces it.
func (h *Host) Bridge() *param.Bridge {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.bridge
}

// Params returns the current parameter values, nil before a module loads.
func (h *Host) Params() map[string]float32 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.bridge == nil {
		return nil
	}
	return h.bridge.Snapshot()
}

// Status is a point-in-time snapshot for the CLI and status socket.
type Status struct {
	ID         string  `json:"id"`
	State      string  `json:"state"`
	Reason     string  `json:"reason,omitempty"`
	Module     string  `json:"module,omitempty"`
	Params     int     `json:"params"`
	Clients    int     `json:"clients"`
	Panics     uint64  `json:"panics"`
	Underflows uint64  `json:"underflows"`
	Overflows  uint64  `json:"overflows"`
	SampleRate float64 `json:"sampleRate"`
	BlockSize  int     `json:"blockSize"`
}

// Status reports the host's current condition.
func (h *Host) Status() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()

	resolved := h.cfg.Audio.Resolve()
	resolved.Validate()

	s := Status{
		ID:         h.ID.String(),
		State:      engine.Uninitialized.String(),
		Clients:    h.hub.ClientCount(),
		SampleRate: resolved.SampleRate,
		BlockSize:  resolved.BlockSize,
	}
	if h.adapter != nil {
		s.Module = h.adapter.Path()
	}
	if h.bridge != nil {
		s.Params = h.bridge.Len()
	}
	if h.eng != nil {
		state, reason := h.eng.State()
		s.State = state.String()
		if reason != nil {
			s.Reason = reason.Error()
		}
		s.Panics = h.eng.PanicCount()
		s.Underflows = h.eng.UnderflowCount()
		s.Overflows = h.eng.OverflowCount()
	}
	return s
}

// greeting builds the messages every new status client receives.
func (h *Host) greeting() []broadcast.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var msgs []broadcast.Message
	if h.bridge != nil {
		msgs = append(msgs, broadcast.NewParamsMessage(h.bridge.Specs(), h.bridge.Snapshot()))
	}
	state := engine.Uninitialized
	var reason error
	if h.eng != nil {
		state, reason = h.eng.State()
	}
	reasonText := ""
	if reason != nil {
		reasonText = reason.Error()
	}
	msgs = append(msgs, broadcast.NewStateMessage(state.String(), reasonText))
	return msgs
}

// Shutdown tears everything down: streams first, then the module, so the
// instance drops strictly before its library unloads.
func (h *Host) Shutdown() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var firstErr error
	if err := h.stopEngineLocked(); err != nil {
		firstErr = err
	}
	if h.adapter != nil {
		if err := h.adapter.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		h.adapter = nil
	}
	h.bridge = nil
	return firstErr
}
