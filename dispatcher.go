package dsphost

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// OperationType identifies a host lifecycle operation.
type OperationType string

const (
	OpLoadModule   OperationType = "load_module"
	OpReloadModule OperationType = "reload_module"
	OpStartEngine  OperationType = "start_engine"
	OpStopEngine   OperationType = "stop_engine"
	OpSetOutput    OperationType = "set_output_device"
	OpShutdown     OperationType = "shutdown"
)

// Operation is one queued lifecycle change.
type Operation struct {
	Type     OperationType
	Ctx      context.Context
	Data     string // operation argument, e.g. the output device name
	Response chan Result
}

// Result is the outcome of a dispatched operation.
type Result struct {
	Success bool
	Error   error
}

// Dispatcher serializes lifecycle changes so loads, reloads, and stream
// starts never interleave. Parameter writes bypass it entirely; they are
// lock-free through the bridge.
type Dispatcher struct {
	host *Host

	mu        sync.RWMutex
	isRunning bool

	operations chan Operation
	stopChan   chan struct{}

	lastOperationDuration time.Duration
	slowThreshold         time.Duration
}

// NewDispatcher creates a dispatcher for the host.
func NewDispatcher(host *Host) *Dispatcher {
	return &Dispatcher{
		host:          host,
		operations:    make(chan Operation, 16),
		stopChan:      make(chan struct{}),
		slowThreshold: 5 * time.Second, // a cold rebuild can legitimately take a while
	}
}

// Start begins the dispatch loop.
func (d *Dispatcher) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.isRunning {
		return fmt.Errorf("dispatcher is already running")
	}
	d.isRunning = true
	go d.dispatchLoop()
	return nil
}

// Stop halts the dispatcher. Queued operations are abandoned.
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.isRunning {
		return nil
	}
	close(d.stopChan)
	d.isRunning = false
	return nil
}

// IsRunning returns whether the dispatch loop is active.
func (d *Dispatcher) IsRunning() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.isRunning
}

// LastOperationDuration returns how long the most recent operation took.
func (d *Dispatcher) LastOperationDuration() time.Duration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastOperationDuration
}

func (d *Dispatcher) dispatchLoop() {
	for {
		select {
		case <-d.stopChan:
			return
		case op := <-d.operations:
			start := time.Now()
			result := d.executeOperation(op)
			duration := time.Since(start)

			d.mu.Lock()
			d.lastOperationDuration = duration
			slow := duration > d.slowThreshold
			d.mu.Unlock()

			if slow {
				d.host.errs.HandleError(
					fmt.Errorf("%s took %v", op.Type, duration.Round(time.Millisecond)))
			}
			op.Response <- result
		}
	}
}

func (d *Dispatcher) executeOperation(op Operation) Result {
	ctx := op.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	var err error
	switch op.Type {
	case OpLoadModule:
		err = d.host.LoadModule(ctx)
	case OpReloadModule:
		err = d.host.ReloadModule(ctx)
	case OpStartEngine:
		err = d.host.StartEngine()
	case OpStopEngine:
		err = d.host.StopEngine()
	case OpSetOutput:
		err = d.host.SetOutputDevice(op.Data)
	case OpShutdown:
		err = d.host.Shutdown()
	default:
		err = fmt.Errorf("unknown operation type: %s", op.Type)
	}
	return Result{Success: err == nil, Error: err}
}

// submit queues an operation and waits for its result.
func (d *Dispatcher) submit(opType OperationType, ctx context.Context) error {
	return d.submitData(opType, ctx, "")
}

func (d *Dispatcher) submitData(opType OperationType, ctx context.Context, data string) error {
	response := make(chan Result, 1)
	select {
	case d.operations <- Operation{Type: opType, Ctx: ctx, Data: data, Response: response}:
	case <-d.stopChan:
		return fmt.Errorf("dispatcher stopped")
	}
	select {
	case result := <-response:
		return result.Error
	case <-d.stopChan:
		return fmt.Errorf("dispatcher stopped")
	}
}

// LoadModule queues a module load and waits for it.
func (d *Dispatcher) LoadModule(ctx context.Context) error {
	return d.submit(OpLoadModule, ctx)
}

// ReloadModule queues a rebuild-and-reload and waits for it.
func (d *Dispatcher) ReloadModule(ctx context.Context) error {
	return d.submit(OpReloadModule, ctx)
}

// StartEngine queues an engine start and waits for it.
func (d *Dispatcher) StartEngine() error {
	return d.submit(OpStartEngine, nil)
}

// StopEngine queues an engine stop and waits for it.
func (d *Dispatcher) StopEngine() error {
	return d.submit(OpStopEngine, nil)
}

// SetOutputDevice queues an output device change and waits for it.
func (d *Dispatcher) SetOutputDevice(name string) error {
	return d.submitData(OpSetOutput, nil, name)
}

// Shutdown queues a full teardown and waits for it.
func (d *Dispatcher) Shutdown() error {
	return d.submit(OpShutdown, nil)
}
