package dsphost

import (
	"context"
	"testing"
)

func startedDispatcher(t *testing.T) (*Dispatcher, *Host) {
	t.Helper()
	h, _ := newTestHost(t)
	d := NewDispatcher(h)
	if err := d.Start(); err != nil {
		t.Fatalf("dispatcher failed to start: %v", err)
	}
	t.Cleanup(func() { d.Stop() })
	return d, h
}

func TestDispatcherLifecycle(t *testing.T) {
	h, _ := newTestHost(t)
	d := NewDispatcher(h)

	if d.IsRunning() {
		t.Error("dispatcher should not run before Start")
	}
	if err := d.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !d.IsRunning() {
		t.Error("dispatcher should run after Start")
	}
	if err := d.Start(); err == nil {
		t.Error("double Start must fail")
	}
	if err := d.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if d.IsRunning() {
		t.Error("dispatcher should not run after Stop")
	}
	if err := d.Stop(); err != nil {
		t.Errorf("Stop on a stopped dispatcher should be a no-op, got %v", err)
	}
}

func TestDispatcherLoadModule(t *testing.T) {
	d, h := startedDispatcher(t)

	if err := d.LoadModule(context.Background()); err != nil {
		t.Fatalf("dispatched load failed: %v", err)
	}
	if h.Params() == nil {
		t.Error("load did not reach the host")
	}
	if d.LastOperationDuration() <= 0 {
		t.Error("operation duration not recorded")
	}
}

func TestDispatcherPropagatesErrors(t *testing.T) {
	d, _ := startedDispatcher(t)

	// No module loaded, so a start must fail through the queue too.
	if err := d.StartEngine(); err == nil {
		t.Error("dispatched start without module should fail")
	}
}

func TestDispatcherRejectsAfterStop(t *testing.T) {
	d, _ := startedDispatcher(t)
	d.Stop()

	if err := d.LoadModule(context.Background()); err == nil {
		t.Error("operations after Stop must fail fast")
	}
}

func TestDispatcherSerializesOperations(t *testing.T) {
	d, h := startedDispatcher(t)

	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() { done <- d.LoadModule(context.Background()) }()
	}
	for i := 0; i < 8; i++ {
		if err := <-done; err != nil {
			t.Fatalf("concurrent load %d failed: %v", i, err)
		}
	}
	if h.Params() == nil {
		t.Error("host lost its bridge under concurrent loads")
	}
}
