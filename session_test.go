package dsphost

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestSessionRoundTrip(t *testing.T) {
	h, _ := newTestHost(t)
	if err := h.LoadModule(context.Background()); err != nil {
		t.Fatalf("LoadModule failed: %v", err)
	}
	h.SetParam("gain", 0.9)

	path := filepath.Join(t.TempDir(), "session.json")
	if err := h.SaveSession(path); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	state, err := LoadSession(path)
	if err != nil {
		t.Fatalf("LoadSession failed: %v", err)
	}
	if state.Module != "libmodule.so" {
		t.Errorf("module path = %q, want libmodule.so", state.Module)
	}
	if state.Values["gain"] != 0.9 || state.Values["mix"] != 1 {
		t.Errorf("values corrupted: %v", state.Values)
	}
}

func TestRestoreSessionAppliesValues(t *testing.T) {
	h, _ := newTestHost(t)
	if err := h.LoadModule(context.Background()); err != nil {
		t.Fatalf("LoadModule failed: %v", err)
	}

	h.RestoreSession(SessionState{
		Version: sessionVersion,
		Values:  map[string]float32{"gain": 0.33, "removed": 0.7},
	})

	values := h.Params()
	if values["gain"] != 0.33 {
		t.Errorf("gain not restored, got %f", values["gain"])
	}
	if _, exists := values["removed"]; exists {
		t.Error("value for a parameter the module does not expose must be dropped")
	}
}

func TestRestoreSessionBeforeLoadIsNoop(t *testing.T) {
	h, _ := newTestHost(t)
	h.RestoreSession(SessionState{Values: map[string]float32{"gain": 0.1}}) // must not panic
}

func TestLoadSessionRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte("{broken"), 0o644); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	if _, err := LoadSession(path); err == nil {
		t.Error("corrupt session must not load")
	}
}

func TestLoadSessionRejectsVersionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte(`{"version":"9.9","values":{}}`), 0o644); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	if _, err := LoadSession(path); err == nil {
		t.Error("unknown session version must not load")
	}
}
