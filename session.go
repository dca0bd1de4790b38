package dsphost

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// sessionVersion is the session file format version.
const sessionVersion = "1.0"

// SessionState is what survives a host restart: which module was loaded and
// where every parameter sat.
type SessionState struct {
	Version   string             `json:"version"`
	Module    string             `json:"module"`
	Values    map[string]float32 `json:"values"`
	Timestamp time.Time          `json:"timestamp"`
}

// CaptureSession snapshots the host's restorable state.
func (h *Host) CaptureSession() SessionState {
	h.mu.RLock()
	defer h.mu.RUnlock()

	state := SessionState{
		Version:   sessionVersion,
		Timestamp: time.Now().UTC(),
	}
	if h.adapter != nil {
		state.Module = h.adapter.Path()
	}
	if h.bridge != nil {
		state.Values = h.bridge.Snapshot()
	}
	return state
}

// RestoreSession applies a saved session's parameter values. Values for
// parameters the current module no longer exposes are dropped silently.
func (h *Host) RestoreSession(state SessionState) {
	h.mu.RLock()
	bridge := h.bridge
	h.mu.RUnlock()
	if bridge == nil {
		return
	}
	for id, v := range state.Values {
		bridge.Write(id, v)
	}
}

// SaveSession writes the current session to path atomically.
func (h *Host) SaveSession(path string) error {
	state := h.CaptureSession()
	data, err := json.MarshalIndent(&state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp session file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close session file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace session %s: %w", path, err)
	}
	return nil
}

// LoadSession reads a session file.
func LoadSession(path string) (SessionState, error) {
	var state SessionState
	data, err := os.ReadFile(path)
	if err != nil {
		return state, err
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("session file %s is corrupt: %w", path, err)
	}
	if state.Version != sessionVersion {
		return state, fmt.Errorf("session file %s has version %q, want %q", path, state.Version, sessionVersion)
	}
	return state, nil
}
