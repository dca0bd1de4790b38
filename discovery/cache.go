package discovery

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Masterminds/semver/v3"
)

// sidecarFormat versions the sidecar envelope itself, independent of the
// host version recorded inside it.
const sidecarFormat = 1

// cacheEntry is the envelope written around a cached listing. Inputs maps
// each tracked file to its modification time at write; any input observed
// newer than its recorded time marks the entry stale.
type cacheEntry struct {
	Format      int                  `json:"format"`
	HostVersion string               `json:"hostVersion"`
	WrittenAt   time.Time            `json:"writtenAt"`
	Inputs      map[string]time.Time `json:"inputs"`
	Payload     json.RawMessage      `json:"payload"`
}

// fresh reports whether the entry may be served for the given host version
// and set of tracked inputs.
func (e *cacheEntry) fresh(hostVersion string, tracked []string) bool {
	if e.Format != sidecarFormat {
		return false
	}
	if !compatibleHost(e.HostVersion, hostVersion) {
		return false
	}
	seen := make(map[string]bool, len(tracked))
	for _, path := range tracked {
		seen[path] = true
		recorded, ok := e.Inputs[path]
		if !ok {
			// A file the cache never saw, e.g. a new source file.
			return false
		}
		info, err := os.Stat(path)
		if err != nil {
			return false
		}
		if info.ModTime().After(recorded) {
			return false
		}
	}
	for path := range e.Inputs {
		if !seen[path] {
			// A recorded input no longer exists on disk.
			return false
		}
	}
	return true
}

// compatibleHost reports whether two host versions share a major version.
// A major bump may change the contract, so caches written by a different
// major are discarded.
func compatibleHost(cached, current string) bool {
	cv, err := semver.NewVersion(cached)
	if err != nil {
		return false
	}
	hv, err := semver.NewVersion(current)
	if err != nil {
		return false
	}
	return cv.Major() == hv.Major()
}

func statInputs(tracked []string) (map[string]time.Time, error) {
	inputs := make(map[string]time.Time, len(tracked))
	for _, path := range tracked {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat tracked input %s: %w", path, err)
		}
		inputs[path] = info.ModTime()
	}
	return inputs, nil
}

// writeSidecar writes the entry atomically: marshal to a temp file in the
// same directory, then rename over the destination so readers never observe
// a partial sidecar.
func writeSidecar(path, hostVersion string, inputs map[string]time.Time, payload json.RawMessage) error {
	entry := cacheEntry{
		Format:      sidecarFormat,
		HostVersion: hostVersion,
		WrittenAt:   time.Now().UTC(),
		Inputs:      inputs,
		Payload:     payload,
	}
	data, err := json.MarshalIndent(&entry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp sidecar: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp sidecar: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp sidecar: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace sidecar %s: %w", path, err)
	}
	return nil
}

func loadSidecar(path string) (*cacheEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("sidecar %s is corrupt: %w", path, err)
	}
	return &entry, nil
}
