package discovery

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shaban/dsphost/contract"
)

const (
	testParamsJSON     = `[{"id":"gain","name":"Gain","min":0,"max":1,"default":0.5}]`
	testProcessorsJSON = `[{"name":"Gain","inputs":2,"outputs":2}]`
)

// newTestDiscovery builds a Discovery over a throwaway module tree whose
// build and extract steps are stubbed. The returned counters record how
// often each step ran.
func newTestDiscovery(t *testing.T) (*Discovery, *int, *int) {
	t.Helper()
	moduleDir := t.TempDir()
	cacheDir := t.TempDir()

	src := filepath.Join(moduleDir, "lib.rs")
	if err := os.WriteFile(src, []byte("fn main() {}"), 0o644); err != nil {
		t.Fatalf("failed to write module source: %v", err)
	}
	artifact := filepath.Join(moduleDir, "libmodule.so")

	d := New(Config{
		ModuleDir:    moduleDir,
		ArtifactPath: artifact,
		CacheDir:     cacheDir,
		HostVersion:  "1.2.3",
	}, nil)

	builds, extracts := 0, 0
	d.build = func(ctx context.Context) ([]byte, error) {
		builds++
		// A real build produces the artifact.
		if err := os.WriteFile(artifact, []byte("elf"), 0o644); err != nil {
			return nil, err
		}
		return nil, nil
	}
	d.extract = func(path string) (contract.Metadata, error) {
		extracts++
		return contract.Metadata{
			ParamsJSON:     testParamsJSON,
			ProcessorsJSON: testProcessorsJSON,
		}, nil
	}
	return d, &builds, &extracts
}

func TestRunBuildsOnColdCache(t *testing.T) {
	d, builds, extracts := newTestDiscovery(t)

	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.FromCache {
		t.Error("cold cache should not report FromCache")
	}
	if *builds != 1 || *extracts != 1 {
		t.Errorf("expected one build and one extract, got %d/%d", *builds, *extracts)
	}
	if len(res.Params) != 1 || res.Params[0].ID != "gain" {
		t.Errorf("unexpected params: %+v", res.Params)
	}
	if len(res.Processors) != 1 || res.Processors[0].Outputs != 2 {
		t.Errorf("unexpected processors: %+v", res.Processors)
	}
}

func TestRunServesFreshCache(t *testing.T) {
	d, builds, _ := newTestDiscovery(t)

	if _, err := d.Run(context.Background()); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if !res.FromCache {
		t.Error("second run should hit the cache")
	}
	if *builds != 1 {
		t.Errorf("cache hit must not rebuild, got %d builds", *builds)
	}
	if len(res.Params) != 1 || res.Params[0].Default != 0.5 {
		t.Errorf("cached params corrupted: %+v", res.Params)
	}
}

func TestRunRebuildsWhenSourceNewer(t *testing.T) {
	d, builds, _ := newTestDiscovery(t)

	if _, err := d.Run(context.Background()); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}

	src := filepath.Join(d.cfg.ModuleDir, "lib.rs")
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(src, future, future); err != nil {
		t.Fatalf("failed to bump source mtime: %v", err)
	}

	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run after edit failed: %v", err)
	}
	if res.FromCache {
		t.Error("edited source must invalidate the cache")
	}
	if *builds != 2 {
		t.Errorf("expected a rebuild, got %d builds", *builds)
	}
}

func TestRunRebuildsOnNewSourceFile(t *testing.T) {
	d, builds, _ := newTestDiscovery(t)

	if _, err := d.Run(context.Background()); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	extra := filepath.Join(d.cfg.ModuleDir, "extra.rs")
	if err := os.WriteFile(extra, []byte("mod extra;"), 0o644); err != nil {
		t.Fatalf("failed to add source file: %v", err)
	}
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(extra, future, future); err != nil {
		t.Fatalf("failed to bump mtime: %v", err)
	}

	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.FromCache {
		t.Error("a file the cache never saw must invalidate it")
	}
	if *builds != 2 {
		t.Errorf("expected a rebuild, got %d builds", *builds)
	}
}

func TestRunRebuildsOnDeletedSourceFile(t *testing.T) {
	d, builds, _ := newTestDiscovery(t)

	extra := filepath.Join(d.cfg.ModuleDir, "extra.rs")
	if err := os.WriteFile(extra, []byte("mod extra;"), 0o644); err != nil {
		t.Fatalf("failed to add source file: %v", err)
	}
	if _, err := d.Run(context.Background()); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	if err := os.Remove(extra); err != nil {
		t.Fatalf("failed to delete source file: %v", err)
	}

	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.FromCache {
		t.Error("a deleted tracked file must invalidate the cache")
	}
	if *builds != 2 {
		t.Errorf("expected a rebuild, got %d builds", *builds)
	}
}

func TestRunRebuildsOnHostMajorBump(t *testing.T) {
	d, builds, _ := newTestDiscovery(t)

	if _, err := d.Run(context.Background()); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	d.cfg.HostVersion = "2.0.0"

	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.FromCache {
		t.Error("a host major bump must invalidate the cache")
	}
	if *builds != 2 {
		t.Errorf("expected a rebuild, got %d builds", *builds)
	}
}

func TestRunBuildFailure(t *testing.T) {
	d, _, _ := newTestDiscovery(t)
	d.cfg.BuildCommand = []string{"cargo", "build"}
	d.build = func(ctx context.Context) ([]byte, error) {
		return []byte("error[E0308]: mismatched types"), errors.New("exit status 101")
	}

	_, err := d.Run(context.Background())
	var buildErr *BuildError
	if !errors.As(err, &buildErr) {
		t.Fatalf("expected *BuildError, got %v", err)
	}
	if !strings.Contains(buildErr.Error(), "E0308") {
		t.Errorf("build error should carry compiler output, got: %v", buildErr)
	}
	if !strings.Contains(buildErr.Error(), "cargo build") {
		t.Errorf("build error should name the command, got: %v", buildErr)
	}
}

func TestRunExtractionFailure(t *testing.T) {
	d, _, _ := newTestDiscovery(t)
	d.extract = func(path string) (contract.Metadata, error) {
		return contract.Metadata{}, &contract.MissingSymbolError{Path: path, Symbol: contract.ParamsSymbol}
	}

	_, err := d.Run(context.Background())
	var extractErr *ExtractionError
	if !errors.As(err, &extractErr) {
		t.Fatalf("expected *ExtractionError, got %v", err)
	}
	var missing *contract.MissingSymbolError
	if !errors.As(err, &missing) {
		t.Errorf("extraction error should wrap the symbol failure, got %v", err)
	}
}

func TestRunMalformedListing(t *testing.T) {
	d, _, _ := newTestDiscovery(t)
	d.extract = func(path string) (contract.Metadata, error) {
		return contract.Metadata{ParamsJSON: "{not json", ProcessorsJSON: "[]"}, nil
	}

	_, err := d.Run(context.Background())
	var extractErr *ExtractionError
	if !errors.As(err, &extractErr) {
		t.Fatalf("malformed listing should be an *ExtractionError, got %v", err)
	}
}

func TestCorruptSidecarTreatedAsMiss(t *testing.T) {
	d, builds, _ := newTestDiscovery(t)

	if _, err := d.Run(context.Background()); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	sidecar := filepath.Join(d.cfg.CacheDir, ParamsSidecar)
	if err := os.WriteFile(sidecar, []byte("garbage"), 0o644); err != nil {
		t.Fatalf("failed to corrupt sidecar: %v", err)
	}

	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.FromCache {
		t.Error("corrupt sidecar must not be served")
	}
	if *builds != 2 {
		t.Errorf("expected a rebuild, got %d builds", *builds)
	}
}

func TestCompatibleHost(t *testing.T) {
	tests := []struct {
		cached, current string
		want            bool
	}{
		{"1.2.3", "1.9.0", true},
		{"1.2.3", "2.0.0", false},
		{"0.4.0", "0.4.1", true},
		{"not-a-version", "1.0.0", false},
		{"1.0.0", "", false},
	}
	for _, tt := range tests {
		if got := compatibleHost(tt.cached, tt.current); got != tt.want {
			t.Errorf("compatibleHost(%q, %q) = %v, want %v", tt.cached, tt.current, got, tt.want)
		}
	}
}
