// Package discovery obtains a module's parameter and processor metadata
// without paying a rebuild on every start.
//
// The procedure is a two-phase protocol. First the user's module is built
// with its discovery feature enabled, which disables the static host-plugin
// initializers — left enabled, those attempt OS-level audio-component
// registration while the library loads and can hang the loading process.
// Then the built artifact is loaded and its metadata symbols are called to
// extract the listings. Results are cached to JSON sidecar files tagged with
// the modification times of every tracked input; a stale cache is never
// silently served, and failures are fail-fast with a diagnostic naming the
// unmet expectation.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/shaban/dsphost/contract"
	"github.com/shaban/dsphost/param"
)

// Sidecar file names inside the cache directory.
const (
	ParamsSidecar     = "params.json"
	ProcessorsSidecar = "processors.json"
)

// Config describes where the module lives and how to build it.
type Config struct {
	ModuleDir    string   // module source tree
	ArtifactPath string   // shared library the build produces
	CacheDir     string   // sidecar directory
	BuildCommand []string // run in ModuleDir; must enable the discovery feature
	HostVersion  string   // this host's semantic version
	HostBinary   string   // this host's executable, tracked as a cache input
}

// DefaultBuildCommand builds the module with host-plugin static initializers
// disabled via the discovery feature.
var DefaultBuildCommand = []string{"cargo", "build", "--release", "--no-default-features", "--features", "discovery"}

// ProcessorInfo is one processor a module exposes.
type ProcessorInfo struct {
	Name    string `json:"name"`
	Inputs  int    `json:"inputs"`
	Outputs int    `json:"outputs"`
}

// Result is a complete discovery outcome.
type Result struct {
	Params     []param.Spec
	Processors []ProcessorInfo
	FromCache  bool
}

// Discovery runs the protocol. The zero seams (build, extract) exist so
// tests can drive the state machine without cargo or a compiled artifact.
type Discovery struct {
	cfg    Config
	logger *zap.Logger

	build   func(ctx context.Context) ([]byte, error)
	extract func(path string) (contract.Metadata, error)
}

// New creates a Discovery for cfg.
func New(cfg Config, logger *zap.Logger) *Discovery {
	if len(cfg.BuildCommand) == 0 {
		cfg.BuildCommand = DefaultBuildCommand
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Discovery{cfg: cfg, logger: logger}
	d.build = d.runBuild
	d.extract = contract.ReadMetadata
	return d
}

// Run executes CheckCache → (HitFresh | Stale/Missing) → [Build → Extract →
// WriteCache] → Ready.
func (d *Discovery) Run(ctx context.Context) (*Result, error) {
	tracked, err := d.trackedInputs()
	if err != nil {
		return nil, fmt.Errorf("failed to collect tracked inputs: %w", err)
	}

	if res, ok := d.loadFresh(tracked); ok {
		d.logger.Debug("discovery cache hit",
			zap.String("cacheDir", d.cfg.CacheDir),
			zap.Int("params", len(res.Params)))
		res.FromCache = true
		return res, nil
	}

	d.logger.Info("discovery cache stale or missing, rebuilding module",
		zap.String("moduleDir", d.cfg.ModuleDir))

	output, err := d.build(ctx)
	if err != nil {
		return nil, &BuildError{Command: d.cfg.BuildCommand, Output: string(output), Err: err}
	}

	meta, err := d.extract(d.cfg.ArtifactPath)
	if err != nil {
		return nil, &ExtractionError{Artifact: d.cfg.ArtifactPath, Err: err}
	}

	res, err := parseListings(meta)
	if err != nil {
		return nil, &ExtractionError{Artifact: d.cfg.ArtifactPath, Err: err}
	}

	// The artifact was just rebuilt; re-stat everything so the cache records
	// post-build modification times.
	tracked, err = d.trackedInputs()
	if err != nil {
		return nil, fmt.Errorf("failed to re-stat tracked inputs: %w", err)
	}
	if err := d.writeCache(meta, tracked); err != nil {
		return nil, fmt.Errorf("failed to write discovery cache: %w", err)
	}
	return res, nil
}

// runBuild executes the configured build command in the module directory.
func (d *Discovery) runBuild(ctx context.Context) ([]byte, error) {
	cmd := exec.CommandContext(ctx, d.cfg.BuildCommand[0], d.cfg.BuildCommand[1:]...)
	cmd.Dir = d.cfg.ModuleDir
	return cmd.CombinedOutput()
}

// trackedInputs returns every file whose modification time invalidates the
// cache: all module sources, the build artifact, and the host binary.
func (d *Discovery) trackedInputs() ([]string, error) {
	var inputs []string

	err := filepath.WalkDir(d.cfg.ModuleDir, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			// Build output trees churn constantly and are covered by the
			// artifact itself.
			name := entry.Name()
			if name == "target" || name == ".git" || name == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		inputs = append(inputs, path)
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("module directory %s does not exist", d.cfg.ModuleDir)
		}
		return nil, err
	}

	for _, extra := range []string{d.cfg.ArtifactPath, d.cfg.HostBinary} {
		if extra == "" {
			continue
		}
		if _, err := os.Stat(extra); err == nil {
			inputs = append(inputs, extra)
		}
	}
	return inputs, nil
}

// loadFresh returns the cached result when both sidecars exist and are fresh
// for the tracked inputs.
func (d *Discovery) loadFresh(tracked []string) (*Result, bool) {
	paramsEntry, err := loadSidecar(filepath.Join(d.cfg.CacheDir, ParamsSidecar))
	if err != nil {
		return nil, false
	}
	procsEntry, err := loadSidecar(filepath.Join(d.cfg.CacheDir, ProcessorsSidecar))
	if err != nil {
		return nil, false
	}
	if !paramsEntry.fresh(d.cfg.HostVersion, tracked) || !procsEntry.fresh(d.cfg.HostVersion, tracked) {
		return nil, false
	}

	res, err := parseListings(contract.Metadata{
		ParamsJSON:     string(paramsEntry.Payload),
		ProcessorsJSON: string(procsEntry.Payload),
	})
	if err != nil {
		// A corrupt sidecar is treated as a miss, not served.
		return nil, false
	}
	return res, true
}

func (d *Discovery) writeCache(meta contract.Metadata, tracked []string) error {
	if err := os.MkdirAll(d.cfg.CacheDir, 0o755); err != nil {
		return err
	}
	inputs, err := statInputs(tracked)
	if err != nil {
		return err
	}
	if err := writeSidecar(filepath.Join(d.cfg.CacheDir, ParamsSidecar),
		d.cfg.HostVersion, inputs, json.RawMessage(meta.ParamsJSON)); err != nil {
		return err
	}
	return writeSidecar(filepath.Join(d.cfg.CacheDir, ProcessorsSidecar),
		d.cfg.HostVersion, inputs, json.RawMessage(meta.ProcessorsJSON))
}

// parseListings decodes the serialized listings a module exports.
func parseListings(meta contract.Metadata) (*Result, error) {
	var res Result
	if err := json.Unmarshal([]byte(meta.ParamsJSON), &res.Params); err != nil {
		return nil, fmt.Errorf("parameter listing is not valid JSON: %w", err)
	}
	if err := json.Unmarshal([]byte(meta.ProcessorsJSON), &res.Processors); err != nil {
		return nil, fmt.Errorf("processor listing is not valid JSON: %w", err)
	}
	return &res, nil
}
