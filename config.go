package dsphost

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/shaban/dsphost/broadcast"
	"github.com/shaban/dsphost/control"
	"github.com/shaban/dsphost/discovery"
	"github.com/shaban/dsphost/engine"
	"github.com/shaban/dsphost/logging"
)

// Version is the host's semantic version. Discovery caches record it and
// discard themselves across major bumps.
const Version = "1.0.0"

// ModuleConfig locates the user's module and its build.
type ModuleConfig struct {
	Dir          string   `yaml:"dir"`
	Artifact     string   `yaml:"artifact"`               // shared library the build produces
	CacheDir     string   `yaml:"cacheDir,omitempty"`     // default: <dir>/.dsphost
	BuildCommand []string `yaml:"buildCommand,omitempty"` // default: cargo with the discovery feature
	Watch        bool     `yaml:"watch,omitempty"`        // pre-warm rebuilds on source changes
}

// AudioConfig is the yaml-facing stream configuration. Resolve maps it onto
// the engine's config, which applies defaults and bounds.
type AudioConfig struct {
	SampleRate  float64 `yaml:"sampleRate,omitempty"`
	BlockSize   int     `yaml:"blockSize,omitempty"`
	Channels    int     `yaml:"channels,omitempty"`
	InputName   string  `yaml:"inputDevice,omitempty"`
	OutputName  string  `yaml:"outputDevice,omitempty"`
	AudioBlocks int     `yaml:"audioBlocks,omitempty"`
	MeterFrames int     `yaml:"meterFrames,omitempty"`
}

// Resolve converts the yaml form into the engine's config.
func (a AudioConfig) Resolve() engine.Config {
	return engine.Config{
		SampleRate:  a.SampleRate,
		BlockSize:   a.BlockSize,
		Channels:    a.Channels,
		InputName:   a.InputName,
		OutputName:  a.OutputName,
		AudioBlocks: a.AudioBlocks,
		MeterFrames: a.MeterFrames,
	}
}

// StatusConfig controls the status socket.
type StatusConfig struct {
	Addr    string           `yaml:"addr,omitempty"` // empty disables the socket
	Socket  broadcast.Config `yaml:"socket,omitempty"`
	Enabled bool             `yaml:"enabled"`
}

// MIDIConfig controls the optional control surface.
type MIDIConfig struct {
	Enabled  bool              `yaml:"enabled"`
	Device   int               `yaml:"device"` // negative = system default input
	Mappings []control.Mapping `yaml:"mappings,omitempty"`
}

// Config is the host's full configuration.
type Config struct {
	Module  ModuleConfig   `yaml:"module"`
	Audio   AudioConfig    `yaml:"audio,omitempty"`
	Status  StatusConfig   `yaml:"status,omitempty"`
	MIDI    MIDIConfig     `yaml:"midi,omitempty"`
	Logging logging.Config `yaml:"logging,omitempty"`
	Session string         `yaml:"session,omitempty"` // session file path, empty disables persistence
}

// LoadConfig reads and validates a yaml config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the module section and fills derived defaults. Audio
// bounds are enforced later by the engine.
func (c *Config) Validate() error {
	if c.Module.Dir == "" {
		return fmt.Errorf("module.dir is required")
	}
	if c.Module.Artifact == "" {
		return fmt.Errorf("module.artifact is required")
	}
	if c.Module.CacheDir == "" {
		c.Module.CacheDir = filepath.Join(c.Module.Dir, ".dsphost")
	}
	if c.Status.Enabled && c.Status.Addr == "" {
		c.Status.Addr = "localhost:8090"
	}
	return nil
}

// DiscoveryConfig derives the discovery configuration. hostBinary tracks the
// running executable so a host upgrade invalidates the cache.
func (c *Config) DiscoveryConfig(hostBinary string) discovery.Config {
	return discovery.Config{
		ModuleDir:    c.Module.Dir,
		ArtifactPath: c.Module.Artifact,
		CacheDir:     c.Module.CacheDir,
		BuildCommand: c.Module.BuildCommand,
		HostVersion:  Version,
		HostBinary:   hostBinary,
	}
}
