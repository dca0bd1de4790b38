package dsphost

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleConfig = `
module:
  dir: /home/user/mydsp
  artifact: /home/user/mydsp/target/release/libmydsp.so
  watch: true
audio:
  sampleRate: 44100
  blockSize: 256
  outputDevice: "USB Interface"
status:
  enabled: true
midi:
  enabled: true
  device: -1
  mappings:
    - channel: 1
      cc: 7
      paramId: gain
logging:
  level: debug
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dsphost.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Module.Dir != "/home/user/mydsp" {
		t.Errorf("module.dir = %q", cfg.Module.Dir)
	}
	if cfg.Audio.SampleRate != 44100 || cfg.Audio.BlockSize != 256 {
		t.Errorf("audio section wrong: %+v", cfg.Audio)
	}
	if cfg.Audio.OutputName != "USB Interface" {
		t.Errorf("outputDevice = %q", cfg.Audio.OutputName)
	}
	if len(cfg.MIDI.Mappings) != 1 || cfg.MIDI.Mappings[0].ParamID != "gain" {
		t.Errorf("midi mappings wrong: %+v", cfg.MIDI.Mappings)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging.level = %q", cfg.Logging.Level)
	}
}

func TestConfigDerivedDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Module.CacheDir != "/home/user/mydsp/.dsphost" {
		t.Errorf("cacheDir default wrong: %q", cfg.Module.CacheDir)
	}
	if cfg.Status.Addr == "" {
		t.Error("enabled status socket should get a default address")
	}
}

func TestConfigRequiresModuleSection(t *testing.T) {
	cases := []string{
		`audio: {blockSize: 256}`,
		`module: {dir: /tmp/x}`,      // missing artifact
		`module: {artifact: /tmp/x}`, // missing dir
	}
	for _, content := range cases {
		if _, err := LoadConfig(writeConfig(t, content)); err == nil {
			t.Errorf("config %q should not validate", content)
		}
	}
}

func TestAudioConfigResolve(t *testing.T) {
	resolved := AudioConfig{SampleRate: 96000, BlockSize: 128, Channels: 2}.Resolve()
	if err := resolved.Validate(); err != nil {
		t.Fatalf("resolved config invalid: %v", err)
	}
	if resolved.SampleRate != 96000 || resolved.BlockSize != 128 {
		t.Errorf("resolve dropped fields: %+v", resolved)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/dsphost.yaml"); err == nil {
		t.Error("missing config file must error")
	}
}
