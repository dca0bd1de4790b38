//go:build cgo && (darwin || linux)

package contract

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// fixtureSource is a minimal loadable module whose lifecycle hooks append
// markers to the file named by DSPH_FIXTURE_LOG, so tests can observe the
// order of drop relative to library unload. The contract version is taken
// from FIXTURE_VERSION so one source serves both the matching and the
// mismatched build.
const fixtureSource = `
#include <stdint.h>
#include <stdio.h>
#include <stdlib.h>

#ifndef FIXTURE_VERSION
#define FIXTURE_VERSION 1
#endif

typedef struct {
	uint32_t version;
	void* (*create)(void);
	void  (*process)(void*, const float**, float**, uint32_t, uint32_t);
	void  (*set_sample_rate)(void*, float);
	void  (*reset)(void*);
	void  (*drop)(void*);
} dsph_contract;

static void log_marker(const char* marker) {
	const char* path = getenv("DSPH_FIXTURE_LOG");
	if (!path) {
		return;
	}
	FILE* f = fopen(path, "a");
	if (!f) {
		return;
	}
	fputs(marker, f);
	fputc('\n', f);
	fclose(f);
}

static void* fx_create(void) {
	log_marker("create");
	return malloc(1);
}

static void fx_process(void* inst, const float** in, float** out,
		uint32_t channels, uint32_t frames) {
	(void)inst;
	for (uint32_t ch = 0; ch < channels; ch++) {
		for (uint32_t i = 0; i < frames; i++) {
			out[ch][i] = in[ch][i] * 0.5f;
		}
	}
}

static void fx_set_sample_rate(void* inst, float rate) {
	(void)inst;
	(void)rate;
}

static void fx_reset(void* inst) {
	(void)inst;
}

static void fx_drop(void* inst) {
	log_marker("drop");
	free(inst);
}

static const dsph_contract CONTRACT = {
	.version         = FIXTURE_VERSION,
	.create          = fx_create,
	.process         = fx_process,
	.set_sample_rate = fx_set_sample_rate,
	.reset           = fx_reset,
	.drop            = fx_drop,
};

const dsph_contract* dsph_contract_v1(void) {
	return &CONTRACT;
}

__attribute__((destructor))
static void fx_unloaded(void) {
	log_marker("unload");
}
`

// buildFixture compiles the fixture module with the system C compiler,
// skipping the test when none is installed.
func buildFixture(t *testing.T, version uint32) string {
	t.Helper()
	cc, err := exec.LookPath("cc")
	if err != nil {
		t.Skip("no C compiler available")
	}

	dir := t.TempDir()
	src := filepath.Join(dir, "fixture.c")
	if err := os.WriteFile(src, []byte(fixtureSource), 0o644); err != nil {
		t.Fatalf("failed to write fixture source: %v", err)
	}
	lib := filepath.Join(dir, "libfixture.so")
	cmd := exec.Command(cc, "-shared", "-fPIC",
		fmt.Sprintf("-DFIXTURE_VERSION=%d", version), "-o", lib, src)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to build fixture: %v\n%s", err, out)
	}
	return lib
}

// fixtureLog points the fixture's marker log at a fresh file for this test.
func fixtureLog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "markers.log")
	t.Setenv("DSPH_FIXTURE_LOG", path)
	return path
}

func readMarkers(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatalf("failed to read marker log: %v", err)
	}
	return strings.Fields(string(data))
}

func TestCloseDropsInstanceBeforeUnload(t *testing.T) {
	logPath := fixtureLog(t)
	lib := buildFixture(t, Version)

	a, err := Load(lib)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	markers := readMarkers(t, logPath)
	want := []string{"create", "drop", "unload"}
	if len(markers) != len(want) {
		t.Fatalf("markers = %v, want %v", markers, want)
	}
	for i, m := range want {
		if markers[i] != m {
			t.Fatalf("markers = %v, want %v", markers, want)
		}
	}

	// A second close must not touch the dropped instance or the unmapped
	// library.
	if err := a.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if again := readMarkers(t, logPath); len(again) != len(want) {
		t.Errorf("second Close re-ran lifecycle hooks: %v", again)
	}
}

func TestLoadRejectsMismatchedLibrary(t *testing.T) {
	logPath := fixtureLog(t)
	lib := buildFixture(t, Version+1)

	_, err := Load(lib)
	var mismatch *VersionMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("got %v (%T), want *VersionMismatchError", err, err)
	}
	if mismatch.Expected != Version || mismatch.Found != Version+1 {
		t.Errorf("expected/found = %d/%d, want %d/%d",
			mismatch.Expected, mismatch.Found, Version, Version+1)
	}

	markers := readMarkers(t, logPath)
	for _, m := range markers {
		if m == "create" || m == "drop" {
			t.Errorf("mismatched module had %s invoked", m)
		}
	}
	if len(markers) == 0 || markers[len(markers)-1] != "unload" {
		t.Errorf("rejected library was not released, markers = %v", markers)
	}
}

func TestLoadedModuleProcessesAudio(t *testing.T) {
	fixtureLog(t)
	lib := buildFixture(t, Version)

	a, err := Load(lib)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defer a.Close()

	const frames = 64
	in := [][]float32{make([]float32, frames), make([]float32, frames)}
	out := [][]float32{make([]float32, frames), make([]float32, frames)}
	for ch := range in {
		for i := range in[ch] {
			in[ch][i] = 1.0
		}
	}

	a.SetSampleRate(48000)
	a.Process(in, out, frames)

	for ch := range out {
		for i, v := range out[ch] {
			if v != 0.5 {
				t.Fatalf("out[%d][%d] = %v, want 0.5", ch, i, v)
			}
		}
	}
	a.Reset()
}
