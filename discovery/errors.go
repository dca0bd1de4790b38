package discovery

import (
	"fmt"
	"strings"
)

// BuildError reports a failed module build. Output carries the compiler's
// combined stdout/stderr so the user sees the actual diagnostic.
type BuildError struct {
	Command []string
	Output  string
	Err     error
}

func (e *BuildError) Error() string {
	msg := fmt.Sprintf("module build failed (%s): %v", strings.Join(e.Command, " "), e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += "\n" + out
	}
	return msg
}

func (e *BuildError) Unwrap() error { return e.Err }

// ExtractionError reports that a built artifact could not yield its metadata
// listings, e.g. a missing discovery symbol or malformed JSON.
type ExtractionError struct {
	Artifact string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("metadata extraction from %s failed: %v", e.Artifact, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }
