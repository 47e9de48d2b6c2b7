package engine

import (
	"fmt"
	"strings"
)

// MirrorError reports that the remote mirror directory could not be
// prepared before the first sync. An unreachable host surfaces here, so
// callers must treat this as infrastructure even when the wrapped error
// carries the ssh process's own exit code.
type MirrorError struct {
	Err error
}

func (e *MirrorError) Error() string {
	return fmt.Sprintf("prepare remote mirror: %v", e.Err)
}

func (e *MirrorError) Unwrap() error { return e.Err }

// ToolchainError reports a remote toolchain that could not be installed
// or verified. Distinct from a failing build: this is infrastructure.
type ToolchainError struct {
	Channel string
	Err     error
}

func (e *ToolchainError) Error() string {
	return fmt.Sprintf("toolchain %s: %v", e.Channel, e.Err)
}

func (e *ToolchainError) Unwrap() error { return e.Err }

// AmbiguousBinaryError means run-local found several executables and no
// --bin selector to choose between them.
type AmbiguousBinaryError struct {
	Candidates []string
}

func (e *AmbiguousBinaryError) Error() string {
	return fmt.Sprintf("multiple binaries found (%s); use --bin to pick one",
		strings.Join(e.Candidates, ", "))
}

// LocalExitError propagates the exit status of the locally executed
// binary so the CLI can exit with the same code.
type LocalExitError struct {
	ExitCode int
}

func (e *LocalExitError) Error() string {
	return fmt.Sprintf("local process exited with code %d", e.ExitCode)
}
