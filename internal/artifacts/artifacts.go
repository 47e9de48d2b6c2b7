// Package artifacts discovers build output on the remote host and brings
// it back to the local mirror directory, one concurrent transfer per file.
package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	logging "gopkg.in/op/go-logging.v1"

	"github.com/antonkrylov/cargo-offload/internal/remotecmd"
)

var log = logging.MustGetLogger("artifacts")

// Artifact is one discovered build-output file, relative to the remote
// profile directory, tagged with its remote executable bit.
type Artifact struct {
	RelPath    string
	Executable bool
}

// TransferError aggregates every artifact copy that failed. Artifacts
// that succeeded stay on disk: partial results are independently useful.
type TransferError struct {
	Failures *multierror.Error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("artifact transfer failed: %v", e.Failures)
}

func (e *TransferError) Unwrap() error { return e.Failures }

// remote runs a command on the remote host with captured output.
type remote interface {
	Output(ctx context.Context, command string) ([]byte, error)
}

// copier moves one file from the remote output directory into the local
// one, preserving relative structure.
type copier interface {
	CopyFile(ctx context.Context, remoteDir, localDir, relPath string) error
	ArtifactExcludes() []string
}

// Engine is the artifact transfer stage of one invocation.
type Engine struct {
	Remote remote
	Copier copier
	// CopyAll copies the whole output subtree instead of direct children.
	CopyAll bool
}

// Plan lists the remote output directory and builds a fresh transfer
// plan: direct children only by default, the full subtree with CopyAll.
func (e *Engine) Plan(ctx context.Context, remoteDir string) ([]Artifact, error) {
	list := remotecmd.ListArtifacts(remoteDir)
	if e.CopyAll {
		list = remotecmd.ListArtifactTree(remoteDir)
	}
	out, err := e.Remote.Output(ctx, list)
	if err != nil {
		return nil, fmt.Errorf("discover artifacts: %w", err)
	}
	plan, err := parsePlan(string(out), e.Copier.ArtifactExcludes())
	if err != nil {
		return nil, err
	}
	log.Debug("discovered %d artifact(s) under %s", len(plan), remoteDir)
	return plan, nil
}

// parsePlan reads "path<TAB>octal-mode" lines as printed by find.
func parsePlan(out string, excludes []string) ([]Artifact, error) {
	var plan []Artifact
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name, modeStr, ok := strings.Cut(line, "\t")
		if !ok {
			return nil, fmt.Errorf("unexpected artifact listing line %q", line)
		}
		if excluded(name, excludes) {
			continue
		}
		mode, err := strconv.ParseUint(modeStr, 8, 32)
		if err != nil {
			return nil, fmt.Errorf("unexpected artifact mode %q for %s", modeStr, name)
		}
		plan = append(plan, Artifact{RelPath: name, Executable: mode&0o100 != 0})
	}
	sort.Slice(plan, func(i, j int) bool { return plan[i].RelPath < plan[j].RelPath })
	return plan, nil
}

func excluded(relPath string, patterns []string) bool {
	base := filepath.Base(relPath)
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, base); ok {
			return true
		}
	}
	return false
}

// Transfer copies every planned artifact concurrently and waits for all
// of them. A failing copy never cancels its siblings; all outcomes are
// collected and failures reported together.
func (e *Engine) Transfer(ctx context.Context, remoteDir, localDir string, plan []Artifact) error {
	if len(plan) == 0 {
		return nil
	}
	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return err
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs *multierror.Error
	)
	for _, a := range plan {
		wg.Add(1)
		go func(a Artifact) {
			defer wg.Done()
			if err := e.fetch(ctx, remoteDir, localDir, a); err != nil {
				mu.Lock()
				errs = multierror.Append(errs, fmt.Errorf("%s: %w", a.RelPath, err))
				mu.Unlock()
			}
		}(a)
	}
	wg.Wait()

	if errs.ErrorOrNil() != nil {
		return &TransferError{Failures: errs}
	}
	log.Info("copied %d artifact(s) to %s", len(plan), localDir)
	return nil
}

func (e *Engine) fetch(ctx context.Context, remoteDir, localDir string, a Artifact) error {
	if err := e.Copier.CopyFile(ctx, remoteDir, localDir, a.RelPath); err != nil {
		return err
	}
	if a.Executable {
		return os.Chmod(filepath.Join(localDir, a.RelPath), 0o755)
	}
	return nil
}
