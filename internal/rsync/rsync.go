// Package rsync is the process boundary to the delta-copy transport.
// The engine never moves bytes itself: it composes rsync invocations
// whose ssh transport rides the invocation's ControlMaster connection.
package rsync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/alessio/shellescape"
	logging "gopkg.in/op/go-logging.v1"

	"github.com/antonkrylov/cargo-offload/internal/sshexec"
)

var log = logging.MustGetLogger("rsync")

const progressFlag = "--info=progress2"

// sourceExclusions never cross the network on the outbound sync.
var sourceExclusions = []string{"target/", ".git/", "*.swp", "*.tmp", ".cargo/"}

// artifactExclusions keep cargo's bookkeeping files out of the
// copy-back. The bulky build/, deps/ and incremental/ directories are
// excluded structurally: default discovery only sees direct children of
// the profile directory, and CopyAll deliberately includes them.
var artifactExclusions = []string{".cargo-lock", "*.d"}

// SyncError reports a transfer process that exited non-zero, with the
// exit code and the transport's last diagnostic line.
type SyncError struct {
	ExitCode   int
	Diagnostic string
}

func (e *SyncError) Error() string {
	if e.Diagnostic != "" {
		return fmt.Sprintf("rsync exited with code %d: %s", e.ExitCode, e.Diagnostic)
	}
	return fmt.Sprintf("rsync exited with code %d", e.ExitCode)
}

// Runner issues transfers between the local tree and one remote host.
type Runner struct {
	target    string
	shellCmd  string
	extraArgs []string
	// CopyAll disables the build-output exclusions in both directions.
	CopyAll bool
}

// NewRunner builds a runner whose transfers tunnel over the client's
// multiplexed ssh connection. extraArgs come from the config context's
// rsyncOptions.
func NewRunner(client *sshexec.Client, extraArgs []string) *Runner {
	host := client.Host()
	shell := []string{"ssh", "-p", strconv.Itoa(int(host.Port))}
	shell = append(shell, client.ControlOptions()...)
	// rsync word-splits the -e string itself; the ControlPath lives
	// under the temp dir, which may contain spaces.
	for i, tok := range shell {
		shell[i] = shellescape.Quote(tok)
	}
	return &Runner{
		target:    host.Target(),
		shellCmd:  strings.Join(shell, " "),
		extraArgs: extraArgs,
	}
}

func (r *Runner) baseArgs() []string {
	args := []string{"-a", "--compress", "-e", r.shellCmd}
	args = append(args, r.extraArgs...)
	return args
}

// SyncSource mirrors the local project tree to the remote directory,
// deleting remote files that vanished locally. Only changed bytes move,
// so re-running with no local changes is a metadata-only negotiation.
func (r *Runner) SyncSource(ctx context.Context, localRoot, remoteDir string) error {
	log.Info("syncing source to %s:%s", r.target, remoteDir)
	return r.run(ctx, r.syncArgs(localRoot, remoteDir), true)
}

func (r *Runner) syncArgs(localRoot, remoteDir string) []string {
	args := append(r.baseArgs(), "--delete", progressFlag)
	if !r.CopyAll {
		for _, e := range sourceExclusions {
			args = append(args, "--exclude="+e)
		}
	}
	return append(args, localRoot+"/", r.target+":"+remoteDir+"/")
}

// CopyFile retrieves one artifact. relPath is interpreted against both
// directories and its structure is preserved locally (--relative), so
// "examples/demo" lands under <localDir>/examples/. Runs quietly: the
// artifact engine issues these concurrently.
func (r *Runner) CopyFile(ctx context.Context, remoteDir, localDir, relPath string) error {
	log.Debug("copying artifact %s", relPath)
	return r.run(ctx, r.copyArgs(remoteDir, localDir, relPath), false)
}

func (r *Runner) copyArgs(remoteDir, localDir, relPath string) []string {
	args := append(r.baseArgs(), "--relative")
	return append(args, r.target+":"+remoteDir+"/./"+relPath, localDir+"/")
}

func (r *Runner) run(ctx context.Context, args []string, stream bool) error {
	cmd := exec.CommandContext(ctx, "rsync", args...)
	var stderr bytes.Buffer
	if stream {
		cmd.Stdout = os.Stdout
		cmd.Stderr = io.MultiWriter(os.Stderr, &stderr)
	} else {
		cmd.Stdout = io.Discard
		cmd.Stderr = &stderr
	}
	err := cmd.Run()
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &SyncError{ExitCode: exitErr.ExitCode(), Diagnostic: lastLine(stderr.Bytes())}
	}
	return fmt.Errorf("rsync: %w", err)
}

// ArtifactExcludes returns the copy-back exclusion patterns honoring
// CopyAll, matched by the artifact engine against discovered paths.
func (r *Runner) ArtifactExcludes() []string {
	if r.CopyAll {
		return nil
	}
	return append([]string(nil), artifactExclusions...)
}

func lastLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}
