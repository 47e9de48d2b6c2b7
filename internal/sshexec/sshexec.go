// Package sshexec is the process boundary to the remote shell. It wraps
// the external ssh binary; one Client per invocation owns a ControlMaster
// socket so every stage (sync, toolchain, build, artifact copies)
// multiplexes a single authenticated connection.
package sshexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	logging "gopkg.in/op/go-logging.v1"

	"github.com/antonkrylov/cargo-offload/internal/hostspec"
)

var log = logging.MustGetLogger("sshexec")

// stderrTailBytes bounds how much remote stderr a RemoteExitError carries.
const stderrTailBytes = 4096

// RemoteExitError reports a remote command that ran and exited non-zero.
// For builds and tests this is an expected outcome, not an infrastructure
// defect; the tail of remote stderr is preserved verbatim.
type RemoteExitError struct {
	Command    string
	ExitCode   int
	StderrTail string
}

func (e *RemoteExitError) Error() string {
	if e.StderrTail != "" {
		return fmt.Sprintf("remote command exited with code %d: %s\n%s", e.ExitCode, e.Command, e.StderrTail)
	}
	return fmt.Sprintf("remote command exited with code %d: %s", e.ExitCode, e.Command)
}

// Client runs commands on one remote host for the duration of one
// invocation. Close releases the shared connection.
type Client struct {
	host        hostspec.RemoteHost
	extraOpts   []string
	controlPath string
}

// NewClient prepares a client for the host. extraOpts come from the
// config context's sshOptions and are appended to every invocation.
func NewClient(host hostspec.RemoteHost, extraOpts []string) *Client {
	sock := fmt.Sprintf("offload-%s.sock", uuid.NewString()[:8])
	return &Client{
		host:        host,
		extraOpts:   extraOpts,
		controlPath: filepath.Join(os.TempDir(), sock),
	}
}

// Host returns the resolved endpoint the client talks to.
func (c *Client) Host() hostspec.RemoteHost { return c.host }

// ControlOptions exposes the multiplexing options so sibling transports
// (rsync's ssh transport) ride the same master connection.
func (c *Client) ControlOptions() []string {
	return []string{
		"-o", "ControlMaster=auto",
		"-o", "ControlPath=" + c.controlPath,
		"-o", "ControlPersist=60s",
	}
}

func (c *Client) baseArgs() []string {
	args := []string{"-p", strconv.Itoa(int(c.host.Port))}
	args = append(args, c.ControlOptions()...)
	args = append(args,
		"-o", "ServerAliveInterval=10",
		"-o", "ServerAliveCountMax=3",
		"-o", "ConnectTimeout=10",
	)
	args = append(args, c.extraOpts...)
	return args
}

// Close tears down the ControlMaster connection. Safe to call when the
// master was never established.
func (c *Client) Close() {
	cmd := exec.Command("ssh",
		"-o", "ControlPath="+c.controlPath,
		"-O", "exit",
		c.host.Target(),
	)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	_ = cmd.Run()
}

// Output runs the command non-interactively with captured output.
// Output is only printed back to the developer if the command fails.
func (c *Client) Output(ctx context.Context, command string) ([]byte, error) {
	args := append(c.baseArgs(), c.host.Target(), command)
	log.Debug("ssh (captured): %s", command)

	cmd := exec.CommandContext(ctx, "ssh", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		_, _ = os.Stdout.Write(stdout.Bytes())
		_, _ = os.Stderr.Write(stderr.Bytes())
		return stdout.Bytes(), &RemoteExitError{
			Command:    command,
			ExitCode:   exitErr.ExitCode(),
			StderrTail: tail(stderr.Bytes(), stderrTailBytes),
		}
	}
	return nil, fmt.Errorf("ssh: %w", err)
}

// Run executes the command with stdout/stderr streamed live to the local
// terminal, blocking until remote exit. The stderr stream is teed so a
// failure still carries its tail.
func (c *Client) Run(ctx context.Context, command string) error {
	args := append(c.baseArgs(), c.host.Target(), command)
	log.Debug("ssh (streamed): %s", command)

	var stderrTail tailBuffer
	cmd := exec.CommandContext(ctx, "ssh", args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = io.MultiWriter(os.Stderr, &stderrTail)
	// On cancellation ask ssh to terminate gracefully so the remote side
	// gets a hangup before we exit.
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = 5 * time.Second

	err := cmd.Run()
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &RemoteExitError{
			Command:    command,
			ExitCode:   exitErr.ExitCode(),
			StderrTail: stderrTail.String(),
		}
	}
	return fmt.Errorf("ssh: %w", err)
}

func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return strings.TrimSpace(string(b))
}

// tailBuffer keeps the last stderrTailBytes written through it.
type tailBuffer struct {
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > stderrTailBytes {
		t.buf = t.buf[len(t.buf)-stderrTailBytes:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return strings.TrimSpace(string(t.buf))
}
