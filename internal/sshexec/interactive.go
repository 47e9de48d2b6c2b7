package sshexec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/creack/pty"
	"golang.org/x/term"
)

// Interactive runs the command on the remote host with a pseudo-terminal
// and bridges it to the local terminal for the lifetime of the remote
// process. forwardArgs are ssh port-forward directives; they are bound to
// this session, so the forwards drop the moment the session ends on any
// exit path.
func (c *Client) Interactive(ctx context.Context, command string, forwardArgs []string) error {
	args := c.baseArgs()
	if len(forwardArgs) > 0 {
		// A partially tunneled session is unsafe to continue.
		args = append(args, "-o", "ExitOnForwardFailure=yes")
		args = append(args, forwardArgs...)
	}
	args = append(args, "-t", c.host.Target(), command)
	log.Debug("ssh (interactive): %s", command)

	cmd := exec.CommandContext(ctx, "ssh", args...)
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = 5 * time.Second

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return fmt.Errorf("ssh: %w", err)
	}
	defer func() { _ = ptmx.Close() }()

	// Seed the PTY size from the terminal the user is looking at and
	// track resizes; a 0x0 remote terminal breaks progress bars and
	// full-screen programs.
	resize := func() {
		if cols, rows, err := term.GetSize(int(os.Stdout.Fd())); err == nil && cols > 0 && rows > 0 {
			_ = pty.Setsize(ptmx, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
		}
	}
	if term.IsTerminal(int(os.Stdout.Fd())) {
		resize()
	}
	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, syscall.SIGWINCH)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			resize()
		}
	}()

	// Raw mode so keystrokes (line editors, ^C for the remote process)
	// travel through unmodified.
	if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
		oldState, rawErr := term.MakeRaw(fd)
		if rawErr == nil {
			defer func() { _ = term.Restore(fd, oldState) }()
		}
	}

	// Local stdin feeds the remote PTY; remote output (stdout and stderr
	// arrive merged on the PTY) streams back unbuffered.
	go func() {
		_, _ = io.Copy(ptmx, os.Stdin)
	}()
	_, _ = io.Copy(os.Stdout, ptmx) // ends with EIO when the PTY closes

	err = cmd.Wait()
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &RemoteExitError{Command: command, ExitCode: exitErr.ExitCode()}
	}
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return ctx.Err()
	}
	return fmt.Errorf("ssh: %w", err)
}
