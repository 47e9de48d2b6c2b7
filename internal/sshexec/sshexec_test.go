package sshexec

import (
	"strings"
	"testing"

	"github.com/antonkrylov/cargo-offload/internal/hostspec"
)

func TestBaseArgsCarryPortAndControlPath(t *testing.T) {
	host := hostspec.RemoteHost{User: "alice", Hostname: "build-host", Port: 2222}
	c := NewClient(host, []string{"-o", "BatchMode=yes"})

	args := strings.Join(c.baseArgs(), " ")
	if !strings.Contains(args, "-p 2222") {
		t.Errorf("missing port: %q", args)
	}
	if !strings.Contains(args, "ControlPath="+c.controlPath) {
		t.Errorf("missing control path: %q", args)
	}
	if !strings.Contains(args, "ControlMaster=auto") || !strings.Contains(args, "ControlPersist=60s") {
		t.Errorf("missing multiplexing options: %q", args)
	}
	if !strings.HasSuffix(args, "-o BatchMode=yes") {
		t.Errorf("config options must come last: %q", args)
	}
}

func TestControlPathsAreUnique(t *testing.T) {
	host := hostspec.RemoteHost{Hostname: "h", Port: 22}
	a := NewClient(host, nil)
	b := NewClient(host, nil)
	if a.controlPath == b.controlPath {
		t.Fatalf("two invocations share a control socket: %q", a.controlPath)
	}
}

func TestTailBufferKeepsLastBytes(t *testing.T) {
	var tb tailBuffer
	for i := 0; i < 100; i++ {
		if _, err := tb.Write([]byte(strings.Repeat("x", 100))); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if _, err := tb.Write([]byte("error: linking failed\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	got := tb.String()
	if len(got) > stderrTailBytes {
		t.Errorf("tail exceeds bound: %d bytes", len(got))
	}
	if !strings.HasSuffix(got, "error: linking failed") {
		t.Errorf("tail lost the final line: %q", got[len(got)-40:])
	}
}

func TestRemoteExitErrorMessage(t *testing.T) {
	err := &RemoteExitError{Command: "cargo build", ExitCode: 101, StderrTail: "error[E0308]"}
	msg := err.Error()
	if !strings.Contains(msg, "101") || !strings.Contains(msg, "error[E0308]") {
		t.Errorf("unhelpful message: %q", msg)
	}
}
