// Package tunnel manages local→remote port forwards for interactive
// remote sessions. Forwards ride the session's own ssh process, so their
// lifetime is exactly the remote process's lifetime; this package's job
// is parsing, preflight and argument generation.
package tunnel

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ForwardSpec maps a local listening port to a remote endpoint port.
type ForwardSpec struct {
	LocalPort  uint16
	RemotePort uint16
}

func (f ForwardSpec) String() string {
	return fmt.Sprintf("%d:%d", f.LocalPort, f.RemotePort)
}

// BindError reports a local port that cannot be bound. Raised before the
// remote command is ever launched: a partially tunneled session is
// unsafe to continue.
type BindError struct {
	Port uint16
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("cannot bind local port %d: %v", e.Port, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// ParseSpec accepts "port" (same port both sides) or "local:remote".
func ParseSpec(s string) (ForwardSpec, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	switch len(parts) {
	case 1:
		p, err := parsePort(parts[0])
		if err != nil {
			return ForwardSpec{}, fmt.Errorf("invalid port forward %q: %w", s, err)
		}
		return ForwardSpec{LocalPort: p, RemotePort: p}, nil
	case 2:
		lp, err := parsePort(parts[0])
		if err != nil {
			return ForwardSpec{}, fmt.Errorf("invalid port forward %q: %w", s, err)
		}
		rp, err := parsePort(parts[1])
		if err != nil {
			return ForwardSpec{}, fmt.Errorf("invalid port forward %q: %w", s, err)
		}
		return ForwardSpec{LocalPort: lp, RemotePort: rp}, nil
	default:
		return ForwardSpec{}, fmt.Errorf("invalid port forward %q (use PORT or LOCAL:REMOTE)", s)
	}
}

// ParseSpecs parses every spec, preserving order.
func ParseSpecs(items []string) ([]ForwardSpec, error) {
	if len(items) == 0 {
		return nil, nil
	}
	out := make([]ForwardSpec, 0, len(items))
	for _, item := range items {
		spec, err := ParseSpec(item)
		if err != nil {
			return nil, err
		}
		out = append(out, spec)
	}
	return out, nil
}

// Preflight probes each local port so a conflict surfaces before the
// remote command starts. The probe listeners are closed immediately; the
// session's ssh process takes the real bind moments later.
func Preflight(specs []ForwardSpec) error {
	for _, spec := range specs {
		l, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(int(spec.LocalPort))))
		if err != nil {
			return &BindError{Port: spec.LocalPort, Err: err}
		}
		_ = l.Close()
	}
	return nil
}

// SSHArgs renders the -L directives for the session's ssh invocation.
func SSHArgs(specs []ForwardSpec) []string {
	args := make([]string, 0, 2*len(specs))
	for _, spec := range specs {
		args = append(args, "-L", fmt.Sprintf("%d:localhost:%d", spec.LocalPort, spec.RemotePort))
	}
	return args
}

func parsePort(s string) (uint16, error) {
	p, err := strconv.ParseUint(strings.TrimSpace(s), 10, 16)
	if err != nil {
		return 0, err
	}
	if p == 0 {
		return 0, fmt.Errorf("port must be 1-65535")
	}
	return uint16(p), nil
}
