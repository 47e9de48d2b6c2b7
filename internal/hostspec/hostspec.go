// Package hostspec resolves the SSH target a pipeline invocation talks to.
package hostspec

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// EnvHost is the environment default consulted when no --host flag is given.
const EnvHost = "CARGO_OFFLOAD_HOST"

// DefaultPort is the SSH port used when neither the flag nor the host
// string carries one.
const DefaultPort uint16 = 22

// ErrHostRequired indicates that no usable hostname could be determined
// from the flag, the environment or the config file.
var ErrHostRequired = errors.New("host is required (use --host, " + EnvHost + " or set host in the config context)")

// RemoteHost is the resolved SSH endpoint. Immutable once resolved; the
// engine threads it by value through every pipeline stage.
type RemoteHost struct {
	User     string
	Hostname string
	Port     uint16
}

// Target renders the destination the ssh and rsync binaries expect,
// i.e. "user@host" or just "host". The port travels separately (-p / -e).
func (h RemoteHost) Target() string {
	if h.User != "" {
		return h.User + "@" + h.Hostname
	}
	return h.Hostname
}

func (h RemoteHost) String() string {
	return fmt.Sprintf("%s:%d", h.Target(), h.Port)
}

// Resolve produces exactly one RemoteHost. Precedence for the host
// string: flag > environment > config context. A non-zero flagPort
// overrides any port embedded in the host string.
func Resolve(flagHost string, flagPort uint16, configHost string) (RemoteHost, error) {
	hostStr := strings.TrimSpace(flagHost)
	if hostStr == "" {
		hostStr = strings.TrimSpace(os.Getenv(EnvHost))
	}
	if hostStr == "" {
		hostStr = strings.TrimSpace(configHost)
	}
	if hostStr == "" {
		return RemoteHost{}, ErrHostRequired
	}

	host, err := Parse(hostStr)
	if err != nil {
		return RemoteHost{}, err
	}
	if flagPort != 0 {
		host.Port = flagPort
	}
	return host, nil
}

// Parse splits "user@host[:port]" into its parts. A trailing ":<n>" is
// only treated as a port when <n> parses as one; anything else stays
// part of the hostname.
func Parse(s string) (RemoteHost, error) {
	h := RemoteHost{Port: DefaultPort}

	rest := s
	if at := strings.Index(rest, "@"); at >= 0 {
		h.User = rest[:at]
		rest = rest[at+1:]
	}
	if colon := strings.LastIndex(rest, ":"); colon >= 0 {
		if port, err := strconv.ParseUint(rest[colon+1:], 10, 16); err == nil && port > 0 {
			h.Port = uint16(port)
			rest = rest[:colon]
		}
	}
	if strings.TrimSpace(rest) == "" {
		return RemoteHost{}, fmt.Errorf("invalid host %q: empty hostname", s)
	}
	h.Hostname = rest
	return h, nil
}
