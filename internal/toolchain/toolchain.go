// Package toolchain determines which Rust toolchain channel a project
// pins, so the same channel can be activated on the remote host.
package toolchain

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	logging "gopkg.in/op/go-logging.v1"
)

var log = logging.MustGetLogger("toolchain")

// Spec is the resolved toolchain requirement. An empty Channel means
// "unspecified": the remote default toolchain governs and no +channel
// prefix or install step is emitted.
type Spec struct {
	Channel string
}

// Unspecified reports whether the remote default toolchain applies.
func (s Spec) Unspecified() bool { return s.Channel == "" }

// ParseError marks a toolchain declaration file that exists but cannot
// be read as a channel string. Absence of the files is never an error.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("toolchain declaration %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

type toolchainFile struct {
	Toolchain struct {
		Channel string `toml:"channel"`
	} `toml:"toolchain"`
}

// Resolve inspects the project root once per invocation. Precedence:
// explicit +override > rust-toolchain.toml > rust-toolchain > unspecified.
func Resolve(root, override string) (Spec, error) {
	if c := strings.TrimSpace(override); c != "" {
		log.Debug("toolchain %s from +override", c)
		return Spec{Channel: c}, nil
	}

	tomlPath := filepath.Join(root, "rust-toolchain.toml")
	if data, err := os.ReadFile(tomlPath); err == nil {
		var tf toolchainFile
		if err := toml.Unmarshal(data, &tf); err != nil {
			return Spec{}, &ParseError{Path: tomlPath, Err: err}
		}
		if c := strings.TrimSpace(tf.Toolchain.Channel); c != "" {
			log.Debug("toolchain %s from rust-toolchain.toml", c)
			return Spec{Channel: c}, nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return Spec{}, &ParseError{Path: tomlPath, Err: err}
	}

	plainPath := filepath.Join(root, "rust-toolchain")
	if data, err := os.ReadFile(plainPath); err == nil {
		c := strings.TrimSpace(string(data))
		if c == "" || strings.ContainsAny(c, " \n") {
			return Spec{}, &ParseError{Path: plainPath, Err: fmt.Errorf("not a channel string: %q", c)}
		}
		log.Debug("toolchain %s from rust-toolchain", c)
		return Spec{Channel: c}, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return Spec{}, &ParseError{Path: plainPath, Err: err}
	}

	return Spec{}, nil
}
