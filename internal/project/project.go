// Package project inspects the local Cargo project the pipeline acts on.
package project

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// RemoteRoot is the directory on the remote host under which project
// mirrors live. The contract is <RemoteRoot>/<project-name>.
const RemoteRoot = "/tmp/cargo-offload"

// Project describes the local project root. Name is the base name of
// the root directory; it determines the remote mirror path.
type Project struct {
	Root        string
	Name        string
	Package     string
	IsWorkspace bool
}

type cargoManifest struct {
	Package struct {
		Name string `toml:"name"`
	} `toml:"package"`
	Workspace *struct {
		Members []string `toml:"members"`
	} `toml:"workspace"`
}

// Load validates that root is a Cargo project and reads the manifest
// facts the pipeline needs. Nothing runs against the remote host before
// this check passes.
func Load(root string) (*Project, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	manifestPath := filepath.Join(abs, "Cargo.toml")
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("not in a Rust project directory (Cargo.toml not found in %s)", abs)
		}
		return nil, err
	}
	var m cargoManifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", manifestPath, err)
	}
	return &Project{
		Root:        abs,
		Name:        filepath.Base(abs),
		Package:     m.Package.Name,
		IsWorkspace: m.Workspace != nil,
	}, nil
}

// MirrorDir is the deterministic remote path the project syncs to.
func (p *Project) MirrorDir() string {
	return RemoteRoot + "/" + p.Name
}
