// Package remotecmd turns structured operations into single shell
// command lines safe to hand to the remote login shell. Everything here
// is pure string construction: no I/O, no network state, so identical
// inputs always yield byte-identical commands.
package remotecmd

import (
	"strings"

	"github.com/alessio/shellescape"
)

// Command is the structured form of one remote cargo invocation.
type Command struct {
	// Dir is the remote mirror directory the command runs in.
	Dir string
	// Toolchain is the channel activated with a +prefix; empty means
	// the remote default toolchain and no prefix.
	Toolchain string
	// Subcommand is the cargo subcommand: build, test, clippy, run.
	Subcommand string
	// Target is the target triple passed via --target.
	Target string
	// Release selects the release profile; debug is cargo's implicit
	// default and gets no flag.
	Release bool
	// Bin and Example select a specific binary or example target.
	Bin     string
	Example string
	// ExtraArgs are additional build-tool arguments, kept before the
	// separator in the order given.
	ExtraArgs []string
	// Passthrough args land after a single literal "--". The separator
	// is emitted if and only if Passthrough is non-empty.
	Passthrough []string
	// Env holds ordered KEY=VALUE assignments prefixed to the cargo
	// invocation, values escaped so the remote shell preserves them.
	Env []string
}

// String renders the one-line shell command. Order: cd, environment
// assignments, cargo with optional +toolchain, subcommand, build-tool
// flags, extra args, then "-- passthrough" last.
func (c Command) String() string {
	parts := []string{"cd", shellescape.Quote(c.Dir), "&&"}
	parts = append(parts, quoteEnv(c.Env)...)
	parts = append(parts, "cargo")
	if c.Toolchain != "" {
		parts = append(parts, "+"+c.Toolchain)
	}
	parts = append(parts, c.Subcommand)
	if c.Target != "" {
		parts = append(parts, "--target", c.Target)
	}
	if c.Release {
		parts = append(parts, "--release")
	}
	if c.Bin != "" {
		parts = append(parts, "--bin", shellescape.Quote(c.Bin))
	} else if c.Example != "" {
		parts = append(parts, "--example", shellescape.Quote(c.Example))
	}
	for _, a := range c.ExtraArgs {
		parts = append(parts, shellescape.Quote(a))
	}
	if len(c.Passthrough) > 0 {
		parts = append(parts, "--")
		for _, a := range c.Passthrough {
			parts = append(parts, shellescape.Quote(a))
		}
	}
	return strings.Join(parts, " ")
}

// quoteEnv escapes each assignment's value at the first '='. Items
// without '=' pass through untouched.
func quoteEnv(env []string) []string {
	out := make([]string, 0, len(env))
	for _, item := range env {
		eq := strings.Index(item, "=")
		if eq < 0 {
			out = append(out, item)
			continue
		}
		out = append(out, item[:eq+1]+shellescape.Quote(item[eq+1:]))
	}
	return out
}

// Mkdir creates the remote mirror directory ahead of the first sync.
func Mkdir(dir string) string {
	return "mkdir -p " + shellescape.Quote(dir)
}

// RemoveDir deletes the remote mirror (the clean path).
func RemoveDir(dir string) string {
	return "rm -rf " + shellescape.Quote(dir)
}

// ToolchainInstall installs the channel on the remote host. rustup makes
// this idempotent: an installed channel is a fast no-op.
func ToolchainInstall(dir, channel string) string {
	return "cd " + shellescape.Quote(dir) + " && rustup toolchain install " + shellescape.Quote(channel)
}

// ToolchainList reports the channels present on the remote host, used to
// verify an install actually took effect.
func ToolchainList() string {
	return "rustup toolchain list"
}

// TargetAdd ensures the target triple is installed for the active channel.
func TargetAdd(dir, target, channel string) string {
	cmd := "cd " + shellescape.Quote(dir) + " && rustup target add " + shellescape.Quote(target)
	if channel != "" {
		cmd += " --toolchain " + shellescape.Quote(channel)
	}
	return cmd
}

// ToolchainAdmin passes arbitrary rustup toolchain subcommands through.
func ToolchainAdmin(args []string) string {
	if len(args) == 0 {
		return "rustup toolchain list"
	}
	return "rustup toolchain " + shellescape.QuoteCommand(args)
}

// ListArtifacts prints "name<TAB>octal-mode" for every direct child file
// of the remote build-output directory.
func ListArtifacts(dir string) string {
	return "find " + shellescape.Quote(dir) + " -maxdepth 1 -type f -printf '%f\\t%#m\\n'"
}

// ListArtifactTree is the copy-all variant: the whole subtree, paths
// relative to the output directory.
func ListArtifactTree(dir string) string {
	return "find " + shellescape.Quote(dir) + " -type f -printf '%P\\t%#m\\n'"
}
