package main

import (
	"reflect"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

// commandForTest wires a subcommand under a root carrying the
// persistent flags, the way Execute does.
func commandForTest(t *testing.T, name string) (*rootOptions, *cobra.Command) {
	t.Helper()
	opts := &rootOptions{}
	root := newRootCmd(opts)
	for _, c := range root.Commands() {
		if c.Name() == name {
			return opts, c
		}
	}
	t.Fatalf("no %q command", name)
	return nil, nil
}

func TestParseCargoArgsForwardsUnknownFlags(t *testing.T) {
	_, cmd := commandForTest(t, "build")
	cargo, pass, help, err := parseCargoArgs(cmd, []string{"--features", "tls", "-j4", "--release", "--bin", "server"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if help {
		t.Fatal("help requested unexpectedly")
	}
	if want := []string{"--features", "tls", "-j4"}; !reflect.DeepEqual(cargo, want) {
		t.Errorf("cargo args = %v, want %v", cargo, want)
	}
	if pass != nil {
		t.Errorf("passthrough = %v, want none", pass)
	}
	if v, _ := cmd.Flags().GetBool("release"); !v {
		t.Error("--release not recognized")
	}
	if v, _ := cmd.Flags().GetString("bin"); v != "server" {
		t.Errorf("--bin = %q, want server", v)
	}
}

func TestParseCargoArgsRecognizesPersistentFlags(t *testing.T) {
	opts, cmd := commandForTest(t, "test")
	cargo, _, _, err := parseCargoArgs(cmd, []string{"--host", "alice@box", "-e", "RUST_LOG=debug", "--no-default-features"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opts.host != "alice@box" {
		t.Errorf("host = %q, want alice@box", opts.host)
	}
	if len(opts.envVars) != 1 || opts.envVars[0] != "RUST_LOG=debug" {
		t.Errorf("env = %v", opts.envVars)
	}
	if want := []string{"--no-default-features"}; !reflect.DeepEqual(cargo, want) {
		t.Errorf("cargo args = %v, want %v", cargo, want)
	}
}

func TestParseCargoArgsPassthroughAfterDash(t *testing.T) {
	_, cmd := commandForTest(t, "run")
	cargo, pass, _, err := parseCargoArgs(cmd, []string{"--release", "--", "--port", "8080"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cargo != nil {
		t.Errorf("cargo args = %v, want none", cargo)
	}
	if want := []string{"--port", "8080"}; !reflect.DeepEqual(pass, want) {
		t.Errorf("passthrough = %v, want %v", pass, want)
	}
}

func TestBuildRejectsPassthrough(t *testing.T) {
	_, cmd := commandForTest(t, "build")
	err := cmd.RunE(cmd, []string{"--", "--port", "8080"})
	if err == nil || !strings.Contains(err.Error(), "--") {
		t.Fatalf("expected a rejection naming the separator, got %v", err)
	}
}
