package toolchain

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func write(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestResolveOverrideWins(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "rust-toolchain.toml", "[toolchain]\nchannel = \"1.81.0\"\n")
	spec, err := Resolve(dir, "nightly")
	if err != nil {
		t.Fatal(err)
	}
	if spec.Channel != "nightly" {
		t.Errorf("override should win, got %q", spec.Channel)
	}
}

func TestResolveTomlFile(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "rust-toolchain.toml", "[toolchain]\nchannel = \"1.81.0\"\ncomponents = [\"clippy\"]\n")
	write(t, dir, "rust-toolchain", "stable\n")
	spec, err := Resolve(dir, "")
	if err != nil {
		t.Fatal(err)
	}
	if spec.Channel != "1.81.0" {
		t.Errorf("rust-toolchain.toml should win over rust-toolchain, got %q", spec.Channel)
	}
}

func TestResolvePlainFile(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "rust-toolchain", "nightly-2025-06-01\n")
	spec, err := Resolve(dir, "")
	if err != nil {
		t.Fatal(err)
	}
	if spec.Channel != "nightly-2025-06-01" {
		t.Errorf("got %q", spec.Channel)
	}
}

func TestResolveUnspecified(t *testing.T) {
	spec, err := Resolve(t.TempDir(), "")
	if err != nil {
		t.Fatal(err)
	}
	if !spec.Unspecified() {
		t.Errorf("expected unspecified, got %q", spec.Channel)
	}
}

func TestResolveMalformed(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "rust-toolchain.toml", "[toolchain\nchannel =\n")
	_, err := Resolve(dir, "")
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ParseError, got %v", err)
	}

	dir = t.TempDir()
	write(t, dir, "rust-toolchain", "not a single channel token\n")
	if _, err := Resolve(dir, ""); !errors.As(err, &perr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
}
