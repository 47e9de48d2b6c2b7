package remotecmd

import (
	"strings"
	"testing"
)

func TestCommandString(t *testing.T) {
	cmd := Command{
		Dir:        "/tmp/cargo-offload/webserver",
		Toolchain:  "nightly",
		Subcommand: "build",
		Target:     "x86_64-unknown-linux-gnu",
		Release:    true,
	}
	want := "cd /tmp/cargo-offload/webserver && cargo +nightly build --target x86_64-unknown-linux-gnu --release"
	if got := cmd.String(); got != want {
		t.Errorf("got  %q\nwant %q", got, want)
	}
}

func TestCommandStringDebugNoProfileFlag(t *testing.T) {
	cmd := Command{Dir: "/tmp/p", Subcommand: "test", Target: "aarch64-unknown-linux-gnu"}
	got := cmd.String()
	if strings.Contains(got, "--release") {
		t.Errorf("debug profile must be implicit: %q", got)
	}
	if strings.Contains(got, "+") {
		t.Errorf("unspecified toolchain must not emit a +prefix: %q", got)
	}
}

func TestCommandStringSeparator(t *testing.T) {
	cmd := Command{
		Dir:         "/tmp/p",
		Subcommand:  "run",
		Target:      "x86_64-unknown-linux-gnu",
		Bin:         "server",
		Passthrough: []string{"--port", "8080"},
	}
	got := cmd.String()
	if n := strings.Count(got, " -- "); n != 1 {
		t.Fatalf("want exactly one separator, got %d in %q", n, got)
	}
	if !strings.HasSuffix(got, "-- --port 8080") {
		t.Errorf("passthrough must come last: %q", got)
	}

	cmd.Passthrough = nil
	if got := cmd.String(); strings.Contains(got, "--port") || strings.Contains(got, " -- ") {
		t.Errorf("no separator without passthrough args: %q", got)
	}
}

func TestCommandStringDeterministic(t *testing.T) {
	cmd := Command{
		Dir:         "/tmp/p",
		Toolchain:   "1.81.0",
		Subcommand:  "build",
		Target:      "x86_64-unknown-linux-gnu",
		Env:         []string{"CC=gcc-13", "RUSTFLAGS=-C target-cpu=native"},
		ExtraArgs:   []string{"--features", "tls"},
		Passthrough: []string{"--verbose"},
	}
	first := cmd.String()
	for i := 0; i < 10; i++ {
		if got := cmd.String(); got != first {
			t.Fatalf("not deterministic: %q vs %q", got, first)
		}
	}
}

func TestEnvEscaping(t *testing.T) {
	cmd := Command{
		Dir:        "/tmp/p",
		Subcommand: "build",
		Env:        []string{`GREETING=hello world`, `QUOTED=it's "fine"`, `PLAIN=1`},
	}
	got := cmd.String()
	if !strings.Contains(got, `GREETING='hello world'`) {
		t.Errorf("space value must be quoted: %q", got)
	}
	if !strings.Contains(got, `QUOTED=`) || strings.Contains(got, `QUOTED=it's`) {
		t.Errorf("embedded quote must be escaped: %q", got)
	}
	if !strings.Contains(got, ` PLAIN=1 `) {
		t.Errorf("plain value needs no quoting: %q", got)
	}
	// Assignments precede cargo, flags precede nothing else.
	if strings.Index(got, "PLAIN=1") > strings.Index(got, "cargo") {
		t.Errorf("env assignments must precede the cargo invocation: %q", got)
	}
}

func TestEnvWithoutEquals(t *testing.T) {
	got := quoteEnv([]string{"BARE"})
	if len(got) != 1 || got[0] != "BARE" {
		t.Errorf("got %v", got)
	}
}

func TestHelperCommands(t *testing.T) {
	if got := Mkdir("/tmp/cargo-offload/p"); got != "mkdir -p /tmp/cargo-offload/p" {
		t.Errorf("Mkdir: %q", got)
	}
	if got := RemoveDir("/tmp/cargo-offload/my proj"); got != "rm -rf '/tmp/cargo-offload/my proj'" {
		t.Errorf("RemoveDir: %q", got)
	}
	if got := TargetAdd("/tmp/p", "x86_64-unknown-linux-gnu", "nightly"); !strings.Contains(got, "--toolchain nightly") {
		t.Errorf("TargetAdd: %q", got)
	}
	if got := TargetAdd("/tmp/p", "x86_64-unknown-linux-gnu", ""); strings.Contains(got, "--toolchain") {
		t.Errorf("TargetAdd without channel: %q", got)
	}
	if got := ToolchainAdmin([]string{"install", "nightly"}); got != "rustup toolchain install nightly" {
		t.Errorf("ToolchainAdmin: %q", got)
	}
	if got := ListArtifacts("/tmp/p/target/x/release"); !strings.Contains(got, "-maxdepth 1") {
		t.Errorf("ListArtifacts: %q", got)
	}
	if got := ListArtifactTree("/tmp/p/target/x/release"); strings.Contains(got, "-maxdepth") {
		t.Errorf("ListArtifactTree must walk the subtree: %q", got)
	}
}
