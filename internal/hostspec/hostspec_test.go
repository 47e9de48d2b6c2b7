package hostspec

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want RemoteHost
	}{
		{"build-box", RemoteHost{Hostname: "build-box", Port: 22}},
		{"dev@build-box", RemoteHost{User: "dev", Hostname: "build-box", Port: 22}},
		{"dev@build-box:2222", RemoteHost{User: "dev", Hostname: "build-box", Port: 2222}},
		{"build-box:2222", RemoteHost{Hostname: "build-box", Port: 2222}},
		{"root@10.0.0.7", RemoteHost{User: "root", Hostname: "10.0.0.7", Port: 22}},
		// A suffix that isn't a port number stays part of the hostname.
		{"host:notaport", RemoteHost{Hostname: "host:notaport", Port: 22}},
	}
	for _, c := range cases {
		got, err := Parse(c.in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("Parse(%q) = %+v, want %+v", c.in, got, c.want)
		}
	}
}

func TestParseEmptyHostname(t *testing.T) {
	for _, in := range []string{"", "dev@", "dev@:22", ":22"} {
		if _, err := Parse(in); err == nil {
			t.Errorf("Parse(%q): expected error", in)
		}
	}
}

func TestResolvePrecedence(t *testing.T) {
	t.Setenv(EnvHost, "env-host:2200")

	got, err := Resolve("flag-host", 0, "cfg-host")
	if err != nil {
		t.Fatal(err)
	}
	if got.Hostname != "flag-host" {
		t.Errorf("flag should win, got %q", got.Hostname)
	}

	got, err = Resolve("", 0, "cfg-host")
	if err != nil {
		t.Fatal(err)
	}
	if got.Hostname != "env-host" || got.Port != 2200 {
		t.Errorf("env should win over config, got %+v", got)
	}

	t.Setenv(EnvHost, "")
	got, err = Resolve("", 0, "cfg-host")
	if err != nil {
		t.Fatal(err)
	}
	if got.Hostname != "cfg-host" {
		t.Errorf("config should be the fallback, got %+v", got)
	}

	if _, err := Resolve("", 0, ""); !errors.Is(err, ErrHostRequired) {
		t.Errorf("expected ErrHostRequired, got %v", err)
	}
}

func TestResolveFlagPortOverridesHostString(t *testing.T) {
	got, err := Resolve("dev@box:2222", 2299, "")
	if err != nil {
		t.Fatal(err)
	}
	if got.Port != 2299 {
		t.Errorf("flag port should win, got %d", got.Port)
	}
}

func TestTarget(t *testing.T) {
	if got := (RemoteHost{User: "dev", Hostname: "box", Port: 22}).Target(); got != "dev@box" {
		t.Errorf("Target() = %q", got)
	}
	if got := (RemoteHost{Hostname: "box", Port: 22}).Target(); got != "box" {
		t.Errorf("Target() = %q", got)
	}
}
