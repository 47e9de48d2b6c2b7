package tunnel

import (
	"errors"
	"net"
	"testing"
)

func TestParseSpec(t *testing.T) {
	cases := []struct {
		in   string
		want ForwardSpec
	}{
		{"3000", ForwardSpec{3000, 3000}},
		{"3000:8080", ForwardSpec{3000, 8080}},
		{" 443:8443 ", ForwardSpec{443, 8443}},
	}
	for _, c := range cases {
		got, err := ParseSpec(c.in)
		if err != nil {
			t.Fatalf("ParseSpec(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("ParseSpec(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestParseSpecInvalid(t *testing.T) {
	for _, in := range []string{"", "abc", "1:2:3", "0", "3000:0", "70000"} {
		if _, err := ParseSpec(in); err == nil {
			t.Errorf("ParseSpec(%q): expected error", in)
		}
	}
}

func TestSSHArgs(t *testing.T) {
	specs := []ForwardSpec{{3000, 8080}, {9000, 9000}}
	got := SSHArgs(specs)
	want := []string{"-L", "3000:localhost:8080", "-L", "9000:localhost:9000"}
	if len(got) != len(want) {
		t.Fatalf("SSHArgs = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("SSHArgs[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if args := SSHArgs(nil); len(args) != 0 {
		t.Errorf("no specs must produce no args, got %v", args)
	}
}

func TestPreflightDetectsBusyPort(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	port := uint16(l.Addr().(*net.TCPAddr).Port)

	err = Preflight([]ForwardSpec{{LocalPort: port, RemotePort: 80}})
	var bindErr *BindError
	if !errors.As(err, &bindErr) {
		t.Fatalf("expected BindError, got %v", err)
	}
	if bindErr.Port != port {
		t.Errorf("BindError.Port = %d, want %d", bindErr.Port, port)
	}
}

func TestPreflightFreePort(t *testing.T) {
	// Find a free port, release it, then preflight it.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := uint16(l.Addr().(*net.TCPAddr).Port)
	_ = l.Close()

	if err := Preflight([]ForwardSpec{{LocalPort: port, RemotePort: 80}}); err != nil {
		t.Fatalf("free port should preflight cleanly: %v", err)
	}
}
