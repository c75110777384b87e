//go:build !windows

package ping

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// fakePing writes an executable shell script that records its arguments and
// then runs body.
func fakePing(t *testing.T, body string) (bin, argsFile string) {
	t.Helper()
	dir := t.TempDir()
	argsFile = filepath.Join(dir, "args")
	bin = filepath.Join(dir, "ping")
	script := "#!/bin/sh\necho \"$@\" > " + argsFile + "\n" + body + "\n"
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return bin, argsFile
}

func TestArgs(t *testing.T) {
	cases := []struct {
		timeout time.Duration
		want    string
	}{
		{2 * time.Second, "-c 1 -W 2 10.0.0.1"},
		{1500 * time.Millisecond, "-c 1 -W 2 10.0.0.1"},
		{100 * time.Millisecond, "-c 1 -W 1 10.0.0.1"},
		{0, "-c 1 -W 1 10.0.0.1"},
	}
	for _, tc := range cases {
		if got := strings.Join(args("10.0.0.1", tc.timeout), " "); got != tc.want {
			t.Fatalf("timeout %v: expected %q, got %q", tc.timeout, tc.want, got)
		}
	}
}

func TestProbe_Reachable(t *testing.T) {
	bin, argsFile := fakePing(t, "exit 0")
	if !NewExec(bin).Probe(context.Background(), "192.0.2.10", 2*time.Second) {
		t.Fatalf("expected reachable")
	}
	raw, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("read args: %v", err)
	}
	if got := strings.TrimSpace(string(raw)); got != "-c 1 -W 2 192.0.2.10" {
		t.Fatalf("unexpected args %q", got)
	}
}

func TestProbe_Unreachable(t *testing.T) {
	bin, _ := fakePing(t, "exit 1")
	if NewExec(bin).Probe(context.Background(), "198.51.100.1", time.Second) {
		t.Fatalf("expected unreachable")
	}
}

func TestProbe_MissingBinary(t *testing.T) {
	p := NewExec(filepath.Join(t.TempDir(), "no-such-ping"))
	if p.Probe(context.Background(), "127.0.0.1", time.Second) {
		t.Fatalf("expected false for missing binary")
	}
}

func TestProbe_TimeoutKillsChild(t *testing.T) {
	bin, _ := fakePing(t, "exec sleep 30")
	start := time.Now()
	if NewExec(bin).Probe(context.Background(), "127.0.0.1", 100*time.Millisecond) {
		t.Fatalf("expected false on timeout")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("probe not bounded, took %v", elapsed)
	}
}

func TestProbe_RejectsOptionLikeHosts(t *testing.T) {
	bin, argsFile := fakePing(t, "exit 0")
	p := NewExec(bin)
	for _, host := range []string{"", "  ", "-f", "--help"} {
		if p.Probe(context.Background(), host, time.Second) {
			t.Fatalf("host %q: expected false", host)
		}
	}
	if _, err := os.Stat(argsFile); !os.IsNotExist(err) {
		t.Fatalf("binary should not have been run, stat err=%v", err)
	}
}

func TestNewExec_DefaultBinary(t *testing.T) {
	if got := NewExec(" ").Binary; got != "ping" {
		t.Fatalf("expected default binary ping, got %q", got)
	}
}
