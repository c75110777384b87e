// Package ping checks host reachability by running the system ping binary
// once. Every failure is reported as unreachable.
package ping

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

// Prober reports whether host answered a single echo request within timeout.
type Prober interface {
	Probe(ctx context.Context, host string, timeout time.Duration) bool
}

// grace bounds how long the child may outlive its own timeout.
const grace = time.Second

// Exec runs Binary (default "ping") as a child process.
type Exec struct {
	Binary string
}

func NewExec(binary string) *Exec {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ping"
	}
	return &Exec{Binary: binary}
}

func (e *Exec) Probe(ctx context.Context, host string, timeout time.Duration) bool {
	host = strings.TrimSpace(host)
	if host == "" || strings.HasPrefix(host, "-") {
		return false
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout+grace)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.Binary, args(host, timeout)...)
	cmd.WaitDelay = grace
	return cmd.Run() == nil
}
