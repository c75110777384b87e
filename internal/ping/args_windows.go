//go:build windows

package ping

import (
	"strconv"
	"time"
)

// args builds `-n 1 -w <milliseconds> host`.
func args(host string, timeout time.Duration) []string {
	ms := timeout.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return []string{"-n", "1", "-w", strconv.FormatInt(ms, 10), host}
}
