//go:build !windows

package ping

import (
	"strconv"
	"time"
)

// args builds `-c 1 -W <seconds> host`. Seconds round up, minimum 1.
func args(host string, timeout time.Duration) []string {
	secs := int((timeout + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return []string{"-c", "1", "-W", strconv.Itoa(secs), host}
}
