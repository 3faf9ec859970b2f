//go:build !windows

package events

import (
	"os"
	"syscall"
)

// pidAlive reports whether a process with the given pid exists.
// Signal 0 performs the existence check without delivering anything.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
