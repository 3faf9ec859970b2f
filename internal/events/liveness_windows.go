//go:build windows

package events

import "os"

// pidAlive reports whether a process with the given pid exists.
// On Windows FindProcess only succeeds for live processes.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	_, err := os.FindProcess(pid)
	return err == nil
}
