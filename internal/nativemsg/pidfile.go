package nativemsg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// writePID writes pid to path as ASCII decimal, owned exclusively by the
// supervisor process — the proxy child never touches its own PID file.
func writePID(path string, pid int) error {
	return os.WriteFile(path, []byte(strconv.Itoa(pid)), 0o644) //nolint:gosec // not sensitive
}

// readPID reads the PID written by writePID.
func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("nativemsg: malformed pid file %s: %w", path, err)
	}
	return pid, nil
}

// removePID deletes the PID file, ignoring a not-exist error.
func removePID(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// processAlive reports whether pid names a live, signalable process.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
