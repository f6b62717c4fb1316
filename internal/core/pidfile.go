package core

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"syscall"
)

var ErrProcessAlreadyRunning = errors.New("process is already running")

// LockPidFile writes the process's pid into the named file under
// XDG_RUNTIME_DIR and returns its path. If the file already exists and
// the process with that pid is alive, ErrProcessAlreadyRunning is
// returned. Unreadable content counts as stale and the file is reused.
func LockPidFile(name string) (string, error) {
	if name == "" {
		return "", errors.New("no pidfile name passed")
	}

	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = "/tmp"
	}

	file := dir + "/" + name + ".pid"

	raw, err := os.ReadFile(file)
	if errors.Is(err, os.ErrNotExist) {
		return file, writePidFile(file)
	} else if err != nil {
		return "", fmt.Errorf("os.ReadFile: %w", err)
	}

	// file exists, check whether its owner is still around

	pid, err := strconv.Atoi(string(raw))
	if err != nil {
		return file, writePidFile(file)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return "", fmt.Errorf("os.FindProcess: %w", err)
	}

	err = process.Signal(syscall.Signal(0))
	if !errors.Is(err, os.ErrProcessDone) {
		return "", ErrProcessAlreadyRunning
	}

	// process done, reuse the file
	return file, writePidFile(file)
}

// UnlockPidFile removes a pidfile written by LockPidFile.
func UnlockPidFile(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("os.Remove: %w", err)
	}
	return nil
}

func writePidFile(file string) error {
	err := os.WriteFile(file, []byte(strconv.Itoa(os.Getpid())), 0o644)
	if err != nil {
		return fmt.Errorf("os.WriteFile: %w", err)
	}
	return nil
}
