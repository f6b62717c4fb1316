// Package xsock resolves X display strings to the unix sockets the
// server family listens on.
package xsock

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

const socketDir = "/tmp/.X11-unix"

var ErrNotLocal = errors.New("display is not local")

// Parse extracts the display number from strings like ":8", ":8.0" or
// "unix:8". Displays on other hosts are rejected, relaying raw bytes
// only works on the same machine.
func Parse(display string) (int, error) {
	if display == "" {
		return 0, errors.New("empty display")
	}

	host, rest, found := strings.Cut(display, ":")
	if !found {
		return 0, fmt.Errorf("display %q has no number", display)
	}
	if host != "" && host != "unix" {
		return 0, fmt.Errorf("%w: %q", ErrNotLocal, display)
	}

	// drop the screen part
	num, _, _ := strings.Cut(rest, ".")

	n, err := strconv.Atoi(num)
	if err != nil {
		return 0, fmt.Errorf("display number in %q: %w", display, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative display number in %q", display)
	}

	return n, nil
}

// SocketPath returns the socket of the n-th display.
func SocketPath(n int) string {
	return fmt.Sprintf("%s/X%d", socketDir, n)
}

// Dial connects to the display's socket.
func Dial(display string) (net.Conn, error) {
	n, err := Parse(display)
	if err != nil {
		return nil, err
	}

	conn, err := net.Dial("unix", SocketPath(n))
	if err != nil {
		return nil, fmt.Errorf("net.Dial: %w", err)
	}

	return conn, nil
}

// Listen binds the display's socket. A leftover socket nobody answers
// on is swept away first.
func Listen(display string) (net.Listener, error) {
	n, err := Parse(display)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(socketDir, 0o777|os.ModeSticky); err != nil {
		return nil, fmt.Errorf("os.MkdirAll: %w", err)
	}

	path := SocketPath(n)

	if conn, err := net.Dial("unix", path); err == nil {
		conn.Close()
		return nil, fmt.Errorf("display %s is already in use", display)
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("os.Remove: %w", err)
	}

	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("net.Listen: %w", err)
	}

	return l, nil
}
