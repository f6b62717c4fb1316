package core

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLockPidFile(t *testing.T) {
	r := require.New(t)
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())

	path, err := LockPidFile("splitrandr_test")
	r.NoError(err)

	raw, err := os.ReadFile(path)
	r.NoError(err)
	r.Equal(strconv.Itoa(os.Getpid()), string(raw))

	// the owning process is alive, so a second lock is refused
	_, err = LockPidFile("splitrandr_test")
	r.ErrorIs(err, ErrProcessAlreadyRunning)

	r.NoError(UnlockPidFile(path))
	r.NoFileExists(path)

	// unlocking twice is fine
	r.NoError(UnlockPidFile(path))
}

func TestLockPidFileReclaimsGarbage(t *testing.T) {
	r := require.New(t)
	dir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", dir)

	stale := filepath.Join(dir, "splitrandr_test.pid")
	r.NoError(os.WriteFile(stale, []byte("not-a-pid"), 0o644))

	path, err := LockPidFile("splitrandr_test")
	r.NoError(err)
	r.Equal(stale, path)

	raw, err := os.ReadFile(path)
	r.NoError(err)
	r.Equal(strconv.Itoa(os.Getpid()), string(raw))
}

func TestLockPidFileRequiresName(t *testing.T) {
	r := require.New(t)

	_, err := LockPidFile("")
	r.Error(err)
}
