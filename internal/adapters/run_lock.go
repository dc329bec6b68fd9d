package adapters

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"golang.org/x/sys/unix"

	"storagectl/internal/ports"
)

// FileLock serialises storagectl runs on one host with an advisory lock.
// The holder's PID is written into the lock file for diagnostics.
type FileLock struct {
	Path string
}

func NewFileLock(path string) FileLock {
	return FileLock{Path: path}
}

func (l FileLock) Acquire(ctx context.Context) (func() error, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(l.Path), 0o750); err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create lock directory").
			WithCause(err)
	}
	file, err := os.OpenFile(l.Path, os.O_RDWR|os.O_CREATE, 0o640)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to open lock file").
			WithCause(err)
	}
	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		msg := "another storagectl run is in progress"
		if pid, ok := l.Holder(ctx); ok {
			msg = fmt.Sprintf("%s (PID %d)", msg, pid)
		}
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg(msg).
			WithCause(err)
	}
	if err := file.Truncate(0); err == nil {
		_, _ = file.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	}
	release := func() error {
		_ = file.Truncate(0)
		unlockErr := unix.Flock(int(file.Fd()), unix.LOCK_UN)
		closeErr := file.Close()
		if unlockErr != nil {
			return unlockErr
		}
		return closeErr
	}
	return release, nil
}

// Holder reports the PID of the process holding the lock, if any.
func (l FileLock) Holder(ctx context.Context) (int, bool) {
	if ctx.Err() != nil {
		return 0, false
	}
	file, err := os.Open(l.Path)
	if err != nil {
		return 0, false
	}
	defer file.Close()
	if err := unix.Flock(int(file.Fd()), unix.LOCK_SH|unix.LOCK_NB); err == nil {
		_ = unix.Flock(int(file.Fd()), unix.LOCK_UN)
		return 0, false
	}
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return 0, true
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, true
	}
	return pid, true
}

var _ ports.LockPort = FileLock{}
