package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrInstanceLocked means another notifier already holds the instance lock.
var ErrInstanceLocked = errors.New("another instance is already running")

// InstanceLock is a system-wide exclusivity guard backed by a locked file.
type InstanceLock struct {
	file *os.File
}

func defaultLockPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "vrc-log-notifier", "instance.lock")
}

// AcquireInstanceLock takes the lock at path without blocking.
func AcquireInstanceLock(path string) (*InstanceLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrInstanceLocked, err)
	}
	return &InstanceLock{file: f}, nil
}

func (l *InstanceLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := unlockFile(l.file)
	if cerr := l.file.Close(); err == nil {
		err = cerr
	}
	l.file = nil
	return err
}
