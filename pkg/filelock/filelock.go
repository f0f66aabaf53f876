// Package filelock serializes read-modify-write cycles on a single file across
// goroutines and processes using an advisory lock on a sibling ".lock" file.
package filelock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const (
	// DefaultTimeout bounds how long WithLock waits for a busy lock.
	DefaultTimeout = 5 * time.Second

	defaultRetryDelay = 10 * time.Millisecond
	lockSuffix        = ".lock"
)

// ErrLockTimeout is returned when the lock could not be acquired in time.
var ErrLockTimeout = errors.New("timed out waiting for file lock")

// Locker runs a function while holding an exclusive lock.
type Locker interface {
	// WithLock executes fn while holding the lock and releases it after fn
	// returns. It fails with ErrLockTimeout instead of blocking forever.
	WithLock(ctx context.Context, fn func() error) error
}

// FileLock is a Locker scoped to one target file. The zero timeout means
// DefaultTimeout.
type FileLock struct {
	target     string
	timeout    time.Duration
	retryDelay time.Duration
}

// New returns a FileLock guarding target. The lock itself lives in
// target+".lock", which is never removed: deleting a lock file another process
// may have open would let two holders in.
func New(target string, timeout time.Duration) *FileLock {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &FileLock{
		target:     target,
		timeout:    timeout,
		retryDelay: defaultRetryDelay,
	}
}

// Target returns the file this lock guards.
func (l *FileLock) Target() string {
	return l.target
}

// WithLock implements Locker.
func (l *FileLock) WithLock(ctx context.Context, fn func() error) error {
	lockPath := l.target + lockSuffix
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return fmt.Errorf("filelock: failed to create lock directory: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	// A fresh handle per acquisition: flock state is tied to the open file,
	// so two goroutines in one process exclude each other the same way two
	// processes do.
	fl := flock.New(lockPath)
	locked, err := fl.TryLockContext(waitCtx, l.retryDelay)
	if err != nil || !locked {
		if ctx.Err() != nil {
			return fmt.Errorf("filelock: %s: %w", l.target, ctx.Err())
		}
		if waitCtx.Err() != nil || err == nil {
			return fmt.Errorf("filelock: %s after %s: %w", l.target, l.timeout, ErrLockTimeout)
		}
		return fmt.Errorf("filelock: failed to lock %s: %w", lockPath, err)
	}

	// Always release the lock.
	defer func() {
		_ = fl.Close()
	}()

	return fn()
}

// Compile-time interface check.
var _ Locker = (*FileLock)(nil)
