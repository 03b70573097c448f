// Package watermark records when a log source was last checked. The state is a
// zero-byte sentinel file next to the source; only its modification time
// carries meaning.
package watermark

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/gofrs/flock"

	"github.com/MikeSquared-Agency/clustermon/internal/monitor"
)

const (
	sentinelSuffix = "_last_check"
	lockSuffix     = ".lock"
	lockRetry      = 100 * time.Millisecond
)

// ErrLocked is returned when another run holds the sentinel lock.
var ErrLocked = fmt.Errorf("watermark locked by another run: %w", monitor.ErrFilesystem)

// SentinelPath returns the marker path for the given input file.
func SentinelPath(input string) string {
	return input + sentinelSuffix
}

// Read returns the sentinel's modification time. ok is false when the
// sentinel does not exist yet.
func Read(path string) (mtime time.Time, ok bool, err error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("stat watermark: %v: %w", err, monitor.ErrFilesystem)
	}
	return info.ModTime(), true, nil
}

// Touch creates the sentinel if needed and sets its modification time to now.
// The watermark never moves backwards: if an existing sentinel is already
// newer than now it is left alone.
func Touch(path string, now time.Time) error {
	current, existed, err := Read(path)
	if err != nil {
		return err
	}
	if existed && current.After(now) {
		return nil
	}

	if !existed {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("create watermark: %v: %w", err, monitor.ErrFilesystem)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("close watermark: %v: %w", err, monitor.ErrFilesystem)
		}
	}

	if err := os.Chtimes(path, now, now); err != nil {
		return fmt.Errorf("touch watermark: %v: %w", err, monitor.ErrFilesystem)
	}
	return nil
}

// Lock is an exclusive advisory lock guarding one sentinel.
type Lock struct {
	fl *flock.Flock
}

// Acquire takes the lock for sentinel, waiting up to timeout. A zero timeout
// makes a single attempt.
func Acquire(ctx context.Context, sentinel string, timeout time.Duration) (*Lock, error) {
	fl := flock.New(sentinel + lockSuffix)

	var (
		locked bool
		err    error
	)
	if timeout <= 0 {
		locked, err = fl.TryLock()
	} else {
		lockCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		locked, err = fl.TryLockContext(lockCtx, lockRetry)
		if errors.Is(err, context.DeadlineExceeded) {
			err = nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("lock watermark: %v: %w", err, monitor.ErrFilesystem)
	}
	if !locked {
		return nil, ErrLocked
	}
	return &Lock{fl: fl}, nil
}

// Release drops the lock. The lock file itself is left in place.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("unlock watermark: %v: %w", err, monitor.ErrFilesystem)
	}
	return nil
}
