package coordination

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gear6io/slate/pkg/errors"
)

// FileLock is a pidfile-based exclusive lock satisfying the
// single-active-coordinator requirement for standalone deployments. A
// distributed lock service can replace it behind the same acquire and
// release shape.
type FileLock struct {
	path string
}

// AcquireFileLock takes the lock or fails if another process holds it.
// A leftover lock from a crashed process must be removed by an operator;
// the error carries the recorded pid to make that call.
func AcquireFileLock(path string) (*FileLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.New(ErrLockHeld, "failed to create lock directory", err).AddContext("path", path)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			holder, readErr := os.ReadFile(path)
			lockErr := errors.New(ErrLockHeld, "coordinator lock is already held", err).AddContext("path", path)
			if readErr == nil {
				lockErr = lockErr.AddContext("holder_pid", string(holder))
			}
			return nil, lockErr
		}
		return nil, errors.New(ErrLockHeld, "failed to create lock file", err).AddContext("path", path)
	}

	if _, err := fmt.Fprintf(file, "%d", os.Getpid()); err != nil {
		file.Close()
		os.Remove(path)
		return nil, errors.New(ErrLockHeld, "failed to record lock holder", err).AddContext("path", path)
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return nil, errors.New(ErrLockHeld, "failed to finalize lock file", err).AddContext("path", path)
	}

	return &FileLock{path: path}, nil
}

// Release removes the lock file.
func (l *FileLock) Release() error {
	return os.Remove(l.path)
}
