package volume

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/gear6io/slate/pkg/errors"
	"github.com/rs/zerolog"
)

// Local stores segment files under a root directory on the local
// filesystem.
type Local struct {
	root   string
	logger zerolog.Logger
}

// NewLocal creates the root directory if needed.
func NewLocal(root string, logger zerolog.Logger) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.New(ErrSetup, "failed to create volume root", err).AddContext("root", root)
	}
	return &Local{
		root:   root,
		logger: logger.With().Str("component", "local-volume").Logger(),
	}, nil
}

// Name implements Manager.
func (l *Local) Name() string { return "local" }

// Exists implements Manager.
func (l *Local) Exists(ctx context.Context, path string) (bool, error) {
	full, err := l.resolve(path)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(full); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.New(ErrProbeFailed, "failed to stat segment file", err).AddContext("path", path)
	}
	return true, nil
}

// Remove implements Manager. A missing file counts as removed.
func (l *Local) Remove(ctx context.Context, path string) error {
	full, err := l.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.New(ErrRemove, "failed to remove segment file", err).AddContext("path", path)
	}
	l.logger.Debug().Str("path", path).Msg("Segment file removed")
	return nil
}

// resolve joins the segment path under the root, rejecting anything that
// would escape it.
func (l *Local) resolve(path string) (string, error) {
	if path == "" || strings.HasPrefix(path, "/") {
		return "", errors.New(ErrPathInvalid, "segment path must be relative", nil).AddContext("path", path)
	}
	clean := filepath.Clean(filepath.FromSlash(path))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errors.New(ErrPathInvalid, "segment path escapes volume root", nil).AddContext("path", path)
	}
	return filepath.Join(l.root, clean), nil
}
