package volume

import (
	"context"

	"github.com/gear6io/slate/pkg/errors"
	"github.com/gear6io/slate/server/config"
	"github.com/rs/zerolog"
)

// Package-specific error codes for volume operations
var (
	ErrKindUnknown = errors.MustNewCode("volume.kind_unknown")
	ErrPathInvalid = errors.MustNewCode("volume.path_invalid")
	ErrProbeFailed = errors.MustNewCode("volume.probe_failed")
	ErrRemove      = errors.MustNewCode("volume.remove_failed")
	ErrSetup       = errors.MustNewCode("volume.setup_failed")
)

// Manager abstracts the storage holding closed segment files. The reaper
// only ever probes and removes; removing an object that is already gone
// succeeds.
type Manager interface {
	Name() string
	Exists(ctx context.Context, path string) (bool, error)
	Remove(ctx context.Context, path string) error
}

// NewManager builds the manager selected by the volume configuration.
func NewManager(cfg config.VolumeConfig, logger zerolog.Logger) (Manager, error) {
	switch cfg.Kind {
	case "local":
		return NewLocal(cfg.Root, logger)
	case "s3":
		return NewS3(cfg, logger)
	default:
		return nil, errors.New(ErrKindUnknown, "unknown volume kind", nil).AddContext("kind", cfg.Kind)
	}
}
