package config

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gear6io/slate/pkg/errors"
	"github.com/rs/zerolog"
)

// SetupLogger builds the daemon's root logger from the log section:
// a console writer when enabled, an append-mode file writer when a
// path is configured. The file is rotated aside at startup once it
// outgrows max_size, keeping a bounded set of timestamped backups.
func SetupLogger(cfg *Config) (zerolog.Logger, error) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var writers []io.Writer
	if cfg.Log.Console {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}
	if cfg.Log.FilePath != "" {
		file, err := openLogFile(&cfg.Log)
		if err != nil {
			return zerolog.Logger{}, err
		}
		writers = append(writers, file)
	}

	var out io.Writer
	switch len(writers) {
	case 0:
		out = io.Discard
	case 1:
		out = writers[0]
	default:
		out = zerolog.MultiLevelWriter(writers...)
	}

	return zerolog.New(out).With().
		Timestamp().
		Str("service", "slate-repl").
		Logger(), nil
}

// openLogFile prepares the configured log file for appending. With
// cleanup enabled the previous run's output is truncated away instead
// of rotated.
func openLogFile(cfg *LogConfig) (*os.File, error) {
	if dir := filepath.Dir(cfg.FilePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.New(ErrLogDirCreateFailed, "failed to create log directory", err).
				AddContext("path", cfg.FilePath)
		}
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if cfg.Cleanup {
		flags |= os.O_TRUNC
	} else if err := rotateOversized(cfg); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(cfg.FilePath, flags, 0o644)
	if err != nil {
		return nil, errors.New(ErrLogFileOpenFailed, "failed to open log file", err).
			AddContext("path", cfg.FilePath)
	}
	return file, nil
}

// rotateOversized moves a log file that outgrew max_size aside under a
// timestamped name, then prunes old backups.
func rotateOversized(cfg *LogConfig) error {
	if cfg.MaxSize <= 0 {
		return nil
	}
	info, err := os.Stat(cfg.FilePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.New(ErrLogRotateFailed, "failed to stat log file", err).
			AddContext("path", cfg.FilePath)
	}
	if info.Size() < int64(cfg.MaxSize)*1024*1024 {
		return nil
	}

	backup := cfg.FilePath + "." + time.Now().Format("20060102-150405")
	if err := os.Rename(cfg.FilePath, backup); err != nil {
		return errors.New(ErrLogRotateFailed, "failed to rotate log file", err).
			AddContext("path", cfg.FilePath)
	}
	return pruneBackups(cfg)
}

// pruneBackups drops rotated files beyond max_backups and older than
// max_age days, oldest first.
func pruneBackups(cfg *LogConfig) error {
	if cfg.MaxBackups <= 0 && cfg.MaxAge <= 0 {
		return nil
	}

	dir := filepath.Dir(cfg.FilePath)
	prefix := filepath.Base(cfg.FilePath) + "."
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.New(ErrLogRotateFailed, "failed to list log directory", err).
			AddContext("path", dir)
	}

	type backup struct {
		path string
		mod  time.Time
	}
	var backups []backup
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, backup{
			path: filepath.Join(dir, entry.Name()),
			mod:  info.ModTime(),
		})
	}
	sort.Slice(backups, func(i, j int) bool { return backups[i].mod.Before(backups[j].mod) })

	cutoff := time.Now().AddDate(0, 0, -cfg.MaxAge)
	for i, b := range backups {
		stale := cfg.MaxAge > 0 && b.mod.Before(cutoff)
		excess := cfg.MaxBackups > 0 && i < len(backups)-cfg.MaxBackups
		if !stale && !excess {
			continue
		}
		if err := os.Remove(b.path); err != nil {
			return errors.New(ErrLogRotateFailed, "failed to remove old log backup", err).
				AddContext("path", b.path)
		}
	}
	return nil
}
