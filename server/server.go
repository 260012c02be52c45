package server

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gear6io/slate/pkg/errors"
	"github.com/gear6io/slate/server/config"
	"github.com/gear6io/slate/server/coordination"
	"github.com/gear6io/slate/server/coordination/httpqueue"
	"github.com/gear6io/slate/server/gc"
	"github.com/gear6io/slate/server/replication"
	"github.com/gear6io/slate/server/store"
	"github.com/gear6io/slate/server/store/memory"
	"github.com/gear6io/slate/server/store/sqlite"
	"github.com/gear6io/slate/server/volume"
	"github.com/rs/zerolog"
)

// Package-level error codes for server assembly
var (
	ErrStoreEngineUnknown = errors.MustNewCode("server.store_engine_unknown")
	ErrAssignerUnknown    = errors.MustNewCode("server.assigner_unknown")
	ErrRuntimeDirs        = errors.MustNewCode("server.runtime_dirs_failed")
	ErrLeaderLock         = errors.MustNewCode("server.leader_lock_failed")
)

// Server is the replication daemon: it owns the record store, the
// coordination queue, the leader lock and the background loops that
// move files through the replication pipeline.
type Server struct {
	config      *config.Config
	logger      zerolog.Logger
	store       store.Store
	queueServer *httpqueue.Server
	queue       coordination.WorkQueue
	lock        *coordination.FileLock
	driver      *replication.Driver
	reaper      *gc.Reaper
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	errCh       chan error
	startTime   time.Time
}

// OpenStore opens the record store configured in cfg. Shared with the
// admin CLI so both sides read the same database.
func OpenStore(cfg *config.Config, logger zerolog.Logger) (store.Store, error) {
	switch cfg.Store.Engine {
	case "sqlite":
		if dir := filepath.Dir(cfg.Store.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.New(ErrRuntimeDirs, "failed to create store directory", err).AddContext("path", dir)
			}
		}
		return sqlite.NewStore(cfg.Store.Path, logger)
	case "memory":
		return memory.NewStore(), nil
	default:
		return nil, errors.New(ErrStoreEngineUnknown, "unknown store engine", nil).AddContext("engine", cfg.Store.Engine)
	}
}

// New creates a new server instance
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	ctx, cancel := context.WithCancel(context.Background())

	st, err := OpenStore(cfg, logger)
	if err != nil {
		cancel()
		return nil, err
	}

	// Combiner registrations do not survive a restart; attach them before
	// any component writes to a persisted store.
	if err := replication.EnsureReplicationTable(ctx, st, logger); err != nil {
		st.Close()
		cancel()
		return nil, err
	}

	// Embedded coordination server for single-node deployments. With
	// Embedded disabled the daemon expects an external queue service at
	// the configured endpoint.
	var queueServer *httpqueue.Server
	if cfg.Coordination.Embedded {
		queueServer = httpqueue.NewServer(cfg.Coordination.Listen, logger)
		queueServer.EnsureQueue(cfg.Coordination.Queue)
	}
	queue := httpqueue.NewClient(cfg.Coordination.Endpoint, cfg.Coordination.Queue)

	var strategy replication.Strategy
	switch cfg.Replication.Assigner {
	case "unordered":
		strategy = replication.NewUnorderedStrategy()
	case "sequential":
		strategy = replication.NewSequentialStrategy(st, logger)
	default:
		cancel()
		return nil, errors.New(ErrAssignerUnknown, "unknown work assigner", nil).AddContext("assigner", cfg.Replication.Assigner)
	}

	statusMaker := replication.NewStatusMaker(st, logger)
	workMaker := replication.NewWorkMaker(st, replication.TargetsFunc(cfg.ReplicationTargets), logger)
	finisher := replication.NewWorkFinisher(st, logger)
	assigner := replication.NewAssigner(st, queue, strategy, cfg.Replication.MaxQueuedWork, logger)
	driver := replication.NewDriver(statusMaker, workMaker, finisher, assigner, cfg.Replication.CycleInterval.Std(), logger)

	var reaper *gc.Reaper
	if cfg.GC.Enabled {
		vol, err := volume.NewManager(cfg.GC.Volume, logger)
		if err != nil {
			cancel()
			return nil, err
		}
		reaper = gc.NewReaper(st, vol, cfg.GC.DeleteWorkers, logger)
	}

	return &Server{
		config:      cfg,
		logger:      logger.With().Str("component", "server").Logger(),
		store:       st,
		queueServer: queueServer,
		queue:       queue,
		driver:      driver,
		reaper:      reaper,
		wg:          sync.WaitGroup{},
		ctx:         ctx,
		cancel:      cancel,
		errCh:       make(chan error, 1),
		startTime:   time.Now(),
	}, nil
}

// Start starts the coordination server, takes the leader lock and
// launches the background loops.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info().Msg("Starting slate replication daemon...")

	if dir := filepath.Dir(s.config.Coordination.LockPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.New(ErrRuntimeDirs, "failed to create lock directory", err).AddContext("path", dir)
		}
	}

	if s.queueServer != nil {
		s.logger.Info().Str("listen", s.config.Coordination.Listen).Msg("Starting embedded coordination server")
		if err := s.queueServer.Start(); err != nil {
			return err
		}
	}

	// Only one daemon may drive replication against a store. A held
	// lock means another repld owns this data directory.
	lock, err := coordination.AcquireFileLock(s.config.Coordination.LockPath)
	if err != nil {
		return errors.New(ErrLeaderLock, "failed to acquire leader lock", err).AddContext("path", s.config.Coordination.LockPath)
	}
	s.lock = lock

	if s.config.Replication.Enabled {
		s.logger.Info().Msg("Starting replication driver")
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.driver.Run(s.ctx); err != nil {
				// A failed pass is fatal for the process; the
				// supervisor restarts us with a clean slate.
				select {
				case s.errCh <- err:
				default:
				}
			}
		}()
	}

	if s.reaper != nil {
		s.logger.Info().Msg("Starting segment reaper")
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.reaper.RunLoop(s.ctx, s.config.GC.Interval.Std())
		}()
	}

	s.logger.Info().
		Bool("replication_enabled", s.config.Replication.Enabled).
		Str("assigner", s.config.Replication.Assigner).
		Dur("cycle_interval", s.config.Replication.CycleInterval.Std()).
		Bool("embedded_queue", s.config.Coordination.Embedded).
		Str("queue_endpoint", s.config.Coordination.Endpoint).
		Bool("gc_enabled", s.config.GC.Enabled).
		Msg("Daemon started")

	return nil
}

// Err reports a fatal background failure. The channel receives at most
// one error; the daemon should exit when it fires.
func (s *Server) Err() <-chan error {
	return s.errCh
}

// Shutdown gracefully shuts down all components
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("Shutting down daemon...")

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		s.logger.Warn().Msg("Shutdown timeout, forcing close")
	}

	if s.queueServer != nil {
		if err := s.queueServer.Stop(); err != nil {
			s.logger.Error().Err(err).Msg("Error stopping coordination server")
		}
	}

	if s.lock != nil {
		if err := s.lock.Release(); err != nil {
			s.logger.Error().Err(err).Msg("Error releasing leader lock")
		}
	}

	if err := s.store.Close(); err != nil {
		s.logger.Error().Err(err).Msg("Error closing store")
	}

	s.logger.Info().Msg("Graceful shutdown completed")
	return nil
}

// GetUptime returns the server uptime
func (s *Server) GetUptime() time.Duration {
	return time.Since(s.startTime)
}
