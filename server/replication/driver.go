package replication

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Driver runs the replication pipeline on an interval: drain statuses,
// derive work, retire finished work, assign the rest. A pass-fatal error
// stops the loop and propagates so the supervisor restarts the process
// with clean state.
type Driver struct {
	statusMaker *StatusMaker
	workMaker   *WorkMaker
	finisher    *WorkFinisher
	assigner    *Assigner
	interval    time.Duration
	logger      zerolog.Logger
}

// NewDriver wires the four passes under one scheduler.
func NewDriver(statusMaker *StatusMaker, workMaker *WorkMaker, finisher *WorkFinisher, assigner *Assigner, interval time.Duration, logger zerolog.Logger) *Driver {
	return &Driver{
		statusMaker: statusMaker,
		workMaker:   workMaker,
		finisher:    finisher,
		assigner:    assigner,
		interval:    interval,
		logger:      logger.With().Str("component", "replication-driver").Logger(),
	}
}

// Run cycles until the context is cancelled or a pass fails.
func (d *Driver) Run(ctx context.Context) error {
	d.logger.Info().Dur("interval", d.interval).Msg("Replication driver started")

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		if err := d.RunCycle(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			d.logger.Info().Msg("Replication driver stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunCycle executes one status -> work -> finish -> assign pass with a
// shared run id.
func (d *Driver) RunCycle(ctx context.Context) error {
	runID := uuid.NewString()
	logger := d.logger.With().Str("run_id", runID).Logger()
	start := time.Now()

	if err := d.statusMaker.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("Status pass failed")
		return err
	}
	if err := d.workMaker.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("Work pass failed")
		return err
	}
	if err := d.finisher.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("Finish pass failed")
		return err
	}
	if err := d.assigner.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("Assignment pass failed")
		return err
	}

	logger.Info().Dur("duration", time.Since(start)).Msg("Replication cycle complete")
	return nil
}
