package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/collectdex/mfc-sync/internal/config"
	"github.com/collectdex/mfc-sync/internal/db"
	"github.com/collectdex/mfc-sync/internal/models"
	"github.com/collectdex/mfc-sync/internal/push"
)

// Supervisor reclaims jobs whose external worker has gone silent. The same
// remediation serves both the periodic sweep and the on-demand check in
// GetActiveJob; only the staleness threshold differs.
type Supervisor struct {
	store  db.Store
	hub    push.Hub
	config *config.SyncConfig
	logger *logrus.Logger
}

// NewSupervisor creates a new staleness supervisor
func NewSupervisor(store db.Store, hub push.Hub, cfg *config.SyncConfig, logger *logrus.Logger) *Supervisor {
	return &Supervisor{
		store:  store,
		hub:    hub,
		config: cfg,
		logger: logger,
	}
}

// Run sweeps for stale jobs on a fixed interval until the context is
// cancelled. A worker can crash without ever calling back again; without
// the sweep such a job would stay "active" forever once clients stop
// polling.
func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	s.logger.WithFields(logrus.Fields{
		"interval":    s.config.SweepInterval,
		"stale_after": s.config.SweepStaleAfter,
	}).Info("Starting stale job supervisor")

	for {
		select {
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.WithError(err).Error("Stale job sweep failed")
			}
		case <-ctx.Done():
			s.logger.Info("Stopping stale job supervisor")
			return
		}
	}
}

// Sweep remediates every non-terminal job whose liveness timestamp is older
// than the sweep threshold.
func (s *Supervisor) Sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-s.config.SweepStaleAfter)
	jobs, err := s.store.ListStaleJobs(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to list stale jobs: %w", err)
	}

	for _, job := range jobs {
		if err := s.ReapStaleJob(ctx, job); err != nil {
			s.logger.WithError(err).WithField("session_id", job.SessionID).
				Error("Failed to reap stale job")
		}
	}

	return nil
}

// ReapStaleJob force-terminates a job whose worker stopped reporting. The
// guarded transition makes it safe to race a concurrent webhook: if the
// worker came back and finished the job first, the reap is a no-op.
func (s *Supervisor) ReapStaleJob(ctx context.Context, job *models.SyncJob) error {
	logger := s.logger.WithFields(logrus.Fields{
		"session_id": job.SessionID,
		"phase":      job.Phase,
		"updated_at": job.UpdatedAt,
	})

	message := "Sync timed out: no progress reported by the worker"
	finished, err := s.store.FinishJob(ctx, job.SessionID, models.PhaseFailed, message)
	if err != nil {
		return fmt.Errorf("failed to fail stale job: %w", err)
	}
	if !finished {
		logger.Info("Stale job already terminal, nothing to reap")
		return nil
	}

	logger.Warn("Reaped stale sync job")

	stats, err := s.store.GetJobStats(ctx, job.SessionID)
	if err != nil {
		logger.WithError(err).Error("Failed to load stats for reaped job")
		stats = &models.SyncStats{}
	}

	s.hub.Broadcast(job.SessionID, push.Event{
		Type:    push.EventSyncComplete,
		Phase:   models.PhaseFailed,
		Message: message,
		Stats:   stats,
	})

	return nil
}
