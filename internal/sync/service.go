package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/collectdex/mfc-sync/internal/config"
	"github.com/collectdex/mfc-sync/internal/db"
	apperrors "github.com/collectdex/mfc-sync/internal/errors"
	"github.com/collectdex/mfc-sync/internal/models"
	"github.com/collectdex/mfc-sync/internal/push"
	"github.com/collectdex/mfc-sync/internal/worker"
	"github.com/collectdex/mfc-sync/pkg/utils"
)

// CreateJobRequest holds the user-supplied parameters for a sync attempt
type CreateJobRequest struct {
	SessionID    string `json:"sessionId" binding:"required"`
	MFCUsername  string `json:"mfcUsername,omitempty"`
	IncludeLists bool   `json:"includeLists"`
	SkipCached   bool   `json:"skipCached"`
}

// ActiveJobResult is what GetActiveJob reports: the active job if one
// exists, or the terminal snapshot of a job that was reaped for staleness
// during this very call.
type ActiveJobResult struct {
	Job   *models.SyncJob `json:"job"`
	Stale *models.SyncJob `json:"stale,omitempty"`
}

// Service implements the user-facing job lifecycle operations
type Service struct {
	store      db.Store
	hub        push.Hub
	worker     worker.Client
	supervisor *Supervisor
	config     *config.SyncConfig
	webhookURL string
	secret     string
	logger     *logrus.Logger
}

// NewService creates a new lifecycle service. webhookURL is the public
// callback base handed to the worker; secret signs both directions of the
// worker protocol.
func NewService(store db.Store, hub push.Hub, workerClient worker.Client, supervisor *Supervisor,
	cfg *config.SyncConfig, webhookURL, secret string, logger *logrus.Logger) *Service {
	return &Service{
		store:      store,
		hub:        hub,
		worker:     workerClient,
		supervisor: supervisor,
		config:     cfg,
		webhookURL: webhookURL,
		secret:     secret,
		logger:     logger,
	}
}

// CreateJob registers a new sync attempt and asks the worker to start. A
// non-terminal job for the same session is a conflict the caller must treat
// as "resume"; a terminal one is replaced atomically by the store.
func (s *Service) CreateJob(ctx context.Context, userID string, req *CreateJobRequest) (*models.SyncJob, error) {
	if !utils.IsValidSessionID(req.SessionID) {
		return nil, apperrors.NewValidationError("sessionId is required", nil)
	}
	if userID == "" {
		return nil, apperrors.NewValidationError("userId is required", nil)
	}

	logger := s.logger.WithFields(logrus.Fields{
		"session_id": req.SessionID,
		"user_id":    userID,
	})
	logger.Info("Creating sync job")

	job := &models.SyncJob{
		SessionID:    req.SessionID,
		UserID:       userID,
		Phase:        models.PhaseValidating,
		Message:      "Validating sync request",
		IncludeLists: req.IncludeLists,
		SkipCached:   req.SkipCached,
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		if apperrors.IsConflict(err) {
			logger.Warn("Sync already in progress for session")
			return nil, err
		}
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	startReq := &worker.StartSyncRequest{
		SessionID:     req.SessionID,
		MFCUsername:   req.MFCUsername,
		IncludeLists:  req.IncludeLists,
		SkipCached:    req.SkipCached,
		WebhookURL:    s.webhookURL,
		WebhookSecret: s.secret,
	}
	if err := s.worker.StartSync(ctx, startReq); err != nil {
		logger.WithError(err).Error("Failed to dispatch sync to worker")
		if _, failErr := s.store.FinishJob(ctx, req.SessionID, models.PhaseFailed, "Failed to reach sync worker"); failErr != nil {
			logger.WithError(failErr).Error("Failed to mark undispatched job as failed")
		}
		return nil, apperrors.NewInternalError("failed to start sync", err)
	}

	created, err := s.store.GetJob(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load created job: %w", err)
	}

	logger.Info("Sync job created and dispatched")
	return created, nil
}

// GetJob is the owner-scoped lookup. A job owned by another user is
// indistinguishable from an unknown one.
func (s *Service) GetJob(ctx context.Context, userID, sessionID string) (*models.SyncJob, error) {
	job, err := s.store.GetJob(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	if job == nil || job.UserID != userID {
		return nil, apperrors.NewNotFoundError("sync job not found", nil)
	}
	return job, nil
}

// GetActiveJob returns the user's most recent non-terminal job, applying
// the on-demand staleness check first: a silent job is reaped here and
// reported as "no active job" plus its terminal snapshot.
func (s *Service) GetActiveJob(ctx context.Context, userID string) (*ActiveJobResult, error) {
	job, err := s.store.GetActiveJobForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get active job: %w", err)
	}
	if job == nil {
		return &ActiveJobResult{}, nil
	}

	if time.Since(job.UpdatedAt) > s.config.StaleAfter {
		if err := s.supervisor.ReapStaleJob(ctx, job); err != nil {
			return nil, fmt.Errorf("failed to reap stale job: %w", err)
		}
		snapshot, err := s.store.GetJob(ctx, job.SessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to load reaped job: %w", err)
		}
		return &ActiveJobResult{Stale: snapshot}, nil
	}

	return &ActiveJobResult{Job: job}, nil
}

// CancelJob cancels an active job. The worker is notified best-effort;
// local cancellation always succeeds once the job is confirmed active.
// Accumulated stats survive so the UI can show how far the sync got.
func (s *Service) CancelJob(ctx context.Context, userID, sessionID string) (*models.SyncJob, error) {
	logger := s.logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"user_id":    userID,
	})

	job, err := s.GetJob(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if !job.IsActive() {
		return nil, apperrors.NewInvalidStateError("sync job is already finished", nil)
	}

	if err := s.worker.CancelSync(ctx, sessionID); err != nil {
		logger.WithError(err).Warn("Failed to notify worker of cancellation, cancelling locally")
	}

	finished, err := s.store.FinishJob(ctx, sessionID, models.PhaseCancelled, "Sync cancelled by user")
	if err != nil {
		return nil, fmt.Errorf("failed to cancel job: %w", err)
	}
	if !finished {
		// lost the race against a terminal transition
		return nil, apperrors.NewInvalidStateError("sync job is already finished", nil)
	}

	stats, err := s.store.GetJobStats(ctx, sessionID)
	if err != nil {
		logger.WithError(err).Error("Failed to load stats for cancelled job")
		stats = &job.Stats
	}

	s.hub.Broadcast(sessionID, push.Event{
		Type:    push.EventSyncComplete,
		Phase:   models.PhaseCancelled,
		Message: "Sync cancelled by user",
		Stats:   stats,
	})
	s.hub.CloseSession(sessionID)

	logger.WithField("stats", *stats).Info("Sync job cancelled")

	cancelled, err := s.store.GetJob(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cancelled job: %w", err)
	}
	return cancelled, nil
}
