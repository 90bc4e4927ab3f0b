package sync

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/collectdex/mfc-sync/internal/db"
	apperrors "github.com/collectdex/mfc-sync/internal/errors"
	"github.com/collectdex/mfc-sync/internal/models"
	"github.com/collectdex/mfc-sync/internal/push"
)

// ItemCompleteRequest is the item-complete webhook payload
type ItemCompleteRequest struct {
	SessionID   string                `json:"sessionId"`
	MFCID       string                `json:"mfcId"`
	Status      models.ItemStatus     `json:"status"`
	Error       string                `json:"error,omitempty"`
	ScrapedData *models.ScrapedFigure `json:"scrapedData,omitempty"`
}

// PhaseChangeRequest is the phase-change webhook payload. Items is the full
// initial item list, delivered once during the queueing phase.
type PhaseChangeRequest struct {
	SessionID string            `json:"sessionId"`
	Phase     models.SyncPhase  `json:"phase"`
	Message   string            `json:"message,omitempty"`
	Items     []models.SyncItem `json:"items,omitempty"`
}

// ListsSyncRequest is the lists-sync webhook payload
type ListsSyncRequest struct {
	SessionID string              `json:"sessionId"`
	Lists     []models.SyncedList `json:"lists"`
}

// WebhookService translates authenticated worker callbacks into job store
// mutations and push events. The worker is an at-least-once, possibly
// out-of-order reporter, so every handler here must be idempotent and
// item mutations must be commutative.
type WebhookService struct {
	store    db.Store
	hub      push.Hub
	enricher *Enricher
	logger   *logrus.Logger
}

// NewWebhookService creates a new webhook service
func NewWebhookService(store db.Store, hub push.Hub, enricher *Enricher, logger *logrus.Logger) *WebhookService {
	return &WebhookService{
		store:    store,
		hub:      hub,
		enricher: enricher,
		logger:   logger,
	}
}

// HandleItemComplete applies a single item's terminal status, forwards
// enrichment, recomputes aggregates and decides terminal promotion.
func (s *WebhookService) HandleItemComplete(ctx context.Context, req *ItemCompleteRequest) error {
	if req.SessionID == "" || req.MFCID == "" {
		return apperrors.NewValidationError("sessionId and mfcId are required", nil)
	}
	if !req.Status.IsTerminal() {
		return apperrors.NewValidationError("status must be one of completed, failed, skipped", nil)
	}

	logger := s.logger.WithFields(logrus.Fields{
		"session_id": req.SessionID,
		"mfc_id":     req.MFCID,
		"status":     req.Status,
	})

	job, err := s.store.GetJob(ctx, req.SessionID)
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}
	if job == nil {
		return apperrors.NewNotFoundError("sync job not found", nil)
	}

	changed, err := s.store.UpdateItemStatus(ctx, req.SessionID, req.MFCID, req.Status, req.Error)
	if err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}
	if !changed {
		// duplicate delivery, nothing new to report
		logger.Debug("Item status unchanged, treating as redelivery")
	}

	var updated *models.SyncItem
	for i := range job.Items {
		if job.Items[i].MFCID == req.MFCID {
			job.Items[i].Status = req.Status
			updated = &job.Items[i]
			break
		}
	}

	if changed && req.Status == models.ItemCompleted && req.ScrapedData != nil && updated != nil {
		s.enricher.EnrichAsync(req.SessionID, job.UserID, *updated, req.ScrapedData)
	}

	stats, err := s.store.GetJobStats(ctx, req.SessionID)
	if err != nil {
		return fmt.Errorf("failed to recompute stats: %w", err)
	}

	s.hub.Broadcast(req.SessionID, push.Event{
		Type:  push.EventItemUpdate,
		Item:  updated,
		Stats: stats,
	})

	if ShouldComplete(*stats) {
		s.promote(ctx, req.SessionID, stats, logger)
	}

	return nil
}

// promote applies the stats engine's completion decision. The guarded
// transition means a concurrent last-item delivery or a cancelled job
// cannot be promoted twice or resurrected: exactly one caller broadcasts
// the terminal event.
func (s *WebhookService) promote(ctx context.Context, sessionID string, stats *models.SyncStats, logger *logrus.Entry) {
	message := fmt.Sprintf("Sync completed: %d enriched, %d failed, %d skipped", stats.Completed, stats.Failed, stats.Skipped)

	finished, err := s.store.FinishJob(ctx, sessionID, models.PhaseCompleted, message)
	if err != nil {
		logger.WithError(err).Error("Failed to promote job to completed")
		return
	}
	if !finished {
		return
	}

	logger.WithField("stats", *stats).Info("Sync job completed")

	s.hub.Broadcast(sessionID, push.Event{
		Type:    push.EventSyncComplete,
		Phase:   models.PhaseCompleted,
		Message: message,
		Stats:   stats,
	})
}

// HandlePhaseChange applies a worker-reported phase transition. Returns
// whether the transition was applied; terminal phases from the worker are
// ignored unless the job has zero items and the phase is completed, since
// the stats engine can never independently finish an empty job.
func (s *WebhookService) HandlePhaseChange(ctx context.Context, req *PhaseChangeRequest) (bool, error) {
	if req.SessionID == "" {
		return false, apperrors.NewValidationError("sessionId is required", nil)
	}
	if !req.Phase.IsValid() {
		return false, apperrors.NewValidationError("unknown phase: "+string(req.Phase), nil)
	}

	logger := s.logger.WithFields(logrus.Fields{
		"session_id": req.SessionID,
		"phase":      req.Phase,
	})

	job, err := s.store.GetJob(ctx, req.SessionID)
	if err != nil {
		return false, fmt.Errorf("failed to get job: %w", err)
	}
	if job == nil {
		return false, apperrors.NewNotFoundError("sync job not found", nil)
	}

	if req.Phase.IsTerminal() {
		if req.Phase == models.PhaseCompleted && job.Stats.Total == 0 {
			message := req.Message
			if message == "" {
				message = "Sync completed"
			}
			finished, err := s.store.FinishJob(ctx, req.SessionID, models.PhaseCompleted, message)
			if err != nil {
				return false, fmt.Errorf("failed to complete empty job: %w", err)
			}
			if finished {
				s.hub.Broadcast(req.SessionID, push.Event{
					Type:    push.EventSyncComplete,
					Phase:   models.PhaseCompleted,
					Message: message,
					Stats:   &job.Stats,
				})
			}
			return finished, nil
		}

		// Terminal state is authoritative only from the stats engine or an
		// explicit cancel; a duplicated or reordered worker message must
		// not close a job that still has pending items.
		logger.WithField("items", job.Stats.Total).Warn("Ignored terminal phase reported by worker")
		return false, nil
	}

	applied, err := s.store.UpdateJobPhase(ctx, req.SessionID, req.Phase, req.Message)
	if err != nil {
		return false, fmt.Errorf("failed to update phase: %w", err)
	}
	if !applied {
		logger.Info("Phase change ignored, job already terminal")
		return false, nil
	}

	stats := &job.Stats
	if len(req.Items) > 0 {
		if err := s.store.ReplaceItems(ctx, req.SessionID, req.Items); err != nil {
			return false, fmt.Errorf("failed to replace items: %w", err)
		}
		stats, err = s.store.GetJobStats(ctx, req.SessionID)
		if err != nil {
			return false, fmt.Errorf("failed to recompute stats: %w", err)
		}
		logger.WithField("total", stats.Total).Info("Item set registered for sync job")
	}

	s.hub.Broadcast(req.SessionID, push.Event{
		Type:    push.EventPhaseChange,
		Phase:   req.Phase,
		Message: req.Message,
		Stats:   stats,
	})

	return true, nil
}

// HandleListsSync resolves the owning user from the job and bulk-upserts
// the delivered lists. Returns the number of lists written.
func (s *WebhookService) HandleListsSync(ctx context.Context, req *ListsSyncRequest) (int, error) {
	if req.SessionID == "" {
		return 0, apperrors.NewValidationError("sessionId is required", nil)
	}
	if len(req.Lists) == 0 {
		return 0, apperrors.NewValidationError("lists cannot be empty", nil)
	}

	job, err := s.store.GetJob(ctx, req.SessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to get job: %w", err)
	}
	if job == nil {
		return 0, apperrors.NewNotFoundError("sync job not found", nil)
	}

	count, err := s.store.UpsertUserLists(ctx, job.UserID, req.Lists)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert lists: %w", err)
	}

	if err := s.store.TouchJob(ctx, req.SessionID); err != nil {
		s.logger.WithError(err).WithField("session_id", req.SessionID).
			Error("Failed to touch job after lists sync")
	}

	s.logger.WithFields(logrus.Fields{
		"session_id": req.SessionID,
		"user_id":    job.UserID,
		"lists":      count,
	}).Info("Synced user lists")

	return count, nil
}
