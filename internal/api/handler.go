package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/collectdex/mfc-sync/internal/config"
	apperrors "github.com/collectdex/mfc-sync/internal/errors"
	"github.com/collectdex/mfc-sync/internal/push"
	"github.com/collectdex/mfc-sync/internal/sync"
)

type Handler struct {
	syncService *sync.Service
	webhooks    *sync.WebhookService
	hub         push.Hub
	config      *config.SyncConfig
	logger      *logrus.Logger
}

func NewHandler(syncService *sync.Service, webhooks *sync.WebhookService, hub push.Hub,
	cfg *config.SyncConfig, logger *logrus.Logger) *Handler {
	return &Handler{
		syncService: syncService,
		webhooks:    webhooks,
		hub:         hub,
		config:      cfg,
		logger:      logger,
	}
}

// CreateSyncJob starts a new sync attempt
// @Summary Create a sync job
// @Description Create a sync job for the session and dispatch it to the scraper worker
// @Tags sync
// @Accept json
// @Produce json
// @Param request body sync.CreateJobRequest true "Sync parameters"
// @Success 201 {object} SyncJobResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /sync [post]
func (h *Handler) CreateSyncJob(c *gin.Context) {
	var req sync.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	job, err := h.syncService.CreateJob(c.Request.Context(), currentUserID(c), &req)
	if err != nil {
		h.respondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, job)
}

// GetSyncJob fetches one sync job
// @Summary Get a sync job
// @Description Get the job for a session, with items and derived stats
// @Tags sync
// @Produce json
// @Param sessionId path string true "Session ID"
// @Success 200 {object} SyncJobResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /sync/session/{sessionId} [get]
func (h *Handler) GetSyncJob(c *gin.Context) {
	job, err := h.syncService.GetJob(c.Request.Context(), currentUserID(c), c.Param("sessionId"))
	if err != nil {
		h.respondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// GetActiveSyncJob fetches the user's active job, if any
// @Summary Get the active sync job
// @Description Get the most recently started non-terminal job for the authenticated user, reaping it first if stale
// @Tags sync
// @Produce json
// @Success 200 {object} sync.ActiveJobResult
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /sync/active [get]
func (h *Handler) GetActiveSyncJob(c *gin.Context) {
	result, err := h.syncService.GetActiveJob(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.respondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// CancelSyncJob cancels an active job
// @Summary Cancel a sync job
// @Description Cancel the job locally and best-effort notify the worker; accumulated stats are preserved
// @Tags sync
// @Produce json
// @Param sessionId path string true "Session ID"
// @Success 200 {object} SyncJobResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /sync/session/{sessionId}/cancel [post]
func (h *Handler) CancelSyncJob(c *gin.Context) {
	job, err := h.syncService.CancelJob(c.Request.Context(), currentUserID(c), c.Param("sessionId"))
	if err != nil {
		h.respondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// StreamSyncJob streams live job events over SSE
// @Summary Stream sync job events
// @Description Server-sent events for one session: connected snapshot, item-update, phase-change, sync-complete, with comment heartbeats
// @Tags sync
// @Produce text/event-stream
// @Param sessionId path string true "Session ID"
// @Success 200 {string} string "event stream"
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /sync/session/{sessionId}/events [get]
func (h *Handler) StreamSyncJob(c *gin.Context) {
	sessionID := c.Param("sessionId")

	job, err := h.syncService.GetJob(c.Request.Context(), currentUserID(c), sessionID)
	if err != nil {
		h.respondWithAppError(c, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	sub := h.hub.Subscribe(sessionID)
	defer h.hub.Unsubscribe(sessionID, sub)

	// current-state snapshot so a reconnecting client needs no replay
	c.SSEvent(string(push.EventConnected), push.Event{
		Type:    push.EventConnected,
		Phase:   job.Phase,
		Message: job.Message,
		Stats:   &job.Stats,
		Job:     job,
	})
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.config.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case event, ok := <-sub.Events:
			if !ok {
				return
			}
			c.SSEvent(string(event.Type), event)
			c.Writer.Flush()
		case <-heartbeat.C:
			// comment line keeps intermediaries from buffering or timing
			// out the stream
			c.Writer.WriteString(": heartbeat\n\n")
			c.Writer.Flush()
		case <-c.Request.Context().Done():
			return
		}
	}
}

func (h *Handler) respondWithAppError(c *gin.Context, err error) {
	appErr, ok := err.(*apperrors.AppError)
	if !ok {
		h.logger.WithError(err).Error("Unhandled error")
		respondWithError(c, http.StatusInternalServerError, "internal server error")
		return
	}

	switch appErr.Type {
	case apperrors.ErrNotFound:
		respondWithError(c, http.StatusNotFound, appErr.Message)
	case apperrors.ErrInvalidInput:
		respondWithError(c, http.StatusBadRequest, appErr.Message)
	case apperrors.ErrUnauthorized:
		respondWithError(c, http.StatusUnauthorized, "unauthorized")
	case apperrors.ErrConflict:
		respondWithError(c, http.StatusConflict, appErr.Message)
	case apperrors.ErrInvalidState:
		respondWithError(c, http.StatusConflict, appErr.Message)
	default:
		h.logger.WithError(err).Error("Internal error")
		respondWithError(c, http.StatusInternalServerError, "internal server error")
	}
}

func respondWithError(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{"error": message})
}
