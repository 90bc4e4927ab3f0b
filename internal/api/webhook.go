package api

import (
	"bytes"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/collectdex/mfc-sync/internal/sync"
	"github.com/collectdex/mfc-sync/internal/worker"
)

// RequireWebhookSignature authenticates worker callbacks: the
// x-webhook-signature header must carry the hex HMAC-SHA256 digest of the
// exact request body. Failures are uniform 401s with no detail and no
// state mutation.
func RequireWebhookSignature(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		if !worker.VerifySignature(secret, c.GetHeader(worker.SignatureHeader), body) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		// the body was consumed for verification; hand it back to binding
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Next()
	}
}

// ItemCompleteWebhook handles an item-complete callback from the worker
// @Summary Report a processed sync item
// @Description Worker callback reporting one item's terminal status, optionally with scraped enrichment data
// @Tags webhooks
// @Accept json
// @Produce json
// @Param request body sync.ItemCompleteRequest true "Item result"
// @Success 200 {object} map[string]string
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /webhooks/sync/item-complete [post]
func (h *Handler) ItemCompleteWebhook(c *gin.Context) {
	var req sync.ItemCompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.webhooks.HandleItemComplete(c.Request.Context(), &req); err != nil {
		h.respondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// PhaseChangeWebhook handles a phase-change callback from the worker
// @Summary Report a sync phase transition
// @Description Worker callback moving the job through its lifecycle; terminal phases are ignored unless the job has no items
// @Tags webhooks
// @Accept json
// @Produce json
// @Param request body sync.PhaseChangeRequest true "Phase transition"
// @Success 200 {object} map[string]string
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /webhooks/sync/phase-change [post]
func (h *Handler) PhaseChangeWebhook(c *gin.Context) {
	var req sync.PhaseChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	applied, err := h.webhooks.HandlePhaseChange(c.Request.Context(), &req)
	if err != nil {
		h.respondWithAppError(c, err)
		return
	}

	if !applied {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListsSyncWebhook handles a lists-sync callback from the worker
// @Summary Upsert the user's MFC lists
// @Description Worker callback delivering the user's lists in bulk
// @Tags webhooks
// @Accept json
// @Produce json
// @Param request body sync.ListsSyncRequest true "Lists payload"
// @Success 200 {object} map[string]int
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /webhooks/sync/lists-sync [post]
func (h *Handler) ListsSyncWebhook(c *gin.Context) {
	var req sync.ListsSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	count, err := h.webhooks.HandleListsSync(c.Request.Context(), &req)
	if err != nil {
		h.respondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"upserted": count})
}
