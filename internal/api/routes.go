package api

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title Collectdex Sync API
// @version 1.0
// @description Sync job orchestrator for the collectdex figure-collection backend
// @license.name MIT
// @license.url https://opensource.org/licenses/MIT
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

// SetupRouter configures the API routes
func SetupRouter(h *Handler, authSecret, webhookSecret string) *gin.Engine {
	r := gin.Default()

	// API documentation
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := r.Group("/api/v1")
	{
		// User-facing lifecycle endpoints, owner-authenticated
		syncGroup := v1.Group("/sync", RequireUser(authSecret))
		{
			syncGroup.POST("", h.CreateSyncJob)
			syncGroup.GET("/active", h.GetActiveSyncJob)

			// gin cannot mix a param segment with static siblings, hence
			// the /session prefix
			session := syncGroup.Group("/session/:sessionId")
			{
				session.GET("", h.GetSyncJob)
				session.POST("/cancel", h.CancelSyncJob)
				session.GET("/events", h.StreamSyncJob)
			}
		}

		// Worker callbacks, HMAC-authenticated
		webhooks := v1.Group("/webhooks/sync", RequireWebhookSignature(webhookSecret))
		{
			webhooks.POST("/item-complete", h.ItemCompleteWebhook)
			webhooks.POST("/phase-change", h.PhaseChangeWebhook)
			webhooks.POST("/lists-sync", h.ListsSyncWebhook)
		}
	}

	return r
}
