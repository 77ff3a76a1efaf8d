package api

import (
	"github.com/gin-gonic/gin"

	infragin "github.com/wepublish/dorfkoenig/infrastructure/gin"
)

// Handlers groups the route handlers.
type Handlers struct {
	Scouts  *ScoutHandler
	Units   *UnitHandler
	Drafts  *DraftHandler
	Compose *ComposeHandler
}

// RegisterRoutes mounts the /api/v1 surface. The webhook is public; every
// other route requires a bearer token when jwtSecret is set.
func RegisterRoutes(router *gin.Engine, h Handlers, jwtSecret string, middleware ...gin.HandlerFunc) {
	if len(middleware) > 0 {
		router.Use(middleware...)
	}
	public, protected := infragin.SetupAPIRoutesWithPublic(router, jwtSecret)

	webhooks := public.Group("/webhooks")
	webhooks.GET("/whatsapp", h.Drafts.VerifyWebhook)
	webhooks.POST("/whatsapp", h.Drafts.ReceiveWebhook)

	scouts := protected.Group("/scouts")
	scouts.POST("", h.Scouts.Create)
	scouts.GET("", h.Scouts.List)
	scouts.GET("/:id", h.Scouts.Get)
	scouts.PATCH("/:id", h.Scouts.Update)
	scouts.DELETE("/:id", h.Scouts.Delete)
	scouts.POST("/:id/run", h.Scouts.Run)
	scouts.POST("/:id/test", h.Scouts.Test)
	scouts.GET("/:id/executions", h.Scouts.Executions)

	protected.GET("/executions/:id", h.Scouts.Execution)

	units := protected.Group("/units")
	units.GET("", h.Units.List)
	units.GET("/locations", h.Units.Locations)
	units.GET("/search", h.Units.Search)
	units.PATCH("/mark-used", h.Units.MarkUsed)
	units.POST("/manual", h.Units.Upload)

	drafts := protected.Group("/drafts")
	drafts.POST("", h.Drafts.Create)
	drafts.GET("", h.Drafts.List)
	drafts.GET("/:id", h.Drafts.Get)
	drafts.PATCH("/:id", h.Drafts.Update)
	drafts.POST("/:id/send-verification", h.Drafts.SendVerification)

	composer := protected.Group("/compose")
	composer.POST("/generate", h.Compose.Article)
	composer.POST("/select-units", h.Compose.SelectUnits)
	composer.POST("/newsletter", h.Compose.Newsletter)
}
