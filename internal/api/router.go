package api

import "github.com/gin-gonic/gin"

// NewRouter wires the management surface. Handlers are thin pass-throughs to
// the store and the scheduler's manual operations.
func NewRouter(h *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", h.Health)

	api := router.Group("/api")
	{
		api.GET("/platforms", h.ListPlatforms)

		api.POST("/accounts", h.AddAccount)
		api.GET("/accounts", h.ListAccounts)
		api.POST("/accounts/:id/status", h.SetAccountStatus)
		api.DELETE("/accounts/:id", h.DeleteAccount)

		api.POST("/schedules", h.CreateSchedule)
		api.GET("/schedules", h.ListSchedules)
		api.GET("/schedules/:id", h.GetSchedule)
		api.POST("/schedules/:id/cancel", h.CancelSchedule)
		api.POST("/schedules/:id/retry", h.RetrySchedule)
		api.POST("/schedules/:id/execute", h.ExecuteSchedule)

		api.GET("/logs", h.ListLogs)
		api.GET("/metrics", h.ListMetrics)

		api.POST("/hotspots/import", h.ImportHotspots)
		api.GET("/hotspots", h.ListHotspots)

		api.POST("/assets", h.ImportAsset)
		api.GET("/assets", h.ListAssets)

		api.GET("/compliance/words", h.GetSensitiveWords)
		api.PUT("/compliance/words", h.SetSensitiveWords)
	}
	return router
}
