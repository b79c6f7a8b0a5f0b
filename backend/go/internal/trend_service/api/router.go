package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all the routes for the trend service.
// writes run before every POST handler.
func RegisterRoutes(router *gin.Engine, api *API, writes ...gin.HandlerFunc) {
	post := func(h gin.HandlerFunc) []gin.HandlerFunc {
		return append(append([]gin.HandlerFunc{}, writes...), h)
	}

	router.GET("/healthz", api.HealthHandler)
	router.GET("/metrics", MetricsHandler())

	entities := router.Group("/entities")
	{
		entities.GET("", api.ListEntitiesHandler)
		entities.GET("/:kind/:id", api.GetEntityHandler)
		entities.POST("/:kind/:id", post(api.InitEntityHandler)...)
	}

	changes := router.Group("/changes")
	{
		changes.GET("", api.ChangesHandler)
		changes.GET("/:kind/:id", api.ChangeHandler)
	}

	users := router.Group("/users/:id")
	{
		users.POST("/recommend", post(api.RecommendHandler)...)
		users.POST("/note", post(api.NoteHandler)...)
	}

	router.POST("/activity", post(api.SubmitActivityHandler)...)
}
