package v1

import (
	"rostersync/api/v1/auth"
	"rostersync/api/v1/districts"
	"rostersync/api/v1/middleware"
	"rostersync/internal/config"
	"rostersync/internal/httpx"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SetupRouter sets up the API v1 routes
func SetupRouter(r *gin.Engine, db *gorm.DB, cfg *config.Config) {
	v1 := r.Group("/api/v1")
	{
		// Public routes (no authentication required)
		v1.GET("/ping", pingHandler)

		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/login", auth.LoginHandler(db, cfg))
		}

		// Protected routes (authentication required)
		protected := v1.Group("")
		protected.Use(middleware.AuthRequired())
		{
			protected.GET("/me", meHandler)

			districtsHandler := districts.NewHandler(db)
			districtsGroup := protected.Group("/districts")
			{
				districtsGroup.GET("", districtsHandler.List)
				districtsGroup.GET("/detail", districtsHandler.Get)
				districtsGroup.GET("/filters", districtsHandler.ListFilters)
				districtsGroup.GET("/histories", districtsHandler.ListHistories)
				districtsGroup.GET("/history-details", districtsHandler.ListHistoryDetails)
				districtsGroup.GET("/lines", districtsHandler.ListLines)

				admin := districtsGroup.Group("")
				admin.Use(middleware.AdminRequired())
				{
					admin.POST("/create", districtsHandler.Create)
					admin.POST("/update", districtsHandler.Update)
					admin.POST("/action", districtsHandler.RequestAction)
					admin.POST("/stop", districtsHandler.Stop)
					admin.POST("/filters/set", districtsHandler.SetFilters)
					admin.POST("/courses/include", districtsHandler.SetCourseInclude)
				}
			}
		}
	}
}

// pingHandler handles the ping request using unified response
func pingHandler(c *gin.Context) {
	httpx.OK(c, gin.H{
		"pong": true,
	})
}

// meHandler returns current user information
func meHandler(c *gin.Context) {
	uid, _ := c.Get("uid")
	username, _ := c.Get("username")
	role, _ := c.Get("role")

	httpx.OK(c, gin.H{
		"uid":      uid,
		"username": username,
		"role":     role,
	})
}
