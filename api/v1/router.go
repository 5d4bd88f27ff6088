package v1

import (
	"vpnpanel/api/v1/actionlogs"
	"vpnpanel/api/v1/agent"
	"vpnpanel/api/v1/auth"
	"vpnpanel/api/v1/middleware"
	"vpnpanel/api/v1/nodes"
	"vpnpanel/api/v1/profiles"
	"vpnpanel/api/v1/stats"
	"vpnpanel/internal/config"
	"vpnpanel/internal/httpx"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SetupRouter sets up the API v1 routes
func SetupRouter(r *gin.Engine, db *gorm.DB, cfg *config.Config, logger *logrus.Entry) {
	v1 := r.Group("/api/v1")
	{
		// Public routes (no authentication required)
		v1.GET("/ping", pingHandler)

		// Admin session auth
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/login", auth.LoginHandler(db, cfg))
		}

		// Agent routes (shared-key gate)
		agentHandler := agent.NewHandler(db, logger)
		agentGroup := v1.Group("/agent")
		agentGroup.Use(middleware.AgentAuth(cfg.AgentKey))
		{
			agentGroup.GET("/actions", agentHandler.Actions)
			agentGroup.POST("/actions/complete", agentHandler.Complete)
			agentGroup.POST("/reports/full", agentHandler.FullReport)
			agentGroup.POST("/reports/status", agentHandler.StatusReport)
			agentGroup.POST("/reports/sync-profiles", agentHandler.SyncProfiles)
		}

		// Protected admin routes
		protected := v1.Group("")
		protected.Use(middleware.AuthRequired())
		{
			protected.GET("/me", meHandler)

			nodesHandler := nodes.NewHandler(db)
			nodesGroup := protected.Group("/nodes")
			{
				nodesGroup.GET("", nodesHandler.List)
				nodesGroup.GET("/:id", nodesHandler.Get)
				nodesGroup.POST("/create", nodesHandler.Create)
				nodesGroup.POST("/delete", nodesHandler.Delete)
			}

			profilesHandler := profiles.NewHandler(db)
			profilesGroup := protected.Group("/profiles")
			{
				profilesGroup.GET("", profilesHandler.List)
				profilesGroup.POST("/create", profilesHandler.Create)
				profilesGroup.POST("/:id/revoke", profilesHandler.Revoke)
			}

			logsHandler := actionlogs.NewHandler(db)
			protected.GET("/action-logs", logsHandler.List)

			statsHandler := stats.NewHandler(db, cfg.StatsCacheSec)
			protected.GET("/stats", statsHandler.Overview)
		}
	}
}

// pingHandler handles the ping request using unified response
func pingHandler(c *gin.Context) {
	httpx.OK(c, gin.H{
		"pong": true,
	})
}

// meHandler returns current admin information
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
