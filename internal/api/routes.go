package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/playhive/backend/internal/api/handlers"
	"github.com/playhive/backend/internal/config"
	"github.com/playhive/backend/internal/middleware"
	"github.com/playhive/backend/internal/realtime"
	"github.com/playhive/backend/internal/store"
	"github.com/playhive/backend/internal/ws"
)

// Deps carries everything the route table needs.
type Deps struct {
	Config      *config.Config
	Gateway     *ws.Gateway
	Publisher   *realtime.Publisher
	Matchmaker  *realtime.Matchmaker
	Registry    *realtime.Registry
	Users       *store.Users
	Matches     *store.Matches
	Leaderboard *store.Leaderboard
}

// SetupRoutes configures all API routes
func SetupRoutes(router *gin.Engine, deps Deps) {
	router.Use(middleware.CORSMiddleware(deps.Config))

	requireUser := middleware.RequireUser(deps.Config.JWTSecret)

	// WebSocket endpoints
	router.GET("/ws", deps.Gateway.HandleWebSocket)
	router.GET("/ws/leaderboard", ws.HandleLeaderboardWebSocket(deps.Publisher))

	// API v1 group
	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", handlers.HealthCheck)

		auth := v1.Group("/auth")
		{
			auth.POST("/register", handlers.Register(deps.Users, deps.Config))
			auth.POST("/login", handlers.Login(deps.Users, deps.Config))
		}

		matchmaking := v1.Group("/matchmaking", requireUser)
		{
			matchmaking.GET("/status", handlers.QueueStatus(deps.Matchmaker))
			matchmaking.POST("/cancel", handlers.CancelQueue(deps.Matchmaker))
		}

		v1.POST("/matches/:id/complete", requireUser,
			handlers.CompleteMatch(deps.Matchmaker, deps.Matches, deps.Leaderboard))

		v1.GET("/leaderboard", handlers.GetLeaderboard(deps.Leaderboard, deps.Config.LeaderboardTopN))
		v1.POST("/points", requireUser, handlers.AwardPoints(deps.Leaderboard))

		v1.GET("/users/:id/online", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"user_id": c.Param("id"),
				"online":  deps.Registry.IsOnline(c.Param("id")),
			})
		})
	}
}
