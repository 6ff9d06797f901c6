package api

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/playmatatu/duel/internal/api/handlers"
	"github.com/playmatatu/duel/internal/config"
	"github.com/playmatatu/duel/internal/game"
	"github.com/playmatatu/duel/internal/middleware"
	"github.com/playmatatu/duel/internal/ws"
)

// Deps carries everything the HTTP layer needs.
type Deps struct {
	Manager *game.Manager
	Hub     *ws.Hub
	Config  *config.Config
	Logger  *slog.Logger
	// HealthChecks are reported by GET /health, keyed by dependency name.
	HealthChecks map[string]func(ctx context.Context) error
}

// SetupRoutes configures all API routes
func SetupRoutes(router *gin.Engine, d Deps) {
	router.Use(middleware.CORSMiddleware(d.Config, d.Logger))

	if !d.Config.IsProduction() {
		router.Use(func(c *gin.Context) {
			c.Header("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
			c.Header("Pragma", "no-cache")
			c.Header("Expires", "0")
			c.Next()
		})
		d.Logger.Debug("no-cache headers enabled for all routes")
	}

	health := handlers.HealthCheck(d.HealthChecks)
	router.GET("/health", health)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", health)

		user := v1.Group("", middleware.AuthMiddleware(d.Config.JWTSecret))
		{
			mm := user.Group("/matchmaking")
			mm.POST("/join", handlers.JoinQueue(d.Manager))
			mm.GET("/queue/:id", handlers.GetQueueEntry(d.Manager))
			mm.DELETE("/queue/:id", handlers.CancelQueueEntry(d.Manager))

			matches := user.Group("/matches")
			matches.GET("/:id", handlers.GetMatchState(d.Manager))
			matches.POST("/:id/progress", handlers.SubmitProgress(d.Manager))
			matches.POST("/:id/complete", handlers.CompleteMatch(d.Manager))
			matches.GET("/:id/ws", handlers.HandleMatchWebSocket(d.Manager, d.Hub))

			user.GET("/wallet", handlers.GetWallet(d.Manager))
		}

		admin := v1.Group("/admin", middleware.AdminKeyMiddleware(d.Config.AdminAPIKey))
		{
			admin.POST("/wallets/:user/deposit", handlers.AdminDeposit(d.Manager))
			admin.POST("/matches/:id/cancel", handlers.AdminCancelMatch(d.Manager))
		}
	}
}
