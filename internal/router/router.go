// Package router wires the HTTP surface together.
package router

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/buildsim/osremote/internal/config"
	"github.com/buildsim/osremote/internal/executor"
	"github.com/buildsim/osremote/internal/handlers"
	"github.com/buildsim/osremote/internal/middleware"
	"github.com/buildsim/osremote/internal/services"
)

func New(cfg *config.Config, ex *executor.Executor, history *services.HistoryService) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())

	executeHandler := handlers.NewExecuteHandler(ex, history)
	processHandler := handlers.NewProcessHandler(ex)
	historyHandler := handlers.NewHistoryHandler(history)
	systemHandler := handlers.NewSystemHandler(ex)
	streamHandler := handlers.NewStreamHandler(ex, history)

	r.GET("/health", systemHandler.Health)

	api := r.Group("/api")
	{
		// Public version endpoint
		api.GET("/version", handlers.Version)

		protected := api.Group("")
		protected.Use(middleware.TokenAuth(cfg.Auth.APITokenHash))
		{
			limiter := middleware.NewRateLimiter(cfg.Server.RateLimit, time.Minute)
			protected.POST("/execute", limiter.Middleware(), executeHandler.Run)
			protected.POST("/executions", limiter.Middleware(), executeHandler.StartAsync)

			protected.GET("/executions", historyHandler.List)
			protected.GET("/executions/:id", historyHandler.Get)
			protected.GET("/executions/:id/ws", streamHandler.HandleWebSocket)

			protected.GET("/processes", processHandler.List)
			protected.GET("/processes/count", processHandler.Count)
			protected.POST("/processes/kill", processHandler.KillAll)

			protected.GET("/system", systemHandler.Metrics)
		}
	}

	return r
}
