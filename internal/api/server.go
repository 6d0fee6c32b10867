package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"printgate/internal/api/handlers"
	"printgate/internal/api/middleware"
	"printgate/internal/telemetry"
)

// NewServer wires the HTTP surface onto an App and returns a server
// ready to ListenAndServe.
func NewServer(app *App) *http.Server {
	if !app.Config.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Logger())
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	auth := middleware.NewAuth(app.Config.Auth)
	printHandler := handlers.NewPrintHandler(app.Registry, app.Queues, app.Router,
		app.Config.Resilience.OfflineQueueEnabled)
	printerHandler := handlers.NewPrinterHandler(app.Registry, app.Monitor)
	queueHandler := handlers.NewQueueHandler(app.Queues, app.Archive)

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})
	engine.GET("/metrics", gin.WrapH(telemetry.Handler()))

	v1 := engine.Group("/api/v1")
	v1.POST("/auth/login", auth.LoginHandler)
	v1.POST("/auth/logout", auth.LogoutHandler)

	protected := v1.Group("")
	protected.Use(auth.RequireAuth())
	{
		protected.POST("/print", printHandler.Submit)

		protected.GET("/printers", printerHandler.List)
		protected.GET("/printers/:id", printerHandler.Get)
		protected.POST("/printers/:id/check", printerHandler.Check)

		protected.GET("/queues", queueHandler.List)
		protected.GET("/queues/:printer", queueHandler.Get)
		protected.GET("/queues/:printer/history", queueHandler.History)

		protected.GET("/jobs/:id", queueHandler.GetJob)
		protected.DELETE("/jobs/:id", queueHandler.CancelJob)

		protected.GET("/archive", queueHandler.Archived)

		protected.GET("/intents", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"intents": app.Router.Intents()})
		})
	}

	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", app.Config.Server.Host, app.Config.Server.Port),
		Handler:      engine,
		ReadTimeout:  app.Config.Server.ReadTimeout,
		WriteTimeout: app.Config.Server.WriteTimeout,
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
