package api

import (
	"net/http"

	"vifd/internal/config"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(router *gin.Engine, handlers *Handlers) {
	router.HandleMethodNotAllowed = true
	router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"status": "error", "error": "method not allowed"})
	})
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "not found"})
	})

	router.GET("/health", handlers.Health)

	iface := router.Group("/api/interface")
	iface.POST("/create", handlers.CreateInterface)
	iface.GET("/status", handlers.GetInterfaceStatus)
	iface.POST("/start", handlers.StartInterface)
	iface.POST("/stop", handlers.StopInterface)
	iface.DELETE("/delete", handlers.DeleteInterface)
	iface.GET("/events", handlers.StreamEvents)
	iface.GET("/flows", handlers.GetFlows)

	router.GET("/api/stats", handlers.GetStats)
	router.GET("/api/traces", handlers.GetTraces)
	router.GET("/api/alerts", handlers.GetAlerts)
}

// NewRouter builds the engine with the middleware chain used in production.
func NewRouter(cfg config.APIConfig, handlers *Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(TraceMiddleware(handlers.Observability))
	router.Use(AuditMiddleware(handlers.Log))
	if cfg.Compression {
		router.Use(CompressionMiddleware())
	}
	RegisterRoutes(router, handlers)
	if cfg.Pprof {
		RegisterPprof(router, "")
	}
	return router
}
