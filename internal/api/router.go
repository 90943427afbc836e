package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/inventario-import-api/internal/config"
	"github.com/inventario-import-api/internal/schema"
	"github.com/inventario-import-api/internal/service"
)

// tenantKey is the gin context key holding the resolved tenant
const tenantKey = "tenant_id"

// NewRouter creates and configures the Gin router
func NewRouter(services *service.Services, registry *schema.Registry, cfg *config.Config, log zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Middleware
	router.Use(recoveryMiddleware(log))
	router.Use(loggingMiddleware(log))
	router.Use(metricsMiddleware())
	router.Use(corsMiddleware())
	router.Use(tenantMiddleware())

	importHandler := NewImportHandler(services, registry, cfg, log)

	router.GET("/health", healthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	{
		imports := v1.Group("/import")
		{
			imports.POST("/:tipo", importHandler.CreateImport)

			jobs := imports.Group("/jobs")
			{
				jobs.GET("", importHandler.ListJobs)
				jobs.GET("/:job_id", importHandler.GetJob)
				jobs.POST("/:job_id/cancel", importHandler.CancelJob)
				jobs.GET("/:job_id/errors", importHandler.GetJobErrors)
				jobs.GET("/:job_id/events", importHandler.StreamEvents)
			}
		}
	}

	return router
}

// healthCheck returns the health status
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"service":   "inventario-import-api",
	})
}

// recoveryMiddleware handles panics
func recoveryMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Error().Interface("error", err).Msg("Panic recovered")
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "Internal server error",
				})
				c.Abort()
			}
		}()
		c.Next()
	}
}

// loggingMiddleware logs requests
func loggingMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()

		event := log.Info()
		if statusCode >= 400 {
			event = log.Warn()
		}
		if statusCode >= 500 {
			event = log.Error()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", statusCode).
			Dur("duration", duration).
			Str("client_ip", c.ClientIP()).
			Msg("Request completed")
	}
}

// corsMiddleware handles CORS
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Tenant-Id")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// tenantMiddleware resolves the tenant from the X-Tenant-Id header.
// Single-tenant deployments omit the header and fall into "default".
func tenantMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant := c.GetHeader("X-Tenant-Id")
		if tenant == "" {
			tenant = "default"
		}
		c.Set(tenantKey, tenant)
		c.Next()
	}
}
