// Package router builds the Gin engine from the application's modules.
package router

import (
	"net/http"
	"time"

	apphttp "incident_portal_backend/internal/http"
	"incident_portal_backend/platform/httpkit"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// webhookKeyHeader carries the shared secret the voice provider sends on
// agent tool and webhook calls.
const webhookKeyHeader = "X-Webhook-Key"

// New builds the HTTP engine with the shared middleware stack and mounts
// every module's routes.
func New(app *apphttp.App) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(httpkit.RequestID())
	engine.Use(httpkit.RequestLogger(app.Logger))
	engine.Use(httpkit.SecurityHeaders())
	engine.Use(corsMiddleware(app))

	limiter := httpkit.NewIPRateLimiter(50, 100, app.Logger)
	engine.Use(limiter.RateLimit())

	engine.GET("/api/health", func(c *gin.Context) {
		if app.Health != nil {
			if err := app.Health.Ping(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := engine.Group("/api/v1")

	// Provider-facing routes share v1's path space but sit behind the
	// webhook key gate.
	tools := v1.Group("")
	tools.Use(webhookAuth(app.Config.GetWebhookSharedKey(), app))

	ctx := &apphttp.RouterContext{
		Engine: engine,
		V1:     v1,
		Tools:  tools,
	}

	for _, module := range app.Modules {
		module.RegisterRoutes(ctx)
		app.Logger.Info("registered module routes", "module", module.Name())
	}

	return engine
}

func corsMiddleware(app *apphttp.App) gin.HandlerFunc {
	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", webhookKeyHeader, httpkit.HeaderRequestID},
		ExposeHeaders:    []string{httpkit.HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if app.Config.GetCORSAllowAll() {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	} else {
		corsConfig.AllowOrigins = app.Config.GetCORSOrigins()
	}
	return cors.New(corsConfig)
}

// webhookAuth guards the tool surface with the shared key. An empty
// configured key disables the check for local development.
func webhookAuth(sharedKey string, app *apphttp.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if sharedKey == "" {
			c.Next()
			return
		}
		if c.GetHeader(webhookKeyHeader) != sharedKey {
			app.Logger.Warn("webhook key rejected", "path", c.Request.URL.Path, "ip", c.ClientIP())
			httpkit.Error(c, http.StatusUnauthorized, "invalid webhook key", nil)
			c.Abort()
			return
		}
		c.Next()
	}
}
