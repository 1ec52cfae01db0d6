// Package httptransport exposes the registry and orchestrator over a gin
// HTTP API with one uniform response envelope.
package httptransport

import (
	"fmt"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"kani-tts-server/internal/platform/config"
	"kani-tts-server/internal/platform/logging"
)

// Options configures the router builder.
type Options struct {
	Config *config.Config
	Logger *logging.Logger
}

// Router bundles the gin engine and the common route groups.
type Router struct {
	Engine  *gin.Engine
	API     *gin.RouterGroup
	Secured *gin.RouterGroup
	Admin   *gin.RouterGroup
}

// Build constructs a gin engine pre-configured with recovery, logging and
// CORS middlewares, plus the api/secured/admin groups routes hang off.
func Build(opts Options) (*Router, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("http router requires config")
	}

	if opts.Config.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(loggingMiddleware(opts.Logger))

	if err := engine.SetTrustedProxies(nil); err != nil {
		return nil, fmt.Errorf("configure trusted proxies: %w", err)
	}

	engine.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			headerAPIKey,
			headerAdminKey,
		},
		ExposeHeaders: []string{"Content-Length", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}))

	api := engine.Group("/api/v1")
	secured := api.Group("")
	secured.Use(APIKeyAuth(opts.Config.Auth))
	admin := secured.Group("/admin")
	admin.Use(AdminOnly())

	return &Router{
		Engine:  engine,
		API:     api,
		Secured: secured,
		Admin:   admin,
	}, nil
}

func loggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		if logger != nil {
			logger.InfoTag("HTTP", "%s %s -> %d (%s)",
				c.Request.Method,
				c.Request.URL.Path,
				c.Writer.Status(),
				duration,
			)
		}
	}
}
