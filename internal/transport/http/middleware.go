package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"kani-tts-server/internal/domain/ratelimit"
	"kani-tts-server/internal/platform/config"
)

const (
	headerAPIKey   = "X-API-Key"
	headerAdminKey = "X-Admin-Key"

	ctxIdentity = "identity"
	ctxAdmin    = "admin"
)

// APIKeyAuth resolves the caller identity from X-API-Key. When key
// enforcement is on, unknown keys are rejected; otherwise any presented
// key becomes the identity and anonymous callers pass with none.
func APIKeyAuth(cfg config.AuthConfig) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		allowed[k] = struct{}{}
	}

	return func(c *gin.Context) {
		key := c.GetHeader(headerAPIKey)
		if cfg.Require {
			if key == "" {
				RespondError(c, http.StatusUnauthorized, "an API key is required", nil)
				c.Abort()
				return
			}
			if _, ok := allowed[key]; !ok {
				RespondError(c, http.StatusUnauthorized, "unknown API key", nil)
				c.Abort()
				return
			}
		}
		c.Set(ctxIdentity, key)
		if admin := c.GetHeader(headerAdminKey); admin != "" && cfg.AdminKey != "" && admin == cfg.AdminKey {
			c.Set(ctxAdmin, true)
		}
		c.Next()
	}
}

// AdminOnly rejects callers that did not present the admin key.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isAdmin(c) {
			RespondError(c, http.StatusForbidden, "admin access required", nil)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RateLimit gates the route through the limiter with the given class.
func RateLimit(limiter ratelimit.Limiter, class ratelimit.Class) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := limiter.Check(c.Request.Context(), identity(c), c.ClientIP(), class); err != nil {
			RespondDomainError(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}

func identity(c *gin.Context) string {
	return c.GetString(ctxIdentity)
}

func isAdmin(c *gin.Context) bool {
	return c.GetBool(ctxAdmin)
}
