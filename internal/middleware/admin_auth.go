package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/scroll-tech/cloak-fast-withdraw/internal/config"
	"github.com/scroll-tech/cloak-fast-withdraw/internal/handlers"
)

// AdminAuthMiddleware guards routes behind the admin bearer token.
type AdminAuthMiddleware struct {
	cfg *config.AdminConfig
	log *logrus.Entry
}

// NewAdminAuthMiddleware creates the middleware.
func NewAdminAuthMiddleware(cfg *config.AdminConfig, logger *logrus.Logger) *AdminAuthMiddleware {
	return &AdminAuthMiddleware{
		cfg: cfg,
		log: logger.WithField("module", "admin-auth"),
	}
}

// RequireAdminAuth rejects requests without a valid bearer token.
func (a *AdminAuthMiddleware) RequireAdminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			a.log.WithFields(logrus.Fields{
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
			}).Warn("Admin auth failed - missing or malformed Authorization header")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "bearer token required"})
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := handlers.ValidateAdminToken(tokenString, a.cfg.JWTSecret)
		if err != nil {
			a.log.WithError(err).Warn("Admin auth failed - invalid token")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		c.Set("admin_role", claims.Role)
		c.Next()
	}
}
