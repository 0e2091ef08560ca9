package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tatianab/castle-adventure/internal/models"
)

const (
	// UserHeader carries the id of a user authenticated upstream.
	UserHeader = "X-User-ID"
	// SessionCookie keys anonymous players.
	SessionCookie = "castle_session"

	identityKey   = "identity"
	sessionMaxAge = 90 * 24 * 60 * 60
)

// identityMiddleware resolves the request owner: the upstream user when the
// header is present, otherwise the session cookie, minting one when absent.
func identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID := strings.TrimSpace(c.GetHeader(UserHeader)); userID != "" {
			c.Set(identityKey, models.UserIdentity(userID))
			c.Next()
			return
		}

		key, err := c.Cookie(SessionCookie)
		if err != nil || strings.TrimSpace(key) == "" {
			key = uuid.NewString()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(SessionCookie, key, sessionMaxAge, "/", "", false, true)
		}
		c.Set(identityKey, models.SessionIdentity(key))
		c.Next()
	}
}

func identityFrom(c *gin.Context) models.Identity {
	if v, ok := c.Get(identityKey); ok {
		if id, ok := v.(models.Identity); ok {
			return id
		}
	}
	return models.Identity{}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
