package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dannybszn/doris-referral/internal/config"
	"github.com/dannybszn/doris-referral/internal/infrastructure/auth"
	"github.com/dannybszn/doris-referral/internal/pkg/chat/presentation/controller"
	"github.com/dannybszn/doris-referral/internal/pkg/chat/presentation/dto"
)

// Authenticate resolves the bearer token into controller.UserIDKey. With
// allowQuery the token may also arrive as ?token=, which is how EventSource
// and browser WebSocket clients authenticate.
func Authenticate(cfg *config.AuthConfig, allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("Authorization")
		if raw == "" && allowQuery {
			raw = c.Query("token")
		}
		claims, err := auth.ParseToken(cfg, raw)
		if err != nil {
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "invalid or missing token", Code: dto.CodeUnauthorized})
			return
		}
		c.Set(controller.UserIDKey, claims.UserID)
		c.Set(controller.RoleKey, claims.Role)
		c.Next()
	}
}

// Timeout bounds the request context. Streaming routes must not use it.
func Timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
