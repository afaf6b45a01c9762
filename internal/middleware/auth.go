package middleware

import (
	"context"
	"oabt_client/internal/util"
	"oabt_client/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const ContextUserID = "userId"

// Credentials 由 service.TokenManager 实现
type Credentials interface {
	GetValidToken(ctx context.Context) (string, error)
	UserID(ctx context.Context) (string, error)
}

// RequireLogin 本地没有可用 token 时直接返回 401，界面据此跳回登录页
func RequireLogin(creds Credentials) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		token, err := creds.GetValidToken(ctx)
		if err != nil {
			logger.Log.Error("Token lookup failed", zap.Error(err))
			util.InternalServerError(c)
			c.Abort()
			return
		}
		if token == "" {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		if id, err := creds.UserID(ctx); err == nil && id != "" {
			c.Set(ContextUserID, id)
		}
		c.Next()
	}
}

// UserID 返回 RequireLogin 放入上下文的用户 id
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}
